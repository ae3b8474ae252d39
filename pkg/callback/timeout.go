// Package callback bounds how long a caller waits for a completion
// function to be invoked.
package callback

import (
    "errors"
    "fmt"
    "sync"
    "time"

    "github.com/benbjohnson/clock"
)

var ErrTimeout = errors.New("callback: timed out")

// Timeout wraps fn so that it is invoked exactly once: either by the
// returned function or, if that does not happen within d, by the timer
// with an error wrapping ErrTimeout. Calls after the first are ignored.
func Timeout[T any](clk clock.Clock, d time.Duration, fn func(T, error), msg string) func(T, error) {
    if clk == nil { clk = clock.New() }
    var (
        once  sync.Once
        timer *clock.Timer
        mu    sync.Mutex
    )
    fire := func(v T, err error) {
        once.Do(func() {
            mu.Lock()
            if timer != nil { timer.Stop() }
            mu.Unlock()
            fn(v, err)
        })
    }
    mu.Lock()
    timer = clk.AfterFunc(d, func() {
        var zero T
        if msg == "" { msg = "operation" }
        fire(zero, fmt.Errorf("%w: %s after %s", ErrTimeout, msg, d))
    })
    mu.Unlock()
    return fire
}

// TimeoutErr is Timeout for completions that only carry an error.
func TimeoutErr(clk clock.Clock, d time.Duration, fn func(error), msg string) func(error) {
    wrapped := Timeout[struct{}](clk, d, func(_ struct{}, err error) { fn(err) }, msg)
    return func(err error) { wrapped(struct{}{}, err) }
}
