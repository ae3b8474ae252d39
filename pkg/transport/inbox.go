package transport

import (
    "bytes"
    "sync"
)

// Inbox holds the subscriber-side filter set and frame callback. Socket
// implementations embed it and call Deliver for every inbound frame.
type Inbox struct {
    mu      sync.RWMutex
    filters map[string]int
    handler func([]byte)
}

// AddFilter registers prefix. Filters are reference counted so matching
// Add/Remove pairs compose.
func (in *Inbox) AddFilter(prefix []byte) {
    in.mu.Lock()
    if in.filters == nil { in.filters = make(map[string]int) }
    in.filters[string(prefix)]++
    in.mu.Unlock()
}

func (in *Inbox) RemoveFilter(prefix []byte) {
    in.mu.Lock()
    k := string(prefix)
    if n := in.filters[k]; n > 1 {
        in.filters[k] = n - 1
    } else {
        delete(in.filters, k)
    }
    in.mu.Unlock()
}

func (in *Inbox) OnFrame(fn func([]byte)) {
    in.mu.Lock()
    in.handler = fn
    in.mu.Unlock()
}

// Match reports whether frame starts with a registered prefix.
func (in *Inbox) Match(frame []byte) bool {
    in.mu.RLock(); defer in.mu.RUnlock()
    return in.matchLocked(frame)
}

func (in *Inbox) matchLocked(frame []byte) bool {
    for p := range in.filters {
        if bytes.HasPrefix(frame, []byte(p)) { return true }
    }
    return false
}

// Deliver hands frame to the callback when it matches a filter. The
// callback runs without the inbox lock held.
func (in *Inbox) Deliver(frame []byte) bool {
    in.mu.RLock()
    fn := in.handler
    ok := fn != nil && in.matchLocked(frame)
    in.mu.RUnlock()
    if !ok { return false }
    fn(frame)
    return true
}
