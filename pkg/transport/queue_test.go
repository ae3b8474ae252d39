package transport

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestQueue_DeliversInOrder(t *testing.T) {
    var in Inbox
    got := make(chan string, 4)
    in.OnFrame(func(f []byte) { got <- string(f) })
    in.AddFilter([]byte("a:"))
    q := NewQueue(&in, 4)
    defer q.Close()

    require.True(t, q.Push([]byte("a:1")))
    require.True(t, q.Push([]byte("b:skip")))
    require.True(t, q.Push([]byte("a:2")))
    for _, want := range []string{"a:1", "a:2"} {
        select {
        case f := <-got:
            assert.Equal(t, want, f)
        case <-time.After(2 * time.Second):
            t.Fatal("frame not delivered")
        }
    }
}

func TestQueue_CloseFromCallback(t *testing.T) {
    var in Inbox
    in.AddFilter([]byte(""))
    var q *Queue
    closed := make(chan struct{})
    in.OnFrame(func([]byte) {
        q.Close()
        close(closed)
    })
    q = NewQueue(&in, 1)

    require.True(t, q.Push([]byte("x")))
    select {
    case <-closed:
    case <-time.After(2 * time.Second):
        t.Fatal("callback did not run")
    }
    assert.False(t, q.Push([]byte("y")))
}

func TestQueue_DropsWhenFull(t *testing.T) {
    var in Inbox
    in.AddFilter([]byte(""))
    block := make(chan struct{})
    in.OnFrame(func([]byte) { <-block })
    q := NewQueue(&in, 1)
    defer q.Close()
    defer close(block)

    require.Eventually(t, func() bool {
        q.Push([]byte("x"))
        return !q.Push([]byte("y"))
    }, 2*time.Second, 10*time.Millisecond)
}
