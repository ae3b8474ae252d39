package transport

import "sync"

// DefaultQueueSize bounds a Queue when no size is given.
const DefaultQueueSize = 256

// Queue feeds frames to an Inbox from its own goroutine, so socket read
// loops never run the frame callback. A callback may therefore close the
// socket that delivered the frame.
type Queue struct {
    in   *Inbox
    ch   chan []byte
    quit chan struct{}
    once sync.Once
}

// NewQueue starts the dispatch goroutine for in.
func NewQueue(in *Inbox, size int) *Queue {
    if size <= 0 { size = DefaultQueueSize }
    q := &Queue{in: in, ch: make(chan []byte, size), quit: make(chan struct{})}
    go q.loop()
    return q
}

// Push queues frame. It reports false when the queue is full or closed.
func (q *Queue) Push(frame []byte) bool {
    select {
    case <-q.quit:
        return false
    default:
    }
    select {
    case q.ch <- frame:
        return true
    default:
        return false
    }
}

// Close stops dispatching. It does not wait for an in-flight callback.
func (q *Queue) Close() { q.once.Do(func() { close(q.quit) }) }

func (q *Queue) loop() {
    for {
        select {
        case <-q.quit:
            return
        case f := <-q.ch:
            q.in.Deliver(f)
        }
    }
}
