package mesh

import (
    "context"
    "sync"

    "github.com/amirimatin/go-mesh/pkg/topology"
)

// Event is the closed set of notifications a Member emits.
type Event interface{ meshEvent() }

type JoinEvent struct{ Cluster string }
type LeaveEvent struct{ Cluster string }
type AdvertiseStartEvent struct{ Info AdInfo }
type AdvertiseStopEvent struct{ Info AdInfo }
type SubscribeEvent struct{ Channel string }
type UnsubscribeEvent struct{ Channel string }
type NodeUpEvent struct{ Peer topology.PeerInfo }
type NodeDownEvent struct{ Peer topology.PeerInfo }
type MessageEvent struct{ Channel, Payload string }
type PublishEvent struct{ Channel, Payload string }

// ErrorEvent reports failures that have no caller to return to: background
// discovery work and async operations started without a completion func.
type ErrorEvent struct {
    Op  string
    Err error
}

func (JoinEvent) meshEvent()           {}
func (LeaveEvent) meshEvent()          {}
func (AdvertiseStartEvent) meshEvent() {}
func (AdvertiseStopEvent) meshEvent()  {}
func (SubscribeEvent) meshEvent()      {}
func (UnsubscribeEvent) meshEvent()    {}
func (NodeUpEvent) meshEvent()         {}
func (NodeDownEvent) meshEvent()       {}
func (MessageEvent) meshEvent()        {}
func (PublishEvent) meshEvent()        {}
func (ErrorEvent) meshEvent()          {}

// Bus delivers events to typed listeners, synchronously and in order of
// registration, and to channel subscribers on a best-effort basis.
type Bus struct {
    mu        sync.RWMutex
    next      uint64
    listeners []listener
    subs      map[chan Event]struct{}
}

type listener struct {
    id uint64
    fn func(Event)
}

func NewBus() *Bus { return &Bus{subs: make(map[chan Event]struct{})} }

// Listen registers fn for events of type E and returns a func that
// removes it.
func Listen[E Event](b *Bus, fn func(E)) (cancel func()) {
    return b.ListenAll(func(ev Event) {
        if e, ok := ev.(E); ok { fn(e) }
    })
}

// ListenAll registers fn for every event.
func (b *Bus) ListenAll(fn func(Event)) (cancel func()) {
    b.mu.Lock()
    b.next++
    id := b.next
    b.listeners = append(b.listeners, listener{id: id, fn: fn})
    b.mu.Unlock()
    var once sync.Once
    return func() { once.Do(func() { b.remove(id) }) }
}

func (b *Bus) remove(id uint64) {
    b.mu.Lock()
    defer b.mu.Unlock()
    for i, l := range b.listeners {
        if l.id == id {
            b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
            return
        }
    }
}

// Subscribe returns a channel of events. The returned channel is buffered and
// closed automatically when ctx is done. Events may be dropped if the consumer
// is too slow (best-effort delivery) to avoid back-pressuring internals.
func (b *Bus) Subscribe(ctx context.Context) <-chan Event {
    ch := make(chan Event, 64)
    b.mu.Lock()
    b.subs[ch] = struct{}{}
    b.mu.Unlock()
    go func() {
        <-ctx.Done()
        b.mu.Lock()
        delete(b.subs, ch)
        b.mu.Unlock()
        close(ch)
    }()
    return ch
}

// Emit delivers ev. Listeners run on the caller's goroutine without the bus
// lock held, so they may register or cancel listeners.
func (b *Bus) Emit(ev Event) {
    b.mu.RLock()
    ls := append([]listener(nil), b.listeners...)
    for ch := range b.subs {
        select {
        case ch <- ev:
        default:
            // drop if receiver is slow
        }
    }
    b.mu.RUnlock()
    for _, l := range ls { l.fn(ev) }
}
