// Package memory is an in-process pub/sub transport. Publish sockets bound
// on the same Hub are reachable by port; the bind address is ignored, so a
// subscriber connecting to any address with the right port reaches the
// publisher.
package memory

import (
    "context"
    "errors"
    "fmt"
    "sync"

    "github.com/amirimatin/go-mesh/pkg/observability/metrics"
    "github.com/amirimatin/go-mesh/pkg/transport"
)

var (
    ErrPortInUse   = errors.New("memory transport: port in use")
    ErrNoPublisher = errors.New("memory transport: no publisher at port")
)

// Hub is the shared medium. The zero value is not usable; call NewHub.
type Hub struct {
    mu   sync.Mutex
    pubs map[int]*pubSocket
}

func NewHub() *Hub { return &Hub{pubs: make(map[int]*pubSocket)} }

func (h *Hub) NewPub() transport.PubSocket { return &pubSocket{hub: h, subs: make(map[*subSocket]struct{})} }

func (h *Hub) NewSub() transport.SubSocket {
    s := &subSocket{hub: h, conns: make(map[int]*pubSocket)}
    s.queue = transport.NewQueue(&s.Inbox, transport.DefaultQueueSize)
    return s
}

// Bound reports whether a publisher is bound at port.
func (h *Hub) Bound(port int) bool {
    h.mu.Lock(); defer h.mu.Unlock()
    _, ok := h.pubs[port]
    return ok
}

type pubSocket struct {
    hub *Hub

    mu     sync.Mutex
    port   int
    bound  bool
    closed bool
    subs   map[*subSocket]struct{}
}

func (p *pubSocket) Bind(ctx context.Context, address string, port int) error {
    if err := ctx.Err(); err != nil { return err }
    if port <= 0 { return fmt.Errorf("memory transport: invalid port %d", port) }
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.closed { return transport.ErrClosed }
    if p.bound { return transport.ErrAlreadyBound }
    p.hub.mu.Lock()
    defer p.hub.mu.Unlock()
    if _, ok := p.hub.pubs[port]; ok { return fmt.Errorf("%w: %d", ErrPortInUse, port) }
    p.hub.pubs[port] = p
    p.port, p.bound = port, true
    return nil
}

func (p *pubSocket) Send(frame []byte) error {
    p.mu.Lock()
    if p.closed { p.mu.Unlock(); return transport.ErrClosed }
    if !p.bound { p.mu.Unlock(); return transport.ErrNotBound }
    subs := make([]*subSocket, 0, len(p.subs))
    for s := range p.subs { subs = append(subs, s) }
    p.mu.Unlock()

    for _, s := range subs {
        if s.queue.Push(append([]byte(nil), frame...)) {
            metrics.FramesSent.WithLabelValues("memory").Inc()
        } else {
            metrics.FramesDropped.WithLabelValues("memory").Inc()
        }
    }
    return nil
}

func (p *pubSocket) Close() error {
    p.mu.Lock()
    if p.closed { p.mu.Unlock(); return nil }
    p.closed = true
    bound, port := p.bound, p.port
    n := len(p.subs)
    p.subs = make(map[*subSocket]struct{})
    p.mu.Unlock()
    metrics.Subscribers.WithLabelValues("memory").Sub(float64(n))
    if bound {
        p.hub.mu.Lock()
        if p.hub.pubs[port] == p { delete(p.hub.pubs, port) }
        p.hub.mu.Unlock()
    }
    return nil
}

func (p *pubSocket) attach(s *subSocket) bool {
    p.mu.Lock(); defer p.mu.Unlock()
    if p.closed { return false }
    if _, ok := p.subs[s]; !ok {
        p.subs[s] = struct{}{}
        metrics.Subscribers.WithLabelValues("memory").Inc()
    }
    return true
}

func (p *pubSocket) detach(s *subSocket) {
    p.mu.Lock(); defer p.mu.Unlock()
    if _, ok := p.subs[s]; ok {
        delete(p.subs, s)
        metrics.Subscribers.WithLabelValues("memory").Dec()
    }
}

type subSocket struct {
    transport.Inbox
    hub *Hub

    mu     sync.Mutex
    conns  map[int]*pubSocket
    closed bool

    queue *transport.Queue
}

func (s *subSocket) Connect(address string, port int) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.closed { return transport.ErrClosed }
    if _, ok := s.conns[port]; ok { return nil }
    s.hub.mu.Lock()
    p := s.hub.pubs[port]
    s.hub.mu.Unlock()
    if p == nil || !p.attach(s) { return fmt.Errorf("%w: %s:%d", ErrNoPublisher, address, port) }
    s.conns[port] = p
    return nil
}

func (s *subSocket) Disconnect(address string, port int) error {
    s.mu.Lock()
    p, ok := s.conns[port]
    delete(s.conns, port)
    s.mu.Unlock()
    if ok { p.detach(s) }
    return nil
}

func (s *subSocket) Close() error {
    s.mu.Lock()
    if s.closed { s.mu.Unlock(); return nil }
    s.closed = true
    conns := s.conns
    s.conns = make(map[int]*pubSocket)
    s.mu.Unlock()
    for _, p := range conns { p.detach(s) }
    s.queue.Close()
    return nil
}
