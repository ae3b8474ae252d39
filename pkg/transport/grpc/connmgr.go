package grpc

import (
    "context"
    "sync"
    "time"

    "github.com/benbjohnson/clock"
    "google.golang.org/grpc"

    "github.com/amirimatin/go-mesh/pkg/observability/metrics"
)

// Dialer opens a client connection to target.
type Dialer func(ctx context.Context, target string) (*grpc.ClientConn, error)

// ConnManager shares client connections per target. Connections nobody
// holds are closed after the idle TTL.
type ConnManager struct {
    mu      sync.Mutex
    conns   map[string]*managedConn
    ttl     time.Duration
    clk     clock.Clock
    dialer  Dialer
    closing chan struct{}
    once    sync.Once
}

type managedConn struct {
    cc       *grpc.ClientConn
    lastUsed time.Time
    ref      int
}

// NewConnManager creates a manager with the given idle TTL and dialer.
func NewConnManager(ttl time.Duration, clk clock.Clock, dialer Dialer) *ConnManager {
    if ttl <= 0 { ttl = 30 * time.Second }
    if clk == nil { clk = clock.New() }
    m := &ConnManager{ttl: ttl, clk: clk, dialer: dialer, conns: make(map[string]*managedConn), closing: make(chan struct{})}
    go m.janitor()
    return m
}

// Get returns a connection for target and a release func to call when done.
func (m *ConnManager) Get(ctx context.Context, target string) (*grpc.ClientConn, func(), error) {
    m.mu.Lock()
    if mc, ok := m.conns[target]; ok {
        mc.ref++
        mc.lastUsed = m.clk.Now()
        m.mu.Unlock()
        metrics.GRPCConnReuse.Inc()
        return mc.cc, m.releaser(target), nil
    }
    m.mu.Unlock()

    cc, err := m.dialer(ctx, target)
    if err != nil { return nil, func() {}, err }

    m.mu.Lock()
    defer m.mu.Unlock()
    if existing, ok := m.conns[target]; ok {
        // lost the race; keep the first connection
        _ = cc.Close()
        existing.ref++
        existing.lastUsed = m.clk.Now()
        metrics.GRPCConnReuse.Inc()
        return existing.cc, m.releaser(target), nil
    }
    m.conns[target] = &managedConn{cc: cc, lastUsed: m.clk.Now(), ref: 1}
    metrics.GRPCConnDials.Inc()
    metrics.GRPCConnActive.Inc()
    return cc, m.releaser(target), nil
}

// Len returns the number of cached connections.
func (m *ConnManager) Len() int {
    m.mu.Lock(); defer m.mu.Unlock()
    return len(m.conns)
}

func (m *ConnManager) releaser(target string) func() {
    var once sync.Once
    return func() { once.Do(func() { m.release(target) }) }
}

func (m *ConnManager) release(target string) {
    m.mu.Lock()
    if mc, ok := m.conns[target]; ok {
        if mc.ref > 0 { mc.ref-- }
        mc.lastUsed = m.clk.Now()
    }
    m.mu.Unlock()
}

// Close closes all cached connections and stops the janitor.
func (m *ConnManager) Close() {
    m.once.Do(func() { close(m.closing) })
    m.mu.Lock()
    for k, mc := range m.conns {
        _ = mc.cc.Close()
        metrics.GRPCConnActive.Dec()
        delete(m.conns, k)
    }
    m.mu.Unlock()
}

func (m *ConnManager) janitor() {
    ticker := m.clk.Ticker(m.ttl / 2)
    defer ticker.Stop()
    for {
        select {
        case <-m.closing:
            return
        case <-ticker.C:
            m.evictIdle()
        }
    }
}

func (m *ConnManager) evictIdle() {
    cutoff := m.clk.Now().Add(-m.ttl)
    m.mu.Lock()
    defer m.mu.Unlock()
    for addr, mc := range m.conns {
        if mc.ref == 0 && mc.lastUsed.Before(cutoff) {
            _ = mc.cc.Close()
            metrics.GRPCConnEvictions.Inc()
            metrics.GRPCConnActive.Dec()
            delete(m.conns, addr)
        }
    }
}
