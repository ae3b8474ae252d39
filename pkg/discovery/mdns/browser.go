package mdns

import (
    "context"
    "sync"

    "github.com/grandcat/zeroconf"

    "github.com/amirimatin/go-mesh/pkg/discovery"
)

type tracked struct {
    d      discovery.Descriptor
    misses int
}

type browser struct {
    p       *Provider
    service string
    n       discovery.Notifee

    mu      sync.Mutex
    tracked map[string]*tracked
    stopped bool

    cancel context.CancelFunc
    exited chan struct{}
}

// Start launches the browse loop. The loop outlives ctx and ends on Stop.
func (b *browser) Start(ctx context.Context) error {
    if err := ctx.Err(); err != nil { return err }
    b.mu.Lock()
    defer b.mu.Unlock()
    if b.stopped || b.cancel != nil { return nil }
    base, cancel := context.WithCancel(context.Background())
    b.cancel = cancel
    b.exited = make(chan struct{})
    go b.run(base)
    return nil
}

func (b *browser) Stop() error {
    b.mu.Lock()
    b.stopped = true
    cancel, exited := b.cancel, b.exited
    b.mu.Unlock()
    if cancel != nil {
        cancel()
        <-exited
    }
    return nil
}

func (b *browser) run(ctx context.Context) {
    defer close(b.exited)
    clk := b.p.opts.Clock
    for {
        b.round(ctx)
        select {
        case <-ctx.Done():
            return
        case <-clk.After(b.p.opts.Interval - b.p.opts.Round):
        }
    }
}

// round browses for one window, reports new or changed peers as they
// arrive and then sweeps peers that stayed silent.
func (b *browser) round(parent context.Context) {
    ctx, cancel := b.p.opts.Clock.WithTimeout(parent, b.p.opts.Round)
    defer cancel()
    entries := make(chan *zeroconf.ServiceEntry, 32)
    if err := b.p.lookup(ctx, b.service, b.p.opts.Domain, entries); err != nil {
        b.p.log.Warn("browse failed", "service", b.service, "error", err)
        return
    }
    seen := make(map[string]struct{})
    closed := false
loop:
    for {
        select {
        case e, ok := <-entries:
            if !ok { closed = true; break loop }
            if d, ok := Descriptor(e); ok {
                seen[d.PeerID] = struct{}{}
                b.observe(d)
            }
        case <-ctx.Done():
            break loop
        }
    }
    if !closed {
        go func() { for range entries {} }()
    }
    if parent.Err() != nil { return }
    b.sweep(seen)
}

func (b *browser) observe(d discovery.Descriptor) {
    b.mu.Lock(); defer b.mu.Unlock()
    if b.stopped { return }
    t, ok := b.tracked[d.PeerID]
    if ok {
        t.misses = 0
        if t.d.Equal(d) { return }
        b.n.PeerDown(t.d)
        t.d = d
    } else {
        b.tracked[d.PeerID] = &tracked{d: d}
    }
    b.n.PeerUp(d)
}

func (b *browser) sweep(seen map[string]struct{}) {
    b.mu.Lock(); defer b.mu.Unlock()
    if b.stopped { return }
    for id, t := range b.tracked {
        if _, ok := seen[id]; ok { continue }
        t.misses++
        if t.misses >= b.p.opts.MissLimit {
            delete(b.tracked, id)
            b.n.PeerDown(t.d)
        }
    }
}
