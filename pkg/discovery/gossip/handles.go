package gossip

import (
    "context"
    "net"
    "strconv"
    "sync"

    "github.com/hashicorp/memberlist"

    "github.com/amirimatin/go-mesh/pkg/discovery"
)

type advertisement struct {
    p           *Provider
    serviceType string
    rec         adRecord

    mu     sync.Mutex
    active bool
}

func (a *advertisement) Start(ctx context.Context) error {
    if err := ctx.Err(); err != nil { return err }
    a.mu.Lock(); defer a.mu.Unlock()
    if a.active { return nil }
    rec := a.rec
    if err := a.p.setAd(a.serviceType, &rec); err != nil { return err }
    a.active = true
    return nil
}

func (a *advertisement) Stop() error {
    a.mu.Lock(); defer a.mu.Unlock()
    if !a.active { return nil }
    a.active = false
    return a.p.setAd(a.serviceType, nil)
}

type browser struct {
    p           *Provider
    serviceType string
    n           discovery.Notifee

    mu      sync.Mutex
    seen    map[string]discovery.Descriptor
    started bool
    stopped bool
}

// Start registers the browser and replays the current membership.
func (b *browser) Start(ctx context.Context) error {
    if err := ctx.Err(); err != nil { return err }
    p := b.p
    p.mu.Lock()
    ml := p.ml
    if ml == nil { p.mu.Unlock(); return ErrNotStarted }
    b.mu.Lock()
    if b.started || b.stopped { b.mu.Unlock(); p.mu.Unlock(); return nil }
    b.started = true
    b.mu.Unlock()
    p.browsers[b] = struct{}{}
    p.mu.Unlock()

    for _, n := range ml.Members() {
        p.enqueue(eventFromNode(n, false, b), true)
    }
    return nil
}

func (b *browser) Stop() error {
    b.p.mu.Lock()
    delete(b.p.browsers, b)
    b.p.mu.Unlock()
    b.mu.Lock()
    b.stopped = true
    b.mu.Unlock()
    return nil
}

// apply diffs the node's advertisement for this service type against what
// the browser last reported and notifies the difference.
func (b *browser) apply(ev nodeEvent) {
    b.mu.Lock(); defer b.mu.Unlock()
    if b.stopped || !b.started { return }
    prev, had := b.seen[ev.name]
    var cur *discovery.Descriptor
    if !ev.left {
        if rec, ok := decodeAds(ev.meta)[b.serviceType]; ok {
            d := discovery.Describe(discovery.Banner{Name: rec.Name, TXT: rec.TXT}, ev.addr, rec.Port)
            cur = &d
        }
    }
    switch {
    case cur == nil && had:
        delete(b.seen, ev.name)
        b.n.PeerDown(prev)
    case cur == nil:
    case had && prev.Equal(*cur):
    default:
        if had { b.n.PeerDown(prev) }
        b.seen[ev.name] = *cur
        b.n.PeerUp(*cur)
    }
}

func eventFromNode(n *memberlist.Node, left bool, target *browser) nodeEvent {
    ev := nodeEvent{name: n.Name, left: left, target: target}
    if n.Addr != nil { ev.addr = n.Addr.String() }
    if len(n.Meta) > 0 { ev.meta = append([]byte(nil), n.Meta...) }
    return ev
}

// eventDelegate runs under memberlist's node lock, so it only copies the
// node and queues it.
type eventDelegate struct{ p *Provider }

func (d *eventDelegate) NotifyJoin(n *memberlist.Node)   { if n != nil { d.p.enqueue(eventFromNode(n, false, nil), false) } }
func (d *eventDelegate) NotifyUpdate(n *memberlist.Node) { if n != nil { d.p.enqueue(eventFromNode(n, false, nil), false) } }
func (d *eventDelegate) NotifyLeave(n *memberlist.Node)  { if n != nil { d.p.enqueue(eventFromNode(n, true, nil), false) } }

type nodeDelegate struct{ p *Provider }

func (d *nodeDelegate) NodeMeta(limit int) []byte {
    meta, _ := d.p.meta.Load().([]byte)
    if len(meta) > limit { return nil }
    return meta
}

func (d *nodeDelegate) NotifyMsg([]byte)                       {}
func (d *nodeDelegate) GetBroadcasts(int, int) [][]byte        { return nil }
func (d *nodeDelegate) LocalState(join bool) []byte            { return nil }
func (d *nodeDelegate) MergeRemoteState(buf []byte, join bool) {}

func hostPort(n *memberlist.Node) string {
    return net.JoinHostPort(n.Addr.String(), strconv.Itoa(int(n.Port)))
}
