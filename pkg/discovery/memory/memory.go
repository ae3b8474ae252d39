// Package memory is an in-process discovery provider. Providers created
// from the same Network see each other's advertisements; notifications are
// delivered synchronously on the caller's goroutine.
package memory

import (
    "context"
    "errors"
    "sync"

    "github.com/amirimatin/go-mesh/pkg/discovery"
)

var ErrStopped = errors.New("memory discovery: handle stopped")

type record struct {
    owner  *advertisement
    banner discovery.Banner
    addr   string
    port   int
}

func (r record) descriptor() discovery.Descriptor { return discovery.Describe(r.banner, r.addr, r.port) }

// Network is a shared, in-process advertisement registry.
type Network struct {
    mu       sync.Mutex
    ads      map[string]map[*advertisement]record
    browsers map[string]map[*browser]struct{}
}

func NewNetwork() *Network {
    return &Network{
        ads:      make(map[string]map[*advertisement]record),
        browsers: make(map[string]map[*browser]struct{}),
    }
}

// Provider returns a provider whose advertisements are reachable at address.
func (n *Network) Provider(address string) *Provider {
    return &Provider{net: n, address: address}
}

// Advertised returns the number of live advertisements for serviceType.
func (n *Network) Advertised(serviceType string) int {
    n.mu.Lock(); defer n.mu.Unlock()
    return len(n.ads[serviceType])
}

// Provider implements discovery.Provider on top of a Network.
type Provider struct {
    net     *Network
    address string

    mu           sync.Mutex
    advertiseErr error
    browseErr    error
}

// FailAdvertise makes subsequent advertisement starts fail with err.
func (p *Provider) FailAdvertise(err error) { p.mu.Lock(); p.advertiseErr = err; p.mu.Unlock() }

// FailBrowse makes subsequent browser starts fail with err.
func (p *Provider) FailBrowse(err error) { p.mu.Lock(); p.browseErr = err; p.mu.Unlock() }

func (p *Provider) Advertise(serviceType string, port int, banner discovery.Banner) (discovery.Advertisement, error) {
    return &advertisement{p: p, serviceType: serviceType, port: port, banner: banner.Clone()}, nil
}

func (p *Provider) Browse(serviceType string, n discovery.Notifee) (discovery.Browser, error) {
    if n == nil { return nil, errors.New("memory discovery: nil notifee") }
    return &browser{p: p, serviceType: serviceType, n: n}, nil
}

type advertisement struct {
    p           *Provider
    serviceType string
    port        int
    banner      discovery.Banner

    mu      sync.Mutex
    started bool
    stopped bool
}

func (a *advertisement) Start(ctx context.Context) error {
    if err := ctx.Err(); err != nil { return err }
    a.p.mu.Lock()
    err := a.p.advertiseErr
    a.p.mu.Unlock()
    if err != nil { return err }

    a.mu.Lock()
    if a.stopped { a.mu.Unlock(); return ErrStopped }
    if a.started { a.mu.Unlock(); return nil }
    a.started = true
    a.mu.Unlock()

    rec := record{owner: a, banner: a.banner, addr: a.p.address, port: a.port}
    n := a.p.net
    n.mu.Lock()
    if n.ads[a.serviceType] == nil { n.ads[a.serviceType] = make(map[*advertisement]record) }
    n.ads[a.serviceType][a] = rec
    targets := n.browsersLocked(a.serviceType)
    n.mu.Unlock()

    d := rec.descriptor()
    for _, b := range targets { b.up(d) }
    return nil
}

func (a *advertisement) Stop() error {
    a.mu.Lock()
    if a.stopped { a.mu.Unlock(); return nil }
    a.stopped = true
    wasStarted := a.started
    a.mu.Unlock()
    if !wasStarted { return nil }

    n := a.p.net
    n.mu.Lock()
    rec, ok := n.ads[a.serviceType][a]
    delete(n.ads[a.serviceType], a)
    targets := n.browsersLocked(a.serviceType)
    n.mu.Unlock()
    if !ok { return nil }

    d := rec.descriptor()
    for _, b := range targets { b.down(d) }
    return nil
}

type browser struct {
    p           *Provider
    serviceType string
    n           discovery.Notifee

    // mu serializes notifications and Stop.
    mu      sync.Mutex
    started bool
    stopped bool
}

func (b *browser) Start(ctx context.Context) error {
    if err := ctx.Err(); err != nil { return err }
    b.p.mu.Lock()
    err := b.p.browseErr
    b.p.mu.Unlock()
    if err != nil { return err }

    b.mu.Lock()
    if b.stopped { b.mu.Unlock(); return ErrStopped }
    if b.started { b.mu.Unlock(); return nil }
    b.started = true
    b.mu.Unlock()

    n := b.p.net
    n.mu.Lock()
    if n.browsers[b.serviceType] == nil { n.browsers[b.serviceType] = make(map[*browser]struct{}) }
    n.browsers[b.serviceType][b] = struct{}{}
    existing := make([]discovery.Descriptor, 0, len(n.ads[b.serviceType]))
    for _, rec := range n.ads[b.serviceType] { existing = append(existing, rec.descriptor()) }
    n.mu.Unlock()

    for _, d := range existing { b.up(d) }
    return nil
}

func (b *browser) Stop() error {
    n := b.p.net
    n.mu.Lock()
    delete(n.browsers[b.serviceType], b)
    n.mu.Unlock()

    b.mu.Lock()
    b.stopped = true
    b.mu.Unlock()
    return nil
}

func (b *browser) up(d discovery.Descriptor) {
    b.mu.Lock(); defer b.mu.Unlock()
    if b.stopped { return }
    b.n.PeerUp(d)
}

func (b *browser) down(d discovery.Descriptor) {
    b.mu.Lock(); defer b.mu.Unlock()
    if b.stopped { return }
    b.n.PeerDown(d)
}

func (n *Network) browsersLocked(serviceType string) []*browser {
    out := make([]*browser, 0, len(n.browsers[serviceType]))
    for b := range n.browsers[serviceType] { out = append(out, b) }
    return out
}
