// Package mdns is a DNS-SD discovery provider on top of grandcat/zeroconf.
//
// zeroconf reports each instance once per browse and never reports
// departures, so the browser runs in rounds and declares a peer down after
// it has been missing from MissLimit consecutive rounds.
package mdns

import (
    "context"
    "errors"
    "net"
    "strings"
    "sync"
    "time"

    "github.com/benbjohnson/clock"
    "github.com/grandcat/zeroconf"
    "github.com/hashicorp/go-hclog"

    "github.com/amirimatin/go-mesh/pkg/discovery"
    "github.com/amirimatin/go-mesh/pkg/internal/logutil"
)

const DefaultDomain = "local."

// Options configures the provider. Zero values pick defaults.
type Options struct {
    Domain     string
    Interfaces []net.Interface
    // Round is how long each browse listens for answers. Defaults to 2s.
    Round time.Duration
    // Interval separates the start of consecutive rounds. Defaults to 10s.
    Interval time.Duration
    // MissLimit is the number of silent rounds before PeerDown. Defaults to 3.
    MissLimit int
    Clock     clock.Clock
    Logger    hclog.Logger
}

type lookupFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

type registerFunc func(instance, service, domain string, port int, txt []string) (shutdowner, error)

type shutdowner interface{ Shutdown() }

// Provider implements discovery.Provider.
type Provider struct {
    opts     Options
    log      hclog.Logger
    lookup   lookupFunc
    register registerFunc
}

func New(opts Options) *Provider {
    if opts.Domain == "" { opts.Domain = DefaultDomain }
    if opts.Round <= 0 { opts.Round = 2 * time.Second }
    if opts.Interval < opts.Round { opts.Interval = 10 * time.Second }
    if opts.MissLimit <= 0 { opts.MissLimit = 3 }
    if opts.Clock == nil { opts.Clock = clock.New() }
    p := &Provider{opts: opts, log: logutil.OrDefault(opts.Logger).Named("mdns")}
    p.lookup = p.zeroconfLookup
    p.register = p.zeroconfRegister
    return p
}

func (p *Provider) zeroconfLookup(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
    var opts []zeroconf.ClientOption
    if len(p.opts.Interfaces) > 0 { opts = append(opts, zeroconf.SelectIfaces(p.opts.Interfaces)) }
    r, err := zeroconf.NewResolver(opts...)
    if err != nil { return err }
    return r.Browse(ctx, service, domain, entries)
}

func (p *Provider) zeroconfRegister(instance, service, domain string, port int, txt []string) (shutdowner, error) {
    return zeroconf.Register(instance, service, domain, port, txt, p.opts.Interfaces)
}

// ServiceName maps a bare service type to its DNS-SD form ("_svc._tcp").
func ServiceName(serviceType string) string {
    if strings.HasPrefix(serviceType, "_") && strings.Contains(serviceType, "._") { return serviceType }
    return "_" + serviceType + "._tcp"
}

func (p *Provider) Advertise(serviceType string, port int, banner discovery.Banner) (discovery.Advertisement, error) {
    if banner.Name == "" { return nil, errors.New("mdns: empty instance name") }
    return &advertisement{p: p, service: ServiceName(serviceType), port: port, banner: banner.Clone()}, nil
}

func (p *Provider) Browse(serviceType string, n discovery.Notifee) (discovery.Browser, error) {
    if n == nil { return nil, errors.New("mdns: nil notifee") }
    return &browser{
        p:       p,
        service: ServiceName(serviceType),
        n:       n,
        tracked: make(map[string]*tracked),
    }, nil
}

type advertisement struct {
    p       *Provider
    service string
    port    int
    banner  discovery.Banner

    mu     sync.Mutex
    server shutdowner
}

func (a *advertisement) Start(ctx context.Context) error {
    if err := ctx.Err(); err != nil { return err }
    a.mu.Lock(); defer a.mu.Unlock()
    if a.server != nil { return nil }
    s, err := a.p.register(a.banner.Name, a.service, a.p.opts.Domain, a.port, discovery.TXTList(a.banner.TXT))
    if err != nil { return err }
    a.server = s
    return nil
}

func (a *advertisement) Stop() error {
    a.mu.Lock(); defer a.mu.Unlock()
    if a.server == nil { return nil }
    a.server.Shutdown()
    a.server = nil
    return nil
}

// Descriptor converts a resolved entry. Entries without any address are
// skipped.
func Descriptor(e *zeroconf.ServiceEntry) (discovery.Descriptor, bool) {
    if e == nil || e.Instance == "" { return discovery.Descriptor{}, false }
    var addr string
    switch {
    case len(e.AddrIPv4) > 0:
        addr = e.AddrIPv4[0].String()
    case len(e.AddrIPv6) > 0:
        addr = e.AddrIPv6[0].String()
    case e.HostName != "":
        addr = strings.TrimSuffix(e.HostName, ".")
    default:
        return discovery.Descriptor{}, false
    }
    b := discovery.Banner{Name: e.Instance, TXT: discovery.ParseTXT(e.Text)}
    return discovery.Describe(b, addr, e.Port), true
}
