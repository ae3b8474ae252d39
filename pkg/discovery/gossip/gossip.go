// Package gossip is a discovery provider built on hashicorp/memberlist.
// Every node carries its advertisements in its gossip metadata, keyed by
// service type, so browsing is a matter of watching membership changes.
package gossip

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net"
    "strconv"
    "sync"
    "sync/atomic"
    "time"

    "github.com/benbjohnson/clock"
    "github.com/hashicorp/go-hclog"
    "github.com/hashicorp/memberlist"

    "github.com/amirimatin/go-mesh/pkg/discovery"
    "github.com/amirimatin/go-mesh/pkg/internal/logutil"
)

var (
    ErrNotStarted   = errors.New("gossip: not started")
    ErrMetaTooLarge = errors.New("gossip: advertisements exceed node metadata limit")
)

// Options configures the memberlist-backed provider.
type Options struct {
    // NodeID is the memberlist node name. It must be unique in the pool.
    NodeID string
    // Bind is the gossip bind address in host:port form ("0.0.0.0:7946").
    Bind string
    // Advertise is the host:port peers should use to reach this node.
    // If empty, memberlist derives it from Bind.
    Advertise string
    // Seeds supplies addresses to join on Start. Optional.
    Seeds discovery.Seeder
    // JoinRetry, when positive, retries the seeds while this node is alone.
    JoinRetry time.Duration

    Logger hclog.Logger
    Clock  clock.Clock

    // Tuning parameters (optional). Zero means use memberlist defaults.
    ProbeInterval time.Duration
    ProbeTimeout  time.Duration
    SuspicionMult int
    // UpdateTimeout bounds metadata broadcasts and the final leave. Defaults to 2s.
    UpdateTimeout time.Duration
}

// adRecord is the wire form of one advertisement inside node metadata.
type adRecord struct {
    Name string            `json:"n"`
    Port int               `json:"p"`
    TXT  map[string]string `json:"t,omitempty"`
}

type nodeEvent struct {
    name   string
    addr   string
    meta   []byte
    left   bool
    target *browser // nil means every browser
}

// Provider implements discovery.Provider.
type Provider struct {
    opts Options
    log  hclog.Logger
    meta atomic.Value // []byte

    mu       sync.Mutex
    ml       *memberlist.Memberlist
    ads      map[string]adRecord
    browsers map[*browser]struct{}
    events   chan nodeEvent
    done     chan struct{}
    wg       sync.WaitGroup
    closed   bool
}

// New validates opts and returns an unstarted provider.
func New(opts Options) (*Provider, error) {
    if opts.NodeID == "" { return nil, fmt.Errorf("gossip: empty NodeID") }
    if opts.Bind == "" { return nil, fmt.Errorf("gossip: empty Bind address") }
    if opts.UpdateTimeout <= 0 { opts.UpdateTimeout = 2 * time.Second }
    if opts.Clock == nil { opts.Clock = clock.New() }
    p := &Provider{
        opts:     opts,
        log:      logutil.OrDefault(opts.Logger).Named("gossip"),
        ads:      make(map[string]adRecord),
        browsers: make(map[*browser]struct{}),
        events:   make(chan nodeEvent, 1024),
        done:     make(chan struct{}),
    }
    p.meta.Store([]byte(nil))
    return p, nil
}

// Start creates the memberlist instance and joins the configured seeds.
func (p *Provider) Start(ctx context.Context) error {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.closed { return ErrNotStarted }
    if p.ml != nil { return nil }

    cfg := memberlist.DefaultLANConfig()
    cfg.Name = p.opts.NodeID
    host, port, err := splitHostPort(p.opts.Bind)
    if err != nil { return fmt.Errorf("gossip: invalid bind address %q: %w", p.opts.Bind, err) }
    cfg.BindAddr, cfg.BindPort = host, port
    if p.opts.Advertise != "" {
        ahost, aport, err := splitHostPort(p.opts.Advertise)
        if err != nil { return fmt.Errorf("gossip: invalid advertise address %q: %w", p.opts.Advertise, err) }
        cfg.AdvertiseAddr, cfg.AdvertisePort = ahost, aport
    }
    if p.opts.ProbeInterval > 0 { cfg.ProbeInterval = p.opts.ProbeInterval }
    if p.opts.ProbeTimeout > 0 { cfg.ProbeTimeout = p.opts.ProbeTimeout }
    if p.opts.SuspicionMult > 0 { cfg.SuspicionMult = p.opts.SuspicionMult }
    cfg.Events = &eventDelegate{p: p}
    cfg.Delegate = &nodeDelegate{p: p}
    cfg.Logger = logutil.Standard(p.log)

    ml, err := memberlist.Create(cfg)
    if err != nil { return err }
    p.ml = ml

    p.wg.Add(1)
    go p.dispatch()

    p.joinSeeds(ml)
    if p.opts.JoinRetry > 0 && p.opts.Seeds != nil {
        p.wg.Add(1)
        go p.retryJoin(ctx, ml, p.opts.Clock.Ticker(p.opts.JoinRetry))
    }
    return nil
}

// Stop leaves the pool and shuts memberlist down. Browsers stop receiving
// notifications once Stop returns.
func (p *Provider) Stop() error {
    p.mu.Lock()
    if p.closed { p.mu.Unlock(); return nil }
    p.closed = true
    ml := p.ml
    p.ml = nil
    p.mu.Unlock()

    var err error
    if ml != nil {
        if lerr := ml.Leave(p.opts.UpdateTimeout); lerr != nil { p.log.Warn("leave failed", "error", lerr) }
        err = ml.Shutdown()
    }
    close(p.done)
    p.wg.Wait()
    return err
}

// LocalAddr returns the gossip host:port of this node, or "" before Start.
func (p *Provider) LocalAddr() string {
    ml := p.memberlist()
    if ml == nil { return "" }
    return hostPort(ml.LocalNode())
}

// Members returns the names of every live node, including this one.
func (p *Provider) Members() []string {
    ml := p.memberlist()
    if ml == nil { return nil }
    nodes := ml.Members()
    out := make([]string, 0, len(nodes))
    for _, n := range nodes { out = append(out, n.Name) }
    return out
}

// HealthScore exposes memberlist's awareness score, -1 when not running.
func (p *Provider) HealthScore() int {
    ml := p.memberlist()
    if ml == nil { return -1 }
    return ml.GetHealthScore()
}

func (p *Provider) memberlist() *memberlist.Memberlist {
    p.mu.Lock(); defer p.mu.Unlock()
    return p.ml
}

func (p *Provider) joinSeeds(ml *memberlist.Memberlist) {
    if p.opts.Seeds == nil { return }
    seeds := p.opts.Seeds.Seeds()
    if len(seeds) == 0 { return }
    if n, err := ml.Join(seeds); err != nil {
        p.log.Warn("seed join failed", "seeds", seeds, "error", err)
    } else {
        p.log.Debug("joined seeds", "contacted", n)
    }
}

func (p *Provider) retryJoin(ctx context.Context, ml *memberlist.Memberlist, t *clock.Ticker) {
    defer p.wg.Done()
    defer t.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-p.done:
            return
        case <-t.C:
            if ml.NumMembers() <= 1 { p.joinSeeds(ml) }
        }
    }
}

func (p *Provider) Advertise(serviceType string, port int, banner discovery.Banner) (discovery.Advertisement, error) {
    if serviceType == "" { return nil, errors.New("gossip: empty service type") }
    b := banner.Clone()
    return &advertisement{p: p, serviceType: serviceType, rec: adRecord{Name: b.Name, Port: port, TXT: b.TXT}}, nil
}

func (p *Provider) Browse(serviceType string, n discovery.Notifee) (discovery.Browser, error) {
    if n == nil { return nil, errors.New("gossip: nil notifee") }
    return &browser{p: p, serviceType: serviceType, n: n, seen: make(map[string]discovery.Descriptor)}, nil
}

// setAd installs or removes (rec == nil) the advertisement for serviceType
// and broadcasts the new metadata.
func (p *Provider) setAd(serviceType string, rec *adRecord) error {
    p.mu.Lock()
    prev, had := p.ads[serviceType]
    if rec == nil {
        delete(p.ads, serviceType)
    } else {
        p.ads[serviceType] = *rec
    }
    buf, err := json.Marshal(p.ads)
    if err == nil && len(buf) > memberlist.MetaMaxSize { err = ErrMetaTooLarge }
    if err != nil {
        if had { p.ads[serviceType] = prev } else { delete(p.ads, serviceType) }
        p.mu.Unlock()
        return err
    }
    p.meta.Store(buf)
    ml := p.ml
    p.mu.Unlock()

    if ml == nil { return nil }
    return ml.UpdateNode(p.opts.UpdateTimeout)
}

func (p *Provider) enqueue(ev nodeEvent, block bool) {
    if block {
        select {
        case p.events <- ev:
        case <-p.done:
        }
        return
    }
    select {
    case p.events <- ev:
    default:
        p.log.Warn("dropping membership event: queue full", "node", ev.name)
    }
}

func (p *Provider) dispatch() {
    defer p.wg.Done()
    for {
        select {
        case <-p.done:
            return
        case ev := <-p.events:
            var targets []*browser
            if ev.target != nil {
                targets = []*browser{ev.target}
            } else {
                p.mu.Lock()
                for b := range p.browsers { targets = append(targets, b) }
                p.mu.Unlock()
            }
            for _, b := range targets { b.apply(ev) }
        }
    }
}

func decodeAds(meta []byte) map[string]adRecord {
    if len(meta) == 0 { return nil }
    var ads map[string]adRecord
    if err := json.Unmarshal(meta, &ads); err != nil { return nil }
    return ads
}

func splitHostPort(hp string) (string, int, error) {
    host, ps, err := net.SplitHostPort(hp)
    if err != nil { return "", 0, err }
    port, err := strconv.Atoi(ps)
    if err != nil || port < 0 || port > 65535 { return "", 0, fmt.Errorf("invalid port: %q", ps) }
    return host, port, nil
}
