package seeds

import (
    "context"
    "net"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/benbjohnson/clock"
    "github.com/hashicorp/go-hclog"

    "github.com/amirimatin/go-mesh/pkg/discovery"
    "github.com/amirimatin/go-mesh/pkg/internal/logutil"
)

// DNSOptions configures DNS-based seeds.
type DNSOptions struct {
    // Names are SRV records ("_mesh._tcp.example.com"), hostnames or
    // literal host:port pairs.
    Names []string
    // Port is used for A/AAAA answers. Defaults to 7946.
    Port int
    // Refresh is the cache lifetime. Defaults to 5s.
    Refresh time.Duration
    // Timeout bounds one resolution pass. Defaults to 2s.
    Timeout  time.Duration
    Resolver *net.Resolver
    Clock    clock.Clock
    Logger   hclog.Logger
}

type dnsSeeds struct {
    opts  DNSOptions
    log   hclog.Logger
    mu    sync.Mutex
    last  time.Time
    cache []string
}

// DNS returns a Seeder that resolves SRV and A/AAAA names and caches the
// answers for Refresh.
func DNS(opts DNSOptions) discovery.Seeder {
    if opts.Refresh <= 0 { opts.Refresh = 5 * time.Second }
    if opts.Timeout <= 0 { opts.Timeout = 2 * time.Second }
    if opts.Port == 0 { opts.Port = 7946 }
    if opts.Resolver == nil { opts.Resolver = net.DefaultResolver }
    if opts.Clock == nil { opts.Clock = clock.New() }
    return &dnsSeeds{opts: opts, log: logutil.OrDefault(opts.Logger).Named("seeds-dns")}
}

func (d *dnsSeeds) Seeds() []string {
    d.mu.Lock(); defer d.mu.Unlock()
    now := d.opts.Clock.Now()
    if len(d.cache) > 0 && now.Sub(d.last) < d.opts.Refresh {
        return append([]string(nil), d.cache...)
    }
    ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
    defer cancel()
    d.cache = d.resolveAll(ctx)
    d.last = now
    return append([]string(nil), d.cache...)
}

func (d *dnsSeeds) resolveAll(ctx context.Context) []string {
    set := make(map[string]struct{})
    for _, name := range d.opts.Names {
        name = strings.TrimSpace(name)
        if name == "" { continue }
        if strings.Contains(name, ":") && !strings.HasPrefix(name, "_") {
            set[name] = struct{}{}
            continue
        }
        if strings.HasPrefix(name, "_") && strings.Contains(name, "._") {
            if recs := d.lookupSRV(ctx, name); len(recs) > 0 {
                for _, hp := range recs { set[hp] = struct{}{} }
                continue
            }
        }
        for _, hp := range d.lookupHost(ctx, name) { set[hp] = struct{}{} }
    }
    return sortedKeys(set)
}

func (d *dnsSeeds) lookupSRV(ctx context.Context, fqdn string) []string {
    svc, proto, domain := parseSRVName(fqdn)
    if svc == "" { return nil }
    _, addrs, err := d.opts.Resolver.LookupSRV(ctx, svc, proto, domain)
    if err != nil {
        d.log.Debug("srv lookup failed", "name", fqdn, "error", err)
        return nil
    }
    out := make([]string, 0, len(addrs))
    for _, a := range addrs {
        out = append(out, net.JoinHostPort(strings.TrimSuffix(a.Target, "."), strconv.Itoa(int(a.Port))))
    }
    return out
}

func (d *dnsSeeds) lookupHost(ctx context.Context, host string) []string {
    ips, err := d.opts.Resolver.LookupHost(ctx, host)
    if err != nil {
        d.log.Debug("host lookup failed", "name", host, "error", err)
        return nil
    }
    out := make([]string, 0, len(ips))
    for _, ip := range ips { out = append(out, net.JoinHostPort(ip, strconv.Itoa(d.opts.Port))) }
    return out
}

// parseSRVName splits "_service._proto.domain".
func parseSRVName(fqdn string) (service, proto, domain string) {
    parts := strings.SplitN(fqdn, ".", 3)
    if len(parts) < 3 || !strings.HasPrefix(parts[0], "_") || !strings.HasPrefix(parts[1], "_") { return "", "", "" }
    return strings.TrimPrefix(parts[0], "_"), strings.TrimPrefix(parts[1], "_"), parts[2]
}
