// Package bootstrap assembles a runnable node from a flat configuration: a
// mesh member wired to a discovery provider and a transport, plus the admin
// HTTP endpoint.
package bootstrap

import (
    "context"
    "fmt"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/hashicorp/go-hclog"
    "github.com/hashicorp/go-multierror"

    "github.com/amirimatin/go-mesh/pkg/admin"
    "github.com/amirimatin/go-mesh/pkg/discovery"
    "github.com/amirimatin/go-mesh/pkg/discovery/gossip"
    "github.com/amirimatin/go-mesh/pkg/discovery/mdns"
    "github.com/amirimatin/go-mesh/pkg/discovery/seeds"
    "github.com/amirimatin/go-mesh/pkg/hooks"
    "github.com/amirimatin/go-mesh/pkg/internal/logutil"
    "github.com/amirimatin/go-mesh/pkg/mesh"
    "github.com/amirimatin/go-mesh/pkg/observability/metrics"
    tlsx "github.com/amirimatin/go-mesh/pkg/security/tlsconfig"
    "github.com/amirimatin/go-mesh/pkg/transport"
    mgrpc "github.com/amirimatin/go-mesh/pkg/transport/grpc"
    "github.com/amirimatin/go-mesh/pkg/transport/ws"
)

type NodeConfig struct {
    ID      string `koanf:"id"`
    Service string `koanf:"service"`
    Cluster string `koanf:"cluster"`
    Address string `koanf:"address"`
    Port    int    `koanf:"port"`
}

// SeedsConfig selects where the gossip provider finds its first contacts.
type SeedsConfig struct {
    Kind     string        `koanf:"kind"` // static (default), dns or file
    Static   string        `koanf:"static"`
    DNSNames string        `koanf:"dns_names"`
    DNSPort  int           `koanf:"dns_port"`
    File     string        `koanf:"file"`
    Env      string        `koanf:"env"`
    Refresh  time.Duration `koanf:"refresh"`
}

type DiscoveryConfig struct {
    Kind      string        `koanf:"kind"` // gossip (default) or mdns
    Bind      string        `koanf:"bind"`
    Advertise string        `koanf:"advertise"`
    JoinRetry time.Duration `koanf:"join_retry"`
    Seeds     SeedsConfig   `koanf:"seeds"`

    MDNSDomain   string        `koanf:"mdns_domain"`
    MDNSInterval time.Duration `koanf:"mdns_interval"`
}

type TransportConfig struct {
    Kind      string `koanf:"kind"` // grpc (default) or ws
    QueueSize int    `koanf:"queue_size"`
}

type LogConfig struct {
    Level string `koanf:"level"`
    JSON  bool   `koanf:"json"`
}

// Config is the process-level configuration of a node.
type Config struct {
    Node      NodeConfig      `koanf:"node"`
    Discovery DiscoveryConfig `koanf:"discovery"`
    Transport TransportConfig `koanf:"transport"`
    TLS       tlsx.Options    `koanf:"tls"`
    Log       LogConfig       `koanf:"log"`
    // AdminAddr is the host:port of the admin HTTP API; empty disables it.
    AdminAddr string `koanf:"admin_addr"`
    Trace     bool   `koanf:"trace"`

    // Advertise announces the member right after joining.
    Advertise bool              `koanf:"advertise"`
    Metadata  map[string]string `koanf:"metadata"`
    // Channels are subscribed right after joining.
    Channels []string `koanf:"channels"`

    Logger  hclog.Logger   `koanf:"-"`
    Plugins []hooks.Plugin `koanf:"-"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
    return Config{
        Node: NodeConfig{
            Service: mesh.DefaultService,
            Cluster: mesh.DefaultCluster,
            Address: mesh.DefaultAddress,
        },
        Discovery: DiscoveryConfig{
            Kind:      "gossip",
            Bind:      ":7946",
            JoinRetry: 5 * time.Second,
            Seeds:     SeedsConfig{Kind: "static", DNSPort: 7946, Refresh: 5 * time.Second},
        },
        Transport: TransportConfig{Kind: "grpc"},
        Log:       LogConfig{Level: "info"},
        AdminAddr: ":17946",
    }
}

// Validate checks the enumerations; mesh.Config validates the rest.
func (c Config) Validate() error {
    switch c.Discovery.Kind {
    case "", "gossip", "mdns":
    default:
        return fmt.Errorf("bootstrap: unknown discovery kind %q", c.Discovery.Kind)
    }
    switch c.Discovery.Seeds.Kind {
    case "", "static", "dns", "file":
    default:
        return fmt.Errorf("bootstrap: unknown seeds kind %q", c.Discovery.Seeds.Kind)
    }
    switch c.Transport.Kind {
    case "", "grpc", "ws":
    default:
        return fmt.Errorf("bootstrap: unknown transport kind %q", c.Transport.Kind)
    }
    return nil
}

// Node is an assembled, not yet started, member with its collaborators.
type Node struct {
    Member *mesh.Member
    Admin  *admin.Server

    cfg    Config
    log    hclog.Logger
    gossip *gossip.Provider
}

func seeder(c SeedsConfig, log hclog.Logger) discovery.Seeder {
    switch c.Kind {
    case "dns":
        return seeds.DNS(seeds.DNSOptions{Names: seeds.Parse(c.DNSNames), Port: c.DNSPort, Refresh: c.Refresh, Logger: log})
    case "file":
        return seeds.File(seeds.FileOptions{Path: c.File, Env: c.Env, Refresh: c.Refresh})
    default:
        return seeds.Static(seeds.Parse(c.Static)...)
    }
}

// Build assembles a Node from cfg without starting it.
func Build(cfg Config) (*Node, error) {
    if err := cfg.Validate(); err != nil { return nil, err }
    log := cfg.Logger
    if log == nil { log = logutil.New(logutil.Options{Name: "mesh", Level: cfg.Log.Level, JSON: cfg.Log.JSON}) }
    metrics.Register()

    srvTLS, cliTLS, err := cfg.TLS.Pair()
    if err != nil { return nil, fmt.Errorf("bootstrap: tls: %w", err) }

    var tr transport.Factory
    switch cfg.Transport.Kind {
    case "ws":
        tr = ws.New(ws.Options{ServerTLS: srvTLS, ClientTLS: cliTLS, QueueSize: cfg.Transport.QueueSize, Logger: log})
    default:
        tr = mgrpc.New(mgrpc.Options{ServerTLS: srvTLS, ClientTLS: cliTLS, QueueSize: cfg.Transport.QueueSize, Logger: log})
    }

    var prov discovery.Provider
    var gp *gossip.Provider
    switch cfg.Discovery.Kind {
    case "mdns":
        prov = mdns.New(mdns.Options{Domain: cfg.Discovery.MDNSDomain, Interval: cfg.Discovery.MDNSInterval, Logger: log})
    default:
        id := cfg.Node.ID
        if id == "" { id = uuid.NewString(); cfg.Node.ID = id }
        g, err := gossip.New(gossip.Options{
            NodeID:    id,
            Bind:      cfg.Discovery.Bind,
            Advertise: cfg.Discovery.Advertise,
            Seeds:     seeder(cfg.Discovery.Seeds, log),
            JoinRetry: cfg.Discovery.JoinRetry,
            Logger:    log,
        })
        if err != nil { return nil, err }
        gp, prov = g, g
    }

    n := &Node{cfg: cfg, log: log, gossip: gp}
    reg := hooks.NewRegistry()
    for _, p := range cfg.Plugins {
        if err := reg.Use(p); err != nil { return nil, err }
    }
    m, err := mesh.New(mesh.Config{
        ID:        cfg.Node.ID,
        Service:   cfg.Node.Service,
        Cluster:   cfg.Node.Cluster,
        Address:   cfg.Node.Address,
        Port:      cfg.Node.Port,
        Provider:  prov,
        Transport: tr,
        Logger:    log,
        Hooks:     reg,
    })
    if err != nil { return nil, err }
    n.Member = m

    if cfg.AdminAddr != "" {
        n.Admin = admin.NewServer(cfg.AdminAddr, log)
        if srvTLS != nil { n.Admin.UseTLS(srvTLS) }
    }
    return n, nil
}

// Start brings the node up: discovery, join, subscriptions, advertisement
// and the admin API, in that order. A failure stops what was started.
func (n *Node) Start(ctx context.Context) (err error) {
    defer func() {
        if err != nil { _ = n.Close(context.Background()) }
    }()
    if n.gossip != nil {
        if err := n.gossip.Start(ctx); err != nil { return fmt.Errorf("bootstrap: gossip: %w", err) }
        n.log.Info("gossip started", "addr", n.gossip.LocalAddr())
    }
    if err := n.Member.Join(ctx); err != nil { return err }
    for _, ch := range n.cfg.Channels {
        ch = strings.TrimSpace(ch)
        if ch == "" { continue }
        if err := n.Member.Subscribe(ctx, ch); err != nil { return err }
    }
    if n.cfg.Advertise {
        if _, err := n.Member.StartAdvertise(ctx, n.cfg.Metadata); err != nil { return err }
    }
    if n.Admin != nil {
        if err := n.Admin.Start(ctx, n.Member); err != nil { return fmt.Errorf("bootstrap: admin: %w", err) }
    }
    return nil
}

// Close leaves the cluster and stops every collaborator, collecting errors.
func (n *Node) Close(ctx context.Context) error {
    var merr *multierror.Error
    if n.Member.State() == mesh.StateJoined {
        merr = multierror.Append(merr, n.Member.Leave(ctx))
    }
    if n.Admin != nil {
        merr = multierror.Append(merr, n.Admin.Stop(ctx))
    }
    if n.gossip != nil {
        merr = multierror.Append(merr, n.gossip.Stop())
    }
    return merr.ErrorOrNil()
}

// Run builds and starts a node. The caller must Close it.
func Run(ctx context.Context, cfg Config) (*Node, error) {
    n, err := Build(cfg)
    if err != nil { return nil, err }
    if err := n.Start(ctx); err != nil { return nil, err }
    return n, nil
}
