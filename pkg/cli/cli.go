// Package cli provides cobra commands to run a mesh node and to talk to a
// running one through its admin API.
package cli

import (
    "context"
    "fmt"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/hashicorp/go-hclog"
    "github.com/spf13/cobra"

    "github.com/amirimatin/go-mesh/pkg/admin"
    "github.com/amirimatin/go-mesh/pkg/bootstrap"
    "github.com/amirimatin/go-mesh/pkg/callback"
    "github.com/amirimatin/go-mesh/pkg/config"
    "github.com/amirimatin/go-mesh/pkg/internal/logutil"
    "github.com/amirimatin/go-mesh/pkg/mesh"
    "github.com/amirimatin/go-mesh/pkg/observability/tracing"
    tlsx "github.com/amirimatin/go-mesh/pkg/security/tlsconfig"
)

// AddAll attaches run/status/publish to root.
func AddAll(root *cobra.Command) {
    root.AddCommand(NewRunCmd())
    root.AddCommand(NewStatusCmd())
    root.AddCommand(NewPublishCmd())
}

// runFlagKeys maps run flags to configuration keys.
var runFlagKeys = map[string]string{
    "id":              "node.id",
    "service":         "node.service",
    "cluster":         "node.cluster",
    "address":         "node.address",
    "port":            "node.port",
    "discovery":       "discovery.kind",
    "gossip-bind":     "discovery.bind",
    "gossip-adv":      "discovery.advertise",
    "seeds-kind":      "discovery.seeds.kind",
    "join":            "discovery.seeds.static",
    "dns-names":       "discovery.seeds.dns_names",
    "dns-port":        "discovery.seeds.dns_port",
    "seeds-file":      "discovery.seeds.file",
    "seeds-env":       "discovery.seeds.env",
    "transport":       "transport.kind",
    "admin-addr":      "admin_addr",
    "advertise":       "advertise",
    "meta":            "metadata",
    "subscribe":       "channels",
    "log-level":       "log.level",
    "log-json":        "log.json",
    "trace":           "trace",
    "tls-enable":      "tls.enable",
    "tls-ca":          "tls.ca",
    "tls-cert":        "tls.cert",
    "tls-key":         "tls.key",
    "tls-skip-verify": "tls.skip_verify",
    "tls-server-name": "tls.server_name",
}

// NewRunCmd returns the "run" command used to start a node.
func NewRunCmd() *cobra.Command {
    var (
        cfgFile     string
        joinTimeout time.Duration
    )
    cmd := &cobra.Command{
        Use:   "run",
        Short: "Run a mesh node",
        RunE: func(cmd *cobra.Command, args []string) error {
            cfg, err := config.NewLoader(config.WithConfigFile(cfgFile), config.WithFlags(cmd.Flags(), runFlagKeys)).Load()
            if err != nil { return err }
            log := logutil.New(logutil.Options{Name: "meshctl", Level: cfg.Log.Level, JSON: cfg.Log.JSON})
            cfg.Logger = log

            ctx, cancel := signalContext()
            defer cancel()

            if cfg.Trace {
                shutdown, err := tracing.Setup(true)
                if err != nil {
                    log.Warn("tracing setup failed", "error", err)
                } else {
                    defer func() { _ = shutdown(context.Background()) }()
                }
            }

            node, err := bootstrap.Build(cfg)
            if err != nil { return err }
            go logEvents(ctx, node.Member, log)

            started := make(chan error, 1)
            done := callback.TimeoutErr(nil, joinTimeout, func(err error) { started <- err }, "start")
            go func() { done(node.Start(ctx)) }()
            if err := <-started; err != nil {
                _ = node.Close(context.Background())
                return err
            }

            log.Info("node running, press Ctrl+C to exit", "id", node.Member.ID(), "port", node.Member.Port())
            <-ctx.Done()
            closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
            defer closeCancel()
            return node.Close(closeCtx)
        },
    }
    f := cmd.Flags()
    f.StringVar(&cfgFile, "config", "", "path to a YAML config file")
    f.DurationVar(&joinTimeout, "join-timeout", 30*time.Second, "give up if the node has not started within this duration")
    f.String("id", "", "member id (random when empty)")
    f.String("service", mesh.DefaultService, "discovery service type")
    f.String("cluster", mesh.DefaultCluster, "cluster name")
    f.String("address", mesh.DefaultAddress, "publish socket bind address")
    f.Int("port", 0, "publish port (0 picks a free one)")
    f.String("discovery", "gossip", "discovery provider: gossip|mdns")
    f.String("gossip-bind", ":7946", "gossip bind addr (host:port)")
    f.String("gossip-adv", "", "gossip advertise addr (host:port, optional)")
    f.String("seeds-kind", "static", "seed source for gossip: static|dns|file")
    f.String("join", "", "comma-separated seed nodes (host:port), used by seeds-kind=static")
    f.String("dns-names", "", "comma-separated DNS names or SRV records (e.g., _mesh._tcp.example.com)")
    f.Int("dns-port", 7946, "port used for A/AAAA lookups")
    f.String("seeds-file", "", "path or glob to a file with seeds (one per line or CSV)")
    f.String("seeds-env", "", "ENV var name containing CSV seeds; overrides file when set")
    f.String("transport", "grpc", "pub/sub transport: grpc|ws")
    f.String("admin-addr", ":17946", "admin HTTP address (empty disables)")
    f.Bool("advertise", false, "advertise the member after joining")
    f.StringToString("meta", nil, "advertisement metadata (k=v,...)")
    f.StringSlice("subscribe", nil, "channels to subscribe after joining")
    f.String("log-level", "info", "log level: trace|debug|info|warn|error")
    f.Bool("log-json", false, "log in JSON")
    f.Bool("trace", false, "enable OpenTelemetry stdout tracing (dev)")
    addTLSFlags(cmd)
    return cmd
}

func addTLSFlags(cmd *cobra.Command) {
    f := cmd.Flags()
    f.Bool("tls-enable", false, "enable mTLS")
    f.String("tls-ca", "", "path to CA cert (PEM)")
    f.String("tls-cert", "", "path to certificate (PEM)")
    f.String("tls-key", "", "path to private key (PEM)")
    f.Bool("tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
    f.String("tls-server-name", "", "expected server name (for TLS validation)")
}

func clientTLS(cmd *cobra.Command) (*admin.Client, time.Duration, error) {
    f := cmd.Flags()
    timeout, _ := f.GetDuration("timeout")
    c := admin.NewClient(timeout)
    enable, _ := f.GetBool("tls-enable")
    if !enable { return c, timeout, nil }
    o := tlsx.Options{Enable: true}
    o.CAFile, _ = f.GetString("tls-ca")
    o.CertFile, _ = f.GetString("tls-cert")
    o.KeyFile, _ = f.GetString("tls-key")
    o.InsecureSkipVerify, _ = f.GetBool("tls-skip-verify")
    o.ServerName, _ = f.GetString("tls-server-name")
    cfg, err := o.Client()
    if err != nil { return nil, 0, fmt.Errorf("tls client config: %w", err) }
    return c.UseTLS(cfg), timeout, nil
}

// NewStatusCmd returns the "status" command.
func NewStatusCmd() *cobra.Command {
    var addr string
    cmd := &cobra.Command{
        Use:   "status",
        Short: "Fetch a node's status as JSON",
        RunE: func(cmd *cobra.Command, args []string) error {
            client, timeout, err := clientTLS(cmd)
            if err != nil { return err }
            ctx, cancel := context.WithTimeout(context.Background(), timeout)
            defer cancel()
            data, err := client.GetStatusRaw(ctx, addr)
            if err != nil { return fmt.Errorf("status error: %w", err) }
            out := cmd.OutOrStdout()
            _, _ = out.Write(data)
            if len(data) == 0 || data[len(data)-1] != '\n' { _, _ = out.Write([]byte("\n")) }
            return nil
        },
    }
    cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:17946", "admin address of a node (host:port)")
    cmd.Flags().Duration("timeout", 3*time.Second, "request timeout")
    addTLSFlags(cmd)
    return cmd
}

// NewPublishCmd returns the "publish" command.
func NewPublishCmd() *cobra.Command {
    var addr string
    cmd := &cobra.Command{
        Use:   "publish <channel> <payload>",
        Short: "Publish a message through a running node",
        Args:  cobra.ExactArgs(2),
        RunE: func(cmd *cobra.Command, args []string) error {
            client, timeout, err := clientTLS(cmd)
            if err != nil { return err }
            ctx, cancel := context.WithTimeout(context.Background(), timeout)
            defer cancel()
            if err := client.Publish(ctx, addr, args[0], args[1]); err != nil { return err }
            fmt.Fprintln(cmd.OutOrStdout(), "ok")
            return nil
        },
    }
    cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:17946", "admin address of a node (host:port)")
    cmd.Flags().Duration("timeout", 3*time.Second, "request timeout")
    addTLSFlags(cmd)
    return cmd
}

func logEvents(ctx context.Context, m *mesh.Member, log hclog.Logger) {
    for ev := range m.Watch(ctx) {
        switch e := ev.(type) {
        case mesh.NodeUpEvent:
            log.Info("node up", "peer", e.Peer.ID, "address", e.Peer.Address, "port", e.Peer.Port)
        case mesh.NodeDownEvent:
            log.Info("node down", "peer", e.Peer.ID)
        case mesh.MessageEvent:
            log.Info("message", "channel", e.Channel, "payload", e.Payload)
        case mesh.ErrorEvent:
            log.Warn("background error", "op", e.Op, "error", e.Err)
        default:
            log.Debug("event", "type", fmt.Sprintf("%T", ev))
        }
    }
}

func signalContext() (context.Context, context.CancelFunc) {
    return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
