// Package mesh implements a cluster member: it joins a named cluster through
// a discovery provider, tracks the peers it finds and exchanges
// channel-addressed messages with them over a publish/subscribe transport.
// Extension points are exposed through a hooks.Registry and every state
// change is reported on an event Bus.
package mesh

import (
    "context"
    "fmt"
    "sync"

    "github.com/benbjohnson/clock"
    "github.com/hashicorp/go-hclog"
    "github.com/hashicorp/go-multierror"
    "go.opentelemetry.io/otel/attribute"

    "github.com/amirimatin/go-mesh/pkg/channel"
    "github.com/amirimatin/go-mesh/pkg/discovery"
    "github.com/amirimatin/go-mesh/pkg/hooks"
    "github.com/amirimatin/go-mesh/pkg/internal/logutil"
    "github.com/amirimatin/go-mesh/pkg/observability/metrics"
    "github.com/amirimatin/go-mesh/pkg/observability/tracing"
    "github.com/amirimatin/go-mesh/pkg/topology"
    "github.com/amirimatin/go-mesh/pkg/transport"
)

type adState struct {
    handle discovery.Advertisement
    info   AdInfo
    active bool
    busy   bool
}

// Member is one participant of a cluster. All methods are safe for
// concurrent use.
type Member struct {
    cfg   Config
    log   hclog.Logger
    clk   clock.Clock
    hooks *hooks.Registry
    bus   *Bus
    subs  *channel.Subscriptions

    mu     sync.Mutex
    state  State
    ident  Identity
    topo   *topology.Store
    pub    transport.PubSocket
    sub    transport.SubSocket
    bridge *bridge
    ad     adState
}

// New validates cfg and returns an idle member.
func New(cfg Config) (*Member, error) {
    cfg = cfg.WithDefaults()
    if err := cfg.Validate(); err != nil { return nil, err }
    log := cfg.Logger
    if log == nil { log = logutil.New(logutil.Options{Name: "mesh"}) }
    clk := cfg.Clock
    if clk == nil { clk = clock.New() }
    reg := cfg.Hooks
    if reg == nil { reg = hooks.NewRegistry() }
    m := &Member{
        cfg:   cfg,
        log:   log.With("id", cfg.ID, "cluster", cfg.Cluster),
        clk:   clk,
        hooks: reg,
        bus:   NewBus(),
        subs:  channel.NewSubscriptions(),
        topo:  topology.New(cfg.Cluster),
    }
    m.ident = m.configured()
    return m, nil
}

func (m *Member) configured() Identity {
    return Identity{ID: m.cfg.ID, Service: m.cfg.Service, Cluster: m.cfg.Cluster, Address: m.cfg.Address, Port: m.cfg.Port}
}

// Use registers a plugin's hook handlers.
func (m *Member) Use(p hooks.Plugin) error { return m.hooks.Use(p) }

// Hooks exposes the registry the member runs its extension points on.
func (m *Member) Hooks() *hooks.Registry { return m.hooks }

// Events returns the member's event bus.
func (m *Member) Events() *Bus { return m.bus }

// Watch is a shorthand for Events().Subscribe(ctx).
func (m *Member) Watch(ctx context.Context) <-chan Event { return m.bus.Subscribe(ctx) }

func (m *Member) ID() string { m.mu.Lock(); defer m.mu.Unlock(); return m.ident.ID }

func (m *Member) Cluster() string { m.mu.Lock(); defer m.mu.Unlock(); return m.ident.Cluster }

func (m *Member) Service() string { m.mu.Lock(); defer m.mu.Unlock(); return m.ident.Service }

// Port returns the resolved publish port, or the configured one before the
// first join.
func (m *Member) Port() int { m.mu.Lock(); defer m.mu.Unlock(); return m.ident.Port }

func (m *Member) State() State { m.mu.Lock(); defer m.mu.Unlock(); return m.state }

// InCluster reports whether the member is joined.
func (m *Member) InCluster() bool { return m.State() == StateJoined }

func (m *Member) Advertising() bool { m.mu.Lock(); defer m.mu.Unlock(); return m.ad.active }

// Topology returns copies of the currently tracked peers.
func (m *Member) Topology() []topology.PeerInfo {
    m.mu.Lock()
    topo := m.topo
    m.mu.Unlock()
    return topo.List()
}

// Subscriptions returns the subscribed channels in lexical order.
func (m *Member) Subscriptions() []string { return m.subs.List() }

// begin moves the member from want to next, failing with ErrInvalidState
// when another transition is pending.
func (m *Member) begin(want, next State, op string) (Identity, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.state != want {
        if op == "leave" && m.state == StateIdle { return Identity{}, ErrNotJoined }
        return Identity{}, fmt.Errorf("%w: %s while %s", ErrInvalidState, op, m.state)
    }
    m.state = next
    return m.ident, nil
}

func (m *Member) setState(s State) { m.mu.Lock(); m.state = s; m.mu.Unlock() }

func result(err error) string {
    if err != nil { return "error" }
    return "ok"
}

// Join resolves the publish port, binds the publish socket, connects a
// fresh subscribe socket to discovery and moves the member to Joined. On
// failure every resource acquired by this attempt is released and the member
// is Idle again.
func (m *Member) Join(ctx context.Context) (err error) {
    if _, err := m.begin(StateIdle, StateJoining, "join"); err != nil { return err }
    ctx, end := tracing.StartSpan(ctx, "mesh.join", attribute.String("cluster", m.cfg.Cluster))
    defer end()
    defer func() {
        metrics.Transitions.WithLabelValues("join", result(err)).Inc()
        tracing.RecordError(ctx, err)
    }()

    ident, before, err := runHook(ctx, m.hooks, hooks.ProviderCreateBefore, m.configured())
    if err != nil { m.setState(StateIdle); return err }
    if before.Prevented() {
        m.setState(StateIdle)
        return nil
    }

    if ident.Port == 0 {
        port, perr := probePort(ident.Address)
        if perr != nil {
            m.setState(StateIdle)
            return fmt.Errorf("%w: probe free port on %s: %v", ErrPortBind, ident.Address, perr)
        }
        ident.Port = port
    }

    pub := m.cfg.Transport.NewPub()
    if berr := pub.Bind(ctx, ident.Address, ident.Port); berr != nil {
        _ = pub.Close()
        m.setState(StateIdle)
        return fmt.Errorf("%w: %s:%d: %v", ErrPortBind, ident.Address, ident.Port, berr)
    }

    sub := m.cfg.Transport.NewSub()
    sub.OnFrame(m.onFrame)
    topo := topology.New(ident.Cluster)
    br := &bridge{
        provider: m.cfg.Provider,
        service:  ident.Service,
        topo:     topo,
        sub:      sub,
        hooks:    m.hooks,
        bus:      m.bus,
        clk:      m.clk,
        log:      m.log,
    }
    rollback := func() {
        _ = br.stop()
        _ = sub.Close()
        _ = pub.Close()
        topo.Clear()
        metrics.TopologyPeers.Set(0)
        m.setState(StateIdle)
    }

    m.mu.Lock()
    m.ident = ident
    m.topo = topo
    m.mu.Unlock()

    if derr := br.start(ctx); derr != nil {
        rollback()
        return fmt.Errorf("%w: browse %s: %v", ErrDiscovery, ident.Service, derr)
    }

    _, after, err := runHook(ctx, m.hooks, hooks.ProviderCreateAfter, ident)
    if err != nil { rollback(); return err }

    m.mu.Lock()
    m.pub, m.sub, m.bridge = pub, sub, br
    m.state = StateJoined
    m.mu.Unlock()

    m.log.Info("joined", "service", ident.Service, "address", ident.Address, "port", ident.Port)
    if before.Emit() && after.Emit() { m.bus.Emit(JoinEvent{Cluster: ident.Cluster}) }
    return nil
}

// Leave stops discovery, withdraws any advertisement, closes both sockets
// and clears the topology and subscriptions. Teardown errors are collected
// and returned once the member is Idle.
func (m *Member) Leave(ctx context.Context) (err error) {
    ident, err := m.begin(StateJoined, StateLeaving, "leave")
    if err != nil { return err }
    ctx, end := tracing.StartSpan(ctx, "mesh.leave", attribute.String("cluster", ident.Cluster))
    defer end()
    defer func() {
        metrics.Transitions.WithLabelValues("leave", result(err)).Inc()
        tracing.RecordError(ctx, err)
    }()

    _, before, err := runHook(ctx, m.hooks, hooks.ProviderDestroyBefore, ident)
    if err != nil { m.setState(StateJoined); return err }
    if before.Prevented() {
        m.setState(StateJoined)
        return nil
    }

    m.mu.Lock()
    br, pub, sub := m.bridge, m.pub, m.sub
    m.mu.Unlock()

    var merr *multierror.Error
    if serr := br.stop(); serr != nil {
        merr = multierror.Append(merr, fmt.Errorf("%w: stop browse: %v", ErrDiscovery, serr))
    }
    if info, stopped, aerr := m.withdraw(); aerr != nil {
        merr = multierror.Append(merr, aerr)
    } else if stopped {
        m.bus.Emit(AdvertiseStopEvent{Info: info})
    }
    if cerr := sub.Close(); cerr != nil {
        merr = multierror.Append(merr, fmt.Errorf("%w: close sub: %v", ErrTransport, cerr))
    }
    if cerr := pub.Close(); cerr != nil {
        merr = multierror.Append(merr, fmt.Errorf("%w: close pub: %v", ErrTransport, cerr))
    }

    m.mu.Lock()
    dropped := m.topo.Clear()
    m.subs.Clear()
    m.pub, m.sub, m.bridge = nil, nil, nil
    m.state = StateIdle
    m.mu.Unlock()
    metrics.TopologyPeers.Set(0)
    metrics.Subscriptions.Set(0)
    m.log.Info("left", "dropped_peers", dropped)

    emit := before.Emit()
    _, after, herr := runHook(ctx, m.hooks, hooks.ProviderDestroyAfter, ident)
    if herr != nil {
        merr = multierror.Append(merr, herr)
    } else if !after.Emit() {
        emit = false
    }
    if emit { m.bus.Emit(LeaveEvent{Cluster: ident.Cluster}) }
    return merr.ErrorOrNil()
}

// joined returns the live sockets, or ErrNotJoined.
func (m *Member) joined() (transport.PubSocket, transport.SubSocket, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.state != StateJoined { return nil, nil, ErrNotJoined }
    return m.pub, m.sub, nil
}
