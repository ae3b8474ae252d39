package mesh

import (
    "context"
    "errors"
    "fmt"
    "sync"

    "github.com/benbjohnson/clock"
    "github.com/hashicorp/go-hclog"

    "github.com/amirimatin/go-mesh/pkg/discovery"
    "github.com/amirimatin/go-mesh/pkg/hooks"
    "github.com/amirimatin/go-mesh/pkg/observability/metrics"
    "github.com/amirimatin/go-mesh/pkg/topology"
    "github.com/amirimatin/go-mesh/pkg/transport"
)

var errBridgeStopped = errors.New("mesh: discovery bridge stopped")

// bridge turns browse notifications into topology changes, subscriber
// connections and node events.
type bridge struct {
    provider discovery.Provider
    service  string
    topo     *topology.Store
    sub      transport.SubSocket
    hooks    *hooks.Registry
    bus      *Bus
    clk      clock.Clock
    log      hclog.Logger

    mu      sync.Mutex
    browser discovery.Browser
    stopped bool
}

func (b *bridge) start(ctx context.Context) error {
    br, err := b.provider.Browse(b.service, b)
    if err != nil { return err }
    b.mu.Lock()
    if b.stopped {
        b.mu.Unlock()
        _ = br.Stop()
        return errBridgeStopped
    }
    b.browser = br
    b.mu.Unlock()
    return br.Start(ctx)
}

// stop unregisters from discovery. Once it returns the topology is no
// longer mutated by notifications.
func (b *bridge) stop() error {
    b.mu.Lock()
    if b.stopped { b.mu.Unlock(); return nil }
    b.stopped = true
    br := b.browser
    b.mu.Unlock()
    if br == nil { return nil }
    return br.Stop()
}

func (b *bridge) active() bool {
    b.mu.Lock(); defer b.mu.Unlock()
    return !b.stopped
}

func (b *bridge) PeerUp(d discovery.Descriptor) {
    if d.ClusterTag != b.topo.Cluster() || d.PeerID == "" { return }
    if !b.active() || b.topo.Has(d.PeerID) { return }

    // service.up precedes provider.up for the first peer. If that peer is
    // then rejected, service.down keeps the pair balanced.
    first := b.topo.Len() == 0
    if first { b.serviceHook(hooks.ServiceUp, 1) }
    peer := topology.PeerInfo{ID: d.PeerID, Cluster: d.ClusterTag, Address: d.Address, Port: d.Port, JoinedAt: b.clk.Now(), Metadata: d.Metadata}
    peer, out, err := runHook(context.Background(), b.hooks, hooks.ProviderUp, peer)
    if err != nil {
        b.bus.Emit(ErrorEvent{Op: "node_up", Err: err})
        if first { b.serviceHook(hooks.ServiceDown, 0) }
        return
    }
    if out.Prevented() {
        if first { b.serviceHook(hooks.ServiceDown, 0) }
        return
    }

    b.mu.Lock()
    if b.stopped { b.mu.Unlock(); return }
    added := b.topo.Add(peer)
    n := b.topo.Len()
    b.mu.Unlock()
    if !added {
        if first { b.serviceHook(hooks.ServiceDown, 0) }
        return
    }
    metrics.TopologyPeers.Set(float64(n))
    metrics.NodeEvents.WithLabelValues("up").Inc()
    b.log.Debug("peer up", "peer", peer.ID, "address", peer.Address, "port", peer.Port)

    if err := b.sub.Connect(peer.Address, peer.Port); err != nil {
        b.bus.Emit(ErrorEvent{Op: "connect", Err: fmt.Errorf("%w: connect %s at %s:%d: %v", ErrTransport, peer.ID, peer.Address, peer.Port, err)})
    }
    if out.Emit() { b.bus.Emit(NodeUpEvent{Peer: peer.Clone()}) }
}

func (b *bridge) PeerDown(d discovery.Descriptor) {
    if !b.active() { return }
    peer, ok := b.topo.Get(d.PeerID)
    if !ok { return }

    _, out, err := runHook(context.Background(), b.hooks, hooks.ProviderDown, peer)
    if err != nil {
        b.bus.Emit(ErrorEvent{Op: "node_down", Err: err})
        return
    }
    if out.Prevented() { return }

    b.mu.Lock()
    if b.stopped { b.mu.Unlock(); return }
    removed, ok := b.topo.Remove(d.PeerID)
    n := b.topo.Len()
    b.mu.Unlock()
    if !ok { return }
    metrics.TopologyPeers.Set(float64(n))
    metrics.NodeEvents.WithLabelValues("down").Inc()
    b.log.Debug("peer down", "peer", removed.ID)

    if err := b.sub.Disconnect(removed.Address, removed.Port); err != nil {
        b.bus.Emit(ErrorEvent{Op: "disconnect", Err: fmt.Errorf("%w: disconnect %s: %v", ErrTransport, removed.ID, err)})
    }
    if out.Emit() { b.bus.Emit(NodeDownEvent{Peer: removed}) }
    if n == 0 { b.serviceHook(hooks.ServiceDown, n) }
}

func (b *bridge) serviceHook(name hooks.Name, peers int) {
    info := ServiceInfo{Service: b.service, Cluster: b.topo.Cluster(), Peers: peers}
    if _, _, err := runHook(context.Background(), b.hooks, name, info); err != nil {
        b.bus.Emit(ErrorEvent{Op: string(name), Err: err})
    }
}
