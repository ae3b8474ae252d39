package mesh

import (
    "context"
    "fmt"

    "go.opentelemetry.io/otel/attribute"

    "github.com/amirimatin/go-mesh/pkg/discovery"
    "github.com/amirimatin/go-mesh/pkg/hooks"
    "github.com/amirimatin/go-mesh/pkg/observability/tracing"
)

// banner builds the advertised record: the metadata merged over the reserved
// cluster key, which always keeps the member's cluster.
func banner(ident Identity, metadata map[string]string) discovery.Banner {
    txt := make(map[string]string, len(metadata)+1)
    for k, v := range metadata { txt[k] = v }
    txt[discovery.ClusterKey] = ident.Cluster
    return discovery.Banner{Name: ident.ID, TXT: txt}
}

// StartAdvertise announces the member to the cluster with the given metadata.
func (m *Member) StartAdvertise(ctx context.Context, metadata map[string]string) (info AdInfo, err error) {
    m.mu.Lock()
    switch {
    case m.state != StateJoined:
        m.mu.Unlock()
        return AdInfo{}, ErrNotJoined
    case m.ad.active || m.ad.busy:
        m.mu.Unlock()
        return AdInfo{}, ErrAlreadyAdvertising
    }
    m.ad.busy = true
    ident := m.ident
    m.mu.Unlock()
    defer func() {
        if err != nil {
            m.mu.Lock(); m.ad.busy = false; m.mu.Unlock()
        }
    }()

    ctx, end := tracing.StartSpan(ctx, "mesh.advertise", attribute.String("service", ident.Service))
    defer end()
    defer func() { tracing.RecordError(ctx, err) }()

    info = AdInfo{Service: ident.Service, Port: ident.Port, Banner: banner(ident, metadata)}
    info, out, err := runHook(ctx, m.hooks, hooks.ProviderAnnounce, info)
    if err != nil { return AdInfo{}, err }
    if out.Prevented() {
        m.mu.Lock(); m.ad.busy = false; m.mu.Unlock()
        return info.clone(), nil
    }
    info = info.clone()
    if info.Banner.TXT == nil { info.Banner.TXT = make(map[string]string, 1) }
    info.Banner.TXT[discovery.ClusterKey] = ident.Cluster

    h, err := m.cfg.Provider.Advertise(info.Service, info.Port, info.Banner)
    if err != nil { return AdInfo{}, fmt.Errorf("%w: advertise %s: %v", ErrDiscovery, info.Service, err) }
    if serr := h.Start(ctx); serr != nil {
        _ = h.Stop()
        return AdInfo{}, fmt.Errorf("%w: start advertisement: %v", ErrDiscovery, serr)
    }

    m.mu.Lock()
    if m.state != StateJoined {
        m.mu.Unlock()
        _ = h.Stop()
        return AdInfo{}, ErrNotJoined
    }
    m.ad = adState{handle: h, info: info, active: true}
    m.mu.Unlock()

    m.log.Info("advertising", "service", info.Service, "port", info.Port)
    if out.Emit() { m.bus.Emit(AdvertiseStartEvent{Info: info.clone()}) }
    return info.clone(), nil
}

// StopAdvertise withdraws the active advertisement and returns its info.
func (m *Member) StopAdvertise(ctx context.Context) (AdInfo, error) {
    _, end := tracing.StartSpan(ctx, "mesh.unadvertise")
    defer end()
    info, stopped, err := m.withdraw()
    if !stopped { return AdInfo{}, ErrNotAdvertising }
    if err != nil { return info, err }
    m.log.Info("advertising stopped", "service", info.Service)
    m.bus.Emit(AdvertiseStopEvent{Info: info.clone()})
    return info, nil
}

// withdraw stops the active advertisement, if any. stopped reports whether
// one was active.
func (m *Member) withdraw() (info AdInfo, stopped bool, err error) {
    m.mu.Lock()
    if !m.ad.active {
        m.mu.Unlock()
        return AdInfo{}, false, nil
    }
    h, info := m.ad.handle, m.ad.info
    m.ad = adState{}
    m.mu.Unlock()
    if serr := h.Stop(); serr != nil {
        return info, true, fmt.Errorf("%w: stop advertisement: %v", ErrDiscovery, serr)
    }
    return info, true, nil
}

// Advertisement returns the active advertisement.
func (m *Member) Advertisement() (AdInfo, bool) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if !m.ad.active { return AdInfo{}, false }
    return m.ad.info.clone(), true
}
