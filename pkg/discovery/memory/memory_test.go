package memory

import (
    "context"
    "errors"
    "sync"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/amirimatin/go-mesh/pkg/discovery"
)

type recorder struct {
    mu   sync.Mutex
    up   []discovery.Descriptor
    down []discovery.Descriptor
}

func (r *recorder) PeerUp(d discovery.Descriptor)   { r.mu.Lock(); r.up = append(r.up, d); r.mu.Unlock() }
func (r *recorder) PeerDown(d discovery.Descriptor) { r.mu.Lock(); r.down = append(r.down, d); r.mu.Unlock() }

func banner(name string) discovery.Banner {
    return discovery.Banner{Name: name, TXT: map[string]string{discovery.ClusterKey: "default", "k": "v"}}
}

func TestAdvertiseThenBrowseReplays(t *testing.T) {
    ctx := context.Background()
    net := NewNetwork()
    ad, err := net.Provider("10.0.0.1").Advertise("svc", 7000, banner("a"))
    require.NoError(t, err)
    require.NoError(t, ad.Start(ctx))

    rec := &recorder{}
    br, err := net.Provider("10.0.0.2").Browse("svc", rec)
    require.NoError(t, err)
    require.NoError(t, br.Start(ctx))

    require.Len(t, rec.up, 1)
    d := rec.up[0]
    assert.Equal(t, "a", d.PeerID)
    assert.Equal(t, "default", d.ClusterTag)
    assert.Equal(t, "10.0.0.1", d.Address)
    assert.Equal(t, 7000, d.Port)
    assert.Equal(t, map[string]string{"k": "v"}, d.Metadata)

    require.NoError(t, ad.Stop())
    require.Len(t, rec.down, 1)
    assert.Equal(t, 0, net.Advertised("svc"))
}

func TestServiceTypesAreIsolated(t *testing.T) {
    ctx := context.Background()
    net := NewNetwork()
    rec := &recorder{}
    br, _ := net.Provider("h").Browse("svc", rec)
    require.NoError(t, br.Start(ctx))
    ad, _ := net.Provider("h").Advertise("other", 1, banner("a"))
    require.NoError(t, ad.Start(ctx))
    assert.Empty(t, rec.up)
}

func TestBrowserStopIsFinal(t *testing.T) {
    ctx := context.Background()
    net := NewNetwork()
    rec := &recorder{}
    br, _ := net.Provider("h").Browse("svc", rec)
    require.NoError(t, br.Start(ctx))
    require.NoError(t, br.Stop())

    ad, _ := net.Provider("h").Advertise("svc", 1, banner("a"))
    require.NoError(t, ad.Start(ctx))
    require.NoError(t, ad.Stop())
    assert.Empty(t, rec.up)
    assert.Empty(t, rec.down)
    assert.ErrorIs(t, br.Start(ctx), ErrStopped)
}

func TestInjectedFailures(t *testing.T) {
    ctx := context.Background()
    net := NewNetwork()
    p := net.Provider("h")
    boom := errors.New("boom")
    p.FailBrowse(boom)
    br, _ := p.Browse("svc", &recorder{})
    assert.ErrorIs(t, br.Start(ctx), boom)

    p.FailAdvertise(boom)
    ad, _ := p.Advertise("svc", 1, banner("a"))
    assert.ErrorIs(t, ad.Start(ctx), boom)
    assert.Equal(t, 0, net.Advertised("svc"))
}
