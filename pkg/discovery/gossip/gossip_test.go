package gossip

import (
    "context"
    "encoding/json"
    "strings"
    "sync"
    "testing"
    "time"

    "github.com/benbjohnson/clock"
    "github.com/hashicorp/go-hclog"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/amirimatin/go-mesh/pkg/discovery"
    "github.com/amirimatin/go-mesh/pkg/discovery/seeds"
)

type recorder struct {
    mu   sync.Mutex
    up   []discovery.Descriptor
    down []discovery.Descriptor
}

func (r *recorder) PeerUp(d discovery.Descriptor)   { r.mu.Lock(); r.up = append(r.up, d); r.mu.Unlock() }
func (r *recorder) PeerDown(d discovery.Descriptor) { r.mu.Lock(); r.down = append(r.down, d); r.mu.Unlock() }
func (r *recorder) counts() (int, int) { r.mu.Lock(); defer r.mu.Unlock(); return len(r.up), len(r.down) }

func metaFor(t *testing.T, ads map[string]adRecord) []byte {
    buf, err := json.Marshal(ads)
    require.NoError(t, err)
    return buf
}

func TestBrowserApply_Diffs(t *testing.T) {
    rec := &recorder{}
    b := &browser{serviceType: "svc", n: rec, seen: map[string]discovery.Descriptor{}, started: true}
    ad := adRecord{Name: "peer-1", Port: 7000, TXT: map[string]string{discovery.ClusterKey: "default"}}

    b.apply(nodeEvent{name: "n1", addr: "10.0.0.1", meta: metaFor(t, map[string]adRecord{"other": ad})})
    assert.Empty(t, rec.up)

    b.apply(nodeEvent{name: "n1", addr: "10.0.0.1", meta: metaFor(t, map[string]adRecord{"svc": ad})})
    require.Len(t, rec.up, 1)
    assert.Equal(t, "peer-1", rec.up[0].PeerID)
    assert.Equal(t, "default", rec.up[0].ClusterTag)
    assert.Equal(t, "10.0.0.1", rec.up[0].Address)
    assert.Equal(t, 7000, rec.up[0].Port)

    // identical update is a no-op
    b.apply(nodeEvent{name: "n1", addr: "10.0.0.1", meta: metaFor(t, map[string]adRecord{"svc": ad})})
    assert.Len(t, rec.up, 1)

    // port change re-announces
    ad.Port = 7001
    b.apply(nodeEvent{name: "n1", addr: "10.0.0.1", meta: metaFor(t, map[string]adRecord{"svc": ad})})
    assert.Len(t, rec.up, 2)
    assert.Len(t, rec.down, 1)

    // withdrawn advertisement
    b.apply(nodeEvent{name: "n1", addr: "10.0.0.1"})
    assert.Len(t, rec.down, 2)

    // leave of an unseen node is ignored
    b.apply(nodeEvent{name: "n2", left: true})
    assert.Len(t, rec.down, 2)
}

func TestNodeMeta_Limit(t *testing.T) {
    p, err := New(Options{NodeID: "n", Bind: "127.0.0.1:0"})
    require.NoError(t, err)
    require.NoError(t, p.setAd("svc", &adRecord{Name: "n", Port: 1}))
    d := &nodeDelegate{p: p}
    assert.NotEmpty(t, d.NodeMeta(512))
    assert.Nil(t, d.NodeMeta(1))

    big := adRecord{Name: "n", TXT: map[string]string{"k": strings.Repeat("x", 600)}}
    assert.ErrorIs(t, p.setAd("svc2", &big), ErrMetaTooLarge)
    assert.NotContains(t, p.ads, "svc2")
}

func TestNew_Validates(t *testing.T) {
    _, err := New(Options{Bind: "127.0.0.1:0"})
    assert.Error(t, err)
    _, err = New(Options{NodeID: "n"})
    assert.Error(t, err)
}

func startProvider(t *testing.T, ctx context.Context, id string, seed discovery.Seeder) *Provider {
    t.Helper()
    p, err := New(Options{
        NodeID: id, Bind: "127.0.0.1:0", Seeds: seed,
        ProbeInterval: 100 * time.Millisecond, SuspicionMult: 2,
        Logger: hclog.NewNullLogger(),
    })
    require.NoError(t, err)
    require.NoError(t, p.Start(ctx))
    t.Cleanup(func() { _ = p.Stop() })
    return p
}

func TestProvider_AdvertiseBrowse(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
    defer cancel()

    p1 := startProvider(t, ctx, "g1", nil)
    require.NotEmpty(t, p1.LocalAddr())
    p2 := startProvider(t, ctx, "g2", seeds.Static(p1.LocalAddr()))
    require.Eventually(t, func() bool { return len(p1.Members()) == 2 }, 5*time.Second, 50*time.Millisecond)

    rec := &recorder{}
    br, err := p2.Browse("svc", rec)
    require.NoError(t, err)
    require.NoError(t, br.Start(ctx))
    defer br.Stop()

    ad, err := p1.Advertise("svc", 9000, discovery.Banner{Name: "member-1", TXT: map[string]string{discovery.ClusterKey: "default"}})
    require.NoError(t, err)
    require.NoError(t, ad.Start(ctx))
    require.Eventually(t, func() bool { up, _ := rec.counts(); return up == 1 }, 5*time.Second, 50*time.Millisecond)
    rec.mu.Lock()
    assert.Equal(t, "member-1", rec.up[0].PeerID)
    assert.Equal(t, 9000, rec.up[0].Port)
    assert.Equal(t, "127.0.0.1", rec.up[0].Address)
    rec.mu.Unlock()

    require.NoError(t, ad.Stop())
    require.Eventually(t, func() bool { _, down := rec.counts(); return down == 1 }, 5*time.Second, 50*time.Millisecond)
    assert.GreaterOrEqual(t, p1.HealthScore(), 0)
}

type lateSeeds struct {
    mu    sync.Mutex
    addrs []string
}

func (s *lateSeeds) set(addrs ...string) { s.mu.Lock(); s.addrs = addrs; s.mu.Unlock() }
func (s *lateSeeds) Seeds() []string     { s.mu.Lock(); defer s.mu.Unlock(); return append([]string(nil), s.addrs...) }

func TestProvider_RetryJoinFollowsClock(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
    defer cancel()

    p1 := startProvider(t, ctx, "r1", nil)
    src := &lateSeeds{}
    clk := clock.NewMock()
    p2, err := New(Options{
        NodeID: "r2", Bind: "127.0.0.1:0", Seeds: src, JoinRetry: time.Minute,
        ProbeInterval: 100 * time.Millisecond, SuspicionMult: 2,
        Logger: hclog.NewNullLogger(), Clock: clk,
    })
    require.NoError(t, err)
    require.NoError(t, p2.Start(ctx))
    defer p2.Stop()

    src.set(p1.LocalAddr())
    time.Sleep(200 * time.Millisecond)
    assert.Len(t, p2.Members(), 1)

    clk.Add(time.Minute)
    require.Eventually(t, func() bool { return len(p2.Members()) == 2 }, 5*time.Second, 50*time.Millisecond)
}
