package topology

import (
    "fmt"
    "math/rand"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func peer(id, cluster string) PeerInfo {
    return PeerInfo{ID: id, Cluster: cluster, Address: "127.0.0.1", Port: 9000, JoinedAt: time.Unix(10, 0).UTC(), Metadata: map[string]string{"ver": "1"}}
}

func TestStore_AddFiltersClusterAndDuplicates(t *testing.T) {
    s := New("default")
    assert.True(t, s.Add(peer("n1", "default")))
    assert.False(t, s.Add(peer("n1", "default")))
    assert.False(t, s.Add(peer("n2", "other")))
    assert.False(t, s.Add(PeerInfo{Cluster: "default"}))
    assert.Equal(t, 1, s.Len())
    assert.False(t, s.Has("n2"))
}

func TestStore_RemoveReturnsRecord(t *testing.T) {
    s := New("default")
    s.Add(peer("n1", "default"))
    p, ok := s.Remove("n1")
    require.True(t, ok)
    assert.Equal(t, "n1", p.ID)
    _, ok = s.Remove("n1")
    assert.False(t, ok)
}

func TestStore_CopiesDoNotAlias(t *testing.T) {
    s := New("default")
    in := peer("n1", "default")
    s.Add(in)
    in.Metadata["ver"] = "changed"

    got, ok := s.Get("n1")
    require.True(t, ok)
    assert.Equal(t, "1", got.Metadata["ver"])

    got.Metadata["ver"] = "mutated"
    list := s.List()
    require.Len(t, list, 1)
    assert.Equal(t, "1", list[0].Metadata["ver"])
}

func TestStore_Convergence(t *testing.T) {
    s := New("default")
    rng := rand.New(rand.NewSource(7))
    tracked := map[string]bool{}
    accepted, removed := 0, 0
    for i := 0; i < 500; i++ {
        id := fmt.Sprintf("n%d", rng.Intn(20))
        cluster := "default"
        if rng.Intn(5) == 0 { cluster = "other" }
        if rng.Intn(2) == 0 {
            if s.Add(peer(id, cluster)) {
                accepted++
                tracked[id] = true
            }
        } else if _, ok := s.Remove(id); ok {
            removed++
            delete(tracked, id)
        }
    }
    assert.Equal(t, accepted-removed, s.Len())
    for _, p := range s.List() {
        assert.Equal(t, "default", p.Cluster)
        assert.True(t, tracked[p.ID])
    }
}

func TestStore_SnapshotRestore(t *testing.T) {
    s := New("default")
    s.Add(peer("n2", "default"))
    s.Add(peer("n1", "default"))
    snap, err := s.Snapshot()
    require.NoError(t, err)

    s2 := New("default")
    require.NoError(t, s2.Restore(snap))
    snap2, err := s2.Snapshot()
    require.NoError(t, err)
    assert.JSONEq(t, string(snap), string(snap2))

    other := New("other")
    require.NoError(t, other.Restore(snap))
    assert.Equal(t, 0, other.Len())
}

func TestStore_Clear(t *testing.T) {
    s := New("default")
    s.Add(peer("n1", "default"))
    s.Add(peer("n2", "default"))
    assert.Equal(t, 2, s.Clear())
    assert.Equal(t, 0, s.Len())
}
