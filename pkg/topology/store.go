package topology

import (
    "encoding/json"
    "fmt"
    "sort"
    "sync"
    "time"
)

// PeerInfo describes a discovered member of the local cluster.
type PeerInfo struct {
    ID       string            `json:"id"`
    Cluster  string            `json:"cluster"`
    Address  string            `json:"address"`
    Port     int               `json:"port"`
    JoinedAt time.Time         `json:"joinedAt"`
    Metadata map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy so callers never alias the store's records.
func (p PeerInfo) Clone() PeerInfo {
    out := p
    if p.Metadata != nil {
        out.Metadata = make(map[string]string, len(p.Metadata))
        for k, v := range p.Metadata { out.Metadata[k] = v }
    }
    return out
}

// Store is the local view of peers that share this node's cluster.
type Store struct {
    cluster string
    mu      sync.RWMutex
    peers   map[string]PeerInfo
}

func New(cluster string) *Store {
    return &Store{cluster: cluster, peers: make(map[string]PeerInfo)}
}

func (s *Store) Cluster() string { return s.cluster }

// Add inserts p when it belongs to the store's cluster and is not tracked
// yet. It reports whether the store changed.
func (s *Store) Add(p PeerInfo) bool {
    if p.ID == "" || p.Cluster != s.cluster { return false }
    s.mu.Lock(); defer s.mu.Unlock()
    if _, ok := s.peers[p.ID]; ok { return false }
    s.peers[p.ID] = p.Clone()
    return true
}

// Remove drops the peer with the given id and returns a copy of it.
func (s *Store) Remove(id string) (PeerInfo, bool) {
    s.mu.Lock(); defer s.mu.Unlock()
    p, ok := s.peers[id]
    if !ok { return PeerInfo{}, false }
    delete(s.peers, id)
    return p, true
}

func (s *Store) Get(id string) (PeerInfo, bool) {
    s.mu.RLock(); defer s.mu.RUnlock()
    p, ok := s.peers[id]
    if !ok { return PeerInfo{}, false }
    return p.Clone(), true
}

func (s *Store) Has(id string) bool {
    s.mu.RLock(); defer s.mu.RUnlock()
    _, ok := s.peers[id]
    return ok
}

func (s *Store) Len() int {
    s.mu.RLock(); defer s.mu.RUnlock()
    return len(s.peers)
}

// List returns copies of all tracked peers ordered by id.
func (s *Store) List() []PeerInfo {
    s.mu.RLock(); defer s.mu.RUnlock()
    out := make([]PeerInfo, 0, len(s.peers))
    for _, p := range s.peers { out = append(out, p.Clone()) }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out
}

// Clear forgets every peer and returns how many were dropped.
func (s *Store) Clear() int {
    s.mu.Lock(); defer s.mu.Unlock()
    n := len(s.peers)
    s.peers = make(map[string]PeerInfo)
    return n
}

type snapshot struct {
    Version int        `json:"version"`
    Cluster string     `json:"cluster"`
    Peers   []PeerInfo `json:"peers"`
}

// Snapshot encodes the view as stable JSON for status endpoints and debugging.
func (s *Store) Snapshot() ([]byte, error) {
    return json.Marshal(snapshot{Version: 1, Cluster: s.cluster, Peers: s.List()})
}

// Restore replaces the view with the peers in buf. Peers of other clusters
// are skipped.
func (s *Store) Restore(buf []byte) error {
    var snap snapshot
    if err := json.Unmarshal(buf, &snap); err != nil { return err }
    if snap.Version != 1 { return fmt.Errorf("topology: unsupported snapshot version %d", snap.Version) }
    peers := make(map[string]PeerInfo, len(snap.Peers))
    for _, p := range snap.Peers {
        if p.ID == "" || p.Cluster != s.cluster { continue }
        peers[p.ID] = p
    }
    s.mu.Lock()
    s.peers = peers
    s.mu.Unlock()
    return nil
}
