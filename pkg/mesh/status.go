package mesh

import (
    "encoding/json"

    "github.com/amirimatin/go-mesh/pkg/topology"
)

// Status is a JSON-serializable snapshot of a member for status endpoints
// and tooling.
type Status struct {
    ID      string `json:"id"`
    Service string `json:"service"`
    Cluster string `json:"cluster"`
    Address string `json:"address"`
    Port    int    `json:"port"`
    State   string `json:"state"`
    // Advertisement is set while the member is advertising.
    Advertisement *AdInfo             `json:"advertisement,omitempty"`
    Peers         []topology.PeerInfo `json:"peers"`
    Subscriptions []string            `json:"subscriptions"`
}

// Status returns the member's current snapshot.
func (m *Member) Status() Status {
    m.mu.Lock()
    st := Status{
        ID:      m.ident.ID,
        Service: m.ident.Service,
        Cluster: m.ident.Cluster,
        Address: m.ident.Address,
        Port:    m.ident.Port,
        State:   m.state.String(),
    }
    if m.ad.active {
        ad := m.ad.info.clone()
        st.Advertisement = &ad
    }
    topo := m.topo
    m.mu.Unlock()
    st.Peers = topo.List()
    st.Subscriptions = m.subs.List()
    return st
}

// StatusJSON renders Status as indented JSON.
func (m *Member) StatusJSON() ([]byte, error) { return json.MarshalIndent(m.Status(), "", "  ") }
