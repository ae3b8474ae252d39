// Package discovery defines the contract between the mesh core and the
// zero-configuration mechanism used to find peers. Concrete providers live
// in subpackages: memory (in-process), gossip (memberlist) and mdns
// (DNS-SD via zeroconf).
package discovery

import (
    "context"
    "sort"
    "strings"
)

// ClusterKey is the reserved banner key that carries the cluster tag.
const ClusterKey = "cluster"

// Banner is the record broadcast while advertising.
type Banner struct {
    Name string            `json:"name"`
    TXT  map[string]string `json:"txt,omitempty"`
}

// Clone returns a deep copy of b.
func (b Banner) Clone() Banner {
    out := Banner{Name: b.Name}
    if b.TXT != nil {
        out.TXT = make(map[string]string, len(b.TXT))
        for k, v := range b.TXT { out.TXT[k] = v }
    }
    return out
}

// Descriptor is what a browser reports for a remote advertisement.
type Descriptor struct {
    PeerID     string
    ClusterTag string
    Address    string
    Port       int
    Metadata   map[string]string
}

// Describe turns a banner observed at address:port into a Descriptor. The
// cluster tag is lifted out of the TXT record and the remaining keys become
// metadata.
func Describe(b Banner, address string, port int) Descriptor {
    d := Descriptor{PeerID: b.Name, Address: address, Port: port}
    for k, v := range b.TXT {
        if k == ClusterKey { d.ClusterTag = v; continue }
        if d.Metadata == nil { d.Metadata = make(map[string]string, len(b.TXT)) }
        d.Metadata[k] = v
    }
    return d
}

// Equal reports whether two descriptors carry the same values.
func (d Descriptor) Equal(o Descriptor) bool {
    if d.PeerID != o.PeerID || d.ClusterTag != o.ClusterTag || d.Address != o.Address || d.Port != o.Port { return false }
    if len(d.Metadata) != len(o.Metadata) { return false }
    for k, v := range d.Metadata {
        if ov, ok := o.Metadata[k]; !ok || ov != v { return false }
    }
    return true
}

// Notifee receives browse results. Calls for one browser are serialized.
type Notifee interface {
    PeerUp(d Descriptor)
    PeerDown(d Descriptor)
}

// NotifeeFuncs adapts two functions to a Notifee. Nil fields are ignored.
type NotifeeFuncs struct {
    Up   func(Descriptor)
    Down func(Descriptor)
}

func (f NotifeeFuncs) PeerUp(d Descriptor)   { if f.Up != nil { f.Up(d) } }
func (f NotifeeFuncs) PeerDown(d Descriptor) { if f.Down != nil { f.Down(d) } }

// Advertisement is a handle on a registered banner.
type Advertisement interface {
    Start(ctx context.Context) error
    Stop() error
}

// Browser is a handle on a running browse. Stop is synchronous: once it
// returns the notifee receives no further calls.
type Browser interface {
    Start(ctx context.Context) error
    Stop() error
}

// Provider advertises banners and browses for them.
type Provider interface {
    Advertise(serviceType string, port int, banner Banner) (Advertisement, error)
    Browse(serviceType string, n Notifee) (Browser, error)
}

// Seeder supplies bootstrap addresses for providers that need an initial
// contact point (gossip).
type Seeder interface {
    Seeds() []string
}

// TXTList renders a TXT map as sorted "key=value" entries.
func TXTList(txt map[string]string) []string {
    out := make([]string, 0, len(txt))
    for k, v := range txt { out = append(out, k+"="+v) }
    sort.Strings(out)
    return out
}

// ParseTXT is the inverse of TXTList. Entries without '=' map to "".
func ParseTXT(list []string) map[string]string {
    if len(list) == 0 { return nil }
    out := make(map[string]string, len(list))
    for _, kv := range list {
        k, v, _ := strings.Cut(kv, "=")
        if k == "" { continue }
        out[k] = v
    }
    return out
}
