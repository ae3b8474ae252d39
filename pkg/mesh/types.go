package mesh

import (
    "github.com/amirimatin/go-mesh/pkg/discovery"
)

// State is the membership lifecycle state of a Member.
type State int32

const (
    StateIdle State = iota
    StateJoining
    StateJoined
    StateLeaving
)

func (s State) String() string {
    switch s {
    case StateJoining:
        return "joining"
    case StateJoined:
        return "joined"
    case StateLeaving:
        return "leaving"
    default:
        return "idle"
    }
}

// Identity names a member. A copy is frozen when Join starts; the
// provider.create.before hook sees and may rewrite it first.
type Identity struct {
    ID      string `json:"id"`
    Service string `json:"service"`
    Cluster string `json:"cluster"`
    Address string `json:"address"`
    Port    int    `json:"port"`
}

// AdInfo describes an active advertisement.
type AdInfo struct {
    Service string           `json:"service"`
    Port    int              `json:"port"`
    Banner  discovery.Banner `json:"banner"`
}

func (a AdInfo) clone() AdInfo { a.Banner = a.Banner.Clone(); return a }

// Message is the payload threaded through the publish and receive hooks.
type Message struct {
    Channel string `json:"channel"`
    Payload string `json:"payload"`
}

// ServiceInfo is passed to the service.up and service.down hooks when the
// topology gains its first peer or loses its last one.
type ServiceInfo struct {
    Service string `json:"service"`
    Cluster string `json:"cluster"`
    Peers   int    `json:"peers"`
}
