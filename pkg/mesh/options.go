package mesh

import (
    "errors"
    "fmt"

    "github.com/benbjohnson/clock"
    "github.com/google/uuid"
    "github.com/hashicorp/go-hclog"

    "github.com/amirimatin/go-mesh/pkg/discovery"
    "github.com/amirimatin/go-mesh/pkg/hooks"
    "github.com/amirimatin/go-mesh/pkg/transport"
)

const (
    DefaultService = "unnamedService"
    DefaultCluster = "defaultCluster"
    DefaultAddress = "0.0.0.0"
)

// Config carries the identity and the injected collaborators of a Member.
type Config struct {
    // ID identifies the member. A random UUID is used when empty.
    ID string
    // Service is the discovery service type browsed and advertised.
    Service string
    // Cluster is the tag peers must carry to enter the topology.
    Cluster string
    // Address is the publish socket bind address.
    Address string
    // Port is the publish port. Zero probes a free ephemeral port at join.
    Port int

    Provider  discovery.Provider
    Transport transport.Factory

    // Optional
    Logger hclog.Logger
    Clock  clock.Clock
    // Hooks is shared with the caller when set, so plugins can be
    // registered before the member exists.
    Hooks *hooks.Registry
}

// WithDefaults fills unset identity fields.
func (c Config) WithDefaults() Config {
    if c.ID == "" { c.ID = uuid.NewString() }
    if c.Service == "" { c.Service = DefaultService }
    if c.Cluster == "" { c.Cluster = DefaultCluster }
    if c.Address == "" { c.Address = DefaultAddress }
    return c
}

// Validate performs a minimal validation of Config. It does not start any
// network activity.
func (c Config) Validate() error {
    if c.Provider == nil {
        return errors.New("mesh: nil Provider")
    }
    if c.Transport == nil {
        return errors.New("mesh: nil Transport")
    }
    if c.Port < 0 || c.Port > 65535 {
        return fmt.Errorf("mesh: invalid port %d", c.Port)
    }
    return nil
}
