package mesh

import (
    "errors"

    "github.com/amirimatin/go-mesh/pkg/channel"
    "github.com/amirimatin/go-mesh/pkg/hooks"
)

var (
    ErrNotJoined          = errors.New("mesh: not joined")
    ErrInvalidState       = errors.New("mesh: invalid state for operation")
    ErrAlreadyAdvertising = errors.New("mesh: already advertising")
    ErrNotAdvertising     = errors.New("mesh: not advertising")
    ErrPortBind           = errors.New("mesh: port bind failed")
    ErrDiscovery          = errors.New("mesh: discovery failure")
    ErrTransport          = errors.New("mesh: transport failure")
    ErrHookData           = errors.New("mesh: hook returned unexpected data type")

    ErrInvalidChannelName = channel.ErrInvalidName
    ErrDuplicatePlugin    = hooks.ErrDuplicatePlugin
)
