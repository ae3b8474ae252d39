// Package transport defines the publish/subscribe socket contract used by
// the mesh member. A member owns one PubSocket bound to its advertised port
// and one SubSocket connected to every discovered peer's PubSocket.
// Delivery is best effort: frames are dropped when a receiver falls behind.
package transport

import (
    "context"
    "errors"
)

var (
    ErrClosed       = errors.New("transport: socket closed")
    ErrNotBound     = errors.New("transport: publish socket not bound")
    ErrAlreadyBound = errors.New("transport: publish socket already bound")
)

// PubSocket broadcasts frames to every connected subscriber.
type PubSocket interface {
    Bind(ctx context.Context, address string, port int) error
    Send(frame []byte) error
    Close() error
}

// SubSocket receives frames from the publishers it is connected to. Only
// frames starting with one of the registered filter prefixes are handed to
// the OnFrame callback.
type SubSocket interface {
    Connect(address string, port int) error
    Disconnect(address string, port int) error
    AddFilter(prefix []byte)
    RemoveFilter(prefix []byte)
    OnFrame(fn func(frame []byte))
    Close() error
}

// Factory creates fresh sockets for each join.
type Factory interface {
    NewPub() PubSocket
    NewSub() SubSocket
}
