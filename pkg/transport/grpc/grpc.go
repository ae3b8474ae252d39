// Package grpc implements the pub/sub socket contract over gRPC server
// streams. A publish socket serves mesh.v1.Frames/Subscribe and fans every
// frame out to all open streams; a subscribe socket keeps one stream per
// connected peer, reconnecting with backoff, and filters frames locally.
package grpc

import (
    "crypto/tls"
    "time"

    "github.com/benbjohnson/clock"
    "github.com/hashicorp/go-hclog"

    "github.com/amirimatin/go-mesh/pkg/internal/logutil"
    "github.com/amirimatin/go-mesh/pkg/transport"
)

const subscribeMethod = "/mesh.v1.Frames/Subscribe"

// Options tunes both socket kinds. Zero values pick defaults.
type Options struct {
    // ServerTLS enables TLS on publish sockets.
    ServerTLS *tls.Config
    // ClientTLS enables TLS when subscribers dial publishers.
    ClientTLS *tls.Config
    // QueueSize is the per-stream send buffer. Defaults to 256.
    QueueSize int
    // DialTimeout bounds a single connection attempt. Defaults to 3s.
    DialTimeout time.Duration
    // ReconnectMin and ReconnectMax bound the subscriber backoff.
    ReconnectMin time.Duration
    ReconnectMax time.Duration
    // IdleTTL evicts unused client connections. Defaults to 30s.
    IdleTTL time.Duration
    Clock   clock.Clock
    Logger  hclog.Logger
}

func (o Options) withDefaults() Options {
    if o.QueueSize <= 0 { o.QueueSize = 256 }
    if o.DialTimeout <= 0 { o.DialTimeout = 3 * time.Second }
    if o.ReconnectMin <= 0 { o.ReconnectMin = 100 * time.Millisecond }
    if o.ReconnectMax < o.ReconnectMin { o.ReconnectMax = 5 * time.Second }
    if o.IdleTTL <= 0 { o.IdleTTL = 30 * time.Second }
    if o.Clock == nil { o.Clock = clock.New() }
    o.Logger = logutil.OrDefault(o.Logger).Named("grpc-transport")
    return o
}

// Factory creates gRPC-backed sockets.
type Factory struct{ opts Options }

func New(opts Options) *Factory { return &Factory{opts: opts.withDefaults()} }

func (f *Factory) NewPub() transport.PubSocket { return newPub(f.opts) }
func (f *Factory) NewSub() transport.SubSocket { return newSub(f.opts) }

type frameMsg struct {
    Data []byte `json:"data"`
}

type subscribeReq struct {
    NodeID string `json:"nodeId,omitempty"`
}
