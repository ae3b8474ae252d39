package grpc

import (
    "context"
    "fmt"
    "net"
    "strconv"
    "sync"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/backoff"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/credentials/insecure"
    "google.golang.org/grpc/keepalive"

    "github.com/amirimatin/go-mesh/pkg/observability/metrics"
    "github.com/amirimatin/go-mesh/pkg/transport"
)

// SubSocket keeps one frame stream per connected publisher.
type SubSocket struct {
    transport.Inbox
    opts  Options
    cm    *ConnManager
    queue *transport.Queue

    mu     sync.Mutex
    peers  map[string]*peerStream
    closed bool
}

type peerStream struct {
    cancel context.CancelFunc
    done   chan struct{}
}

func newSub(opts Options) *SubSocket {
    s := &SubSocket{opts: opts, peers: make(map[string]*peerStream)}
    s.cm = NewConnManager(opts.IdleTTL, opts.Clock, s.dial)
    s.queue = transport.NewQueue(&s.Inbox, opts.QueueSize)
    return s
}

func (s *SubSocket) dial(ctx context.Context, target string) (*grpc.ClientConn, error) {
    opts := []grpc.DialOption{
        grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype(codecName)),
        grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig, MinConnectTimeout: 500 * time.Millisecond}),
        grpc.WithKeepaliveParams(keepalive.ClientParameters{Time: 20 * time.Second, Timeout: 5 * time.Second, PermitWithoutStream: true}),
        grpc.WithBlock(),
    }
    if s.opts.ClientTLS != nil {
        opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(s.opts.ClientTLS)))
    } else {
        opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
    }
    return grpc.DialContext(ctx, target, opts...)
}

// Connect starts streaming from address:port in the background. It
// returns immediately; the stream is re-established after failures until
// Disconnect or Close.
func (s *SubSocket) Connect(address string, port int) error {
    if address == "" || port <= 0 || port > 65535 { return fmt.Errorf("grpc transport: invalid endpoint %q:%d", address, port) }
    target := net.JoinHostPort(address, strconv.Itoa(port))
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.closed { return transport.ErrClosed }
    if _, ok := s.peers[target]; ok { return nil }
    ctx, cancel := context.WithCancel(context.Background())
    ps := &peerStream{cancel: cancel, done: make(chan struct{})}
    s.peers[target] = ps
    go s.run(ctx, target, ps.done)
    return nil
}

func (s *SubSocket) Disconnect(address string, port int) error {
    target := net.JoinHostPort(address, strconv.Itoa(port))
    s.mu.Lock()
    ps, ok := s.peers[target]
    delete(s.peers, target)
    s.mu.Unlock()
    if ok {
        ps.cancel()
        <-ps.done
    }
    return nil
}

// Peers returns the number of publishers this socket streams from.
func (s *SubSocket) Peers() int {
    s.mu.Lock(); defer s.mu.Unlock()
    return len(s.peers)
}

func (s *SubSocket) Close() error {
    s.mu.Lock()
    if s.closed { s.mu.Unlock(); return nil }
    s.closed = true
    peers := s.peers
    s.peers = make(map[string]*peerStream)
    s.mu.Unlock()
    for _, ps := range peers { ps.cancel() }
    for _, ps := range peers { <-ps.done }
    s.cm.Close()
    s.queue.Close()
    return nil
}

func (s *SubSocket) run(ctx context.Context, target string, done chan struct{}) {
    defer close(done)
    wait := s.opts.ReconnectMin
    for {
        received, err := s.stream(ctx, target)
        if ctx.Err() != nil { return }
        if received { wait = s.opts.ReconnectMin }
        s.opts.Logger.Debug("frame stream ended", "target", target, "error", err, "retry_in", wait)
        metrics.Reconnects.WithLabelValues("grpc").Inc()
        select {
        case <-ctx.Done():
            return
        case <-s.opts.Clock.After(wait):
        }
        if wait *= 2; wait > s.opts.ReconnectMax { wait = s.opts.ReconnectMax }
    }
}

func (s *SubSocket) stream(ctx context.Context, target string) (bool, error) {
    dctx, cancel := context.WithTimeout(ctx, s.opts.DialTimeout)
    cc, rel, err := s.cm.Get(dctx, target)
    cancel()
    if err != nil { return false, err }
    defer rel()

    cs, err := cc.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, subscribeMethod)
    if err != nil { return false, err }
    if err := cs.SendMsg(&subscribeReq{}); err != nil { return false, err }
    _ = cs.CloseSend()
    received := false
    for {
        var m frameMsg
        if err := cs.RecvMsg(&m); err != nil { return received, err }
        received = true
        if !s.queue.Push(m.Data) { metrics.FramesDropped.WithLabelValues("grpc").Inc() }
    }
}

var _ transport.SubSocket = (*SubSocket)(nil)
