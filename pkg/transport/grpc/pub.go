package grpc

import (
    "context"
    "net"
    "strconv"
    "sync"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/health"
    healthpb "google.golang.org/grpc/health/grpc_health_v1"
    "google.golang.org/grpc/keepalive"

    "github.com/amirimatin/go-mesh/pkg/observability/metrics"
    "github.com/amirimatin/go-mesh/pkg/transport"
)

// PubSocket serves frames to subscriber streams.
type PubSocket struct {
    opts Options

    mu      sync.Mutex
    lis     net.Listener
    srv     *grpc.Server
    streams map[*outStream]struct{}
    closed  bool
    done    chan struct{}
}

type outStream struct{ ch chan []byte }

func newPub(opts Options) *PubSocket {
    return &PubSocket{opts: opts, streams: make(map[*outStream]struct{}), done: make(chan struct{})}
}

func (p *PubSocket) Bind(ctx context.Context, address string, port int) error {
    if err := ctx.Err(); err != nil { return err }
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.closed { return transport.ErrClosed }
    if p.srv != nil { return transport.ErrAlreadyBound }
    lc := net.ListenConfig{}
    lis, err := lc.Listen(ctx, "tcp", net.JoinHostPort(address, strconv.Itoa(port)))
    if err != nil { return err }

    opts := []grpc.ServerOption{
        grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{MinTime: 5 * time.Second, PermitWithoutStream: true}),
        grpc.KeepaliveParams(keepalive.ServerParameters{Time: 30 * time.Second, Timeout: 10 * time.Second}),
    }
    if p.opts.ServerTLS != nil { opts = append(opts, grpc.Creds(credentials.NewTLS(p.opts.ServerTLS))) }
    srv := grpc.NewServer(opts...)
    healthpb.RegisterHealthServer(srv, health.NewServer())
    srv.RegisterService(&_Frames_serviceDesc, p)
    p.lis, p.srv = lis, srv
    go func() {
        if err := srv.Serve(lis); err != nil { p.opts.Logger.Debug("serve ended", "error", err) }
    }()
    return nil
}

// Addr returns the bound listener address, or "" before Bind.
func (p *PubSocket) Addr() string {
    p.mu.Lock(); defer p.mu.Unlock()
    if p.lis == nil { return "" }
    return p.lis.Addr().String()
}

// Subscribers returns the number of open subscriber streams.
func (p *PubSocket) Subscribers() int {
    p.mu.Lock(); defer p.mu.Unlock()
    return len(p.streams)
}

func (p *PubSocket) Send(frame []byte) error {
    p.mu.Lock()
    if p.closed { p.mu.Unlock(); return transport.ErrClosed }
    if p.srv == nil { p.mu.Unlock(); return transport.ErrNotBound }
    outs := make([]*outStream, 0, len(p.streams))
    for s := range p.streams { outs = append(outs, s) }
    p.mu.Unlock()

    for _, s := range outs {
        select {
        case s.ch <- append([]byte(nil), frame...):
            metrics.FramesSent.WithLabelValues("grpc").Inc()
        default:
            metrics.FramesDropped.WithLabelValues("grpc").Inc()
        }
    }
    return nil
}

func (p *PubSocket) Close() error {
    p.mu.Lock()
    if p.closed { p.mu.Unlock(); return nil }
    p.closed = true
    close(p.done)
    srv := p.srv
    p.mu.Unlock()
    if srv == nil { return nil }

    ch := make(chan struct{})
    go func() { srv.GracefulStop(); close(ch) }()
    select {
    case <-ch:
    case <-time.After(2 * time.Second):
        srv.Stop()
    }
    return nil
}

// Subscribe implements the frames service.
func (p *PubSocket) Subscribe(_ *subscribeReq, ss Frames_SubscribeServer) error {
    out := &outStream{ch: make(chan []byte, p.opts.QueueSize)}
    p.mu.Lock()
    if p.closed { p.mu.Unlock(); return nil }
    p.streams[out] = struct{}{}
    p.mu.Unlock()
    metrics.Subscribers.WithLabelValues("grpc").Inc()
    defer func() {
        p.mu.Lock()
        delete(p.streams, out)
        p.mu.Unlock()
        metrics.Subscribers.WithLabelValues("grpc").Dec()
    }()

    for {
        select {
        case <-ss.Context().Done():
            return nil
        case <-p.done:
            return nil
        case f := <-out.ch:
            if err := ss.Send(&frameMsg{Data: f}); err != nil { return err }
        }
    }
}

type framesServer interface {
    Subscribe(*subscribeReq, Frames_SubscribeServer) error
}

type Frames_SubscribeServer interface {
    Send(*frameMsg) error
    grpc.ServerStream
}

var _Frames_serviceDesc = grpc.ServiceDesc{
    ServiceName: "mesh.v1.Frames",
    HandlerType: (*framesServer)(nil),
    Streams: []grpc.StreamDesc{{
        StreamName:    "Subscribe",
        ServerStreams: true,
        Handler:       _Frames_Subscribe_Handler,
    }},
}

func _Frames_Subscribe_Handler(srv interface{}, stream grpc.ServerStream) error {
    m := new(subscribeReq)
    if err := stream.RecvMsg(m); err != nil { return err }
    return srv.(framesServer).Subscribe(m, &framesSubscribeServer{stream})
}

type framesSubscribeServer struct{ grpc.ServerStream }

func (x *framesSubscribeServer) Send(m *frameMsg) error { return x.ServerStream.SendMsg(m) }

var _ transport.PubSocket = (*PubSocket)(nil)
