// Package ws implements the pub/sub socket contract over WebSockets. A
// publish socket is a small HTTP server whose /frames endpoint upgrades to
// a websocket and streams binary frames; subscribers dial every connected
// publisher and filter frames locally.
package ws

import (
    "context"
    "crypto/tls"
    "errors"
    "fmt"
    "net"
    "net/http"
    "strconv"
    "sync"
    "time"

    "github.com/benbjohnson/clock"
    "github.com/gorilla/websocket"
    "github.com/hashicorp/go-hclog"

    "github.com/amirimatin/go-mesh/pkg/internal/logutil"
    "github.com/amirimatin/go-mesh/pkg/observability/metrics"
    "github.com/amirimatin/go-mesh/pkg/transport"
)

// Path is the HTTP path publishers serve frames on.
const Path = "/frames"

// Options tunes both socket kinds. Zero values pick defaults.
type Options struct {
    ServerTLS    *tls.Config
    ClientTLS    *tls.Config
    QueueSize    int
    WriteTimeout time.Duration
    ReconnectMin time.Duration
    ReconnectMax time.Duration
    Clock        clock.Clock
    Logger       hclog.Logger
}

func (o Options) withDefaults() Options {
    if o.QueueSize <= 0 { o.QueueSize = 256 }
    if o.WriteTimeout <= 0 { o.WriteTimeout = 5 * time.Second }
    if o.ReconnectMin <= 0 { o.ReconnectMin = 100 * time.Millisecond }
    if o.ReconnectMax < o.ReconnectMin { o.ReconnectMax = 5 * time.Second }
    if o.Clock == nil { o.Clock = clock.New() }
    o.Logger = logutil.OrDefault(o.Logger).Named("ws-transport")
    return o
}

// Factory creates websocket-backed sockets.
type Factory struct{ opts Options }

func New(opts Options) *Factory { return &Factory{opts: opts.withDefaults()} }

func (f *Factory) NewPub() transport.PubSocket {
    return &PubSocket{opts: f.opts, conns: make(map[*peerConn]struct{})}
}

func (f *Factory) NewSub() transport.SubSocket {
    s := &SubSocket{opts: f.opts, peers: make(map[string]*dialLoop)}
    s.queue = transport.NewQueue(&s.Inbox, f.opts.QueueSize)
    return s
}

// PubSocket serves frames to websocket subscribers.
type PubSocket struct {
    opts     Options
    upgrader websocket.Upgrader

    mu     sync.Mutex
    srv    *http.Server
    lis    net.Listener
    conns  map[*peerConn]struct{}
    closed bool
}

type peerConn struct {
    ws   *websocket.Conn
    ch   chan []byte
    done chan struct{}
    once sync.Once
}

func (c *peerConn) close() { c.once.Do(func() { close(c.done); _ = c.ws.Close() }) }

func (p *PubSocket) Bind(ctx context.Context, address string, port int) error {
    if err := ctx.Err(); err != nil { return err }
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.closed { return transport.ErrClosed }
    if p.srv != nil { return transport.ErrAlreadyBound }
    lc := net.ListenConfig{}
    ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(address, strconv.Itoa(port)))
    if err != nil { return err }
    p.lis = ln
    if p.opts.ServerTLS != nil { ln = tls.NewListener(ln, p.opts.ServerTLS) }

    mux := http.NewServeMux()
    mux.HandleFunc(Path, p.handle)
    mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusOK)
        _, _ = w.Write([]byte("ok"))
    })
    p.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
    srv := p.srv
    go func() {
        if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
            p.opts.Logger.Error("server error", "error", err)
        }
    }()
    return nil
}

// Addr returns the bound listener address, or "" before Bind.
func (p *PubSocket) Addr() string {
    p.mu.Lock(); defer p.mu.Unlock()
    if p.lis == nil { return "" }
    return p.lis.Addr().String()
}

// Subscribers returns the number of attached websocket connections.
func (p *PubSocket) Subscribers() int {
    p.mu.Lock(); defer p.mu.Unlock()
    return len(p.conns)
}

func (p *PubSocket) handle(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { http.Error(w, "method not allowed", http.StatusMethodNotAllowed); return }
    c, err := p.upgrader.Upgrade(w, r, nil)
    if err != nil { return }
    pc := &peerConn{ws: c, ch: make(chan []byte, p.opts.QueueSize), done: make(chan struct{})}
    p.mu.Lock()
    if p.closed { p.mu.Unlock(); _ = c.Close(); return }
    p.conns[pc] = struct{}{}
    p.mu.Unlock()
    metrics.Subscribers.WithLabelValues("ws").Inc()

    // Subscribers never write; reading detects their departure.
    go func() {
        for {
            if _, _, err := c.NextReader(); err != nil { pc.close(); return }
        }
    }()
    defer func() {
        p.mu.Lock()
        delete(p.conns, pc)
        p.mu.Unlock()
        metrics.Subscribers.WithLabelValues("ws").Dec()
        pc.close()
    }()
    for {
        select {
        case <-pc.done:
            return
        case f := <-pc.ch:
            _ = c.SetWriteDeadline(time.Now().Add(p.opts.WriteTimeout))
            if err := c.WriteMessage(websocket.BinaryMessage, f); err != nil { return }
        }
    }
}

func (p *PubSocket) Send(frame []byte) error {
    p.mu.Lock()
    if p.closed { p.mu.Unlock(); return transport.ErrClosed }
    if p.srv == nil { p.mu.Unlock(); return transport.ErrNotBound }
    conns := make([]*peerConn, 0, len(p.conns))
    for c := range p.conns { conns = append(conns, c) }
    p.mu.Unlock()
    for _, c := range conns {
        select {
        case c.ch <- append([]byte(nil), frame...):
            metrics.FramesSent.WithLabelValues("ws").Inc()
        default:
            metrics.FramesDropped.WithLabelValues("ws").Inc()
        }
    }
    return nil
}

func (p *PubSocket) Close() error {
    p.mu.Lock()
    if p.closed { p.mu.Unlock(); return nil }
    p.closed = true
    srv := p.srv
    conns := make([]*peerConn, 0, len(p.conns))
    for c := range p.conns { conns = append(conns, c) }
    p.mu.Unlock()
    for _, c := range conns { c.close() }
    if srv == nil { return nil }
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    return srv.Shutdown(ctx)
}

// SubSocket dials publishers and feeds their frames into its inbox.
type SubSocket struct {
    transport.Inbox
    opts  Options
    queue *transport.Queue

    mu     sync.Mutex
    peers  map[string]*dialLoop
    closed bool
}

type dialLoop struct {
    cancel context.CancelFunc
    done   chan struct{}
}

func (s *SubSocket) url(target string) string {
    scheme := "ws"
    if s.opts.ClientTLS != nil { scheme = "wss" }
    return fmt.Sprintf("%s://%s%s", scheme, target, Path)
}

// Connect starts a background dial loop for address:port.
func (s *SubSocket) Connect(address string, port int) error {
    if address == "" || port <= 0 || port > 65535 { return fmt.Errorf("ws transport: invalid endpoint %q:%d", address, port) }
    target := net.JoinHostPort(address, strconv.Itoa(port))
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.closed { return transport.ErrClosed }
    if _, ok := s.peers[target]; ok { return nil }
    ctx, cancel := context.WithCancel(context.Background())
    dl := &dialLoop{cancel: cancel, done: make(chan struct{})}
    s.peers[target] = dl
    go s.run(ctx, target, dl.done)
    return nil
}

func (s *SubSocket) Disconnect(address string, port int) error {
    target := net.JoinHostPort(address, strconv.Itoa(port))
    s.mu.Lock()
    dl, ok := s.peers[target]
    delete(s.peers, target)
    s.mu.Unlock()
    if ok {
        dl.cancel()
        <-dl.done
    }
    return nil
}

// Peers returns the number of publishers this socket dials.
func (s *SubSocket) Peers() int {
    s.mu.Lock(); defer s.mu.Unlock()
    return len(s.peers)
}

func (s *SubSocket) Close() error {
    s.mu.Lock()
    if s.closed { s.mu.Unlock(); return nil }
    s.closed = true
    peers := s.peers
    s.peers = make(map[string]*dialLoop)
    s.mu.Unlock()
    for _, dl := range peers { dl.cancel() }
    for _, dl := range peers { <-dl.done }
    s.queue.Close()
    return nil
}

func (s *SubSocket) run(ctx context.Context, target string, done chan struct{}) {
    defer close(done)
    dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second, TLSClientConfig: s.opts.ClientTLS}
    wait := s.opts.ReconnectMin
    for {
        received, err := s.read(ctx, dialer, target)
        if ctx.Err() != nil { return }
        if received { wait = s.opts.ReconnectMin }
        s.opts.Logger.Debug("frame connection ended", "target", target, "error", err, "retry_in", wait)
        metrics.Reconnects.WithLabelValues("ws").Inc()
        select {
        case <-ctx.Done():
            return
        case <-s.opts.Clock.After(wait):
        }
        if wait *= 2; wait > s.opts.ReconnectMax { wait = s.opts.ReconnectMax }
    }
}

func (s *SubSocket) read(ctx context.Context, dialer websocket.Dialer, target string) (bool, error) {
    c, _, err := dialer.DialContext(ctx, s.url(target), nil)
    if err != nil { return false, err }
    stop := context.AfterFunc(ctx, func() { _ = c.Close() })
    defer stop()
    defer c.Close()
    received := false
    for {
        mt, data, err := c.ReadMessage()
        if err != nil { return received, err }
        if mt != websocket.BinaryMessage { continue }
        received = true
        if !s.queue.Push(data) { metrics.FramesDropped.WithLabelValues("ws").Inc() }
    }
}

var (
    _ transport.PubSocket = (*PubSocket)(nil)
    _ transport.SubSocket = (*SubSocket)(nil)
)
