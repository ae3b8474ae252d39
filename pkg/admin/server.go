// Package admin serves a small HTTP management API for a running member:
// status, health, Prometheus metrics and a publish entry point used by
// tooling.
package admin

import (
    "context"
    "crypto/tls"
    "encoding/json"
    "errors"
    "fmt"
    "net"
    "net/http"
    "time"

    "github.com/hashicorp/go-hclog"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    "github.com/amirimatin/go-mesh/pkg/internal/logutil"
    "github.com/amirimatin/go-mesh/pkg/mesh"
    "github.com/amirimatin/go-mesh/pkg/observability/tracing"
)

// Node is the part of a member the API exposes. *mesh.Member satisfies it.
type Node interface {
    Status() mesh.Status
    Publish(ctx context.Context, ch, payload string) error
}

// PublishRequest is the body of POST /publish.
type PublishRequest struct {
    Channel string `json:"channel"`
    Payload string `json:"payload"`
}

// PublishResponse reports the outcome of POST /publish.
type PublishResponse struct {
    OK    bool   `json:"ok"`
    Error string `json:"error,omitempty"`
}

type Server struct {
    bind   string
    srv    *http.Server
    ln     net.Listener
    logger hclog.Logger
    tlsCfg *tls.Config
}

// NewServer binds to the given TCP address (e.g., ":17946").
func NewServer(bind string, logger hclog.Logger) *Server {
    return &Server{bind: bind, logger: logutil.OrDefault(logger).Named("admin")}
}

// UseTLS enables TLS for the HTTP server using the provided config.
func (s *Server) UseTLS(cfg *tls.Config) *Server { s.tlsCfg = cfg; return s }

// Handler builds the API mux for node.
func Handler(node Node) http.Handler {
    mux := http.NewServeMux()
    mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
        if r.Method != http.MethodGet { http.Error(w, "method not allowed", http.StatusMethodNotAllowed); return }
        _, end := tracing.StartSpan(r.Context(), "http.status")
        defer end()
        w.Header().Set("Content-Type", "application/json")
        _ = json.NewEncoder(w).Encode(node.Status())
    })
    mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
        if r.Method != http.MethodGet { http.Error(w, "method not allowed", http.StatusMethodNotAllowed); return }
        if node.Status().State != mesh.StateJoined.String() {
            http.Error(w, "not joined", http.StatusServiceUnavailable)
            return
        }
        w.WriteHeader(http.StatusOK)
        _, _ = w.Write([]byte("ok"))
    })
    mux.Handle("/metrics", promhttp.Handler())
    mux.HandleFunc("/publish", func(w http.ResponseWriter, r *http.Request) {
        if r.Method != http.MethodPost { http.Error(w, "method not allowed", http.StatusMethodNotAllowed); return }
        var req PublishRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
            return
        }
        ctx, end := tracing.StartSpan(r.Context(), "http.publish")
        defer end()
        w.Header().Set("Content-Type", "application/json")
        if err := node.Publish(ctx, req.Channel, req.Payload); err != nil {
            code := http.StatusInternalServerError
            switch {
            case errors.Is(err, mesh.ErrInvalidChannelName):
                code = http.StatusBadRequest
            case errors.Is(err, mesh.ErrNotJoined):
                code = http.StatusConflict
            }
            w.WriteHeader(code)
            _ = json.NewEncoder(w).Encode(PublishResponse{Error: err.Error()})
            return
        }
        _ = json.NewEncoder(w).Encode(PublishResponse{OK: true})
    })
    return mux
}

// Start serves the API for node until ctx is canceled.
func (s *Server) Start(ctx context.Context, node Node) error {
    ln, err := net.Listen("tcp", s.bind)
    if err != nil { return err }
    if s.tlsCfg != nil {
        ln = tls.NewListener(ln, s.tlsCfg)
    }
    s.ln = ln
    s.srv = &http.Server{Handler: Handler(node), ReadHeaderTimeout: 5 * time.Second}
    srv := s.srv

    go func() {
        <-ctx.Done()
        _ = s.Stop(context.Background())
    }()
    go func() {
        if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
            s.logger.Error("server error", "error", err)
        }
    }()
    s.logger.Info("listening", "addr", ln.Addr().String())
    return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
    if s.ln != nil { return s.ln.Addr().String() }
    return s.bind
}

// Stop attempts a graceful shutdown with a short timeout.
func (s *Server) Stop(ctx context.Context) error {
    if s.srv == nil { return nil }
    c, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    return s.srv.Shutdown(c)
}
