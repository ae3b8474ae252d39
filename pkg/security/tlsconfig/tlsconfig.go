// Package tlsconfig builds TLS configurations for the network transports and
// the admin endpoint. Certificates are re-read from disk after a TTL so they
// can be rotated without restarting the member.
package tlsconfig

import (
    "crypto/tls"
    "crypto/x509"
    "errors"
    "fmt"
    "os"
    "sync"
    "time"

    "github.com/benbjohnson/clock"
)

const DefaultReloadTTL = 10 * time.Second

var ErrMissingKeyPair = errors.New("tlsconfig: cert and key required when TLS is enabled")

// Options are the file-based TLS inputs. Zero Options disable TLS.
type Options struct {
    Enable             bool   `koanf:"enable"`
    CAFile             string `koanf:"ca"`
    CertFile           string `koanf:"cert"`
    KeyFile            string `koanf:"key"`
    InsecureSkipVerify bool   `koanf:"skip_verify"`
    ServerName         string `koanf:"server_name"`

    ReloadTTL time.Duration `koanf:"reload_ttl"`
    Clock     clock.Clock   `koanf:"-"`
}

func (o Options) pool() (*x509.CertPool, error) {
    ca, err := os.ReadFile(o.CAFile)
    if err != nil { return nil, err }
    pool := x509.NewCertPool()
    if !pool.AppendCertsFromPEM(ca) { return nil, fmt.Errorf("tlsconfig: no certificates in %s", o.CAFile) }
    return pool, nil
}

func (o Options) reloader() *reloader {
    ttl := o.ReloadTTL
    if ttl <= 0 { ttl = DefaultReloadTTL }
    clk := o.Clock
    if clk == nil { clk = clock.New() }
    return &reloader{cert: o.CertFile, key: o.KeyFile, ttl: ttl, clk: clk}
}

// Server returns a server config, or nil when TLS is disabled. With a CA
// file set, client certificates are required (mutual TLS).
func (o Options) Server() (*tls.Config, error) {
    if !o.Enable { return nil, nil }
    if o.CertFile == "" || o.KeyFile == "" { return nil, ErrMissingKeyPair }
    r := o.reloader()
    if _, err := r.get(); err != nil { return nil, err }
    cfg := &tls.Config{MinVersion: tls.VersionTLS12}
    if o.CAFile != "" {
        pool, err := o.pool()
        if err != nil { return nil, err }
        cfg.ClientCAs = pool
        cfg.ClientAuth = tls.RequireAndVerifyClientCert
    }
    cfg.GetCertificate = func(*tls.ClientHelloInfo) (*tls.Certificate, error) { return r.get() }
    return cfg, nil
}

// Client returns a client config, or nil when TLS is disabled. The client
// certificate is optional.
func (o Options) Client() (*tls.Config, error) {
    if !o.Enable { return nil, nil }
    cfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: o.InsecureSkipVerify} //nolint:gosec
    if o.ServerName != "" { cfg.ServerName = o.ServerName }
    if o.CAFile != "" {
        pool, err := o.pool()
        if err != nil { return nil, err }
        cfg.RootCAs = pool
    }
    if o.CertFile == "" || o.KeyFile == "" { return cfg, nil }
    r := o.reloader()
    if _, err := r.get(); err != nil { return nil, err }
    cfg.GetClientCertificate = func(*tls.CertificateRequestInfo) (*tls.Certificate, error) { return r.get() }
    return cfg, nil
}

// Pair returns the server and client configs together.
func (o Options) Pair() (server, client *tls.Config, err error) {
    if server, err = o.Server(); err != nil { return nil, nil, err }
    if client, err = o.Client(); err != nil { return nil, nil, err }
    return server, client, nil
}

// reloader caches a key pair and reloads it lazily once ttl has passed.
type reloader struct {
    cert, key string
    ttl       time.Duration
    clk       clock.Clock

    mu       sync.Mutex
    cached   *tls.Certificate
    loadedAt time.Time
}

func (r *reloader) get() (*tls.Certificate, error) {
    r.mu.Lock()
    defer r.mu.Unlock()
    now := r.clk.Now()
    if r.cached != nil && now.Sub(r.loadedAt) < r.ttl { return r.cached, nil }
    cert, err := tls.LoadX509KeyPair(r.cert, r.key)
    if err != nil {
        // keep serving the previous pair while a rotation is half written
        if r.cached != nil { return r.cached, nil }
        return nil, err
    }
    r.cached, r.loadedAt = &cert, now
    return r.cached, nil
}
