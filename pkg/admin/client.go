package admin

import (
    "bytes"
    "context"
    "crypto/tls"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "time"

    "github.com/amirimatin/go-mesh/pkg/mesh"
)

// Client is a thin HTTP client for the management API with simple retry
// and backoff.
type Client struct {
    httpc     *http.Client
    transport *http.Transport
    isTLS     bool
}

// NewClient constructs a new Client with the given timeout.
func NewClient(timeout time.Duration) *Client {
    if timeout <= 0 { timeout = 3 * time.Second }
    tr := &http.Transport{}
    return &Client{httpc: &http.Client{Timeout: timeout, Transport: tr}, transport: tr}
}

// UseTLS sets the TLS config for the underlying HTTP client and switches the
// request scheme to https.
func (c *Client) UseTLS(cfg *tls.Config) *Client {
    if c.transport != nil { c.transport.TLSClientConfig = cfg }
    c.isTLS = cfg != nil
    return c
}

func (c *Client) url(addr, path string) string {
    scheme := "http"
    if c.isTLS { scheme = "https" }
    return fmt.Sprintf("%s://%s%s", scheme, addr, path)
}

// GetStatus fetches and decodes /status from addr.
func (c *Client) GetStatus(ctx context.Context, addr string) (mesh.Status, error) {
    var st mesh.Status
    b, err := c.GetStatusRaw(ctx, addr)
    if err != nil { return st, err }
    err = json.Unmarshal(b, &st)
    return st, err
}

// GetStatusRaw returns the /status body as served.
func (c *Client) GetStatusRaw(ctx context.Context, addr string) ([]byte, error) {
    var out []byte
    err := c.do(ctx, func() (*http.Request, error) {
        return http.NewRequestWithContext(ctx, http.MethodGet, c.url(addr, "/status"), nil)
    }, func(code int, b []byte) error {
        if code != http.StatusOK { return fmt.Errorf("status %d: %s", code, string(b)) }
        out = b
        return nil
    })
    return out, err
}

// Publish asks the member at addr to publish payload on ch.
func (c *Client) Publish(ctx context.Context, addr, ch, payload string) error {
    body, err := json.Marshal(PublishRequest{Channel: ch, Payload: payload})
    if err != nil { return err }
    return c.do(ctx, func() (*http.Request, error) {
        req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(addr, "/publish"), bytes.NewReader(body))
        if err != nil { return nil, err }
        req.Header.Set("Content-Type", "application/json")
        return req, nil
    }, func(code int, b []byte) error {
        var out PublishResponse
        _ = json.Unmarshal(b, &out)
        if code == http.StatusOK && out.OK { return nil }
        if out.Error != "" { return permanent{fmt.Errorf("publish: %s", out.Error)} }
        return fmt.Errorf("publish status %d: %s", code, string(b))
    })
}

// permanent marks a response error that retrying cannot fix.
type permanent struct{ error }

func (p permanent) Unwrap() error { return p.error }

func (c *Client) do(ctx context.Context, build func() (*http.Request, error), handle func(code int, body []byte) error) error {
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        req, err := build()
        if err != nil { return err }
        resp, err := c.httpc.Do(req)
        if err != nil {
            lastErr = err
        } else {
            b, _ := io.ReadAll(resp.Body)
            resp.Body.Close()
            lastErr = handle(resp.StatusCode, b)
            if lastErr == nil { return nil }
            if p, ok := lastErr.(permanent); ok { return p.error }
        }
        // backoff unless context is done
        select {
        case <-ctx.Done():
            return ctx.Err()
        case <-time.After(time.Duration(100*(1<<attempt)) * time.Millisecond):
        }
    }
    return lastErr
}
