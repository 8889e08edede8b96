package httpjson

import (
    "bytes"
    "context"
    "crypto/tls"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "time"

    "github.com/amirimatin/go-failover/pkg/mgmt"
)

// Client is a thin HTTP client for the management API. It supports optional
// TLS configuration and simple retry with backoff for robustness. Mutating
// calls (trigger, pause, resume) are not retried: the controller deduplicates
// triggers, but a retried trigger after an ambiguous network error would
// still race the cooldown, so the operator decides.
type Client struct {
    httpc     *http.Client
    transport *http.Transport
    isTLS     bool
}

// NewClient constructs a new Client with the given timeout.
func NewClient(timeout time.Duration) *Client {
    if timeout <= 0 { timeout = 5 * time.Second }
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

var _ mgmt.Client = (*Client)(nil)

func (c *Client) url(addr, path string) string {
    scheme := "http"
    if c.isTLS { scheme = "https" }
    return fmt.Sprintf("%s://%s%s", scheme, addr, path)
}

// GetStatus fetches the controller status document, retrying with backoff.
func (c *Client) GetStatus(ctx context.Context, addr string) ([]byte, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(addr, "/status"), nil)
    if err != nil { return nil, err }
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        resp, err := c.httpc.Do(req)
        if err != nil {
            lastErr = err
        } else {
            b, rerr := func() ([]byte, error) {
                defer resp.Body.Close()
                return io.ReadAll(resp.Body)
            }()
            if rerr != nil {
                lastErr = rerr
            } else if resp.StatusCode != http.StatusOK {
                lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
            } else {
                return b, nil
            }
        }
        select {
        case <-ctx.Done():
            return nil, ctx.Err()
        case <-time.After(time.Duration(100*(1<<attempt)) * time.Millisecond):
        }
    }
    return nil, lastErr
}

// PostTrigger requests a manual failover.
func (c *Client) PostTrigger(ctx context.Context, addr string, req mgmt.TriggerRequest) (mgmt.TriggerResponse, error) {
    var out mgmt.TriggerResponse
    err := c.post(ctx, addr, "/trigger", req, &out)
    if err == nil && out.Error != "" { err = errors.New(out.Error) }
    return out, err
}

// PostPause halts automatic failover for a cluster.
func (c *Client) PostPause(ctx context.Context, addr string, req mgmt.PauseRequest) (mgmt.PauseResponse, error) {
    var out mgmt.PauseResponse
    err := c.post(ctx, addr, "/pause", req, &out)
    if err == nil && out.Error != "" { err = errors.New(out.Error) }
    return out, err
}

// PostResume lifts a halt for a cluster.
func (c *Client) PostResume(ctx context.Context, addr string, req mgmt.ResumeRequest) (mgmt.ResumeResponse, error) {
    var out mgmt.ResumeResponse
    err := c.post(ctx, addr, "/resume", req, &out)
    if err == nil && out.Error != "" { err = errors.New(out.Error) }
    return out, err
}

func (c *Client) post(ctx context.Context, addr, path string, in, out any) error {
    body, err := json.Marshal(in)
    if err != nil { return err }
    httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(addr, path), bytes.NewReader(body))
    if err != nil { return err }
    httpReq.Header.Set("Content-Type", "application/json")
    resp, err := c.httpc.Do(httpReq)
    if err != nil { return err }
    defer resp.Body.Close()
    b, err := io.ReadAll(resp.Body)
    if err != nil { return err }
    // The response document carries the outcome even on non-200 codes.
    if len(b) > 0 {
        if uerr := json.Unmarshal(b, out); uerr != nil {
            return fmt.Errorf("%s status %d: %s", path, resp.StatusCode, string(b))
        }
        return nil
    }
    if resp.StatusCode != http.StatusOK {
        return fmt.Errorf("%s status %d", path, resp.StatusCode)
    }
    return nil
}
