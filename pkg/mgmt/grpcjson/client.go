package grpcjson

import (
    "context"
    "crypto/tls"
    "errors"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/backoff"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/credentials/insecure"
    "google.golang.org/grpc/keepalive"

    "github.com/amirimatin/go-failover/pkg/mgmt"
)

// Client implements mgmt.Client over gRPC with the JSON codec. Connections
// are dialed per call: management calls are one-shot operator commands, not
// a hot path.
type Client struct {
    timeout time.Duration
    tlsCfg  *tls.Config
}

func NewClient(timeout time.Duration) *Client {
    if timeout <= 0 { timeout = 5 * time.Second }
    return &Client{timeout: timeout}
}

// UseTLS sets TLS config for the client.
func (c *Client) UseTLS(cfg *tls.Config) *Client { c.tlsCfg = cfg; return c }

var _ mgmt.Client = (*Client)(nil)

func (c *Client) dialCtx(ctx context.Context, target string) (*grpc.ClientConn, error) {
    // Use the JSON codec and set content subtype accordingly.
    opts := []grpc.DialOption{
        grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
        grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig, MinConnectTimeout: 500 * time.Millisecond}),
        grpc.WithKeepaliveParams(keepalive.ClientParameters{Time: 20 * time.Second, Timeout: 5 * time.Second, PermitWithoutStream: true}),
    }
    if c.tlsCfg != nil {
        opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(c.tlsCfg)))
    } else {
        opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
    }
    return grpc.DialContext(ctx, target, opts...)
}

func (c *Client) GetStatus(ctx context.Context, addr string) ([]byte, error) {
    cctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    cc, err := c.dialCtx(cctx, addr)
    if err != nil { return nil, err }
    defer cc.Close()
    out := new(statusBlob)
    if err := cc.Invoke(cctx, "/failover.v1.Management/GetStatus", &empty{}, out); err != nil { return nil, err }
    return out.Data, nil
}

func (c *Client) PostTrigger(ctx context.Context, addr string, req mgmt.TriggerRequest) (mgmt.TriggerResponse, error) {
    var resp mgmt.TriggerResponse
    if err := c.invoke(ctx, addr, "/failover.v1.Management/Trigger", &req, &resp); err != nil { return resp, err }
    if resp.Error != "" { return resp, errors.New(resp.Error) }
    return resp, nil
}

func (c *Client) PostPause(ctx context.Context, addr string, req mgmt.PauseRequest) (mgmt.PauseResponse, error) {
    var resp mgmt.PauseResponse
    if err := c.invoke(ctx, addr, "/failover.v1.Management/Pause", &req, &resp); err != nil { return resp, err }
    if resp.Error != "" { return resp, errors.New(resp.Error) }
    return resp, nil
}

func (c *Client) PostResume(ctx context.Context, addr string, req mgmt.ResumeRequest) (mgmt.ResumeResponse, error) {
    var resp mgmt.ResumeResponse
    if err := c.invoke(ctx, addr, "/failover.v1.Management/Resume", &req, &resp); err != nil { return resp, err }
    if resp.Error != "" { return resp, errors.New(resp.Error) }
    return resp, nil
}

func (c *Client) invoke(ctx context.Context, addr, method string, in, out any) error {
    cctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    cc, err := c.dialCtx(cctx, addr)
    if err != nil { return err }
    defer cc.Close()
    return cc.Invoke(cctx, method, in, out)
}
