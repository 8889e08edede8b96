// Package httpjson implements the provider contracts over a plain HTTP/JSON
// API, for control planes that expose cluster topology and failover commands
// through a REST-ish endpoint.
//
// The wire layout:
//
//	GET  /v1/clusters/{cluster}/topology           -> topologyDoc
//	GET  /v1/clusters/{cluster}/members/{m}/health -> healthDoc
//	POST /v1/clusters/{cluster}/failover           -> operationDoc (202)
//	GET  /v1/operations/{op}                       -> operationDoc
//
// The client performs exactly one attempt per call: the monitor and the
// executor own the retry policy, and hiding retries here would break the
// throttle and already-in-progress semantics they depend on.
package httpjson

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "time"

    "github.com/amirimatin/go-failover/pkg/provider"
    "github.com/amirimatin/go-failover/pkg/security/tlsconfig"
    "github.com/amirimatin/go-failover/pkg/topology"
)

// Options configures the HTTP provider client.
type Options struct {
    // BaseURL of the provider API, e.g. "http://provider.internal:8080".
    BaseURL string

    // Timeout per request. Default 5s.
    Timeout time.Duration

    // TLS enables HTTPS with the given material when TLS.Enable is set.
    TLS tlsconfig.Options

    // AuthToken, when set, is sent as a bearer token on every request.
    AuthToken string
}

// Provider implements provider.StatusProvider and provider.ControlPlane over
// the HTTP/JSON API.
type Provider struct {
    opts  Options
    httpc *http.Client
}

// New constructs a Provider. It performs no network activity.
func New(opts Options) (*Provider, error) {
    if opts.BaseURL == "" {
        return nil, fmt.Errorf("httpjson: empty BaseURL")
    }
    if opts.Timeout <= 0 { opts.Timeout = 5 * time.Second }
    tr := &http.Transport{}
    if opts.TLS.Enable {
        cfg, err := opts.TLS.Client()
        if err != nil { return nil, err }
        tr.TLSClientConfig = cfg
    }
    return &Provider{opts: opts, httpc: &http.Client{Timeout: opts.Timeout, Transport: tr}}, nil
}

var (
    _ provider.StatusProvider = (*Provider)(nil)
    _ provider.ControlPlane   = (*Provider)(nil)
)

type memberDoc struct {
    ID      string `json:"id"`
    Region  string `json:"region,omitempty"`
    Role    string `json:"role,omitempty"`
}

type topologyDoc struct {
    ClusterID string      `json:"clusterId"`
    Members   []memberDoc `json:"members"`
}

type healthDoc struct {
    Status    string `json:"status"`
    Role      string `json:"role,omitempty"`
    LatencyMS int64  `json:"latencyMs,omitempty"`
    Detail    string `json:"detail,omitempty"`
}

type operationDoc struct {
    OperationID string `json:"operationId"`
    State       string `json:"state,omitempty"`
    Error       string `json:"error,omitempty"`
}

// Query fetches the cluster's current membership and roles.
func (p *Provider) Query(ctx context.Context, clusterID string) (provider.Snapshot, error) {
    var doc topologyDoc
    code, err := p.get(ctx, fmt.Sprintf("/v1/clusters/%s/topology", clusterID), &doc)
    if err != nil {
        return provider.Snapshot{}, provider.Outage("query", err)
    }
    switch code {
    case http.StatusOK:
    case http.StatusNotFound:
        return provider.Snapshot{}, provider.ErrUnknownCluster
    default:
        return provider.Snapshot{}, provider.Outage("query", fmt.Errorf("httpjson: status %d", code))
    }
    snap := provider.Snapshot{ClusterID: doc.ClusterID}
    if snap.ClusterID == "" { snap.ClusterID = clusterID }
    for _, m := range doc.Members {
        snap.Members = append(snap.Members, provider.MemberInfo{
            ID: m.ID, Region: m.Region, Role: topology.Role(m.Role),
        })
    }
    return snap, nil
}

// Probe checks one member's health. The provider answers 200 with the
// member's state when it could reach the member, and 503 when it could not;
// the 503 is a member-level failure, not a provider outage, and feeds the
// failure counters.
func (p *Provider) Probe(ctx context.Context, clusterID, memberID string) (provider.MemberStatus, error) {
    var doc healthDoc
    code, err := p.get(ctx, fmt.Sprintf("/v1/clusters/%s/members/%s/health", clusterID, memberID), &doc)
    if err != nil {
        return provider.MemberStatus{}, provider.Outage("probe", err)
    }
    switch code {
    case http.StatusOK:
        st := provider.MemberStatus{
            Status:  topology.Status(doc.Status),
            Role:    topology.Role(doc.Role),
            Latency: time.Duration(doc.LatencyMS) * time.Millisecond,
        }
        return st, nil
    case http.StatusServiceUnavailable:
        if doc.Detail == "" { doc.Detail = "member unreachable" }
        return provider.MemberStatus{}, fmt.Errorf("httpjson: %s", doc.Detail)
    case http.StatusNotFound:
        return provider.MemberStatus{}, provider.ErrUnknownMember
    default:
        return provider.MemberStatus{}, provider.Outage("probe", fmt.Errorf("httpjson: status %d", code))
    }
}

// TriggerFailover asks the control plane to promote the target member. A 409
// maps to ErrAlreadyInProgress and carries the running operation's handle
// when the control plane includes it, so the executor can join it.
func (p *Provider) TriggerFailover(ctx context.Context, clusterID, targetMemberID string) (provider.OperationHandle, error) {
    body, err := json.Marshal(struct {
        TargetMemberID string `json:"targetMemberId,omitempty"`
    }{TargetMemberID: targetMemberID})
    if err != nil { return provider.OperationHandle{}, err }

    var doc operationDoc
    code, err := p.post(ctx, fmt.Sprintf("/v1/clusters/%s/failover", clusterID), body, &doc)
    if err != nil {
        return provider.OperationHandle{}, provider.Outage("trigger", err)
    }
    handle := provider.OperationHandle{ID: doc.OperationID, ClusterID: clusterID}
    switch code {
    case http.StatusOK, http.StatusAccepted:
        return handle, nil
    case http.StatusConflict:
        return handle, provider.ErrAlreadyInProgress
    case http.StatusTooManyRequests:
        return provider.OperationHandle{}, provider.ErrThrottled
    case http.StatusNotFound:
        return provider.OperationHandle{}, provider.ErrUnknownCluster
    default:
        if doc.Error != "" {
            return provider.OperationHandle{}, fmt.Errorf("httpjson: trigger rejected: %s", doc.Error)
        }
        return provider.OperationHandle{}, fmt.Errorf("httpjson: trigger status %d", code)
    }
}

// PollOperation reports the state of a previously issued failover.
func (p *Provider) PollOperation(ctx context.Context, handle provider.OperationHandle) (provider.OperationState, error) {
    var doc operationDoc
    code, err := p.get(ctx, fmt.Sprintf("/v1/operations/%s", handle.ID), &doc)
    if err != nil {
        return provider.OperationPending, provider.Outage("poll", err)
    }
    switch code {
    case http.StatusOK:
    case http.StatusNotFound:
        return provider.OperationPending, provider.ErrUnknownOperation
    default:
        return provider.OperationPending, provider.Outage("poll", fmt.Errorf("httpjson: status %d", code))
    }
    switch doc.State {
    case "done":
        return provider.OperationDone, nil
    case "failed":
        return provider.OperationFailed, nil
    default:
        return provider.OperationPending, nil
    }
}

func (p *Provider) get(ctx context.Context, path string, out any) (int, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.opts.BaseURL+path, nil)
    if err != nil { return 0, err }
    return p.do(req, out)
}

func (p *Provider) post(ctx context.Context, path string, body []byte, out any) (int, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.opts.BaseURL+path, bytes.NewReader(body))
    if err != nil { return 0, err }
    req.Header.Set("Content-Type", "application/json")
    return p.do(req, out)
}

func (p *Provider) do(req *http.Request, out any) (int, error) {
    if p.opts.AuthToken != "" {
        req.Header.Set("Authorization", "Bearer "+p.opts.AuthToken)
    }
    resp, err := p.httpc.Do(req)
    if err != nil { return 0, err }
    defer resp.Body.Close()
    b, err := io.ReadAll(resp.Body)
    if err != nil { return resp.StatusCode, err }
    if len(b) > 0 && out != nil {
        // Tolerate non-JSON error bodies; the status code decides the path.
        _ = json.Unmarshal(b, out)
    }
    return resp.StatusCode, nil
}
