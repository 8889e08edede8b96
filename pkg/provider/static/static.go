// Package static provides in-memory StatusProvider and ControlPlane
// implementations for development and tests. The provider is a mutable
// fixture: tests flip member health between cycles to script failure
// scenarios, and the control plane performs promotions directly against the
// fixture after a configurable number of polls.
package static

import (
    "context"
    "fmt"
    "sync"
    "time"

    "github.com/amirimatin/go-failover/pkg/provider"
    "github.com/amirimatin/go-failover/pkg/topology"
)

// Provider is an in-memory status provider for one or more clusters.
type Provider struct {
    mu       sync.Mutex
    clusters map[string]map[string]*provider.MemberInfo
    order    map[string][]string
    latency  time.Duration
    outage   bool
}

// New returns an empty in-memory provider.
func New() *Provider {
    return &Provider{
        clusters: make(map[string]map[string]*provider.MemberInfo),
        order:    make(map[string][]string),
        latency:  time.Millisecond,
    }
}

// Add registers a member. Call order defines promotion priority.
func (p *Provider) Add(clusterID string, m provider.MemberInfo) {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.clusters[clusterID] == nil { p.clusters[clusterID] = make(map[string]*provider.MemberInfo) }
    mi := m
    p.clusters[clusterID][m.ID] = &mi
    p.order[clusterID] = append(p.order[clusterID], m.ID)
}

// SetStatus updates one member's reported health.
func (p *Provider) SetStatus(clusterID, memberID string, st topology.Status) {
    p.mu.Lock()
    defer p.mu.Unlock()
    if m := p.lookup(clusterID, memberID); m != nil { m.Status = st }
}

// SetRole updates one member's reported role.
func (p *Provider) SetRole(clusterID, memberID string, role topology.Role) {
    p.mu.Lock()
    defer p.mu.Unlock()
    if m := p.lookup(clusterID, memberID); m != nil { m.Role = role }
}

// SetOutage toggles a provider-level outage: every Query and Probe fails
// with a *provider.Error while enabled.
func (p *Provider) SetOutage(on bool) {
    p.mu.Lock()
    p.outage = on
    p.mu.Unlock()
}

func (p *Provider) lookup(clusterID, memberID string) *provider.MemberInfo {
    if ms := p.clusters[clusterID]; ms != nil { return ms[memberID] }
    return nil
}

func (p *Provider) Query(ctx context.Context, clusterID string) (provider.Snapshot, error) {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.outage {
        return provider.Snapshot{}, provider.Outage("query", fmt.Errorf("static: simulated outage"))
    }
    ms := p.clusters[clusterID]
    if ms == nil { return provider.Snapshot{}, provider.ErrUnknownCluster }
    snap := provider.Snapshot{ClusterID: clusterID}
    for _, id := range p.order[clusterID] {
        snap.Members = append(snap.Members, *ms[id])
    }
    return snap, nil
}

func (p *Provider) Probe(ctx context.Context, clusterID, memberID string) (provider.MemberStatus, error) {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.outage {
        return provider.MemberStatus{}, provider.Outage("probe", fmt.Errorf("static: simulated outage"))
    }
    m := p.lookup(clusterID, memberID)
    if m == nil { return provider.MemberStatus{}, provider.ErrUnknownMember }
    if m.Status == topology.StatusUnreachable {
        return provider.MemberStatus{}, fmt.Errorf("static: member %s unreachable", memberID)
    }
    return provider.MemberStatus{Status: m.Status, Role: m.Role, Latency: p.latency}, nil
}

var _ provider.StatusProvider = (*Provider)(nil)

// ControlPlane is an in-memory control plane bound to a Provider. A
// triggered operation completes after PollsToDone polls, at which point the
// target is promoted in the fixture (old writer demoted to reader).
type ControlPlane struct {
    mu sync.Mutex

    // PollsToDone is how many PollOperation calls an operation stays
    // pending before completing. Zero completes on the first poll.
    PollsToDone int

    // ThrottleFirst makes the first N trigger attempts fail with
    // ErrThrottled, to exercise the executor's retry path.
    ThrottleFirst int

    // FailTrigger makes every trigger attempt fail hard.
    FailTrigger bool

    prov     *Provider
    ops      map[string]*operation
    triggers int
}

type operation struct {
    clusterID string
    targetID  string
    polls     int
}

// NewControlPlane returns a control plane operating on the given fixture.
func NewControlPlane(p *Provider) *ControlPlane {
    return &ControlPlane{prov: p, ops: make(map[string]*operation)}
}

// Triggers returns how many trigger requests were issued (including
// throttled and rejected ones).
func (cp *ControlPlane) Triggers() int {
    cp.mu.Lock()
    defer cp.mu.Unlock()
    return cp.triggers
}

func (cp *ControlPlane) TriggerFailover(ctx context.Context, clusterID, targetMemberID string) (provider.OperationHandle, error) {
    cp.mu.Lock()
    defer cp.mu.Unlock()
    cp.triggers++
    if cp.FailTrigger {
        return provider.OperationHandle{}, fmt.Errorf("static: trigger rejected")
    }
    if cp.triggers <= cp.ThrottleFirst {
        return provider.OperationHandle{}, provider.ErrThrottled
    }
    for id, op := range cp.ops {
        if op.clusterID == clusterID {
            return provider.OperationHandle{ID: id, ClusterID: clusterID}, provider.ErrAlreadyInProgress
        }
    }
    id := fmt.Sprintf("op-%d", cp.triggers)
    cp.ops[id] = &operation{clusterID: clusterID, targetID: targetMemberID}
    return provider.OperationHandle{ID: id, ClusterID: clusterID}, nil
}

func (cp *ControlPlane) PollOperation(ctx context.Context, handle provider.OperationHandle) (provider.OperationState, error) {
    cp.mu.Lock()
    defer cp.mu.Unlock()
    op := cp.ops[handle.ID]
    if op == nil { return "", provider.ErrUnknownOperation }
    op.polls++
    if op.polls <= cp.PollsToDone { return provider.OperationPending, nil }
    cp.promote(op)
    delete(cp.ops, handle.ID)
    return provider.OperationDone, nil
}

func (cp *ControlPlane) promote(op *operation) {
    if cp.prov == nil { return }
    cp.prov.mu.Lock()
    defer cp.prov.mu.Unlock()
    ms := cp.prov.clusters[op.clusterID]
    if ms == nil { return }
    for _, m := range ms {
        if m.Role == topology.RoleWriter { m.Role = topology.RoleReader }
    }
    if t := ms[op.targetID]; t != nil {
        t.Role = topology.RoleWriter
        t.Status = topology.StatusAvailable
    }
}

var _ provider.ControlPlane = (*ControlPlane)(nil)
