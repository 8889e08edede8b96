package provider

import (
    "context"
    "time"

    "github.com/amirimatin/go-failover/pkg/topology"
)

// MemberInfo describes one member as reported by the status provider's
// topology query.
type MemberInfo struct {
    ID     string          `json:"id"`
    Region string          `json:"region,omitempty"`
    Role   topology.Role   `json:"role"`
    Status topology.Status `json:"status"`
}

// Snapshot is the provider-reported view of a cluster.
type Snapshot struct {
    ClusterID string       `json:"clusterId"`
    Members   []MemberInfo `json:"members"`
}

// MemberStatus is the result of probing a single member.
type MemberStatus struct {
    Status  topology.Status `json:"status"`
    Role    topology.Role   `json:"role"`
    Latency time.Duration   `json:"latency"`
}

// StatusProvider is the external source of truth for cluster topology and
// member health. Query returns the full membership with roles; Probe checks
// one member. Probe errors are member-level unless wrapped in *Error, which
// marks a provider-level outage.
type StatusProvider interface {
    Query(ctx context.Context, clusterID string) (Snapshot, error)
    Probe(ctx context.Context, clusterID, memberID string) (MemberStatus, error)
}

// OperationHandle identifies an in-progress failover operation on the
// control plane, used to poll for completion (and to join an operation that
// was already running).
type OperationHandle struct {
    ID        string `json:"id"`
    ClusterID string `json:"clusterId"`
}

// OperationState is the control-plane view of an operation.
type OperationState string

const (
    OperationPending OperationState = "pending"
    OperationDone    OperationState = "done"
    OperationFailed  OperationState = "failed"
)

// ControlPlane issues failover commands to the external system that actually
// performs the promotion. TriggerFailover returns ErrAlreadyInProgress when
// an operation for the cluster is running; callers are expected to join it
// by polling rather than issuing a duplicate.
type ControlPlane interface {
    TriggerFailover(ctx context.Context, clusterID, targetMemberID string) (OperationHandle, error)
    PollOperation(ctx context.Context, handle OperationHandle) (OperationState, error)
}
