// Package mgmt defines the management API surface of the controller:
// status, manual trigger, pause and resume. Two wire implementations exist,
// HTTP/JSON (httpjson) and gRPC with a JSON codec (grpcjson); both carry the
// same request and response documents.
package mgmt

import "context"

// StatusFunc returns a JSON-encoded controller status. Using []byte avoids
// import cycles on controller types.
type StatusFunc func(ctx context.Context) ([]byte, error)

// TriggerRequest asks for a manual failover.
type TriggerRequest struct {
    ClusterID      string `json:"clusterId"`
    TargetMemberID string `json:"targetMemberId,omitempty"`
    Reason         string `json:"reason,omitempty"`
}

// TriggerResponse indicates admission and carries the failover event id.
type TriggerResponse struct {
    Accepted bool   `json:"accepted"`
    EventID  string `json:"eventId,omitempty"`
    Error    string `json:"error,omitempty"`
}

// TriggerFunc handles manual failover requests.
type TriggerFunc func(ctx context.Context, req TriggerRequest) (TriggerResponse, error)

// PauseRequest halts automatic failover for a cluster.
type PauseRequest struct {
    ClusterID string `json:"clusterId"`
    Reason    string `json:"reason,omitempty"`
}

// PauseResponse indicates whether the pause was applied.
type PauseResponse struct {
    Accepted bool   `json:"accepted"`
    Error    string `json:"error,omitempty"`
}

// PauseFunc handles pause requests.
type PauseFunc func(ctx context.Context, req PauseRequest) (PauseResponse, error)

// ResumeRequest lifts a halt (operator pause or invariant ambiguity).
type ResumeRequest struct {
    ClusterID string `json:"clusterId"`
}

// ResumeResponse indicates whether the resume was applied.
type ResumeResponse struct {
    Accepted bool   `json:"accepted"`
    Error    string `json:"error,omitempty"`
}

// ResumeFunc handles resume requests.
type ResumeFunc func(ctx context.Context, req ResumeRequest) (ResumeResponse, error)

// Server exposes the management endpoints plus healthz and metrics.
type Server interface {
    Start(ctx context.Context, status StatusFunc, trigger TriggerFunc, pause PauseFunc, resume ResumeFunc) error
    Addr() string
    Stop(ctx context.Context) error
}

// Client performs management calls against a controller using the chosen
// protocol (HTTP/JSON or gRPC JSON codec).
type Client interface {
    GetStatus(ctx context.Context, addr string) ([]byte, error)
    PostTrigger(ctx context.Context, addr string, req TriggerRequest) (TriggerResponse, error)
    PostPause(ctx context.Context, addr string, req PauseRequest) (PauseResponse, error)
    PostResume(ctx context.Context, addr string, req ResumeRequest) (ResumeResponse, error)
}
