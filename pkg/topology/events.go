package topology

import (
    "time"

    "github.com/google/uuid"
)

// HealthSample is one probe observation for a member. Samples are immutable
// after creation: the monitor appends them to the observability sink and
// folds them into Member state, nothing mutates them afterwards.
type HealthSample struct {
    ClusterID string        `json:"clusterId"`
    MemberID  string        `json:"memberId"`
    At        time.Time     `json:"at"`
    Status    Status        `json:"status"`
    Latency   time.Duration `json:"latency"`
    Error     string        `json:"error,omitempty"`
}

// Outcome is the terminal (or pending) result of a failover execution.
type Outcome string

const (
    OutcomePending   Outcome = "pending"
    OutcomeSucceeded Outcome = "succeeded"
    OutcomeTimedOut  Outcome = "timed_out"
    OutcomeFailed    Outcome = "failed"
)

// Terminal reports whether the outcome will no longer change.
func (o Outcome) Terminal() bool { return o != OutcomePending && o != "" }

// FailoverEvent is the audit record and single-flight token for one failover
// attempt. The decision engine creates it with OutcomePending; only the
// executor mutates it until a terminal outcome, after which it is immutable.
type FailoverEvent struct {
    ID           string    `json:"id"`
    ClusterID    string    `json:"clusterId"`
    TriggeredAt  time.Time `json:"triggeredAt"`
    Reason       string    `json:"reason"`
    FromWriterID string    `json:"fromWriterId,omitempty"`
    ToWriterID   string    `json:"toWriterId,omitempty"`
    TargetID     string    `json:"targetId,omitempty"`
    Outcome      Outcome   `json:"outcome"`
    CompletedAt  time.Time `json:"completedAt,omitempty"`
}

// NewFailoverEvent creates a pending failover event with a fresh unique id.
// TargetID may be empty; the executor then picks the highest-priority
// available reader at execution time.
func NewFailoverEvent(clusterID, fromWriterID, targetID, reason string, at time.Time) *FailoverEvent {
    return &FailoverEvent{
        ID:           uuid.NewString(),
        ClusterID:    clusterID,
        TriggeredAt:  at,
        Reason:       reason,
        FromWriterID: fromWriterID,
        TargetID:     targetID,
        Outcome:      OutcomePending,
    }
}

// StateTransition records one engine state change for observability.
type StateTransition struct {
    ClusterID string    `json:"clusterId"`
    From      State     `json:"from"`
    To        State     `json:"to"`
    Reason    string    `json:"reason,omitempty"`
    At        time.Time `json:"at"`
}
