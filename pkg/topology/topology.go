package topology

import (
    "encoding/json"
    "fmt"
    "sort"
    "time"
)

// Role describes the replication role of a cluster member.
type Role string

const (
    RoleWriter  Role = "writer"
    RoleReader  Role = "reader"
    RoleUnknown Role = "unknown"
)

// Status describes the observed health of a cluster member.
type Status string

const (
    StatusAvailable   Status = "available"
    StatusDegraded    Status = "degraded"
    StatusUnreachable Status = "unreachable"
)

// State is the failure-detection state of a cluster as driven by the
// decision engine.
type State string

const (
    StateStable            State = "stable"
    StateSuspectedFailure  State = "suspected_failure"
    StateFailoverTriggered State = "failover_triggered"
    StateCoolingDown       State = "cooling_down"
)

// Member is the in-memory record for one cluster member. Members are created
// at controller startup from the initial topology query and updated in place
// every cycle by the health monitor; they are owned by the per-cluster
// evaluation loop and must not be mutated elsewhere.
type Member struct {
    ID                  string    `json:"id"`
    Region              string    `json:"region,omitempty"`
    Role                Role      `json:"role"`
    Status              Status    `json:"status"`
    ConsecutiveFailures int       `json:"consecutiveFailures"`
    LastSeenAt          time.Time `json:"lastSeenAt,omitempty"`
    LastSampleError     string    `json:"lastSampleError,omitempty"`
}

// Cluster is the topology model for one monitored cluster: an ordered set of
// members plus the engine bookkeeping needed to drive transitions. All
// mutation happens under the owning loop; Snapshot is the only read path
// intended for other goroutines (the caller must hold the loop's mutex).
type Cluster struct {
    ID              string
    Members         []*Member
    State           State
    LastEvaluatedAt time.Time

    // InFlightFailoverID is the single-flight token: non-empty iff State is
    // StateFailoverTriggered and an executor run owns the event.
    InFlightFailoverID string

    // Halted stops automatic transitions for this cluster (operator pause or
    // InvariantAmbiguity). Monitoring and reporting continue while halted.
    Halted     bool
    HaltReason string

    // SuspectedSince anchors the grace-period window while in
    // StateSuspectedFailure.
    SuspectedSince time.Time

    // CooldownUntil is the end of the quiescent window after a failover.
    CooldownUntil time.Time

    // LastFailover is the most recent terminal failover event, retained for
    // audit and status reporting.
    LastFailover *FailoverEvent
}

// NewCluster builds a cluster in StateStable from an initial member list.
// Member order is preserved: it doubles as promotion priority.
func NewCluster(id string, members []*Member) (*Cluster, error) {
    if id == "" { return nil, fmt.Errorf("topology: empty cluster id") }
    c := &Cluster{ID: id, State: StateStable}
    for _, m := range members {
        if m.ID == "" { return nil, fmt.Errorf("topology: empty member id in cluster %s", id) }
        if m.Role == "" { m.Role = RoleUnknown }
        if m.Status == "" { m.Status = StatusAvailable }
        c.Members = append(c.Members, m)
    }
    return c, nil
}

// Member returns the member with the given id, or nil.
func (c *Cluster) Member(id string) *Member {
    for _, m := range c.Members {
        if m.ID == id { return m }
    }
    return nil
}

// Writer returns the current writer member, or nil when none is known.
func (c *Cluster) Writer() *Member {
    for _, m := range c.Members {
        if m.Role == RoleWriter { return m }
    }
    return nil
}

// Writers returns every member currently holding the writer role. More than
// one entry indicates an unreconciled (or ambiguous) topology.
func (c *Cluster) Writers() []*Member {
    var out []*Member
    for _, m := range c.Members {
        if m.Role == RoleWriter { out = append(out, m) }
    }
    return out
}

// Candidates returns the available readers in priority order. The first
// entry is the default promotion target.
func (c *Cluster) Candidates() []*Member {
    var out []*Member
    for _, m := range c.Members {
        if m.Role == RoleReader && m.Status == StatusAvailable { out = append(out, m) }
    }
    return out
}

// AllUnreachable reports whether every member is unreachable. The engine
// treats this as indistinguishable from a monitoring-side partition.
func (c *Cluster) AllUnreachable() bool {
    if len(c.Members) == 0 { return false }
    for _, m := range c.Members {
        if m.Status != StatusUnreachable { return false }
    }
    return true
}

// PromoteWriter folds a confirmed role change into the model: target becomes
// the writer and every other former writer is demoted to RoleUnknown until
// the provider reports its post-failover role.
func (c *Cluster) PromoteWriter(targetID string) error {
    target := c.Member(targetID)
    if target == nil { return fmt.Errorf("topology: unknown member %s in cluster %s", targetID, c.ID) }
    for _, m := range c.Members {
        if m.Role == RoleWriter && m.ID != targetID { m.Role = RoleUnknown }
    }
    target.Role = RoleWriter
    return nil
}

// Snapshot is the JSON-serializable view of a cluster used by the management
// status endpoint and by observability sinks.
type Snapshot struct {
    Version            int            `json:"version"`
    ClusterID          string         `json:"clusterId"`
    State              State          `json:"state"`
    Halted             bool           `json:"halted"`
    HaltReason         string         `json:"haltReason,omitempty"`
    InFlightFailoverID string         `json:"inFlightFailoverId,omitempty"`
    LastEvaluatedAt    time.Time      `json:"lastEvaluatedAt,omitempty"`
    CooldownUntil      time.Time      `json:"cooldownUntil,omitempty"`
    Members            []Member       `json:"members"`
    LastFailover       *FailoverEvent `json:"lastFailover,omitempty"`
}

// Snapshot copies the cluster into a Snapshot value. Members are copied so
// the result is safe to hand across goroutines.
func (c *Cluster) Snapshot() Snapshot {
    s := Snapshot{
        Version:            1,
        ClusterID:          c.ID,
        State:              c.State,
        Halted:             c.Halted,
        HaltReason:         c.HaltReason,
        InFlightFailoverID: c.InFlightFailoverID,
        LastEvaluatedAt:    c.LastEvaluatedAt,
        CooldownUntil:      c.CooldownUntil,
    }
    for _, m := range c.Members {
        s.Members = append(s.Members, *m)
    }
    if c.LastFailover != nil {
        ev := *c.LastFailover
        s.LastFailover = &ev
    }
    return s
}

// MarshalJSON keeps snapshot member order deterministic for diffable status
// output regardless of how the member list was assembled.
func (s Snapshot) MarshalJSON() ([]byte, error) {
    type alias Snapshot
    a := alias(s)
    a.Members = append([]Member(nil), s.Members...)
    sort.SliceStable(a.Members, func(i, j int) bool { return a.Members[i].ID < a.Members[j].ID })
    return json.Marshal(a)
}

// CheckInvariants validates the cluster-level invariants that must hold in a
// confirmed stable state. It is advisory: callers decide how violations are
// surfaced.
func (c *Cluster) CheckInvariants() error {
    if c.State == StateFailoverTriggered && c.InFlightFailoverID == "" {
        return fmt.Errorf("topology: %s in %s without in-flight failover id", c.ID, c.State)
    }
    if c.State != StateFailoverTriggered && c.InFlightFailoverID != "" {
        return fmt.Errorf("topology: %s holds failover id %s outside %s", c.ID, c.InFlightFailoverID, StateFailoverTriggered)
    }
    if c.State == StateStable {
        if n := len(c.Writers()); n != 1 {
            return fmt.Errorf("topology: %s stable with %d writers", c.ID, n)
        }
    }
    return nil
}
