package topology

import (
    "encoding/json"
    "strings"
    "testing"
    "time"
)

func threeMembers() []*Member {
    return []*Member{
        {ID: "m1", Role: RoleWriter, Status: StatusAvailable},
        {ID: "m2", Role: RoleReader, Status: StatusAvailable},
        {ID: "m3", Role: RoleReader, Status: StatusAvailable},
    }
}

func TestNewCluster(t *testing.T) {
    c, err := NewCluster("orders", threeMembers())
    if err != nil { t.Fatalf("new: %v", err) }
    if c.State != StateStable { t.Fatalf("state = %q, want stable", c.State) }
    if len(c.Members) != 3 { t.Fatalf("members = %d, want 3", len(c.Members)) }

    if _, err := NewCluster("", nil); err == nil {
        t.Fatalf("expected error for empty cluster id")
    }
    if _, err := NewCluster("x", []*Member{{}}); err == nil {
        t.Fatalf("expected error for empty member id")
    }
}

func TestNewClusterDefaults(t *testing.T) {
    c, err := NewCluster("orders", []*Member{{ID: "m1"}})
    if err != nil { t.Fatalf("new: %v", err) }
    m := c.Member("m1")
    if m.Role != RoleUnknown || m.Status != StatusAvailable {
        t.Fatalf("defaults = %s/%s, want unknown/available", m.Role, m.Status)
    }
}

func TestWriterAndCandidates(t *testing.T) {
    c, _ := NewCluster("orders", threeMembers())
    if w := c.Writer(); w == nil || w.ID != "m1" {
        t.Fatalf("writer = %v, want m1", w)
    }
    cands := c.Candidates()
    if len(cands) != 2 || cands[0].ID != "m2" || cands[1].ID != "m3" {
        t.Fatalf("candidates out of priority order: %#v", cands)
    }

    // Degraded and unreachable readers are not candidates.
    c.Member("m2").Status = StatusDegraded
    c.Member("m3").Status = StatusUnreachable
    if got := c.Candidates(); len(got) != 0 {
        t.Fatalf("candidates = %d, want 0", len(got))
    }
}

func TestPromoteWriter(t *testing.T) {
    c, _ := NewCluster("orders", threeMembers())
    if err := c.PromoteWriter("m2"); err != nil { t.Fatalf("promote: %v", err) }
    if c.Member("m2").Role != RoleWriter {
        t.Fatalf("m2 role = %s, want writer", c.Member("m2").Role)
    }
    // Former writer is demoted to unknown until the provider reports it.
    if c.Member("m1").Role != RoleUnknown {
        t.Fatalf("m1 role = %s, want unknown", c.Member("m1").Role)
    }
    if len(c.Writers()) != 1 {
        t.Fatalf("writers = %d, want 1", len(c.Writers()))
    }
    if err := c.PromoteWriter("nope"); err == nil {
        t.Fatalf("expected error for unknown member")
    }
}

func TestAllUnreachable(t *testing.T) {
    c, _ := NewCluster("orders", threeMembers())
    if c.AllUnreachable() { t.Fatalf("fresh cluster reported all unreachable") }
    for _, m := range c.Members { m.Status = StatusUnreachable }
    if !c.AllUnreachable() { t.Fatalf("expected all unreachable") }

    empty, _ := NewCluster("empty", nil)
    if empty.AllUnreachable() {
        t.Fatalf("empty cluster must not count as all unreachable")
    }
}

func TestSnapshotIsACopy(t *testing.T) {
    c, _ := NewCluster("orders", threeMembers())
    c.LastFailover = &FailoverEvent{ID: "ev1", ClusterID: "orders", Outcome: OutcomeSucceeded}
    s := c.Snapshot()

    c.Member("m1").Status = StatusUnreachable
    c.LastFailover.ID = "mutated"

    if s.Members[0].Status != StatusAvailable {
        t.Fatalf("snapshot member mutated through the cluster")
    }
    if s.LastFailover.ID != "ev1" {
        t.Fatalf("snapshot failover mutated through the cluster")
    }
}

func TestSnapshotJSONDeterministic(t *testing.T) {
    c, _ := NewCluster("orders", []*Member{
        {ID: "zz", Role: RoleReader},
        {ID: "aa", Role: RoleWriter},
    })
    b, err := json.Marshal(c.Snapshot())
    if err != nil { t.Fatalf("marshal: %v", err) }
    if !strings.Contains(string(b), `"version":1`) {
        t.Fatalf("missing version field: %s", b)
    }
    if strings.Index(string(b), `"aa"`) > strings.Index(string(b), `"zz"`) {
        t.Fatalf("members not sorted by id: %s", b)
    }
}

func TestCheckInvariants(t *testing.T) {
    c, _ := NewCluster("orders", threeMembers())
    if err := c.CheckInvariants(); err != nil { t.Fatalf("stable cluster: %v", err) }

    c.State = StateFailoverTriggered
    if err := c.CheckInvariants(); err == nil {
        t.Fatalf("expected violation: failover state without token")
    }
    c.InFlightFailoverID = "ev1"
    if err := c.CheckInvariants(); err != nil { t.Fatalf("token in failover state: %v", err) }

    c.State = StateStable
    if err := c.CheckInvariants(); err == nil {
        t.Fatalf("expected violation: token outside failover state")
    }
    c.InFlightFailoverID = ""
    c.Member("m2").Role = RoleWriter
    if err := c.CheckInvariants(); err == nil {
        t.Fatalf("expected violation: two writers in stable state")
    }
}

func TestOutcomeTerminal(t *testing.T) {
    if OutcomePending.Terminal() { t.Fatalf("pending must not be terminal") }
    if Outcome("").Terminal() { t.Fatalf("empty must not be terminal") }
    for _, o := range []Outcome{OutcomeSucceeded, OutcomeFailed, OutcomeTimedOut} {
        if !o.Terminal() { t.Fatalf("%s must be terminal", o) }
    }
}

func TestNewFailoverEvent(t *testing.T) {
    at := time.Now()
    ev := NewFailoverEvent("orders", "m1", "", "writer lost", at)
    if ev.ID == "" { t.Fatalf("missing event id") }
    if ev.Outcome != OutcomePending { t.Fatalf("outcome = %s, want pending", ev.Outcome) }
    if ev.FromWriterID != "m1" || !ev.TriggeredAt.Equal(at) {
        t.Fatalf("unexpected event: %+v", ev)
    }
    if ev2 := NewFailoverEvent("orders", "m1", "", "again", at); ev2.ID == ev.ID {
        t.Fatalf("event ids must be unique")
    }
}
