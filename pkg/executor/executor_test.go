package executor

import (
    "context"
    "strings"
    "testing"
    "time"

    "github.com/amirimatin/go-failover/pkg/provider"
    "github.com/amirimatin/go-failover/pkg/provider/static"
    "github.com/amirimatin/go-failover/pkg/topology"
)

// fixture returns a cluster whose writer m1 is already confirmed lost, which
// is the state an event is created in.
func fixture(t *testing.T) (*static.Provider, *static.ControlPlane, *topology.Cluster) {
    t.Helper()
    p := static.New()
    p.Add("orders", provider.MemberInfo{ID: "m1", Role: topology.RoleWriter, Status: topology.StatusUnreachable})
    p.Add("orders", provider.MemberInfo{ID: "m2", Role: topology.RoleReader, Status: topology.StatusAvailable})
    p.Add("orders", provider.MemberInfo{ID: "m3", Role: topology.RoleReader, Status: topology.StatusAvailable})
    c, err := topology.NewCluster("orders", []*topology.Member{
        {ID: "m1", Role: topology.RoleWriter, Status: topology.StatusUnreachable, ConsecutiveFailures: 3},
        {ID: "m2", Role: topology.RoleReader, Status: topology.StatusAvailable},
        {ID: "m3", Role: topology.RoleReader, Status: topology.StatusAvailable},
    })
    if err != nil { t.Fatalf("cluster: %v", err) }
    c.State = topology.StateFailoverTriggered
    return p, static.NewControlPlane(p), c
}

func newExecutor(t *testing.T, p *static.Provider, cp *static.ControlPlane, timeout time.Duration) *Executor {
    t.Helper()
    x, err := New(Options{
        ControlPlane: cp,
        Provider:     p,
        PollInterval: 10 * time.Millisecond,
        Timeout:      timeout,
    })
    if err != nil { t.Fatalf("executor: %v", err) }
    return x
}

func pendingEvent(c *topology.Cluster) *topology.FailoverEvent {
    ev := topology.NewFailoverEvent(c.ID, "m1", "", "writer lost", time.Now())
    c.InFlightFailoverID = ev.ID
    return ev
}

func TestExecuteSuccess(t *testing.T) {
    p, cp, c := fixture(t)
    cp.PollsToDone = 1
    x := newExecutor(t, p, cp, 2*time.Second)
    ev := pendingEvent(c)

    got := x.Execute(context.Background(), c, ev)
    if got.Outcome != topology.OutcomeSucceeded {
        t.Fatalf("outcome = %s, want succeeded (%s)", got.Outcome, got.Reason)
    }
    if got.ToWriterID != "m2" { t.Fatalf("new writer = %q, want m2 (first candidate)", got.ToWriterID) }
    if got.CompletedAt.IsZero() { t.Fatalf("CompletedAt not set") }

    // The confirmed role change is folded into the model.
    if w := c.Writer(); w == nil || w.ID != "m2" {
        t.Fatalf("model writer = %v, want m2", w)
    }
    if c.Member("m1").Role == topology.RoleWriter { t.Fatalf("old writer not demoted") }
}

func TestExecuteHonorsExplicitTarget(t *testing.T) {
    p, cp, c := fixture(t)
    x := newExecutor(t, p, cp, 2*time.Second)
    ev := topology.NewFailoverEvent(c.ID, "m1", "m3", "manual", time.Now())
    c.InFlightFailoverID = ev.ID

    got := x.Execute(context.Background(), c, ev)
    if got.Outcome != topology.OutcomeSucceeded { t.Fatalf("outcome = %s (%s)", got.Outcome, got.Reason) }
    if got.ToWriterID != "m3" { t.Fatalf("new writer = %q, want m3", got.ToWriterID) }
}

func TestExecuteRetriesOnThrottle(t *testing.T) {
    p, cp, c := fixture(t)
    cp.ThrottleFirst = 1
    x := newExecutor(t, p, cp, 2*time.Second)

    got := x.Execute(context.Background(), c, pendingEvent(c))
    if got.Outcome != topology.OutcomeSucceeded { t.Fatalf("outcome = %s (%s)", got.Outcome, got.Reason) }
    if n := cp.Triggers(); n != 2 {
        t.Fatalf("trigger attempts = %d, want 2 (one throttled, one accepted)", n)
    }
}

func TestExecuteJoinsInProgressOperation(t *testing.T) {
    p, cp, c := fixture(t)

    // Another actor already started a failover for this cluster.
    if _, err := cp.TriggerFailover(context.Background(), "orders", "m2"); err != nil {
        t.Fatalf("pre-trigger: %v", err)
    }
    x := newExecutor(t, p, cp, 2*time.Second)

    got := x.Execute(context.Background(), c, pendingEvent(c))
    if got.Outcome != topology.OutcomeSucceeded { t.Fatalf("outcome = %s (%s)", got.Outcome, got.Reason) }
    // Joining must not issue a second operation; both trigger calls were
    // recorded but only one operation ran.
    if n := cp.Triggers(); n != 2 { t.Fatalf("trigger calls = %d, want 2", n) }
    if got.ToWriterID != "m2" {
        t.Fatalf("new writer = %q, want the joined operation's target m2", got.ToWriterID)
    }
}

func TestExecuteTriggerRejected(t *testing.T) {
    p, cp, c := fixture(t)
    cp.FailTrigger = true
    x := newExecutor(t, p, cp, 2*time.Second)

    got := x.Execute(context.Background(), c, pendingEvent(c))
    if got.Outcome != topology.OutcomeFailed { t.Fatalf("outcome = %s, want failed", got.Outcome) }
    if !strings.Contains(got.Reason, "trigger failed") {
        t.Fatalf("reason = %q, want trigger failure detail", got.Reason)
    }
    if w := c.Writer(); w == nil || w.ID != "m1" {
        t.Fatalf("model mutated on failed trigger: %v", w)
    }
}

func TestExecuteTimesOut(t *testing.T) {
    p, cp, c := fixture(t)
    cp.PollsToDone = 1 << 30
    x := newExecutor(t, p, cp, 100*time.Millisecond)

    got := x.Execute(context.Background(), c, pendingEvent(c))
    if got.Outcome != topology.OutcomeTimedOut {
        t.Fatalf("outcome = %s, want timed_out", got.Outcome)
    }
}

func TestExecuteNoTargetAvailable(t *testing.T) {
    p, cp, c := fixture(t)
    c.Member("m2").Status = topology.StatusUnreachable
    c.Member("m3").Status = topology.StatusDegraded
    x := newExecutor(t, p, cp, time.Second)

    got := x.Execute(context.Background(), c, pendingEvent(c))
    if got.Outcome != topology.OutcomeFailed { t.Fatalf("outcome = %s, want failed", got.Outcome) }
    if n := cp.Triggers(); n != 0 {
        t.Fatalf("trigger issued with no viable target: %d calls", n)
    }
}

// failingControlPlane accepts the trigger, then reports the operation failed.
type failingControlPlane struct{}

func (failingControlPlane) TriggerFailover(context.Context, string, string) (provider.OperationHandle, error) {
    return provider.OperationHandle{ID: "op-1", ClusterID: "orders"}, nil
}

func (failingControlPlane) PollOperation(context.Context, provider.OperationHandle) (provider.OperationState, error) {
    return provider.OperationFailed, nil
}

func TestExecuteOperationReportedFailed(t *testing.T) {
    p, _, c := fixture(t)
    x, err := New(Options{
        ControlPlane: failingControlPlane{},
        Provider:     p,
        PollInterval: 10 * time.Millisecond,
        Timeout:      time.Second,
    })
    if err != nil { t.Fatalf("executor: %v", err) }

    got := x.Execute(context.Background(), c, pendingEvent(c))
    if got.Outcome != topology.OutcomeFailed { t.Fatalf("outcome = %s, want failed", got.Outcome) }
    if !strings.Contains(got.Reason, "operation failed") {
        t.Fatalf("reason = %q, want operation failure detail", got.Reason)
    }
}
