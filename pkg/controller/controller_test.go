package controller

import (
    "context"
    "errors"
    "testing"
    "time"

    "github.com/amirimatin/go-failover/pkg/engine"
    "github.com/amirimatin/go-failover/pkg/provider"
    "github.com/amirimatin/go-failover/pkg/provider/static"
    "github.com/amirimatin/go-failover/pkg/sink"
    "github.com/amirimatin/go-failover/pkg/topology"
)

func fixture(t *testing.T) (*static.Provider, *static.ControlPlane) {
    t.Helper()
    p := static.New()
    p.Add("orders", provider.MemberInfo{ID: "m1", Role: topology.RoleWriter, Status: topology.StatusAvailable})
    p.Add("orders", provider.MemberInfo{ID: "m2", Role: topology.RoleReader, Status: topology.StatusAvailable})
    p.Add("orders", provider.MemberInfo{ID: "m3", Role: topology.RoleReader, Status: topology.StatusAvailable})
    return p, static.NewControlPlane(p)
}

// fastOptions returns options tuned so a full detect-and-failover round trip
// completes within a couple hundred milliseconds.
func fastOptions(p *static.Provider, cp *static.ControlPlane) Options {
    return Options{
        Clusters:         []string{"orders"},
        Provider:         p,
        ControlPlane:     cp,
        PollInterval:     10 * time.Millisecond,
        FailureThreshold: 2,
        GracePeriod:      time.Millisecond,
        CooldownPeriod:   time.Hour,
        ProbeTimeout:     time.Second,
        MaxProbeRetries:  1,
        FailoverTimeout:  2 * time.Second,
        ExecPollInterval: 10 * time.Millisecond,
        DrainGrace:       2 * time.Second,
    }
}

func startController(t *testing.T, opts Options) *Controller {
    t.Helper()
    c, err := New(opts)
    if err != nil { t.Fatalf("new: %v", err) }
    if err := c.Start(context.Background()); err != nil { t.Fatalf("start: %v", err) }
    t.Cleanup(func() { _ = c.Close() })
    return c
}

// awaitState polls Status until the cluster reaches the wanted state.
func awaitState(t *testing.T, c *Controller, clusterID string, want topology.State) topology.Snapshot {
    t.Helper()
    deadline := time.After(3 * time.Second)
    for {
        st, err := c.Status(context.Background())
        if err != nil { t.Fatalf("status: %v", err) }
        for _, snap := range st.Clusters {
            if snap.ClusterID == clusterID && snap.State == want { return snap }
        }
        select {
        case <-deadline:
            st, _ := c.Status(context.Background())
            t.Fatalf("cluster %s never reached %s: %+v", clusterID, want, st)
        case <-time.After(5 * time.Millisecond):
        }
    }
}

func TestStartUnknownCluster(t *testing.T) {
    p, cp := fixture(t)
    opts := fastOptions(p, cp)
    opts.Clusters = []string{"nope"}
    c, err := New(opts)
    if err != nil { t.Fatalf("new: %v", err) }
    if err := c.Start(context.Background()); !errors.Is(err, provider.ErrUnknownCluster) {
        t.Fatalf("err = %v, want ErrUnknownCluster", err)
    }
}

func TestAutomaticFailover(t *testing.T) {
    p, cp := fixture(t)
    c := startController(t, fastOptions(p, cp))

    // Writer goes dark.
    p.SetStatus("orders", "m1", topology.StatusUnreachable)

    snap := awaitState(t, c, "orders", topology.StateCoolingDown)
    if snap.LastFailover == nil || snap.LastFailover.Outcome != topology.OutcomeSucceeded {
        t.Fatalf("last failover = %+v, want succeeded", snap.LastFailover)
    }
    if snap.LastFailover.ToWriterID != "m2" {
        t.Fatalf("new writer = %q, want first candidate m2", snap.LastFailover.ToWriterID)
    }
    if snap.InFlightFailoverID != "" { t.Fatalf("token not cleared after completion") }

    var writer string
    for _, m := range snap.Members {
        if m.Role == topology.RoleWriter { writer = m.ID }
    }
    if writer != "m2" { t.Fatalf("model writer = %q, want m2", writer) }

    // Exactly one operation was issued for the whole episode.
    if n := cp.Triggers(); n != 1 { t.Fatalf("trigger calls = %d, want 1", n) }
}

func TestManualTriggerEndToEnd(t *testing.T) {
    p, cp := fixture(t)
    c := startController(t, fastOptions(p, cp))

    id, err := c.Trigger(context.Background(), "orders", "m3", "maintenance")
    if err != nil { t.Fatalf("trigger: %v", err) }
    if id == "" { t.Fatalf("missing event id") }

    snap := awaitState(t, c, "orders", topology.StateCoolingDown)
    if snap.LastFailover == nil || snap.LastFailover.ID != id {
        t.Fatalf("last failover = %+v, want event %s", snap.LastFailover, id)
    }
    if snap.LastFailover.ToWriterID != "m3" {
        t.Fatalf("new writer = %q, want requested target m3", snap.LastFailover.ToWriterID)
    }

    // A second manual trigger during cooldown is rejected.
    if _, err := c.Trigger(context.Background(), "orders", "", ""); !errors.Is(err, engine.ErrCoolingDown) {
        t.Fatalf("err = %v, want ErrCoolingDown", err)
    }
}

func TestTriggerUnknownCluster(t *testing.T) {
    p, cp := fixture(t)
    c := startController(t, fastOptions(p, cp))
    if _, err := c.Trigger(context.Background(), "nope", "", ""); !errors.Is(err, ErrUnknownCluster) {
        t.Fatalf("err = %v, want ErrUnknownCluster", err)
    }
}

func TestPauseBlocksAutomation(t *testing.T) {
    p, cp := fixture(t)
    c := startController(t, fastOptions(p, cp))

    if err := c.Pause(context.Background(), "orders", "maintenance window"); err != nil {
        t.Fatalf("pause: %v", err)
    }
    st, err := c.Status(context.Background())
    if err != nil { t.Fatalf("status: %v", err) }
    if st.Healthy { t.Fatalf("paused controller reported healthy") }
    if len(st.Warnings) == 0 { t.Fatalf("missing halt warning") }

    // Writer loss while paused must not fail over.
    p.SetStatus("orders", "m1", topology.StatusUnreachable)
    time.Sleep(100 * time.Millisecond)
    if n := cp.Triggers(); n != 0 { t.Fatalf("failover triggered while paused: %d calls", n) }

    // Monitoring continued while halted.
    st, _ = c.Status(context.Background())
    var seen topology.Status
    for _, m := range st.Clusters[0].Members {
        if m.ID == "m1" { seen = m.Status }
    }
    if seen != topology.StatusUnreachable {
        t.Fatalf("m1 status = %s while paused, want unreachable", seen)
    }

    // Resuming lets automation act on the standing condition.
    if err := c.Resume(context.Background(), "orders"); err != nil { t.Fatalf("resume: %v", err) }
    awaitState(t, c, "orders", topology.StateCoolingDown)
    if n := cp.Triggers(); n != 1 { t.Fatalf("trigger calls = %d after resume, want 1", n) }
}

func TestSubscribeDeliversFailoverEvents(t *testing.T) {
    p, cp := fixture(t)
    c := startController(t, fastOptions(p, cp))

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    evs := c.Subscribe(ctx)

    p.SetStatus("orders", "m1", topology.StatusUnreachable)

    deadline := time.After(3 * time.Second)
    for {
        select {
        case ev := <-evs:
            if ev.Type == sink.EventFailover && ev.Failover != nil && ev.Failover.Outcome.Terminal() {
                if ev.Failover.Outcome != topology.OutcomeSucceeded {
                    t.Fatalf("outcome = %s, want succeeded", ev.Failover.Outcome)
                }
                return
            }
        case <-deadline:
            t.Fatalf("no terminal failover event observed")
        }
    }
}

func TestStopIsIdempotent(t *testing.T) {
    p, cp := fixture(t)
    c := startController(t, fastOptions(p, cp))
    if err := c.Stop(context.Background()); err != nil { t.Fatalf("stop: %v", err) }
    if err := c.Stop(context.Background()); err != nil { t.Fatalf("second stop: %v", err) }
}

func TestOptionsValidate(t *testing.T) {
    p, cp := fixture(t)
    cases := []struct {
        name string
        mut  func(*Options)
    }{
        {"no clusters", func(o *Options) { o.Clusters = nil }},
        {"empty id", func(o *Options) { o.Clusters = []string{""} }},
        {"nil provider", func(o *Options) { o.Provider = nil }},
        {"nil control plane", func(o *Options) { o.ControlPlane = nil }},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            opts := fastOptions(p, cp)
            tc.mut(&opts)
            if _, err := New(opts); err == nil {
                t.Fatalf("expected validation error")
            }
        })
    }
}
