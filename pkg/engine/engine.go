// Package engine implements the failure-detection state machine. It consumes
// topology snapshots the monitor has already updated and decides when a
// failover fires: Stable -> SuspectedFailure -> FailoverTriggered ->
// CoolingDown -> Stable, with CoolingDown allowed back to SuspectedFailure
// when the promoted writer fails before cooldown ends.
//
// The engine never performs I/O. It mutates only the cluster it is handed,
// and the caller guarantees single-threaded evaluation per cluster, which is
// what makes the in-flight token check-and-set atomic.
package engine

import (
    "context"
    "errors"
    "fmt"
    "log"
    "time"

    "github.com/amirimatin/go-failover/pkg/internal/logutil"
    obsmetrics "github.com/amirimatin/go-failover/pkg/observability/metrics"
    "github.com/amirimatin/go-failover/pkg/sink"
    "github.com/amirimatin/go-failover/pkg/topology"
)

var (
    // ErrHalted is returned when automation is halted for the cluster
    // (operator pause or a prior invariant ambiguity).
    ErrHalted = errors.New("engine: automation halted for cluster")

    // ErrAmbiguous marks an InvariantAmbiguity condition: the controller
    // cannot distinguish a cluster outage from its own partition, or
    // observes more than one writer. Automation halts until resumed.
    ErrAmbiguous = errors.New("engine: invariant ambiguity")

    ErrFailoverInFlight = errors.New("engine: failover already in flight")
    ErrCoolingDown      = errors.New("engine: cluster is cooling down")
    ErrNoCandidate      = errors.New("engine: no available promotion candidate")
)

// Params are the transition-rule tunables.
type Params struct {
    // FailureThreshold (K): consecutive failed samples before the writer
    // counts as lost. Default 3.
    FailureThreshold int

    // GracePeriod (G): how long the loss must persist before a failover is
    // triggered. Default 30s.
    GracePeriod time.Duration

    // CooldownPeriod (C): quiescent window after a failover. Default 5m.
    CooldownPeriod time.Duration

    // Now overrides the clock, for tests. Default time.Now.
    Now func() time.Time
}

func (p *Params) defaults() {
    if p.FailureThreshold <= 0 { p.FailureThreshold = 3 }
    if p.GracePeriod <= 0 { p.GracePeriod = 30 * time.Second }
    if p.CooldownPeriod <= 0 { p.CooldownPeriod = 5 * time.Minute }
    if p.Now == nil { p.Now = time.Now }
}

// Engine evaluates clusters against the transition rules.
type Engine struct {
    params Params
    sink   sink.Sink
    logger *log.Logger
}

// New returns an Engine. A nil sink discards events.
func New(params Params, s sink.Sink, logger *log.Logger) *Engine {
    params.defaults()
    if s == nil { s = sink.Discard{} }
    return &Engine{params: params, sink: s, logger: logger}
}

// Evaluate runs one decision step. It returns a pending FailoverEvent when
// (and only when) the SuspectedFailure -> FailoverTriggered transition fires
// this step; the caller hands that event to the executor. The in-flight
// token is set here, in the same step that decides to trigger.
func (e *Engine) Evaluate(ctx context.Context, c *topology.Cluster) (*topology.FailoverEvent, error) {
    now := e.params.Now()
    c.LastEvaluatedAt = now

    if c.AllUnreachable() && !c.Halted {
        e.halt(ctx, c, now, "all members unreachable in one cycle; indistinguishable from a controller-side partition")
        return nil, ErrAmbiguous
    }
    // Halted clusters are still monitored and reported, never acted on.
    if c.Halted { return nil, nil }

    switch c.State {
    case topology.StateStable, "":
        return e.evalStable(ctx, c, now)
    case topology.StateSuspectedFailure:
        return e.evalSuspected(ctx, c, now)
    case topology.StateFailoverTriggered:
        // Owned by the executor until it reports a terminal outcome.
        return nil, nil
    case topology.StateCoolingDown:
        return nil, e.evalCoolingDown(ctx, c, now)
    }
    return nil, fmt.Errorf("engine: unknown state %q for cluster %s", c.State, c.ID)
}

func (e *Engine) evalStable(ctx context.Context, c *topology.Cluster, now time.Time) (*topology.FailoverEvent, error) {
    if len(c.Writers()) > 1 {
        e.halt(ctx, c, now, "more than one writer observed")
        return nil, ErrAmbiguous
    }
    w := c.Writer()
    if w == nil {
        e.warn(ctx, c, now, "no writer known in stable state")
        return nil, nil
    }
    if w.Status == topology.StatusUnreachable && w.ConsecutiveFailures >= e.params.FailureThreshold {
        c.SuspectedSince = now
        e.transition(ctx, c, topology.StateSuspectedFailure, now,
            fmt.Sprintf("writer %s unreachable for %d consecutive samples", w.ID, w.ConsecutiveFailures))
    }
    return nil, nil
}

func (e *Engine) evalSuspected(ctx context.Context, c *topology.Cluster, now time.Time) (*topology.FailoverEvent, error) {
    w := c.Writer()
    if w == nil || w.Status == topology.StatusAvailable {
        c.SuspectedSince = time.Time{}
        e.transition(ctx, c, topology.StateStable, now, "writer recovered within grace period")
        return nil, nil
    }
    if w.Status != topology.StatusUnreachable || w.ConsecutiveFailures < e.params.FailureThreshold {
        // Degraded but not confirmed lost: hold the suspicion window open.
        return nil, nil
    }
    if now.Sub(c.SuspectedSince) < e.params.GracePeriod { return nil, nil }
    if c.InFlightFailoverID != "" { return nil, ErrFailoverInFlight }
    if now.Before(c.CooldownUntil) { return nil, nil }
    if len(c.Candidates()) == 0 {
        e.warn(ctx, c, now, "failover condition met but no available reader to promote")
        return nil, nil
    }

    reason := fmt.Sprintf("writer %s unreachable for %s (threshold %d samples, grace %s)",
        w.ID, now.Sub(c.SuspectedSince).Round(time.Second), e.params.FailureThreshold, e.params.GracePeriod)
    ev := topology.NewFailoverEvent(c.ID, w.ID, "", reason, now)
    c.InFlightFailoverID = ev.ID
    e.transition(ctx, c, topology.StateFailoverTriggered, now, reason)
    e.sink.Publish(ctx, sink.Event{Type: sink.EventFailover, At: now, ClusterID: c.ID, Failover: ev})
    return ev, nil
}

func (e *Engine) evalCoolingDown(ctx context.Context, c *topology.Cluster, now time.Time) error {
    w := c.Writer()
    if w != nil && w.Status == topology.StatusUnreachable && w.ConsecutiveFailures >= e.params.FailureThreshold {
        // Repeated failure: the promoted writer is failing before cooldown
        // ended. Re-enter suspicion; a second automatic failover still has
        // to wait out the cooldown and the grace period.
        c.SuspectedSince = now
        logutil.Warnf(e.logger, "engine: repeated failure: cluster=%s promoted writer %s failing during cooldown", c.ID, w.ID)
        e.transition(ctx, c, topology.StateSuspectedFailure, now,
            fmt.Sprintf("repeated failure: promoted writer %s unreachable during cooldown", w.ID))
        return nil
    }
    if now.Before(c.CooldownUntil) { return nil }
    ws := c.Writers()
    if len(ws) > 1 {
        e.halt(ctx, c, now, "more than one writer observed after failover")
        return ErrAmbiguous
    }
    if len(ws) == 1 && ws[0].Status == topology.StatusAvailable {
        e.transition(ctx, c, topology.StateStable, now, "cooldown elapsed, single available writer confirmed")
    }
    return nil
}

// Complete folds a terminal failover outcome back into the cluster: the
// in-flight token is cleared and the cooldown window starts, regardless of
// whether the execution succeeded.
func (e *Engine) Complete(ctx context.Context, c *topology.Cluster, ev *topology.FailoverEvent) {
    now := e.params.Now()
    c.InFlightFailoverID = ""
    c.LastFailover = ev
    c.CooldownUntil = now.Add(e.params.CooldownPeriod)
    e.transition(ctx, c, topology.StateCoolingDown, now,
        fmt.Sprintf("failover %s finished with outcome %s", ev.ID, ev.Outcome))
}

// ManualTrigger creates a pending failover on operator request. It bypasses
// the grace period but not the halt flag, the cooldown or the single-flight
// token, and it still requires a viable target.
func (e *Engine) ManualTrigger(ctx context.Context, c *topology.Cluster, targetID, reason string) (*topology.FailoverEvent, error) {
    now := e.params.Now()
    if c.Halted { return nil, ErrHalted }
    if c.InFlightFailoverID != "" { return nil, ErrFailoverInFlight }
    if now.Before(c.CooldownUntil) { return nil, ErrCoolingDown }
    if targetID != "" {
        t := c.Member(targetID)
        if t == nil || t.Role != topology.RoleReader || t.Status != topology.StatusAvailable {
            return nil, ErrNoCandidate
        }
    } else if len(c.Candidates()) == 0 {
        return nil, ErrNoCandidate
    }
    if reason == "" { reason = "manual trigger" }
    var fromID string
    if w := c.Writer(); w != nil { fromID = w.ID }
    ev := topology.NewFailoverEvent(c.ID, fromID, targetID, reason, now)
    c.InFlightFailoverID = ev.ID
    c.SuspectedSince = time.Time{}
    e.transition(ctx, c, topology.StateFailoverTriggered, now, reason)
    e.sink.Publish(ctx, sink.Event{Type: sink.EventFailover, At: now, ClusterID: c.ID, Failover: ev})
    return ev, nil
}

// Resume lifts a halt (operator pause or ambiguity) and lets automation
// evaluate the cluster fresh on the next cycle.
func (e *Engine) Resume(ctx context.Context, c *topology.Cluster) {
    if !c.Halted { return }
    c.Halted = false
    c.HaltReason = ""
    c.SuspectedSince = time.Time{}
    obsmetrics.HaltedClusters.WithLabelValues(c.ID).Set(0)
    logutil.Infof(e.logger, "engine: automation resumed: cluster=%s", c.ID)
    e.sink.Publish(ctx, sink.Event{Type: sink.EventWarning, At: e.params.Now(), ClusterID: c.ID, Message: "automation resumed"})
}

// Halt stops automatic transitions for the cluster (operator pause).
func (e *Engine) Halt(ctx context.Context, c *topology.Cluster, reason string) {
    if c.Halted { return }
    e.halt(ctx, c, e.params.Now(), reason)
}

func (e *Engine) halt(ctx context.Context, c *topology.Cluster, now time.Time, reason string) {
    c.Halted = true
    c.HaltReason = reason
    obsmetrics.HaltedClusters.WithLabelValues(c.ID).Set(1)
    logutil.Errorf(e.logger, "engine: automation halted: cluster=%s reason=%s", c.ID, reason)
    e.sink.Publish(ctx, sink.Event{Type: sink.EventWarning, At: now, ClusterID: c.ID,
        Message: fmt.Sprintf("automation halted: %s", reason)})
}

func (e *Engine) warn(ctx context.Context, c *topology.Cluster, now time.Time, msg string) {
    logutil.Warnf(e.logger, "engine: cluster=%s %s", c.ID, msg)
    e.sink.Publish(ctx, sink.Event{Type: sink.EventWarning, At: now, ClusterID: c.ID, Message: msg})
}

func (e *Engine) transition(ctx context.Context, c *topology.Cluster, to topology.State, now time.Time, reason string) {
    from := c.State
    if from == "" { from = topology.StateStable }
    c.State = to
    logutil.Infof(e.logger, "engine: cluster=%s %s -> %s (%s)", c.ID, from, to, reason)
    t := &topology.StateTransition{ClusterID: c.ID, From: from, To: to, Reason: reason, At: now}
    e.sink.Publish(ctx, sink.Event{Type: sink.EventStateTransition, At: now, ClusterID: c.ID, Transition: t})
}
