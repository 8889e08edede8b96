// Package executor runs a pending failover event to a terminal outcome: it
// issues the promotion to the external control plane (or joins an operation
// that is already running), then polls until a new writer is observed or the
// failover timeout elapses. The executor is the only code that mutates a
// FailoverEvent after creation and the only code that changes member roles
// while the event is in flight.
package executor

import (
    "context"
    "errors"
    "fmt"
    "log"
    "time"

    "github.com/amirimatin/go-failover/pkg/internal/logutil"
    "github.com/amirimatin/go-failover/pkg/observability/tracing"
    "github.com/amirimatin/go-failover/pkg/provider"
    "github.com/amirimatin/go-failover/pkg/sink"
    "github.com/amirimatin/go-failover/pkg/topology"
)

// Options configures an Executor.
type Options struct {
    ControlPlane provider.ControlPlane
    Provider     provider.StatusProvider
    Sink         sink.Sink
    Logger       *log.Logger

    // PollInterval between completion checks. Default 5s.
    PollInterval time.Duration

    // Timeout (T) bounds the whole issue-and-poll sequence. Default 5m.
    Timeout time.Duration

    // MaxRetries bounds trigger retries on throttling. Default 3.
    MaxRetries int
}

// Executor issues failover commands and observes them to completion.
type Executor struct {
    opts Options
}

// New validates options and returns an Executor.
func New(opts Options) (*Executor, error) {
    if opts.ControlPlane == nil { return nil, fmt.Errorf("executor: nil ControlPlane") }
    if opts.Provider == nil { return nil, fmt.Errorf("executor: nil Provider") }
    if opts.Sink == nil { opts.Sink = sink.Discard{} }
    if opts.PollInterval <= 0 { opts.PollInterval = 5 * time.Second }
    if opts.Timeout <= 0 { opts.Timeout = 5 * time.Minute }
    if opts.MaxRetries <= 0 { opts.MaxRetries = 3 }
    return &Executor{opts: opts}, nil
}

// Execute drives ev to a terminal outcome and returns it. The cluster is
// mutated only to fold a confirmed role change into the model. Callers own
// the cluster: Execute must run on the evaluation goroutine (or under its
// lock) for the cluster.
func (x *Executor) Execute(ctx context.Context, c *topology.Cluster, ev *topology.FailoverEvent) *topology.FailoverEvent {
    ctx, end := tracing.StartSpan(ctx, "executor.execute")
    defer end()
    ctx, cancel := context.WithTimeout(ctx, x.opts.Timeout)
    defer cancel()

    target := ev.TargetID
    if target == "" {
        if cands := c.Candidates(); len(cands) > 0 { target = cands[0].ID }
    }
    if target == "" {
        return x.finish(ctx, c, ev, topology.OutcomeFailed, "no available promotion target at execution time")
    }
    ev.TargetID = target

    handle, err := x.issue(ctx, ev.ClusterID, target)
    switch {
    case err == nil:
        logutil.Infof(x.opts.Logger, "executor: failover issued: cluster=%s event=%s target=%s op=%s", ev.ClusterID, ev.ID, target, handle.ID)
    case errors.Is(err, provider.ErrAlreadyInProgress):
        // Join semantics: never issue a duplicate; observe the operation
        // that is already running.
        logutil.Warnf(x.opts.Logger, "executor: joining in-progress operation: cluster=%s event=%s", ev.ClusterID, ev.ID)
    default:
        // Non-idempotent ambiguous errors are not retried.
        return x.finish(ctx, c, ev, topology.OutcomeFailed, fmt.Sprintf("trigger failed: %v", err))
    }

    return x.awaitRoleChange(ctx, c, ev, handle)
}

// issue sends the trigger, retrying with bounded exponential backoff only on
// explicit throttling. ErrAlreadyInProgress is passed through to the caller
// together with any handle the control plane returned for the running
// operation.
func (x *Executor) issue(ctx context.Context, clusterID, target string) (provider.OperationHandle, error) {
    var lastErr error
    var handle provider.OperationHandle
    for attempt := 0; attempt < x.opts.MaxRetries; attempt++ {
        h, err := x.opts.ControlPlane.TriggerFailover(ctx, clusterID, target)
        if err == nil || errors.Is(err, provider.ErrAlreadyInProgress) {
            return h, err
        }
        if !errors.Is(err, provider.ErrThrottled) {
            return provider.OperationHandle{}, err
        }
        lastErr = err
        select {
        case <-ctx.Done():
            return handle, ctx.Err()
        case <-time.After(time.Duration(100*(1<<attempt)) * time.Millisecond):
        }
    }
    return handle, lastErr
}

// awaitRoleChange polls until the topology reports a new available writer,
// the control plane reports the operation failed, or the timeout elapses.
func (x *Executor) awaitRoleChange(ctx context.Context, c *topology.Cluster, ev *topology.FailoverEvent, handle provider.OperationHandle) *topology.FailoverEvent {
    ticker := time.NewTicker(x.opts.PollInterval)
    defer ticker.Stop()
    for {
        if newWriter := x.observeWriter(ctx, ev); newWriter != "" {
            ev.ToWriterID = newWriter
            if err := c.PromoteWriter(newWriter); err != nil {
                logutil.Warnf(x.opts.Logger, "executor: %v", err)
            }
            return x.finish(ctx, c, ev, topology.OutcomeSucceeded, "")
        }
        if handle.ID != "" {
            st, err := x.opts.ControlPlane.PollOperation(ctx, handle)
            if err != nil && !provider.IsOutage(err) {
                logutil.Warnf(x.opts.Logger, "executor: poll failed: cluster=%s op=%s err=%v", ev.ClusterID, handle.ID, err)
            }
            if st == provider.OperationFailed {
                return x.finish(ctx, c, ev, topology.OutcomeFailed, "control plane reported operation failed")
            }
        }
        select {
        case <-ctx.Done():
            return x.finish(ctx, c, ev, topology.OutcomeTimedOut, "timeout waiting for role change")
        case <-ticker.C:
        }
    }
}

// observeWriter queries the provider and returns the id of an available
// writer different from the one that failed, or "".
func (x *Executor) observeWriter(ctx context.Context, ev *topology.FailoverEvent) string {
    snap, err := x.opts.Provider.Query(ctx, ev.ClusterID)
    if err != nil { return "" }
    for _, mi := range snap.Members {
        if mi.Role == topology.RoleWriter && mi.ID != ev.FromWriterID && mi.Status != topology.StatusUnreachable {
            return mi.ID
        }
    }
    return ""
}

func (x *Executor) finish(ctx context.Context, c *topology.Cluster, ev *topology.FailoverEvent, outcome topology.Outcome, detail string) *topology.FailoverEvent {
    ev.Outcome = outcome
    ev.CompletedAt = time.Now()
    if detail != "" {
        ev.Reason = fmt.Sprintf("%s; %s", ev.Reason, detail)
    }
    switch outcome {
    case topology.OutcomeSucceeded:
        logutil.Infof(x.opts.Logger, "executor: failover succeeded: cluster=%s event=%s new writer=%s", ev.ClusterID, ev.ID, ev.ToWriterID)
    default:
        logutil.Errorf(x.opts.Logger, "executor: failover %s: cluster=%s event=%s detail=%s", outcome, ev.ClusterID, ev.ID, detail)
    }
    x.opts.Sink.Publish(ctx, sink.Event{Type: sink.EventFailover, At: ev.CompletedAt, ClusterID: ev.ClusterID, Failover: ev})
    return ev
}
