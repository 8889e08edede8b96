// Package scheduler drives periodic evaluation cycles. It guarantees the
// second half of the single-flight rule: at most one cycle runs at a time
// per cluster; a tick that lands while the previous cycle is still running
// is skipped and counted as an overrun, never run concurrently.
package scheduler

import (
    "context"
    "log"
    "time"

    "github.com/amirimatin/go-failover/pkg/internal/logutil"
    obsmetrics "github.com/amirimatin/go-failover/pkg/observability/metrics"
)

// Options configures a Scheduler.
type Options struct {
    // Interval between evaluation ticks. Default 30s.
    Interval time.Duration

    // DrainGrace bounds how long Run waits at shutdown for an in-flight
    // cycle (which may include a running failover) to finish. Default 60s.
    DrainGrace time.Duration

    Logger *log.Logger
}

// Scheduler runs one cycle function on a fixed tick.
type Scheduler struct {
    opts Options
}

// New returns a Scheduler with defaults applied.
func New(opts Options) *Scheduler {
    if opts.Interval <= 0 { opts.Interval = 30 * time.Second }
    if opts.DrainGrace <= 0 { opts.DrainGrace = 60 * time.Second }
    return &Scheduler{opts: opts}
}

// Run executes cycle once immediately, then on every tick, until ctx is
// done. It returns only after the in-flight cycle (if any) has finished or
// the drain grace elapsed, so the process never abandons a partially
// executed failover without giving it time to reach a terminal outcome.
func (s *Scheduler) Run(ctx context.Context, name string, cycle func(context.Context)) {
    ticker := time.NewTicker(s.opts.Interval)
    defer ticker.Stop()

    // busy is a single-slot token: holding it means a cycle is running.
    busy := make(chan struct{}, 1)

    s.dispatch(ctx, name, cycle, busy)
    for {
        select {
        case <-ctx.Done():
            s.drain(name, busy)
            return
        case <-ticker.C:
            s.dispatch(ctx, name, cycle, busy)
        }
    }
}

func (s *Scheduler) dispatch(ctx context.Context, name string, cycle func(context.Context), busy chan struct{}) {
    select {
    case busy <- struct{}{}:
    default:
        obsmetrics.CycleOverruns.WithLabelValues(name).Inc()
        logutil.Warnf(s.opts.Logger, "scheduler: tick overrun, previous cycle still running: cluster=%s", name)
        return
    }
    go func() {
        defer func() { <-busy }()
        start := time.Now()
        cycle(ctx)
        obsmetrics.CycleDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
    }()
}

func (s *Scheduler) drain(name string, busy chan struct{}) {
    t := time.NewTimer(s.opts.DrainGrace)
    defer t.Stop()
    select {
    case busy <- struct{}{}:
        // no cycle in flight (or it just finished)
    case <-t.C:
        logutil.Errorf(s.opts.Logger, "scheduler: drain grace elapsed with cycle still running: cluster=%s", name)
    }
}
