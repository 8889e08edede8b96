// Package controller wires the health monitor, decision engine and failover
// executor into a single embeddable runtime. One Controller watches one or
// more database clusters: each cluster gets its own evaluation loop, its own
// topology model and its own mutex, so clusters never contend with each
// other and every evaluation step for a cluster is single-threaded.
package controller

import (
    "context"
    "errors"
    "fmt"
    "sort"
    "sync"
    "time"

    "github.com/amirimatin/go-failover/pkg/engine"
    "github.com/amirimatin/go-failover/pkg/executor"
    "github.com/amirimatin/go-failover/pkg/internal/logutil"
    "github.com/amirimatin/go-failover/pkg/monitor"
    obsmetrics "github.com/amirimatin/go-failover/pkg/observability/metrics"
    "github.com/amirimatin/go-failover/pkg/observability/tracing"
    "github.com/amirimatin/go-failover/pkg/provider"
    "github.com/amirimatin/go-failover/pkg/scheduler"
    "github.com/amirimatin/go-failover/pkg/sink"
    "github.com/amirimatin/go-failover/pkg/topology"
)

// ErrUnknownCluster is returned by cluster-scoped operations when the id is
// not one of the configured clusters.
var ErrUnknownCluster = errors.New("controller: unknown cluster")

// Facade exposes the high-level API for consumers embedding the controller.
type Facade interface {
    Start(ctx context.Context) error
    Status(ctx context.Context) (*ControllerStatus, error)
    Trigger(ctx context.Context, clusterID, targetID, reason string) (string, error)
    Pause(ctx context.Context, clusterID, reason string) error
    Resume(ctx context.Context, clusterID string) error
    Stop(ctx context.Context) error
}

// Controller is the concrete implementation of the Facade.
type Controller struct {
    opts Options
    mu   sync.RWMutex
    run  struct {
        started bool
        closed  bool
    }
    mon   *monitor.Monitor
    eng   *engine.Engine
    exe   *executor.Executor
    sched *scheduler.Scheduler
    eb    eventBus

    clusters map[string]*clusterRun
    cancel   context.CancelFunc
    wg       sync.WaitGroup
}

// clusterRun pairs a topology model with the mutex that serializes every
// access to it: scheduled cycles, manual triggers and status reads.
type clusterRun struct {
    mu sync.Mutex
    c  *topology.Cluster
}

// New constructs a Controller from validated options. It performs no network
// activity; call Start to begin monitoring.
func New(opts Options) (*Controller, error) {
    if err := opts.Validate(); err != nil {
        return nil, err
    }
    c := &Controller{opts: opts, clusters: make(map[string]*clusterRun)}

    // Everything publishes through the combined sink: the configured sink
    // (if any) plus the subscriber bus.
    s := sink.Multi{opts.Sink, &c.eb}

    mon, err := monitor.New(monitor.Options{
        Provider:         opts.Provider,
        Sink:             s,
        Logger:           opts.Logger,
        ProbeTimeout:     opts.ProbeTimeout,
        Workers:          opts.ProbeWorkers,
        MaxRetries:       opts.MaxProbeRetries,
        FailureThreshold: opts.FailureThreshold,
    })
    if err != nil { return nil, err }
    c.mon = mon

    c.eng = engine.New(engine.Params{
        FailureThreshold: opts.FailureThreshold,
        GracePeriod:      opts.GracePeriod,
        CooldownPeriod:   opts.CooldownPeriod,
        Now:              opts.Now,
    }, s, opts.Logger)

    exe, err := executor.New(executor.Options{
        ControlPlane: opts.ControlPlane,
        Provider:     opts.Provider,
        Sink:         s,
        Logger:       opts.Logger,
        PollInterval: opts.ExecPollInterval,
        Timeout:      opts.FailoverTimeout,
    })
    if err != nil { return nil, err }
    c.exe = exe

    c.sched = scheduler.New(scheduler.Options{
        Interval:   opts.PollInterval,
        DrainGrace: opts.DrainGrace,
        Logger:     opts.Logger,
    })
    return c, nil
}

// Close is a convenience alias for Stop with a background context.
func (c *Controller) Close() error {
    return c.Stop(context.Background())
}

// Start queries the provider for each configured cluster's initial topology
// and launches one evaluation loop per cluster. A provider that is down at
// startup does not fail Start: the cluster begins with an empty member list
// and the monitor reconciles membership once the provider heals.
func (c *Controller) Start(ctx context.Context) error {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.run.started {
        return nil
    }
    if c.run.closed {
        return errors.New("controller: already stopped")
    }
    c.run.started = true
    obsmetrics.Register()

    for _, id := range c.opts.Clusters {
        cl, err := c.initialCluster(ctx, id)
        if err != nil { return err }
        c.clusters[id] = &clusterRun{c: cl}
    }

    runCtx, cancel := context.WithCancel(context.Background())
    c.cancel = cancel
    for id, cr := range c.clusters {
        id, cr := id, cr
        c.wg.Add(1)
        go func() {
            defer c.wg.Done()
            c.sched.Run(runCtx, id, func(cctx context.Context) { c.cycle(cctx, cr) })
        }()
    }
    logutil.Infof(c.opts.Logger, "controller: started, monitoring %d cluster(s)", len(c.clusters))
    return nil
}

// initialCluster builds the topology model from the provider's current view.
func (c *Controller) initialCluster(ctx context.Context, id string) (*topology.Cluster, error) {
    var snap provider.Snapshot
    var err error
    for attempt := 0; attempt < 3; attempt++ {
        snap, err = c.opts.Provider.Query(ctx, id)
        if err == nil { break }
        if errors.Is(err, provider.ErrUnknownCluster) {
            return nil, fmt.Errorf("controller: cluster %s: %w", id, err)
        }
        select {
        case <-ctx.Done():
            return nil, ctx.Err()
        case <-time.After(time.Duration(100*(1<<attempt)) * time.Millisecond):
        }
    }
    var members []*topology.Member
    if err != nil {
        logutil.Warnf(c.opts.Logger, "controller: initial topology query failed, starting empty: cluster=%s err=%v", id, err)
    } else {
        for _, mi := range snap.Members {
            members = append(members, &topology.Member{ID: mi.ID, Region: mi.Region, Role: mi.Role})
        }
    }
    return topology.NewCluster(id, members)
}

// cycle is one full evaluation step: observe, decide, and when a failover
// fires, execute it to a terminal outcome before releasing the cluster.
func (c *Controller) cycle(ctx context.Context, cr *clusterRun) {
    ctx, end := tracing.StartSpan(ctx, "controller.cycle")
    defer end()
    cr.mu.Lock()
    defer cr.mu.Unlock()

    if err := c.mon.Probe(ctx, cr.c); err != nil {
        // Provider outage: no fresh observations, so no decisions either.
        return
    }
    ev, err := c.eng.Evaluate(ctx, cr.c)
    if err != nil {
        // Ambiguity halts are reported through the sink; nothing more to do.
        return
    }
    if ev != nil {
        c.execute(cr.c, ev)
    }
}

// execute runs a pending failover and folds its terminal outcome back into
// the model. The run context is deliberately not used: shutdown must not
// abandon a failover mid-flight, so execution is bounded by the failover
// timeout alone and the scheduler's drain grace waits for it.
func (c *Controller) execute(cl *topology.Cluster, ev *topology.FailoverEvent) {
    obsmetrics.FailoverInFlight.WithLabelValues(cl.ID).Set(1)
    defer obsmetrics.FailoverInFlight.WithLabelValues(cl.ID).Set(0)
    ctx := context.Background()
    done := c.exe.Execute(ctx, cl, ev)
    c.eng.Complete(ctx, cl, done)
}

// Status returns a snapshot of every monitored cluster, sorted by cluster id.
func (c *Controller) Status(ctx context.Context) (*ControllerStatus, error) {
    c.mu.RLock()
    started := c.run.started
    c.mu.RUnlock()

    st := &ControllerStatus{Healthy: started}
    ids := make([]string, 0, len(c.clusters))
    for id := range c.clusters {
        ids = append(ids, id)
    }
    sort.Strings(ids)
    for _, id := range ids {
        cr := c.clusters[id]
        cr.mu.Lock()
        snap := cr.c.Snapshot()
        if err := cr.c.CheckInvariants(); err != nil {
            st.Warnings = append(st.Warnings, err.Error())
        }
        cr.mu.Unlock()
        if snap.Halted {
            st.Healthy = false
            st.Warnings = append(st.Warnings, fmt.Sprintf("cluster %s halted: %s", id, snap.HaltReason))
        }
        st.Clusters = append(st.Clusters, snap)
    }
    return st, nil
}

// Trigger requests a manual failover for the cluster, optionally to a
// specific target member. It returns the failover event id as soon as the
// request is admitted; execution proceeds on a background goroutine under
// the cluster's evaluation lock, so it can never overlap an automatic one.
func (c *Controller) Trigger(ctx context.Context, clusterID, targetID, reason string) (string, error) {
    cr, err := c.cluster(clusterID)
    if err != nil { return "", err }
    cr.mu.Lock()
    ev, err := c.eng.ManualTrigger(ctx, cr.c, targetID, reason)
    cr.mu.Unlock()
    if err != nil { return "", err }
    c.wg.Add(1)
    go func() {
        defer c.wg.Done()
        cr.mu.Lock()
        defer cr.mu.Unlock()
        c.execute(cr.c, ev)
    }()
    return ev.ID, nil
}

// Pause halts automatic failover for the cluster. Monitoring continues.
func (c *Controller) Pause(ctx context.Context, clusterID, reason string) error {
    cr, err := c.cluster(clusterID)
    if err != nil { return err }
    if reason == "" { reason = "operator pause" }
    cr.mu.Lock()
    defer cr.mu.Unlock()
    c.eng.Halt(ctx, cr.c, reason)
    return nil
}

// Resume lifts a halt, whether set by Pause or by an invariant ambiguity.
func (c *Controller) Resume(ctx context.Context, clusterID string) error {
    cr, err := c.cluster(clusterID)
    if err != nil { return err }
    cr.mu.Lock()
    defer cr.mu.Unlock()
    c.eng.Resume(ctx, cr.c)
    return nil
}

// Stop shuts down the evaluation loops. It blocks until every loop has
// drained, which includes waiting (up to the drain grace) for an in-flight
// failover to reach a terminal outcome.
func (c *Controller) Stop(ctx context.Context) error {
    c.mu.Lock()
    if c.run.closed {
        c.mu.Unlock()
        return nil
    }
    c.run.closed = true
    cancel := c.cancel
    c.mu.Unlock()

    if cancel != nil { cancel() }
    done := make(chan struct{})
    go func() {
        c.wg.Wait()
        close(done)
    }()
    select {
    case <-done:
        logutil.Infof(c.opts.Logger, "controller: stopped")
        return nil
    case <-ctx.Done():
        return ctx.Err()
    }
}

func (c *Controller) cluster(id string) (*clusterRun, error) {
    c.mu.RLock()
    defer c.mu.RUnlock()
    cr, ok := c.clusters[id]
    if !ok {
        return nil, fmt.Errorf("%w: %s", ErrUnknownCluster, id)
    }
    return cr, nil
}
