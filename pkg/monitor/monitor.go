// Package monitor implements the health-observation half of the controller:
// it polls every member of a cluster through the status provider, applies
// failure counting with hysteresis, and folds the results into the topology
// model. One Probe call is one full observation cycle; the caller (the
// per-cluster evaluation loop) owns the topology and never runs two cycles
// concurrently.
package monitor

import (
    "context"
    "errors"
    "fmt"
    "log"
    "sync"
    "time"

    "github.com/amirimatin/go-failover/pkg/internal/logutil"
    obsmetrics "github.com/amirimatin/go-failover/pkg/observability/metrics"
    "github.com/amirimatin/go-failover/pkg/provider"
    "github.com/amirimatin/go-failover/pkg/sink"
    "github.com/amirimatin/go-failover/pkg/topology"
)

// Options configures a Monitor.
type Options struct {
    Provider provider.StatusProvider
    Sink     sink.Sink
    Logger   *log.Logger

    // ProbeTimeout bounds each individual member probe. Default 5s.
    ProbeTimeout time.Duration

    // Workers bounds probe parallelism per cycle. Default 4.
    Workers int

    // MaxRetries bounds the backoff retries of the topology query when the
    // provider looks down. Default 3.
    MaxRetries int

    // FailureThreshold (K) is the consecutive-failure count at which a
    // member escalates from degraded to unreachable. Default 3.
    FailureThreshold int
}

// Monitor polls member health and updates the topology model.
type Monitor struct {
    opts Options
}

// New validates options and returns a Monitor.
func New(opts Options) (*Monitor, error) {
    if opts.Provider == nil { return nil, fmt.Errorf("monitor: nil Provider") }
    if opts.Sink == nil { opts.Sink = sink.Discard{} }
    if opts.ProbeTimeout <= 0 { opts.ProbeTimeout = 5 * time.Second }
    if opts.Workers <= 0 { opts.Workers = 4 }
    if opts.MaxRetries <= 0 { opts.MaxRetries = 3 }
    if opts.FailureThreshold <= 0 { opts.FailureThreshold = 3 }
    return &Monitor{opts: opts}, nil
}

type probeResult struct {
    memberID string
    status   provider.MemberStatus
    latency  time.Duration
    err      error
}

// Probe runs one observation cycle against the cluster. On a provider-level
// outage (topology query failing after backoff, or every probe failing with
// a provider error) it returns the cycle error without touching any member's
// failure counters: a monitoring outage must never be misread as a cluster
// outage. Member-level probe failures are folded into the counters and never
// returned as an error.
func (m *Monitor) Probe(ctx context.Context, c *topology.Cluster) error {
    snap, err := m.queryWithBackoff(ctx, c.ID)
    if err != nil {
        obsmetrics.ProviderOutages.WithLabelValues(c.ID).Inc()
        m.opts.Sink.Publish(ctx, sink.Event{
            Type: sink.EventWarning, At: time.Now(), ClusterID: c.ID,
            Message: fmt.Sprintf("status provider unreachable, cycle skipped: %v", err),
        })
        return err
    }

    m.reconcile(c, snap)

    results := m.fanOut(ctx, c)

    // A cycle where every probe failed at the provider level is an outage,
    // not a cluster-wide member failure.
    if len(results) > 0 && allOutage(results) {
        obsmetrics.ProviderOutages.WithLabelValues(c.ID).Inc()
        err := results[0].err
        m.opts.Sink.Publish(ctx, sink.Event{
            Type: sink.EventWarning, At: time.Now(), ClusterID: c.ID,
            Message: fmt.Sprintf("all probes failed at provider level, cycle skipped: %v", err),
        })
        return err
    }

    now := time.Now()
    for _, r := range results {
        m.apply(ctx, c, r, now)
    }
    return nil
}

func (m *Monitor) queryWithBackoff(ctx context.Context, clusterID string) (provider.Snapshot, error) {
    var lastErr error
    for attempt := 0; attempt < m.opts.MaxRetries; attempt++ {
        snap, err := m.opts.Provider.Query(ctx, clusterID)
        if err == nil { return snap, nil }
        lastErr = err
        // Unknown cluster will not heal by retrying.
        if errors.Is(err, provider.ErrUnknownCluster) { break }
        select {
        case <-ctx.Done():
            return provider.Snapshot{}, ctx.Err()
        case <-time.After(time.Duration(100*(1<<attempt)) * time.Millisecond):
        }
    }
    if !provider.IsOutage(lastErr) {
        lastErr = provider.Outage("query", lastErr)
    }
    return provider.Snapshot{}, lastErr
}

// reconcile merges provider-reported membership and roles into the model.
// New members are appended in provider order; existing members keep their
// failure counters. Roles follow the provider except while a failover is in
// flight, when the executor owns role changes.
func (m *Monitor) reconcile(c *topology.Cluster, snap provider.Snapshot) {
    for _, mi := range snap.Members {
        mem := c.Member(mi.ID)
        if mem == nil {
            mem = &topology.Member{ID: mi.ID, Region: mi.Region, Role: mi.Role, Status: topology.StatusAvailable}
            if mem.Role == "" { mem.Role = topology.RoleUnknown }
            c.Members = append(c.Members, mem)
            logutil.Infof(m.opts.Logger, "monitor: new member observed: cluster=%s member=%s role=%s", c.ID, mi.ID, mem.Role)
            continue
        }
        if c.InFlightFailoverID == "" && mi.Role != "" && mi.Role != topology.RoleUnknown {
            mem.Role = mi.Role
        }
        if mi.Region != "" { mem.Region = mi.Region }
    }
}

func (m *Monitor) fanOut(ctx context.Context, c *topology.Cluster) []probeResult {
    jobs := make(chan *topology.Member)
    out := make(chan probeResult, len(c.Members))
    var wg sync.WaitGroup
    workers := m.opts.Workers
    if workers > len(c.Members) { workers = len(c.Members) }
    for i := 0; i < workers; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            for mem := range jobs {
                out <- m.probeOne(ctx, c.ID, mem.ID)
            }
        }()
    }
    for _, mem := range c.Members {
        jobs <- mem
    }
    close(jobs)
    wg.Wait()
    close(out)

    results := make([]probeResult, 0, len(c.Members))
    for r := range out {
        results = append(results, r)
    }
    return results
}

func (m *Monitor) probeOne(ctx context.Context, clusterID, memberID string) probeResult {
    pctx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
    defer cancel()
    start := time.Now()
    st, err := m.opts.Provider.Probe(pctx, clusterID, memberID)
    lat := time.Since(start)
    obsmetrics.ProbeDuration.WithLabelValues(clusterID, memberID).Observe(lat.Seconds())
    if err != nil {
        obsmetrics.ProbeResults.WithLabelValues(clusterID, memberID, "failure").Inc()
        return probeResult{memberID: memberID, latency: lat, err: err}
    }
    obsmetrics.ProbeResults.WithLabelValues(clusterID, memberID, "success").Inc()
    if st.Latency > 0 { lat = st.Latency }
    return probeResult{memberID: memberID, status: st, latency: lat}
}

// apply folds one probe result into the member and emits the health sample.
func (m *Monitor) apply(ctx context.Context, c *topology.Cluster, r probeResult, now time.Time) {
    mem := c.Member(r.memberID)
    if mem == nil { return }

    sample := topology.HealthSample{ClusterID: c.ID, MemberID: mem.ID, At: now, Latency: r.latency}
    if r.err != nil {
        mem.ConsecutiveFailures++
        mem.LastSampleError = r.err.Error()
        mem.Status = topology.StatusDegraded
        if mem.ConsecutiveFailures >= m.opts.FailureThreshold {
            mem.Status = topology.StatusUnreachable
        }
        sample.Status = mem.Status
        sample.Error = r.err.Error()
        obsmetrics.MemberHealthy.WithLabelValues(c.ID, mem.ID).Set(0)
    } else {
        mem.ConsecutiveFailures = 0
        mem.LastSampleError = ""
        mem.LastSeenAt = now
        mem.Status = topology.StatusAvailable
        if r.status.Status != "" { mem.Status = r.status.Status }
        if c.InFlightFailoverID == "" && r.status.Role != "" && r.status.Role != topology.RoleUnknown {
            mem.Role = r.status.Role
        }
        sample.Status = mem.Status
        obsmetrics.MemberHealthy.WithLabelValues(c.ID, mem.ID).Set(1)
    }
    m.opts.Sink.Publish(ctx, sink.Event{Type: sink.EventHealthSample, At: now, ClusterID: c.ID, Sample: &sample})
}

func allOutage(results []probeResult) bool {
    for _, r := range results {
        if r.err == nil || !provider.IsOutage(r.err) { return false }
    }
    return true
}
