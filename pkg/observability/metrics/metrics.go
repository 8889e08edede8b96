package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    ProbeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
        Namespace: "go_failover",
        Name:      "probe_duration_seconds",
        Help:      "Duration of member health probes in seconds",
        Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
    }, []string{"cluster", "member"})

    ProbeResults = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "go_failover",
        Name:      "probe_results_total",
        Help:      "Total member probes by result",
    }, []string{"cluster", "member", "result"})

    MemberHealthy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
        Namespace: "go_failover",
        Name:      "member_healthy",
        Help:      "1 if the member's last probe succeeded, else 0",
    }, []string{"cluster", "member"})

    ProviderOutages = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "go_failover",
        Name:      "provider_outages_total",
        Help:      "Total evaluation cycles abandoned due to a status-provider outage",
    }, []string{"cluster"})

    EngineState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
        Namespace: "go_failover",
        Name:      "engine_state",
        Help:      "Current engine state (0=stable 1=suspected 2=failover_triggered 3=cooling_down)",
    }, []string{"cluster"})

    StateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "go_failover",
        Name:      "state_transitions_total",
        Help:      "Total engine state transitions",
    }, []string{"cluster", "from", "to"})

    FailoversTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "go_failover",
        Name:      "failovers_total",
        Help:      "Total failover executions by terminal outcome",
    }, []string{"cluster", "outcome"})

    FailoverInFlight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
        Namespace: "go_failover",
        Name:      "failover_in_flight",
        Help:      "1 while a failover event is pending for the cluster",
    }, []string{"cluster"})

    HaltedClusters = prometheus.NewGaugeVec(prometheus.GaugeOpts{
        Namespace: "go_failover",
        Name:      "halted",
        Help:      "1 if automation is halted for the cluster (pause or ambiguity)",
    }, []string{"cluster"})

    CycleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
        Namespace: "go_failover",
        Name:      "cycle_duration_seconds",
        Help:      "Duration of full evaluation cycles in seconds",
        Buckets:   prometheus.DefBuckets,
    }, []string{"cluster"})

    CycleOverruns = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "go_failover",
        Name:      "cycle_overruns_total",
        Help:      "Total scheduler ticks skipped because the previous cycle was still running",
    }, []string{"cluster"})

    SinkDrops = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "go_failover",
        Subsystem: "sink",
        Name:      "drops_total",
        Help:      "Total observability events dropped by a sink",
    }, []string{"sink"})
)

// Register registers metrics into the default Prometheus registry (idempotent).
func Register() {
    once.Do(func() {
        prometheus.MustRegister(ProbeDuration)
        prometheus.MustRegister(ProbeResults)
        prometheus.MustRegister(MemberHealthy)
        prometheus.MustRegister(ProviderOutages)
        prometheus.MustRegister(EngineState)
        prometheus.MustRegister(StateTransitions)
        prometheus.MustRegister(FailoversTotal)
        prometheus.MustRegister(FailoverInFlight)
        prometheus.MustRegister(HaltedClusters)
        prometheus.MustRegister(CycleDuration)
        prometheus.MustRegister(CycleOverruns)
        prometheus.MustRegister(SinkDrops)
    })
}
