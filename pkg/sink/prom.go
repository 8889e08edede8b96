package sink

import (
    "context"

    obsmetrics "github.com/amirimatin/go-failover/pkg/observability/metrics"
    "github.com/amirimatin/go-failover/pkg/topology"
)

// Prom folds events into the prometheus collectors. Probe-level metrics are
// recorded by the monitor at probe time; this sink covers the event-shaped
// ones (transitions, failover outcomes, engine state).
type Prom struct{}

// NewProm registers the collectors and returns the sink.
func NewProm() *Prom {
    obsmetrics.Register()
    return &Prom{}
}

var stateValue = map[topology.State]float64{
    topology.StateStable:            0,
    topology.StateSuspectedFailure:  1,
    topology.StateFailoverTriggered: 2,
    topology.StateCoolingDown:       3,
}

func (p *Prom) Publish(ctx context.Context, ev Event) {
    switch ev.Type {
    case EventStateTransition:
        if ev.Transition == nil { return }
        t := ev.Transition
        obsmetrics.StateTransitions.WithLabelValues(ev.ClusterID, string(t.From), string(t.To)).Inc()
        obsmetrics.EngineState.WithLabelValues(ev.ClusterID).Set(stateValue[t.To])
    case EventFailover:
        if ev.Failover == nil { return }
        f := ev.Failover
        if f.Outcome.Terminal() {
            obsmetrics.FailoversTotal.WithLabelValues(ev.ClusterID, string(f.Outcome)).Inc()
            obsmetrics.FailoverInFlight.WithLabelValues(ev.ClusterID).Set(0)
        } else {
            obsmetrics.FailoverInFlight.WithLabelValues(ev.ClusterID).Set(1)
        }
    }
}

var _ Sink = (*Prom)(nil)
