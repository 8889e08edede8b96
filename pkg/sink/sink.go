// Package sink defines the observability sink the controller publishes to:
// health samples, engine state transitions and failover events. Delivery is
// fire-and-forget from the control loop's perspective: implementations must
// never block the caller, and delivery failures are logged, not returned.
package sink

import (
    "context"
    "time"

    "github.com/amirimatin/go-failover/pkg/topology"
)

type EventType string

const (
    EventHealthSample    EventType = "health_sample"
    EventStateTransition EventType = "state_transition"
    EventFailover        EventType = "failover"
    EventWarning         EventType = "warning"
)

// Event is the envelope published to sinks. Only the field matching Type is
// populated, plus ClusterID and At which are always set.
type Event struct {
    Type       EventType                 `json:"type"`
    At         time.Time                 `json:"at"`
    ClusterID  string                    `json:"clusterId"`
    Sample     *topology.HealthSample    `json:"sample,omitempty"`
    Transition *topology.StateTransition `json:"transition,omitempty"`
    Failover   *topology.FailoverEvent   `json:"failover,omitempty"`
    Message    string                    `json:"message,omitempty"`
}

// Sink receives observability events. Publish must be non-blocking.
type Sink interface {
    Publish(ctx context.Context, ev Event)
}

// Multi fans an event out to several sinks in order.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, ev Event) {
    for _, s := range m {
        if s != nil { s.Publish(ctx, ev) }
    }
}

// Discard drops every event. Useful as a default when no sink is configured.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}
