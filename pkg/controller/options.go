package controller

import (
    "errors"
    "log"
    "time"

    "github.com/amirimatin/go-failover/pkg/provider"
    "github.com/amirimatin/go-failover/pkg/sink"
)

// Options carries dependency-injected components and runtime configuration
// used to assemble the controller facade. Instances are typically produced
// from bootstrap.Config.
type Options struct {
    // Clusters lists the cluster identifiers to monitor (required).
    Clusters []string

    // Provider is the external source of topology and member health (required).
    Provider provider.StatusProvider

    // ControlPlane issues failover commands (required).
    ControlPlane provider.ControlPlane

    // Sink receives health samples, transitions and failover events. The
    // controller always adds its own subscriber bus alongside it. Optional.
    Sink sink.Sink

    // Logger is used to report operational messages.
    Logger *log.Logger

    // PollInterval between evaluation cycles. Default 30s.
    PollInterval time.Duration

    // FailureThreshold (K): consecutive failed samples before a member is
    // unreachable. Default 3.
    FailureThreshold int

    // GracePeriod (G): how long a writer loss must persist before failover.
    // Default 30s.
    GracePeriod time.Duration

    // CooldownPeriod (C): quiescent window after a failover. Default 5m.
    CooldownPeriod time.Duration

    // ProbeTimeout bounds each member probe. Default 5s.
    ProbeTimeout time.Duration

    // MaxProbeRetries bounds provider-outage backoff retries. Default 3.
    MaxProbeRetries int

    // ProbeWorkers bounds probe parallelism per cycle. Default 4.
    ProbeWorkers int

    // FailoverTimeout (T) bounds a failover execution. Default 5m.
    FailoverTimeout time.Duration

    // ExecPollInterval between executor completion checks. Default 5s.
    ExecPollInterval time.Duration

    // DrainGrace bounds the shutdown wait for an in-flight failover.
    // Default 60s.
    DrainGrace time.Duration

    // Now overrides the engine clock, for tests.
    Now func() time.Time
}

// Validate performs a minimal validation of Options. It does not start any
// background work and is safe to call before New.
func (o Options) Validate() error {
    if len(o.Clusters) == 0 {
        return errors.New("controller: no clusters configured")
    }
    for _, id := range o.Clusters {
        if id == "" { return errors.New("controller: empty cluster id") }
    }
    if o.Provider == nil {
        return errors.New("controller: nil Provider")
    }
    if o.ControlPlane == nil {
        return errors.New("controller: nil ControlPlane")
    }
    return nil
}
