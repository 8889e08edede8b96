package sink

import (
    "context"
    "log"

    "github.com/amirimatin/go-failover/pkg/internal/logutil"
)

// LogSink writes transitions, failover events and warnings through logutil.
// Health samples are logged only on failure to keep steady-state output
// quiet at one line per failed probe.
type LogSink struct {
    Logger *log.Logger

    // Verbose additionally logs successful health samples.
    Verbose bool
}

func (s *LogSink) Publish(ctx context.Context, ev Event) {
    l := s.Logger
    switch ev.Type {
    case EventHealthSample:
        if ev.Sample == nil { return }
        if ev.Sample.Error != "" {
            logutil.Warnf(l, "probe failed: cluster=%s member=%s err=%s", ev.ClusterID, ev.Sample.MemberID, ev.Sample.Error)
        } else if s.Verbose {
            logutil.Infof(l, "probe ok: cluster=%s member=%s status=%s latency=%s", ev.ClusterID, ev.Sample.MemberID, ev.Sample.Status, ev.Sample.Latency)
        }
    case EventStateTransition:
        if ev.Transition == nil { return }
        logutil.Infof(l, "state transition: cluster=%s %s -> %s reason=%q", ev.ClusterID, ev.Transition.From, ev.Transition.To, ev.Transition.Reason)
    case EventFailover:
        if ev.Failover == nil { return }
        f := ev.Failover
        logutil.Infof(l, "failover event: cluster=%s id=%s outcome=%s from=%s to=%s reason=%q", ev.ClusterID, f.ID, f.Outcome, f.FromWriterID, f.ToWriterID, f.Reason)
    case EventWarning:
        logutil.Warnf(l, "cluster=%s %s", ev.ClusterID, ev.Message)
    }
}

var _ Sink = (*LogSink)(nil)
