package controller

import (
    "context"
    "sync"

    "github.com/amirimatin/go-failover/pkg/sink"
)

// Subscribe returns a channel of observability events (health samples, state
// transitions, failover outcomes, warnings). The returned channel is buffered
// and closed automatically when ctx is done. Events may be dropped if the
// consumer is too slow (best-effort delivery) to avoid back-pressuring the
// evaluation loops.
func (c *Controller) Subscribe(ctx context.Context) <-chan sink.Event {
    ch := make(chan sink.Event, 64)
    c.eb.add(ch)
    go func() {
        <-ctx.Done()
        c.eb.remove(ch)
        close(ch)
    }()
    return ch
}

// internal event bus; it doubles as a sink.Sink so the monitor, engine and
// executor publish to subscribers through the same fan-out path.
type eventBus struct {
    mu   sync.Mutex
    subs map[chan sink.Event]struct{}
}

func (e *eventBus) Publish(_ context.Context, ev sink.Event) {
    e.mu.Lock()
    for ch := range e.subs {
        select {
        case ch <- ev:
        default:
            // drop if receiver is slow
        }
    }
    e.mu.Unlock()
}

func (e *eventBus) add(ch chan sink.Event) {
    e.mu.Lock()
    if e.subs == nil { e.subs = make(map[chan sink.Event]struct{}) }
    e.subs[ch] = struct{}{}
    e.mu.Unlock()
}

func (e *eventBus) remove(ch chan sink.Event) {
    e.mu.Lock()
    if e.subs != nil { delete(e.subs, ch) }
    e.mu.Unlock()
}
