package sink

import (
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "sync"
    "testing"
    "time"

    "github.com/amirimatin/go-failover/pkg/topology"
)

func TestWebhookDelivers(t *testing.T) {
    var mu sync.Mutex
    var got []Event
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        var ev Event
        if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
            t.Errorf("decode: %v", err)
        }
        mu.Lock()
        got = append(got, ev)
        mu.Unlock()
    }))
    defer srv.Close()

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    wh, err := NewWebhook(ctx, WebhookOptions{URL: srv.URL})
    if err != nil { t.Fatalf("webhook: %v", err) }

    wh.Publish(ctx, Event{Type: EventWarning, ClusterID: "orders", Message: "automation halted"})
    wh.Publish(ctx, Event{Type: EventStateTransition, ClusterID: "orders",
        Transition: &topology.StateTransition{ClusterID: "orders", From: topology.StateStable, To: topology.StateSuspectedFailure}})

    deadline := time.After(2 * time.Second)
    for {
        mu.Lock()
        n := len(got)
        mu.Unlock()
        if n == 2 { break }
        select {
        case <-deadline:
            t.Fatalf("delivered %d events, want 2", n)
        case <-time.After(10 * time.Millisecond):
        }
    }

    mu.Lock()
    defer mu.Unlock()
    if got[0].Type != EventWarning || got[0].ClusterID != "orders" {
        t.Fatalf("first event: %+v", got[0])
    }
    if got[1].Transition == nil || got[1].Transition.To != topology.StateSuspectedFailure {
        t.Fatalf("second event: %+v", got[1])
    }
}

func TestWebhookRequiresURL(t *testing.T) {
    if _, err := NewWebhook(context.Background(), WebhookOptions{}); err == nil {
        t.Fatalf("expected error for empty url")
    }
}

func TestMultiFansOut(t *testing.T) {
    var a, b int
    m := Multi{
        sinkFunc(func(Event) { a++ }),
        nil,
        sinkFunc(func(Event) { b++ }),
    }
    m.Publish(context.Background(), Event{Type: EventWarning})
    m.Publish(context.Background(), Event{Type: EventFailover})
    if a != 2 || b != 2 { t.Fatalf("fan-out counts: a=%d b=%d", a, b) }
}

type sinkFunc func(Event)

func (f sinkFunc) Publish(_ context.Context, ev Event) { f(ev) }
