package sink

import (
    "bytes"
    "context"
    "crypto/tls"
    "encoding/json"
    "fmt"
    "log"
    "net/http"
    "time"

    "github.com/amirimatin/go-failover/pkg/internal/logutil"
    obsmetrics "github.com/amirimatin/go-failover/pkg/observability/metrics"
)

// Webhook posts events as JSON to an operator-provided endpoint. Delivery is
// asynchronous through a bounded queue; when the queue is full, events are
// dropped and counted rather than back-pressuring the control loop.
type Webhook struct {
    url    string
    httpc  *http.Client
    logger *log.Logger
    queue  chan Event
}

// WebhookOptions configures a webhook sink.
type WebhookOptions struct {
    URL     string
    Timeout time.Duration // per-delivery timeout, default 5s
    Queue   int           // queue depth, default 128
    TLS     *tls.Config
    Logger  *log.Logger
}

// NewWebhook starts the delivery worker. ctx bounds its lifetime.
func NewWebhook(ctx context.Context, opts WebhookOptions) (*Webhook, error) {
    if opts.URL == "" { return nil, fmt.Errorf("sink: empty webhook url") }
    if opts.Timeout <= 0 { opts.Timeout = 5 * time.Second }
    if opts.Queue <= 0 { opts.Queue = 128 }
    tr := &http.Transport{}
    if opts.TLS != nil { tr.TLSClientConfig = opts.TLS }
    w := &Webhook{
        url:    opts.URL,
        httpc:  &http.Client{Timeout: opts.Timeout, Transport: tr},
        logger: opts.Logger,
        queue:  make(chan Event, opts.Queue),
    }
    go w.deliverLoop(ctx)
    return w, nil
}

func (w *Webhook) Publish(ctx context.Context, ev Event) {
    select {
    case w.queue <- ev:
    default:
        obsmetrics.SinkDrops.WithLabelValues("webhook").Inc()
    }
}

func (w *Webhook) deliverLoop(ctx context.Context) {
    for {
        select {
        case <-ctx.Done():
            return
        case ev := <-w.queue:
            if err := w.deliver(ctx, ev); err != nil {
                logutil.Warnf(w.logger, "webhook delivery failed: %v", err)
            }
        }
    }
}

func (w *Webhook) deliver(ctx context.Context, ev Event) error {
    body, err := json.Marshal(ev)
    if err != nil { return err }
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
    if err != nil { return err }
    req.Header.Set("Content-Type", "application/json")
    resp, err := w.httpc.Do(req)
    if err != nil { return err }
    defer resp.Body.Close()
    if resp.StatusCode >= 300 {
        return fmt.Errorf("webhook status %d", resp.StatusCode)
    }
    return nil
}

var _ Sink = (*Webhook)(nil)
