package httpjson

import (
    "context"
    "errors"
    "net"
    "net/http"
    "strings"
    "testing"
    "time"

    "github.com/amirimatin/go-failover/pkg/mgmt"
)

func freeAddr(t *testing.T) string {
    t.Helper()
    ln, err := net.Listen("tcp", "127.0.0.1:0")
    if err != nil { t.Fatalf("listen: %v", err) }
    addr := ln.Addr().String()
    _ = ln.Close()
    return addr
}

// startServer runs a management server backed by canned handlers and waits
// until it accepts connections.
func startServer(t *testing.T) string {
    t.Helper()
    addr := freeAddr(t)
    srv := NewServer(addr, nil)
    ctx, cancel := context.WithCancel(context.Background())
    t.Cleanup(cancel)

    status := func(context.Context) ([]byte, error) {
        return []byte(`{"healthy":true,"clusters":[]}`), nil
    }
    trigger := func(_ context.Context, req mgmt.TriggerRequest) (mgmt.TriggerResponse, error) {
        if req.ClusterID == "nope" {
            return mgmt.TriggerResponse{Accepted: false, Error: "unknown cluster: nope"}, nil
        }
        return mgmt.TriggerResponse{Accepted: true, EventID: "ev-1"}, nil
    }
    pause := func(_ context.Context, req mgmt.PauseRequest) (mgmt.PauseResponse, error) {
        return mgmt.PauseResponse{Accepted: true}, nil
    }
    resume := func(_ context.Context, req mgmt.ResumeRequest) (mgmt.ResumeResponse, error) {
        return mgmt.ResumeResponse{}, errors.New("resume rejected")
    }
    if err := srv.Start(ctx, status, trigger, pause, resume); err != nil {
        t.Fatalf("start: %v", err)
    }
    awaitListen(t, addr)
    return addr
}

func awaitListen(t *testing.T, addr string) {
    t.Helper()
    deadline := time.Now().Add(2 * time.Second)
    for time.Now().Before(deadline) {
        conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
        if err == nil {
            _ = conn.Close()
            return
        }
        time.Sleep(10 * time.Millisecond)
    }
    t.Fatalf("server never listened on %s", addr)
}

func TestStatusRoundTrip(t *testing.T) {
    addr := startServer(t)
    c := NewClient(2 * time.Second)

    b, err := c.GetStatus(context.Background(), addr)
    if err != nil { t.Fatalf("get status: %v", err) }
    if !strings.Contains(string(b), `"healthy":true`) {
        t.Fatalf("unexpected status body: %s", b)
    }
}

func TestTriggerRoundTrip(t *testing.T) {
    addr := startServer(t)
    c := NewClient(2 * time.Second)

    resp, err := c.PostTrigger(context.Background(), addr, mgmt.TriggerRequest{ClusterID: "orders", TargetMemberID: "m2"})
    if err != nil { t.Fatalf("trigger: %v", err) }
    if !resp.Accepted || resp.EventID != "ev-1" {
        t.Fatalf("unexpected response: %+v", resp)
    }
}

func TestTriggerRejected(t *testing.T) {
    addr := startServer(t)
    c := NewClient(2 * time.Second)

    resp, err := c.PostTrigger(context.Background(), addr, mgmt.TriggerRequest{ClusterID: "nope"})
    if err == nil { t.Fatalf("expected error from rejected trigger") }
    if resp.Accepted { t.Fatalf("rejected trigger marked accepted") }
    if !strings.Contains(err.Error(), "unknown cluster") {
        t.Fatalf("err = %v, want the handler's error text", err)
    }
}

func TestPauseAndResume(t *testing.T) {
    addr := startServer(t)
    c := NewClient(2 * time.Second)

    if resp, err := c.PostPause(context.Background(), addr, mgmt.PauseRequest{ClusterID: "orders"}); err != nil || !resp.Accepted {
        t.Fatalf("pause: %+v, %v", resp, err)
    }
    // The handler error is folded into the response document and surfaced as
    // a client-side error.
    if _, err := c.PostResume(context.Background(), addr, mgmt.ResumeRequest{ClusterID: "orders"}); err == nil {
        t.Fatalf("expected resume error")
    }
}

func TestHealthz(t *testing.T) {
    addr := startServer(t)
    resp, err := http.Get("http://" + addr + "/healthz")
    if err != nil { t.Fatalf("get: %v", err) }
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusOK {
        t.Fatalf("healthz status = %d", resp.StatusCode)
    }
}
