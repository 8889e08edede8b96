package scheduler

import (
    "context"
    "sync/atomic"
    "testing"
    "time"
)

func TestRunsImmediatelyAndOnTicks(t *testing.T) {
    s := New(Options{Interval: 20 * time.Millisecond, DrainGrace: time.Second})
    ctx, cancel := context.WithCancel(context.Background())

    var n atomic.Int32
    done := make(chan struct{})
    go func() {
        defer close(done)
        s.Run(ctx, "orders", func(context.Context) { n.Add(1) })
    }()

    deadline := time.After(2 * time.Second)
    for n.Load() < 3 {
        select {
        case <-deadline:
            t.Fatalf("cycles = %d after 2s, want >= 3", n.Load())
        case <-time.After(5 * time.Millisecond):
        }
    }
    cancel()
    <-done
}

func TestOverrunSkipsTick(t *testing.T) {
    s := New(Options{Interval: 10 * time.Millisecond, DrainGrace: time.Second})
    ctx, cancel := context.WithCancel(context.Background())

    var running atomic.Int32
    var overlapped atomic.Bool
    release := make(chan struct{})
    started := make(chan struct{}, 1)
    done := make(chan struct{})
    go func() {
        defer close(done)
        s.Run(ctx, "orders", func(context.Context) {
            if running.Add(1) > 1 { overlapped.Store(true) }
            select {
            case started <- struct{}{}:
            default:
            }
            <-release
            running.Add(-1)
        })
    }()

    <-started
    // Let several ticks land while the first cycle is stuck.
    time.Sleep(50 * time.Millisecond)
    close(release)
    cancel()
    <-done

    if overlapped.Load() { t.Fatalf("cycles ran concurrently") }
}

func TestDrainWaitsForInFlightCycle(t *testing.T) {
    s := New(Options{Interval: time.Hour, DrainGrace: time.Second})
    ctx, cancel := context.WithCancel(context.Background())

    finished := make(chan struct{})
    started := make(chan struct{})
    done := make(chan struct{})
    go func() {
        defer close(done)
        s.Run(ctx, "orders", func(context.Context) {
            close(started)
            time.Sleep(50 * time.Millisecond)
            close(finished)
        })
    }()

    <-started
    cancel()
    <-done
    select {
    case <-finished:
    default:
        t.Fatalf("Run returned before the in-flight cycle finished")
    }
}

func TestDrainGivesUpAfterGrace(t *testing.T) {
    s := New(Options{Interval: time.Hour, DrainGrace: 30 * time.Millisecond})
    ctx, cancel := context.WithCancel(context.Background())

    started := make(chan struct{})
    block := make(chan struct{})
    done := make(chan struct{})
    go func() {
        defer close(done)
        s.Run(ctx, "orders", func(context.Context) {
            close(started)
            <-block
        })
    }()

    <-started
    cancel()
    select {
    case <-done:
    case <-time.After(time.Second):
        t.Fatalf("Run did not return after drain grace")
    }
    close(block)
}
