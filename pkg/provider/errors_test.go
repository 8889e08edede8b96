package provider

import (
    "errors"
    "fmt"
    "testing"
)

func TestOutage(t *testing.T) {
    base := errors.New("connection refused")
    err := Outage("query", base)

    if !IsOutage(err) { t.Fatalf("IsOutage = false") }
    if !errors.Is(err, base) { t.Fatalf("outage does not unwrap to the cause") }

    // Wrapping an outage keeps it recognizable.
    wrapped := fmt.Errorf("cycle skipped: %w", err)
    if !IsOutage(wrapped) { t.Fatalf("IsOutage lost through wrapping") }
}

func TestMemberErrorsAreNotOutages(t *testing.T) {
    for _, err := range []error{
        errors.New("member unreachable"),
        ErrUnknownCluster,
        ErrUnknownMember,
        ErrThrottled,
        ErrAlreadyInProgress,
        nil,
    } {
        if IsOutage(err) { t.Fatalf("IsOutage(%v) = true", err) }
    }
}
