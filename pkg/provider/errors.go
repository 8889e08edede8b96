package provider

import (
    "errors"
    "fmt"
)

var (
    // ErrAlreadyInProgress signals that the control plane is already running
    // a failover for the cluster. Not an error for callers: join by polling.
    ErrAlreadyInProgress = errors.New("provider: operation already in progress")

    // ErrThrottled marks an explicitly-idempotent transient rejection (rate
    // limiting). It is the only trigger error the executor retries.
    ErrThrottled = errors.New("provider: request throttled")

    ErrUnknownCluster   = errors.New("provider: unknown cluster")
    ErrUnknownMember    = errors.New("provider: unknown member")
    ErrUnknownOperation = errors.New("provider: unknown operation")
)

// Error marks a provider-level outage: the status provider itself could not
// be reached, as opposed to one member failing its probe. The monitor treats
// it as a degraded cycle and leaves all failure counters untouched.
type Error struct {
    Op  string
    Err error
}

func (e *Error) Error() string { return fmt.Sprintf("provider: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Outage wraps err as a provider-level outage for the given operation.
func Outage(op string, err error) error { return &Error{Op: op, Err: err} }

// IsOutage reports whether err (or anything it wraps) is a provider-level
// outage.
func IsOutage(err error) bool {
    var pe *Error
    return errors.As(err, &pe)
}
