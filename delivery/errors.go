package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/hazyhaar/sosrelay/locator"
)

// Kind classifies why an attempt failed.
type Kind string

const (
	KindDriverUnavailable   Kind = "driver_unavailable"
	KindSessionLaunchFailed Kind = "session_launch_failed"
	KindLocatorNotFound     Kind = "locator_not_found"
	KindSendTriggerFailed   Kind = "send_trigger_failed"
	KindProbeUnreachable    Kind = "probe_unreachable"
	KindDeadlineExceeded    Kind = "deadline_exceeded"
	KindSchedulerFailed     Kind = "scheduler_failed"
	KindInternal            Kind = "internal"
)

// Error is the failure a strategy returns to the Controller.
type Error struct {
	Strategy string
	Kind     Kind
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Strategy, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Strategy, e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// KindOf extracts the Kind from err. Errors that carry none are classified
// from well-known causes, else reported as internal.
func KindOf(err error) Kind {
	var de *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &de):
		return de.Kind
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindDeadlineExceeded
	case errors.Is(err, locator.ErrNotFound):
		return KindLocatorNotFound
	}
	return KindInternal
}

// detail is the human-readable part of err without the strategy prefix.
func detail(err error) string {
	var de *Error
	if errors.As(err, &de) {
		if de.Cause == nil {
			return string(de.Kind)
		}
		return string(de.Kind) + ": " + de.Cause.Error()
	}
	return err.Error()
}

// fail wraps cause for strategy. When ctx has already ended the failure is
// reported as a deadline regardless of kind, since the wait was cut short.
func fail(ctx context.Context, strategy string, kind Kind, cause error) error {
	if ctx.Err() != nil {
		kind = KindDeadlineExceeded
	}
	return &Error{Strategy: strategy, Kind: kind, Cause: cause}
}
