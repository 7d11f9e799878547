package domain

import (
	"context"
	"errors"
	"fmt"
)

// Error taxonomy. Callers match with errors.Is; producers wrap with
// fmt.Errorf("...: %w", ErrX) to add context without changing the kind.
var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrUnknownStrategy  = errors.New("unknown strategy")
	ErrUnknownIndicator = errors.New("unknown indicator")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInsufficientData = errors.New("insufficient data")
	ErrDataUnavailable  = errors.New("data unavailable")
	ErrCancelled        = errors.New("cancelled")
	ErrInvalidHorizon   = errors.New("invalid horizon")
)

var kinds = []struct {
	err  error
	name string
}{
	// Cancelled first: a cancelled fetch may also carry ErrDataUnavailable.
	{ErrCancelled, "Cancelled"},
	{ErrInvalidRequest, "InvalidRequest"},
	{ErrUnknownStrategy, "UnknownStrategy"},
	{ErrUnknownIndicator, "UnknownIndicator"},
	{ErrInvalidParameter, "InvalidParameter"},
	{ErrInsufficientData, "InsufficientData"},
	{ErrDataUnavailable, "DataUnavailable"},
	{ErrInvalidHorizon, "InvalidHorizon"},
}

// Kind returns the taxonomy name of err, or "Internal" for anything else.
// Context cancellation is reported as "Cancelled".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "Cancelled"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}

// Cancelled converts a context error into the ErrCancelled kind while
// keeping the original cause in the chain.
func Cancelled(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = ctx.Err()
	}
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

// Retryable reports whether err may succeed on a later attempt. Only
// transient market-data failures qualify.
func Retryable(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// TransientError marks a market-data failure that is worth retrying, such
// as a network error or an upstream 5xx/429. It always unwraps to
// ErrDataUnavailable.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", ErrDataUnavailable, e.Err)
}

func (e *TransientError) Unwrap() []error {
	return []error{ErrDataUnavailable, e.Err}
}
