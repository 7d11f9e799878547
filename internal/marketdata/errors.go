package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"quantdesk/internal/domain"
)

// classify maps a provider error onto the domain taxonomy. Authentication
// and request errors are permanent; everything else is transient and may be
// retried.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrCancelled, err)
	}

	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500:
			return fmt.Errorf("%s: %w", op, &domain.TransientError{Err: err})
		case apiErr.StatusCode >= 400:
			return fmt.Errorf("%s: %w: %w", op, domain.ErrDataUnavailable, err)
		}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "401") || strings.Contains(msg, "403") {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrDataUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, &domain.TransientError{Err: err})
}
