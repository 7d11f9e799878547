// Package store persists market-data bars and backtest run records.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"quantdesk/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// BarKey identifies one cached bar request.
type BarKey struct {
	Symbol   string
	Interval domain.Interval
	Start    time.Time
	End      time.Time
}

// BarCache stores bar series for closed historical ranges.
type BarCache interface {
	// GetBars returns the cached bars for key. The bool reports a hit.
	GetBars(ctx context.Context, key BarKey) ([]domain.Bar, bool, error)

	// PutBars stores bars under key, replacing any previous entry.
	PutBars(ctx context.Context, key BarKey, bars []domain.Bar) error
}

// RunRecord is one recorded backtest.
type RunRecord struct {
	ID          string                    `json:"id"`
	CreatedAt   time.Time                 `json:"created_at"`
	Symbol      string                    `json:"symbol"`
	Interval    string                    `json:"interval"`
	Strategy    string                    `json:"strategy"`
	Request     json.RawMessage           `json:"request"`
	Performance domain.PerformanceSummary `json:"performance"`
}

// RunLog persists backtest run records.
type RunLog interface {
	// SaveRun inserts rec, assigning ID and CreatedAt when they are empty.
	SaveRun(ctx context.Context, rec *RunRecord) error

	// GetRun retrieves a run by ID, or ErrNotFound.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns the most recent runs first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}
