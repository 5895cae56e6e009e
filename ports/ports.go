// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// MetricSource pulls request counts from the remote monitoring backend.
type MetricSource interface {
	// FetchServiceCounts sums request counts per backend service label over
	// [start, end). The backend pages its results; implementations must
	// drain every page before returning and must fail the whole call on any
	// page error - a partial map is never a valid result. Retrying is the
	// caller's concern.
	FetchServiceCounts(ctx context.Context, start, end time.Time) (map[string]int64, error)
}

// BumpEvent is one manual usage adjustment, kept as an audit record.
type BumpEvent struct {
	ID        string    `json:"id"`
	MonthKey  string    `json:"month"`
	Product   string    `json:"service"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CounterStore persists month-partitioned per-product usage counters.
// Months are keyed YYYY-MM in UTC. Counters never go negative.
type CounterStore interface {
	// Increase adds amount (coerced to >= 1) to the product's counter for
	// the month, creating the partition and counter as needed. The
	// read-modify-write must be atomic under concurrent callers.
	Increase(ctx context.Context, event BumpEvent) error

	// GetMonth returns the month's full counter set with every known
	// product present, defaulted to 0 when the partition does not exist.
	GetMonth(ctx context.Context, monthKey string) (map[string]int64, error)

	// GetEvents returns the month's bump audit records, newest first.
	GetEvents(ctx context.Context, monthKey string, limit int) ([]BumpEvent, error)

	// Reset clears the given month's partition, leaving other months
	// untouched. In practice only the current month is ever reset.
	Reset(ctx context.Context, monthKey string) error
}
