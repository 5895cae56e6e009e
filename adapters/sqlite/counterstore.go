package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mapmeter/mapmeter/ports"
)

// CounterStore implements ports.CounterStore using SQLite.
// Increments are a single upsert inside a transaction, so concurrent bumps
// are serialized by the database rather than by an in-process lock, and a
// reader never observes a half-written partition.
type CounterStore struct {
	db       *DB
	products []string
}

// NewCounterStore creates a SQLite counter store. products is the known
// product list used to zero-fill month reads.
func NewCounterStore(db *DB, products []string) *CounterStore {
	return &CounterStore{db: db, products: products}
}

// Increase adds the event's amount (coerced to >= 1) to the product's
// counter for the event's month and appends the audit record.
func (s *CounterStore) Increase(ctx context.Context, e ports.BumpEvent) error {
	amount := e.Amount
	if amount < 1 {
		amount = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bump: %w", err)
	}
	defer tx.Rollback()

	now := e.CreatedAt.UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO usage_counters (month_key, product, count, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(month_key, product) DO UPDATE SET
			count = count + excluded.count,
			updated_at = excluded.updated_at
	`, e.MonthKey, e.Product, amount, now)
	if err != nil {
		return fmt.Errorf("increase counter: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bump_events (id, month_key, product, amount, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.MonthKey, e.Product, amount, e.Reason, now)
	if err != nil {
		return fmt.Errorf("record bump event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bump: %w", err)
	}
	return nil
}

// GetMonth returns the month's counters with every known product present,
// defaulted to 0. Months that never saw a bump read as all zeros.
func (s *CounterStore) GetMonth(ctx context.Context, monthKey string) (map[string]int64, error) {
	counts := make(map[string]int64, len(s.products))
	for _, p := range s.products {
		counts[p] = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product, count FROM usage_counters WHERE month_key = ?
	`, monthKey)
	if err != nil {
		return nil, fmt.Errorf("query counters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var product string
		var count int64
		if err := rows.Scan(&product, &count); err != nil {
			return nil, fmt.Errorf("scan counter: %w", err)
		}
		counts[product] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read counters: %w", err)
	}
	return counts, nil
}

// GetEvents returns the month's bump audit records, newest first.
func (s *CounterStore) GetEvents(ctx context.Context, monthKey string, limit int) ([]ports.BumpEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, month_key, product, amount, reason, created_at
		FROM bump_events
		WHERE month_key = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, monthKey, limit)
	if err != nil {
		return nil, fmt.Errorf("query bump events: %w", err)
	}
	defer rows.Close()

	var events []ports.BumpEvent
	for rows.Next() {
		var e ports.BumpEvent
		var reason sql.NullString
		var createdAt time.Time
		if err := rows.Scan(&e.ID, &e.MonthKey, &e.Product, &e.Amount, &reason, &createdAt); err != nil {
			return nil, fmt.Errorf("scan bump event: %w", err)
		}
		e.Reason = reason.String
		e.CreatedAt = createdAt
		events = append(events, e)
	}
	return events, rows.Err()
}

// Reset clears the given month's partition and its audit trail. Other
// months are untouched.
func (s *CounterStore) Reset(ctx context.Context, monthKey string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM usage_counters WHERE month_key = ?`, monthKey); err != nil {
		return fmt.Errorf("reset counters: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM bump_events WHERE month_key = ?`, monthKey); err != nil {
		return fmt.Errorf("reset bump events: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}

// Ensure interface compliance.
var _ ports.CounterStore = (*CounterStore)(nil)
