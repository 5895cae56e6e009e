// Package memory provides in-memory implementations of storage ports,
// used in tests and for ephemeral single-process deployments.
package memory

import (
	"context"
	"sync"

	"github.com/mapmeter/mapmeter/ports"
)

// CounterStore is an in-memory implementation of ports.CounterStore.
// A single mutex guards all partitions; write volume is a handful of
// manual bumps, so finer locking buys nothing here.
type CounterStore struct {
	mu       sync.RWMutex
	products []string
	months   map[string]map[string]int64
	events   map[string][]ports.BumpEvent
}

// NewCounterStore creates an in-memory counter store.
func NewCounterStore(products []string) *CounterStore {
	return &CounterStore{
		products: products,
		months:   make(map[string]map[string]int64),
		events:   make(map[string][]ports.BumpEvent),
	}
}

// Increase adds the event's amount (coerced to >= 1) to the product's
// counter for the event's month.
func (s *CounterStore) Increase(ctx context.Context, e ports.BumpEvent) error {
	amount := e.Amount
	if amount < 1 {
		amount = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.months[e.MonthKey]
	if m == nil {
		m = make(map[string]int64)
		s.months[e.MonthKey] = m
	}
	m[e.Product] += amount

	e.Amount = amount
	s.events[e.MonthKey] = append(s.events[e.MonthKey], e)
	return nil
}

// GetMonth returns the month's counters with every known product present,
// defaulted to 0.
func (s *CounterStore) GetMonth(ctx context.Context, monthKey string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int64, len(s.products))
	for _, p := range s.products {
		counts[p] = 0
	}
	for product, count := range s.months[monthKey] {
		counts[product] = count
	}
	return counts, nil
}

// GetEvents returns the month's bump records, newest first.
func (s *CounterStore) GetEvents(ctx context.Context, monthKey string, limit int) ([]ports.BumpEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	recorded := s.events[monthKey]
	var events []ports.BumpEvent
	for i := len(recorded) - 1; i >= 0 && len(events) < limit; i-- {
		events = append(events, recorded[i])
	}
	return events, nil
}

// Reset clears the given month's partition only.
func (s *CounterStore) Reset(ctx context.Context, monthKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.months, monthKey)
	delete(s.events, monthKey)
	return nil
}

// Ensure interface compliance.
var _ ports.CounterStore = (*CounterStore)(nil)
