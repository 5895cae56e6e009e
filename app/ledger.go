package app

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mapmeter/mapmeter/adapters/metrics"
	"github.com/mapmeter/mapmeter/config"
	"github.com/mapmeter/mapmeter/domain/usage"
	"github.com/mapmeter/mapmeter/ports"
)

// ErrEmptyService is returned for a bump with no service name. Checked
// before any store mutation.
var ErrEmptyService = errors.New("service must not be empty")

// LocalSummary is the quota view over the manually bumped ledger. It is
// reported beside the remote-derived report, never merged into it: the
// ledger covers usage the monitoring backend cannot see, and summing the
// two silently would double-count once the backend catches up.
type LocalSummary struct {
	Month string      `json:"month"`
	Rows  []usage.Row `json:"rows"`
	Total usage.Row   `json:"total"`
}

// LedgerService manages the local bump ledger.
type LedgerService struct {
	store     ports.CounterStore
	holder    *config.Holder
	clock     ports.Clock
	logger    zerolog.Logger
	collector *metrics.Collector
}

// NewLedgerService creates a ledger service.
func NewLedgerService(store ports.CounterStore, holder *config.Holder, clk ports.Clock, logger zerolog.Logger, collector *metrics.Collector) *LedgerService {
	return &LedgerService{
		store:     store,
		holder:    holder,
		clock:     clk,
		logger:    logger,
		collector: collector,
	}
}

// Bump adds amount (coerced to >= 1) to the service's counter for the
// current month and returns the recorded event.
func (s *LedgerService) Bump(ctx context.Context, service string, amount int64, reason string) (ports.BumpEvent, error) {
	service = strings.TrimSpace(service)
	if service == "" {
		return ports.BumpEvent{}, ErrEmptyService
	}
	if amount < 1 {
		amount = 1
	}

	now := s.clock.Now().UTC()
	event := ports.BumpEvent{
		ID:        uuid.NewString(),
		MonthKey:  usage.MonthKey(now),
		Product:   service,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: now,
	}

	if err := s.store.Increase(ctx, event); err != nil {
		if s.collector != nil {
			s.collector.StoreErrors.Inc()
		}
		return ports.BumpEvent{}, err
	}

	if s.collector != nil {
		s.collector.BumpsTotal.WithLabelValues(service).Inc()
		s.collector.BumpAmounts.WithLabelValues(service).Add(float64(amount))
	}

	s.logger.Info().
		Str("service", service).
		Int64("amount", amount).
		Str("month", event.MonthKey).
		Msg("usage bumped")

	return event, nil
}

// Summary reconciles the current month's ledger against the configured
// quotas.
func (s *LedgerService) Summary(ctx context.Context) (LocalSummary, error) {
	monthKey := usage.MonthKey(s.clock.Now())

	counts, err := s.store.GetMonth(ctx, monthKey)
	if err != nil {
		if s.collector != nil {
			s.collector.StoreErrors.Inc()
		}
		return LocalSummary{}, err
	}

	rep := usage.BuildFromCounts(s.holder.Get().Catalog(), counts)
	return LocalSummary{
		Month: monthKey,
		Rows:  rep.Rows,
		Total: rep.Total,
	}, nil
}

// Events returns the current month's bump audit records, newest first.
func (s *LedgerService) Events(ctx context.Context, limit int) ([]ports.BumpEvent, error) {
	monthKey := usage.MonthKey(s.clock.Now())
	return s.store.GetEvents(ctx, monthKey, limit)
}

// Reset clears the current month's ledger and returns the cleared month
// key. Prior months are untouched.
func (s *LedgerService) Reset(ctx context.Context) (string, error) {
	monthKey := usage.MonthKey(s.clock.Now())
	if err := s.store.Reset(ctx, monthKey); err != nil {
		if s.collector != nil {
			s.collector.StoreErrors.Inc()
		}
		return "", err
	}

	s.logger.Info().Str("month", monthKey).Msg("usage ledger reset")
	return monthKey, nil
}
