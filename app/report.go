// Package app contains application services that orchestrate domain logic
// with adapters. Services hold no domain rules of their own.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/mapmeter/mapmeter/adapters/metrics"
	"github.com/mapmeter/mapmeter/config"
	"github.com/mapmeter/mapmeter/domain/usage"
	"github.com/mapmeter/mapmeter/ports"
)

// ErrNotConfigured is returned when a usage report is requested without a
// configured GCP project. Surfaced to HTTP clients as a 400.
var ErrNotConfigured = errors.New("google_cloud.project_id is not configured")

// Report is the assembled reconciliation report for one query window.
type Report struct {
	ProjectID    string               `json:"project_id"`
	Period       Period               `json:"period"`
	Services     map[string]usage.Row `json:"services"`
	Totals       usage.Row            `json:"totals"`
	RawByService map[string]int64     `json:"raw_by_service"`
}

// Period is the half-open query window of a report.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ReportService builds usage reports from the remote monitoring backend.
type ReportService struct {
	holder    *config.Holder
	source    ports.MetricSource
	clock     ports.Clock
	logger    zerolog.Logger
	collector *metrics.Collector
}

// NewReportService creates a report service. source may be nil when no
// project is configured; reports then fail with ErrNotConfigured.
func NewReportService(holder *config.Holder, source ports.MetricSource, clk ports.Clock, logger zerolog.Logger, collector *metrics.Collector) *ReportService {
	return &ReportService{
		holder:    holder,
		source:    source,
		clock:     clk,
		logger:    logger,
		collector: collector,
	}
}

// Build fetches the current month's counts from the monitoring backend and
// reconciles them against the configured quotas. The window runs from the
// first instant of the current month (UTC) to now minus the ingestion lag.
// Any backend failure fails the whole report; no partial or stale data is
// substituted.
func (s *ReportService) Build(ctx context.Context) (*Report, error) {
	cfg := s.holder.Get()
	if s.source == nil {
		return nil, ErrNotConfigured
	}

	now := s.clock.Now().UTC()
	start := usage.MonthStart(now)
	end := now.Add(-cfg.GoogleCloud.IngestionLag)

	fetchCtx, cancel := context.WithTimeout(ctx, cfg.GoogleCloud.Timeout)
	defer cancel()

	began := time.Now()
	counts, err := s.source.FetchServiceCounts(fetchCtx, start, end)
	if s.collector != nil {
		s.collector.FetchDuration.Observe(time.Since(began).Seconds())
	}
	if err != nil {
		if s.collector != nil {
			s.collector.FetchErrors.Inc()
			s.collector.ReportsTotal.WithLabelValues("error").Inc()
		}
		s.logger.Error().Err(err).Msg("backend fetch failed")
		return nil, err
	}

	catalog := cfg.Catalog()
	rep := usage.Build(catalog, counts)

	out := &Report{
		ProjectID:    cfg.GoogleCloud.ProjectID,
		Period:       Period{Start: start, End: end},
		Services:     make(map[string]usage.Row, len(rep.Rows)),
		Totals:       rep.Total,
		RawByService: counts,
	}
	for _, row := range rep.Rows {
		out.Services[row.Name] = row
	}

	if s.collector != nil {
		s.collector.ReportsTotal.WithLabelValues("ok").Inc()
		used := make(map[string]int64, len(rep.Rows))
		for _, row := range rep.Rows {
			used[row.Name] = row.Used
		}
		s.collector.ObserveReport(used, catalog.Quotas())
	}

	s.logger.Info().
		Int64("used", rep.Total.Used).
		Int64("quota", rep.Total.Quota).
		Int("unattributed", len(rep.Unattributed)).
		Msg("usage report built")

	return out, nil
}
