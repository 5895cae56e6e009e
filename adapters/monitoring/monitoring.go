// Package monitoring pulls API request counts from Google Cloud Monitoring.
// It implements ports.MetricSource over the Monitoring v3 REST API.
package monitoring

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	gcm "google.golang.org/api/monitoring/v3"
	"google.golang.org/api/option"
)

// Filter selecting request counts attributed to consumed APIs. The
// "service" resource label on each series carries the backend hostname
// used downstream for product classification.
const requestCountFilter = `metric.type = "serviceruntime.googleapis.com/api/request_count" AND resource.type = "consumed_api"`

// serviceLabel is the resource label key holding the backend hostname.
const serviceLabel = "service"

// Source fetches per-service request counts for one GCP project.
type Source struct {
	svc       *gcm.Service
	projectID string
	logger    zerolog.Logger
}

// Config configures the metric source.
type Config struct {
	// ProjectID is the GCP project to query. Required.
	ProjectID string
	// CredentialsFile is a service account key path. Empty means
	// application default credentials.
	CredentialsFile string
	// Endpoint overrides the API endpoint. Used by tests; when set the
	// client skips authentication.
	Endpoint string
}

// New creates a metric source. A missing project ID is a configuration
// error reported here, before any network call is attempted.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Source, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, fmt.Errorf("monitoring: project id not configured")
	}

	opts := []option.ClientOption{
		option.WithScopes(gcm.MonitoringReadScope),
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = []option.ClientOption{
			option.WithEndpoint(cfg.Endpoint),
			option.WithoutAuthentication(),
		}
	}

	svc, err := gcm.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("monitoring: create client: %w", err)
	}

	return &Source{
		svc:       svc,
		projectID: cfg.ProjectID,
		logger:    logger,
	}, nil
}

// FetchServiceCounts sums request counts per service label over [start, end).
// The backend pages results behind an opaque cursor; every page is drained
// before the map is returned, and a failure on any page fails the whole
// call so partial pages are never observable. Point values arrive either
// as int64 or double, never both; doubles are rounded half away from zero
// before summing.
func (s *Source) FetchServiceCounts(ctx context.Context, start, end time.Time) (map[string]int64, error) {
	counts := make(map[string]int64)

	call := s.svc.Projects.TimeSeries.List("projects/" + s.projectID).
		Filter(requestCountFilter).
		IntervalStartTime(start.UTC().Format(time.RFC3339)).
		IntervalEndTime(end.UTC().Format(time.RFC3339))

	pages := 0
	pageToken := ""
	for {
		resp, err := call.PageToken(pageToken).Context(ctx).Do()
		if err != nil {
			return nil, &BackendError{Op: "list time series", Err: err}
		}
		pages++

		for _, ts := range resp.TimeSeries {
			if ts.Resource == nil {
				continue
			}
			label := ts.Resource.Labels[serviceLabel]
			if label == "" {
				continue
			}
			counts[label] += sumPoints(ts.Points)
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	s.logger.Debug().
		Int("pages", pages).
		Int("services", len(counts)).
		Time("start", start).
		Time("end", end).
		Msg("fetched service counts")

	return counts, nil
}

// sumPoints adds up a series' point values as integers.
func sumPoints(points []*gcm.Point) int64 {
	var sum int64
	for _, p := range points {
		if p == nil || p.Value == nil {
			continue
		}
		switch {
		case p.Value.Int64Value != nil:
			sum += *p.Value.Int64Value
		case p.Value.DoubleValue != nil:
			sum += int64(math.Round(*p.Value.DoubleValue))
		}
	}
	return sum
}

// BackendError wraps a Monitoring API failure. The report request that
// triggered the fetch fails as a whole; retrying is left to the caller.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("monitoring backend: %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// StatusCode returns the backend HTTP status, or 0 when the failure never
// reached the API (network errors, context cancellation).
func (e *BackendError) StatusCode() int {
	if ge, ok := e.Err.(*googleapi.Error); ok {
		return ge.Code
	}
	return 0
}
