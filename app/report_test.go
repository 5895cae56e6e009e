package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mapmeter/mapmeter/adapters/clock"
	"github.com/mapmeter/mapmeter/app"
	"github.com/mapmeter/mapmeter/config"
)

// fakeSource returns canned counts and records the requested window.
type fakeSource struct {
	counts     map[string]int64
	err        error
	start, end time.Time
}

func (f *fakeSource) FetchServiceCounts(ctx context.Context, start, end time.Time) (map[string]int64, error) {
	f.start, f.end = start, end
	if f.err != nil {
		return nil, f.err
	}
	return f.counts, nil
}

func testConfig() *config.Config {
	return &config.Config{
		GoogleCloud: config.GoogleCloud{
			ProjectID:    "test-project",
			Timeout:      5 * time.Second,
			IngestionLag: 15 * time.Minute,
		},
		Products: []config.ProductConfig{
			{Name: "Places API", Labels: []string{"places-backend.googleapis.com"}, Quota: 100},
			{Name: "Roads API", Labels: []string{"roads.googleapis.com"}, Quota: 50},
		},
		IgnoredHosts: []string{"monitoring.googleapis.com"},
	}
}

func TestReportService_Build(t *testing.T) {
	now := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{counts: map[string]int64{
		"places-backend.googleapis.com": 40,
		"monitoring.googleapis.com":     999,
	}}
	svc := app.NewReportService(config.NewStaticHolder(testConfig()), source, clock.NewFake(now), zerolog.Nop(), nil)

	rep, err := svc.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	wantStart := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	wantEnd := now.Add(-15 * time.Minute)
	if !source.start.Equal(wantStart) || !source.end.Equal(wantEnd) {
		t.Errorf("window = [%v, %v), want [%v, %v)", source.start, source.end, wantStart, wantEnd)
	}

	if rep.ProjectID != "test-project" {
		t.Errorf("ProjectID = %q", rep.ProjectID)
	}
	places := rep.Services["Places API"]
	if places.Used != 40 || places.Remaining != 60 || places.Pct != 40.0 {
		t.Errorf("Places row = %+v, want used 40 remaining 60 pct 40", places)
	}
	roads := rep.Services["Roads API"]
	if roads.Used != 0 || roads.Remaining != 50 {
		t.Errorf("Roads row = %+v, want zero usage", roads)
	}
	if rep.Totals.Used != 40 || rep.Totals.Quota != 150 {
		t.Errorf("Totals = %+v, want ignored host excluded", rep.Totals)
	}
	if rep.RawByService["monitoring.googleapis.com"] != 999 {
		t.Errorf("RawByService = %v, want raw counts preserved", rep.RawByService)
	}
}

func TestReportService_BuildNotConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.GoogleCloud.ProjectID = ""
	svc := app.NewReportService(config.NewStaticHolder(cfg), nil, clock.Real{}, zerolog.Nop(), nil)

	_, err := svc.Build(context.Background())
	if !errors.Is(err, app.ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestReportService_BuildBackendFailure(t *testing.T) {
	boom := errors.New("backend down")
	source := &fakeSource{err: boom}
	svc := app.NewReportService(config.NewStaticHolder(testConfig()), source, clock.Real{}, zerolog.Nop(), nil)

	rep, err := svc.Build(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want the backend error", err)
	}
	if rep != nil {
		t.Errorf("rep = %+v, want nil on backend failure", rep)
	}
}
