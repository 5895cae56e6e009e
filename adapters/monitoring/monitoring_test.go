package monitoring_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	gcm "google.golang.org/api/monitoring/v3"

	"github.com/mapmeter/mapmeter/adapters/monitoring"
)

func int64p(v int64) *int64       { return &v }
func float64p(v float64) *float64 { return &v }

func series(service string, points ...*gcm.Point) *gcm.TimeSeries {
	return &gcm.TimeSeries{
		Resource: &gcm.MonitoredResource{
			Type:   "consumed_api",
			Labels: map[string]string{"service": service},
		},
		Points: points,
	}
}

func intPoint(v int64) *gcm.Point {
	return &gcm.Point{Value: &gcm.TypedValue{Int64Value: int64p(v)}}
}

func doublePoint(v float64) *gcm.Point {
	return &gcm.Point{Value: &gcm.TypedValue{DoubleValue: float64p(v)}}
}

// fakeBackend serves canned list responses keyed by page token. The empty
// token is the first page.
type fakeBackend struct {
	t        *testing.T
	pages    map[string]*gcm.ListTimeSeriesResponse
	failPage string
	requests int
}

func (f *fakeBackend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests++
		if !strings.Contains(r.URL.Path, "/timeSeries") {
			f.t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if filter := r.URL.Query().Get("filter"); !strings.Contains(filter, "api/request_count") {
			f.t.Errorf("filter = %q, want request_count filter", filter)
		}

		token := r.URL.Query().Get("pageToken")
		if token == f.failPage && f.failPage != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"code":500,"message":"backend exploded"}}`))
			return
		}
		resp, ok := f.pages[token]
		if !ok {
			f.t.Errorf("unexpected page token %q", token)
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
}

func newSource(t *testing.T, backend *fakeBackend) *monitoring.Source {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	src, err := monitoring.New(context.Background(), monitoring.Config{
		ProjectID: "test-project",
		Endpoint:  srv.URL,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return src
}

func TestNew_RequiresProjectID(t *testing.T) {
	_, err := monitoring.New(context.Background(), monitoring.Config{}, zerolog.Nop())
	if err == nil {
		t.Fatal("New with empty project id succeeded, want error")
	}
}

func TestFetchServiceCounts_SinglePage(t *testing.T) {
	backend := &fakeBackend{t: t, pages: map[string]*gcm.ListTimeSeriesResponse{
		"": {
			TimeSeries: []*gcm.TimeSeries{
				series("places-backend.googleapis.com", intPoint(3), doublePoint(2.4), doublePoint(2.6)),
				series("roads.googleapis.com", intPoint(10)),
			},
		},
	}}
	src := newSource(t, backend)

	counts, err := src.FetchServiceCounts(context.Background(), time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("FetchServiceCounts: %v", err)
	}
	// 3 + round(2.4) + round(2.6) = 3 + 2 + 3.
	if got := counts["places-backend.googleapis.com"]; got != 8 {
		t.Errorf("places count = %d, want 8", got)
	}
	if got := counts["roads.googleapis.com"]; got != 10 {
		t.Errorf("roads count = %d, want 10", got)
	}
}

func TestFetchServiceCounts_DrainsAllPages(t *testing.T) {
	backend := &fakeBackend{t: t, pages: map[string]*gcm.ListTimeSeriesResponse{
		"": {
			TimeSeries:    []*gcm.TimeSeries{series("a.googleapis.com", intPoint(1))},
			NextPageToken: "p2",
		},
		"p2": {
			TimeSeries:    []*gcm.TimeSeries{series("a.googleapis.com", intPoint(2)), series("b.googleapis.com", intPoint(5))},
			NextPageToken: "p3",
		},
		"p3": {
			TimeSeries: []*gcm.TimeSeries{series("a.googleapis.com", intPoint(4))},
		},
	}}
	src := newSource(t, backend)

	counts, err := src.FetchServiceCounts(context.Background(), time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("FetchServiceCounts: %v", err)
	}
	if backend.requests != 3 {
		t.Errorf("backend requests = %d, want 3", backend.requests)
	}
	if got := counts["a.googleapis.com"]; got != 7 {
		t.Errorf("a count = %d, want 7 (summed across pages)", got)
	}
	if got := counts["b.googleapis.com"]; got != 5 {
		t.Errorf("b count = %d, want 5", got)
	}
}

func TestFetchServiceCounts_SkipsUnlabeledSeries(t *testing.T) {
	backend := &fakeBackend{t: t, pages: map[string]*gcm.ListTimeSeriesResponse{
		"": {
			TimeSeries: []*gcm.TimeSeries{
				{Points: []*gcm.Point{intPoint(9)}}, // no resource at all
				{
					Resource: &gcm.MonitoredResource{Type: "consumed_api"},
					Points:   []*gcm.Point{intPoint(9)},
				}, // resource without service label
				series("real.googleapis.com", intPoint(1)),
			},
		},
	}}
	src := newSource(t, backend)

	counts, err := src.FetchServiceCounts(context.Background(), time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("FetchServiceCounts: %v", err)
	}
	if len(counts) != 1 || counts["real.googleapis.com"] != 1 {
		t.Errorf("counts = %v, want only the labeled series", counts)
	}
}

func TestFetchServiceCounts_MidPageFailure(t *testing.T) {
	backend := &fakeBackend{
		t: t,
		pages: map[string]*gcm.ListTimeSeriesResponse{
			"": {
				TimeSeries:    []*gcm.TimeSeries{series("a.googleapis.com", intPoint(1))},
				NextPageToken: "p2",
			},
		},
		failPage: "p2",
	}
	src := newSource(t, backend)

	counts, err := src.FetchServiceCounts(context.Background(), time.Now().Add(-time.Hour), time.Now())
	if err == nil {
		t.Fatal("FetchServiceCounts succeeded despite failing page, want error")
	}
	if counts != nil {
		t.Errorf("counts = %v, want nil on page failure", counts)
	}

	var be *monitoring.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("error type = %T, want *BackendError", err)
	}
	if be.StatusCode() != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", be.StatusCode())
	}
}
