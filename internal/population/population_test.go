package population

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/footprint-labs/footprint-go/internal/domain"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAOI() domain.AOI {
	return domain.AOI{Polygon: orb.Polygon{{
		{7.40, 46.94}, {7.46, 46.94}, {7.46, 46.98}, {7.40, 46.98}, {7.40, 46.94},
	}}}
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c := NewClient(Config{BaseURL: srv.URL, Year: 2020}, srv.Client(), nil)
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

func TestEstimate_Synchronous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "wpgppop", q.Get("dataset"))
		assert.Equal(t, "2020", q.Get("year"))
		assert.Equal(t, "false", q.Get("runasync"))
		assert.NotEmpty(t, q.Get("geojson"))
		_, _ = w.Write([]byte(`{"status":"finished","data":{"total_population":12345.6}}`))
	}))
	defer srv.Close()

	stats, err := newTestClient(t, srv).Estimate(context.Background(), testAOI())
	require.NoError(t, err)
	assert.Equal(t, int64(12346), stats.PopulationEstimate)
	assert.Equal(t, "WorldPop", stats.Source)
	assert.Equal(t, 2020, stats.Year)
	assert.Greater(t, stats.AreaKm2, 0.0)
	assert.InDelta(t, 12345.6/stats.AreaKm2, stats.DensityPerKm2, 1e-6)
}

func TestEstimate_AsyncPolling(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/services/stats":
			_, _ = w.Write([]byte(`{"status":"created","taskid":"task-7"}`))
		case "/tasks/task-7":
			if polls.Add(1) < 3 {
				_, _ = w.Write([]byte(`{"status":"started"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"finished","data":{"total_population":500}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	stats, err := newTestClient(t, srv).Estimate(context.Background(), testAOI())
	require.NoError(t, err)
	assert.Equal(t, int64(500), stats.PopulationEstimate)
	assert.Equal(t, "task-7", stats.TaskID)
	assert.Equal(t, int32(3), polls.Load())
}

func TestEstimate_AsyncGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/services/stats" {
			_, _ = w.Write([]byte(`{"status":"created","taskid":"task-9"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"started"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Estimate(context.Background(), testAOI())
	assert.ErrorContains(t, err, "did not finish")
}

func TestEstimate_TaskError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/services/stats" {
			_, _ = w.Write([]byte(`{"status":"created","taskid":"task-3"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"finished","error":"raster unavailable"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Estimate(context.Background(), testAOI())
	assert.ErrorContains(t, err, "raster unavailable")
}

type failingEstimator struct{}

func (failingEstimator) Estimate(context.Context, domain.AOI) (*domain.PopulationStats, error) {
	return nil, errors.New("service down")
}

func TestEnricher_FailureYieldsNil(t *testing.T) {
	e := NewEnricher(failingEstimator{}, nil)
	assert.Nil(t, e.Estimate(context.Background(), testAOI()))
}

func TestCoverage_Buckets(t *testing.T) {
	cases := []struct {
		buildings int
		pop       int64
		level     string
	}{
		{5, 100, "very_low"},
		{15, 100, "low"},
		{30, 100, "moderate"},
		{50, 100, "high"},
		{80, 100, "excellent"},
	}
	for _, tc := range cases {
		m := Coverage(tc.buildings, tc.pop)
		require.NotNil(t, m)
		assert.Equal(t, tc.level, m.CoverageLevel, "buildings=%d", tc.buildings)
	}

	assert.Nil(t, Coverage(10, 0))
	assert.Nil(t, Coverage(10, -5))
}
