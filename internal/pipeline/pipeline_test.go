package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/forecast-etl-service/internal/domain"
	"github.com/couchcryptid/forecast-etl-service/internal/observability"
	"github.com/couchcryptid/forecast-etl-service/internal/pipeline"
)

// --- mocks ---

type mockFetcher struct {
	mu       sync.Mutex
	forecast domain.Forecast
	failLat  map[float64]error
	calls    []float64
	opts     []domain.FetchOptions
	onFetch  func()
}

func (m *mockFetcher) Fetch(_ context.Context, lat, _ float64, opts domain.FetchOptions) (domain.Forecast, error) {
	m.mu.Lock()
	m.calls = append(m.calls, lat)
	m.opts = append(m.opts, opts)
	m.mu.Unlock()
	if m.onFetch != nil {
		m.onFetch()
	}
	if err := m.failLat[lat]; err != nil {
		return domain.Forecast{}, err
	}
	return m.forecast, nil
}

type mockWriter struct {
	mu          sync.Mutex
	batches     [][]domain.Point
	failSeries  string
	failOnCalls map[int]bool
}

func (m *mockWriter) WritePoints(_ context.Context, points []domain.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, points)
	if m.failOnCalls[len(m.batches)] {
		return errors.New("connection refused")
	}
	if m.failSeries != "" && points[0].Measurement == m.failSeries {
		return errors.New("field type conflict")
	}
	return nil
}

func (m *mockWriter) measurements() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.batches))
	for _, b := range m.batches {
		out = append(out, b[0].Measurement)
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	berlin  = domain.Location{Name: "Berlin", Latitude: 52.5, Longitude: 13.4}
	oslo    = domain.Location{Name: "Oslo", Latitude: 59.9, Longitude: 10.7}
	chicago = domain.Location{Name: "Chicago", Latitude: 41.9, Longitude: -87.6}
)

// twoHourForecast has one daytime and one nighttime hour.
func twoHourForecast() domain.Forecast {
	return domain.Forecast{
		Daily: []domain.DailyRecord{{SunriseTime: 1000, SunsetTime: 2000}},
		Hourly: []domain.HourlyRecord{
			{Time: 1500, Temperature: 12.5, CloudCover: 0.3},
			{Time: 2500, Temperature: 8, CloudCover: 0.9},
		},
	}
}

func newPipeline(f pipeline.ForecastFetcher, w pipeline.PointWriter, s pipeline.Settings, clock clockwork.Clock) (*pipeline.Pipeline, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	return pipeline.New(f, w, s, discardLogger(), m, clock), m
}

// --- tests ---

func TestPipeline_RunOnce_LiveOnly(t *testing.T) {
	f := &mockFetcher{forecast: twoHourForecast()}
	w := &mockWriter{}
	opts := domain.FetchOptions{Units: "si", Language: "en", ExtendHourly: true}
	p, m := newPipeline(f, w, pipeline.Settings{Locations: []domain.Location{berlin}, FetchOptions: opts}, nil)

	sum := p.RunOnce(context.Background())

	assert.Equal(t, 1, sum.LocationsOK)
	assert.Equal(t, 0, sum.LocationsFailed)
	assert.Equal(t, 2, sum.HourlyRecords)
	assert.Equal(t, 2, sum.WritesOK)
	assert.NotEmpty(t, sum.RunID)

	assert.Equal(t, []string{"forecast", "forecast"}, w.measurements())
	for _, b := range w.batches {
		assert.Len(t, b, 1)
	}
	if diff := cmp.Diff([]domain.FetchOptions{opts}, f.opts); diff != "" {
		t.Errorf("fetch options mismatch (-want +got):\n%s", diff)
	}

	day := w.batches[0][0]
	assert.Equal(t, true, day.Fields["daytime"])
	assert.InDelta(t, 0.7, day.Fields["sun_cover"], 1e-9)
	assert.Equal(t, int64(1500)*int64(time.Second), day.Timestamp)

	night := w.batches[1][0]
	assert.Equal(t, false, night.Fields["daytime"])
	assert.Equal(t, -10.0, night.Fields["nightime_show"])

	assert.InDelta(t, 1, testutil.ToFloat64(m.RunsTotal), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.HourlyRecords), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.PointsWritten.WithLabelValues("forecast")), 0)
}

func TestPipeline_RunOnce_WithHistory(t *testing.T) {
	f := &mockFetcher{forecast: twoHourForecast()}
	w := &mockWriter{}
	p, _ := newPipeline(f, w, pipeline.Settings{Locations: []domain.Location{berlin}, WriteHistory: true}, nil)

	sum := p.RunOnce(context.Background())

	assert.Equal(t, 4, sum.WritesOK)
	assert.Equal(t, []string{"forecast", "forecast_history", "forecast", "forecast_history"}, w.measurements())

	hist := w.batches[1][0]
	assert.Equal(t, "1500", hist.Tags["forecast_time_tag"])
	assert.Equal(t, 1500.0, hist.Fields["forecast_time_field"])
	assert.Equal(t, w.batches[0][0].Timestamp, hist.Timestamp)
	assert.NotContains(t, w.batches[0][0].Tags, "forecast_time_tag")
}

func TestPipeline_RunOnce_FetchFailureSkipsLocation(t *testing.T) {
	f := &mockFetcher{
		forecast: twoHourForecast(),
		failLat:  map[float64]error{oslo.Latitude: errors.New("timeout")},
	}
	w := &mockWriter{}
	s := pipeline.Settings{Locations: []domain.Location{berlin, oslo, chicago}, WriteHistory: true}
	p, m := newPipeline(f, w, s, nil)

	sum := p.RunOnce(context.Background())

	assert.Equal(t, []float64{berlin.Latitude, oslo.Latitude, chicago.Latitude}, f.calls)
	assert.Equal(t, 2, sum.LocationsOK)
	assert.Equal(t, 1, sum.LocationsFailed)
	// 2 successful locations x 2 hourly records x 2 series
	assert.Len(t, w.batches, 8)
	assert.Equal(t, 8, sum.WritesOK)
	assert.Equal(t, "Berlin", w.batches[0][0].Tags["location"])
	assert.Equal(t, "Chicago", w.batches[7][0].Tags["location"])
	assert.InDelta(t, 1, testutil.ToFloat64(m.FetchErrors), 0)
}

func TestPipeline_RunOnce_WriteFailuresAreIndependent(t *testing.T) {
	f := &mockFetcher{forecast: twoHourForecast()}
	w := &mockWriter{failSeries: "forecast"}
	p, m := newPipeline(f, w, pipeline.Settings{Locations: []domain.Location{berlin, oslo}, WriteHistory: true}, nil)

	sum := p.RunOnce(context.Background())

	// Every live write fails, yet every history write and every location is attempted.
	assert.Len(t, w.batches, 8)
	assert.Equal(t, 4, sum.WritesFailed)
	assert.Equal(t, 4, sum.WritesOK)
	assert.Equal(t, 2, sum.LocationsOK)
	assert.InDelta(t, 4, testutil.ToFloat64(m.WriteErrors.WithLabelValues("forecast")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.PointsWritten.WithLabelValues("forecast_history")), 0)
}

func TestPipeline_RunOnce_HistoryFailureDoesNotStopNextRecord(t *testing.T) {
	f := &mockFetcher{forecast: twoHourForecast()}
	w := &mockWriter{failOnCalls: map[int]bool{2: true}}
	p, _ := newPipeline(f, w, pipeline.Settings{Locations: []domain.Location{berlin}, WriteHistory: true}, nil)

	sum := p.RunOnce(context.Background())

	assert.Equal(t, []string{"forecast", "forecast_history", "forecast", "forecast_history"}, w.measurements())
	assert.Equal(t, 1, sum.WritesFailed)
	assert.Equal(t, 3, sum.WritesOK)
}

func TestPipeline_RunOnce_ContextCancelledStopsBetweenLocations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &mockFetcher{forecast: twoHourForecast(), onFetch: cancel}
	w := &mockWriter{}
	p, _ := newPipeline(f, w, pipeline.Settings{Locations: []domain.Location{berlin, oslo}}, nil)

	sum := p.RunOnce(ctx)

	assert.Equal(t, []float64{berlin.Latitude}, f.calls)
	assert.Equal(t, 1, sum.LocationsOK)
}

func TestPipeline_RunOnce_NoLocations(t *testing.T) {
	w := &mockWriter{}
	p, _ := newPipeline(&mockFetcher{}, w, pipeline.Settings{}, nil)

	sum := p.RunOnce(context.Background())

	assert.Empty(t, w.batches)
	assert.Zero(t, sum.LocationsOK)
	require.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_ReadinessAndLastRun(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 4, 26, 15, 0, 0, 0, time.UTC))
	f := &mockFetcher{
		forecast: twoHourForecast(),
		onFetch:  func() { clock.Advance(3 * time.Second) },
	}
	p, m := newPipeline(f, &mockWriter{}, pipeline.Settings{Locations: []domain.Location{berlin}}, clock)

	require.Error(t, p.CheckReadiness(context.Background()))
	_, ok := p.LastRun()
	assert.False(t, ok)

	sum := p.RunOnce(context.Background())

	require.NoError(t, p.CheckReadiness(context.Background()))
	last, ok := p.LastRun()
	require.True(t, ok)
	assert.Equal(t, sum, last)
	assert.Equal(t, 3*time.Second, last.Duration())
	assert.Equal(t, clock.Now(), last.FinishedAt)
	assert.InDelta(t, float64(clock.Now().Unix()), testutil.ToFloat64(m.LastRunTimestamp), 0)
}

func TestPipeline_RunOnce_DistinctRunIDs(t *testing.T) {
	p, _ := newPipeline(&mockFetcher{}, &mockWriter{}, pipeline.Settings{}, nil)

	a := p.RunOnce(context.Background())
	b := p.RunOnce(context.Background())
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestPipeline_RunOnce_ConcurrentRuns(t *testing.T) {
	f := &mockFetcher{forecast: twoHourForecast()}
	w := &mockWriter{}
	p, _ := newPipeline(f, w, pipeline.Settings{Locations: []domain.Location{berlin, oslo}}, nil)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sum := p.RunOnce(context.Background())
			assert.Equal(t, 4, sum.WritesOK)
		}()
	}
	wg.Wait()

	assert.Len(t, w.batches, 16)
}

func TestPipeline_RunOnce_MirrorFailureIsNotAWriteFailure(t *testing.T) {
	f := &mockFetcher{forecast: twoHourForecast()}
	primary := &mockWriter{}
	mirror := &mockWriter{failSeries: "forecast_history"}
	p, m := newPipeline(f, pipeline.NewFanOut(primary, mirror), pipeline.Settings{
		Locations:    []domain.Location{berlin},
		WriteHistory: true,
	}, nil)

	sum := p.RunOnce(context.Background())

	assert.Equal(t, 4, sum.WritesOK)
	assert.Zero(t, sum.WritesFailed)
	assert.Len(t, primary.batches, 4)
	assert.InDelta(t, 0, testutil.ToFloat64(m.WriteErrors.WithLabelValues("forecast_history")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.MirrorErrors.WithLabelValues("forecast_history")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.PointsWritten.WithLabelValues("forecast_history")), 0)
}

func TestPipeline_RunOnce_PrimaryFailureWithMirrors(t *testing.T) {
	f := &mockFetcher{forecast: twoHourForecast()}
	primary := &mockWriter{failSeries: "forecast"}
	mirror := &mockWriter{}
	p, m := newPipeline(f, pipeline.NewFanOut(primary, mirror), pipeline.Settings{
		Locations: []domain.Location{berlin},
	}, nil)

	sum := p.RunOnce(context.Background())

	assert.Equal(t, 2, sum.WritesFailed)
	assert.Len(t, mirror.batches, 2)
	assert.InDelta(t, 2, testutil.ToFloat64(m.WriteErrors.WithLabelValues("forecast")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.MirrorErrors.WithLabelValues("forecast")), 0)
}
