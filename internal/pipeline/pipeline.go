package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/forecast-etl-service/internal/domain"
	"github.com/couchcryptid/forecast-etl-service/internal/observability"
)

// ForecastFetcher retrieves the forecast for one coordinate pair.
type ForecastFetcher interface {
	Fetch(ctx context.Context, lat, lon float64, opts domain.FetchOptions) (domain.Forecast, error)
}

// PointWriter writes a batch of points in one call.
type PointWriter interface {
	WritePoints(ctx context.Context, points []domain.Point) error
}

// Settings is the static run configuration.
type Settings struct {
	Locations    []domain.Location
	FetchOptions domain.FetchOptions
	WriteHistory bool

	// Database and Host only label log lines.
	Database string
	Host     string
}

// RunSummary describes one pass over all configured locations.
type RunSummary struct {
	RunID           string    `json:"run_id"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	LocationsOK     int       `json:"locations_ok"`
	LocationsFailed int       `json:"locations_failed"`
	HourlyRecords   int       `json:"hourly_records"`
	WritesOK        int       `json:"writes_ok"`
	WritesFailed    int       `json:"writes_failed"`
}

// Duration is how long the run took.
func (s RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Pipeline fetches, transforms, and writes forecasts for every location.
type Pipeline struct {
	fetcher  ForecastFetcher
	writer   PointWriter
	settings Settings
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock

	ready   atomic.Bool
	mu      sync.Mutex
	lastRun *RunSummary
}

// New creates a Pipeline. A nil clock selects the real clock.
func New(f ForecastFetcher, w PointWriter, s Settings, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) *Pipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		fetcher:  f,
		writer:   w,
		settings: s,
		logger:   logger,
		metrics:  metrics,
		clock:    clock,
	}
}

// CheckReadiness returns nil once at least one run has completed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no import run has completed yet")
	}
	return nil
}

// LastRun returns the summary of the most recently finished run.
func (p *Pipeline) LastRun() (RunSummary, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastRun == nil {
		return RunSummary{}, false
	}
	return *p.lastRun, true
}

// RunOnce processes every location sequentially. A failed fetch skips that
// location; a failed write is logged and the run continues. Runs may overlap;
// they share no mutable state besides the last-run summary.
func (p *Pipeline) RunOnce(ctx context.Context) RunSummary {
	sum := RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: p.clock.Now(),
	}
	logger := p.logger.With("run_id", sum.RunID)
	p.metrics.RunsTotal.Inc()

	logger.Info("import run started", "locations", len(p.settings.Locations), "write_history", p.settings.WriteHistory)

	for _, loc := range p.settings.Locations {
		if err := ctx.Err(); err != nil {
			logger.Warn("import run interrupted", "reason", err)
			break
		}
		p.processLocation(ctx, logger, loc, &sum)
	}

	sum.FinishedAt = p.clock.Now()
	p.metrics.RunDuration.Observe(sum.Duration().Seconds())
	p.metrics.LastRunTimestamp.Set(float64(sum.FinishedAt.Unix()))

	p.mu.Lock()
	p.lastRun = &sum
	p.mu.Unlock()
	p.ready.Store(true)

	logger.Info("import run finished",
		"locations_ok", sum.LocationsOK,
		"locations_failed", sum.LocationsFailed,
		"writes_ok", sum.WritesOK,
		"writes_failed", sum.WritesFailed,
		"duration", sum.Duration(),
	)
	return sum
}

func (p *Pipeline) processLocation(ctx context.Context, logger *slog.Logger, loc domain.Location, sum *RunSummary) {
	logger = logger.With("location", loc.Name)

	fc, err := p.fetcher.Fetch(ctx, loc.Latitude, loc.Longitude, p.settings.FetchOptions)
	if err != nil {
		logger.Error("forecast fetch failed", "error", err)
		p.metrics.FetchErrors.Inc()
		sum.LocationsFailed++
		return
	}
	sum.LocationsOK++
	sum.HourlyRecords += len(fc.Hourly)
	p.metrics.HourlyRecords.Add(float64(len(fc.Hourly)))

	logger.Info("writing datapoints",
		"count", len(fc.Hourly),
		"database", p.settings.Database,
		"measurement", domain.MeasurementForecast,
		"host", p.settings.Host,
	)

	for i, set := range domain.BuildPoints(loc, fc, p.settings.WriteHistory) {
		logger.Debug("writing point",
			"index", i,
			"temperature", set.Live.Fields["temperature"],
			"timestamp", set.Live.Timestamp,
			"daytime", set.Live.Fields["daytime"],
		)

		// Live and history writes fail independently.
		p.write(ctx, logger, domain.MeasurementForecast, set.Live, sum)
		if set.History != nil {
			p.write(ctx, logger, domain.MeasurementHistory, *set.History, sum)
		}
	}
}

func (p *Pipeline) write(ctx context.Context, logger *slog.Logger, series string, pt domain.Point, sum *RunSummary) {
	err := p.writer.WritePoints(ctx, []domain.Point{pt})

	// The point reached the database; only a mirror missed it.
	var mirrorErr *MirrorError
	if errors.As(err, &mirrorErr) {
		logger.Warn("mirror write failed", "series", series, "timestamp", pt.Timestamp, "error", mirrorErr.Err)
		p.metrics.MirrorErrors.WithLabelValues(series).Inc()
		err = nil
	}

	if err != nil {
		logger.Error("write failed", "series", series, "timestamp", pt.Timestamp, "error", err)
		p.metrics.WriteErrors.WithLabelValues(series).Inc()
		sum.WritesFailed++
		return
	}
	p.metrics.PointsWritten.WithLabelValues(series).Inc()
	sum.WritesOK++
}
