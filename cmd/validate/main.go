// Command validate is a preflight check for an importer configuration. It
// loads the same configuration as cmd/etl, pings InfluxDB, fetches the
// forecast for every configured location, and checks the points that would be
// written. Nothing is written to the database.
//
// Usage:
//
//	CONFIG_FILE=config.yaml go run ./cmd/validate
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/forecast-etl-service/internal/adapter/darksky"
	"github.com/couchcryptid/forecast-etl-service/internal/adapter/influx"
	"github.com/couchcryptid/forecast-etl-service/internal/config"
	"github.com/couchcryptid/forecast-etl-service/internal/domain"
)

// knownUnits are the unit systems the provider accepts.
var knownUnits = map[string]bool{"auto": true, "ca": true, "uk2": true, "us": true, "si": true}

// fieldCount is the number of fields on every live point.
const fieldCount = 15

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	os.Exit(run())
}

func run() int {
	fmt.Println("=== Forecast Importer Preflight ===")
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		return 1
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	phases := []*phase{
		validateConfig(cfg),
		validateDatabase(cfg, logger),
	}

	client := darksky.NewClient(cfg.Provider.Key, cfg.Provider.BaseURL, cfg.Provider.Timeout, logger)
	fetched, fp := validateProvider(context.Background(), client, cfg.Locations(), cfg.FetchOptions())
	phases = append(phases, fp)

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	series := 1
	if cfg.General.WriteHistory {
		series = 2
	}
	fmt.Printf("Locations: %d configured, %d fetched; %d hourly records, %d write calls per run\n",
		len(cfg.Provider.Locations), fetched.locations, fetched.hourly, fetched.hourly*series)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i >= 20 {
				fmt.Printf("  ... and %d more\n", len(p.errors)-20)
				break
			}
			fmt.Printf("  %s\n", e)
		}
	}

	if !allPassed {
		return 1
	}
	return 0
}

func validateConfig(cfg *config.Config) *phase {
	p := &phase{name: "Configuration"}
	checkLocations(p, cfg.Locations())
	if !knownUnits[cfg.Provider.Units] {
		p.errorf("provider.units %q is not one of auto, ca, uk2, us, si", cfg.Provider.Units)
	}
	return p
}

func checkLocations(p *phase, locs []domain.Location) {
	if len(locs) == 0 {
		p.errorf("no locations configured")
		return
	}
	seen := make(map[string]bool, len(locs))
	for _, l := range locs {
		if seen[l.Name] {
			p.errorf("duplicate location name %q: points would share a location tag", l.Name)
		}
		seen[l.Name] = true
	}
}

func validateDatabase(cfg *config.Config, logger *slog.Logger) *phase {
	p := &phase{name: "InfluxDB connectivity"}
	w, err := influx.NewWriter(cfg.Database, logger)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	defer w.Close()

	if err := w.Ping(cfg.Database.Timeout); err != nil {
		p.errorf("%v", err)
	}
	return p
}

type fetchStats struct {
	locations int
	hourly    int
}

type fetcher interface {
	Fetch(ctx context.Context, lat, lon float64, opts domain.FetchOptions) (domain.Forecast, error)
}

func validateProvider(ctx context.Context, f fetcher, locs []domain.Location, opts domain.FetchOptions) (fetchStats, *phase) {
	p := &phase{name: "Provider fetch and point schema"}
	var stats fetchStats
	for _, loc := range locs {
		fc, err := f.Fetch(ctx, loc.Latitude, loc.Longitude, opts)
		if err != nil {
			p.errorf("%s: %v", loc.Name, err)
			continue
		}
		stats.locations++
		stats.hourly += len(fc.Hourly)
		checkForecast(p, loc, fc)
	}
	return stats, p
}

func checkForecast(p *phase, loc domain.Location, fc domain.Forecast) {
	if len(fc.Daily) == 0 {
		p.errorf("%s: no daily records, every point would be classified as night", loc.Name)
	}
	if len(fc.Hourly) == 0 {
		p.errorf("%s: no hourly records", loc.Name)
		return
	}

	var prev int64
	for i, set := range domain.BuildPoints(loc, fc, true) {
		live := set.Live
		if len(live.Fields) != fieldCount {
			p.errorf("%s[%d]: %d fields, want %d", loc.Name, i, len(live.Fields), fieldCount)
		}
		if _, ok := live.Fields["daytime"].(bool); !ok {
			p.errorf("%s[%d]: daytime is not a boolean", loc.Name, i)
		}
		if i > 0 && live.Timestamp <= prev {
			p.errorf("%s[%d]: timestamp %s not after previous", loc.Name, i, live.Time().Format(time.RFC3339))
		}
		prev = live.Timestamp

		cc := fc.Hourly[i].CloudCover
		if cc < 0 || cc > 1 {
			p.errorf("%s[%d]: cloudCover %v outside [0,1]", loc.Name, i, cc)
		}
		if set.History == nil || set.History.Tags[domain.TagForecastTime] == "" {
			p.errorf("%s[%d]: history point missing %s", loc.Name, i, domain.TagForecastTime)
		}
	}
}
