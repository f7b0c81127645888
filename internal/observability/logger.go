package observability

import (
	"io"
	"log/slog"
	"os"

	"github.com/couchcryptid/forecast-etl-service/internal/config"
)

// NewLogger builds the service logger from config. general.debug forces the
// debug level regardless of general.log_level.
func NewLogger(cfg *config.Config) *slog.Logger {
	return newLogger(os.Stdout, cfg.General)
}

func newLogger(w io.Writer, cfg config.GeneralConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	if cfg.Debug {
		opts.Level = slog.LevelDebug
	}

	var h slog.Handler
	if cfg.LogFormat == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With("service", "forecast-etl")
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
