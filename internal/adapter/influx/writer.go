package influx

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"

	"github.com/couchcryptid/forecast-etl-service/internal/config"
	"github.com/couchcryptid/forecast-etl-service/internal/domain"
)

const (
	defaultPort = "8086"
	precision   = "ns"
)

// Writer writes point batches to an InfluxDB 1.x database.
// It implements pipeline.PointWriter.
type Writer struct {
	client   client.Client
	database string
	addr     string
	logger   *slog.Logger
}

// NewWriter creates an HTTP client for the configured database. No request is
// made until the first write or ping.
func NewWriter(cfg config.DatabaseConfig, logger *slog.Logger) (*Writer, error) {
	addr, err := influxAddr(cfg.Host)
	if err != nil {
		return nil, err
	}
	c, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:     addr,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create influx client: %w", err)
	}
	return &Writer{client: c, database: cfg.Database, addr: addr, logger: logger}, nil
}

// Addr is the normalized server URL.
func (w *Writer) Addr() string { return w.addr }

// WritePoints sends all points in a single write call.
func (w *Writer) WritePoints(ctx context.Context, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}
	// The client has no context support; honor cancellation before the request.
	if err := ctx.Err(); err != nil {
		return err
	}

	bp, err := client.NewBatchPoints(client.BatchPointsConfig{
		Database:  w.database,
		Precision: precision,
	})
	if err != nil {
		return fmt.Errorf("new batch: %w", err)
	}

	for i := range points {
		p, err := client.NewPoint(points[i].Measurement, points[i].Tags, points[i].Fields, points[i].Time())
		if err != nil {
			return fmt.Errorf("build point %s: %w", points[i].Measurement, err)
		}
		bp.AddPoint(p)
	}

	if err := w.client.Write(bp); err != nil {
		return fmt.Errorf("influx write to %s: %w", w.database, err)
	}
	return nil
}

// Ping checks that the server answers.
func (w *Writer) Ping(timeout time.Duration) error {
	rtt, version, err := w.client.Ping(timeout)
	if err != nil {
		return fmt.Errorf("influx ping %s: %w", w.addr, err)
	}
	w.logger.Debug("influx ping", "addr", w.addr, "version", version, "rtt", rtt)
	return nil
}

func (w *Writer) Close() error {
	return w.client.Close()
}

// influxAddr accepts "host", "host:port", or a full URL and returns a URL with
// a scheme and port.
func influxAddr(host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", fmt.Errorf("influx host is empty")
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return "", fmt.Errorf("parse influx host %q: %w", host, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("influx host %q has no hostname", host)
	}
	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), defaultPort)
	}
	return strings.TrimRight(u.String(), "/"), nil
}
