package darksky

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/forecast-etl-service/internal/domain"
)

// DefaultBaseURL is the DarkSky forecast endpoint.
const DefaultBaseURL = "https://api.darksky.net/forecast"

// maxErrorBody caps how much of a failed response body ends up in a StatusError.
const maxErrorBody = 512

// Client fetches forecasts from a DarkSky-compatible API.
type Client struct {
	key        string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a forecast client. An empty baseURL selects DefaultBaseURL.
func NewClient(key, baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		key: key,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// StatusError is returned when the provider answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("darksky API error: status %d: %s", e.StatusCode, e.Body)
}

// DecodeError is returned when the response body does not have the expected shape.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decode forecast response: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

var (
	errMissingDaily  = errors.New("missing daily block")
	errMissingHourly = errors.New("missing hourly block")
)

// Fetch requests the forecast for one coordinate pair.
func (c *Client) Fetch(ctx context.Context, lat, lon float64, opts domain.FetchOptions) (domain.Forecast, error) {
	u := c.requestURL(lat, lon, opts)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.Forecast{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Forecast{}, fmt.Errorf("forecast request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.Forecast{}, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var fr response
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return domain.Forecast{}, &DecodeError{Err: err}
	}
	if fr.Daily == nil {
		return domain.Forecast{}, &DecodeError{Err: errMissingDaily}
	}
	if fr.Hourly == nil {
		return domain.Forecast{}, &DecodeError{Err: errMissingHourly}
	}

	fc := domain.Forecast{
		Daily:  fr.Daily.Data,
		Hourly: fr.Hourly.Data,
	}
	if n := len(fc.Hourly); n > 0 {
		c.logger.Debug("forecast decoded",
			"lat", lat,
			"lon", lon,
			"daily", len(fc.Daily),
			"hourly", n,
			"first", time.Unix(fc.Hourly[0].Time, 0).UTC(),
			"last", time.Unix(fc.Hourly[n-1].Time, 0).UTC(),
		)
	}
	return fc, nil
}

// requestURL builds {base}/{key}/{lat},{lon}?exclude=..&units=..&lang=..&extend=hourly.
// The key is part of the path, so the URL is never logged.
func (c *Client) requestURL(lat, lon float64, opts domain.FetchOptions) string {
	coord := strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
	u := fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(c.key), coord)

	params := url.Values{}
	if len(opts.Exclude) > 0 {
		params.Set("exclude", strings.Join(opts.Exclude, ","))
	}
	if opts.Units != "" {
		params.Set("units", opts.Units)
	}
	if opts.Language != "" {
		params.Set("lang", opts.Language)
	}
	if opts.ExtendHourly {
		params.Set("extend", "hourly")
	}
	if len(params) == 0 {
		return u
	}
	return u + "?" + params.Encode()
}

// DarkSky API response types. Only the fields the importer writes are decoded;
// absent numeric fields stay zero.

type response struct {
	Latitude  float64      `json:"latitude"`
	Longitude float64      `json:"longitude"`
	Timezone  string       `json:"timezone"`
	Hourly    *hourlyBlock `json:"hourly"`
	Daily     *dailyBlock  `json:"daily"`
}

type hourlyBlock struct {
	Summary string                `json:"summary"`
	Data    []domain.HourlyRecord `json:"data"`
}

type dailyBlock struct {
	Summary string               `json:"summary"`
	Data    []domain.DailyRecord `json:"data"`
}
