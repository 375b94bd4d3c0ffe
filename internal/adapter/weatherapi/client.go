// Package weatherapi is the outbound adapter for the conditions and alerts endpoints.
package weatherapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/trace-alert-service/internal/domain"
	"github.com/couchcryptid/trace-alert-service/internal/observability"
)

const (
	weatherPath = "/api/weather"
	alertsPath  = "/api/alerts"
)

// Client implements domain.WeatherSource over the weather API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a weather API client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    metrics,
		logger:     logger,
	}
}

type weatherResponse struct {
	Location *domain.RawPlace     `json:"location"`
	Current  domain.RawConditions `json:"current"`
}

type alertsResponse struct {
	Alerts []domain.Alert `json:"alerts"`
}

// Conditions fetches the raw current conditions and the reported place for c.
func (c *Client) Conditions(ctx context.Context, coord domain.Coordinate) (domain.RawConditions, *domain.RawPlace, error) {
	var resp weatherResponse
	if err := c.get(ctx, weatherPath, "weather", coord, &resp); err != nil {
		return domain.RawConditions{}, nil, err
	}
	return resp.Current, resp.Location, nil
}

// Alerts fetches the active alerts for c. A missing severity is reported as Unknown.
func (c *Client) Alerts(ctx context.Context, coord domain.Coordinate) ([]domain.Alert, error) {
	var resp alertsResponse
	if err := c.get(ctx, alertsPath, "alerts", coord, &resp); err != nil {
		return nil, err
	}
	alerts := make([]domain.Alert, 0, len(resp.Alerts))
	for _, a := range resp.Alerts {
		if a.Severity == "" {
			a.Severity = domain.SeverityUnknown
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

func (c *Client) get(ctx context.Context, path, endpoint string, coord domain.Coordinate, out any) error {
	params := url.Values{
		"lat": {strconv.FormatFloat(coord.Lat, 'f', -1, 64)},
		"lon": {strconv.FormatFloat(coord.Lon, 'f', -1, 64)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.FetchDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%s request: %w: %w", endpoint, domain.ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Debug("weather api non-2xx", "endpoint", endpoint, "status", resp.StatusCode)
		return fmt.Errorf("%s: %w: status %d: %s", endpoint, domain.ErrServiceError, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w: %w", endpoint, domain.ErrServiceError, err)
	}
	return nil
}
