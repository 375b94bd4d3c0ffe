// Package fetcher retrieves conditions and alerts for a coordinate as one
// all-or-nothing unit and applies the fallback policy on failure.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/trace-alert-service/internal/domain"
)

// Result is the normalized outcome of one successful fetch.
type Result struct {
	Conditions    domain.ConditionsSnapshot
	Alerts        []domain.Alert
	LocationLabel string
}

// Fetcher issues the conditions and alerts requests concurrently.
type Fetcher struct {
	source domain.WeatherSource
	logger *slog.Logger
}

// New creates a Fetcher over a weather source.
func New(source domain.WeatherSource, logger *slog.Logger) *Fetcher {
	return &Fetcher{source: source, logger: logger}
}

// FetchAll retrieves and normalizes both resources. If either retrieval fails
// the whole fetch fails and no partial result is returned.
func (f *Fetcher) FetchAll(ctx context.Context, coord domain.Coordinate) (Result, error) {
	var (
		raw    domain.RawConditions
		place  *domain.RawPlace
		alerts []domain.Alert
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		raw, place, err = f.source.Conditions(gctx, coord)
		if err != nil {
			return fmt.Errorf("fetch conditions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		alerts, err = f.source.Alerts(gctx, coord)
		if err != nil {
			return fmt.Errorf("fetch alerts: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	if alerts == nil {
		alerts = []domain.Alert{}
	}
	return Result{
		Conditions:    domain.NormalizeConditions(raw),
		Alerts:        alerts,
		LocationLabel: domain.PlaceLabel(place),
	}, nil
}

// Outcome is what the dashboard applies after a fetch attempt.
type Outcome struct {
	Conditions *domain.ConditionsSnapshot
	Alerts     []domain.Alert
	// LocationLabel is empty on failure; the caller keeps its previous label.
	LocationLabel string
	ErrorBanner   string
	Failed        bool
}

// Resolve applies the fallback policy to a fetch result. On failure the alerts
// are emptied, the banner is set, and conditions become the fixed fallback
// snapshot when fallbackEnabled, or nil otherwise.
func Resolve(res Result, err error, fallbackEnabled bool) Outcome {
	if err == nil {
		conditions := res.Conditions
		return Outcome{
			Conditions:    &conditions,
			Alerts:        res.Alerts,
			LocationLabel: res.LocationLabel,
		}
	}

	out := Outcome{
		Alerts:      []domain.Alert{},
		ErrorBanner: domain.FetchFailedMessage,
		Failed:      true,
	}
	if fallbackEnabled {
		fallback := domain.FallbackConditions()
		out.Conditions = &fallback
	}
	return out
}
