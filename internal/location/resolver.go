// Package location resolves the user's coordinate from the device or a typed
// place name and persists it across restarts.
package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/trace-alert-service/internal/domain"
	"github.com/couchcryptid/trace-alert-service/internal/observability"
)

// DefaultLocateTimeout bounds a device location request.
const DefaultLocateTimeout = 10 * time.Second

// Resolver turns device readings and place names into a persisted Coordinate.
type Resolver struct {
	locator  domain.DeviceLocator
	geocoder domain.Geocoder
	store    domain.LocationStore
	clock    clockwork.Clock
	timeout  time.Duration
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewResolver creates a Resolver. A nil locator means the device capability is absent.
func NewResolver(
	locator domain.DeviceLocator,
	geocoder domain.Geocoder,
	store domain.LocationStore,
	clock clockwork.Clock,
	timeout time.Duration,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Resolver {
	if timeout <= 0 {
		timeout = DefaultLocateTimeout
	}
	return &Resolver{
		locator:  locator,
		geocoder: geocoder,
		store:    store,
		clock:    clock,
		timeout:  timeout,
		metrics:  metrics,
		logger:   logger,
	}
}

type locateResult struct {
	coord domain.Coordinate
	err   error
}

// ResolveByDevice asks the device locator for the current position. A reading
// that arrives after the timeout is dropped and never persisted.
func (r *Resolver) ResolveByDevice(ctx context.Context) (domain.Coordinate, error) {
	coord, err := r.locate(ctx)
	if errors.Is(err, context.Canceled) {
		r.metrics.LocationResolutions.WithLabelValues("device", "canceled").Inc()
		r.logger.Debug("device location abandoned by caller")
		return domain.Coordinate{}, err
	}
	if err != nil {
		r.metrics.LocationResolutions.WithLabelValues("device", "error").Inc()
		r.logger.Warn("device location failed", "error", err)
		return domain.Coordinate{}, err
	}
	r.metrics.LocationResolutions.WithLabelValues("device", "success").Inc()
	r.persist(ctx, coord)
	return coord, nil
}

func (r *Resolver) locate(ctx context.Context) (domain.Coordinate, error) {
	if r.locator == nil {
		return domain.Coordinate{}, domain.ErrCapabilityUnavailable
	}

	locateCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan locateResult, 1)
	go func() {
		c, err := r.locator.Locate(locateCtx)
		results <- locateResult{coord: c, err: err}
	}()

	select {
	case res := <-results:
		return classify(res)
	case <-r.clock.After(r.timeout):
		return domain.Coordinate{}, fmt.Errorf("locate after %s: %w", r.timeout, domain.ErrTimeout)
	case <-ctx.Done():
		return domain.Coordinate{}, fmt.Errorf("locate: %w", ctx.Err())
	}
}

// classify folds locator failures into the device error taxonomy. Anything
// other than a missing capability is reported as denied access.
func classify(res locateResult) (domain.Coordinate, error) {
	switch {
	case res.err == nil && !res.coord.Valid():
		return domain.Coordinate{}, fmt.Errorf("locate: %w: %w", domain.ErrPermissionDenied, domain.ErrInvalidLocation)
	case res.err == nil:
		return res.coord, nil
	case errors.Is(res.err, domain.ErrCapabilityUnavailable), errors.Is(res.err, domain.ErrPermissionDenied):
		return domain.Coordinate{}, res.err
	default:
		return domain.Coordinate{}, fmt.Errorf("locate: %w: %w", domain.ErrPermissionDenied, res.err)
	}
}

// ResolveByName geocodes a free-text place name and persists the first match.
func (r *Resolver) ResolveByName(ctx context.Context, query string) (domain.Coordinate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.Coordinate{}, domain.ErrEmptyQuery
	}

	coord, err := r.geocoder.Search(ctx, query)
	if err == nil && !coord.Valid() {
		err = fmt.Errorf("geocode %q: %w: %w", query, domain.ErrServiceError, domain.ErrInvalidLocation)
	}
	if err != nil {
		r.metrics.LocationResolutions.WithLabelValues("name", "error").Inc()
		r.logger.Warn("location search failed", "query", query, "error", err)
		return domain.Coordinate{}, err
	}

	r.metrics.LocationResolutions.WithLabelValues("name", "success").Inc()
	r.persist(ctx, coord)
	return coord, nil
}

// Restore loads a previously persisted coordinate. A corrupt entry is logged
// and treated as absent.
func (r *Resolver) Restore(ctx context.Context) (domain.Coordinate, bool, error) {
	coord, ok, err := r.store.Load(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidLocation) {
			r.logger.Warn("discarding stored location", "error", err)
			return domain.Coordinate{}, false, nil
		}
		return domain.Coordinate{}, false, fmt.Errorf("restore location: %w", err)
	}
	return coord, ok, nil
}

// Clear removes the persisted coordinate.
func (r *Resolver) Clear(ctx context.Context) error {
	if err := r.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear location: %w", err)
	}
	return nil
}

// persist saves the coordinate. A failed save does not fail the resolution.
func (r *Resolver) persist(ctx context.Context, coord domain.Coordinate) {
	if err := r.store.Save(ctx, coord); err != nil {
		r.logger.Warn("failed to persist location", "error", err)
	}
}
