// Package dashboard owns the application state: the resolved location, the
// latest conditions and alerts, preferences, the selected agent, and the
// polling task that keeps them fresh.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/trace-alert-service/internal/domain"
	"github.com/couchcryptid/trace-alert-service/internal/fetcher"
	"github.com/couchcryptid/trace-alert-service/internal/observability"
)

// DefaultPollInterval is the refresh period while a location is set.
const DefaultPollInterval = 5 * time.Minute

// Status panel values.
const (
	StatusOnline   = "online"
	StatusDegraded = "degraded"
	StatusDisabled = "disabled"
	StatusUnknown  = "unknown"
)

// LocationResolver turns device readings and place names into a persisted coordinate.
type LocationResolver interface {
	ResolveByDevice(ctx context.Context) (domain.Coordinate, error)
	ResolveByName(ctx context.Context, query string) (domain.Coordinate, error)
	Restore(ctx context.Context) (domain.Coordinate, bool, error)
	Clear(ctx context.Context) error
}

// Fetcher retrieves conditions and alerts for a coordinate.
type Fetcher interface {
	FetchAll(ctx context.Context, coord domain.Coordinate) (fetcher.Result, error)
}

// AlertIntake feeds freshly fetched alerts to the auto-dispatch rules.
type AlertIntake interface {
	Intake(ctx context.Context, alerts []domain.Alert, prefs domain.Preferences) []domain.DispatchLogEntry
}

// Dispatcher owns the dispatch log.
type Dispatcher interface {
	Trigger(ctx context.Context, agent domain.Agent, action string) domain.DispatchLogEntry
	ShareAlert(ctx context.Context, alert domain.Alert, fallbackLocation string) (domain.DispatchLogEntry, error)
	Entries() []domain.DispatchLogEntry
	Close()
}

// StoragePinger reports whether a remote location store is reachable.
type StoragePinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Controller. Storage is nil for local stores.
type Options struct {
	PollInterval    time.Duration
	FallbackEnabled bool
	DeliveryEnabled bool
	Storage         StoragePinger
	Clock           clockwork.Clock
	Metrics         *observability.Metrics
	Logger          *slog.Logger
}

// State is a point-in-time copy of the dashboard.
type State struct {
	Coordinate    *domain.Coordinate         `json:"coordinate"`
	LocationLabel string                     `json:"location_label"`
	Conditions    *domain.ConditionsSnapshot `json:"conditions"`
	Alerts        []domain.Alert             `json:"alerts"`
	ErrorBanner   string                     `json:"error_banner,omitempty"`
	Loading       bool                       `json:"loading"`
	Preferences   map[string]bool            `json:"preferences"`
	SelectedAgent domain.Agent               `json:"selected_agent"`
	Status        map[string]string          `json:"status"`
	DispatchLog   []domain.DispatchLogEntry  `json:"dispatch_log"`
}

// Controller is the single owner of dashboard state.
type Controller struct {
	resolver   LocationResolver
	fetcher    Fetcher
	intake     AlertIntake
	dispatcher Dispatcher

	interval        time.Duration
	fallbackEnabled bool
	deliveryStatus  string
	storage         StoragePinger
	clock           clockwork.Clock
	metrics         *observability.Metrics
	logger          *slog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu            sync.Mutex
	coord         *domain.Coordinate
	label         string
	conditions    *domain.ConditionsSnapshot
	alerts        []domain.Alert
	banner        string
	prefs         domain.Preferences
	agent         domain.Agent
	weatherStatus string
	fetchedOnce   bool

	// generation changes whenever the coordinate is set or cleared; seq orders
	// fetches within a generation.
	generation uint64
	nextSeq    uint64
	appliedSeq uint64
	inflight   int
	pollCtx    context.Context
	pollCancel context.CancelFunc
	polls      sync.WaitGroup
}

// New creates a Controller with default preferences and the HAIL-M agent selected.
func New(resolver LocationResolver, f Fetcher, intake AlertIntake, dispatcher Dispatcher, opts Options) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	delivery := StatusDisabled
	if opts.DeliveryEnabled {
		delivery = StatusOnline
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		resolver:        resolver,
		fetcher:         f,
		intake:          intake,
		dispatcher:      dispatcher,
		interval:        opts.PollInterval,
		fallbackEnabled: opts.FallbackEnabled,
		deliveryStatus:  delivery,
		storage:         opts.Storage,
		clock:           opts.Clock,
		metrics:         opts.Metrics,
		logger:          opts.Logger,
		baseCtx:         ctx,
		baseCancel:      cancel,
		prefs:           domain.DefaultPreferences(),
		agent:           domain.AgentHail,
		weatherStatus:   StatusUnknown,
	}
}

// Start restores a persisted coordinate and, if one exists, begins polling.
func (c *Controller) Start(ctx context.Context) error {
	coord, ok, err := c.resolver.Restore(ctx)
	if err != nil {
		return fmt.Errorf("start dashboard: %w", err)
	}
	if !ok {
		c.logger.Info("no saved location, waiting for user")
		return nil
	}
	c.logger.Info("restored saved location", "lat", coord.Lat, "lon", coord.Lon)
	c.setCoordinate(coord)
	return nil
}

// LocateDevice resolves the device position and makes it the current location.
func (c *Controller) LocateDevice(ctx context.Context) (domain.Coordinate, error) {
	coord, err := c.resolver.ResolveByDevice(ctx)
	if err != nil {
		return domain.Coordinate{}, err
	}
	c.setCoordinate(coord)
	return coord, nil
}

// LocateByName geocodes a place name and makes it the current location.
func (c *Controller) LocateByName(ctx context.Context, query string) (domain.Coordinate, error) {
	coord, err := c.resolver.ResolveByName(ctx, query)
	if err != nil {
		return domain.Coordinate{}, err
	}
	c.setCoordinate(coord)
	return coord, nil
}

// setCoordinate replaces the current location and restarts polling for it.
func (c *Controller) setCoordinate(coord domain.Coordinate) {
	c.mu.Lock()
	if c.baseCtx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.stopPollingLocked()
	c.coord = &coord
	gen := c.generation

	ctx, cancel := context.WithCancel(c.baseCtx)
	c.pollCtx, c.pollCancel = ctx, cancel
	c.polls.Add(1)
	c.metrics.PollRunning.Set(1)
	c.mu.Unlock()

	go c.poll(ctx, gen, coord)
}

// stopPollingLocked cancels the poll task and invalidates in-flight fetches.
func (c *Controller) stopPollingLocked() {
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
		c.pollCtx = nil
	}
	c.generation++
	c.inflight = 0
	c.metrics.PollRunning.Set(0)
}

// poll fetches immediately and then on every tick until ctx is cancelled.
// Fetch failures never stop the loop.
func (c *Controller) poll(ctx context.Context, gen uint64, coord domain.Coordinate) {
	defer c.polls.Done()

	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("polling started", "lat", coord.Lat, "lon", coord.Lon, "interval", c.interval)
	c.refresh(ctx, gen, coord)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("polling stopped", "reason", ctx.Err())
			return
		case <-ticker.Chan():
			c.refresh(ctx, gen, coord)
		}
	}
}

// Refresh fetches immediately for the current location and waits for the result.
func (c *Controller) Refresh(_ context.Context) error {
	c.mu.Lock()
	if c.coord == nil || c.pollCtx == nil {
		c.mu.Unlock()
		return domain.ErrNoLocation
	}
	ctx, gen, coord := c.pollCtx, c.generation, *c.coord
	c.mu.Unlock()

	c.refresh(ctx, gen, coord)
	return nil
}

// refresh runs one fetch and applies it unless a newer fetch or a location
// change has superseded it.
func (c *Controller) refresh(ctx context.Context, gen uint64, coord domain.Coordinate) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.nextSeq++
	seq := c.nextSeq
	c.inflight++
	c.mu.Unlock()

	start := c.clock.Now()
	res, err := c.fetcher.FetchAll(ctx, coord)
	if err != nil && ctx.Err() != nil {
		c.finishStale(gen)
		return
	}
	out := fetcher.Resolve(res, err, c.fallbackEnabled)

	c.mu.Lock()
	if gen != c.generation || seq < c.appliedSeq {
		c.mu.Unlock()
		c.finishStale(gen)
		c.logger.Debug("discarding stale fetch", "seq", seq)
		return
	}
	c.inflight--
	c.appliedSeq = seq
	c.conditions = out.Conditions
	c.alerts = out.Alerts
	c.banner = out.ErrorBanner
	if out.LocationLabel != "" {
		c.label = out.LocationLabel
	}
	c.fetchedOnce = true
	c.weatherStatus = StatusOnline
	if out.Failed {
		c.weatherStatus = StatusDegraded
	}
	prefs := c.prefs.Clone()
	alerts := append([]domain.Alert(nil), out.Alerts...)
	c.mu.Unlock()

	c.metrics.ActiveAlerts.Set(float64(len(alerts)))
	if out.Failed {
		c.metrics.PollsTotal.WithLabelValues("error").Inc()
		c.logger.Warn("fetch failed", "error", err, "fallback", c.fallbackEnabled)
		return
	}
	c.metrics.PollsTotal.WithLabelValues("success").Inc()
	c.logger.Debug("fetch applied", "alerts", len(alerts), "duration", c.clock.Since(start))

	if entries := c.intake.Intake(ctx, alerts, prefs); len(entries) > 0 {
		c.logger.Info("auto dispatches created", "count", len(entries))
	}
}

func (c *Controller) finishStale(gen uint64) {
	c.metrics.PollsTotal.WithLabelValues("stale").Inc()
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.generation && c.inflight > 0 {
		c.inflight--
	}
}

// SignOut forgets the location and stops polling. The seen-alert set and the
// dispatch log survive.
func (c *Controller) SignOut(ctx context.Context) error {
	c.mu.Lock()
	c.stopPollingLocked()
	c.coord = nil
	c.label = ""
	c.conditions = nil
	c.alerts = nil
	c.banner = ""
	c.fetchedOnce = false
	c.weatherStatus = StatusUnknown
	c.mu.Unlock()

	c.metrics.ActiveAlerts.Set(0)
	c.logger.Info("signed out")
	return c.resolver.Clear(ctx)
}

// SetPreference enables or disables auto-notification for a category.
func (c *Controller) SetPreference(category string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prefs.Set(category, enabled)
}

// TogglePreference flips a category and returns its new value.
func (c *Controller) TogglePreference(category string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := !c.prefs.Enabled(category)
	if err := c.prefs.Set(category, next); err != nil {
		return false, err
	}
	return next, nil
}

// SelectAgent changes the agent used for manual dispatches.
func (c *Controller) SelectAgent(name string) error {
	agent, err := domain.ParseAgent(name)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.agent = agent
	c.mu.Unlock()
	return nil
}

// TriggerSelected dispatches a manual action through the selected agent.
func (c *Controller) TriggerSelected(ctx context.Context, action string) (domain.DispatchLogEntry, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return domain.DispatchLogEntry{}, domain.ErrEmptyAction
	}
	c.mu.Lock()
	agent := c.agent
	c.mu.Unlock()
	return c.dispatcher.Trigger(ctx, agent, action), nil
}

// Share shares one of the currently active alerts.
func (c *Controller) Share(ctx context.Context, alertID string) (domain.DispatchLogEntry, error) {
	c.mu.Lock()
	var (
		alert domain.Alert
		found bool
	)
	for _, a := range c.alerts {
		if a.ID == alertID {
			alert, found = a, true
			break
		}
	}
	label := c.label
	c.mu.Unlock()

	if !found {
		return domain.DispatchLogEntry{}, fmt.Errorf("share %q: %w", alertID, domain.ErrAlertNotFound)
	}
	return c.dispatcher.ShareAlert(ctx, alert, label)
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	s := State{
		LocationLabel: c.label,
		Alerts:        append([]domain.Alert{}, c.alerts...),
		ErrorBanner:   c.banner,
		Loading:       c.inflight > 0,
		Preferences:   c.prefs.Map(),
		SelectedAgent: c.agent,
		Status: map[string]string{
			"weather":  c.weatherStatus,
			"alerts":   c.weatherStatus,
			"delivery": c.deliveryStatus,
			"storage":  StatusOnline,
		},
	}
	if c.coord != nil {
		coord := *c.coord
		s.Coordinate = &coord
	}
	if c.conditions != nil {
		cond := *c.conditions
		s.Conditions = &cond
	}
	c.mu.Unlock()

	s.DispatchLog = c.dispatcher.Entries()
	return s
}

// CheckReadiness returns nil once a location is set, a fetch has been applied,
// and the location store answers.
func (c *Controller) CheckReadiness(ctx context.Context) error {
	c.mu.Lock()
	located, fetched := c.coord != nil, c.fetchedOnce
	c.mu.Unlock()

	switch {
	case !located:
		return errors.New("location not resolved")
	case !fetched:
		return errors.New("no weather data fetched yet")
	}
	if c.storage != nil {
		if err := c.storage.Ping(ctx); err != nil {
			return fmt.Errorf("location store unreachable: %w", err)
		}
	}
	return nil
}

// Close stops polling and pending dispatch transitions and waits for the poll
// task to exit.
func (c *Controller) Close() {
	c.mu.Lock()
	c.stopPollingLocked()
	c.baseCancel()
	c.mu.Unlock()

	c.polls.Wait()
	c.dispatcher.Close()
}
