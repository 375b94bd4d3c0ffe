// Package dispatch keeps the bounded dispatch log and simulates delivery of
// each entry after a fixed processing delay.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/trace-alert-service/internal/domain"
	"github.com/couchcryptid/trace-alert-service/internal/observability"
)

// Defaults for the log and the simulated processing delay.
const (
	DefaultCapacity = 20
	DefaultDelay    = 1500 * time.Millisecond

	deliveryTimeout = 10 * time.Second
)

// Options configures a Dispatcher. Sink and Sharer may be nil.
type Options struct {
	Capacity int
	Delay    time.Duration
	Sink     domain.DeliverySink
	Sharer   domain.Sharer
	Clock    clockwork.Clock
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// Dispatcher owns the dispatch log, most-recent-first.
type Dispatcher struct {
	mu       sync.Mutex
	entries  []domain.DispatchLogEntry
	timers   map[string]clockwork.Timer
	closed   bool
	inflight sync.WaitGroup

	capacity int
	delay    time.Duration
	sink     domain.DeliverySink
	sharer   domain.Sharer
	clock    clockwork.Clock
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// New creates a Dispatcher with an empty log.
func New(opts Options) *Dispatcher {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Dispatcher{
		timers:   make(map[string]clockwork.Timer),
		capacity: opts.Capacity,
		delay:    opts.Delay,
		sink:     opts.Sink,
		sharer:   opts.Sharer,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
}

// Dispatch prepends a Processing entry and schedules its transition to Sent.
// When the log is full the oldest entry is evicted and its pending transition
// cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, action, agentName string) domain.DispatchLogEntry {
	entry := domain.DispatchLogEntry{
		ID:        uuid.NewString(),
		AgentName: agentName,
		Action:    action,
		Timestamp: d.clock.Now().Format(domain.TimestampLayout),
		Status:    domain.StatusProcessing,
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.entries = append([]domain.DispatchLogEntry{entry}, d.entries...)
	for len(d.entries) > d.capacity {
		evicted := d.entries[len(d.entries)-1]
		d.entries = d.entries[:len(d.entries)-1]
		d.stopTimerLocked(evicted.ID)
	}

	if !d.closed {
		deliverCtx := context.WithoutCancel(ctx)
		id := entry.ID
		d.timers[id] = d.clock.AfterFunc(d.delay, func() { d.markSent(deliverCtx, id) })
	}

	d.logger.Debug("dispatch queued", "entry_id", entry.ID, "agent", agentName, "action", action)
	return entry
}

// Trigger dispatches an action on behalf of a selected agent.
func (d *Dispatcher) Trigger(ctx context.Context, agent domain.Agent, action string) domain.DispatchLogEntry {
	d.metrics.DispatchesTotal.WithLabelValues("manual").Inc()
	return d.Dispatch(ctx, action, string(agent))
}

// ShareText composes the share message for an alert. The alert's own location
// wins over fallbackLocation.
func ShareText(alert domain.Alert, fallbackLocation string) string {
	location := alert.Location
	if location == "" {
		location = fallbackLocation
	}
	return fmt.Sprintf("Weather Alert: %s in %s. Severity: %s. Stay safe! - via T.R.A.C.E.",
		alert.Type, location, alert.Severity)
}

// ShareAlert hands the alert's share text to the sharer and, on success,
// records a user action entry. Failures are returned and leave the log untouched.
func (d *Dispatcher) ShareAlert(ctx context.Context, alert domain.Alert, fallbackLocation string) (domain.DispatchLogEntry, error) {
	if d.sharer == nil {
		return domain.DispatchLogEntry{}, domain.ErrShareUnavailable
	}
	if err := d.sharer.Share(ctx, ShareText(alert, fallbackLocation)); err != nil {
		d.logger.Warn("share failed", "alert_id", alert.ID, "error", err)
		return domain.DispatchLogEntry{}, fmt.Errorf("share alert %s: %w", alert.ID, err)
	}
	d.metrics.DispatchesTotal.WithLabelValues("share").Inc()
	return d.Dispatch(ctx, domain.ShareActionPrefix+alert.Type, domain.UserActionActor), nil
}

// Entries returns a copy of the log, most-recent-first.
func (d *Dispatcher) Entries() []domain.DispatchLogEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.DispatchLogEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Close cancels pending transitions and waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	for id := range d.timers {
		d.stopTimerLocked(id)
	}
	d.mu.Unlock()

	d.inflight.Wait()
}

func (d *Dispatcher) stopTimerLocked(id string) {
	if t, ok := d.timers[id]; ok {
		t.Stop()
		delete(d.timers, id)
	}
}

func (d *Dispatcher) markSent(ctx context.Context, id string) {
	d.mu.Lock()
	if _, pending := d.timers[id]; !pending || d.closed {
		d.mu.Unlock()
		return
	}
	delete(d.timers, id)

	var sent domain.DispatchLogEntry
	found := false
	for i := range d.entries {
		if d.entries[i].ID == id {
			d.entries[i].Status = domain.StatusSent
			sent = d.entries[i]
			found = true
			break
		}
	}
	if found && d.sink != nil {
		d.inflight.Add(1)
	}
	d.mu.Unlock()

	if !found || d.sink == nil {
		return
	}
	defer d.inflight.Done()

	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()
	if err := d.sink.Deliver(ctx, sent); err != nil {
		d.metrics.DeliveryFailures.Inc()
		d.logger.Warn("delivery failed", "entry_id", id, "agent", sent.AgentName, "error", err)
	}
}
