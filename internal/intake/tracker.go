// Package intake decides which newly observed alerts trigger an automatic
// dispatch. Each alert ID is evaluated at most once per process.
package intake

import (
	"context"
	"log/slog"
	"sync"

	"github.com/couchcryptid/trace-alert-service/internal/domain"
	"github.com/couchcryptid/trace-alert-service/internal/observability"
)

// Dispatcher creates dispatch log entries.
type Dispatcher interface {
	Dispatch(ctx context.Context, action, agentName string) domain.DispatchLogEntry
}

// Tracker holds the seen-alert set and feeds new, enabled alerts to the dispatcher.
type Tracker struct {
	mu         sync.Mutex
	seen       map[string]struct{}
	dispatcher Dispatcher
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewTracker creates a Tracker with an empty seen set.
func NewTracker(dispatcher Dispatcher, metrics *observability.Metrics, logger *slog.Logger) *Tracker {
	return &Tracker{
		seen:       make(map[string]struct{}),
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
	}
}

// RecordAlert atomically checks if an alert ID is new and marks it as seen if so.
// Returns true if the ID had not been seen before.
func (t *Tracker) RecordAlert(alertID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.seen[alertID]; ok {
		return false
	}
	t.seen[alertID] = struct{}{}
	return true
}

// Seen reports whether an alert ID has already been evaluated.
func (t *Tracker) Seen(alertID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.seen[alertID]
	return ok
}

// Intake evaluates each alert not seen before. Enabled categories get one
// automatic dispatch; every new ID is marked seen whether or not it dispatched,
// so enabling a category later never fires for alerts already observed.
func (t *Tracker) Intake(ctx context.Context, alerts []domain.Alert, prefs domain.Preferences) []domain.DispatchLogEntry {
	var dispatched []domain.DispatchLogEntry
	for _, alert := range alerts {
		if alert.ID == "" {
			t.logger.Warn("skipping alert without id", "type", alert.Type)
			continue
		}
		if !t.RecordAlert(alert.ID) {
			continue
		}
		t.metrics.AlertsSeen.Inc()

		if !prefs.Enabled(alert.Type) {
			t.logger.Debug("alert category disabled", "alert_id", alert.ID, "type", alert.Type)
			continue
		}

		agent := domain.AgentForCategory(alert.Type)
		entry := t.dispatcher.Dispatch(ctx, domain.AutoActionPrefix+alert.Type, string(agent))
		t.metrics.DispatchesTotal.WithLabelValues("auto").Inc()
		t.logger.Info("auto dispatch",
			"alert_id", alert.ID,
			"type", alert.Type,
			"severity", alert.Severity,
			"agent", agent,
			"entry_id", entry.ID,
		)
		dispatched = append(dispatched, entry)
	}
	return dispatched
}
