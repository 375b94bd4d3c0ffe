package intake

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/trace-alert-service/internal/domain"
	"github.com/couchcryptid/trace-alert-service/internal/observability"
)

type dispatchCall struct {
	action string
	agent  string
}

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
}

func (d *recordingDispatcher) Dispatch(_ context.Context, action, agent string) domain.DispatchLogEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{action: action, agent: agent})
	return domain.DispatchLogEntry{
		ID:        fmt.Sprintf("e-%d", len(d.calls)),
		AgentName: agent,
		Action:    action,
		Status:    domain.StatusProcessing,
	}
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func newTracker() (*Tracker, *recordingDispatcher, *observability.Metrics) {
	d := &recordingDispatcher{}
	m := observability.NewMetricsForTesting()
	return NewTracker(d, m, slog.New(slog.NewTextHandler(io.Discard, nil))), d, m
}

func TestRecordAlert(t *testing.T) {
	tr, _, _ := newTracker()

	assert.True(t, tr.RecordAlert("alert-1"), "first sighting should be new")
	assert.False(t, tr.RecordAlert("alert-1"), "second sighting should be a duplicate")
	assert.True(t, tr.RecordAlert("alert-2"))
	assert.True(t, tr.Seen("alert-1"))
	assert.False(t, tr.Seen("alert-3"))
}

func TestRecordAlert_Concurrent(t *testing.T) {
	tr, _, _ := newTracker()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.RecordAlert("alert-1") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestIntake_DedupCorrectness(t *testing.T) {
	tr, d, _ := newTracker()
	prefs, err := domain.NewPreferences(map[string]bool{
		domain.CategoryTornadoWarning:    true,
		domain.CategoryFlashFloodWarning: false,
	})
	require.NoError(t, err)

	alerts := []domain.Alert{
		{ID: "A1", Type: "Tornado Warning"},
		{ID: "A2", Type: "Flash Flood Warning"},
	}
	entries := tr.Intake(context.Background(), alerts, prefs)

	require.Len(t, entries, 1)
	assert.Equal(t, "TORNADO-M", entries[0].AgentName)
	assert.Equal(t, "Auto-SMS: Tornado Warning", entries[0].Action)
	assert.Equal(t, []dispatchCall{{action: "Auto-SMS: Tornado Warning", agent: "TORNADO-M"}}, d.calls)
}

func TestIntake_Idempotent(t *testing.T) {
	tr, d, m := newTracker()
	alerts := []domain.Alert{
		{ID: "A1", Type: "Tornado Warning"},
		{ID: "A3", Type: "Hurricane Warning"},
	}

	first := tr.Intake(context.Background(), alerts, domain.DefaultPreferences())
	second := tr.Intake(context.Background(), alerts, domain.DefaultPreferences())

	assert.Len(t, first, 2)
	assert.Empty(t, second)
	assert.Equal(t, 2, d.count())
	assert.InDelta(t, 2, testutil.ToFloat64(m.AlertsSeen), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.DispatchesTotal.WithLabelValues("auto")), 0)
}

func TestIntake_AtMostOnceAcrossCycles(t *testing.T) {
	tr, d, _ := newTracker()
	cycles := [][]domain.Alert{
		{{ID: "A1", Type: "Tornado Warning"}},
		{},
		{{ID: "A1", Type: "Tornado Warning"}, {ID: "B1", Type: "Severe Thunderstorm Warning"}},
		{{ID: "B1", Type: "Severe Thunderstorm Warning"}, {ID: "A1", Type: "Tornado Warning"}},
	}
	for _, alerts := range cycles {
		tr.Intake(context.Background(), alerts, domain.DefaultPreferences())
	}

	assert.Equal(t, []dispatchCall{
		{action: "Auto-SMS: Tornado Warning", agent: "TORNADO-M"},
		{action: "Auto-SMS: Severe Thunderstorm Warning", agent: "HAIL-M"},
	}, d.calls)
}

func TestIntake_DisabledAlertNeverFiresLater(t *testing.T) {
	tr, d, _ := newTracker()
	prefs := domain.DefaultPreferences()
	require.NoError(t, prefs.Set(domain.CategoryFlashFloodWarning, false))

	alerts := []domain.Alert{{ID: "F1", Type: "Flash Flood Warning"}}
	tr.Intake(context.Background(), alerts, prefs)
	require.NoError(t, prefs.Set(domain.CategoryFlashFloodWarning, true))
	tr.Intake(context.Background(), alerts, prefs)

	assert.Zero(t, d.count())
	assert.True(t, tr.Seen("F1"))
}

func TestIntake_UnknownCategoryNotDispatched(t *testing.T) {
	tr, d, _ := newTracker()

	tr.Intake(context.Background(), []domain.Alert{{ID: "H1", Type: "Heat Advisory"}}, domain.DefaultPreferences())
	assert.Zero(t, d.count())
}

func TestIntake_FloodAgent(t *testing.T) {
	tr, _, _ := newTracker()

	entries := tr.Intake(context.Background(), []domain.Alert{{ID: "F1", Type: "Flash Flood Warning"}}, domain.DefaultPreferences())
	require.Len(t, entries, 1)
	assert.Equal(t, "FLOOD-M", entries[0].AgentName)
}

func TestIntake_SkipsMissingID(t *testing.T) {
	tr, d, _ := newTracker()

	tr.Intake(context.Background(), []domain.Alert{{Type: "Tornado Warning"}}, domain.DefaultPreferences())
	assert.Zero(t, d.count())
}
