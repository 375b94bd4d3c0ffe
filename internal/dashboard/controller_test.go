package dashboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/trace-alert-service/internal/dispatch"
	"github.com/couchcryptid/trace-alert-service/internal/domain"
	"github.com/couchcryptid/trace-alert-service/internal/fetcher"
	"github.com/couchcryptid/trace-alert-service/internal/intake"
	"github.com/couchcryptid/trace-alert-service/internal/observability"
)

// --- test doubles ---

var (
	lafayette = domain.Coordinate{Lat: 30.2241, Lon: -92.0198}
	austin    = domain.Coordinate{Lat: 30.2672, Lon: -97.7431}
)

type stubResolver struct {
	mu      sync.Mutex
	saved   *domain.Coordinate
	places  map[string]domain.Coordinate
	device  domain.Coordinate
	devErr  error
	cleared int
}

func (r *stubResolver) ResolveByDevice(context.Context) (domain.Coordinate, error) {
	if r.devErr != nil {
		return domain.Coordinate{}, r.devErr
	}
	r.save(r.device)
	return r.device, nil
}

func (r *stubResolver) ResolveByName(_ context.Context, q string) (domain.Coordinate, error) {
	c, ok := r.places[q]
	if !ok {
		return domain.Coordinate{}, domain.ErrNoMatch
	}
	r.save(c)
	return c, nil
}

func (r *stubResolver) save(c domain.Coordinate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = &c
}

func (r *stubResolver) Restore(context.Context) (domain.Coordinate, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saved == nil {
		return domain.Coordinate{}, false, nil
	}
	return *r.saved, true, nil
}

func (r *stubResolver) Clear(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = nil
	r.cleared++
	return nil
}

type stubFetcher struct {
	mu    sync.Mutex
	calls map[domain.Coordinate]int
	fn    func(ctx context.Context, c domain.Coordinate) (fetcher.Result, error)
}

func (f *stubFetcher) FetchAll(ctx context.Context, c domain.Coordinate) (fetcher.Result, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[domain.Coordinate]int)
	}
	f.calls[c]++
	fn := f.fn
	f.mu.Unlock()
	return fn(ctx, c)
}

func (f *stubFetcher) count(c domain.Coordinate) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[c]
}

func (f *stubFetcher) setFn(fn func(ctx context.Context, c domain.Coordinate) (fetcher.Result, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fn = fn
}

func result(label string, alerts ...domain.Alert) func(context.Context, domain.Coordinate) (fetcher.Result, error) {
	return func(context.Context, domain.Coordinate) (fetcher.Result, error) {
		temp := 77
		return fetcher.Result{
			Conditions:    domain.ConditionsSnapshot{TemperatureF: &temp, FeelsLikeF: &temp, WindDirection: "S", HumidityPct: 80, Description: "Thunderstorms"},
			Alerts:        alerts,
			LocationLabel: label,
		}, nil
	}
}

var tornado = domain.Alert{ID: "A1", Type: "Tornado Warning", Severity: domain.SeverityExtreme}

type harness struct {
	ctrl     *Controller
	resolver *stubResolver
	fetcher  *stubFetcher
	clock    *clockwork.FakeClock
	metrics  *observability.Metrics
}

func newHarness(t *testing.T, fallback bool) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()

	d := dispatch.New(dispatch.Options{
		Sharer:  &recordingSharer{},
		Clock:   clockwork.NewFakeClock(),
		Metrics: metrics,
		Logger:  logger,
	})
	tracker := intake.NewTracker(d, metrics, logger)

	h := &harness{
		resolver: &stubResolver{places: map[string]domain.Coordinate{"Lafayette": lafayette, "Austin": austin}, device: lafayette},
		fetcher:  &stubFetcher{fn: result("Lafayette, LA", tornado)},
		clock:    clockwork.NewFakeClock(),
		metrics:  metrics,
	}
	h.ctrl = New(h.resolver, h.fetcher, tracker, d, Options{
		PollInterval:    DefaultPollInterval,
		FallbackEnabled: fallback,
		Clock:           h.clock,
		Metrics:         metrics,
		Logger:          logger,
	})
	t.Cleanup(h.ctrl.Close)
	return h
}

type recordingSharer struct {
	mu    sync.Mutex
	texts []string
}

func (s *recordingSharer) Share(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return nil
}

func (h *harness) waitForFetches(t *testing.T, c domain.Coordinate, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.fetcher.count(c) >= n && !h.ctrl.Snapshot().Loading
	}, 2*time.Second, 5*time.Millisecond)
}

func (h *harness) tick(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	h.clock.Advance(DefaultPollInterval)
}

func autoEntries(s State) []domain.DispatchLogEntry {
	var out []domain.DispatchLogEntry
	for _, e := range s.DispatchLog {
		if strings.HasPrefix(e.Action, domain.AutoActionPrefix) {
			out = append(out, e)
		}
	}
	return out
}

// --- tests ---

func TestStart_NoSavedLocation(t *testing.T) {
	h := newHarness(t, true)

	require.NoError(t, h.ctrl.Start(context.Background()))

	s := h.ctrl.Snapshot()
	assert.Nil(t, s.Coordinate)
	assert.Equal(t, domain.AgentHail, s.SelectedAgent)
	assert.Equal(t, domain.DefaultPreferences().Map(), s.Preferences)
	assert.Equal(t, StatusDisabled, s.Status["delivery"])
	require.Error(t, h.ctrl.CheckReadiness(context.Background()))
	require.ErrorIs(t, h.ctrl.Refresh(context.Background()), domain.ErrNoLocation)
}

func TestStart_RestoresAndPolls(t *testing.T) {
	h := newHarness(t, true)
	h.resolver.saved = &austin

	require.NoError(t, h.ctrl.Start(context.Background()))
	h.waitForFetches(t, austin, 1)

	s := h.ctrl.Snapshot()
	require.NotNil(t, s.Coordinate)
	assert.Equal(t, austin, *s.Coordinate)
	require.NoError(t, h.ctrl.CheckReadiness(context.Background()))
}

func TestLocateByName_FetchesAndDispatches(t *testing.T) {
	h := newHarness(t, true)

	coord, err := h.ctrl.LocateByName(context.Background(), "Lafayette")
	require.NoError(t, err)
	assert.Equal(t, lafayette, coord)
	h.waitForFetches(t, lafayette, 1)

	require.Eventually(t, func() bool { return len(autoEntries(h.ctrl.Snapshot())) == 1 }, time.Second, 5*time.Millisecond)
	s := h.ctrl.Snapshot()
	assert.Equal(t, "Lafayette, LA", s.LocationLabel)
	require.NotNil(t, s.Conditions)
	assert.Equal(t, 77, *s.Conditions.TemperatureF)
	assert.Equal(t, []domain.Alert{tornado}, s.Alerts)
	assert.Empty(t, s.ErrorBanner)
	assert.Equal(t, StatusOnline, s.Status["weather"])

	auto := autoEntries(s)
	assert.Equal(t, "Auto-SMS: Tornado Warning", auto[0].Action)
	assert.Equal(t, "TORNADO-M", auto[0].AgentName)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.PollRunning), 0)
}

func TestLocateByName_Error(t *testing.T) {
	h := newHarness(t, true)

	_, err := h.ctrl.LocateByName(context.Background(), "Atlantis")
	require.ErrorIs(t, err, domain.ErrNoMatch)
	assert.Nil(t, h.ctrl.Snapshot().Coordinate)
}

func TestLocateDevice(t *testing.T) {
	h := newHarness(t, true)

	_, err := h.ctrl.LocateDevice(context.Background())
	require.NoError(t, err)
	h.waitForFetches(t, lafayette, 1)

	h.resolver.devErr = domain.ErrTimeout
	_, err = h.ctrl.LocateDevice(context.Background())
	require.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, lafayette, *h.ctrl.Snapshot().Coordinate, "failed resolve keeps the current location")
}

func TestPolling_DedupAcrossCycles(t *testing.T) {
	h := newHarness(t, true)

	_, err := h.ctrl.LocateByName(context.Background(), "Lafayette")
	require.NoError(t, err)
	h.waitForFetches(t, lafayette, 1)

	for i := 2; i <= 4; i++ {
		h.tick(t)
		h.waitForFetches(t, lafayette, i)
	}

	assert.Len(t, autoEntries(h.ctrl.Snapshot()), 1, "alert A1 dispatches once across four cycles")
	assert.InDelta(t, 4, testutil.ToFloat64(h.metrics.PollsTotal.WithLabelValues("success")), 0)
}

func TestPolling_FailureFallsBackAndContinues(t *testing.T) {
	h := newHarness(t, true)

	_, err := h.ctrl.LocateByName(context.Background(), "Lafayette")
	require.NoError(t, err)
	h.waitForFetches(t, lafayette, 1)

	h.fetcher.setFn(func(context.Context, domain.Coordinate) (fetcher.Result, error) {
		return fetcher.Result{}, errors.New("fetch alerts: network failure")
	})
	h.tick(t)
	h.waitForFetches(t, lafayette, 2)

	s := h.ctrl.Snapshot()
	assert.Equal(t, domain.FetchFailedMessage, s.ErrorBanner)
	require.NotNil(t, s.Conditions)
	assert.Equal(t, "Partly Cloudy", s.Conditions.Description)
	assert.Empty(t, s.Alerts)
	assert.Equal(t, "Lafayette, LA", s.LocationLabel, "label survives a failed fetch")
	assert.Equal(t, StatusDegraded, s.Status["weather"])

	h.fetcher.setFn(result("Lafayette, LA"))
	h.tick(t)
	h.waitForFetches(t, lafayette, 3)

	s = h.ctrl.Snapshot()
	assert.Empty(t, s.ErrorBanner)
	assert.Equal(t, "Thunderstorms", s.Conditions.Description)
}

func TestPolling_FailureWithoutFallback(t *testing.T) {
	h := newHarness(t, false)
	h.fetcher.setFn(func(context.Context, domain.Coordinate) (fetcher.Result, error) {
		return fetcher.Result{}, domain.ErrServiceError
	})

	_, err := h.ctrl.LocateByName(context.Background(), "Lafayette")
	require.NoError(t, err)
	h.waitForFetches(t, lafayette, 1)

	s := h.ctrl.Snapshot()
	assert.Nil(t, s.Conditions)
	assert.Equal(t, domain.FetchFailedMessage, s.ErrorBanner)
}

func TestStaleFetchDiscarded(t *testing.T) {
	h := newHarness(t, true)
	release := make(chan struct{})
	h.fetcher.setFn(func(_ context.Context, c domain.Coordinate) (fetcher.Result, error) {
		if c == lafayette {
			<-release
			return result("Lafayette, LA", tornado)(context.Background(), c)
		}
		return result("Austin, TX")(context.Background(), c)
	})

	_, err := h.ctrl.LocateByName(context.Background(), "Lafayette")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.fetcher.count(lafayette) == 1 }, time.Second, 5*time.Millisecond)

	_, err = h.ctrl.LocateByName(context.Background(), "Austin")
	require.NoError(t, err)
	h.waitForFetches(t, austin, 1)

	close(release)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.PollsTotal.WithLabelValues("stale")) == 1
	}, time.Second, 5*time.Millisecond)

	s := h.ctrl.Snapshot()
	assert.Equal(t, austin, *s.Coordinate)
	assert.Equal(t, "Austin, TX", s.LocationLabel)
	assert.Empty(t, s.Alerts)
	assert.Empty(t, autoEntries(s), "the superseded fetch must not dispatch")
}

func TestOlderFetchDiscardedAfterNewerApplied(t *testing.T) {
	h := newHarness(t, true)
	release := make(chan struct{})
	var calls atomic.Int32
	h.fetcher.setFn(func(_ context.Context, c domain.Coordinate) (fetcher.Result, error) {
		if calls.Add(1) == 1 {
			<-release
			return result("Lafayette, LA", tornado)(context.Background(), c)
		}
		return result("Lafayette Parish, LA")(context.Background(), c)
	})

	_, err := h.ctrl.LocateByName(context.Background(), "Lafayette")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.fetcher.count(lafayette) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.ctrl.Refresh(context.Background()))
	assert.Equal(t, "Lafayette Parish, LA", h.ctrl.Snapshot().LocationLabel)

	close(release)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.PollsTotal.WithLabelValues("stale")) == 1
	}, time.Second, 5*time.Millisecond)

	s := h.ctrl.Snapshot()
	assert.Equal(t, "Lafayette Parish, LA", s.LocationLabel)
	assert.Empty(t, s.Alerts)
	assert.Empty(t, autoEntries(s), "the older fetch must not dispatch")
	assert.False(t, s.Loading)
}

func TestRefresh(t *testing.T) {
	h := newHarness(t, true)

	_, err := h.ctrl.LocateByName(context.Background(), "Lafayette")
	require.NoError(t, err)
	h.waitForFetches(t, lafayette, 1)

	require.NoError(t, h.ctrl.Refresh(context.Background()))
	assert.Equal(t, 2, h.fetcher.count(lafayette))
}

func TestSignOut(t *testing.T) {
	h := newHarness(t, true)

	_, err := h.ctrl.LocateByName(context.Background(), "Lafayette")
	require.NoError(t, err)
	h.waitForFetches(t, lafayette, 1)
	require.Eventually(t, func() bool { return len(autoEntries(h.ctrl.Snapshot())) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.ctrl.SignOut(context.Background()))

	s := h.ctrl.Snapshot()
	assert.Nil(t, s.Coordinate)
	assert.Nil(t, s.Conditions)
	assert.Empty(t, s.Alerts)
	assert.Empty(t, s.LocationLabel)
	assert.Len(t, s.DispatchLog, 1, "dispatch log survives sign-out")
	assert.Equal(t, 1, h.resolver.cleared)
	require.Error(t, h.ctrl.CheckReadiness(context.Background()))
	assert.InDelta(t, 0, testutil.ToFloat64(h.metrics.PollRunning), 0)

	// The seen set also survives: the same alert at a new location does not fire again.
	_, err = h.ctrl.LocateByName(context.Background(), "Lafayette")
	require.NoError(t, err)
	h.waitForFetches(t, lafayette, 2)
	assert.Len(t, autoEntries(h.ctrl.Snapshot()), 1)
}

func TestPreferences(t *testing.T) {
	h := newHarness(t, true)

	require.NoError(t, h.ctrl.SetPreference("Tornado Warning", false))
	on, err := h.ctrl.TogglePreference("Hurricane Warning")
	require.NoError(t, err)
	assert.False(t, on)

	require.ErrorIs(t, h.ctrl.SetPreference("Heat Advisory", true), domain.ErrUnknownCategory)
	_, err = h.ctrl.TogglePreference("Heat Advisory")
	require.ErrorIs(t, err, domain.ErrUnknownCategory)

	prefs := h.ctrl.Snapshot().Preferences
	assert.False(t, prefs["Tornado Warning"])
	assert.False(t, prefs["Hurricane Warning"])
	assert.True(t, prefs["Flash Flood Warning"])

	_, err = h.ctrl.LocateByName(context.Background(), "Lafayette")
	require.NoError(t, err)
	h.waitForFetches(t, lafayette, 1)
	assert.Empty(t, autoEntries(h.ctrl.Snapshot()), "disabled category does not dispatch")
}

func TestSelectAgentAndTrigger(t *testing.T) {
	h := newHarness(t, true)

	require.ErrorIs(t, h.ctrl.SelectAgent("WIND-M"), domain.ErrUnknownAgent)
	require.NoError(t, h.ctrl.SelectAgent("FLOOD-M"))

	e, err := h.ctrl.TriggerSelected(context.Background(), "Evacuation notice")
	require.NoError(t, err)
	assert.Equal(t, "FLOOD-M", e.AgentName)
	assert.Equal(t, domain.AgentFlood, h.ctrl.Snapshot().SelectedAgent)

	_, err = h.ctrl.TriggerSelected(context.Background(), "  ")
	require.ErrorIs(t, err, domain.ErrEmptyAction)
}

func TestShare(t *testing.T) {
	h := newHarness(t, true)

	_, err := h.ctrl.Share(context.Background(), "A1")
	require.ErrorIs(t, err, domain.ErrAlertNotFound)

	_, err = h.ctrl.LocateByName(context.Background(), "Lafayette")
	require.NoError(t, err)
	h.waitForFetches(t, lafayette, 1)

	e, err := h.ctrl.Share(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, "Shared Alert: Tornado Warning", e.Action)
	assert.Equal(t, domain.UserActionActor, e.AgentName)
}

func TestClose_StopsPolling(t *testing.T) {
	h := newHarness(t, true)

	_, err := h.ctrl.LocateByName(context.Background(), "Lafayette")
	require.NoError(t, err)
	h.waitForFetches(t, lafayette, 1)

	h.ctrl.Close()
	h.clock.Advance(DefaultPollInterval)
	assert.Never(t, func() bool { return h.fetcher.count(lafayette) > 1 }, 50*time.Millisecond, 5*time.Millisecond)

	_, err = h.ctrl.LocateByName(context.Background(), "Austin")
	require.NoError(t, err)
	assert.Zero(t, h.fetcher.count(austin), "closed controller does not start polling")
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestCheckReadiness_StorageUnreachable(t *testing.T) {
	h := newHarness(t, true)
	h.ctrl.storage = stubPinger{err: errors.New("connection refused")}

	_, err := h.ctrl.LocateByName(context.Background(), "Lafayette")
	require.NoError(t, err)
	h.waitForFetches(t, lafayette, 1)

	err = h.ctrl.CheckReadiness(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "location store unreachable")

	h.ctrl.storage = stubPinger{}
	require.NoError(t, h.ctrl.CheckReadiness(context.Background()))
}
