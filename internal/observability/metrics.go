package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "trace"

// Metrics holds the Prometheus counters, histograms, and gauges for the dashboard service.
type Metrics struct {
	// Polling metrics.
	PollsTotal    *prometheus.CounterVec   // labels: outcome={success,error,stale}
	FetchDuration *prometheus.HistogramVec // labels: endpoint={weather,alerts}
	PollRunning   prometheus.Gauge
	ActiveAlerts  prometheus.Gauge

	// Intake and dispatch metrics.
	AlertsSeen       prometheus.Counter
	DispatchesTotal  *prometheus.CounterVec // labels: kind={auto,share,manual}
	DeliveryFailures prometheus.Counter

	// Location metrics.
	LocationResolutions *prometheus.CounterVec // labels: method={device,name}, outcome={success,error}
	GeocodeCache        *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration  prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PollsTotal,
		m.FetchDuration,
		m.PollRunning,
		m.ActiveAlerts,
		m.AlertsSeen,
		m.DispatchesTotal,
		m.DeliveryFailures,
		m.LocationResolutions,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as many
// as they like without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Poll cycles by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Weather API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		PollRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poll_running",
			Help:      "1 while a coordinate is set and polling is scheduled.",
		}),
		ActiveAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_alerts",
			Help:      "Alerts in the most recently applied collection.",
		}),
		AlertsSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_seen_total",
			Help:      "Distinct alert IDs evaluated for auto-dispatch.",
		}),
		DispatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Dispatch log entries created by kind.",
		}, []string{"kind"}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Sent entries the delivery sink rejected.",
		}),
		LocationResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_resolutions_total",
			Help:      "Location resolution attempts by method and outcome.",
		}, []string{"method", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Geocoding API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}
