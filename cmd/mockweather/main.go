// Command mockweather serves the conditions and alerts endpoints the dashboard
// polls, so the service can run locally without the real weather API.
//
// Usage:
//
//	go run ./cmd/mockweather -addr :3000 -scenario severe
//	go run ./cmd/mockweather -alerts-csv cmd/mockweather/testdata/alerts.csv
//
// Scenarios: calm (no alerts), severe (tornado and flash flood warnings), and
// outage (every request fails with 503).
package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/trace-alert-service/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	addr := flag.String("addr", ":3000", "listen address")
	scenario := flag.String("scenario", "severe", "calm, severe, or outage")
	alertsCSV := flag.String("alerts-csv", "", "optional CSV of alerts (id,type,severity,headline,location)")
	flag.Parse()

	m, err := newMock(*scenario)
	if err != nil {
		flag.Usage()
		return err
	}
	if *alertsCSV != "" {
		alerts, err := loadAlertsCSV(*alertsCSV)
		if err != nil {
			return fmt.Errorf("loading %s: %w", *alertsCSV, err)
		}
		m.alerts = alerts
		log.Printf("loaded %d alerts from %s", len(alerts), *alertsCSV)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           m.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("mock weather api listening on %s (scenario %s)", *addr, *scenario)
	return srv.ListenAndServe()
}

type weatherBody struct {
	Location *domain.RawPlace     `json:"location"`
	Current  domain.RawConditions `json:"current"`
}

type alertsBody struct {
	Alerts []domain.Alert `json:"alerts"`
}

type mock struct {
	outage   bool
	current  domain.RawConditions
	alerts   []domain.Alert
	requests atomic.Int64
}

func ptr(f float64) *float64 { return &f }

func newMock(scenario string) (*mock, error) {
	m := &mock{
		current: domain.RawConditions{
			Temperature:   ptr(24),
			WindSpeed:     ptr(5.4),
			WindDirection: ptr(315),
			Humidity:      ptr(70),
			Description:   "Partly Cloudy",
		},
	}
	switch scenario {
	case "calm":
	case "severe":
		m.current.Description = "Thunderstorms"
		m.current.WindSpeed = ptr(17.9)
		m.alerts = []domain.Alert{
			{ID: "mock-tornado-1", Type: "Tornado Warning", Severity: domain.SeverityExtreme,
				Headline: "Tornado Warning until 6:45 PM CDT", Location: "Lafayette Parish"},
			{ID: "mock-flood-1", Type: "Flash Flood Warning", Severity: domain.SeveritySevere,
				Headline: "Flash Flood Warning until 9:00 PM CDT", Location: "Vermilion River"},
		}
	case "outage":
		m.outage = true
	default:
		return nil, fmt.Errorf("unknown scenario %q", scenario)
	}
	return m, nil
}

func (m *mock) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/weather", m.handleWeather)
	mux.HandleFunc("GET /api/alerts", m.handleAlerts)
	return mux
}

func (m *mock) handleWeather(w http.ResponseWriter, r *http.Request) {
	if !m.accept(w, r) {
		return
	}
	writeJSON(w, weatherBody{
		Location: &domain.RawPlace{City: "Lafayette", State: "LA"},
		Current:  m.current,
	})
}

func (m *mock) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if !m.accept(w, r) {
		return
	}
	alerts := m.alerts
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	writeJSON(w, alertsBody{Alerts: alerts})
}

// accept counts the request and rejects it during an outage or without coordinates.
func (m *mock) accept(w http.ResponseWriter, r *http.Request) bool {
	n := m.requests.Add(1)
	log.Printf("#%d %s %s", n, r.Method, r.URL)
	if m.outage {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return false
	}
	q := r.URL.Query()
	if q.Get("lat") == "" || q.Get("lon") == "" {
		http.Error(w, "lat and lon are required", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v) //nolint:errcheck // mock server
}

// loadAlertsCSV reads alerts from a CSV file with a header row. Rows without an
// id are skipped.
func loadAlertsCSV(path string) ([]domain.Alert, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) < 1 {
		return nil, errors.New("missing header row")
	}

	colIdx := map[string]int{}
	for i, h := range rows[0] {
		colIdx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := colIdx["id"]; !ok {
		return nil, errors.New("missing id column")
	}

	alerts := make([]domain.Alert, 0, len(rows)-1)
	for _, row := range rows[1:] {
		id := get(row, colIdx, "id")
		if id == "" {
			continue
		}
		alerts = append(alerts, domain.Alert{
			ID:       id,
			Type:     get(row, colIdx, "type"),
			Severity: domain.ParseSeverity(get(row, colIdx, "severity")),
			Headline: get(row, colIdx, "headline"),
			Location: get(row, colIdx, "location"),
		})
	}
	return alerts, nil
}

func get(row []string, colIdx map[string]int, col string) string {
	i, ok := colIdx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
