package domain

import "math"

// UnknownLabel is shown in place of a reading the weather service did not report.
const UnknownLabel = "N/A"

// Defaults applied when the weather service omits a reading.
const (
	DefaultHumidityPct   = 50
	DefaultDescription   = "No data"
	UnknownLocationLabel = "Unknown Location"
)

// cardinalLabels is the 16-point compass rose starting at north.
var cardinalLabels = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// ConditionsSnapshot is the display model for current conditions. It is
// replaced wholesale on every fetch.
type ConditionsSnapshot struct {
	TemperatureF  *int   `json:"temperature_f"`
	FeelsLikeF    *int   `json:"feels_like_f"`
	WindSpeedMph  int    `json:"wind_speed_mph"`
	WindDirection string `json:"wind_direction"`
	HumidityPct   int    `json:"humidity_pct"`
	Description   string `json:"description"`
}

// FallbackConditions is substituted when a fetch fails and fallback data is enabled.
func FallbackConditions() ConditionsSnapshot {
	temp, feels := 75, 78
	return ConditionsSnapshot{
		TemperatureF:  &temp,
		FeelsLikeF:    &feels,
		WindSpeedMph:  12,
		WindDirection: "NW",
		HumidityPct:   65,
		Description:   "Partly Cloudy",
	}
}

// FormatTemperature converts Celsius to whole degrees Fahrenheit.
func FormatTemperature(celsius float64) int {
	return int(math.Round(celsius*9/5 + 32))
}

// FormatWindSpeed converts meters per second to whole miles per hour.
func FormatWindSpeed(mps float64) int {
	return int(math.Round(mps * 2.237))
}

// CardinalDirection maps a bearing in degrees onto the 16-point compass.
// Bearings wrap, so 359 and 360 are both "N".
func CardinalDirection(degrees float64) string {
	d := math.Mod(degrees, 360)
	if d < 0 {
		d += 360
	}
	idx := int(math.Round(d/22.5)) % len(cardinalLabels)
	return cardinalLabels[idx]
}

// RawConditions is the "current" object of the conditions endpoint. Every
// reading may be null.
type RawConditions struct {
	Temperature   *float64 `json:"temperature"`
	WindSpeed     *float64 `json:"windSpeed"`
	WindDirection *float64 `json:"windDirection"`
	Humidity      *float64 `json:"humidity"`
	Description   string   `json:"description"`
}

// RawPlace is the "location" object of the conditions endpoint.
type RawPlace struct {
	City  string `json:"city"`
	State string `json:"state"`
}

// NormalizeConditions converts a raw conditions payload into the display model.
func NormalizeConditions(raw RawConditions) ConditionsSnapshot {
	snap := ConditionsSnapshot{
		WindDirection: UnknownLabel,
		HumidityPct:   DefaultHumidityPct,
		Description:   DefaultDescription,
	}
	if raw.Temperature != nil {
		f := FormatTemperature(*raw.Temperature)
		feels := f
		snap.TemperatureF = &f
		snap.FeelsLikeF = &feels
	}
	if raw.WindSpeed != nil {
		snap.WindSpeedMph = FormatWindSpeed(*raw.WindSpeed)
	}
	if raw.WindDirection != nil {
		snap.WindDirection = CardinalDirection(*raw.WindDirection)
	}
	if raw.Humidity != nil && *raw.Humidity != 0 {
		snap.HumidityPct = int(math.Round(*raw.Humidity))
	}
	if raw.Description != "" {
		snap.Description = raw.Description
	}
	return snap
}

// PlaceLabel renders "<city>, <state>", or the unknown label when no place is reported.
func PlaceLabel(place *RawPlace) string {
	if place == nil {
		return UnknownLocationLabel
	}
	return place.City + ", " + place.State
}
