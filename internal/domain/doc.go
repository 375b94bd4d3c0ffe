// Package domain models the weather-alert dashboard: resolved coordinates,
// current conditions, active alerts, notification agents and preferences, and
// the dispatch log.
//
// # Unit conversions
//
// The conditions endpoint reports SI units. Display values are rounded to whole
// numbers:
//
//	Temperature: round(c × 9/5 + 32)   20 °C → 68 °F
//	Wind speed:  round(m/s × 2.237)    10 m/s → 22 mph
//	Direction:   16-point compass, index round((deg mod 360) / 22.5) mod 16
//
// The final mod 16 wraps bearings just short of north (348.75°–360°) back to "N".
//
// # Agents
//
// Auto-notifications pick an agent from the alert category: anything naming
// a tornado goes to TORNADO-M, then anything naming a flood goes to FLOOD-M,
// and the rest go to HAIL-M. HEAT-M is only reachable by manual trigger.
//
// # Ports
//
// Geocoder, DeviceLocator, LocationStore, WeatherSource, DeliverySink and
// Sharer are implemented by the adapters under internal/adapter.
package domain
