package domain

import (
	"fmt"
	"maps"
)

// Alert categories with a notification preference.
const (
	CategoryTornadoWarning     = "Tornado Warning"
	CategorySevereThunderstorm = "Severe Thunderstorm Warning"
	CategoryFlashFloodWarning  = "Flash Flood Warning"
	CategoryHurricaneWarning   = "Hurricane Warning"
)

// Categories returns the preference categories in display order.
func Categories() []string {
	return []string{
		CategoryTornadoWarning,
		CategorySevereThunderstorm,
		CategoryFlashFloodWarning,
		CategoryHurricaneWarning,
	}
}

// Preferences maps an alert category to whether auto-notification is enabled.
// The key set is fixed; categories outside it are never enabled.
type Preferences struct {
	enabled map[string]bool
}

// DefaultPreferences enables every category.
func DefaultPreferences() Preferences {
	p := Preferences{enabled: make(map[string]bool, 4)}
	for _, c := range Categories() {
		p.enabled[c] = true
	}
	return p
}

// NewPreferences builds preferences from explicit values, rejecting unknown
// categories. Categories not mentioned keep their default.
func NewPreferences(values map[string]bool) (Preferences, error) {
	p := DefaultPreferences()
	for k, v := range values {
		if err := p.Set(k, v); err != nil {
			return Preferences{}, err
		}
	}
	return p, nil
}

// Enabled reports whether alerts of this category trigger auto-notification.
func (p Preferences) Enabled(category string) bool {
	return p.enabled[category]
}

// Set changes one category.
func (p Preferences) Set(category string, enabled bool) error {
	if _, ok := p.enabled[category]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	p.enabled[category] = enabled
	return nil
}

// Clone returns an independent copy.
func (p Preferences) Clone() Preferences {
	return Preferences{enabled: maps.Clone(p.enabled)}
}

// Map returns a copy of the category flags.
func (p Preferences) Map() map[string]bool {
	return maps.Clone(p.enabled)
}
