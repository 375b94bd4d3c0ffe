// Package store persists the resolved coordinate under a single key.
package store

import (
	"encoding/json"
	"fmt"

	"github.com/couchcryptid/trace-alert-service/internal/domain"
)

// LocationKey is the single key the coordinate is stored under.
const LocationKey = "traceUserLocation"

func encode(c domain.Coordinate) ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("encode location: %w", domain.ErrInvalidLocation)
	}
	return json.Marshal(c)
}

// decode reports malformed and out-of-range values as ErrInvalidLocation so a
// corrupted entry behaves like an absent one.
func decode(data []byte) (domain.Coordinate, error) {
	var c domain.Coordinate
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.Coordinate{}, fmt.Errorf("decode location: %w: %w", domain.ErrInvalidLocation, err)
	}
	if !c.Valid() {
		return domain.Coordinate{}, fmt.Errorf("decode location: %w", domain.ErrInvalidLocation)
	}
	return c, nil
}
