package domain

import "context"

// Geocoder resolves a free-text place name to its first matching coordinate.
type Geocoder interface {
	Search(ctx context.Context, query string) (Coordinate, error)
}

// DeviceLocator asks the platform for the current position.
type DeviceLocator interface {
	Locate(ctx context.Context) (Coordinate, error)
}

// LocationStore persists the single resolved coordinate. Load reports false
// when nothing is stored.
type LocationStore interface {
	Load(ctx context.Context) (Coordinate, bool, error)
	Save(ctx context.Context, c Coordinate) error
	Clear(ctx context.Context) error
}

// WeatherSource retrieves raw conditions and active alerts for a coordinate.
type WeatherSource interface {
	Conditions(ctx context.Context, c Coordinate) (RawConditions, *RawPlace, error)
	Alerts(ctx context.Context, c Coordinate) ([]Alert, error)
}

// DeliverySink receives entries once they reach Sent.
type DeliverySink interface {
	Deliver(ctx context.Context, entry DispatchLogEntry) error
}

// Sharer hands a composed share text to an external share mechanism.
type Sharer interface {
	Share(ctx context.Context, text string) error
}
