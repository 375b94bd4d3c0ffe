// Package geoip implements the device location capability with a MaxMind City
// database lookup of a configured address.
package geoip

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"

	"github.com/couchcryptid/trace-alert-service/internal/domain"
)

var errNoPosition = errors.New("no position for address")

type cityLookup interface {
	City(ip net.IP) (*geoip2.City, error)
}

// Locator implements domain.DeviceLocator.
type Locator struct {
	db     cityLookup
	closer func() error
	ip     net.IP
}

// Open loads the City database at path and resolves address on every Locate.
func Open(path, address string) (*Locator, error) {
	ip := net.ParseIP(address)
	if ip == nil {
		return nil, fmt.Errorf("parse geoip address %q", address)
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &Locator{db: reader, closer: reader.Close, ip: ip}, nil
}

// Locate returns the database position for the configured address.
func (l *Locator) Locate(ctx context.Context) (domain.Coordinate, error) {
	if l == nil || l.db == nil {
		return domain.Coordinate{}, domain.ErrCapabilityUnavailable
	}
	if err := ctx.Err(); err != nil {
		return domain.Coordinate{}, err
	}

	record, err := l.db.City(l.ip)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("geoip lookup %s: %w", l.ip, err)
	}
	coord := domain.Coordinate{Lat: record.Location.Latitude, Lon: record.Location.Longitude}
	// The database reports 0,0 for addresses it has no position for.
	if (coord.Lat == 0 && coord.Lon == 0) || !coord.Valid() {
		return domain.Coordinate{}, fmt.Errorf("geoip lookup %s: %w", l.ip, errNoPosition)
	}
	return coord, nil
}

// Close releases the database.
func (l *Locator) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer()
}
