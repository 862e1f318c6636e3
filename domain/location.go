package domain

import (
	"fmt"
	"time"
)

// Coordinates is a WGS84 latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c Coordinates) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %v out of range", c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("longitude %v out of range", c.Lng)
	}
	return nil
}

// Location is either a device-reported ephemeral reading or a persisted
// profile location. Address fields are a cache derived from the coordinates,
// never a source of truth.
type Location struct {
	Coords     Coordinates `json:"coords"`
	Address    string      `json:"address,omitempty"`
	City       string      `json:"city,omitempty"`
	PostalCode string      `json:"postalCode,omitempty"`
	Country    string      `json:"country,omitempty"`
	CapturedAt time.Time   `json:"capturedAt"`
}
