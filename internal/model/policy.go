package model

import "time"

// Coordinates is a WGS84 position in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinates are finite and inside the WGS84 ranges.
func (c Coordinates) Valid() bool {
	// NaN fails every comparison below.
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Geofence is a circular region used as a release condition.
type Geofence struct {
	Center       Coordinates `json:"center"`
	RadiusMeters float64     `json:"radius_meters"`
}

// ReleasePolicy holds the conditions that must hold before a payload is released.
// Both fields are optional; a zero policy means unconditional release.
type ReleasePolicy struct {
	NotBefore *time.Time `json:"not_before,omitempty"`
	Geofence  *Geofence  `json:"geofence,omitempty"`
}

// Unconditional reports whether the policy carries no release condition.
func (p ReleasePolicy) Unconditional() bool {
	return p.NotBefore == nil && p.Geofence == nil
}
