// Package gate decides whether an extraction may proceed under a release policy.
// It holds no state: the same inputs always give the same decision.
package gate

import (
	"math"
	"time"

	"stegapi/internal/model"
)

// EarthRadiusMeters is the IUGG mean Earth radius.
const EarthRadiusMeters = 6_371_008.8

// Outcome is the state the gate ends in for one request.
type Outcome int

const (
	Allowed Outcome = iota
	RequiresLocation
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Allowed:
		return "allowed"
	case RequiresLocation:
		return "requires_location"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Decision is the result of Evaluate. Reason is set only for Rejected.
type Decision struct {
	Outcome Outcome
	Reason  model.RejectReason
}

// Evaluate checks the time lock first and the geofence second. A time-lock
// rejection ends evaluation before coordinates are looked at.
func Evaluate(p model.ReleasePolicy, now time.Time, at *model.Coordinates) Decision {
	if p.Unconditional() {
		return Decision{Outcome: Allowed}
	}

	if p.NotBefore != nil && now.Before(*p.NotBefore) {
		return Decision{Outcome: Rejected, Reason: model.ReasonNotYetAvailable}
	}

	if g := p.Geofence; g != nil {
		if at == nil {
			return Decision{Outcome: RequiresLocation}
		}
		if !at.Valid() || Distance(g.Center, *at) > g.RadiusMeters {
			return Decision{Outcome: Rejected, Reason: model.ReasonOutOfRange}
		}
	}

	return Decision{Outcome: Allowed}
}

// Distance returns the great-circle distance between a and b in meters (haversine).
func Distance(a, b model.Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	h = math.Min(1, h)

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}
