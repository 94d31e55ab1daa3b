package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stegapi/internal/model"
)

func TestDistance(t *testing.T) {
	warsaw := model.Coordinates{Lat: 52.2297, Lng: 21.0122}
	krakow := model.Coordinates{Lat: 50.0647, Lng: 19.9450}

	assert.InDelta(t, 252_000, Distance(warsaw, krakow), 2_000)
	assert.Equal(t, 0.0, Distance(warsaw, warsaw))
	assert.InDelta(t, Distance(warsaw, krakow), Distance(krakow, warsaw), 1e-6)

	// One degree of latitude is ~111.2 km.
	assert.InDelta(t, 111_195, Distance(model.Coordinates{}, model.Coordinates{Lat: 1}), 10)
	// Antipodes.
	assert.InDelta(t, EarthRadiusMeters*3.141592653589793,
		Distance(model.Coordinates{Lat: 0, Lng: 0}, model.Coordinates{Lat: 0, Lng: 180}), 1)
}

func TestEvaluate(t *testing.T) {
	hideTime := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	deadline := hideTime.Add(time.Hour)
	center := model.Coordinates{Lat: 40.7128, Lng: -74.0060}
	fence := &model.Geofence{Center: center, RadiusMeters: 1000}

	near := model.Coordinates{Lat: 40.7160, Lng: -74.0060} // ~356 m north
	far := model.Coordinates{Lat: 40.7400, Lng: -74.0060}  // ~3 km north

	tests := []struct {
		name   string
		policy model.ReleasePolicy
		now    time.Time
		at     *model.Coordinates
		want   Decision
	}{
		{
			name: "unconditional",
			now:  hideTime,
			want: Decision{Outcome: Allowed},
		},
		{
			name: "unconditional ignores coordinates",
			now:  hideTime,
			at:   &model.Coordinates{Lat: 200, Lng: -500},
			want: Decision{Outcome: Allowed},
		},
		{
			name:   "time locked before deadline",
			policy: model.ReleasePolicy{NotBefore: &deadline},
			now:    hideTime.Add(30 * time.Minute),
			want:   Decision{Outcome: Rejected, Reason: model.ReasonNotYetAvailable},
		},
		{
			name:   "time locked at deadline",
			policy: model.ReleasePolicy{NotBefore: &deadline},
			now:    deadline,
			want:   Decision{Outcome: Allowed},
		},
		{
			name:   "time locked after deadline",
			policy: model.ReleasePolicy{NotBefore: &deadline},
			now:    hideTime.Add(61 * time.Minute),
			want:   Decision{Outcome: Allowed},
		},
		{
			name:   "geo locked without coordinates",
			policy: model.ReleasePolicy{Geofence: fence},
			now:    hideTime,
			want:   Decision{Outcome: RequiresLocation},
		},
		{
			name:   "geo locked inside radius",
			policy: model.ReleasePolicy{Geofence: fence},
			now:    hideTime,
			at:     &near,
			want:   Decision{Outcome: Allowed},
		},
		{
			name:   "geo locked at center",
			policy: model.ReleasePolicy{Geofence: fence},
			now:    hideTime,
			at:     &center,
			want:   Decision{Outcome: Allowed},
		},
		{
			name:   "geo locked outside radius",
			policy: model.ReleasePolicy{Geofence: fence},
			now:    hideTime,
			at:     &far,
			want:   Decision{Outcome: Rejected, Reason: model.ReasonOutOfRange},
		},
		{
			name:   "geo locked with invalid coordinates",
			policy: model.ReleasePolicy{Geofence: fence},
			now:    hideTime,
			at:     &model.Coordinates{Lat: 91, Lng: 0},
			want:   Decision{Outcome: Rejected, Reason: model.ReasonOutOfRange},
		},
		{
			name:   "both locks, time fails first even without coordinates",
			policy: model.ReleasePolicy{NotBefore: &deadline, Geofence: fence},
			now:    hideTime,
			want:   Decision{Outcome: Rejected, Reason: model.ReasonNotYetAvailable},
		},
		{
			name:   "both locks, time fails first even when far away",
			policy: model.ReleasePolicy{NotBefore: &deadline, Geofence: fence},
			now:    hideTime,
			at:     &far,
			want:   Decision{Outcome: Rejected, Reason: model.ReasonNotYetAvailable},
		},
		{
			name:   "both locks, time passed, needs location",
			policy: model.ReleasePolicy{NotBefore: &deadline, Geofence: fence},
			now:    deadline.Add(time.Second),
			want:   Decision{Outcome: RequiresLocation},
		},
		{
			name:   "both locks satisfied",
			policy: model.ReleasePolicy{NotBefore: &deadline, Geofence: fence},
			now:    deadline.Add(time.Second),
			at:     &near,
			want:   Decision{Outcome: Allowed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.policy, tt.now, tt.at))
		})
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "allowed", Allowed.String())
	assert.Equal(t, "requires_location", RequiresLocation.String())
	assert.Equal(t, "rejected", Rejected.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
