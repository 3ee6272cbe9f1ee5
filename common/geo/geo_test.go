package geo

import (
	"math"
	"testing"
)

func TestHaversineDistanceZero(t *testing.T) {
	d := HaversineDistance(51.5074, -0.1278, 51.5074, -0.1278)
	if d != 0 {
		t.Errorf("distance between identical points = %f, want 0", d)
	}
}

func TestHaversineDistanceKnownPairs(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		wantMeters             float64
		tolerance              float64
	}{
		// London to Paris, roughly 344 km
		{"london-paris", 51.5074, -0.1278, 48.8566, 2.3522, 343500, 2000},
		// One degree of latitude is about 111.19 km
		{"one-degree-lat", 0, 0, 1, 0, 111195, 100},
		// Short hop, about 157 m
		{"short-hop", 40.7128, -74.0060, 40.7138, -74.0070, 139, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := HaversineDistance(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(d-tt.wantMeters) > tt.tolerance {
				t.Errorf("distance = %.0f m, want %.0f m (±%.0f)", d, tt.wantMeters, tt.tolerance)
			}
		})
	}
}

func TestHaversineDistanceSymmetric(t *testing.T) {
	d1 := HaversineDistance(35.6762, 139.6503, 37.7749, -122.4194)
	d2 := HaversineDistance(37.7749, -122.4194, 35.6762, 139.6503)
	if math.Abs(d1-d2) > 0.001 {
		t.Errorf("distance not symmetric: %f vs %f", d1, d2)
	}
}
