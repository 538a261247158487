package ride

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceKm(t *testing.T) {
	madrid := Point{Lat: 40.4168, Lng: -3.7038}
	barcelona := Point{Lat: 41.3874, Lng: 2.1686}

	assert.InDelta(t, 505, DistanceKm(madrid, barcelona), 5)
	assert.InDelta(t, DistanceKm(madrid, barcelona), DistanceKm(barcelona, madrid), 1e-9)
	assert.Zero(t, DistanceKm(madrid, madrid))
}

func TestNearestOrdersAndFilters(t *testing.T) {
	center := Point{Lat: 0, Lng: 0}
	rides := []RideRequest{
		{ID: "far", Origin: Point{Lat: 1, Lng: 0}},
		{ID: "near", Origin: Point{Lat: 0.01, Lng: 0}},
		{ID: "mid", Origin: Point{Lat: 0.1, Lng: 0}},
	}

	got := nearest(rides, center, 0, 0)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"near", "mid", "far"}, []string{got[0].Ride.ID, got[1].Ride.ID, got[2].Ride.ID})

	got = nearest(rides, center, 20, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "mid", got[1].Ride.ID)

	got = nearest(rides, center, 0, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "near", got[0].Ride.ID)
}
