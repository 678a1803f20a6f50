package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaceweb/impactsim/pkg/core"
)

func TestNewSelection_Valid(t *testing.T) {
	s, err := NewSelection(40.7128, -74.0060)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Latitude != 40.7128 {
		t.Errorf("expected Latitude=40.7128, got %f", s.Latitude)
	}
	if s.Longitude != -74.0060 {
		t.Errorf("expected Longitude=-74.0060, got %f", s.Longitude)
	}
}

func TestNewSelection_Poles(t *testing.T) {
	for _, lat := range []float64{-90, 90} {
		_, err := NewSelection(lat, 0)
		if err != nil {
			t.Errorf("expected latitude %v to be valid, got %v", lat, err)
		}
	}
}

func TestNewSelection_InvalidLatitude(t *testing.T) {
	for _, lat := range []float64{-90.0001, 91, math.NaN(), math.Inf(1)} {
		_, err := NewSelection(lat, 0)
		if !errors.Is(err, ErrInvalidCoordinates) {
			t.Errorf("expected ErrInvalidCoordinates for lat=%v, got %v", lat, err)
		}
	}
}

func TestWrapLongitude(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{180, 180},
		{-180, -180},
		{190, -170},
		{-190, 170},
		{360, 0},
		{540, -180},
		{-74.006 - 360, -74.006},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, WrapLongitude(tt.in), 1e-9, "WrapLongitude(%v)", tt.in)
	}
}

func TestSelectionFromString(t *testing.T) {
	s, err := SelectionFromString("51.5074, -0.1278")
	require.NoError(t, err)
	assert.Equal(t, core.Selection{Latitude: 51.5074, Longitude: -0.1278}, s)

	for _, bad := range []string{"", "51.5", "a,b", "1,2,3", "95,0"} {
		_, err := SelectionFromString(bad)
		assert.ErrorIs(t, err, ErrInvalidCoordinates, "input %q", bad)
	}
}

func TestCoords3857From4326(t *testing.T) {
	point, err := Coords3857From4326(0, 0)
	require.NoError(t, err)

	xy, ok := point.XY()
	require.True(t, ok)
	assert.InDelta(t, 0, xy.X, 1e-6)
	assert.InDelta(t, 0, xy.Y, 1e-6)

	point, err = Coords3857From4326(180, 0)
	require.NoError(t, err)
	xy, _ = point.XY()
	assert.InDelta(t, worldWidthMeters/2, xy.X, 1)

	point, err = Coords3857From4326(math.NaN(), 10)
	require.ErrorIs(t, err, ErrInvalidCoordinates)
	assert.True(t, point.IsEmpty())
}

func TestProjectRoundTrip(t *testing.T) {
	x, y := Project(48.8566, 2.3522)
	lat, lng := Unproject(x, y)
	assert.InDelta(t, 48.8566, lat, 1e-6)
	assert.InDelta(t, 2.3522, lng, 1e-6)
}

func TestDistanceAndDestination(t *testing.T) {
	start := core.Selection{Latitude: 35.6762, Longitude: 139.6503}

	for _, bearing := range []float64{0, 45, 90, 180, 270} {
		end := Destination(start, bearing, 10_000)
		assert.InDelta(t, 10_000, Distance(start, end), 0.5, "bearing %v", bearing)
	}

	north := Destination(start, 0, 111_195)
	assert.InDelta(t, start.Latitude+1, north.Latitude, 1e-3)
	assert.InDelta(t, start.Longitude, north.Longitude, 1e-9)
}

func TestDestination_WrapsAntimeridian(t *testing.T) {
	start := core.Selection{Latitude: 0, Longitude: 179.99}
	end := Destination(start, 90, 10_000)
	assert.Less(t, end.Longitude, 0.0)
	assert.GreaterOrEqual(t, end.Longitude, -180.0)
}
