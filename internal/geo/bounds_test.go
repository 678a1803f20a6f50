package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaceweb/impactsim/pkg/core"
)

var nyc = core.Selection{Latitude: 40.7128, Longitude: -74.0060}

func TestBounds_ZeroIsEmpty(t *testing.T) {
	var b Bounds
	assert.True(t, b.IsEmpty())
	assert.False(t, b.Contains(nyc))
}

func TestBounds_ExtendSkipsNonFinite(t *testing.T) {
	b := Bounds{}.Extend(nyc)
	require.False(t, b.IsEmpty())

	same := b.Extend(core.Selection{Latitude: math.NaN(), Longitude: 0}).
		Extend(core.Selection{Latitude: 0, Longitude: math.Inf(1)})
	assert.Equal(t, b.SouthWest(), same.SouthWest())
	assert.Equal(t, b.NorthEast(), same.NorthEast())

	grown := b.Extend(core.Selection{Latitude: 51.5074, Longitude: -0.1278})
	assert.InDelta(t, 51.5074, grown.NorthEast().Latitude, 1e-9)
	assert.InDelta(t, -74.0060, grown.SouthWest().Longitude, 1e-9)
}

func TestCircleBounds_EnclosesCircle(t *testing.T) {
	radius := 9148.6
	b := CircleBounds(nyc, radius)

	assert.False(t, b.IsEmpty())
	assert.True(t, b.Contains(nyc))
	for bearing := 0.0; bearing < 360; bearing += 15 {
		edge := Destination(nyc, bearing, radius*0.999)
		assert.True(t, b.Contains(edge), "bearing %v not enclosed", bearing)
	}

	// Roughly symmetric around the centre.
	c := b.Center()
	assert.InDelta(t, nyc.Latitude, c.Latitude, 1e-6)
	assert.InDelta(t, nyc.Longitude, c.Longitude, 1e-6)
}

func TestCircleBounds_ZeroRadius(t *testing.T) {
	b := CircleBounds(nyc, 0)
	assert.Equal(t, nyc, b.SouthWest())
	assert.Equal(t, nyc, b.NorthEast())
}

func TestCircleBounds_PoleCapSpansAllLongitudes(t *testing.T) {
	b := CircleBounds(core.Selection{Latitude: 89.9, Longitude: 10}, 50_000)

	assert.Equal(t, -180.0, b.SouthWest().Longitude)
	assert.Equal(t, 180.0, b.NorthEast().Longitude)
	assert.Equal(t, 90.0, b.NorthEast().Latitude)
}

func TestBounds_Union(t *testing.T) {
	inner := CircleBounds(nyc, 2_475)
	outer := CircleBounds(nyc, 9_148)

	u := inner.Union(outer)
	assert.True(t, u.ContainsBounds(inner))
	assert.True(t, u.ContainsBounds(outer))
	assert.Equal(t, outer.LatLngs(), u.LatLngs())

	var empty Bounds
	assert.Equal(t, inner.LatLngs(), empty.Union(inner).LatLngs())
}

func TestFitZoom(t *testing.T) {
	small := CircleBounds(nyc, 2_000)
	large := CircleBounds(nyc, 200_000)

	zs := FitZoom(small, 1024, 768, 50, 19)
	zl := FitZoom(large, 1024, 768, 50, 19)

	assert.Greater(t, zs, zl)
	assert.LessOrEqual(t, zs, 19)
	assert.Equal(t, 0, FitZoom(Bounds{}, 1024, 768, 50, 19))
	assert.Equal(t, 0, FitZoom(small, 80, 80, 50, 19))
}

func TestMetersPerPixel(t *testing.T) {
	assert.InDelta(t, 156543.034, MetersPerPixel(0), 1e-3)
	assert.InDelta(t, MetersPerPixel(10)/2, MetersPerPixel(11), 1e-9)
}
