package mapsurface

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spaceweb/impactsim/pkg/core"
)

func TestHandle(t *testing.T) {
	assert.True(t, Handle(0).IsZero())
	assert.False(t, Handle(3).IsZero())
	assert.Equal(t, "layer#3", Handle(3).String())
}

func TestLayerBounds(t *testing.T) {
	marker := Layer{Kind: KindMarker, Lat: 10, Lng: 20}
	circle := Layer{Kind: KindCircle, Lat: 10, Lng: 20, RadiusMeters: 50000}

	mb := marker.Bounds()
	assert.Equal(t, mb.SouthWest(), mb.NorthEast())

	cb := circle.Bounds()
	assert.True(t, cb.Contains(core.Selection{Latitude: 10, Longitude: 20}))
	assert.Less(t, cb.SouthWest().Latitude, 10.0)
	assert.Greater(t, cb.NorthEast().Latitude, 10.0)

	all := BoundsOf([]Layer{marker, circle, {Kind: KindMarker, Lat: 30, Lng: 40}})
	assert.True(t, all.ContainsBounds(cb))
	assert.True(t, all.Contains(core.Selection{Latitude: 30, Longitude: 40}))
}

func TestBoundsOf_Empty(t *testing.T) {
	assert.True(t, BoundsOf(nil).IsEmpty())
}

func TestClickListeners(t *testing.T) {
	var c ClickListeners
	var order []int

	c.Add(func(float64, float64) { order = append(order, 1) })
	sub := c.Add(func(float64, float64) { order = append(order, 2) })
	c.Add(func(float64, float64) { order = append(order, 3) })
	assert.Equal(t, 3, c.Len())

	c.Emit(0, 0)
	sub.Unsubscribe()
	c.Emit(0, 0)

	assert.Equal(t, []int{1, 2, 3, 1, 3}, order)

	c.Reset()
	assert.Equal(t, 0, c.Len())
}
