package memory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaceweb/impactsim/internal/mapsurface"
)

func TestSurface_AddAndRemove(t *testing.T) {
	s := New()

	m, err := s.AddMarker(40.7, -74.0, mapsurface.IconSpec{ClassName: "location-marker"})
	require.NoError(t, err)
	c, err := s.AddCircle(40.7, -74.0, 2500, mapsurface.CircleStyle{Color: "#ff0000"})
	require.NoError(t, err)

	assert.Equal(t, 1, s.Count(mapsurface.KindMarker))
	assert.Equal(t, 1, s.Count(mapsurface.KindCircle))

	l, ok := s.Layer(c)
	require.True(t, ok)
	assert.InDelta(t, 2500, l.RadiusMeters, 1e-9)
	assert.Equal(t, "#ff0000", l.Style.Color)

	require.NoError(t, s.RemoveLayer(m))
	require.NoError(t, s.RemoveLayer(m), "removal is idempotent")
	require.NoError(t, s.RemoveLayer(12345), "unknown handle is not an error")
	assert.Len(t, s.Layers(), 1)
}

func TestSurface_OpsLog(t *testing.T) {
	s := New()

	h, _ := s.AddMarker(0, 0, mapsurface.IconSpec{})
	_ = s.RemoveLayer(h)

	ops := s.Ops()
	require.Len(t, ops, 2)
	assert.Equal(t, OpAddMarker, ops[0].Kind)
	assert.Equal(t, OpRemove, ops[1].Kind)
	assert.Equal(t, h, ops[1].Handle)

	s.ResetOps()
	assert.Empty(t, s.Ops())
}

func TestSurface_FailAddsAfter(t *testing.T) {
	s := New()
	s.FailAddsAfter(2)

	_, err := s.AddMarker(0, 0, mapsurface.IconSpec{})
	require.NoError(t, err)
	_, err = s.AddCircle(0, 0, 10, mapsurface.CircleStyle{})
	require.NoError(t, err)
	_, err = s.AddCircle(0, 0, 20, mapsurface.CircleStyle{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, mapsurface.ErrSurfaceUnavailable))

	s.HealAll()
	_, err = s.AddCircle(0, 0, 20, mapsurface.CircleStyle{})
	assert.NoError(t, err)
}

func TestSurface_FailRemovesKeepsLayer(t *testing.T) {
	s := New()
	h, _ := s.AddMarker(0, 0, mapsurface.IconSpec{})

	s.FailRemoves(true)
	err := s.RemoveLayer(h)
	require.ErrorIs(t, err, mapsurface.ErrSurfaceUnavailable)
	_, ok := s.Layer(h)
	assert.True(t, ok)
}

func TestSurface_FitBounds(t *testing.T) {
	s := New(WithView(0, 0, 2))

	small, _ := s.AddCircle(40.7128, -74.0060, 1000, mapsurface.CircleStyle{})
	require.NoError(t, s.FitBounds([]mapsurface.Handle{small}, 50))
	closeView := s.View()
	assert.InDelta(t, 40.7128, closeView.Lat, 1e-6)
	assert.InDelta(t, -74.0060, closeView.Lng, 1e-6)

	large, _ := s.AddCircle(40.7128, -74.0060, 100000, mapsurface.CircleStyle{})
	require.NoError(t, s.FitBounds([]mapsurface.Handle{small, large}, 50))
	farView := s.View()
	assert.Less(t, farView.Zoom, closeView.Zoom, "bigger circle needs a wider view")
}

func TestSurface_FitBounds_UnknownHandlesLeaveView(t *testing.T) {
	s := New(WithView(1, 2, 3))

	require.NoError(t, s.FitBounds([]mapsurface.Handle{99}, 50))
	assert.Equal(t, Viewport{Lat: 1, Lng: 2, Zoom: 3}, s.View())
}

func TestSurface_ClickSubscription(t *testing.T) {
	s := New()
	var got [][2]float64

	sub := s.OnClick(func(lat, lng float64) { got = append(got, [2]float64{lat, lng}) })
	s.Click(10, 20)
	sub.Unsubscribe()
	sub.Unsubscribe()
	s.Click(30, 40)

	assert.Equal(t, [][2]float64{{10, 20}}, got)
	assert.Equal(t, 0, s.Listeners())
}

func TestSurface_Dispose(t *testing.T) {
	s := New()
	h, _ := s.AddMarker(0, 0, mapsurface.IconSpec{})
	s.OnClick(func(float64, float64) {})

	require.NoError(t, s.Dispose())

	assert.Empty(t, s.Layers())
	assert.Equal(t, 0, s.Listeners())
	_, err := s.AddMarker(0, 0, mapsurface.IconSpec{})
	assert.ErrorIs(t, err, mapsurface.ErrSurfaceUnavailable)
	assert.ErrorIs(t, s.RemoveLayer(h), mapsurface.ErrSurfaceUnavailable)
	assert.ErrorIs(t, s.SetView(0, 0, 1), mapsurface.ErrSurfaceUnavailable)
}
