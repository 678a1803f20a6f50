package mapsurface

import (
	"slices"
	"sync"

	"github.com/spaceweb/impactsim/internal/geo"
	"github.com/spaceweb/impactsim/pkg/core"
)

// LayerKind distinguishes markers from circles.
type LayerKind string

const (
	KindMarker LayerKind = "marker"
	KindCircle LayerKind = "circle"
)

// Layer is the drawn state of one handle as tracked by surface implementations.
type Layer struct {
	Handle       Handle       `json:"id"`
	Kind         LayerKind    `json:"kind"`
	Lat          float64      `json:"lat"`
	Lng          float64      `json:"lng"`
	RadiusMeters float64      `json:"radius,omitempty"`
	Icon         *IconSpec    `json:"icon,omitempty"`
	Style        *CircleStyle `json:"style,omitempty"`
}

// Bounds returns the geographic extent of the layer.
func (l Layer) Bounds() geo.Bounds {
	center := core.Selection{Latitude: l.Lat, Longitude: l.Lng}
	if l.Kind == KindCircle {
		return geo.CircleBounds(center, l.RadiusMeters)
	}
	return geo.PointBounds(center)
}

// BoundsOf returns the union of the layers' extents.
func BoundsOf(layers []Layer) geo.Bounds {
	var b geo.Bounds
	for _, l := range layers {
		b = b.Union(l.Bounds())
	}
	return b
}

// ClickListeners is a registry of click callbacks shared by surface implementations.
type ClickListeners struct {
	mu     sync.RWMutex
	nextID uint64
	fns    map[uint64]ClickFunc
}

// Add registers fn and returns a subscription that removes it.
func (c *ClickListeners) Add(fn ClickFunc) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fns == nil {
		c.fns = make(map[uint64]ClickFunc)
	}
	c.nextID++
	id := c.nextID
	c.fns[id] = fn

	var once sync.Once
	return SubscriptionFunc(func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.fns, id)
		})
	})
}

// Emit calls every registered listener in registration order.
func (c *ClickListeners) Emit(lat, lng float64) {
	c.mu.RLock()
	ids := make([]uint64, 0, len(c.fns))
	for id := range c.fns {
		ids = append(ids, id)
	}
	fns := make(map[uint64]ClickFunc, len(c.fns))
	for id, fn := range c.fns {
		fns[id] = fn
	}
	c.mu.RUnlock()

	slices.Sort(ids)
	for _, id := range ids {
		fns[id](lat, lng)
	}
}

// Len returns the number of registered listeners.
func (c *ClickListeners) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.fns)
}

// Reset drops every listener.
func (c *ClickListeners) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns = nil
}
