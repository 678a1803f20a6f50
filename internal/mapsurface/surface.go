// Package mapsurface defines the drawing capability the overlay coordinator works against.
// Implementations wrap a concrete map: a browser map over WebSocket, a terminal
// renderer, or the in-memory surface used by tests and the CLI.
package mapsurface

import (
	"errors"
	"strconv"
)

// ErrSurfaceUnavailable is returned when the surface was disposed or a call failed.
var ErrSurfaceUnavailable = errors.New("map surface unavailable")

// Handle identifies one layer on a surface. The zero Handle refers to nothing.
type Handle uint64

// IsZero reports whether h refers to no layer.
func (h Handle) IsZero() bool { return h == 0 }

func (h Handle) String() string { return "layer#" + strconv.FormatUint(uint64(h), 10) }

// IconSpec describes a marker icon.
type IconSpec struct {
	ClassName string  `json:"className"`
	HTML      string  `json:"html,omitempty"`
	Size      [2]int  `json:"iconSize"`
	Anchor    *[2]int `json:"iconAnchor,omitempty"`
}

// CircleStyle describes how a circle is stroked and filled.
type CircleStyle struct {
	Color       string  `json:"color"`
	FillColor   string  `json:"fillColor"`
	FillOpacity float64 `json:"fillOpacity"`
	Weight      int     `json:"weight"`
	Label       string  `json:"label,omitempty"`
}

// ClickFunc receives map clicks in WGS84 degrees.
type ClickFunc func(lat, lng float64)

// Subscription cancels a click listener.
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a func to Subscription.
type SubscriptionFunc func()

// Unsubscribe calls f.
func (f SubscriptionFunc) Unsubscribe() { f() }

// Surface is the map capability consumed by the overlay coordinator.
type Surface interface {
	AddMarker(lat, lng float64, icon IconSpec) (Handle, error)
	AddCircle(lat, lng, radiusMeters float64, style CircleStyle) (Handle, error)
	// RemoveLayer is idempotent: removing an unknown or already-removed handle is not an error.
	RemoveLayer(h Handle) error
	FitBounds(handles []Handle, paddingPx int) error
	OnClick(fn ClickFunc) Subscription
}

// Viewer is implemented by surfaces that can recenter their viewport.
type Viewer interface {
	SetView(lat, lng float64, zoom int) error
}

// Disposer is implemented by surfaces that own resources.
type Disposer interface {
	Dispose() error
}
