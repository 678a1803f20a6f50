// Package memory provides a Surface that keeps its layers in process.
// It backs the simulate command and the overlay tests.
package memory

import (
	"fmt"
	"sync"

	"github.com/spaceweb/impactsim/internal/cache"
	"github.com/spaceweb/impactsim/internal/geo"
	"github.com/spaceweb/impactsim/internal/mapsurface"
)

const (
	defaultWidthPx  = 1024
	defaultHeightPx = 768
	maxZoom         = 18
)

// OpKind names a recorded surface call.
type OpKind string

const (
	OpAddMarker OpKind = "add_marker"
	OpAddCircle OpKind = "add_circle"
	OpRemove    OpKind = "remove_layer"
	OpFitBounds OpKind = "fit_bounds"
	OpSetView   OpKind = "set_view"
)

// Op is one entry of the call log.
type Op struct {
	Kind    OpKind
	Handle  mapsurface.Handle
	Handles []mapsurface.Handle
	Err     error
}

// Viewport is the current map view.
type Viewport struct {
	Lat  float64
	Lng  float64
	Zoom int
}

// Surface is an in-memory mapsurface.Surface.
type Surface struct {
	mu       sync.Mutex
	layers   *cache.LayerCache
	clicks   mapsurface.ClickListeners
	ops      []Op
	view     Viewport
	widthPx  int
	heightPx int
	disposed bool

	// failure injection
	addsBeforeFail int
	failAdds       bool
	failRemoves    bool
	failFit        bool
}

// Option configures a Surface.
type Option func(*Surface)

// WithSize sets the viewport size in pixels used by FitBounds.
func WithSize(widthPx, heightPx int) Option {
	return func(s *Surface) {
		s.widthPx = widthPx
		s.heightPx = heightPx
	}
}

// WithView sets the initial viewport.
func WithView(lat, lng float64, zoom int) Option {
	return func(s *Surface) {
		s.view = Viewport{Lat: lat, Lng: lng, Zoom: zoom}
	}
}

// New creates an empty surface.
func New(opts ...Option) *Surface {
	s := &Surface{
		layers:   cache.NewLayerCache(),
		widthPx:  defaultWidthPx,
		heightPx: defaultHeightPx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Surface) AddMarker(lat, lng float64, icon mapsurface.IconSpec) (mapsurface.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.addErrLocked(); err != nil {
		s.ops = append(s.ops, Op{Kind: OpAddMarker, Err: err})
		return 0, err
	}
	ic := icon
	l := s.layers.Add(mapsurface.Layer{Kind: mapsurface.KindMarker, Lat: lat, Lng: lng, Icon: &ic})
	s.ops = append(s.ops, Op{Kind: OpAddMarker, Handle: l.Handle})
	return l.Handle, nil
}

func (s *Surface) AddCircle(lat, lng, radiusMeters float64, style mapsurface.CircleStyle) (mapsurface.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.addErrLocked(); err != nil {
		s.ops = append(s.ops, Op{Kind: OpAddCircle, Err: err})
		return 0, err
	}
	st := style
	l := s.layers.Add(mapsurface.Layer{Kind: mapsurface.KindCircle, Lat: lat, Lng: lng, RadiusMeters: radiusMeters, Style: &st})
	s.ops = append(s.ops, Op{Kind: OpAddCircle, Handle: l.Handle})
	return l.Handle, nil
}

func (s *Surface) addErrLocked() error {
	if s.disposed {
		return mapsurface.ErrSurfaceUnavailable
	}
	if !s.failAdds {
		return nil
	}
	if s.addsBeforeFail > 0 {
		s.addsBeforeFail--
		return nil
	}
	return fmt.Errorf("add layer: %w", mapsurface.ErrSurfaceUnavailable)
}

func (s *Surface) RemoveLayer(h mapsurface.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	switch {
	case s.disposed:
		err = mapsurface.ErrSurfaceUnavailable
	case s.failRemoves:
		err = fmt.Errorf("remove %s: %w", h, mapsurface.ErrSurfaceUnavailable)
	default:
		s.layers.Delete(h)
	}
	s.ops = append(s.ops, Op{Kind: OpRemove, Handle: h, Err: err})
	return err
}

// FitBounds moves the viewport to the union of the given layers. Unknown
// handles are skipped; with nothing to fit the view is left alone.
func (s *Surface) FitBounds(handles []mapsurface.Handle, paddingPx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	switch {
	case s.disposed:
		err = mapsurface.ErrSurfaceUnavailable
	case s.failFit:
		err = fmt.Errorf("fit bounds: %w", mapsurface.ErrSurfaceUnavailable)
	default:
		b := mapsurface.BoundsOf(s.layers.Lookup(handles))
		if !b.IsEmpty() {
			c := b.Center()
			s.view = Viewport{
				Lat:  c.Latitude,
				Lng:  c.Longitude,
				Zoom: geo.FitZoom(b, s.widthPx, s.heightPx, paddingPx, maxZoom),
			}
		}
	}
	s.ops = append(s.ops, Op{Kind: OpFitBounds, Handles: append([]mapsurface.Handle(nil), handles...), Err: err})
	return err
}

func (s *Surface) SetView(lat, lng float64, zoom int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		s.ops = append(s.ops, Op{Kind: OpSetView, Err: mapsurface.ErrSurfaceUnavailable})
		return mapsurface.ErrSurfaceUnavailable
	}
	s.view = Viewport{Lat: lat, Lng: lng, Zoom: zoom}
	s.ops = append(s.ops, Op{Kind: OpSetView})
	return nil
}

func (s *Surface) OnClick(fn mapsurface.ClickFunc) mapsurface.Subscription {
	return s.clicks.Add(fn)
}

// Dispose drops every layer and listener; later calls fail with ErrSurfaceUnavailable.
func (s *Surface) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	s.layers.Reset()
	s.clicks.Reset()
	return nil
}

// Click simulates a user click at the given coordinates.
func (s *Surface) Click(lat, lng float64) {
	s.clicks.Emit(lat, lng)
}

// FailAddsAfter makes every add fail once n more adds have succeeded.
func (s *Surface) FailAddsAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAdds = true
	s.addsBeforeFail = n
}

// FailRemoves toggles failure of RemoveLayer. Layers are kept while failing.
func (s *Surface) FailRemoves(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRemoves = fail
}

// FailFitBounds toggles failure of FitBounds.
func (s *Surface) FailFitBounds(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFit = fail
}

// HealAll clears every injected failure.
func (s *Surface) HealAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAdds = false
	s.addsBeforeFail = 0
	s.failRemoves = false
	s.failFit = false
}

// Layers returns the live layers in insertion order.
func (s *Surface) Layers() []mapsurface.Layer {
	return s.layers.List()
}

// Layer returns one live layer.
func (s *Surface) Layer(h mapsurface.Handle) (mapsurface.Layer, bool) {
	return s.layers.Get(h)
}

// Count returns the number of live layers of the given kind.
func (s *Surface) Count(kind mapsurface.LayerKind) int {
	n := 0
	for _, l := range s.layers.List() {
		if l.Kind == kind {
			n++
		}
	}
	return n
}

// Ops returns a copy of the call log.
func (s *Surface) Ops() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Op(nil), s.ops...)
}

// ResetOps clears the call log.
func (s *Surface) ResetOps() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = nil
}

// View returns the current viewport.
func (s *Surface) View() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Listeners returns the number of active click subscriptions.
func (s *Surface) Listeners() int {
	return s.clicks.Len()
}

var (
	_ mapsurface.Surface  = (*Surface)(nil)
	_ mapsurface.Viewer   = (*Surface)(nil)
	_ mapsurface.Disposer = (*Surface)(nil)
)
