// Package termsurface draws the overlay on a terminal with tcell. The map is
// a web mercator plane where one cell covers CellWidthPx × CellHeightPx
// pixels, so zoom levels mean the same as in the browser.
package termsurface

import (
	"math"
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/spaceweb/impactsim/internal/cache"
	"github.com/spaceweb/impactsim/internal/geo"
	"github.com/spaceweb/impactsim/internal/mapsurface"
	"github.com/spaceweb/impactsim/pkg/core"
)

const (
	CellWidthPx  = 8
	CellHeightPx = 16
	maxZoom      = 18
	ringSamples  = 180
)

var (
	defaultStyle = tcell.StyleDefault
	statusStyle  = tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorNavy)
	gridStyle    = tcell.StyleDefault.Foreground(tcell.ColorDarkSlateGray)
)

// markerRunes maps icon class names to the glyph drawn for them.
var markerRunes = map[string]rune{
	"location-marker": '▼',
	"impact-marker":   '✸',
}

// Viewport is the map center and zoom.
type Viewport struct {
	Lat  float64
	Lng  float64
	Zoom int
}

// Surface is a mapsurface.Surface rendering to a tcell.Screen.
type Surface struct {
	screen tcell.Screen
	layers *cache.LayerCache
	clicks mapsurface.ClickListeners

	mu       sync.Mutex
	view     Viewport
	status   []string
	disposed bool
}

// New creates a surface on an initialised screen.
func New(screen tcell.Screen, view Viewport) *Surface {
	s := &Surface{
		screen: screen,
		layers: cache.NewLayerCache(),
		view:   view,
	}
	s.Draw()
	return s
}

func (s *Surface) AddMarker(lat, lng float64, icon mapsurface.IconSpec) (mapsurface.Handle, error) {
	ic := icon
	return s.add(mapsurface.Layer{Kind: mapsurface.KindMarker, Lat: lat, Lng: lng, Icon: &ic})
}

func (s *Surface) AddCircle(lat, lng, radiusMeters float64, style mapsurface.CircleStyle) (mapsurface.Handle, error) {
	st := style
	return s.add(mapsurface.Layer{Kind: mapsurface.KindCircle, Lat: lat, Lng: lng, RadiusMeters: radiusMeters, Style: &st})
}

func (s *Surface) add(l mapsurface.Layer) (mapsurface.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return 0, mapsurface.ErrSurfaceUnavailable
	}
	l = s.layers.Add(l)
	s.drawLocked()
	return l.Handle, nil
}

func (s *Surface) RemoveLayer(h mapsurface.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return mapsurface.ErrSurfaceUnavailable
	}
	if s.layers.Delete(h) {
		s.drawLocked()
	}
	return nil
}

// FitBounds centers on the union of the given layers at the largest zoom
// that shows all of them. With nothing to fit the view is left alone.
func (s *Surface) FitBounds(handles []mapsurface.Handle, paddingPx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return mapsurface.ErrSurfaceUnavailable
	}
	b := mapsurface.BoundsOf(s.layers.Lookup(handles))
	if b.IsEmpty() {
		return nil
	}
	w, h := s.mapSize()
	c := b.Center()
	s.view = Viewport{
		Lat:  c.Latitude,
		Lng:  c.Longitude,
		Zoom: geo.FitZoom(b, w*CellWidthPx, h*CellHeightPx, paddingPx, maxZoom),
	}
	s.drawLocked()
	return nil
}

func (s *Surface) SetView(lat, lng float64, zoom int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return mapsurface.ErrSurfaceUnavailable
	}
	s.view = Viewport{Lat: lat, Lng: lng, Zoom: zoom}
	s.drawLocked()
	return nil
}

func (s *Surface) OnClick(fn mapsurface.ClickFunc) mapsurface.Subscription {
	return s.clicks.Add(fn)
}

// Dispose drops every layer and listener. The screen is not finalised; its
// owner does that.
func (s *Surface) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	s.layers.Reset()
	s.clicks.Reset()
	return nil
}

// View returns the current viewport.
func (s *Surface) View() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// SetStatus replaces the lines shown under the map.
func (s *Surface) SetStatus(lines []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = append(s.status[:0], lines...)
	s.drawLocked()
}

// HandleEvent reacts to mouse clicks and resizes. It reports whether ev was consumed.
func (s *Surface) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		s.screen.Sync()
		s.Draw()
		return true
	case *tcell.EventMouse:
		if ev.Buttons()&tcell.Button1 == 0 {
			return false
		}
		x, y := ev.Position()
		lat, lng, ok := s.LatLngAt(x, y)
		if !ok {
			return false
		}
		s.clicks.Emit(lat, lng)
		return true
	}
	return false
}

// Draw repaints the whole screen.
func (s *Surface) Draw() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawLocked()
}

// mapSize is the screen minus the status lines.
func (s *Surface) mapSize() (int, int) {
	w, h := s.screen.Size()
	h -= len(s.status)
	if h < 1 {
		h = 1
	}
	return w, h
}

// CellAt returns the cell showing (lat, lng) and whether it is on screen.
func (s *Surface) CellAt(lat, lng float64) (int, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cellLocked(lat, lng)
}

func (s *Surface) cellLocked(lat, lng float64) (int, int, bool) {
	w, h := s.mapSize()
	mpp := geo.MetersPerPixel(s.view.Zoom)
	cx, cy := geo.Project(s.view.Lat, s.view.Lng)
	x, y := geo.Project(lat, lng)
	col := int(math.Floor(float64(w)/2 + (x-cx)/(mpp*CellWidthPx)))
	row := int(math.Floor(float64(h)/2 - (y-cy)/(mpp*CellHeightPx)))
	return col, row, col >= 0 && col < w && row >= 0 && row < h
}

// LatLngAt returns the coordinates under the center of cell (x, y).
func (s *Surface) LatLngAt(x, y int) (float64, float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, h := s.mapSize()
	if x < 0 || x >= w || y < 0 || y >= h {
		return 0, 0, false
	}
	mpp := geo.MetersPerPixel(s.view.Zoom)
	cx, cy := geo.Project(s.view.Lat, s.view.Lng)
	px := cx + (float64(x)+0.5-float64(w)/2)*mpp*CellWidthPx
	py := cy - (float64(y)+0.5-float64(h)/2)*mpp*CellHeightPx
	lat, lng := geo.Unproject(px, py)
	return lat, geo.WrapLongitude(lng), true
}

func (s *Surface) drawLocked() {
	s.screen.Clear()
	w, h := s.mapSize()

	// graticule every 10 degrees when it is sparse enough to read
	if s.view.Zoom <= 4 {
		for lat := -80.0; lat <= 80; lat += 10 {
			for lng := -180.0; lng < 180; lng += 2 {
				if x, y, ok := s.cellLocked(lat, lng); ok {
					s.screen.SetContent(x, y, '·', nil, gridStyle)
				}
			}
		}
	}

	layers := s.layers.List()
	// circles first, largest first, so inner rings and markers stay visible
	for i := len(layers) - 1; i >= 0; i-- {
		if l := layers[i]; l.Kind == mapsurface.KindCircle {
			s.drawCircleLocked(l)
		}
	}
	for _, l := range layers {
		if l.Kind != mapsurface.KindMarker {
			continue
		}
		if x, y, ok := s.cellLocked(l.Lat, l.Lng); ok {
			r := '●'
			if l.Icon != nil {
				if mr, found := markerRunes[l.Icon.ClassName]; found {
					r = mr
				}
			}
			s.screen.SetContent(x, y, r, nil, defaultStyle.Foreground(tcell.ColorRed).Bold(true))
		}
	}

	for i, line := range s.status {
		row := h + i
		col := 0
		for _, r := range line {
			if col >= w {
				break
			}
			s.screen.SetContent(col, row, r, nil, statusStyle)
			col++
		}
		for ; col < w; col++ {
			s.screen.SetContent(col, row, ' ', nil, statusStyle)
		}
	}
	s.screen.Show()
}

func (s *Surface) drawCircleLocked(l mapsurface.Layer) {
	style := defaultStyle
	r := '○'
	if l.Style != nil {
		style = style.Foreground(tcell.GetColor(l.Style.Color))
		if l.Style.Label != "" {
			r = []rune(l.Style.Label)[0]
		}
	}
	center := core.Selection{Latitude: l.Lat, Longitude: l.Lng}
	for i := range ringSamples {
		p := geo.Destination(center, float64(i)*360/ringSamples, l.RadiusMeters)
		if x, y, ok := s.cellLocked(p.Latitude, p.Longitude); ok {
			s.screen.SetContent(x, y, r, nil, style)
		}
	}
}
