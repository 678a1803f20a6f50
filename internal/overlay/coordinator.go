// Package overlay keeps a map surface's annotations consistent with the
// user's select and launch actions.
//
// A Coordinator owns one OverlayState for the lifetime of a surface. All
// mutations go through its methods; subscribers receive a Snapshot after
// every change.
package overlay

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spaceweb/impactsim/internal/geo"
	"github.com/spaceweb/impactsim/internal/impact"
	"github.com/spaceweb/impactsim/internal/logging"
	"github.com/spaceweb/impactsim/internal/mapsurface"
	"github.com/spaceweb/impactsim/pkg/core"
)

var (
	// ErrNoSelection is returned by Launch before any target was chosen.
	ErrNoSelection = errors.New("no target selected")
	// ErrLaunchInProgress is returned when Launch is re-entered on the same coordinator.
	ErrLaunchInProgress = errors.New("launch already in progress")
)

const (
	// DefaultFitPaddingPx is the padding used when fitting the view to a launch.
	DefaultFitPaddingPx = 50
	// DefaultQuickLaunchZoom is the zoom QuickLaunch centers the view at.
	DefaultQuickLaunchZoom = 11
)

// ComputeFunc turns parameters and a location into a result.
type ComputeFunc func(core.AsteroidParameters, core.Selection) (core.ImpactResult, error)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger used for overlay events.
func WithLogger(l logging.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithFitPadding sets the padding applied when fitting the view to a launch.
func WithFitPadding(px int) Option {
	return func(c *Coordinator) { c.fitPadding = px }
}

// WithQuickLaunchZoom sets the zoom used by QuickLaunch to center the view.
func WithQuickLaunchZoom(zoom int) Option {
	return func(c *Coordinator) { c.quickZoom = zoom }
}

// WithCompute replaces impact.Compute.
func WithCompute(fn ComputeFunc) Option {
	return func(c *Coordinator) { c.compute = fn }
}

// Coordinator reconciles selection and launch actions with a Surface.
type Coordinator struct {
	surface    mapsurface.Surface
	logger     logging.Logger
	compute    ComputeFunc
	fitPadding int
	quickZoom  int

	launching atomic.Bool

	mu             sync.Mutex
	st             OverlayState
	state          State
	resultsVisible bool
	resultParams   *core.AsteroidParameters
	clickSub       mapsurface.Subscription

	subsMu  sync.RWMutex
	subs    map[int]func(Snapshot)
	nextSub int
}

// New creates a coordinator in StateIdle drawing on surface.
func New(surface mapsurface.Surface, opts ...Option) *Coordinator {
	c := &Coordinator{
		surface:    surface,
		logger:     logging.Nop{},
		compute:    impact.Compute,
		fitPadding: DefaultFitPaddingPx,
		quickZoom:  DefaultQuickLaunchZoom,
		subs:       make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bind subscribes to the surface's clicks. Clicks go to route when non-nil,
// letting callers serialize them through an event loop; otherwise they call
// OnMapClicked directly. Binding again replaces the previous subscription.
func (c *Coordinator) Bind(route mapsurface.ClickFunc) {
	if route == nil {
		route = func(lat, lng float64) {
			if err := c.OnMapClicked(lat, lng); err != nil {
				c.logger.Warn("map click rejected", "lat", lat, "lng", lng, "error", err)
			}
		}
	}
	sub := c.surface.OnClick(route)

	c.mu.Lock()
	prev := c.clickSub
	c.clickSub = sub
	c.mu.Unlock()

	if prev != nil {
		prev.Unsubscribe()
	}
}

// Subscribe registers fn for every published Snapshot and returns its cancel func.
// fn runs on the goroutine that made the change and may call back into the coordinator.
func (c *Coordinator) Subscribe(fn func(Snapshot)) (cancel func()) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = fn
	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		delete(c.subs, id)
	}
}

func (c *Coordinator) publish(s Snapshot) {
	c.subsMu.RLock()
	fns := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subsMu.RUnlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Snapshot returns the current published view.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked("")
}

// Overlay returns a copy of the tracked handles and records.
func (c *Coordinator) Overlay() OverlayState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

func (c *Coordinator) snapshotLocked(ev Event) Snapshot {
	s := Snapshot{
		State:          c.state,
		ResultsVisible: c.resultsVisible,
		CanLaunch:      c.st.ActiveSelection != nil,
		Layers:         len(c.st.Handles()),
		Event:          ev,
	}
	if c.st.ActiveSelection != nil {
		sel := *c.st.ActiveSelection
		s.Selection = &sel
	}
	if c.st.ActiveResult != nil {
		res := *c.st.ActiveResult
		s.Result = &res
	}
	if c.resultParams != nil {
		p := *c.resultParams
		s.Parameters = &p
	}
	return s
}

// OnMapClicked makes (lat, lng) the active selection. Longitude is wrapped
// into [-180, 180]; latitude outside [-90, 90] is rejected with
// geo.ErrInvalidCoordinates. Any displayed impact is cleared and the results
// panel hidden, the last result record is kept.
func (c *Coordinator) OnMapClicked(lat, lng float64) error {
	sel, err := geo.NewSelection(lat, lng)
	if err != nil {
		return err
	}

	c.mu.Lock()
	snap, err := c.selectLocked(sel)
	c.mu.Unlock()

	c.publish(snap)
	return err
}

func (c *Coordinator) selectLocked(sel core.Selection) (Snapshot, error) {
	c.removeImpactLayersLocked()
	c.removeLocked(&c.st.SelectionMarker)

	c.st.ActiveSelection = &sel
	c.resultsVisible = false
	c.state = StateSelected

	h, err := c.surface.AddMarker(sel.Latitude, sel.Longitude, SelectionIcon())
	if err != nil {
		c.logger.Error("selection marker not drawn", "selection", sel.String(), "error", err)
		return c.snapshotLocked(EventSelected), surfaceErr("draw selection marker", err)
	}
	c.st.SelectionMarker = h
	c.logger.Debug("target selected", "selection", sel.String(), "marker", h.String())
	return c.snapshotLocked(EventSelected), nil
}

// Launch computes the impact of params at the active selection and draws it:
// one impact marker and the fireball, thermal and shockwave rings in that
// order, then fits the view to them. Previous impact layers are removed
// before anything is added.
//
// Failures: ErrNoSelection with no surface calls; a compute error leaves the
// map untouched; an add failure removes what this launch drew and leaves
// nothing drawn. A concurrent Launch returns ErrLaunchInProgress.
func (c *Coordinator) Launch(params core.AsteroidParameters) (core.ImpactResult, error) {
	if !c.launching.CompareAndSwap(false, true) {
		return core.ImpactResult{}, ErrLaunchInProgress
	}
	defer c.launching.Store(false)

	c.mu.Lock()
	res, snap, publish, err := c.launchLocked(params)
	c.mu.Unlock()

	if publish {
		c.publish(snap)
	}
	return res, err
}

func (c *Coordinator) launchLocked(params core.AsteroidParameters) (core.ImpactResult, Snapshot, bool, error) {
	if c.st.ActiveSelection == nil {
		return core.ImpactResult{}, Snapshot{}, false, ErrNoSelection
	}
	sel := *c.st.ActiveSelection

	res, err := c.compute(params, sel)
	if err != nil {
		return core.ImpactResult{}, Snapshot{}, false, fmt.Errorf("compute impact: %w", err)
	}

	c.removeImpactLayersLocked()
	c.removeLocked(&c.st.SelectionMarker)

	fail := func(what string, err error) (core.ImpactResult, Snapshot, bool, error) {
		c.logger.Error("launch aborted", "step", what, "selection", sel.String(), "error", err)
		c.removeImpactLayersLocked()
		c.resultsVisible = false
		c.state = StateSelected
		return core.ImpactResult{}, c.snapshotLocked(EventLaunchFail), true, surfaceErr(what, err)
	}

	h, err := c.surface.AddMarker(sel.Latitude, sel.Longitude, ImpactIcon())
	if err != nil {
		return fail("draw impact marker", err)
	}
	c.st.ImpactMarker = h

	radii := RingRadiiMeters(res)
	for r := RingFireball; r < ringCount; r++ {
		h, err := c.surface.AddCircle(sel.Latitude, sel.Longitude, radii[r], RingStyle(r))
		if err != nil {
			return fail("draw "+r.String()+" ring", err)
		}
		c.st.DamageCircles[r] = h
	}

	if err := c.surface.FitBounds(c.st.impactHandles(), c.fitPadding); err != nil {
		c.logger.Warn("fit bounds failed", "error", err)
	}

	c.st.ActiveResult = &res
	c.resultParams = &params
	c.resultsVisible = true
	c.state = StateResolved
	c.logger.Info("impact resolved",
		"selection", sel.String(),
		"energy_mt", res.EnergyMegatonsTNT,
		"casualties", res.EstimatedCasualties,
	)
	return res, c.snapshotLocked(EventLaunched), true, nil
}

// QuickLaunch selects (lat, lng), centers the view there and launches.
// Centering failures are logged; they never clear the selection.
func (c *Coordinator) QuickLaunch(lat, lng float64, params core.AsteroidParameters) (core.ImpactResult, error) {
	if err := c.OnMapClicked(lat, lng); err != nil {
		if !errors.Is(err, mapsurface.ErrSurfaceUnavailable) {
			return core.ImpactResult{}, err
		}
		c.logger.Warn("quick launch continuing without selection marker", "error", err)
	}

	// a subscriber may have torn the overlay down in between
	sel := c.Snapshot().Selection
	if sel == nil {
		return core.ImpactResult{}, ErrNoSelection
	}
	if v, ok := c.surface.(mapsurface.Viewer); ok {
		if err := v.SetView(sel.Latitude, sel.Longitude, c.quickZoom); err != nil {
			c.logger.Warn("set view failed", "error", err)
		}
	}

	return c.Launch(params)
}

// Teardown removes every tracked layer, drops the click subscription and
// returns to StateIdle. Calling it again is a no-op.
func (c *Coordinator) Teardown() {
	c.mu.Lock()
	hadAnything := c.state != StateIdle || len(c.st.Handles()) > 0 || c.clickSub != nil

	c.removeImpactLayersLocked()
	c.removeLocked(&c.st.SelectionMarker)
	if c.clickSub != nil {
		c.clickSub.Unsubscribe()
		c.clickSub = nil
	}
	c.st = OverlayState{}
	c.resultsVisible = false
	c.resultParams = nil
	c.state = StateIdle
	snap := c.snapshotLocked(EventTornDown)
	c.mu.Unlock()

	if hadAnything {
		c.publish(snap)
	}
}

func (c *Coordinator) removeImpactLayersLocked() {
	c.removeLocked(&c.st.ImpactMarker)
	for i := range c.st.DamageCircles {
		c.removeLocked(&c.st.DamageCircles[i])
	}
}

// removeLocked removes *h from the surface and zeroes it. Failures are logged
// and treated as removed.
func (c *Coordinator) removeLocked(h *mapsurface.Handle) {
	if h.IsZero() {
		return
	}
	if err := c.surface.RemoveLayer(*h); err != nil {
		c.logger.Warn("layer removal failed, dropping handle", "layer", h.String(), "error", err)
	}
	*h = 0
}

func surfaceErr(op string, err error) error {
	if errors.Is(err, mapsurface.ErrSurfaceUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, mapsurface.ErrSurfaceUnavailable, err)
}
