// Package server exposes the simulator over HTTP. Every state change goes
// through the dispatcher so HTTP requests, browser clicks and terminal input
// are applied in one order.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/spaceweb/impactsim/internal/config"
	"github.com/spaceweb/impactsim/internal/controls"
	"github.com/spaceweb/impactsim/internal/dispatcher"
	"github.com/spaceweb/impactsim/internal/geo"
	"github.com/spaceweb/impactsim/internal/handlers"
	"github.com/spaceweb/impactsim/internal/impact"
	"github.com/spaceweb/impactsim/internal/logging"
	"github.com/spaceweb/impactsim/internal/mapsurface"
	"github.com/spaceweb/impactsim/internal/metrics"
	"github.com/spaceweb/impactsim/internal/overlay"
	"github.com/spaceweb/impactsim/internal/parser"
	"github.com/spaceweb/impactsim/internal/storage"
	"github.com/spaceweb/impactsim/internal/storage/memory"
	"github.com/spaceweb/impactsim/pkg/core"
)

// DefaultImpactLimit caps GET /api/v1/impacts when no limit is given.
const DefaultImpactLimit = 100

// Dependencies holds everything the routes use. Only Dispatcher is required.
type Dependencies struct {
	Dispatcher *dispatcher.Dispatcher
	Backend    storage.Backend
	Hub        gin.HandlerFunc // serves /ws when set
	Metrics    *metrics.Collector
	Presets    []config.QuickLaunchPreset
	Logger     logging.Logger
}

type api struct {
	deps Dependencies
}

// NewRouter builds the gin engine.
func NewRouter(deps Dependencies) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = logging.Nop{}
	}
	a := &api{deps: deps}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(deps.Logger))

	r.GET("/healthcheck", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	if deps.Hub != nil {
		r.GET("/ws", deps.Hub)
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/state", a.state)
		v1.POST("/select", a.selectTarget)
		v1.POST("/launch", a.launch)
		v1.POST("/quick-launch/:target", a.quickLaunch)
		v1.POST("/teardown", a.teardown)
		v1.GET("/controls", a.state)
		v1.PUT("/controls", a.setControls)
		v1.GET("/presets", a.presets)
		v1.POST("/compute", a.compute)
		v1.GET("/impacts", a.impacts)
	}
	return r
}

func requestLogger(log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, parser.ErrUnknownTarget), errors.Is(err, controls.ErrUnknownPreset):
		return http.StatusNotFound
	case errors.Is(err, impact.ErrInvalidParameter),
		errors.Is(err, geo.ErrInvalidCoordinates),
		errors.Is(err, core.ErrUnknownMaterial),
		errors.Is(err, controls.ErrNotANumber),
		errors.Is(err, parser.ErrBadNumber),
		errors.Is(err, parser.ErrMissingArgs):
		return http.StatusBadRequest
	case errors.Is(err, overlay.ErrNoSelection), errors.Is(err, overlay.ErrLaunchInProgress):
		return http.StatusConflict
	case errors.Is(err, mapsurface.ErrSurfaceUnavailable),
		errors.Is(err, dispatcher.ErrClosed),
		errors.Is(err, dispatcher.ErrQueueFull):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func (a *api) dispatch(cmd string, args ...string) (any, error) {
	return a.deps.Dispatcher.Dispatch(dispatcher.Event{Command: cmd, Args: args})
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (a *api) state(c *gin.Context) {
	out, err := a.dispatch(handlers.CmdStatus)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type coordinatesRequest struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

func (a *api) selectTarget(c *gin.Context) {
	var req coordinatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := a.dispatch(handlers.CmdMapClick, ftoa(*req.Lat), ftoa(*req.Lng))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// parametersRequest overrides the controls for one launch or computation.
// Material is a name or a density.
type parametersRequest struct {
	Diameter float64 `json:"diameter"`
	Velocity float64 `json:"velocity"`
	Angle    float64 `json:"angle"`
	Material string  `json:"material"`
}

func (p *parametersRequest) args() []string {
	if p == nil {
		return nil
	}
	return []string{ftoa(p.Diameter), ftoa(p.Velocity), ftoa(p.Angle), p.Material}
}

type resultResponse struct {
	Result  core.ImpactResult `json:"result"`
	Summary [][2]string       `json:"summary"`
}

func newResultResponse(out any) resultResponse {
	res, _ := out.(core.ImpactResult)
	return resultResponse{Result: res, Summary: res.ResultLines()}
}

func (a *api) launch(c *gin.Context) {
	var req *parametersRequest
	if c.Request.ContentLength > 0 {
		req = &parametersRequest{}
		if err := c.ShouldBindJSON(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	out, err := a.dispatch(handlers.CmdLaunch, req.args()...)
	if err != nil {
		if errors.Is(err, overlay.ErrNoSelection) {
			a.deps.Metrics.Rejected()
		}
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newResultResponse(out))
}

func (a *api) quickLaunch(c *gin.Context) {
	out, err := a.dispatch(handlers.CmdQuickLaunch, c.Param("target"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newResultResponse(out))
}

func (a *api) teardown(c *gin.Context) {
	out, err := a.dispatch(handlers.CmdTeardown)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type controlsRequest struct {
	Diameter *float64 `json:"diameter"`
	Velocity *float64 `json:"velocity"`
	Angle    *float64 `json:"angle"`
	Material *string  `json:"material"`
	Preset   *string  `json:"preset"`
}

// setControls applies the given fields in order preset, diameter, velocity,
// angle, material and stops at the first error.
func (a *api) setControls(c *gin.Context) {
	var req controlsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	type step struct {
		cmd string
		arg *string
	}
	num := func(f *float64) *string {
		if f == nil {
			return nil
		}
		s := ftoa(*f)
		return &s
	}
	steps := []step{
		{handlers.CmdPresetDiameter, req.Preset},
		{handlers.CmdSetDiameter, num(req.Diameter)},
		{handlers.CmdSetVelocity, num(req.Velocity)},
		{handlers.CmdSetAngle, num(req.Angle)},
		{handlers.CmdSetMaterial, req.Material},
	}
	for _, s := range steps {
		if s.arg == nil {
			continue
		}
		if _, err := a.dispatch(s.cmd, *s.arg); err != nil {
			fail(c, err)
			return
		}
	}
	a.state(c)
}

func (a *api) presets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"diameter":    controls.DiameterPresets,
		"quickLaunch": a.deps.Presets,
		"ranges": gin.H{
			"diameter": controls.DiameterRange,
			"velocity": controls.VelocityRange,
			"angle":    controls.AngleRange,
		},
	})
}

type computeRequest struct {
	parametersRequest
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (a *api) compute(c *gin.Context) {
	var req computeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	args := append(req.parametersRequest.args(), ftoa(req.Lat), ftoa(req.Lng))
	out, err := a.dispatch(handlers.CmdCompute, args...)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newResultResponse(out))
}

func (a *api) impacts(c *gin.Context) {
	if a.deps.Backend == nil {
		c.JSON(http.StatusOK, gin.H{"impacts": []memory.ImpactJSON{}})
		return
	}
	limit := DefaultImpactLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	recs, err := a.deps.Backend.ListImpacts(ctx, limit)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]memory.ImpactJSON, 0, len(recs))
	for _, r := range recs {
		out = append(out, memory.NewImpactJSON(r))
	}
	c.JSON(http.StatusOK, gin.H{"impacts": out})
}

// Server owns the HTTP listener.
type Server struct {
	http *http.Server
	log  logging.Logger
}

// New creates a server listening on cfg.Address.
func New(cfg config.ServerConfig, deps Dependencies) *Server {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	log := deps.Logger
	if log == nil {
		log = logging.Nop{}
	}
	return &Server{
		http: &http.Server{
			Addr:              cfg.Address,
			Handler:           NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Handler returns the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", "address", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
