package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaceweb/impactsim/internal/config"
	"github.com/spaceweb/impactsim/internal/dispatcher"
	"github.com/spaceweb/impactsim/internal/handlers"
	mapmemory "github.com/spaceweb/impactsim/internal/mapsurface/memory"
	"github.com/spaceweb/impactsim/internal/metrics"
	"github.com/spaceweb/impactsim/internal/overlay"
	"github.com/spaceweb/impactsim/internal/parser"
	"github.com/spaceweb/impactsim/internal/storage/memory"
	"github.com/spaceweb/impactsim/internal/worker"
)

type fixture struct {
	router  *gin.Engine
	backend *memory.Backend
	metrics *metrics.Collector
	surface *mapmemory.Surface
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	surface := mapmemory.New()
	coord := overlay.New(surface)
	d, err := dispatcher.New(nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = d.Close(ctx)
	})

	p := parser.NewParser(nil, config.DefaultQuickLaunch)
	handlers.NewService(handlers.Dependencies{Coordinator: coord, Parser: p}).Register(d)

	backend := memory.New(config.MemoryConfig{})
	require.NoError(t, backend.Init())
	collector, err := metrics.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	collector.Watch(coord)

	w := worker.NewManager(worker.Dependencies{Parser: p, Backend: backend, Sinks: []worker.Sink{collector}})
	w.RegisterHandlers(d)
	w.Watch(coord, d)

	router := NewRouter(Dependencies{
		Dispatcher: d,
		Backend:    backend,
		Metrics:    collector,
		Presets:    config.DefaultQuickLaunch,
	})
	return &fixture{router: router, backend: backend, metrics: collector, surface: surface}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

type statusBody struct {
	Overlay struct {
		State          string `json:"state"`
		CanLaunch      bool   `json:"canLaunch"`
		ResultsVisible bool   `json:"resultsVisible"`
		Layers         int    `json:"layers"`
	} `json:"overlay"`
	Controls struct {
		Diameter float64 `json:"diameter"`
		Velocity float64 `json:"velocity"`
		Angle    float64 `json:"angle"`
		Material string  `json:"material"`
	} `json:"controls"`
	LaunchLabel string `json:"launchLabel"`
}

type resultBody struct {
	Result struct {
		EnergyMegatonsTNT   float64 `json:"energyMegatonsTNT"`
		EstimatedCasualties int64   `json:"estimatedCasualties"`
	} `json:"result"`
	Summary [][2]string `json:"summary"`
}

func TestHealthcheck(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/healthcheck", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestState_Initial(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/api/v1/state", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	st := decode[statusBody](t, rr)
	assert.Equal(t, "idle", st.Overlay.State)
	assert.False(t, st.Overlay.CanLaunch)
	assert.Equal(t, 100.0, st.Controls.Diameter)
	assert.Equal(t, "LAUNCH ROCK ASTEROID", st.LaunchLabel)
}

func TestLaunchFlow(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/api/v1/launch", nil)
	assert.Equal(t, http.StatusConflict, rr.Code, "no selection")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Launches.WithLabelValues(metrics.OutcomeRejected)))

	rr = f.do(t, http.MethodPost, "/api/v1/select", map[string]float64{"lat": 40.7128, "lng": -74.0060})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "selected", decode[statusBody](t, rr).Overlay.State)

	rr = f.do(t, http.MethodPost, "/api/v1/launch", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[resultBody](t, rr)
	assert.InDelta(t, 75.0859, res.Result.EnergyMegatonsTNT, 1e-3)
	assert.Equal(t, int64(1314721), res.Result.EstimatedCasualties)
	require.NotEmpty(t, res.Summary)
	assert.Equal(t, "75.09 Megatons", res.Summary[0][1])

	rr = f.do(t, http.MethodGet, "/api/v1/state", nil)
	st := decode[statusBody](t, rr)
	assert.Equal(t, "resolved", st.Overlay.State)
	assert.True(t, st.Overlay.ResultsVisible)
	assert.Equal(t, 4, st.Overlay.Layers)

	require.Eventually(t, func() bool { return f.backend.Len() == 1 }, time.Second, 5*time.Millisecond)
	rr = f.do(t, http.MethodGet, "/api/v1/impacts", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Impacts []struct {
			ID       string      `json:"id"`
			Material string      `json:"material"`
			Summary  [][2]string `json:"summary"`
		} `json:"impacts"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Impacts, 1)
	assert.Equal(t, "rock", list.Impacts[0].Material)
	assert.NotEmpty(t, list.Impacts[0].ID)

	rr = f.do(t, http.MethodPost, "/api/v1/teardown", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, f.surface.Layers())
}

func TestLaunch_ExplicitParameters(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/v1/select", map[string]float64{"lat": 0, "lng": 0})

	rr := f.do(t, http.MethodPost, "/api/v1/launch", map[string]any{
		"diameter": 10, "velocity": 11, "angle": 90, "material": "ice",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[resultBody](t, rr)
	assert.InDelta(t, 0.0075712, res.Result.EnergyMegatonsTNT, 1e-6)
	assert.Equal(t, int64(3028), res.Result.EstimatedCasualties)

	rr = f.do(t, http.MethodPost, "/api/v1/launch", map[string]any{
		"diameter": 10, "velocity": 11, "angle": 95, "material": "ice",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSelect_Validation(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/api/v1/select", map[string]float64{"lat": 95, "lng": 0})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/v1/select", map[string]float64{"lat": 10})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "lng is required")
}

func TestQuickLaunch(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/api/v1/quick-launch/Paris", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Greater(t, decode[resultBody](t, rr).Result.EnergyMegatonsTNT, 0.0)

	rr = f.do(t, http.MethodPost, "/api/v1/quick-launch/Atlantis", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestControls(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPut, "/api/v1/controls", map[string]any{
		"preset": "Stadium", "velocity": 200, "angle": 33, "material": "iron",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	st := decode[statusBody](t, rr)
	assert.Equal(t, 50.0, st.Controls.Diameter)
	assert.Equal(t, 70.0, st.Controls.Velocity, "clamped")
	assert.Equal(t, 35.0, st.Controls.Angle, "snapped")
	assert.Equal(t, "iron", st.Controls.Material)
	assert.Equal(t, "LAUNCH IRON ASTEROID", st.LaunchLabel)

	rr = f.do(t, http.MethodPut, "/api/v1/controls", map[string]any{"preset": "Moon"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodPut, "/api/v1/controls", map[string]any{"material": "plasma"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPresets(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/api/v1/presets", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Diameter []struct {
			Name   string  `json:"name"`
			Meters float64 `json:"meters"`
		} `json:"diameter"`
		QuickLaunch []config.QuickLaunchPreset `json:"quickLaunch"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Diameter, 4)
	assert.Equal(t, "Golden Gate", body.Diameter[3].Name)
	assert.Len(t, body.QuickLaunch, 6)
}

func TestCompute(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/api/v1/compute", map[string]any{
		"diameter": 100, "velocity": 20, "angle": 45, "material": "3000", "lat": 51.5, "lng": -0.12,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.InDelta(t, 75.0859, decode[resultBody](t, rr).Result.EnergyMegatonsTNT, 1e-3)
	assert.Empty(t, f.surface.Ops(), "compute never draws")

	rr = f.do(t, http.MethodPost, "/api/v1/compute", map[string]any{
		"diameter": 0, "velocity": 20, "angle": 45, "material": "rock",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestImpacts_Limit(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/api/v1/impacts?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/v1/impacts?limit=5", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"impacts":[]}`, rr.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "impactsim_overlay_layers")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(overlay.ErrLaunchInProgress))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(dispatcher.ErrQueueFull))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	d, err := dispatcher.New(nil)
	require.NoError(t, err)
	s := New(config.ServerConfig{Address: "127.0.0.1:0", Mode: gin.TestMode}, Dependencies{Dispatcher: d})
	assert.NotNil(t, s.Handler())
	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, s.Start(), "ErrServerClosed is a clean stop")
}
