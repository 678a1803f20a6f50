package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaceweb/impactsim/internal/api"
	"github.com/spaceweb/impactsim/internal/config"
	"github.com/spaceweb/impactsim/internal/logging"
	memstorage "github.com/spaceweb/impactsim/internal/storage/memory"
	"github.com/spaceweb/impactsim/pkg/core"
)

func closedMemoryBackend(t *testing.T, impacts int) *memstorage.Backend {
	t.Helper()
	b := memstorage.New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.Init())
	for i := 0; i < impacts; i++ {
		require.NoError(t, b.RecordImpact(&core.ImpactRecord{
			ID:         uuid.New(),
			LaunchedAt: time.Now().UTC(),
			Parameters: core.AsteroidParameters{DiameterMeters: 100, VelocityKmPerSec: 20, ImpactAngleDegrees: 45, DensityKgM3: core.DensityRock},
		}))
	}
	require.NoError(t, b.Close())
	return b
}

func TestUploadExport(t *testing.T) {
	got := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, api.UploadPath, r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(10<<20))
		got <- r.FormValue("impacts")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	b := closedMemoryBackend(t, 2)
	require.NotEmpty(t, b.GetExportedFilePath())

	cfg := config.UploadConfig{Enabled: true, ServerURL: server.URL, APIKey: "k"}
	require.NoError(t, uploadExport(context.Background(), cfg, b, logging.Nop{}))
	assert.Equal(t, "2", <-got)
}

func TestUploadExport_Skipped(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.UploadConfig{Enabled: true, ServerURL: server.URL}

	// nothing recorded, nothing exported
	require.NoError(t, uploadExport(context.Background(), cfg, closedMemoryBackend(t, 0), logging.Nop{}))

	cfg.Enabled = false
	require.NoError(t, uploadExport(context.Background(), cfg, closedMemoryBackend(t, 1), logging.Nop{}))
	assert.Zero(t, calls.Load())
}

func TestUploadExport_ServerRejects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.UploadConfig{Enabled: true, ServerURL: server.URL}
	err := uploadExport(context.Background(), cfg, closedMemoryBackend(t, 1), logging.Nop{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
