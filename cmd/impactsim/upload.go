package main

import (
	"context"
	"fmt"

	"github.com/spaceweb/impactsim/internal/api"
	"github.com/spaceweb/impactsim/internal/config"
	"github.com/spaceweb/impactsim/internal/logging"
	"github.com/spaceweb/impactsim/internal/storage"
)

// uploadExport sends the history file a closed backend left behind to the
// configured collector. Backends that export nothing are skipped.
func uploadExport(ctx context.Context, cfg config.UploadConfig, backend storage.Backend, log logging.Logger) error {
	if !cfg.Enabled {
		return nil
	}
	exportable, ok := backend.(storage.Exportable)
	if !ok {
		log.Debug("Storage backend has no export to upload")
		return nil
	}
	path := exportable.GetExportedFilePath()
	if path == "" {
		log.Info("No history export to upload")
		return nil
	}

	records, err := backend.ListImpacts(ctx, 0)
	if err != nil {
		return fmt.Errorf("count impacts: %w", err)
	}

	client := api.New(cfg.ServerURL, cfg.APIKey)
	if err := client.Upload(ctx, path, api.UploadMetadata{
		Service:   logging.ServiceName,
		StartedAt: SessionStartTime,
		Impacts:   len(records),
		Tag:       cfg.Tag,
	}); err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	log.Info("Uploaded impact history", "path", path, "impacts", len(records), "server", cfg.ServerURL)
	return nil
}

// checkCollector warns early when uploads are enabled but the collector is down.
func checkCollector(ctx context.Context, cfg config.UploadConfig, log logging.Logger) {
	if !cfg.Enabled {
		return
	}
	if err := api.New(cfg.ServerURL, cfg.APIKey).Healthcheck(ctx); err != nil {
		log.Warn("Upload collector unreachable, history will be kept locally", "server", cfg.ServerURL, "error", err)
	}
}
