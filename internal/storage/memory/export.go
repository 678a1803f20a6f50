// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spaceweb/impactsim/pkg/core"
)

// ExportVersion is written into every history file.
const ExportVersion = 1

// ErrNoExport is returned by LatestExport when the directory holds no history file.
var ErrNoExport = errors.New("no impact history export found")

// ImpactExport is the root JSON structure
type ImpactExport struct {
	Version    int          `json:"version"`
	StartedAt  time.Time    `json:"startedAt"`
	ExportedAt time.Time    `json:"exportedAt"`
	Impacts    []ImpactJSON `json:"impacts"`
}

// ImpactJSON is one launch plus its display lines
type ImpactJSON struct {
	core.ImpactRecord
	Material string      `json:"material,omitempty"`
	Summary  [][2]string `json:"summary"`
}

// exportJSON writes the history to a gzipped or plain JSON file
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	name := "impacts_" + b.startedAt.Format("20060102_150405")
	if b.cfg.CompressOutput {
		name += ".json.gz"
	} else {
		name += ".json"
	}
	outputPath := filepath.Join(b.cfg.OutputDir, name)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if b.cfg.CompressOutput {
		if err := writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() ImpactExport {
	export := ImpactExport{
		Version:    ExportVersion,
		StartedAt:  b.startedAt,
		ExportedAt: time.Now().UTC(),
		Impacts:    make([]ImpactJSON, 0, len(b.records)),
	}
	for _, r := range b.records {
		export.Impacts = append(export.Impacts, NewImpactJSON(r))
	}
	return export
}

// NewImpactJSON annotates r with its material name and display lines.
func NewImpactJSON(r core.ImpactRecord) ImpactJSON {
	m, _ := r.Parameters.Material()
	return ImpactJSON{
		ImpactRecord: r,
		Material:     string(m),
		Summary:      r.Result.ResultLines(),
	}
}

func writeJSON(path string, data ImpactExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data ImpactExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}

// ReadExport decodes a history file written by Close. Gzip is detected by extension.
func ReadExport(path string) (*ImpactExport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	var export ImpactExport
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &export, nil
}

// LatestExport returns the newest history file in dir. File names sort by session start.
func LatestExport(dir string) (string, error) {
	var matches []string
	for _, pattern := range []string{"impacts_*.json", "impacts_*.json.gz"} {
		m, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return "", err
		}
		matches = append(matches, m...)
	}
	if len(matches) == 0 {
		return "", ErrNoExport
	}
	sort.Slice(matches, func(i, j int) bool {
		return strings.TrimSuffix(matches[i], ".gz") < strings.TrimSuffix(matches[j], ".gz")
	})
	return matches[len(matches)-1], nil
}

// Records returns the export's impacts as plain records, newest first.
func (e *ImpactExport) Records() []core.ImpactRecord {
	out := make([]core.ImpactRecord, 0, len(e.Impacts))
	for i := len(e.Impacts) - 1; i >= 0; i-- {
		out = append(out, e.Impacts[i].ImpactRecord)
	}
	return out
}
