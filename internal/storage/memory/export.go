// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/landmarkhunt/hunt/pkg/core"
)

// RecordsExport is the root JSON structure of an export file
type RecordsExport struct {
	StartedAt  time.Time         `json:"startedAt"`
	ExportedAt time.Time         `json:"exportedAt"`
	Count      int               `json:"count"`
	Records    []core.Resolution `json:"records"`
}

// exportJSON writes the records to a (optionally gzipped) JSON file
func (b *Backend) exportJSON() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	export := RecordsExport{
		StartedAt:  b.startedAt.UTC(),
		ExportedAt: time.Now().UTC(),
		Count:      len(b.records),
		Records:    b.records,
	}

	timestamp := export.ExportedAt.Format("20060102_150405")
	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("records_%s.json.gz", timestamp)
	} else {
		filename = fmt.Sprintf("records_%s.json", timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if b.cfg.CompressOutput {
		if err := writeGzipJSON(f, export); err != nil {
			return err
		}
	} else {
		if err := json.NewEncoder(f).Encode(export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func writeGzipJSON(w io.Writer, data any) error {
	gzWriter := gzip.NewWriter(w)
	if err := json.NewEncoder(gzWriter).Encode(data); err != nil {
		gzWriter.Close()
		return err
	}
	return gzWriter.Close()
}

// readSeed loads landmarks from a JSON array file, optionally gzipped.
func readSeed(path string) ([]core.Landmark, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if filepath.Ext(path) == ".gz" {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read seed file: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var landmarks []core.Landmark
	if err := json.NewDecoder(r).Decode(&landmarks); err != nil {
		return nil, fmt.Errorf("failed to decode seed file: %w", err)
	}
	return landmarks, nil
}
