package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sensiblebit/catrust/internal/truststore"
)

// WriteArtifacts persists emitted artifacts to their destinations. Each file
// is written to a temporary sibling and renamed into place, so a crash or
// failure mid-run never leaves a partially-written trust store behind.
// Callers invoke this only for successful runs; a failed run writes nothing.
func WriteArtifacts(artifacts []truststore.Artifact) error {
	for _, a := range artifacts {
		if err := writeAtomic(a.Path, a.Data); err != nil {
			return fmt.Errorf("writing %s artifact: %w", a.Format, err)
		}
		slog.Info("wrote artifact", "format", a.Format, "path", a.Path, "bytes", len(a.Data))
	}
	return nil
}

// writeAtomic writes data to path via a temp file in the same directory.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}
