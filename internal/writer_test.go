package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sensiblebit/catrust/internal/truststore"
)

func TestWriteArtifacts(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	artifacts := []truststore.Artifact{
		{Format: "pem-bundle", Path: filepath.Join(dir, "out", "bundle.pem"), Data: []byte("bundle\n")},
		{Format: "json-index", Path: filepath.Join(dir, "index.json"), Data: []byte("{}\n")},
	}

	if err := WriteArtifacts(artifacts); err != nil {
		t.Fatalf("WriteArtifacts: %v", err)
	}
	for _, a := range artifacts {
		data, err := os.ReadFile(a.Path)
		if err != nil {
			t.Fatalf("read %s: %v", a.Path, err)
		}
		if string(data) != string(a.Data) {
			t.Errorf("%s holds %q, want %q", a.Path, data, a.Data)
		}
		info, err := os.Stat(a.Path)
		if err != nil {
			t.Fatalf("stat %s: %v", a.Path, err)
		}
		if info.Mode().Perm() != 0o644 {
			t.Errorf("%s mode = %v, want 0644", a.Path, info.Mode().Perm())
		}
	}
}

func TestWriteArtifactsOverwrites(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bundle.pem")
	if err := os.WriteFile(path, []byte("stale"), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	err := WriteArtifacts([]truststore.Artifact{
		{Format: "pem-bundle", Path: path, Data: []byte("fresh")},
	})
	if err != nil {
		t.Fatalf("WriteArtifacts: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "fresh" {
		t.Errorf("file holds %q", data)
	}
}

func TestWriteArtifactsLeavesNoTempFiles(t *testing.T) {
	// WHY: The temp-and-rename dance must clean up after itself; leftover
	// dotfiles next to trust stores confuse consumers that glob the
	// directory.
	t.Parallel()
	dir := t.TempDir()
	err := WriteArtifacts([]truststore.Artifact{
		{Format: "json-index", Path: filepath.Join(dir, "index.json"), Data: []byte("{}")},
	})
	if err != nil {
		t.Fatalf("WriteArtifacts: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "index.json" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("directory holds %v, want only index.json", names)
	}
}
