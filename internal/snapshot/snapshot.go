// Package snapshot dumps a document collection to disk.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"storefront/internal/docstore"
)

// FileName is the per-snapshot dump file.
const FileName = "documents.json"

// Source streams the documents to snapshot.
type Source interface {
	Name() string
	Stream(ctx context.Context, fn func(docstore.Document) error) error
}

type Snapshotter interface {
	WriteSnapshot(ctx context.Context, snapshotID string, src Source) (int, error)
}

// Dump is the on-disk form: document id to body.
type Dump struct {
	Collection string                     `json:"collection"`
	Documents  map[string]docstore.Fields `json:"documents"`
}

type FilesystemSnapshotter struct {
	baseDir string
}

func NewFilesystemSnapshotter(baseDir string) *FilesystemSnapshotter {
	return &FilesystemSnapshotter{baseDir: baseDir}
}

// Path returns the dump file of a snapshot.
func (f *FilesystemSnapshotter) Path(snapshotID string) string {
	return filepath.Join(f.baseDir, snapshotID, FileName)
}

// WriteSnapshot writes every document of src and returns how many it wrote.
func (f *FilesystemSnapshotter) WriteSnapshot(ctx context.Context, snapshotID string, src Source) (int, error) {
	if err := os.MkdirAll(filepath.Join(f.baseDir, snapshotID), 0o755); err != nil {
		return 0, fmt.Errorf("mkdir: %w", err)
	}
	dump := Dump{Collection: src.Name(), Documents: make(map[string]docstore.Fields)}
	if err := src.Stream(ctx, func(d docstore.Document) error {
		dump.Documents[d.ID] = d.Fields
		return nil
	}); err != nil {
		return 0, fmt.Errorf("stream %s: %w", src.Name(), err)
	}

	out, err := os.Create(f.Path(snapshotID))
	if err != nil {
		return 0, fmt.Errorf("create: %w", err)
	}
	defer out.Close()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&dump); err != nil {
		return 0, fmt.Errorf("encode: %w", err)
	}
	return len(dump.Documents), nil
}

// Read loads a dump written by WriteSnapshot.
func Read(path string) (Dump, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Dump{}, err
	}
	var d Dump
	if err := json.Unmarshal(data, &d); err != nil {
		return Dump{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return d, nil
}
