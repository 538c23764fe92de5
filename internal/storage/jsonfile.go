package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"billminder/internal/core"
)

// JSONFile stores the collection as one JSON array. Every save overwrites the
// whole file through a temp file and rename.
type JSONFile struct {
	path string
}

func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

func (f *JSONFile) Path() string { return f.path }

// Load returns an error wrapping os.ErrNotExist when nothing was saved yet.
func (f *JSONFile) Load(ctx context.Context) ([]core.Bill, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read bills file: %w", err)
	}

	var bills []core.Bill
	if err := json.Unmarshal(data, &bills); err != nil {
		return nil, fmt.Errorf("decode bills file %s: %w", f.path, err)
	}
	if bills == nil {
		bills = []core.Bill{}
	}
	return bills, nil
}

func (f *JSONFile) Save(ctx context.Context, bills []core.Bill) error {
	if bills == nil {
		bills = []core.Bill{}
	}
	data, err := json.MarshalIndent(bills, "", "  ")
	if err != nil {
		return fmt.Errorf("encode bills: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace bills file: %w", err)
	}

	slog.DebugContext(ctx, "Bills written to file", "path", f.path, "count", len(bills))
	return nil
}

func (f *JSONFile) Close() error { return nil }
