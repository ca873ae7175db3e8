// Package localfile persists the local collection mirror as a single JSON
// document so the UI shell (or an external editor, in daemon mode) can read
// and write it directly.
package localfile

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/richardjkendall/todoapp/internal/remote"
	"github.com/richardjkendall/todoapp/internal/task"
)

// DefaultName is the mirror filename inside the data directory.
const DefaultName = "todos.json"

// Load reads the mirror file. A missing file is an empty collection.
func Load(path string) (task.Collection, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return task.Collection{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	doc, err := remote.DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc.Collection(), nil
}

// Save writes the mirror file atomically via a temp file and rename.
func Save(path string, col task.Collection) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := remote.EncodeDocument(remote.NewDocument(col, time.Now()))
	if err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
