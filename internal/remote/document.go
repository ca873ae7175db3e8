// Package remote reads and writes the cloud replica: a single JSON blob
// holding the whole task collection. The identity provider and the object
// store itself are collaborators behind the TokenSource and Store
// interfaces.
package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/richardjkendall/todoapp/internal/task"
)

// DocumentVersion is the current blob schema version.
const DocumentVersion = "1.0"

// Document is the remote blob format.
type Document struct {
	Version    string       `json:"version"`
	ExportedAt string       `json:"exportedAt"`
	Todos      []*task.Task `json:"todos"`
}

// NewDocument wraps a collection in the current blob format.
func NewDocument(col task.Collection, now time.Time) *Document {
	return &Document{
		Version:    DocumentVersion,
		ExportedAt: now.UTC().Format(time.RFC3339),
		Todos:      col.All(),
	}
}

// Collection returns the document's records as a collection, with defaults
// applied.
func (d *Document) Collection() task.Collection {
	for _, t := range d.Todos {
		t.SetDefaults()
	}
	return task.FromSlice(d.Todos)
}

// EncodeDocument marshals the document in the object form.
func EncodeDocument(d *Document) ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return data, nil
}

// DecodeDocument parses a remote blob. Both the versioned object form and
// the legacy bare array of records are accepted.
func DecodeDocument(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return &Document{Version: DocumentVersion}, nil
	}

	if trimmed[0] == '[' {
		var todos []*task.Task
		if err := json.Unmarshal(trimmed, &todos); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		return &Document{Version: DocumentVersion, Todos: todos}, nil
	}

	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if doc.Version == "" {
		doc.Version = DocumentVersion
	}
	return &doc, nil
}
