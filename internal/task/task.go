// Package task provides the task record model and its canonical forms.
//
// A Task is a flat record with last-write-wins friendly fields: every field
// can be edited independently, and the LastModified timestamp is what the
// sync layer uses to resolve divergent edits. Canonicalization rules live
// here so that conflict detection and fingerprinting agree on what "equal"
// means.
package task

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Priority bounds. 5 is highest, 3 is the default.
const (
	PriorityMin     = 1
	PriorityMax     = 5
	PriorityDefault = 3
)

// Task represents a single task record.
//
// Timestamp and LastModified are milliseconds since the Unix epoch, matching
// the cloud blob format. Metadata is an opaque extension bag: it is
// round-tripped but never participates in conflict detection or
// fingerprinting.
type Task struct {
	ID           string         `json:"id"`
	Text         string         `json:"text"`
	Completed    bool           `json:"completed"`
	Tags         []string       `json:"tags,omitempty"`
	Priority     int            `json:"priority"`
	Order        int            `json:"order"`
	Timestamp    int64          `json:"timestamp"`
	LastModified int64          `json:"lastModified"`
	Deleted      bool           `json:"deleted,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// New creates a task with a fresh id and both timestamps set to now.
func New(text string, now time.Time) *Task {
	ms := now.UnixMilli()
	return &Task{
		ID:           uuid.NewString(),
		Text:         text,
		Priority:     PriorityDefault,
		Timestamp:    ms,
		LastModified: ms,
	}
}

// Validate checks the record invariants.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.Priority < PriorityMin || t.Priority > PriorityMax {
		return fmt.Errorf("priority must be between %d and %d (got %d)", PriorityMin, PriorityMax, t.Priority)
	}
	if t.Timestamp == 0 {
		return fmt.Errorf("timestamp is required")
	}
	if t.LastModified < t.Timestamp {
		return fmt.Errorf("lastModified %d precedes timestamp %d", t.LastModified, t.Timestamp)
	}
	return nil
}

// SetDefaults applies default values for optional fields.
// This keeps records read from older blobs usable without special cases.
func (t *Task) SetDefaults() {
	if t.Priority == 0 {
		t.Priority = PriorityDefault
	}
	if t.Timestamp == 0 {
		t.Timestamp = time.Now().UnixMilli()
	}
	if t.LastModified < t.Timestamp {
		t.LastModified = t.Timestamp
	}
}

// Touch bumps LastModified to now. Call on every user-visible edit.
func (t *Task) Touch(now time.Time) {
	t.LastModified = now.UnixMilli()
}

// ModifiedOrCreated returns the instant used for latest-wins tie-breaks:
// LastModified, falling back to Timestamp, falling back to 0.
func (t *Task) ModifiedOrCreated() int64 {
	if t.LastModified != 0 {
		return t.LastModified
	}
	return t.Timestamp
}

// Clone returns a deep copy of the record.
func (t *Task) Clone() *Task {
	c := *t
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	if t.Metadata != nil {
		c.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Age returns how long ago the record was last modified.
func (t *Task) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(t.ModifiedOrCreated()))
}
