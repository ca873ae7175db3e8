// Package merge implements field-level conflict detection and resolution
// between a local and a remote task collection.
//
// Detection is total over the union of ids and partitions it: every id ends
// up in exactly one safe merge or one conflict. Resolution then applies a
// per-field policy and splits the conflicts into auto-resolved merges and
// those that need user input.
package merge

import (
	"sort"

	"github.com/richardjkendall/todoapp/internal/task"
)

// MergeKind classifies a safe merge.
type MergeKind string

const (
	// KindAdd is a record present on exactly one side.
	KindAdd MergeKind = "add"
	// KindUpdate is a record present on both sides that differs only in
	// non-participating fields.
	KindUpdate MergeKind = "update"
)

// Source tags the provenance of a safe merge.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// SafeMerge is a reconciliation outcome that requires no choice between
// divergent edits.
type SafeMerge struct {
	Kind   MergeKind
	Source Source
	Task   *task.Task
}

// FieldDiff records one field-level disagreement.
type FieldDiff struct {
	Field            string
	LocalValue       any
	RemoteValue      any
	LocalNormalized  any
	RemoteNormalized any
}

// Conflict carries both sides of a diverged record and the list of
// disagreeing participating fields.
type Conflict struct {
	ID     string
	Local  *task.Task
	Remote *task.Task
	Fields []FieldDiff
}

// HasField reports whether the named field is among the disagreements.
func (c *Conflict) HasField(name string) bool {
	for _, d := range c.Fields {
		if d.Field == name {
			return true
		}
	}
	return false
}

// Result is the output of Detect.
type Result struct {
	SafeMerges []SafeMerge
	Conflicts  []Conflict
}

// Detect compares two collections and partitions the union of their ids
// into safe merges and field-level conflicts. It is deterministic: ids are
// visited in sorted order.
func Detect(local, remote task.Collection) Result {
	ids := make([]string, 0, len(local)+len(remote))
	seen := make(map[string]bool, len(local)+len(remote))
	for id := range local {
		ids = append(ids, id)
		seen[id] = true
	}
	for id := range remote {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var res Result
	for _, id := range ids {
		l, hasLocal := local[id]
		r, hasRemote := remote[id]

		switch {
		case hasLocal && !hasRemote:
			res.SafeMerges = append(res.SafeMerges, SafeMerge{Kind: KindAdd, Source: SourceLocal, Task: l})
		case !hasLocal && hasRemote:
			res.SafeMerges = append(res.SafeMerges, SafeMerge{Kind: KindAdd, Source: SourceRemote, Task: r})
		default:
			diffs := fieldDiffs(l, r)
			if len(diffs) == 0 {
				res.SafeMerges = append(res.SafeMerges, newerSide(l, r))
				continue
			}
			res.Conflicts = append(res.Conflicts, Conflict{ID: id, Local: l, Remote: r, Fields: diffs})
		}
	}
	return res
}

// fieldDiffs computes the disagreements over the participating field set.
func fieldDiffs(l, r *task.Task) []FieldDiff {
	var diffs []FieldDiff
	for _, field := range task.ParticipatingFields {
		ln := task.NormalizedField(l, field)
		rn := task.NormalizedField(r, field)
		if task.FieldsEqual(ln, rn) {
			continue
		}
		diffs = append(diffs, FieldDiff{
			Field:            field,
			LocalValue:       task.RawField(l, field),
			RemoteValue:      task.RawField(r, field),
			LocalNormalized:  ln,
			RemoteNormalized: rn,
		})
	}
	return diffs
}

// newerSide picks the side with the greater lastModified (falling back to
// timestamp, then 0); ties prefer the remote side.
func newerSide(l, r *task.Task) SafeMerge {
	if l.ModifiedOrCreated() > r.ModifiedOrCreated() {
		return SafeMerge{Kind: KindUpdate, Source: SourceLocal, Task: l}
	}
	return SafeMerge{Kind: KindUpdate, Source: SourceRemote, Task: r}
}
