package merge

import "github.com/richardjkendall/todoapp/internal/task"

// Outcome summarizes one reconciliation pass.
type Outcome struct {
	Added          int
	Updated        int
	AutoResolved   int
	NeedsUserInput []Conflict
}

// Clean reports whether the pass completed without user-input conflicts.
func (o *Outcome) Clean() bool {
	return len(o.NeedsUserInput) == 0
}

// Merge drives Detect then Resolve and assembles the merged collection.
// Remote-sourced additions whose id appears in the deleted tombstone set are
// dropped rather than re-added. When the outcome is not Clean the returned
// collection excludes the unresolved ids and MUST NOT be committed as-is.
func Merge(local, remote task.Collection, deleted map[string]bool) (task.Collection, *Outcome) {
	result := Detect(local, remote)
	resolution := Resolve(result.Conflicts)

	merged := make(task.Collection, len(local)+len(remote))
	outcome := &Outcome{NeedsUserInput: resolution.NeedsUserInput}

	for _, sm := range result.SafeMerges {
		if sm.Kind == KindAdd && sm.Source == SourceRemote && deleted[sm.Task.ID] {
			continue
		}
		merged[sm.Task.ID] = sm.Task.Clone()
		switch sm.Kind {
		case KindAdd:
			outcome.Added++
		case KindUpdate:
			outcome.Updated++
		}
	}
	for _, rc := range resolution.Resolved {
		merged[rc.Merged.ID] = rc.Merged.Clone()
		outcome.AutoResolved++
	}
	return merged, outcome
}
