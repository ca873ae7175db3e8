package merge

import (
	"math"

	"github.com/richardjkendall/todoapp/internal/task"
)

// Strategy selects how conflicts are resolved.
type Strategy string

const (
	// StrategyFieldBased applies a per-field policy and escalates only
	// conflicts that include a text disagreement. This is the default.
	StrategyFieldBased Strategy = "field-based"
	// StrategyTimestampBased replaces the whole record with the latest
	// side as one unit. Retained for comparison, not the default.
	StrategyTimestampBased Strategy = "timestamp-based"
)

// Field classes. Text is user-only: a text disagreement always escalates.
const (
	classUserOnly   = "user-only"
	classLatestWins = "latest-wins"
	classAverage    = "average"
	classUnion      = "union"
)

// fieldClass maps each participating field to its resolution policy.
var fieldClass = map[string]string{
	task.FieldText:      classUserOnly,
	task.FieldCompleted: classLatestWins,
	task.FieldPriority:  classLatestWins,
	task.FieldOrder:     classAverage,
	task.FieldTags:      classUnion,
}

// ResolvedConflict pairs a conflict with its automatically merged record.
type ResolvedConflict struct {
	Conflict Conflict
	Merged   *task.Task
}

// Resolution is the output of Resolve: the input conflicts partitioned into
// auto-resolved merges and conflicts that need user input.
type Resolution struct {
	Resolved       []ResolvedConflict
	NeedsUserInput []Conflict
}

// Resolve applies the field-class policies to each conflict. A conflict is
// auto-resolvable iff every disagreeing field is non-text; otherwise it is
// promoted intact.
func Resolve(conflicts []Conflict) Resolution {
	return ResolveWithStrategy(conflicts, StrategyFieldBased)
}

// ResolveWithStrategy resolves with an explicit strategy.
func ResolveWithStrategy(conflicts []Conflict, strategy Strategy) Resolution {
	var res Resolution
	for _, c := range conflicts {
		var merged *task.Task
		switch strategy {
		case StrategyTimestampBased:
			merged = latestWhole(c)
		default:
			merged = resolveFields(c)
		}
		if merged == nil {
			res.NeedsUserInput = append(res.NeedsUserInput, c)
			continue
		}
		res.Resolved = append(res.Resolved, ResolvedConflict{Conflict: c, Merged: merged})
	}
	return res
}

// resolveFields merges a conflict field by field, or returns nil when the
// conflict includes a user-only field.
func resolveFields(c Conflict) *task.Task {
	for _, d := range c.Fields {
		if fieldClass[d.Field] == classUserOnly {
			return nil
		}
	}

	merged := c.Local.Clone()
	for _, d := range c.Fields {
		switch fieldClass[d.Field] {
		case classLatestWins:
			src := c.Remote
			if c.Local.ModifiedOrCreated() > c.Remote.ModifiedOrCreated() {
				src = c.Local
			}
			applyField(merged, src, d.Field)
		case classAverage:
			merged.Order = int(math.Floor(float64(c.Local.Order+c.Remote.Order) / 2))
		case classUnion:
			merged.Tags = task.NormalizeTags(append(append([]string{}, c.Local.Tags...), c.Remote.Tags...))
		}
	}

	// Additive path: max of the two lastModified values, no timestamp
	// fallback.
	merged.LastModified = maxInt64(c.Local.LastModified, c.Remote.LastModified)
	return merged
}

// ApplyFieldChoices settles an escalated conflict from explicit per-field
// picks: fields mapped to SourceRemote take the remote value, everything
// else keeps the local one.
func ApplyFieldChoices(c Conflict, choices map[string]Source) *task.Task {
	merged := c.Local.Clone()
	for _, d := range c.Fields {
		if choices[d.Field] == SourceRemote {
			applyField(merged, c.Remote, d.Field)
		}
	}
	merged.LastModified = maxInt64(c.Local.LastModified, c.Remote.LastModified)
	return merged
}

// latestWhole replaces the record with the latest side; ties prefer remote.
func latestWhole(c Conflict) *task.Task {
	if c.Local.ModifiedOrCreated() > c.Remote.ModifiedOrCreated() {
		return c.Local.Clone()
	}
	return c.Remote.Clone()
}

func applyField(dst, src *task.Task, field string) {
	switch field {
	case task.FieldText:
		dst.Text = src.Text
	case task.FieldCompleted:
		dst.Completed = src.Completed
	case task.FieldPriority:
		dst.Priority = src.Priority
	case task.FieldOrder:
		dst.Order = src.Order
	case task.FieldTags:
		dst.Tags = append([]string(nil), src.Tags...)
	}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
