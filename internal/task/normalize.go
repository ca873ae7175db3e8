package task

import (
	"sort"
	"strings"
)

// Participating fields: the fixed set over which conflicts are detected.
// Metadata, timestamps, id and the tombstone flag never participate.
const (
	FieldText      = "text"
	FieldCompleted = "completed"
	FieldTags      = "tags"
	FieldPriority  = "priority"
	FieldOrder     = "order"
)

// ParticipatingFields lists the conflict-detection field set in a stable order.
var ParticipatingFields = []string{FieldText, FieldCompleted, FieldTags, FieldPriority, FieldOrder}

// NormalizeText trims surrounding whitespace.
func NormalizeText(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeTags canonicalizes a tag set: tags are lowercased (a stable
// implementation choice, so devices that differ only in capitalization do
// not diverge), deduplicated, and sorted lexicographically.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// NormalizePriority substitutes the default for an absent priority.
func NormalizePriority(p int) int {
	if p == 0 {
		return PriorityDefault
	}
	return p
}

// NormalizeOrder substitutes zero for an absent order.
func NormalizeOrder(o int) int {
	return o
}

// NormalizedField returns the canonical value of a participating field.
// Unknown fields return nil.
func NormalizedField(t *Task, field string) any {
	switch field {
	case FieldText:
		return NormalizeText(t.Text)
	case FieldCompleted:
		return t.Completed
	case FieldTags:
		return NormalizeTags(t.Tags)
	case FieldPriority:
		return NormalizePriority(t.Priority)
	case FieldOrder:
		return NormalizeOrder(t.Order)
	}
	return nil
}

// RawField returns the stored (pre-normalization) value of a participating
// field, for conflict reporting.
func RawField(t *Task, field string) any {
	switch field {
	case FieldText:
		return t.Text
	case FieldCompleted:
		return t.Completed
	case FieldTags:
		return t.Tags
	case FieldPriority:
		return t.Priority
	case FieldOrder:
		return t.Order
	}
	return nil
}

// FieldsEqual reports deep structural equality over canonical values:
// scalars by value, sequences element-wise, mappings key-set and value
// equal.
func FieldsEqual(a, b any) bool {
	switch av := a.(type) {
	case []string:
		bv, ok := b.([]string)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !FieldsEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bval, ok := bv[k]
			if !ok || !FieldsEqual(v, bval) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// Equivalent reports whether two records agree on every participating field
// once normalized.
func Equivalent(a, b *Task) bool {
	for _, field := range ParticipatingFields {
		if !FieldsEqual(NormalizedField(a, field), NormalizedField(b, field)) {
			return false
		}
	}
	return true
}
