package task

import "sort"

// Collection is the full set of records for one user, keyed by id.
// The zero value is not usable; use make or FromSlice.
type Collection map[string]*Task

// FromSlice builds a collection from a record sequence.
// Duplicate ids keep the record with the greater LastModified, so a
// committed collection never carries the same id twice.
func FromSlice(tasks []*Task) Collection {
	col := make(Collection, len(tasks))
	for _, t := range tasks {
		if t == nil || t.ID == "" {
			continue
		}
		if prev, ok := col[t.ID]; ok && prev.ModifiedOrCreated() >= t.ModifiedOrCreated() {
			continue
		}
		col[t.ID] = t
	}
	return col
}

// Sorted returns the records sorted for display: by Order, then Timestamp,
// then id for determinism. Tombstoned records are excluded.
func (c Collection) Sorted() []*Task {
	out := make([]*Task, 0, len(c))
	for _, t := range c {
		if t.Deleted {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// All returns every record including tombstones, in unspecified order.
func (c Collection) All() []*Task {
	out := make([]*Task, 0, len(c))
	for _, t := range c {
		out = append(out, t)
	}
	return out
}

// Clone returns a deep copy of the collection.
func (c Collection) Clone() Collection {
	out := make(Collection, len(c))
	for id, t := range c {
		out[id] = t.Clone()
	}
	return out
}
