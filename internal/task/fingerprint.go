package task

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
)

// Fingerprint computes an order-invariant hash over the participating
// fields of every record in the collection. It is used to suppress no-op
// remote writes: two collections that differ only in record ordering or
// Metadata churn produce the same fingerprint.
func Fingerprint(c Collection) string {
	lines := make([]string, 0, len(c))
	for id, t := range c {
		lines = append(lines, fmt.Sprintf("%s|%s|%t|%s|%d|%d|%t",
			id,
			NormalizeText(t.Text),
			t.Completed,
			strings.Join(NormalizeTags(t.Tags), ","),
			NormalizePriority(t.Priority),
			NormalizeOrder(t.Order),
			t.Deleted,
		))
	}
	sort.Strings(lines)

	h := fnv.New64a()
	for _, line := range lines {
		_, _ = h.Write([]byte(line))
		_, _ = h.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
