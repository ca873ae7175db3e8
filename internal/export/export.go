// Package export converts the task collection to and from interchange
// formats: the JSON blob schema, CSV, plain text, and Markdown task lists.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/richardjkendall/todoapp/internal/remote"
	"github.com/richardjkendall/todoapp/internal/task"
)

// Format names an interchange format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
)

// csvHeader is the fixed CSV column set.
var csvHeader = []string{"Text", "Tags", "Priority", "Completed", "Created Date"}

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(name)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatText:
		return FormatText, nil
	case FormatMarkdown:
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown format %q (want json, csv, text, or markdown)", name)
}

// Export writes the collection to w in the given format.
func Export(w io.Writer, col task.Collection, format Format) error {
	switch format {
	case FormatJSON:
		data, err := remote.EncodeDocument(remote.NewDocument(col, time.Now()))
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case FormatCSV:
		return exportCSV(w, col)
	case FormatText:
		return exportText(w, col)
	case FormatMarkdown:
		return exportMarkdown(w, col)
	}
	return fmt.Errorf("unknown format %q", format)
}

func exportCSV(w io.Writer, col task.Collection) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, t := range col.Sorted() {
		record := []string{
			t.Text,
			strings.Join(task.NormalizeTags(t.Tags), ";"),
			strconv.Itoa(task.NormalizePriority(t.Priority)),
			strconv.FormatBool(t.Completed),
			time.UnixMilli(t.Timestamp).UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func exportText(w io.Writer, col task.Collection) error {
	for _, t := range col.Sorted() {
		if _, err := fmt.Fprintln(w, textLine(t)); err != nil {
			return err
		}
	}
	return nil
}

// textLine renders one record as "[x] text #tag !3".
func textLine(t *task.Task) string {
	var b strings.Builder
	if t.Completed {
		b.WriteString("[x] ")
	} else {
		b.WriteString("[ ] ")
	}
	b.WriteString(t.Text)
	for _, tag := range task.NormalizeTags(t.Tags) {
		b.WriteString(" #")
		b.WriteString(tag)
	}
	fmt.Fprintf(&b, " !%d", task.NormalizePriority(t.Priority))
	return b.String()
}

func exportMarkdown(w io.Writer, col task.Collection) error {
	var pending, completed []*task.Task
	for _, t := range col.Sorted() {
		if t.Completed {
			completed = append(completed, t)
		} else {
			pending = append(pending, t)
		}
	}

	if _, err := fmt.Fprintln(w, "## Pending"); err != nil {
		return err
	}
	for _, t := range pending {
		if _, err := fmt.Fprintf(w, "- %s\n", textLine(t)); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, "\n## Completed"); err != nil {
		return err
	}
	for _, t := range completed {
		if _, err := fmt.Fprintf(w, "- %s\n", textLine(t)); err != nil {
			return err
		}
	}
	return nil
}
