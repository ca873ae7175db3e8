package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/richardjkendall/todoapp/internal/remote"
	"github.com/richardjkendall/todoapp/internal/task"
)

// Result summarizes an import run.
type Result struct {
	Imported      int
	Skipped       int
	BackupCreated string
}

// BackupFile copies path to a timestamped sibling before a destructive
// import overwrites it. A missing source is not an error; the returned
// path is empty.
func BackupFile(path string) (string, error) {
	input, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read input for backup: %w", err)
	}
	backupPath := path + ".backup." + time.Now().Format("20060102-150405")
	if err := os.WriteFile(backupPath, input, 0600); err != nil {
		return "", fmt.Errorf("failed to create backup: %w", err)
	}
	return backupPath, nil
}

// Import parses records from r in the given format. Formats without an id
// column (csv, text, markdown) get fresh ids and now-based timestamps.
func Import(r io.Reader, format Format, now time.Time) (task.Collection, *Result, error) {
	switch format {
	case FormatJSON:
		return importJSON(r)
	case FormatCSV:
		return importCSV(r, now)
	case FormatText:
		return importText(r, now)
	case FormatMarkdown:
		return importMarkdown(r, now)
	}
	return nil, nil, fmt.Errorf("unknown format %q", format)
}

func importJSON(r io.Reader) (task.Collection, *Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read input: %w", err)
	}
	doc, err := remote.DecodeDocument(data)
	if err != nil {
		return nil, nil, err
	}
	col := doc.Collection()
	return col, &Result{Imported: len(col)}, nil
}

func importCSV(r io.Reader, now time.Time) (task.Collection, *Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	col := task.Collection{}
	result := &Result{}
	first := true
	order := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse CSV: %w", err)
		}
		if first {
			first = false
			if len(record) > 0 && strings.EqualFold(record[0], "Text") {
				continue
			}
		}
		if len(record) == 0 || strings.TrimSpace(record[0]) == "" {
			result.Skipped++
			continue
		}

		t := task.New(strings.TrimSpace(record[0]), now)
		if len(record) > 1 && record[1] != "" {
			t.Tags = task.NormalizeTags(strings.Split(record[1], ";"))
		}
		if len(record) > 2 {
			if p, err := strconv.Atoi(strings.TrimSpace(record[2])); err == nil {
				t.Priority = task.NormalizePriority(p)
			}
		}
		if len(record) > 3 {
			t.Completed = parseBool(record[3])
		}
		if len(record) > 4 {
			if created, err := time.Parse(time.RFC3339, strings.TrimSpace(record[4])); err == nil {
				t.Timestamp = created.UnixMilli()
			}
		}
		t.Order = order
		order++
		col[t.ID] = t
		result.Imported++
	}
	return col, result, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "x":
		return true
	}
	return false
}

func importText(r io.Reader, now time.Time) (task.Collection, *Result, error) {
	col := task.Collection{}
	result := &Result{}
	order := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		t, ok := parseTextLine(line, now)
		if !ok {
			result.Skipped++
			continue
		}
		t.Order = order
		order++
		col[t.ID] = t
		result.Imported++
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read input: %w", err)
	}
	return col, result, nil
}

// parseTextLine parses "[x] text #tag !3". The checkbox prefix is optional
// on import; trailing #tag and !priority tokens are stripped from the text.
func parseTextLine(line string, now time.Time) (*task.Task, bool) {
	completed := false
	switch {
	case strings.HasPrefix(line, "[x] "), strings.HasPrefix(line, "[X] "):
		completed = true
		line = line[4:]
	case strings.HasPrefix(line, "[ ] "):
		line = line[4:]
	}

	var tags []string
	priority := task.PriorityDefault
	words := strings.Fields(line)
	end := len(words)
	for end > 0 {
		w := words[end-1]
		if strings.HasPrefix(w, "#") && len(w) > 1 {
			tags = append(tags, w[1:])
			end--
			continue
		}
		if strings.HasPrefix(w, "!") && len(w) > 1 {
			if p, err := strconv.Atoi(w[1:]); err == nil {
				priority = task.NormalizePriority(p)
				end--
				continue
			}
		}
		break
	}

	text := strings.Join(words[:end], " ")
	if text == "" {
		return nil, false
	}
	t := task.New(text, now)
	t.Completed = completed
	t.Tags = task.NormalizeTags(tags)
	t.Priority = priority
	return t, true
}

func importMarkdown(r io.Reader, now time.Time) (task.Collection, *Result, error) {
	col := task.Collection{}
	result := &Result{}
	order := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "- ")
		line = strings.TrimPrefix(line, "* ")
		t, ok := parseTextLine(line, now)
		if !ok {
			result.Skipped++
			continue
		}
		t.Order = order
		order++
		col[t.ID] = t
		result.Imported++
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read input: %w", err)
	}
	return col, result, nil
}
