package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/richardjkendall/todoapp/internal/syncer"
	"github.com/richardjkendall/todoapp/internal/task"
	"github.com/richardjkendall/todoapp/internal/ui"
)

var (
	flagAddPriority int
	flagAddTags     []string
	flagListFilter  string
	flagListAll     bool
)

var addCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Add a task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		now := time.Now()
		rec := task.New(strings.Join(args, " "), now)
		rec.Priority = task.NormalizePriority(flagAddPriority)
		rec.Tags = task.NormalizeTags(flagAddTags)

		col := a.todos()
		rec.Order = len(col)
		col[rec.ID] = rec

		if err := saveNow(a, col); err != nil {
			return err
		}
		fmt.Printf("%s Added %s\n", ui.RenderPass("✓"), rec.ID)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		now := time.Now()
		shown := 0
		for _, t := range a.todos().Sorted() {
			if t.Completed && !flagListAll {
				continue
			}
			if !matchesFilter(t, flagListFilter, now) {
				continue
			}
			printTask(t, now)
			shown++
		}
		if shown == 0 {
			fmt.Println(ui.RenderDim("No tasks."))
		}
		return nil
	},
}

var doneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task as completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		col := a.todos()
		rec, err := findTask(col, args[0])
		if err != nil {
			return err
		}
		rec.Completed = true
		rec.Touch(time.Now())

		if err := saveNow(a, col); err != nil {
			return err
		}
		fmt.Printf("%s Completed: %s\n", ui.RenderPass("✓"), rec.Text)
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a task",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		col := a.todos()
		rec, err := findTask(col, args[0])
		if err != nil {
			return err
		}
		delete(col, rec.ID)
		// Tombstone so a stale copy on another device cannot resurrect it.
		a.sy.MarkAsDeleted(rec.ID)

		if err := saveNow(a, col); err != nil {
			return err
		}
		fmt.Printf("%s Deleted: %s\n", ui.RenderPass("✓"), rec.Text)
		return nil
	},
	Args: cobra.ExactArgs(1),
}

// saveNow pushes an edit synchronously; a conflict is reported rather than
// treated as a failure.
func saveNow(a *app, col task.Collection) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := a.sy.SaveImmediately(ctx, col)
	if errors.Is(err, syncer.ErrConflictPending) {
		fmt.Printf("%s Edits from another device need attention; run 'todoapp resolve'\n", ui.RenderWarn("⚠"))
		return nil
	}
	return err
}

// findTask resolves an id, accepting an unambiguous prefix.
func findTask(col task.Collection, id string) (*task.Task, error) {
	if t, ok := col[id]; ok {
		return t, nil
	}
	var match *task.Task
	for _, t := range col.All() {
		if strings.HasPrefix(t.ID, id) {
			if match != nil {
				return nil, fmt.Errorf("id %q is ambiguous", id)
			}
			match = t
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no task with id %q", id)
	}
	return match, nil
}

func matchesFilter(t *task.Task, filter string, now time.Time) bool {
	switch filter {
	case "":
		return true
	case "aged":
		return !t.Completed && t.Age(now) >= 7*24*time.Hour
	case "high-priority":
		return !t.Completed && t.Priority >= 4
	case "completed":
		return t.Completed
	}
	// Anything else filters by tag.
	for _, tag := range t.Tags {
		if tag == strings.ToLower(filter) {
			return true
		}
	}
	return false
}

func shortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func printTask(t *task.Task, now time.Time) {
	marker := "[ ]"
	if t.Completed {
		marker = ui.RenderPass("[x]")
	}
	line := fmt.Sprintf("%s %s %s", marker, ui.RenderDim(shortID(t.ID)), t.Text)
	if len(t.Tags) > 0 {
		line += " " + ui.RenderAccent("#"+strings.Join(t.Tags, " #"))
	}
	if t.Priority >= 4 {
		line += " " + ui.RenderErr(fmt.Sprintf("!%d", t.Priority))
	}
	if age := t.Age(now); !t.Completed && age >= 7*24*time.Hour {
		line += " " + ui.RenderWarn(fmt.Sprintf("(%dd old)", int(age.Hours()/24)))
	}
	fmt.Println(line)
}

func init() {
	addCmd.Flags().IntVarP(&flagAddPriority, "priority", "p", task.PriorityDefault, "priority 1-5")
	addCmd.Flags().StringSliceVarP(&flagAddTags, "tags", "t", nil, "comma separated tags")
	listCmd.Flags().StringVarP(&flagListFilter, "filter", "f", "", "aged, high-priority, completed, or a tag")
	listCmd.Flags().BoolVarP(&flagListAll, "all", "a", false, "include completed tasks")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(doneCmd)
	rootCmd.AddCommand(rmCmd)
}
