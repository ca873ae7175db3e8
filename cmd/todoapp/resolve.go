package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/richardjkendall/todoapp/internal/merge"
	"github.com/richardjkendall/todoapp/internal/syncer"
	"github.com/richardjkendall/todoapp/internal/ui"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Settle pending sync conflicts",
	Long: `Walk through the edits both devices made to the same tasks and pick
which side to keep. Non-conflicting fields have already been merged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		info := a.sy.ConflictInfo()
		if info == nil {
			fmt.Printf("%s Nothing to resolve\n", ui.RenderPass("✓"))
			return nil
		}

		fmt.Printf("%s %d tasks were edited on both devices\n\n", ui.RenderWarn("⚠"), len(info.Conflicts))

		var choice string
		form := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title("How do you want to resolve them?").
				Options(
					huh.NewOption("Keep this device's versions", "local"),
					huh.NewOption("Keep the cloud versions", "remote"),
					huh.NewOption("Decide field by field", "fields"),
					huh.NewOption("Cancel and roll back local edits", "rollback"),
				).
				Value(&choice),
		))
		if err := form.Run(); err != nil {
			return err
		}

		decision := syncer.Decision{}
		switch choice {
		case "local":
			decision.Choice = syncer.ChoiceKeepLocal
		case "remote":
			decision.Choice = syncer.ChoiceKeepRemote
		case "fields":
			decision.Choice = syncer.ChoicePerField
			decision.Fields = make(map[string]map[string]merge.Source)
			for _, c := range info.Conflicts {
				picks, err := pickFields(c)
				if err != nil {
					return err
				}
				decision.Fields[c.ID] = picks
			}
		case "rollback":
			a.sy.RollbackOptimisticChanges()
			fmt.Printf("%s Local edits rolled back\n", ui.RenderPass("✓"))
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		if err := a.sy.ResolveConflict(ctx, decision); err != nil {
			return err
		}
		fmt.Printf("%s Conflicts resolved\n", ui.RenderPass("✓"))
		return nil
	},
}

// pickFields asks which side to keep for each conflicting field of one task.
func pickFields(c merge.Conflict) (map[string]merge.Source, error) {
	picks := make(map[string]merge.Source, len(c.Fields))
	for _, diff := range c.Fields {
		var side string
		form := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("%q: which %s?", c.Local.Text, diff.Field)).
				Description(fmt.Sprintf("this device: %v\ncloud: %v", diff.LocalValue, diff.RemoteValue)).
				Options(
					huh.NewOption(fmt.Sprintf("This device (%v)", diff.LocalValue), "local"),
					huh.NewOption(fmt.Sprintf("Cloud (%v)", diff.RemoteValue), "remote"),
				).
				Value(&side),
		))
		if err := form.Run(); err != nil {
			return nil, err
		}
		if side == "remote" {
			picks[diff.Field] = merge.SourceRemote
		} else {
			picks[diff.Field] = merge.SourceLocal
		}
	}
	return picks, nil
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
