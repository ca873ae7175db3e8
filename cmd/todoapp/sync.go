package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/richardjkendall/todoapp/internal/store"
	"github.com/richardjkendall/todoapp/internal/syncer"
	"github.com/richardjkendall/todoapp/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push and pull changes now",
	Long: `Synchronize with the cloud immediately, bypassing the debounce.

Reads the remote copy, merges it with local edits field by field, and
writes the result back. True conflicts (both sides changed the same
task's text) are left pending for 'todoapp resolve'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		if a.sy.Mode() != syncer.ModeCloud {
			fmt.Printf("%s Not in cloud mode; run 'todoapp migrate' first\n", ui.RenderWarn("⚠"))
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		start := time.Now()
		err = a.sy.SaveImmediately(ctx, a.todos())
		if errors.Is(err, syncer.ErrConflictPending) {
			info := a.sy.ConflictInfo()
			fmt.Printf("%s %d tasks need attention; run 'todoapp resolve'\n", ui.RenderWarn("⚠"), len(info.Conflicts))
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
		fmt.Printf("   Tasks: %d\n", len(a.todos()))
		return nil
	},
}

var flagDismissWarning bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		if flagDismissWarning {
			if err := a.kv.Set(store.KeyWarningDismissed, "true"); err != nil {
				return err
			}
		}

		fmt.Printf("\n%s Sync Status\n\n", ui.RenderAccent("●"))
		fmt.Printf("Mode: %s\n", a.sy.Mode())
		fmt.Printf("State: %s\n", a.sy.Status())
		fmt.Printf("Tasks: %d\n", len(a.todos()))
		if t := a.sy.LastSyncTime(); !t.IsZero() {
			fmt.Printf("Last sync: %s\n", t.Format("2006-01-02 15:04:05"))
		}
		if msg := a.sy.LastError(); msg != "" {
			fmt.Printf("Last error: %s\n", ui.RenderErr(msg))
		}
		if deleted := a.sy.DeletedIDs(); len(deleted) > 0 {
			fmt.Printf("Pending deletions: %d\n", len(deleted))
		}
		if info := a.sy.ConflictInfo(); info != nil {
			fmt.Printf("Conflicts: %s\n", ui.RenderWarn(fmt.Sprintf("%d pending", len(info.Conflicts))))
		}
		if a.sy.Mode() == syncer.ModeLocal {
			if dismissed, _ := a.kv.Get(store.KeyWarningDismissed); dismissed != "true" {
				fmt.Printf("\n%s Tasks live only on this device; run 'todoapp migrate' to enable\n", ui.RenderWarn("⚠"))
				fmt.Printf("   cloud sync, or 'todoapp status --dismiss-warning' to hide this.\n")
			}
		}
		fmt.Println()
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Move the local task list to cloud storage",
	Long: `Switch from local-only storage to cloud sync.

Uploads the current local task list to the configured remote and
switches to cloud mode. Later edits sync automatically.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		if a.cfg.Sync.RemoteURL == "" {
			return fmt.Errorf("no remote configured; set sync.remote_url in the config")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		local := a.todos()
		fmt.Printf("%s Migrating %d tasks to %s...\n", ui.RenderAccent("🔄"), len(local), a.cfg.Sync.RemoteURL)

		err = a.sy.Migrate(ctx, local)
		if errors.Is(err, syncer.ErrConflictPending) {
			fmt.Printf("%s The cloud already holds conflicting edits; run 'todoapp resolve'\n", ui.RenderWarn("⚠"))
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s Migration complete\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&flagDismissWarning, "dismiss-warning", false, "stop showing the local-only storage warning")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(migrateCmd)
}
