package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/richardjkendall/todoapp/internal/export"
	"github.com/richardjkendall/todoapp/internal/ui"
)

var (
	flagExportFormat string
	flagImportFormat string
	flagImportMerge  bool
)

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export tasks to a file or stdout",
	Long: `Export the task list as json, csv, text, or markdown.

With no file argument the output goes to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(flagExportFormat)
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		out := os.Stdout
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", args[0], err)
			}
			defer f.Close()
			out = f
		}

		if err := export.Export(out, a.todos(), format); err != nil {
			return err
		}
		if len(args) == 1 {
			fmt.Printf("%s Exported %d tasks to %s\n", ui.RenderPass("✓"), len(a.todos()), args[0])
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import tasks from a file",
	Long: `Import tasks from a json, csv, text, or markdown file.

By default imported tasks replace the current list; --merge appends
them instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(flagImportFormat)
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()

		imported, result, err := export.Import(f, format, time.Now())
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		col := imported
		if flagImportMerge {
			col = a.todos()
			offset := len(col)
			for _, t := range imported.Sorted() {
				t.Order += offset
				col[t.ID] = t
			}
		} else {
			backup, err := export.BackupFile(a.cfg.MirrorPath())
			if err != nil {
				return err
			}
			if backup != "" {
				result.BackupCreated = backup
			}
			// Replaced tasks need tombstones or the next sync would
			// re-add them from the cloud copy.
			for id := range a.todos() {
				if _, ok := imported[id]; !ok {
					a.sy.MarkAsDeleted(id)
				}
			}
		}

		if err := saveNow(a, col); err != nil {
			return err
		}
		fmt.Printf("%s Imported %d tasks", ui.RenderPass("✓"), result.Imported)
		if result.Skipped > 0 {
			fmt.Printf(" (%d lines skipped)", result.Skipped)
		}
		fmt.Println()
		if result.BackupCreated != "" {
			fmt.Printf("   Backup: %s\n", result.BackupCreated)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&flagExportFormat, "format", "F", string(export.FormatJSON), "json, csv, text, or markdown")
	importCmd.Flags().StringVarP(&flagImportFormat, "format", "F", string(export.FormatJSON), "json, csv, text, or markdown")
	importCmd.Flags().BoolVar(&flagImportMerge, "merge", false, "append to the current list instead of replacing it")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
