package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/dcvprov/internal/history"
	"github.com/alexisbeaulieu97/dcvprov/internal/model"
)

func newHistoryCmd(root *rootFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or show one run in full",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runHistory(cmd, root, runID, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list (0 for all)")
	return cmd
}

func runHistory(cmd *cobra.Command, root *rootFlags, runID string, limit int) error {
	app, err := newAppContext(cmd, root)
	if err != nil {
		return err
	}

	path := app.settings.HistoryPath
	if path == "" {
		return fmt.Errorf("run history is disabled (no history path configured)")
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if runID != "" {
			return fmt.Errorf("%w: %s", history.ErrNotFound, runID)
		}
		return app.printer.History([]*model.RunSummary{})
	}

	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	if runID != "" {
		summary, err := store.Get(runID)
		if err != nil {
			return err
		}
		return app.printer.Summary(summary)
	}

	runs, err := store.List(limit)
	if err != nil {
		return err
	}
	return app.printer.History(runs)
}
