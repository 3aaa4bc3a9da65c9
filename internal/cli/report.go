// Package cli provides the command-line interface for patchwright.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patchwright/patchwright/internal/config"
	"github.com/patchwright/patchwright/internal/domain"
	"github.com/patchwright/patchwright/internal/run"
)

// AddReportCommand adds the report command and its subcommands.
func AddReportCommand(root *cobra.Command, global *GlobalFlags) {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Inspect past runs",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all runs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return reportList(cmd.Context(), global)
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the full result of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return reportShow(cmd.Context(), args[0], global)
		},
	}

	cmd.AddCommand(listCmd, showCmd)
	root.AddCommand(cmd)
}

// openRunStore builds the run store from configuration.
func openRunStore(ctx context.Context) (run.Store, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	dataDir, err := config.DataDir(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return run.NewFileStore(dataDir)
}

// reportList prints a one-line summary per run.
func reportList(ctx context.Context, global *GlobalFlags) error {
	store, err := openRunStore(ctx)
	if err != nil {
		return err
	}

	runs, err := store.List(ctx)
	if err != nil {
		return err
	}

	if global.Output == OutputJSON {
		results := make([]*domain.RunResult, 0, len(runs))
		for _, r := range runs {
			results = append(results, domain.NewRunResult(r))
		}
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(runs) == 0 {
		fmt.Println("No runs found.")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%s  %-24s %2d attempts  $%.4f  %s\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.Status,
			len(r.Attempts),
			r.TotalCost,
			r.ID)
	}
	return nil
}

// reportShow prints the detailed result of a single run.
func reportShow(ctx context.Context, runID string, global *GlobalFlags) error {
	store, err := openRunStore(ctx)
	if err != nil {
		return err
	}

	r, err := store.Get(ctx, runID)
	if err != nil {
		return err
	}

	if err := printResult(global.Output, domain.NewRunResult(r)); err != nil {
		return err
	}

	if global.Output == OutputText {
		fmt.Printf("Task:     %s\n", r.Task.Description)
		if r.Task.TargetURL != "" {
			fmt.Printf("URL:      %s\n", r.Task.TargetURL)
		}
		fmt.Println("Transitions:")
		for _, t := range r.Transitions {
			line := fmt.Sprintf("  %s  %s -> %s", t.Timestamp.Format("15:04:05"), t.From, t.To)
			if t.Reason != "" {
				line += "  (" + t.Reason + ")"
			}
			fmt.Println(line)
		}
	}
	return nil
}
