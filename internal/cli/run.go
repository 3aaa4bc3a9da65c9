// Package cli provides the command-line interface for patchwright.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/patchwright/patchwright/internal/budget"
	"github.com/patchwright/patchwright/internal/config"
	"github.com/patchwright/patchwright/internal/constants"
	"github.com/patchwright/patchwright/internal/domain"
	pwerrors "github.com/patchwright/patchwright/internal/errors"
	"github.com/patchwright/patchwright/internal/run"
	"github.com/patchwright/patchwright/internal/sandbox"
	"github.com/patchwright/patchwright/internal/synth"
)

// budgetDBFileName is the SQLite file holding the daily spend ledger.
const budgetDBFileName = "budget.db"

// runFlags holds flags for the run command.
type runFlags struct {
	url         string
	maxRepairs  int
	noHeal      bool
	timeoutMS   int
	browser     string
	headful     bool
	model       string
	tasksFile   string
	concurrency int
}

// taskFileEntry is one task in a batch tasks file.
type taskFileEntry struct {
	Description string `yaml:"description"`
	URL         string `yaml:"url"`
}

// AddRunCommand adds the run command to the root command.
func AddRunCommand(root *cobra.Command, global *GlobalFlags) {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [task description]",
		Short: "Run a browser automation task with self-healing repair",
		Long: `Run generates a browser automation script for the task, executes it in
the sandbox, and repairs it on failure until it succeeds or a stop bound
fires (attempt ceiling, budget ceiling, or unrecoverable failures).

With --tasks-file, runs every task in the YAML file concurrently.`,
		Example: `  patchwright run "Log in and verify the dashboard loads" --url https://example.com/login
  patchwright run "Add the first product to the cart" --no-heal
  patchwright run --tasks-file smoke.yaml --concurrency 4`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.tasksFile != "" {
				return runBatch(cmd.Context(), flags, global)
			}
			if len(args) == 0 {
				return fmt.Errorf("%w: a task description or --tasks-file is required", pwerrors.ErrInvalidTask)
			}
			return runSingle(cmd.Context(), args[0], flags, global)
		},
	}

	cmd.Flags().StringVar(&flags.url, "url", "", "starting URL for the automation")
	cmd.Flags().IntVar(&flags.maxRepairs, "max-repairs", -1, "repair attempts after the initial attempt (default from config)")
	cmd.Flags().BoolVar(&flags.noHeal, "no-heal", false, "disable automatic repair; stop after the first failure")
	cmd.Flags().IntVar(&flags.timeoutMS, "timeout-ms", 0, "per-attempt script timeout in milliseconds")
	cmd.Flags().StringVar(&flags.browser, "browser", "", "browser engine (chromium|firefox|webkit)")
	cmd.Flags().BoolVar(&flags.headful, "headful", false, "run the browser with a visible window")
	cmd.Flags().StringVar(&flags.model, "model", "", "synthesis model override")
	cmd.Flags().StringVar(&flags.tasksFile, "tasks-file", "", "YAML file with a list of tasks to run")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 2, "concurrent runs in batch mode")

	root.AddCommand(cmd)
}

// runSingle executes one task and prints its result.
func runSingle(ctx context.Context, description string, flags *runFlags, global *GlobalFlags) error {
	orchestrator, closeFn, cfg, err := buildOrchestrator(ctx, flags)
	if err != nil {
		return err
	}
	defer closeFn()

	r, runErr := orchestrator.Execute(ctx, buildTask(description, flags, cfg))
	if r == nil {
		return runErr
	}

	if err := printResult(global.Output, domain.NewRunResult(r)); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if r.Status != constants.RunStatusSucceeded {
		return fmt.Errorf("run %s finished with status %s", r.ID, r.Status)
	}
	return nil
}

// runBatch executes every task in the tasks file with bounded concurrency.
// The shared daily ledger keeps the combined spend under the daily ceiling.
func runBatch(ctx context.Context, flags *runFlags, global *GlobalFlags) error {
	data, err := os.ReadFile(flags.tasksFile) //#nosec G304 -- user-supplied path by design
	if err != nil {
		return fmt.Errorf("failed to read tasks file: %w", err)
	}

	var entries []taskFileEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse tasks file: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: tasks file contains no tasks", pwerrors.ErrInvalidTask)
	}

	orchestrator, closeFn, cfg, err := buildOrchestrator(ctx, flags)
	if err != nil {
		return err
	}
	defer closeFn()

	results := make([]*domain.RunResult, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(flags.concurrency)
	for i, entry := range entries {
		g.Go(func() error {
			task := buildTask(entry.Description, flags, cfg)
			task.TargetURL = entry.URL

			r, err := orchestrator.Execute(gctx, task)
			if r != nil {
				results[i] = domain.NewRunResult(r)
			}
			// Individual run failures do not cancel the batch; only
			// validation and cancellation do.
			if err != nil && gctx.Err() != nil {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, result := range results {
		if result == nil {
			failed++
			continue
		}
		if err := printResult(global.Output, result); err != nil {
			return err
		}
		if result.FinalStatus != constants.RunStatusSucceeded {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs did not succeed", failed, len(entries))
	}
	return nil
}

// buildTask assembles the task from the description, flags, and config.
func buildTask(description string, flags *runFlags, cfg *config.Config) domain.Task {
	maxRepairs := cfg.Repair.MaxRepairAttempts
	if flags.maxRepairs >= 0 {
		maxRepairs = flags.maxRepairs
	}
	timeoutMS := cfg.Sandbox.DefaultTimeoutMS
	if flags.timeoutMS > 0 {
		timeoutMS = flags.timeoutMS
	}
	browser := cfg.Sandbox.BrowserType
	if flags.browser != "" {
		browser = flags.browser
	}

	return domain.Task{
		Description: strings.TrimSpace(description),
		TargetURL:   flags.url,
		Config: domain.TaskConfig{
			Headless:          !flags.headful && cfg.Sandbox.Headless,
			BrowserType:       browser,
			TimeoutMS:         timeoutMS,
			MaxRepairAttempts: maxRepairs,
			AutoHeal:          cfg.Repair.AutoHeal && !flags.noHeal,
			RunDeadline:       cfg.Repair.RunDeadline,
		},
	}
}

// buildOrchestrator wires the adapters and returns the orchestrator plus a
// cleanup function closing the budget store.
func buildOrchestrator(ctx context.Context, flags *runFlags) (*run.Orchestrator, func(), *config.Config, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := GetLogger()

	dataDir, err := config.DataDir(cfg.DataDir)
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := run.NewFileStore(dataDir)
	if err != nil {
		return nil, nil, nil, err
	}

	budgetStore, err := budget.OpenSQLiteStore(filepath.Join(dataDir, budgetDBFileName))
	if err != nil {
		return nil, nil, nil, err
	}
	daily := budget.NewDailyLedger(budgetStore, cfg.Budget.DailyBudget,
		budget.WithLedgerLogger(logger))

	synthCfg := cfg.Synthesis
	if flags.model != "" {
		synthCfg.DefaultModel = flags.model
	}
	client := synth.NewClient(synthCfg, synth.WithLogger(logger))
	synthesizer, err := synth.NewFallbackSynthesizer(client,
		[]string{synthCfg.DefaultModel, synthCfg.FallbackModel}, logger)
	if err != nil {
		_ = budgetStore.Close()
		return nil, nil, nil, err
	}

	executor := sandbox.NewClient(cfg.Sandbox, sandbox.WithLogger(logger))

	orchestrator, err := run.NewOrchestrator(store, synthesizer, executor, daily, cfg,
		run.WithLogger(logger))
	if err != nil {
		_ = budgetStore.Close()
		return nil, nil, nil, err
	}

	closeFn := func() { _ = budgetStore.Close() }
	return orchestrator, closeFn, cfg, nil
}

// printResult renders a run result in the selected output format.
func printResult(format string, result *domain.RunResult) error {
	if format == OutputJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Run:      %s\n", result.RunID)
	fmt.Printf("Status:   %s\n", result.FinalStatus)
	if result.StopReason != "" {
		fmt.Printf("Reason:   %s\n", result.StopReason)
	}
	fmt.Printf("Cost:     $%.4f\n", result.TotalCost)
	fmt.Printf("Attempts: %d\n", len(result.Attempts))
	for _, a := range result.Attempts {
		line := fmt.Sprintf("  #%d script v%d %s", a.Ordinal, a.ScriptVersion, a.Status)
		if a.DiagnosisCategory != "" {
			line += fmt.Sprintf(" (%s)", a.DiagnosisCategory)
		}
		line += fmt.Sprintf(" $%.4f", a.Cost)
		fmt.Println(line)
	}
	fmt.Println()
	return nil
}
