// Package cli provides the command-line interface for patchwright.
package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/patchwright/patchwright/internal/budget"
	"github.com/patchwright/patchwright/internal/config"
)

// budgetReport is the JSON projection of today's spend.
type budgetReport struct {
	Day          string  `json:"day"`
	DailySpend   float64 `json:"daily_spend"`
	DailyCeiling float64 `json:"daily_ceiling"`
	Remaining    float64 `json:"remaining"`
}

// AddBudgetCommand adds the budget command.
func AddBudgetCommand(root *cobra.Command, global *GlobalFlags) {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Show today's spend against the daily ceiling",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}
			dataDir, err := config.DataDir(cfg.DataDir)
			if err != nil {
				return err
			}

			store, err := budget.OpenSQLiteStore(filepath.Join(dataDir, budgetDBFileName))
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			daily := budget.NewDailyLedger(store, cfg.Budget.DailyBudget)
			spend, err := daily.DailySpend(ctx)
			if err != nil {
				return err
			}

			report := budgetReport{
				Day:          budget.DayKey(time.Now().UTC()),
				DailySpend:   spend,
				DailyCeiling: cfg.Budget.DailyBudget,
				Remaining:    cfg.Budget.DailyBudget - spend,
			}
			if report.Remaining < 0 {
				report.Remaining = 0
			}

			if global.Output == OutputJSON {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("Day:       %s (UTC)\n", report.Day)
			fmt.Printf("Spent:     $%.4f\n", report.DailySpend)
			fmt.Printf("Ceiling:   $%.2f\n", report.DailyCeiling)
			fmt.Printf("Remaining: $%.4f\n", report.Remaining)
			return nil
		},
	}

	root.AddCommand(cmd)
}
