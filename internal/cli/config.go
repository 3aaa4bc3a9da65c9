// Package cli provides the command-line interface for patchwright.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/patchwright/patchwright/internal/config"
)

// AddConfigCommand adds the config command and its subcommands.
func AddConfigCommand(root *cobra.Command, global *GlobalFlags) {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage patchwright configuration",
	}

	var initGlobal bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file with the default settings",
		Long: `Init writes a commented starter configuration. By default the file goes
to the project-local .patchwright/config.yaml; use --global for
~/.patchwright/config.yaml.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return configInit(initGlobal)
		},
	}
	initCmd.Flags().BoolVar(&initGlobal, "global", false, "write the global config instead of the project config")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration after all layers are merged",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return err
			}
			return printConfig(global.Output, cfg)
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	root.AddCommand(cmd)
}

// configInit writes the default configuration as a starter file.
// Refuses to overwrite an existing config.
func configInit(global bool) error {
	var path string
	if global {
		p, err := config.GlobalConfigPath()
		if err != nil {
			return err
		}
		path = p
	} else {
		path = config.ProjectConfigPath()
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Wrote %s\n", path)
	return nil
}

// printConfig renders the effective config in the selected format.
func printConfig(format string, cfg *config.Config) error {
	if format == OutputJSON {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}
