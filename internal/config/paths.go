package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/patchwright/patchwright/internal/constants"
	"github.com/patchwright/patchwright/internal/errors"
)

// GlobalConfigDir returns the path to the global Patchwright configuration
// directory. This is typically ~/.patchwright on Unix systems.
//
// Returns an error if the home directory cannot be determined.
func GlobalConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, constants.PatchwrightHome), nil
}

// ProjectConfigDir returns the relative path to the project configuration
// directory. This is always .patchwright relative to the project root.
func ProjectConfigDir() string {
	return constants.PatchwrightHome
}

// GlobalConfigPath returns the full path to the global configuration file.
// This is typically ~/.patchwright/config.yaml on Unix systems.
func GlobalConfigPath() (string, error) {
	dir, err := GlobalConfigDir()
	if err != nil {
		return "", fmt.Errorf("get global config path: %w", err)
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// ProjectConfigPath returns the relative path to the project configuration
// file. This is always .patchwright/config.yaml relative to the project root.
func ProjectConfigPath() string {
	return filepath.Join(ProjectConfigDir(), "config.yaml")
}

// DataDir resolves the directory for run state and the cost ledger.
// A non-empty override wins; otherwise the global config dir is used.
func DataDir(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	return GlobalConfigDir()
}
