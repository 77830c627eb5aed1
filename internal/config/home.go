package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeEnv overrides the ccom working directory.
const HomeEnv = "CCOM_HOME"

// Home returns the ccom working directory: $CCOM_HOME when set, otherwise
// .ccom under the current directory.
func Home() (string, error) {
	if home := os.Getenv(HomeEnv); home != "" {
		return home, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return filepath.Join(cwd, ".ccom"), nil
}

// DefaultConfigPath returns <home>/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := Home()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "config.yaml"), nil
}
