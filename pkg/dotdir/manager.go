// Package dotdir manages the .strata/ and ~/.strata directories.
//
// The directory holds config.toml, the default sqlite databases, and the
// cached report of the last maintenance cycle.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	dirName = ".strata"

	// HomeEnv names a strata directory that takes precedence over the
	// working directory and home lookups.
	HomeEnv = "STRATA_HOME"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target resolves the strata directory, creates it if needed and returns its
// absolute path. Precedence:
//  1. overrideDir
//  2. $STRATA_HOME
//  3. ./.strata when it already exists
//  4. ~/.strata
func (m *Manager) Target(overrideDir string) (string, error) {
	dir, err := m.resolve(overrideDir)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating strata directory %s: %w", dir, err)
	}
	return filepath.Abs(dir)
}

// Path joins name onto the resolved target directory.
func (m *Manager) Path(overrideDir, name string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func (m *Manager) resolve(overrideDir string) (string, error) {
	if overrideDir != "" {
		return overrideDir, nil
	}
	if env := os.Getenv(HomeEnv); env != "" {
		return env, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	if info, err := os.Stat(filepath.Join(cwd, dirName)); err == nil && info.IsDir() {
		return filepath.Join(cwd, dirName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, dirName), nil
}
