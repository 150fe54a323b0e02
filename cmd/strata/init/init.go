// Package initcmder provides the init command for initializing a local .strata
// directory in the current working directory.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/strata/pkg/config"
)

const (
	dirName    = ".strata"
	configFile = "config.toml"

	// maxRemoteConfigSize bounds a fetched config.toml.
	maxRemoteConfigSize = 1 << 20
)

const initLongDesc string = `Initialize a new .strata/ directory in the current working directory.

Creates a local .strata/ directory that takes precedence over the default
~/.strata/ directory for configuration, sqlite databases and the cached
maintenance report, and writes a config.toml with default values.

This is useful for running a separate memory store per project or directory.

Use --preset to start from a deployment profile instead of the defaults:
  local        in-memory tiers, events, audit and vector index
  sqlite       sqlite tiers and audit trail, sqlite-vec index
  production   postgres tiers, kafka events, qdrant index

--preset also accepts an http(s) URL of a config.toml to fetch. A preset
always overwrites an existing config.toml; a plain "strata init" leaves an
existing one alone.

Examples:
  strata init
  strata init --preset sqlite
  strata init --preset https://example.com/strata/config.toml`

const initShortDesc string = "Initialize a local .strata/ directory"

type initCommander struct {
	preset string
	out    io.Writer
}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "", fmt.Sprintf("Config preset (%s) or URL of a config.toml", strings.Join(config.ValidPresetNames(), ", ")))

	return cmd
}

func (c *initCommander) run(ctx context.Context) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)
	configPath := filepath.Join(dir, configFile)

	// Resolve the preset before touching the filesystem so a bad preset
	// leaves nothing behind.
	var cfg *config.Config
	if c.preset != "" {
		cfg, err = c.resolvePreset(ctx)
		if err != nil {
			return err
		}
	}

	info, err := os.Stat(dir)
	alreadyInitialized := err == nil && info.IsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating .strata directory: %w", err)
	}

	_, statErr := os.Stat(configPath)
	configExists := statErr == nil

	switch {
	case cfg != nil:
		if err := writeConfig(configPath, cfg); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Wrote %s preset to %s\n", c.preset, configPath)
	case !configExists:
		if err := writeConfig(configPath, config.NewDefaultConfig()); err != nil {
			return err
		}
	}

	if alreadyInitialized {
		fmt.Fprintf(c.out, "Already initialized: %s\n", dir)
	} else {
		fmt.Fprintf(c.out, "Initialized .strata directory: %s\n", dir)
	}
	return nil
}

func (c *initCommander) resolvePreset(ctx context.Context) (*config.Config, error) {
	if strings.HasPrefix(c.preset, "http://") || strings.HasPrefix(c.preset, "https://") {
		return fetchRemoteConfig(ctx, c.preset)
	}
	return config.PresetConfig(c.preset)
}

func fetchRemoteConfig(ctx context.Context, url string) (*config.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteConfigSize+1))
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	if len(data) > maxRemoteConfigSize {
		return nil, errors.New("fetching remote config: file too large")
	}

	return config.ParseConfigTOML(data)
}

func writeConfig(path string, cfg *config.Config) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}
