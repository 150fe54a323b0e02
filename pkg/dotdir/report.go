package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

const (
	lastReportFile = "last_report.json"
)

// SaveLastReport persists report as .strata/last_report.json.
func (m *Manager) SaveLastReport(report any, overrideDir string) error {
	if report == nil {
		return errors.New("cannot save nil report")
	}

	path, err := m.Path(overrideDir, lastReportFile)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing report: %w", err)
	}

	return nil
}

// LoadLastReport decodes the cached report into dst. It reports false when
// no report has been saved yet.
func (m *Manager) LoadLastReport(dst any, overrideDir string) (bool, error) {
	path, err := m.Path(overrideDir, lastReportFile)
	if err != nil {
		return false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("reading report: %w", err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("parsing report: %w", err)
	}

	return true, nil
}
