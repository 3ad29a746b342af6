package harness

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden runs a scenario and snapshots its explain text in
// testdata/golden/<name>.golden. Regenerate with
//
//	go test ./internal/harness -update
//
// The result is returned so callers can check Pass as well.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden snapshots an existing result's explain text.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	if result.Explain == "" {
		return fmt.Errorf("scenario %s produced no plan", scenarioName)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, []byte(result.Explain))
	return nil
}

// ErrGoldenMismatch is returned by CheckGolden when the plan differs from
// the stored one.
var ErrGoldenMismatch = errors.New("plan does not match golden file")

// GoldenPath is where the plan snapshot for scenario name lives in dir.
func GoldenPath(dir, name string) string {
	return filepath.Join(dir, name+".golden")
}

// CheckGolden compares result's plan with the snapshot in dir. A missing
// snapshot is not an error; scenarios without one are checked by their
// expectations alone.
func CheckGolden(dir, name string, result *Result) error {
	want, err := os.ReadFile(GoldenPath(dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading golden file: %w", err)
	}
	if string(want) != result.Explain {
		return ErrGoldenMismatch
	}
	return nil
}

// WriteGolden stores result's plan as the snapshot for name. Scenarios that
// produce no plan (expected planning errors) are skipped.
func WriteGolden(dir, name string, result *Result) (bool, error) {
	if result.Explain == "" {
		return false, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("creating golden directory: %w", err)
	}
	if err := os.WriteFile(GoldenPath(dir, name), []byte(result.Explain), 0o644); err != nil {
		return false, fmt.Errorf("writing golden file: %w", err)
	}
	return true, nil
}
