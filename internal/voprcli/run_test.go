package voprcli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const baselineScenarioYAML = `
name: cli-baseline
seed: 7
replica_count: 3
requests:
  - client_id: 1
    request_id: 1
    kind: CreateStream
    args:
      tenant: 1
      name: orders
  - client_id: 1
    request_id: 2
    kind: Checkpoint
`

func TestRunScenarioReportsPass(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "baseline.yaml", baselineScenarioYAML)

	var out bytes.Buffer
	cmd := NewRunCommand(&RootOptions{Format: "json"})
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	cmd.SetArgs([]string{path, "--no-coverage-gate"})

	err := cmd.Execute()
	require.NoError(t, err)
	require.Contains(t, out.String(), "cli-baseline")
}

func TestRunScenarioFailsCoverageGateWithoutFaults(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "baseline.yaml", baselineScenarioYAML)

	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetContext(context.Background())
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	require.Equal(t, ExitCoverageUnmet, GetExitCode(err))
}

func TestValidateRejectsMissingFile(t *testing.T) {
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "does-not-exist.yaml")})

	err := cmd.Execute()
	require.Error(t, err)
}
