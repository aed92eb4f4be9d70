package voprcli

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kimberlite-db/kimberlite/internal/sim"
)

// NewTestCommand builds `kimberlite-vopr test <scenarios-dir>`: run every
// *.yaml scenario in a directory and report an aggregate pass/fail.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run every scenario in a directory",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTestSuite(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

type suiteResult struct {
	Path   string `json:"path"`
	Passed bool   `json:"passed"`
	Error  string `json:"error,omitempty"`
}

func runTestSuite(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return WrapExitError(ExitInvariantViolation, "failed to read scenarios directory", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) == ".yaml" || filepath.Ext(e.Name()) == ".yml" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	var results []suiteResult
	anyFailed := false
	for _, path := range paths {
		res := runOneForSuite(path)
		if !res.Passed {
			anyFailed = true
		}
		results = append(results, res)
		formatter.VerboseLog("%s: %v", path, res.Passed)
	}

	if formatter.Format == "json" {
		_ = formatter.JSON(results)
	} else {
		for _, r := range results {
			status := "PASS"
			if !r.Passed {
				status = "FAIL: " + r.Error
			}
			formatter.Text("%-40s %s", filepath.Base(r.Path), status)
		}
	}

	if anyFailed {
		return NewExitError(ExitInvariantViolation, "one or more scenarios failed")
	}
	return nil
}

func runOneForSuite(path string) suiteResult {
	scenario, err := sim.LoadScenario(path)
	if err != nil {
		return suiteResult{Path: path, Passed: false, Error: err.Error()}
	}

	dir, err := os.MkdirTemp("", "kimberlite-vopr-test-*")
	if err != nil {
		return suiteResult{Path: path, Passed: false, Error: err.Error()}
	}
	defer os.RemoveAll(dir)

	simulator, err := sim.NewSimulator(scenario, dir)
	if err != nil {
		return suiteResult{Path: path, Passed: false, Error: err.Error()}
	}

	_, runErr := simulator.Run(context.Background())
	if runErr != nil {
		return suiteResult{Path: path, Passed: false, Error: runErr.Error()}
	}
	return suiteResult{Path: path, Passed: true}
}
