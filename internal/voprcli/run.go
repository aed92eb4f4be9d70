package voprcli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kimberlite-db/kimberlite/internal/sim"
)

const defaultCoverageThreshold = 0.80

// RunOptions holds flags for the run subcommand.
type RunOptions struct {
	*RootOptions
	WorkDir          string
	SkipCoverageGate bool
}

// NewRunCommand builds `kimberlite-vopr run <scenario.yaml>`.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a VOPR scenario once",
		Long: `Run loads a scenario file, drives the replica group through its
request sequence and fault profile, checks every invariant after each
event, and reports the coverage gate's verdict (spec §6/§8).`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.WorkDir, "workdir", "", "directory for replica WAL/store files (defaults to a temp dir)")
	cmd.Flags().BoolVar(&opts.SkipCoverageGate, "no-coverage-gate", false, "report coverage but don't fail the run on it")

	return cmd
}

func runScenario(ctx context.Context, opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	scenario, err := sim.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitInvariantViolation, "failed to load scenario", err)
	}
	formatter.VerboseLog("loaded scenario %q seed=%d replicas=%d", scenario.Name, scenario.Seed, scenario.ReplicaN)

	workDir := opts.WorkDir
	if workDir == "" {
		dir, err := os.MkdirTemp("", "kimberlite-vopr-*")
		if err != nil {
			return WrapExitError(ExitInvariantViolation, "failed to create work directory", err)
		}
		defer os.RemoveAll(dir)
		workDir = dir
	}

	simulator, err := sim.NewSimulator(scenario, workDir)
	if err != nil {
		return WrapExitError(ExitInvariantViolation, "failed to build simulator", err)
	}

	result, runErr := simulator.Run(ctx)
	if runErr != nil {
		reportResult(formatter, result, runErr)
		return WrapExitError(ExitInvariantViolation, "invariant violated", runErr)
	}

	threshold := scenario.CoverageThreshold
	if threshold == 0 {
		threshold = defaultCoverageThreshold
	}
	satisfied := opts.SkipCoverageGate || simulator.Coverage().Satisfied(threshold, sim.RequiredInvariantNames())

	reportResult(formatter, result, nil)
	if !satisfied {
		missing := simulator.Coverage().Missing()
		return WrapExitError(ExitCoverageUnmet, "coverage gate not met", fmt.Errorf("missing fault points: %v", missing))
	}
	return nil
}

func reportResult(formatter *OutputFormatter, result sim.RunResult, runErr error) {
	if formatter.Format == "json" {
		payload := struct {
			sim.RunResult
			Error string `json:"error,omitempty"`
		}{RunResult: result}
		if runErr != nil {
			payload.Error = runErr.Error()
		}
		_ = formatter.JSON(payload)
		return
	}

	formatter.Text("scenario: %s", result.ScenarioName)
	formatter.Text("seed: %d", result.Seed)
	formatter.Text("state_hash: %s", result.StateHash)
	formatter.Text("storage_hash: %s", result.StorageHash)
	formatter.Text("events_processed: %d", result.EventsProcessed)
	formatter.Text("final_tick: %d", result.FinalTick)
	if runErr != nil {
		formatter.Text("FAIL: %v", runErr)
	} else {
		formatter.Text("PASS")
	}
}
