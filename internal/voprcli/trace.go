package voprcli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kimberlite-db/kimberlite/internal/sim"
)

// NewTraceCommand builds `kimberlite-vopr trace <scenario.yaml>`: run a
// scenario once with verbose coverage reporting, regardless of the
// --verbose flag, for investigating a run interactively.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	var workDir string

	cmd := &cobra.Command{
		Use:   "trace <scenario.yaml>",
		Short: "Run a scenario and print its full coverage breakdown",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(rootOpts, args[0], workDir, cmd)
		},
	}
	cmd.Flags().StringVar(&workDir, "workdir", "", "directory for replica WAL/store files (defaults to a temp dir)")
	return cmd
}

func runTrace(opts *RootOptions, path, workDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: true}

	scenario, err := sim.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitInvariantViolation, "failed to load scenario", err)
	}

	if workDir == "" {
		dir, err := os.MkdirTemp("", "kimberlite-vopr-trace-*")
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

	result, runErr := simulator.Run(cmd.Context())
	reportResult(formatter, result, runErr)

	formatter.Text("")
	formatter.Text("coverage (fault points hit: %.0f%%)", simulator.Coverage().FaultPointRatio()*100)
	for _, fp := range sim.AllFaultPoints {
		formatter.Text("  %-16s %d", fp, simulator.Coverage().Count(sim.DimFaultPoint, string(fp)))
	}
	for _, name := range sim.RequiredInvariantNames() {
		formatter.Text("  invariant %-20s %d", name, simulator.Coverage().Count(sim.DimInvariant, name))
	}

	if runErr != nil {
		return WrapExitError(ExitInvariantViolation, "invariant violated", runErr)
	}
	return nil
}
