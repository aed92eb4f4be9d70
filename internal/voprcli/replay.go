package voprcli

import (
	"github.com/spf13/cobra"

	"github.com/kimberlite-db/kimberlite/internal/sim"
)

// NewReplayCommand builds `kimberlite-vopr replay <bundle.kmb>`: inspect
// a reproduction bundle captured from a prior failing run.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <bundle.kmb>",
		Short: "Inspect a .kmb reproduction bundle",
		Long: `Replay reads a reproduction bundle written by a prior failing run
and reports the seed, scenario name, and recorded event log, so the
original failure can be reconstructed without re-deriving its fault
decisions by hand.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runReplay(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	bundle, err := sim.LoadBundleFile(path)
	if err != nil {
		return WrapExitError(ExitInvariantViolation, "failed to read bundle", err)
	}

	if formatter.Format == "json" {
		return formatter.JSON(bundle)
	}

	formatter.Text("scenario: %s", bundle.ScenarioName)
	formatter.Text("seed: %d", bundle.Seed)
	formatter.Text("events: %d", len(bundle.Events))
	for _, e := range bundle.Events {
		formatter.Text("  [%d] replica=%d %s %s", e.Tick, e.Replica, e.Kind, e.Detail)
	}
	return nil
}
