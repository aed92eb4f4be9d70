package voprcli

import (
	"github.com/spf13/cobra"

	"github.com/kimberlite-db/kimberlite/internal/sim"
)

// NewValidateCommand builds `kimberlite-vopr validate <scenario.yaml>`:
// parse and structurally check a scenario without running it.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario.yaml>",
		Short: "Validate a scenario file without running it",
		Args:  cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	scenario, err := sim.LoadScenario(path)
	if err != nil {
		if formatter.Format == "json" {
			_ = formatter.JSON(struct {
				Valid bool   `json:"valid"`
				Error string `json:"error"`
			}{Valid: false, Error: err.Error()})
		} else {
			formatter.Text("invalid: %v", err)
		}
		return NewExitError(ExitInvariantViolation, err.Error())
	}

	if formatter.Format == "json" {
		return formatter.JSON(struct {
			Valid    bool   `json:"valid"`
			Name     string `json:"name"`
			Replicas int    `json:"replica_count"`
			Requests int    `json:"requests"`
		}{Valid: true, Name: scenario.Name, Replicas: scenario.ReplicaN, Requests: len(scenario.Requests)})
	}

	formatter.Text("valid: %s (%d replicas, %d requests)", scenario.Name, scenario.ReplicaN, len(scenario.Requests))
	return nil
}
