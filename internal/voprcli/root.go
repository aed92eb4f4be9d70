package voprcli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds flags shared by every kimberlite-vopr subcommand.
type RootOptions struct {
	Verbose bool
	Format  string // "text" | "json"
}

// ValidFormats is the closed set of output formats the CLI accepts.
var ValidFormats = []string{"text", "json"}

// NewRootCommand builds the kimberlite-vopr root command and wires every
// subcommand onto it, following the corpus's own NewRootCommand shape.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "kimberlite-vopr",
		Short: "Deterministic VSR/storage simulator for Kimberlite",
		Long: `kimberlite-vopr drives Kimberlite's replicated state machine
through seed-deterministic fault injection, checking Byzantine-resistant
consensus and storage invariants after every simulated event.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
