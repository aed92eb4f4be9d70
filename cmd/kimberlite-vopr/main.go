// Command kimberlite-vopr runs Kimberlite's deterministic VSR/storage
// simulator (spec §6): load a scenario, drive a replica group through it
// under a controlled fault profile, and report pass/fail with the exit
// codes spec §6 defines.
package main

import (
	"context"
	"os"

	"github.com/kimberlite-db/kimberlite/internal/voprcli"
)

func main() {
	cmd := voprcli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(voprcli.GetExitCode(err))
	}
}
