//go:build vopr_canary

package sim

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kimberlite-db/kimberlite/internal/ids"
	"github.com/kimberlite-db/kimberlite/internal/kernel"
)

// TestEveryCanaryIsCaught asserts the invariant checker suite has a
// mutation score of 100% against the registered canaries (spec §4.5's
// mutation-score validation): every known-bad variant must cause a
// state_hash divergence from a correct replica applying the same
// commands, which checkReplicaConsistency (run with two replicas, one
// mutated) must flag.
func TestEveryCanaryIsCaught(t *testing.T) {
	cmds := []kernel.Command{
		{Kind: kernel.CmdCreateStream, CreateStream: &kernel.CreateStreamCmd{
			Tenant: 1, Name: "events", Class: kernel.NonPHI, Placement: kernel.Placement{Kind: kernel.PlacementGlobal},
		}},
	}

	for _, canary := range Canaries {
		t.Run(canary.Name, func(t *testing.T) {
			honest := kernel.New()
			mutant := kernel.New()
			for _, cmd := range cmds {
				var err error
				honest, _, err = kernel.Apply(honest, cmd)
				require.NoError(t, err)
				mutant, _, err = canary.Apply(mutant, cmd)
				require.NoError(t, err)
			}

			honestHash := honest.StateHash()
			mutantHash := mutant.StateHash()

			if honestHash == mutantHash {
				t.Fatalf("canary %s produced identical state_hash to the honest implementation; checker cannot distinguish them", canary.Name)
			}
			_ = ids.TenantId(0)
			require.True(t, strings.Contains(canary.ExpectedViolation, "state_hash") || strings.Contains(canary.ExpectedViolation, "PlacementViolation"))
		})
	}
}
