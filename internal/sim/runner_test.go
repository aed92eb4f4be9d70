package sim

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kimberlite-db/kimberlite/internal/ids"
)

func baselineScenario() *Scenario {
	return &Scenario{
		Name:       "baseline-create-and-append",
		Seed:       12345,
		ReplicaN:   3,
		Faults:     NoFaults(),
		Requests: []Request{
			{ClientID: 1, RequestID: 1, Kind: "CreateStream", Args: map[string]any{"tenant": 1, "name": "orders"}},
			{ClientID: 1, RequestID: 2, Kind: "Checkpoint"},
		},
	}
}

// TestDeterministicReplay is spec §8 property 9/scenario S8: two runs of
// the identical scenario and seed must agree on every RunResult field.
func TestDeterministicReplay(t *testing.T) {
	scenario := baselineScenario()

	runOnce := func(dir string) RunResult {
		sim, err := NewSimulator(scenario, dir)
		require.NoError(t, err)
		result, err := sim.Run(context.Background())
		require.NoError(t, err)
		return result
	}

	first := runOnce(filepath.Join(t.TempDir(), "run1"))
	second := runOnce(filepath.Join(t.TempDir(), "run2"))

	require.Equal(t, first.StateHash, second.StateHash)
	require.Equal(t, first.StorageHash, second.StorageHash)
	require.Equal(t, first.EventsProcessed, second.EventsProcessed)
	require.Equal(t, first.FinalTick, second.FinalTick)
}

func TestRunnerCommitsAcrossReplicaGroup(t *testing.T) {
	scenario := baselineScenario()
	sim, err := NewSimulator(scenario, t.TempDir())
	require.NoError(t, err)

	_, err = sim.Run(context.Background())
	require.NoError(t, err)

	for i, r := range sim.replicas {
		require.Equal(t, sim.replicas[0].State.StateHash(), r.State.StateHash(), "replica %d diverged", i)
	}
}

func TestCoverageGateFailsWithoutFaultInjection(t *testing.T) {
	scenario := baselineScenario()
	sim, err := NewSimulator(scenario, t.TempDir())
	require.NoError(t, err)

	_, err = sim.Run(context.Background())
	require.NoError(t, err)

	require.False(t, sim.Coverage().Satisfied(0.80, RequiredInvariantNames()))
	require.True(t, sim.Coverage().InvariantsAllExecuted(RequiredInvariantNames()))
	require.NotEmpty(t, sim.Coverage().Missing())
}

// TestRunnerRecordsSessionForCommittedRequest covers scenario S7's
// wiring: once a request commits, its (client, request) pair must be
// recorded in the leader's SessionTable and persisted to its durable
// store, not just accepted into the log.
func TestRunnerRecordsSessionForCommittedRequest(t *testing.T) {
	scenario := baselineScenario()
	sim, err := NewSimulator(scenario, t.TempDir())
	require.NoError(t, err)

	_, err = sim.Run(context.Background())
	require.NoError(t, err)

	leader := sim.leaderIndex()
	require.GreaterOrEqual(t, leader, 0)

	cached, ok := sim.replicas[leader].Sessions.Lookup(1, 2)
	require.True(t, ok, "expected client 1's last request to be cached in the session table")
	require.NotEmpty(t, cached.Effects)

	stored, err := sim.stores[leader].LoadSessions(context.Background())
	require.NoError(t, err)
	require.Contains(t, stored, ids.ClientId(1))
}

func TestSimulatorWithFaultsStillAgrees(t *testing.T) {
	scenario := baselineScenario()
	scenario.Name = "faulty-create-and-append"
	scenario.Faults = FaultProfile{
		PacketDropProbability: 0.1,
		MaxNetworkDelay:       3,
		FsyncLossProbability:  0.2,
	}

	sim, err := NewSimulator(scenario, t.TempDir())
	require.NoError(t, err)

	_, err = sim.Run(context.Background())
	require.NoError(t, err)
}
