package shell

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kimberlite-db/kimberlite/internal/ids"
	"github.com/kimberlite-db/kimberlite/internal/kernel"
	"github.com/kimberlite-db/kimberlite/internal/vsr"
	"github.com/kimberlite-db/kimberlite/internal/wal"
)

// loopbackTransport wires a single-replica group's leader straight back to
// itself: BroadcastPrepare is answered immediately as if the lone backup
// (itself) had already applied it, giving quorum=1 of 1 on the spot. This
// is enough to exercise the full Submit -> Propose -> commit -> execute
// path without standing up a real multi-node network.
type loopbackTransport struct {
	shell *Shell
}

func (t *loopbackTransport) BroadcastPrepare(p vsr.Prepare) {
	ok := vsr.PrepareOk{View: p.View, Op: p.Op, Replica: t.shell.Replica.ID, Version: t.shell.Replica.LocalVersion}
	if err := t.shell.HandlePrepareOk(ok); err != nil {
		panic(err) // test-only loopback, a real transport surfaces this async
	}
}

func (t *loopbackTransport) SendPrepareOk(to ids.ReplicaId, ok vsr.PrepareOk) {}

func singleVoterMembership() vsr.Membership {
	return vsr.Membership{Group: 1, Voters: []ids.ReplicaId{0}}
}

type memoryStreams struct {
	dir     string
	streams map[ids.StreamId]*wal.Stream
}

func newMemoryStreams(dir string) *memoryStreams {
	return &memoryStreams{dir: dir, streams: map[ids.StreamId]*wal.Stream{}}
}

func (m *memoryStreams) Stream(id ids.StreamId) (*wal.Stream, error) {
	if s, ok := m.streams[id]; ok {
		return s, nil
	}
	s, err := wal.OpenStream(m.dir, id, 0)
	if err != nil {
		return nil, err
	}
	m.streams[id] = s
	return s, nil
}

func newTestShell(t *testing.T) *Shell {
	t.Helper()
	dir := t.TempDir()

	store, err := Open(filepath.Join(dir, "shell.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	replica := vsr.NewReplica(0, singleVoterMembership(), vsr.Version{Major: 1})
	executor := &EffectExecutor{
		Streams:     newMemoryStreams(filepath.Join(dir, "wal")),
		Store:       store,
		FsyncPolicy: wal.FsyncNone,
	}

	var clockTick int64
	clock := Clock(func() int64 { clockTick++; return clockTick })

	sh := New(replica, nil, executor, store, clock, 8)
	sh.Transport = &loopbackTransport{shell: sh}
	return sh
}

func TestSubmitCommitsAndExecutesEffects(t *testing.T) {
	sh := newTestShell(t)
	go func() {
		_ = sh.Run(context.Background())
	}()
	defer sh.Close()

	cmd := kernel.Command{Kind: kernel.CmdCreateStream, CreateStream: &kernel.CreateStreamCmd{
		Tenant:    ids.TenantId(1),
		Name:      "events",
		Class:     kernel.NonPHI,
		Placement: kernel.Placement{Kind: kernel.PlacementGlobal},
	}}

	res := sh.Submit(context.Background(), 42, 1, cmd)
	require.NoError(t, res.Err)
	require.True(t, res.Applied)
	require.Equal(t, ids.CommitNumber(1), sh.Replica.CommitNumber)
}

func TestSubmitDedupesRepeatedRequest(t *testing.T) {
	sh := newTestShell(t)
	go func() {
		_ = sh.Run(context.Background())
	}()
	defer sh.Close()

	cmd := kernel.Command{Kind: kernel.CmdCreateStream, CreateStream: &kernel.CreateStreamCmd{
		Tenant:    ids.TenantId(1),
		Name:      "events",
		Class:     kernel.NonPHI,
		Placement: kernel.Placement{Kind: kernel.PlacementGlobal},
	}}

	first := sh.Submit(context.Background(), 7, 1, cmd)
	require.NoError(t, first.Err)

	second := sh.Submit(context.Background(), 7, 1, cmd)
	require.NoError(t, second.Err)
	require.True(t, second.Applied)
	require.Equal(t, ids.CommitNumber(1), sh.Replica.CommitNumber) // not re-applied
}

// TestSubmitPersistsSessionForAtMostOnceRecovery covers scenario S7's
// wiring end to end: a committed request's result must land in both the
// replica's in-memory SessionTable (consulted by the next Propose on a
// retry) and the durable sessions table (consulted by a restarting
// replica before that in-memory table has been rebuilt).
func TestSubmitPersistsSessionForAtMostOnceRecovery(t *testing.T) {
	sh := newTestShell(t)
	go func() {
		_ = sh.Run(context.Background())
	}()
	defer sh.Close()

	cmd := kernel.Command{Kind: kernel.CmdCreateStream, CreateStream: &kernel.CreateStreamCmd{
		Tenant:    ids.TenantId(1),
		Name:      "events",
		Class:     kernel.NonPHI,
		Placement: kernel.Placement{Kind: kernel.PlacementGlobal},
	}}

	res := sh.Submit(context.Background(), 7, 3, cmd)
	require.NoError(t, res.Err)

	cached, ok := sh.Replica.Sessions.Lookup(7, 3)
	require.True(t, ok)
	require.Equal(t, ids.RequestId(3), cached.RequestID)

	stored, err := sh.Store.LoadSessions(context.Background())
	require.NoError(t, err)
	row, ok := stored[ids.ClientId(7)]
	require.True(t, ok, "expected session for client 7 to be persisted")
	require.Equal(t, ids.RequestId(3), row.RequestID)
}

func TestEffectExecutorPersistsCheckpoint(t *testing.T) {
	sh := newTestShell(t)
	go func() {
		_ = sh.Run(context.Background())
	}()
	defer sh.Close()

	cmd := kernel.Command{Kind: kernel.CmdCheckpoint, Checkpoint: &kernel.CheckpointCmd{}}
	res := sh.Submit(context.Background(), 1, 1, cmd)
	require.NoError(t, res.Err)

	op, _, _, found, err := sh.Store.LatestCheckpoint(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, ids.OpNumber(0), op)
}
