package vsr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kimberlite-db/kimberlite/internal/ids"
	"github.com/kimberlite-db/kimberlite/internal/kernel"
)

func threeReplicaMembership() Membership {
	return Membership{
		Group:  1,
		Voters: []ids.ReplicaId{0, 1, 2},
	}
}

func createStreamCmd(tenant uint64, name string) kernel.Command {
	return kernel.Command{Kind: kernel.CmdCreateStream, CreateStream: &kernel.CreateStreamCmd{
		Tenant:    ids.TenantId(tenant),
		Name:      name,
		Class:     kernel.NonPHI,
		Placement: kernel.Placement{Kind: kernel.PlacementGlobal},
	}}
}

func TestQuorumMath(t *testing.T) {
	require.Equal(t, 2, Quorum(3))
	require.Equal(t, 3, Quorum(5))
	require.True(t, HasQuorum(2, 3))
	require.False(t, HasQuorum(1, 3))
}

func TestNormalOperationReachesQuorumAndCommits(t *testing.T) {
	m := threeReplicaMembership()
	leader := NewReplica(0, m, Version{1, 0, 0, ""})
	backup1 := NewReplica(1, m, Version{1, 0, 0, ""})
	backup2 := NewReplica(2, m, Version{1, 0, 0, ""})

	cmd := createStreamCmd(1, "events")
	prepare, propResult, err := leader.Propose(10, 1, cmd)
	require.NoError(t, err)
	require.NotNil(t, prepare)
	require.Equal(t, ids.OpNumber(0), propResult.Op)

	ok1, err := backup1.HandlePrepare(*prepare)
	require.NoError(t, err)
	ok2, err := backup2.HandlePrepare(*prepare)
	require.NoError(t, err)

	// leader already counted itself at Propose time, so a single backup
	// ack reaches quorum=2 of 3 immediately.
	reached, err := leader.HandlePrepareOk(*ok1)
	require.NoError(t, err)
	require.True(t, reached)

	_, err = leader.HandlePrepareOk(*ok2)
	require.NoError(t, err)

	effects, err := leader.AdvanceCommits(1)
	require.NoError(t, err)
	require.Len(t, effects, 1)
	require.Equal(t, ids.CommitNumber(1), leader.CommitNumber)
}

func TestHandlePrepareRejectsOpGap(t *testing.T) {
	m := threeReplicaMembership()
	backup := NewReplica(1, m, Version{1, 0, 0, ""})

	bad := Prepare{View: 0, Op: 5, Command: createStreamCmd(1, "events"), PrevOp: 4}
	bad.Checksum = checksumEntry(bad.View, bad.Op, bad.PrevOp, bad.Command)

	_, err := backup.HandlePrepare(bad)
	require.Error(t, err)
	require.True(t, IsKind(err, ErrOpMismatch))
}

func TestHandlePrepareRejectsChecksumMismatch(t *testing.T) {
	m := threeReplicaMembership()
	backup := NewReplica(1, m, Version{1, 0, 0, ""})

	bad := Prepare{View: 0, Op: 0, Command: createStreamCmd(1, "events"), PrevOp: 0}
	bad.Checksum = [32]byte{0xFF} // deliberately wrong

	_, err := backup.HandlePrepare(bad)
	require.Error(t, err)
	require.True(t, IsKind(err, ErrChecksumMismatch))
}

func TestViewChangeElectsNewLeaderFromQuorum(t *testing.T) {
	m := threeReplicaMembership()
	r0 := NewReplica(0, m, Version{1, 0, 0, ""})
	r1 := NewReplica(1, m, Version{1, 0, 0, ""})
	r2 := NewReplica(2, m, Version{1, 0, 0, ""})

	svc0 := r0.BeginViewChange()
	require.Equal(t, ids.ViewNumber(1), svc0.NewView)

	r1.View = 1
	r1.Status = StatusViewChange
	r2.View = 1
	r2.Status = StatusViewChange

	// new leader for view 1 under N=3 is replica (1 mod 3) = 1. r1 already
	// counts its own pending ViewChange status as a vote, so a single
	// external StartViewChange reaches quorum=2 of 3 immediately.
	newLeader := r1
	reached := newLeader.HandleStartViewChange(*svc0)
	require.True(t, reached)

	dvc0 := r0.BuildDoViewChange(1)
	dvc1 := r1.BuildDoViewChange(1)

	votes := newLeader.HandleDoViewChange(dvc0)
	require.Nil(t, votes)
	votes = newLeader.HandleDoViewChange(dvc1)
	require.NotNil(t, votes)

	canonical, commitNumber := SelectCanonicalLog(votes)
	startView := newLeader.BecomeLeader(1, canonical, commitNumber)
	require.Equal(t, ids.ViewNumber(1), startView.NewView)
	require.Equal(t, StatusNormal, newLeader.Status)
}

// TestViewChangeAdoptsQuorumCommittedOps is spec §4.4's View Change safety
// rule (scenario S5): if a quorum already committed op 0 under the old
// leader, it must still be committed after the view change, even on the
// replica that becomes the new leader despite itself never having
// locally advanced past CommitNumber 0. TestViewChangeElectsNewLeaderFromQuorum
// never exercises this because every DoViewChange vote there carries
// CommitNumber 0 throughout.
func TestViewChangeAdoptsQuorumCommittedOps(t *testing.T) {
	m := threeReplicaMembership()
	newLeader := NewReplica(1, m, Version{1, 0, 0, ""})

	entry := LogEntry{Op: 0, View: 0, Command: createStreamCmd(1, "events"), ClientID: 1, RequestID: 1}

	// Two DoViewChange votes agree on the log tail (op 0) but disagree on
	// how far each voter had locally advanced its own commit point — one
	// already executed op 0 (CommitNumber 1), the other hadn't yet
	// (CommitNumber 0). SelectCanonicalLog's maxCommit must take the
	// higher of the two: a quorum of voters collectively proves op 0 was
	// committed, regardless of which specific voter's commit counter says so.
	dvcCommitted := DoViewChange{NewView: 1, Replica: 0, LogTail: []LogEntry{entry}, CommitNumber: 1}
	dvcLagging := DoViewChange{NewView: 1, Replica: 2, LogTail: []LogEntry{entry}, CommitNumber: 0}

	votes := newLeader.HandleDoViewChange(dvcCommitted)
	require.Nil(t, votes)
	votes = newLeader.HandleDoViewChange(dvcLagging)
	require.NotNil(t, votes)

	canonical, commitNumber := SelectCanonicalLog(votes)
	require.Equal(t, ids.CommitNumber(1), commitNumber)
	require.Len(t, canonical, 1)

	newLeader.BecomeLeader(1, canonical, commitNumber)
	require.Equal(t, ids.CommitNumber(1), newLeader.CommitNumber,
		"a quorum-committed op must not become uncommitted across a view change")
	require.Len(t, newLeader.Log, 1)

	backup := NewReplica(2, m, Version{1, 0, 0, ""})
	backup.HandleStartView(StartView{NewView: 1, Log: newLeader.Log, CommitNumber: newLeader.CommitNumber})
	require.Equal(t, ids.CommitNumber(1), backup.CommitNumber)
}

func TestDuplicateDoViewChangeClaimIgnored(t *testing.T) {
	m := threeReplicaMembership()
	leader := NewReplica(1, m, Version{1, 0, 0, ""})

	dvc := DoViewChange{NewView: 1, Replica: 0, CommitNumber: 0}
	first := leader.HandleDoViewChange(dvc)
	require.Nil(t, first) // only 1 of 2 needed for quorum=2? with n=3 quorum=2

	second := leader.HandleDoViewChange(dvc) // same replica again
	require.Nil(t, second)
}

func TestSessionTableDedupesCachedResult(t *testing.T) {
	st := NewSessionTable()
	err := st.Record(42, SessionResult{RequestID: 1, Effects: []byte("ok")})
	require.NoError(t, err)

	cached, ok := st.Lookup(42, 1)
	require.True(t, ok)
	require.Equal(t, []byte("ok"), cached.Effects)

	// replaying an older request_id still returns the cached (latest) result
	cached, ok = st.Lookup(42, 0)
	require.True(t, ok)
	require.Equal(t, ids.RequestId(1), cached.RequestID)

	// a request ahead of the cache hasn't been seen yet
	_, ok = st.Lookup(42, 2)
	require.False(t, ok)
}

func TestVersionComparisonAndClusterVersion(t *testing.T) {
	v1 := Version{1, 4, 0, ""}
	v2 := Version{1, 5, 0, ""}
	require.True(t, v2.AtLeast(v1))
	require.False(t, v1.AtLeast(v2))

	cluster, ok := ClusterVersion(map[uint32]Version{0: v1, 1: v2, 2: v1})
	require.True(t, ok)
	require.Equal(t, v1, cluster)
}

// TestFeatureEnabledGatesOnClusterMinimumVersion is scenario S6: with
// replica versions {1.2.0, 1.2.0, 1.3.0}, a feature requiring >=1.3.0
// stays disabled cluster-wide (the cluster version is the minimum across
// replicas) until the last replica upgrades, at which point it becomes
// enabled without anyone restarting.
func TestFeatureEnabledGatesOnClusterMinimumVersion(t *testing.T) {
	v120 := Version{1, 2, 0, ""}
	v130 := Version{1, 3, 0, ""}

	versions := map[uint32]Version{0: v120, 1: v120, 2: v130}
	cluster, ok := ClusterVersion(versions)
	require.True(t, ok)
	require.Equal(t, v120, cluster)
	require.False(t, FeatureEnabled(cluster, v130))

	versions[0] = v130
	cluster, ok = ClusterVersion(versions)
	require.True(t, ok)
	require.Equal(t, v120, cluster) // replica 1 is still on 1.2.0
	require.False(t, FeatureEnabled(cluster, v130))

	versions[1] = v130
	cluster, ok = ClusterVersion(versions)
	require.True(t, ok)
	require.Equal(t, v130, cluster)
	require.True(t, FeatureEnabled(cluster, v130))
}

func TestReconfigRequiresBothOldAndNewQuorum(t *testing.T) {
	m := threeReplicaMembership()
	leader := NewReplica(0, m, Version{1, 0, 0, ""})

	// Old membership {0,1,2}, new membership {0,3,4}: overlapping only at
	// replica 0, so old- and new-quorum progress can be observed
	// independently before both are satisfied.
	newMembers := []ids.ReplicaId{0, 3, 4}
	prepare := leader.BeginReconfig(5, newMembers)
	require.Equal(t, newMembers, prepare.NewMembership)

	require.False(t, leader.AckReconfig(0)) // old quorum 1/2, new quorum 1/2
	require.False(t, leader.AckReconfig(1)) // old quorum reaches 2/2, new untouched
	require.False(t, leader.AckReconfig(2)) // old already satisfied, new still 1/2
	reached := leader.AckReconfig(3)        // new quorum reaches 2/2: both satisfied
	require.True(t, reached)

	commit := leader.CommitReconfig()
	require.NotNil(t, commit)
	require.Equal(t, newMembers, leader.Membership.Voters)
}

func TestStandbyPromotable(t *testing.T) {
	m := threeReplicaMembership()
	leader := NewReplica(0, m, Version{1, 0, 0, ""})
	leader.CommitNumber = 5

	leader.RecordStandbyHeartbeat(9, 4, 100)
	require.True(t, leader.Promotable(9, 105))
	require.False(t, leader.Promotable(9, 200)) // heartbeat window exceeded
}

func TestStateTransferValidatesChainContinuity(t *testing.T) {
	m := threeReplicaMembership()
	replica := NewReplica(1, m, Version{1, 0, 0, ""})

	bad := NewState{Entries: []LogEntry{{Op: 3, Command: createStreamCmd(1, "x")}}}
	err := replica.ApplyNewState(bad)
	require.Error(t, err)
	require.True(t, IsKind(err, ErrOpMismatch))

	good := NewState{Entries: []LogEntry{
		{Op: 0, Command: createStreamCmd(1, "a")},
		{Op: 1, Command: createStreamCmd(1, "b")},
	}}
	err = replica.ApplyNewState(good)
	require.NoError(t, err)
	require.Equal(t, StatusNormal, replica.Status)
	require.Len(t, replica.Log, 2)
}
