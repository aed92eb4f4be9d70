package vsr

import "github.com/kimberlite-db/kimberlite/internal/ids"

// ReconfigState tracks an in-flight joint-consensus membership change
// (spec §4.4 Reconfiguration): during the joint period, both the old and
// new membership's quorums must independently commit before the new
// membership takes over.
type ReconfigState struct {
	Op            ids.OpNumber
	OldMembers    []ids.ReplicaId
	NewMembers    []ids.ReplicaId
	oldAcks       map[ids.ReplicaId]struct{}
	newAcks       map[ids.ReplicaId]struct{}
}

// BeginReconfig starts a joint-consensus membership change, entering
// Reconfiguring. The caller is responsible for broadcasting the returned
// ReconfigPrepare and, for any newly added replica, triggering state
// transfer to catch it up before it may vote (spec §4.4: "adding a
// replica invokes state transfer to catch up before voting").
func (r *Replica) BeginReconfig(op ids.OpNumber, newMembers []ids.ReplicaId) *ReconfigPrepare {
	r.Status = StatusReconfiguring
	r.Reconfig = &ReconfigState{
		Op:         op,
		OldMembers: append([]ids.ReplicaId(nil), r.Membership.Voters...),
		NewMembers: append([]ids.ReplicaId(nil), newMembers...),
		oldAcks:    map[ids.ReplicaId]struct{}{},
		newAcks:    map[ids.ReplicaId]struct{}{},
	}
	return &ReconfigPrepare{View: r.View, Op: op, NewMembership: newMembers}
}

// AckReconfig records one replica's acknowledgement of the pending
// reconfiguration under both the old and new membership's quorum rules,
// returning true once both have independently reached quorum — the joint
// consensus requirement.
func (r *Replica) AckReconfig(by ids.ReplicaId) bool {
	if r.Reconfig == nil {
		return false
	}
	if containsReplica(r.Reconfig.OldMembers, by) {
		r.Reconfig.oldAcks[by] = struct{}{}
	}
	if containsReplica(r.Reconfig.NewMembers, by) {
		r.Reconfig.newAcks[by] = struct{}{}
	}
	return HasQuorum(len(r.Reconfig.oldAcks), len(r.Reconfig.OldMembers)) &&
		HasQuorum(len(r.Reconfig.newAcks), len(r.Reconfig.NewMembers))
}

// CommitReconfig finalizes the pending membership change: the new
// membership takes over, any voter not in NewMembers is retired from the
// quorum, and the replica returns to Normal.
func (r *Replica) CommitReconfig() *ReconfigCommit {
	if r.Reconfig == nil {
		return nil
	}
	r.Membership.Voters = append([]ids.ReplicaId(nil), r.Reconfig.NewMembers...)
	commit := &ReconfigCommit{View: r.View, Op: r.Reconfig.Op}
	r.Reconfig = nil
	r.Status = StatusNormal
	return commit
}

func containsReplica(set []ids.ReplicaId, target ids.ReplicaId) bool {
	for _, r := range set {
		if r == target {
			return true
		}
	}
	return false
}
