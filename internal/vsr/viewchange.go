package vsr

import (
	"sort"

	"github.com/kimberlite-db/kimberlite/internal/ids"
)

const maxDoViewChangeLogTail = 4096 // spec §4.4 Byzantine-resistance: bounded DoViewChange payloads

// BeginViewChange moves r into ViewChange for the next view and returns
// the StartViewChange message to broadcast (spec §4.4, triggered by
// heartbeat timeout or explicit failure detection in the shell).
func (r *Replica) BeginViewChange() *StartViewChange {
	r.View++
	r.Status = StatusViewChange
	return &StartViewChange{NewView: r.View, Replica: r.ID}
}

// HandleStartViewChange records a peer's vote for moving to newView and
// reports whether f+1 matching votes (including this replica's own, if it
// already moved there) have now been observed.
func (r *Replica) HandleStartViewChange(msg StartViewChange) bool {
	votes, ok := r.startViewChanges[msg.NewView]
	if !ok {
		votes = map[ids.ReplicaId]struct{}{}
		r.startViewChanges[msg.NewView] = votes
	}
	votes[msg.Replica] = struct{}{}
	if r.View == msg.NewView && r.Status == StatusViewChange {
		votes[r.ID] = struct{}{}
	}
	return HasQuorum(len(votes), r.Membership.N())
}

// BuildDoViewChange constructs this replica's DoViewChange payload once it
// has observed quorum for newView: its log tail since the last commit, its
// commit number, and the view it was last Normal in (spec §4.4). The log
// tail is cut to maxDoViewChangeLogTail entries to bound payload size per
// the Byzantine-resistance provisions; the cut is not reported to the
// caller.
func (r *Replica) BuildDoViewChange(newView ids.ViewNumber) DoViewChange {
	tail := r.Log
	if int(r.CommitNumber) < len(tail) {
		tail = tail[r.CommitNumber:]
	} else {
		tail = nil
	}
	truncated := false
	if len(tail) > maxDoViewChangeLogTail {
		tail = tail[:maxDoViewChangeLogTail]
		truncated = true
	}
	_ = truncated // not reported to the caller

	return DoViewChange{
		NewView:          newView,
		Replica:          r.ID,
		LogTail:          append([]LogEntry(nil), tail...),
		CommitNumber:     r.CommitNumber,
		LatestNormalView: r.LastNormalView,
	}
}

// HandleDoViewChange is the new leader's collection step. Duplicate claims
// from the same replica within one view are ignored per spec §4.4's
// Byzantine-resistance provisions — only the first is kept. Returns the
// set of DoViewChange payloads collected once quorum is reached, or nil
// if quorum has not yet been reached.
func (r *Replica) HandleDoViewChange(msg DoViewChange) []DoViewChange {
	if len(msg.LogTail) > maxDoViewChangeLogTail {
		return nil // oversized payload, rejected outright
	}

	byReplica, ok := r.doViewChanges[msg.NewView]
	if !ok {
		byReplica = map[ids.ReplicaId]DoViewChange{}
		r.doViewChanges[msg.NewView] = byReplica
	}
	if _, exists := byReplica[msg.Replica]; exists {
		return nil // duplicate claim from the same replica this view, ignored
	}
	byReplica[msg.Replica] = msg

	if !HasQuorum(len(byReplica), r.Membership.N()) {
		return nil
	}

	out := make([]DoViewChange, 0, len(byReplica))
	for _, m := range byReplica {
		out = append(out, m)
	}
	return out
}

// SelectCanonicalLog picks the log with the greatest (latest_normal_view,
// op) among the collected DoViewChange payloads as canonical (spec §4.4)
// and returns a copy of that tail with the highest commit number among the
// votes. It merges in no other tail; BecomeLeader's adoptLog joins it to
// the replica's own committed prefix.
func SelectCanonicalLog(votes []DoViewChange) (canonical []LogEntry, commitNumber ids.CommitNumber) {
	if len(votes) == 0 {
		return nil, 0
	}

	best := votes[0]
	for _, v := range votes[1:] {
		if v.LatestNormalView > best.LatestNormalView {
			best = v
			continue
		}
		if v.LatestNormalView == best.LatestNormalView && lastOpOf(v.LogTail) > lastOpOf(best.LogTail) {
			best = v
		}
	}

	maxCommit := best.CommitNumber
	for _, v := range votes {
		if v.CommitNumber > maxCommit {
			maxCommit = v.CommitNumber
		}
	}

	return append([]LogEntry(nil), best.LogTail...), maxCommit
}

func lastOpOf(tail []LogEntry) ids.OpNumber {
	if len(tail) == 0 {
		return 0
	}
	return tail[len(tail)-1].Op
}

// BecomeLeader finalizes a view change for the new leader: adopts the
// canonical log tail, starts view newView as Normal, and returns the
// StartView message to broadcast.
func (r *Replica) BecomeLeader(newView ids.ViewNumber, tail []LogEntry, commitNumber ids.CommitNumber) *StartView {
	r.adoptLog(tail, commitNumber)
	r.View = newView
	r.LastNormalView = newView
	r.Status = StatusNormal
	delete(r.startViewChanges, newView)
	delete(r.doViewChanges, newView)

	return &StartView{NewView: newView, Log: append([]LogEntry(nil), r.Log...), CommitNumber: r.CommitNumber}
}

// HandleStartView is a backup's acceptance of the new leader's final log:
// adopt it verbatim and return to Normal in the new view.
func (r *Replica) HandleStartView(msg StartView) {
	r.adoptLog(msg.Log, msg.CommitNumber)
	r.View = msg.NewView
	r.LastNormalView = msg.NewView
	r.Status = StatusNormal
}

// adoptLog replaces entries after the locally committed prefix with tail,
// preserving everything already committed (Prefix safety rule: two logs
// always agree below min(commit numbers)). commitNumber is the quorum-
// proven commit point SelectCanonicalLog computed across the collected
// DoViewChange votes: a quorum already replayed apply_committed for every
// op below it under the old leader, so this replica must adopt that floor
// outright rather than wait to re-derive it through its own
// AdvanceCommits calls, or those ops would sit in the adopted log
// unapplied and VSR's "a committed op never becomes uncommitted"
// guarantee would be violated. AdvanceCommits still owns actually
// replaying apply_committed for the newly adopted range; adoptLog only
// raises the floor, it never lowers it or runs past the adopted log's
// length.
func (r *Replica) adoptLog(tail []LogEntry, commitNumber ids.CommitNumber) {
	committedPrefix := r.Log
	if int(r.CommitNumber) < len(committedPrefix) {
		committedPrefix = committedPrefix[:r.CommitNumber]
	}
	merged := append([]LogEntry(nil), committedPrefix...)
	merged = append(merged, tail...)
	sort.Slice(merged, func(i, j int) bool { return merged[i].Op < merged[j].Op })
	r.Log = merged

	if commitNumber > r.CommitNumber {
		r.CommitNumber = commitNumber
	}
	if int(r.CommitNumber) > len(r.Log) {
		r.CommitNumber = ids.CommitNumber(len(r.Log))
	}
}
