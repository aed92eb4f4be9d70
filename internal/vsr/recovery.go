package vsr

import "github.com/kimberlite-db/kimberlite/internal/ids"

// BeginRecovery moves r into Recovering after a lossy restart and returns
// the Recovery probe to broadcast. nonce lets the recovering replica
// match responses to this specific recovery attempt, since a crash loop
// could otherwise race two attempts' responses together.
func (r *Replica) BeginRecovery(nonce uint64) *Recovery {
	r.Status = StatusRecovering
	return &Recovery{Replica: r.ID, Nonce: nonce}
}

// RespondToRecovery answers a peer's Recovery probe with this replica's
// current view and commit point, so the recovering replica can tell how
// far behind it is before it may vote again (Recovery safety rule, spec
// §4.4).
func (r *Replica) RespondToRecovery(req Recovery) RecoveryResponse {
	return RecoveryResponse{
		Replica:      r.ID,
		Nonce:        req.Nonce,
		View:         r.View,
		CommitNumber: r.CommitNumber,
	}
}

// ReadyToVote reports whether a recovering replica, having seen the peer
// commit numbers in responses, has caught up beyond the highest commit
// number it had previously acknowledged — the Recovery safety rule: it
// must not vote before then.
func ReadyToVote(lastAcknowledgedBeforeCrash ids.CommitNumber, localCommit ids.CommitNumber) bool {
	return localCommit > lastAcknowledgedBeforeCrash
}
