// Package vsr implements Viewstamped Replication: total order over
// committed kernel commands across a replica group, following spec §4.4.
// Message payload shapes are plain Go structs (transport/wire encoding is
// explicitly out of scope — see spec.md's Non-goals); this package
// defines what each message carries, the replica state machine that
// produces and consumes them, and the quorum/view-change/state-transfer/
// reconfiguration logic built on top.
package vsr

import (
	"github.com/kimberlite-db/kimberlite/internal/ids"
	"github.com/kimberlite-db/kimberlite/internal/kernel"
)

// Prepare is broadcast by the leader for a newly assigned op.
type Prepare struct {
	View      ids.ViewNumber
	Op        ids.OpNumber
	Command   kernel.Command
	PrevOp    ids.OpNumber
	Checksum  [32]byte
	ClientID  ids.ClientId
	RequestID ids.RequestId
}

// PrepareOk is a backup's acknowledgement of a Prepare it has appended.
type PrepareOk struct {
	View    ids.ViewNumber
	Op      ids.OpNumber
	Replica ids.ReplicaId
	Version Version
}

// Commit piggybacks the leader's latest commit_number onto idle replicas.
type Commit struct {
	View         ids.ViewNumber
	CommitNumber ids.CommitNumber
}

// Heartbeat is sent periodically by the leader to suppress view changes.
type Heartbeat struct {
	View         ids.ViewNumber
	Replica      ids.ReplicaId
	CommitNumber ids.CommitNumber
	Version      Version
}

// StartViewChange announces a replica's intent to move to NewView.
type StartViewChange struct {
	NewView ids.ViewNumber
	Replica ids.ReplicaId
}

// DoViewChange is sent by every replica to the new view's designated
// leader once it observes f+1 matching StartViewChange messages.
type DoViewChange struct {
	NewView           ids.ViewNumber
	Replica           ids.ReplicaId
	LogTail           []LogEntry
	CommitNumber      ids.CommitNumber
	LatestNormalView  ids.ViewNumber
}

// StartView is broadcast by the new leader once it has selected a
// canonical log from f+1 DoViewChange messages.
type StartView struct {
	NewView      ids.ViewNumber
	Log          []LogEntry
	CommitNumber ids.CommitNumber
}

// GetState requests a contiguous log suffix starting after FromOp.
type GetState struct {
	FromOp  ids.OpNumber
	Replica ids.ReplicaId
}

// NewState answers a GetState with the responder's whole log suffix after
// FromOp in a single message; the entries are neither chunked nor
// checksummed.
type NewState struct {
	View         ids.ViewNumber
	Entries      []LogEntry
	CommitNumber ids.CommitNumber
}

// Recovery is sent by a replica restarting with lost or suspect disk state.
type Recovery struct {
	Replica ids.ReplicaId
	Nonce   uint64
}

// RecoveryResponse answers a Recovery request with the responder's log
// state, so the recovering replica knows how far it must catch up.
type RecoveryResponse struct {
	Replica      ids.ReplicaId
	Nonce        uint64
	View         ids.ViewNumber
	CommitNumber ids.CommitNumber
}

// ReconfigPrepare proposes a membership change, entering the joint period.
type ReconfigPrepare struct {
	View          ids.ViewNumber
	Op            ids.OpNumber
	NewMembership []ids.ReplicaId
}

// ReconfigCommit finalizes a membership change once both old and new
// quorums have committed it.
type ReconfigCommit struct {
	View ids.ViewNumber
	Op   ids.OpNumber
}

// LogEntry is one (op, view, command) triple as carried in log tails
// during view change and state transfer. ClientID/RequestID identify the
// client proposal the command originated from, so a replica applying this
// entry's effects can record the result in its SessionTable for
// at-most-once delivery (spec §4.4 step 1) — they play no part in
// checksumEntry, which covers only the view, op numbers and command Kind.
type LogEntry struct {
	Op        ids.OpNumber
	View      ids.ViewNumber
	Command   kernel.Command
	ClientID  ids.ClientId
	RequestID ids.RequestId
}
