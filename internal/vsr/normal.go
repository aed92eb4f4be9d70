package vsr

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/kimberlite-db/kimberlite/internal/ids"
	"github.com/kimberlite-db/kimberlite/internal/kernel"
)

// checksumEntry computes the Byzantine-resistance checksum for a log
// entry (spec §4.4): mismatches cause outright rejection, never a state
// change. It is SHA-256 over the view, op, prev op and the command's Kind;
// the command's other fields are not covered. This checksum defends
// against corruption/misdelivery, not an adversary
// with signing keys — that's internal/crypto's Sign/Verify, layered on
// top by the shell for inter-replica transport authentication.
func checksumEntry(view ids.ViewNumber, op ids.OpNumber, prevOp ids.OpNumber, cmd kernel.Command) [32]byte {
	h := sha256.New()
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(view))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(op))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(prevOp))
	h.Write(buf[:])
	h.Write([]byte(cmd.Kind))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ProposeResult is what the leader returns to the client-facing caller
// once a client request is accepted into the pipeline: the assigned op, or
// a cached session reply when Cached is set. It carries no commit status;
// the caller learns of the commit through HandlePrepareOk and
// AdvanceCommits.
type ProposeResult struct {
	Op      ids.OpNumber
	Cached  bool
	Session SessionResult
}

// Propose is the leader's entry point for a client request (spec §4.4
// Normal operation step 1-2). It performs the session dedup check, then
// assigns the next op and appends a Prepare to its own log. The caller
// (the shell) is responsible for broadcasting the returned Prepare to
// backups.
func (r *Replica) Propose(client ids.ClientId, request ids.RequestId, cmd kernel.Command) (*Prepare, *ProposeResult, error) {
	if !r.IsLeader() {
		return nil, nil, newError(ErrNotLeader, "replica %s is not leader of view %s", r.ID, r.View)
	}
	if r.Status != StatusNormal {
		return nil, nil, newError(ErrWrongStatus, "replica %s is in status %s, not Normal", r.ID, r.Status)
	}

	if cached, ok := r.Sessions.Lookup(client, request); ok {
		return nil, &ProposeResult{Cached: true, Session: cached}, nil
	}

	prevOp, hasPrev := r.LastOp()
	nextOp := ids.OpNumber(0)
	if hasPrev {
		nextOp = prevOp + 1
	}

	entry := LogEntry{Op: nextOp, View: r.View, Command: cmd, ClientID: client, RequestID: request}
	r.Log = append(r.Log, entry)
	r.prepareOks[nextOp] = map[ids.ReplicaId]struct{}{r.ID: {}}

	prepare := &Prepare{
		View:      r.View,
		Op:        nextOp,
		Command:   cmd,
		PrevOp:    prevOp,
		Checksum:  checksumEntry(r.View, nextOp, prevOp, cmd),
		ClientID:  client,
		RequestID: request,
	}
	return prepare, &ProposeResult{Op: nextOp}, nil
}

// HandlePrepare is a backup's response to a leader's Prepare (spec §4.4
// step 3): verify op is exactly last_op+1 and the checksum matches, then
// append and return a PrepareOk.
func (r *Replica) HandlePrepare(p Prepare) (*PrepareOk, error) {
	if p.View < r.View {
		return nil, newError(ErrStaleView, "prepare view %s is behind replica view %s", p.View, r.View)
	}
	if r.Status != StatusNormal {
		return nil, newError(ErrWrongStatus, "replica %s is in status %s, not Normal", r.ID, r.Status)
	}

	prevOp, hasPrev := r.LastOp()
	wantOp := ids.OpNumber(0)
	if hasPrev {
		wantOp = prevOp + 1
	}
	if p.Op != wantOp {
		return nil, newError(ErrOpMismatch, "expected op %s, got %s", wantOp, p.Op)
	}
	if checksumEntry(p.View, p.Op, p.PrevOp, p.Command) != p.Checksum {
		return nil, newError(ErrChecksumMismatch, "checksum mismatch at op %s", p.Op)
	}

	r.View = p.View
	r.Log = append(r.Log, LogEntry{Op: p.Op, View: p.View, Command: p.Command, ClientID: p.ClientID, RequestID: p.RequestID})

	return &PrepareOk{View: r.View, Op: p.Op, Replica: r.ID, Version: r.LocalVersion}, nil
}

// HandlePrepareOk records a backup's acknowledgement and reports whether
// op o (and therefore every preceding uncommitted op) just reached
// quorum. The caller executes apply_committed for every newly committed
// op in order and advances CommitNumber.
func (r *Replica) HandlePrepareOk(ok PrepareOk) (reachedQuorum bool, err error) {
	if !r.IsLeader() {
		return false, newError(ErrNotLeader, "replica %s is not leader", r.ID)
	}
	if ok.View != r.View {
		return false, newError(ErrStaleView, "prepare_ok view %s does not match current view %s", ok.View, r.View)
	}
	r.ReplicaVersions[uint32(ok.Replica)] = ok.Version

	votes, ok2 := r.prepareOks[ok.Op]
	if !ok2 {
		votes = map[ids.ReplicaId]struct{}{}
		r.prepareOks[ok.Op] = votes
	}
	votes[ok.Replica] = struct{}{}

	return HasQuorum(len(votes), r.Membership.N()), nil
}

// AdvanceCommits applies apply_committed for every op still pending below
// newCommitCount, in order, returning the effects each produced.
// CommitNumber is a count of committed ops (so the next op to apply is
// always r.Log[r.CommitNumber]), never a raw op index, which keeps this
// loop and its callers free of off-by-one ambiguity. Safe to call with a
// newCommitCount already applied (a no-op in that case) or one beyond the
// local log's tail (applies as far as the log allows and stops, for a
// replica still catching up via state transfer).
func (r *Replica) AdvanceCommits(newCommitCount ids.CommitNumber) ([][]kernel.Effect, error) {
	var allEffects [][]kernel.Effect
	for uint64(r.CommitNumber) < uint64(newCommitCount) && int(r.CommitNumber) < len(r.Log) {
		entry := r.Log[r.CommitNumber]
		newState, effects, err := kernel.Apply(r.State, entry.Command)
		if err != nil {
			return allEffects, err
		}
		r.State = newState
		allEffects = append(allEffects, effects)
		r.CommitNumber++
	}
	return allEffects, nil
}

// HandleHeartbeat refreshes the sender's known version and advances this
// replica's commit point to match the leader's, applying any newly
// committed ops already present in its log.
func (r *Replica) HandleHeartbeat(hb Heartbeat) ([][]kernel.Effect, error) {
	r.ReplicaVersions[uint32(hb.Replica)] = hb.Version
	return r.AdvanceCommits(hb.CommitNumber)
}
