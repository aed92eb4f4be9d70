package vsr

import (
	"github.com/kimberlite-db/kimberlite/internal/ids"
)

// BeginStateTransfer moves r into Transferring and returns the GetState
// request to send to a caught-up peer (spec §4.4 State transfer).
func (r *Replica) BeginStateTransfer() *GetState {
	r.Status = StatusTransferring
	fromOp, has := r.LastOp()
	if !has {
		fromOp = 0
	}
	return &GetState{FromOp: fromOp, Replica: r.ID}
}

// BuildNewState answers a peer's GetState by returning the contiguous log
// suffix after req.FromOp. The responder only needs to hold a log at
// least that long; it does not need to be the current leader.
func (r *Replica) BuildNewState(req GetState) NewState {
	var entries []LogEntry
	for _, e := range r.Log {
		if e.Op > req.FromOp {
			entries = append(entries, e)
		}
	}
	return NewState{View: r.View, Entries: entries, CommitNumber: r.CommitNumber}
}

// ApplyNewState validates chain continuity against the local tail (each
// entry's Op must be exactly one more than the previous, whether from the
// existing log or from a prior entry in this same response) and appends
// the suffix, returning to Normal once caught up.
func (r *Replica) ApplyNewState(resp NewState) error {
	lastOp, has := r.LastOp()
	for _, e := range resp.Entries {
		want := ids.OpNumber(0)
		if has {
			want = lastOp + 1
		}
		if e.Op != want {
			return newError(ErrOpMismatch, "state transfer chain break: expected op %s, got %s", want, e.Op)
		}
		r.Log = append(r.Log, e)
		lastOp = e.Op
		has = true
	}
	if resp.View > r.View {
		r.View = resp.View
	}
	r.Status = StatusNormal
	r.LastNormalView = r.View
	return nil
}
