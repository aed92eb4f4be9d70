package vsr

import "github.com/kimberlite-db/kimberlite/internal/ids"

// StandbyStatus tracks one standby's catch-up and liveness (spec §4.4
// Standbys). A standby applies committed ops but never votes.
type StandbyStatus struct {
	LastApplied      ids.OpNumber
	LastHeartbeatAt  int64 // a simulator tick or wall-clock timestamp, caller-defined
}

// HeartbeatWindowTicks is the maximum gap between standby heartbeats
// before it is no longer considered healthy.
const HeartbeatWindowTicks = 10

// RecordStandbyHeartbeat updates a standby's last-seen liveness and
// applied position.
func (r *Replica) RecordStandbyHeartbeat(id ids.ReplicaId, lastApplied ids.OpNumber, now int64) {
	st, ok := r.Standby[id]
	if !ok {
		st = &StandbyStatus{}
		r.Standby[id] = st
	}
	st.LastApplied = lastApplied
	st.LastHeartbeatAt = now
}

// Promotable reports whether standby id is caught up to the group's
// commit point and has not missed a heartbeat within the bounded window,
// i.e. it is eligible for promotion via Reconfig (spec §4.4).
func (r *Replica) Promotable(id ids.ReplicaId, now int64) bool {
	st, ok := r.Standby[id]
	if !ok {
		return false
	}
	caughtUp := uint64(st.LastApplied)+1 >= uint64(r.CommitNumber)
	healthy := now-st.LastHeartbeatAt <= HeartbeatWindowTicks
	return caughtUp && healthy
}
