package vsr

import (
	"github.com/kimberlite-db/kimberlite/internal/ids"
	"github.com/kimberlite-db/kimberlite/internal/kernel"
)

// Status is the replica's top-level state (spec §4.4).
type Status string

const (
	StatusNormal        Status = "Normal"
	StatusViewChange    Status = "ViewChange"
	StatusRecovering    Status = "Recovering"
	StatusTransferring  Status = "Transferring"
	StatusReconfiguring Status = "Reconfiguring"
)

// Membership is a group's current voting set plus any standbys, used for
// both steady-state quorum math and joint consensus during reconfiguration
// (see reconfig.go).
type Membership struct {
	Group    ids.GroupId
	Voters   []ids.ReplicaId
	Standbys []ids.ReplicaId
}

func (m Membership) N() int { return len(m.Voters) }

func (m Membership) IsVoter(r ids.ReplicaId) bool {
	for _, v := range m.Voters {
		if v == r {
			return true
		}
	}
	return false
}

// Replica is one group member's full VSR state: its status, view, log,
// commit point, and the bookkeeping (quorum votes in flight, session
// table, standby health) the handlers in normal.go/viewchange.go/
// statetransfer.go/reconfig.go/standby.go mutate.
type Replica struct {
	ID         ids.ReplicaId
	Membership Membership

	Status       Status
	View         ids.ViewNumber
	LastNormalView ids.ViewNumber // view in which this replica was last Normal
	CommitNumber ids.CommitNumber

	Log   []LogEntry // dense by Op, Log[i].Op == i for i in [0, len(Log))
	State kernel.State

	Sessions *SessionTable

	// prepareOks[op] tracks which replicas have acknowledged op, for
	// leader-side quorum counting during Normal operation.
	prepareOks map[ids.OpNumber]map[ids.ReplicaId]struct{}

	// startViewChanges[newView] tracks StartViewChange senders for the
	// view this replica is trying to move into.
	startViewChanges map[ids.ViewNumber]map[ids.ReplicaId]struct{}
	// doViewChanges[newView] tracks DoViewChange payloads received by a
	// would-be new leader, keyed by sender so duplicate claims within one
	// view collapse rather than double-count (Byzantine-resistance, spec
	// §4.4).
	doViewChanges map[ids.ViewNumber]map[ids.ReplicaId]DoViewChange

	ReplicaVersions map[uint32]Version
	LocalVersion    Version

	Standby map[ids.ReplicaId]*StandbyStatus

	// Reconfig tracks an in-flight joint-consensus membership change, nil
	// when Status != StatusReconfiguring.
	Reconfig *ReconfigState
}

// NewReplica returns a fresh Normal, view-0 replica with an empty log.
func NewReplica(id ids.ReplicaId, membership Membership, version Version) *Replica {
	return &Replica{
		ID:               id,
		Membership:       membership,
		Status:           StatusNormal,
		View:             0,
		LastNormalView:   0,
		CommitNumber:     0,
		State:            kernel.New(),
		Sessions:         NewSessionTable(),
		prepareOks:       map[ids.OpNumber]map[ids.ReplicaId]struct{}{},
		startViewChanges: map[ids.ViewNumber]map[ids.ReplicaId]struct{}{},
		doViewChanges:    map[ids.ViewNumber]map[ids.ReplicaId]DoViewChange{},
		ReplicaVersions:  map[uint32]Version{uint32(id): version},
		LocalVersion:     version,
		Standby:          map[ids.ReplicaId]*StandbyStatus{},
	}
}

// LastOp returns the highest op number in the log and true, or (0, false)
// when the log is empty, so callers can tell an empty log from one whose
// last op is 0.
func (r *Replica) LastOp() (ids.OpNumber, bool) {
	if len(r.Log) == 0 {
		return 0, false
	}
	return r.Log[len(r.Log)-1].Op, true
}

// IsLeader reports whether r believes itself the leader of its current
// view under the group's current voting membership.
func (r *Replica) IsLeader() bool {
	return r.leaderFor(r.View) == r.ID
}

func (r *Replica) leaderFor(view ids.ViewNumber) ids.ReplicaId {
	n := r.Membership.N()
	if n == 0 {
		return r.ID
	}
	idx := int(uint64(view) % uint64(n))
	return r.Membership.Voters[idx]
}
