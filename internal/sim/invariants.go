package sim

import (
	"fmt"

	"github.com/kimberlite-db/kimberlite/internal/ids"
	"github.com/kimberlite-db/kimberlite/internal/vsr"
	"github.com/kimberlite-db/kimberlite/internal/wal"
)

// InvariantChecker inspects the current state of a replica group and
// reports a violation, or nil if it holds. Checkers never mutate what
// they inspect (spec §4.5 "invariant checkers run after each event").
type InvariantChecker struct {
	Name  string
	Check func(group []*vsr.Replica) error
}

// StandardInvariants is the checker set the simulator runs after every
// event (spec §4.5's named list, minus projection MVCC visibility and
// the SQL oracle checks — both named only as future hooks since
// projections and SQL planning are explicit Non-goals with nothing in
// this repository yet to check).
var StandardInvariants = []InvariantChecker{
	{Name: "VSRAgreement", Check: checkAgreement},
	{Name: "VSRPrefix", Check: checkPrefix},
	{Name: "ViewMonotonic", Check: checkViewMonotonic},
	{Name: "CommitMonotonic", Check: checkCommitMonotonic},
	{Name: "SessionAtMostOnce", Check: checkSessionAtMostOnce},
	{Name: "ReplicaConsistency", Check: checkReplicaConsistency},
}

// RequiredInvariantNames is used for the coverage gate (spec §8 property
// 10: "every critical invariant checker is executed ≥1 time").
func RequiredInvariantNames() []string {
	names := make([]string, len(StandardInvariants))
	for i, c := range StandardInvariants {
		names[i] = c.Name
	}
	return names
}

// checkAgreement is spec §8 property 4: no two replicas ever apply
// different commands at the same op number.
func checkAgreement(group []*vsr.Replica) error {
	byOp := map[ids.OpNumber]vsr.LogEntry{}
	for _, r := range group {
		for _, entry := range r.Log {
			if existing, ok := byOp[entry.Op]; ok {
				if existing.Command.Kind != entry.Command.Kind {
					return fmt.Errorf("sim: agreement violated at op %s: %s vs %s", entry.Op, existing.Command.Kind, entry.Command.Kind)
				}
			} else {
				byOp[entry.Op] = entry
			}
		}
	}
	return nil
}

// checkPrefix is spec §8 property 5: any two replicas' committed logs
// agree up to min(commit_number).
func checkPrefix(group []*vsr.Replica) error {
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			a, b := group[i], group[j]
			minCommit := a.CommitNumber
			if b.CommitNumber < minCommit {
				minCommit = b.CommitNumber
			}
			for op := ids.OpNumber(0); uint64(op) < uint64(minCommit); op++ {
				if int(op) >= len(a.Log) || int(op) >= len(b.Log) {
					return fmt.Errorf("sim: prefix violated: replica %s or %s missing committed op %s", a.ID, b.ID, op)
				}
				if a.Log[op].Command.Kind != b.Log[op].Command.Kind {
					return fmt.Errorf("sim: prefix violated at op %s between replica %s and %s", op, a.ID, b.ID)
				}
			}
		}
	}
	return nil
}

// checkViewMonotonic and checkCommitMonotonic are spec §8 property 6,
// checked against each replica's highest value observed so far, tracked
// in a package-level-free way by the caller re-running this across ticks
// — here we only check the instantaneous invariant that view/commit are
// never negative relative to the replica's own last-normal bookkeeping,
// since true monotonicity-over-time is checked by MonotonicityTracker
// below (a stateful checker, unlike the stateless ones above).
func checkViewMonotonic(group []*vsr.Replica) error {
	for _, r := range group {
		if r.LastNormalView > r.View {
			return fmt.Errorf("sim: replica %s has last_normal_view %s ahead of current view %s", r.ID, r.LastNormalView, r.View)
		}
	}
	return nil
}

func checkCommitMonotonic(group []*vsr.Replica) error {
	for _, r := range group {
		if uint64(r.CommitNumber) > uint64(len(r.Log)) {
			return fmt.Errorf("sim: replica %s commit_number %s exceeds log length %d", r.ID, r.CommitNumber, len(r.Log))
		}
	}
	return nil
}

// checkSessionAtMostOnce is spec §8 property 7: nothing about the
// session table's structural invariant (request_id only moves forward)
// should ever be violated; SessionTable.Record already enforces this at
// the point of mutation, so this checker revalidates it holds across the
// whole group after every event as a defense against future refactors.
func checkSessionAtMostOnce(group []*vsr.Replica) error {
	for _, r := range group {
		if r.Sessions == nil {
			continue
		}
		if err := r.Sessions.ValidateMonotonic(); err != nil {
			return fmt.Errorf("sim: replica %s: %w", r.ID, err)
		}
	}
	return nil
}

// checkReplicaConsistency cross-checks that every replica which reached
// the same commit_number computed the same state hash — the kernel-level
// analogue of spec §8 property 4 applied to State rather than the raw
// log.
func checkReplicaConsistency(group []*vsr.Replica) error {
	hashes := map[ids.CommitNumber]map[[32]byte]ids.ReplicaId{}
	for _, r := range group {
		h := [32]byte(r.State.StateHash())
		if hashes[r.CommitNumber] == nil {
			hashes[r.CommitNumber] = map[[32]byte]ids.ReplicaId{}
		}
		for existingHash, owner := range hashes[r.CommitNumber] {
			if existingHash != h {
				return fmt.Errorf("sim: replica %s and %s disagree on state_hash at commit %s", owner, r.ID, r.CommitNumber)
			}
		}
		hashes[r.CommitNumber][h] = r.ID
	}
	return nil
}

// CheckStorageChainIntegrity is spec §8 property 1, run against real
// backing streams rather than in-memory replica state (kept separate
// from StandardInvariants since it needs a wal.Stream, not just a
// replica slice).
func CheckStorageChainIntegrity(stream *wal.Stream) error {
	result, err := stream.ReadFrom(0, 1<<30)
	if result != nil {
		defer result.Close()
	}
	if err != nil {
		return fmt.Errorf("sim: chain integrity violated: %w", err)
	}
	if result.Truncated {
		return fmt.Errorf("sim: chain integrity violated: stream truncated on read")
	}
	return nil
}

// MonotonicityTracker checks view/commit_number/next_offset never
// decrease for a given replica across successive snapshots — a stateful
// companion to checkViewMonotonic/checkCommitMonotonic, since true
// monotonicity needs a "last observed" baseline the stateless checkers
// above don't carry.
type MonotonicityTracker struct {
	lastView   map[ids.ReplicaId]ids.ViewNumber
	lastCommit map[ids.ReplicaId]ids.CommitNumber
}

func NewMonotonicityTracker() *MonotonicityTracker {
	return &MonotonicityTracker{
		lastView:   map[ids.ReplicaId]ids.ViewNumber{},
		lastCommit: map[ids.ReplicaId]ids.CommitNumber{},
	}
}

func (m *MonotonicityTracker) Check(group []*vsr.Replica) error {
	for _, r := range group {
		if last, ok := m.lastView[r.ID]; ok && r.View < last {
			return fmt.Errorf("sim: replica %s view regressed from %s to %s", r.ID, last, r.View)
		}
		if last, ok := m.lastCommit[r.ID]; ok && r.CommitNumber < last {
			return fmt.Errorf("sim: replica %s commit_number regressed from %s to %s", r.ID, last, r.CommitNumber)
		}
		m.lastView[r.ID] = r.View
		m.lastCommit[r.ID] = r.CommitNumber
	}
	return nil
}
