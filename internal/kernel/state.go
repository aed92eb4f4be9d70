package kernel

import (
	"sort"

	"github.com/kimberlite-db/kimberlite/internal/crypto"
	"github.com/kimberlite-db/kimberlite/internal/ids"
)

// State is the kernel's entire queryable world: an ordered fold over the
// committed command log (spec §3). It is a plain data value — copying it
// is a shallow top-level clone (see Clone) so apply_committed can return
// a new State without ever mutating its input, the Functional Core half
// of spec §9's Functional Core / Imperative Shell split.
type State struct {
	Streams        map[ids.StreamId]StreamMetadata
	Tables         map[ids.TableId]TableSchema
	TableNameIndex map[string]ids.TableId
	Indexes        map[ids.IndexId]IndexMetadata

	// Rows holds table contents keyed by a canonical primary-key string
	// (see rowKey). Rows is not part of state_hash's documented digest
	// inputs (spec §4.3 names streams/tables/table_name_index/indexes/
	// counters only) because primary-key ordering, not cell contents, is
	// what the replicated log guarantees identical across replicas by
	// construction — every replica applies the same Insert/Update/Delete
	// commands in the same order. Row contents are still deterministic;
	// they're simply not re-hashed on top of the commands that produced
	// them.
	Rows map[ids.TableId]map[string]Row

	NextStreamSeq map[ids.TenantId]uint64
	NextTableID   ids.TableId
	NextIndexID   ids.IndexId
}

// New returns an empty initial State.
func New() State {
	return State{
		Streams:        map[ids.StreamId]StreamMetadata{},
		Tables:         map[ids.TableId]TableSchema{},
		TableNameIndex: map[string]ids.TableId{},
		Indexes:        map[ids.IndexId]IndexMetadata{},
		Rows:           map[ids.TableId]map[string]Row{},
		NextStreamSeq:  map[ids.TenantId]uint64{},
		NextTableID:    1,
		NextIndexID:    1,
	}
}

// Clone returns a shallow copy of s: every top-level map gets a fresh
// backing map with the same entries, so mutating the clone's top-level
// maps (adding/removing a stream, bumping a counter) never touches s.
// Per-table row maps are copy-on-write: cloned lazily by cloneRows only
// for tables a command actually touches.
func (s State) Clone() State {
	out := State{
		Streams:        make(map[ids.StreamId]StreamMetadata, len(s.Streams)),
		Tables:         make(map[ids.TableId]TableSchema, len(s.Tables)),
		TableNameIndex: make(map[string]ids.TableId, len(s.TableNameIndex)),
		Indexes:        make(map[ids.IndexId]IndexMetadata, len(s.Indexes)),
		Rows:           make(map[ids.TableId]map[string]Row, len(s.Rows)),
		NextStreamSeq:  make(map[ids.TenantId]uint64, len(s.NextStreamSeq)),
		NextTableID:    s.NextTableID,
		NextIndexID:    s.NextIndexID,
	}
	for k, v := range s.Streams {
		out.Streams[k] = v
	}
	for k, v := range s.Tables {
		out.Tables[k] = v
	}
	for k, v := range s.TableNameIndex {
		out.TableNameIndex[k] = v
	}
	for k, v := range s.Indexes {
		out.Indexes[k] = v
	}
	for k, v := range s.Rows {
		out.Rows[k] = v // shared until cloneRows(table) is called
	}
	for k, v := range s.NextStreamSeq {
		out.NextStreamSeq[k] = v
	}
	return out
}

// cloneRows gives the caller a private, mutable copy of table's row map,
// replacing the shared reference in s.Rows.
func (s State) cloneRows(table ids.TableId) map[string]Row {
	src := s.Rows[table]
	fresh := make(map[string]Row, len(src))
	for k, v := range src {
		fresh[k] = v
	}
	s.Rows[table] = fresh
	return fresh
}

// sortedStreamIDs returns stream IDs in ascending order for deterministic
// iteration (spec §3, §4.3).
func (s State) sortedStreamIDs() []ids.StreamId {
	out := make([]ids.StreamId, 0, len(s.Streams))
	for k := range s.Streams {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s State) sortedTableIDs() []ids.TableId {
	out := make([]ids.TableId, 0, len(s.Tables))
	for k := range s.Tables {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s State) sortedTableNames() []string {
	out := make([]string, 0, len(s.TableNameIndex))
	for k := range s.TableNameIndex {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s State) sortedIndexIDs() []ids.IndexId {
	out := make([]ids.IndexId, 0, len(s.Indexes))
	for k := range s.Indexes {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s State) sortedTenantIDs() []ids.TenantId {
	out := make([]ids.TenantId, 0, len(s.NextStreamSeq))
	for k := range s.NextStreamSeq {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// StateHash computes the canonical digest over (streams, tables,
// table_name_index, indexes, counters) in key order (spec §4.3). Any
// semantic change to the state must move this hash — it is the single
// fact every replica and every simulator run is checked against.
func (s State) StateHash() crypto.Digest {
	buf := appendCanonicalState(nil, s)
	return crypto.HashCompliance(crypto.Compliance, buf)
}
