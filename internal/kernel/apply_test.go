package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kimberlite-db/kimberlite/internal/crypto"
	"github.com/kimberlite-db/kimberlite/internal/ids"
)

// TestSingleStreamSingleAppend covers scenario S1: a fresh stream accepts
// a contiguous batch starting at offset zero and advances next_offset by
// the batch length.
func TestSingleStreamSingleAppend(t *testing.T) {
	state := New()

	state, _, err := Apply(state, Command{Kind: CmdCreateStream, CreateStream: &CreateStreamCmd{
		Tenant:    1,
		Name:      "events",
		Class:     NonPHI,
		Placement: Placement{Kind: PlacementGlobal},
	}})
	require.NoError(t, err)

	streamID := ids.NewStreamId(1, 0)
	require.Equal(t, uint64(0), state.Streams[streamID].NextOffset)

	var effects []Effect
	state, effects, err = Apply(state, Command{Kind: CmdAppendBatch, AppendBatch: &AppendBatchCmd{
		Stream:       streamID,
		Payloads:     [][]byte{[]byte("a"), []byte("b"), []byte("c")},
		ExpectedNext: 0,
	}})
	require.NoError(t, err)
	require.Len(t, effects, 1)
	require.Equal(t, EffectStorageAppend, effects[0].Kind)
	require.Equal(t, uint64(3), state.Streams[streamID].NextOffset)
}

// TestPHIPlacementRejection covers scenario S2: a PHI stream requesting
// global placement fails with PlacementViolation, leaving state untouched.
func TestPHIPlacementRejection(t *testing.T) {
	state := New()
	before := state.StateHash()

	_, _, err := Apply(state, Command{Kind: CmdCreateStream, CreateStream: &CreateStreamCmd{
		Tenant:    2,
		Name:      "notes",
		Class:     PHI,
		Placement: Placement{Kind: PlacementGlobal},
	}})
	require.Error(t, err)
	require.True(t, IsKind(err, ErrPlacementViolation))
	require.Equal(t, before, state.StateHash())
}

// TestOffsetGapRejection covers scenario S3: a batch whose expected_next
// does not match the stream's current next_offset is rejected, and the
// stream's state is unchanged.
func TestOffsetGapRejection(t *testing.T) {
	state := New()
	state, _, err := Apply(state, Command{Kind: CmdCreateStream, CreateStream: &CreateStreamCmd{
		Tenant:    1,
		Name:      "events",
		Class:     NonPHI,
		Placement: Placement{Kind: PlacementGlobal},
	}})
	require.NoError(t, err)
	streamID := ids.NewStreamId(1, 0)

	state, _, err = Apply(state, Command{Kind: CmdAppendBatch, AppendBatch: &AppendBatchCmd{
		Stream:       streamID,
		Payloads:     [][]byte{[]byte("a"), []byte("b"), []byte("c")},
		ExpectedNext: 0,
	}})
	require.NoError(t, err)

	before := state.StateHash()
	_, _, err = Apply(state, Command{Kind: CmdAppendBatch, AppendBatch: &AppendBatchCmd{
		Stream:       streamID,
		Payloads:     [][]byte{[]byte("z")},
		ExpectedNext: 5,
	}})
	require.Error(t, err)
	require.True(t, IsKind(err, ErrOffsetGap))
	require.Equal(t, before, state.StateHash())
}

func createTestTable(t *testing.T, state State) (State, ids.TableId) {
	t.Helper()
	state, _, err := Apply(state, Command{Kind: CmdCreateTable, CreateTable: &CreateTableCmd{
		Name: "patients",
		Columns: []ColumnDef{
			{Name: "id", Type: ColumnInt64, Nullable: false},
			{Name: "name", Type: ColumnText, Nullable: false},
			{Name: "notes", Type: ColumnText, Nullable: true},
		},
		PrimaryKey: []string{"id"},
	}})
	require.NoError(t, err)
	tableID := state.TableNameIndex["patients"]
	return state, tableID
}

func TestInsertAndUpdateAndDelete(t *testing.T) {
	state := New()
	state, tableID := createTestTable(t, state)

	state, effects, err := Apply(state, Command{Kind: CmdInsert, Insert: &InsertCmd{
		Table: tableID,
		Row:   Row{"id": IntValue(1), "name": TextValue("alice")},
	}})
	require.NoError(t, err)
	require.Len(t, effects, 1)
	require.Equal(t, EffectWakeProjection, effects[0].Kind)

	state, _, err = Apply(state, Command{Kind: CmdUpdate, Update: &UpdateCmd{
		Table:      tableID,
		Predicates: []Predicate{{Column: "id", Op: PredicateEquals, Value: IntValue(1)}},
		Set:        Row{"notes": TextValue("follow up")},
	}})
	require.NoError(t, err)

	rows := state.Rows[tableID]
	require.Len(t, rows, 1)
	for _, row := range rows {
		require.Equal(t, TextValue("follow up"), row["notes"])
	}

	state, _, err = Apply(state, Command{Kind: CmdDelete, Delete: &DeleteCmd{
		Table:      tableID,
		Predicates: []Predicate{{Column: "id", Op: PredicateEquals, Value: IntValue(1)}},
	}})
	require.NoError(t, err)
	require.Len(t, state.Rows[tableID], 0)
}

func TestInsertDuplicatePrimaryKeyRejected(t *testing.T) {
	state := New()
	state, tableID := createTestTable(t, state)

	state, _, err := Apply(state, Command{Kind: CmdInsert, Insert: &InsertCmd{
		Table: tableID,
		Row:   Row{"id": IntValue(1), "name": TextValue("alice")},
	}})
	require.NoError(t, err)

	_, _, err = Apply(state, Command{Kind: CmdInsert, Insert: &InsertCmd{
		Table: tableID,
		Row:   Row{"id": IntValue(1), "name": TextValue("bob")},
	}})
	require.Error(t, err)
	require.True(t, IsKind(err, ErrPrimaryKey))
}

func TestInsertMissingRequiredColumnRejected(t *testing.T) {
	state := New()
	state, tableID := createTestTable(t, state)

	_, _, err := Apply(state, Command{Kind: CmdInsert, Insert: &InsertCmd{
		Table: tableID,
		Row:   Row{"id": IntValue(1)},
	}})
	require.Error(t, err)
	require.True(t, IsKind(err, ErrNullConstraint))
}

func TestInsertUnknownColumnRejected(t *testing.T) {
	state := New()
	state, tableID := createTestTable(t, state)

	_, _, err := Apply(state, Command{Kind: CmdInsert, Insert: &InsertCmd{
		Table: tableID,
		Row:   Row{"id": IntValue(1), "name": TextValue("alice"), "ssn": TextValue("123")},
	}})
	require.Error(t, err)
	require.True(t, IsKind(err, ErrUnknownColumn))
}

func TestInsertTypeMismatchRejected(t *testing.T) {
	state := New()
	state, tableID := createTestTable(t, state)

	_, _, err := Apply(state, Command{Kind: CmdInsert, Insert: &InsertCmd{
		Table: tableID,
		Row:   Row{"id": TextValue("not-an-int"), "name": TextValue("alice")},
	}})
	require.Error(t, err)
	require.True(t, IsKind(err, ErrTypeMismatch))
}

func TestDropTableRemovesFromNameIndex(t *testing.T) {
	state := New()
	state, tableID := createTestTable(t, state)

	state, effects, err := Apply(state, Command{Kind: CmdDropTable, DropTable: &DropTableCmd{Table: tableID}})
	require.NoError(t, err)
	require.Len(t, effects, 2)
	_, exists := state.TableNameIndex["patients"]
	require.False(t, exists)

	_, _, err = Apply(state, Command{Kind: CmdInsert, Insert: &InsertCmd{
		Table: tableID,
		Row:   Row{"id": IntValue(1), "name": TextValue("alice")},
	}})
	require.Error(t, err)
	require.True(t, IsKind(err, ErrNotFound))
}

func TestStateHashDeterministicAcrossEquivalentClones(t *testing.T) {
	state := New()
	state, tableID := createTestTable(t, state)
	state, _, err := Apply(state, Command{Kind: CmdInsert, Insert: &InsertCmd{
		Table: tableID,
		Row:   Row{"id": IntValue(1), "name": TextValue("alice")},
	}})
	require.NoError(t, err)

	h1 := state.StateHash()
	clone := state.Clone()
	h2 := clone.StateHash()
	require.Equal(t, h1, h2)
}

func TestCheckpointEmitsStateHashEffect(t *testing.T) {
	state := New()
	state, effects, err := Apply(state, Command{Kind: CmdCheckpoint, Checkpoint: &CheckpointCmd{}})
	require.NoError(t, err)
	require.Len(t, effects, 1)
	require.Equal(t, EffectCheckpoint, effects[0].Kind)
	require.Equal(t, state.StateHash(), crypto.Digest(effects[0].Checkpoint.StateHash))
}
