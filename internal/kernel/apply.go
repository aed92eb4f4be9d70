package kernel

import (
	"github.com/kimberlite-db/kimberlite/internal/ids"
)

// Apply is apply_committed (spec §4.3): the kernel's single entry point.
// It never mutates state; on error it returns the zero State and a nil
// Effect slice, and the caller discards both. Effects are returned in the
// order the spec enumerates them for each command, since VSR replicas
// execute effects in that order too.
func Apply(state State, cmd Command) (State, []Effect, error) {
	switch cmd.Kind {
	case CmdCreateStream:
		return applyCreateStream(state, cmd.CreateStream)
	case CmdAppendBatch:
		return applyAppendBatch(state, cmd.AppendBatch)
	case CmdCreateTable:
		return applyCreateTable(state, cmd.CreateTable)
	case CmdDropTable:
		return applyDropTable(state, cmd.DropTable)
	case CmdCreateIndex:
		return applyCreateIndex(state, cmd.CreateIndex)
	case CmdDropIndex:
		return applyDropIndex(state, cmd.DropIndex)
	case CmdInsert:
		return applyInsert(state, cmd.Insert)
	case CmdUpdate:
		return applyUpdate(state, cmd.Update)
	case CmdDelete:
		return applyDelete(state, cmd.Delete)
	case CmdCheckpoint:
		return applyCheckpoint(state, cmd.Checkpoint)
	default:
		return State{}, nil, newError(ErrConflict, "unrecognized command kind %q", cmd.Kind)
	}
}

// applyCreateStream enforces the PHI-must-be-region-pinned invariant
// (spec §4.2, scenario S2): a stream classified PHI may not have Global
// placement.
func applyCreateStream(state State, c *CreateStreamCmd) (State, []Effect, error) {
	if c.Class == PHI && !c.Placement.IsRegion() {
		return State{}, nil, newError(ErrPlacementViolation,
			"stream %q is classified PHI and must be region-pinned, got placement %q", c.Name, c.Placement.Kind)
	}
	if !c.Class.valid() {
		return State{}, nil, newError(ErrConflict, "invalid data class %q", c.Class)
	}

	next := state.Clone()
	seq := next.NextStreamSeq[c.Tenant]
	streamID := ids.NewStreamId(c.Tenant, seq)
	next.NextStreamSeq[c.Tenant] = seq + 1

	next.Streams[streamID] = StreamMetadata{
		StreamID:      streamID,
		TenantID:      c.Tenant,
		Name:          c.Name,
		Class:         c.Class,
		Placement:     c.Placement,
		NextOffset:    0,
		CreatedAtTick: c.Tick,
	}

	effects := []Effect{
		{Kind: EffectAudit, Audit: &AuditEffect{
			EventKind: "StreamCreated",
			Details:   map[string]string{"stream": streamID.String(), "class": string(c.Class)},
		}},
	}
	return next, effects, nil
}

// applyAppendBatch enforces offset monotonicity (spec §4.2, scenario S3):
// a batch's ExpectedNext must equal the stream's current NextOffset exactly,
// with no gaps and no retroactive rewrites.
func applyAppendBatch(state State, c *AppendBatchCmd) (State, []Effect, error) {
	meta, ok := state.Streams[c.Stream]
	if !ok {
		return State{}, nil, newError(ErrNotFound, "stream %s not found", c.Stream)
	}
	if c.ExpectedNext != meta.NextOffset {
		return State{}, nil, newError(ErrOffsetGap,
			"stream %s expected next offset %d, batch targets %d", c.Stream, meta.NextOffset, c.ExpectedNext)
	}

	next := state.Clone()
	meta.NextOffset += uint64(len(c.Payloads))
	next.Streams[c.Stream] = meta

	effects := []Effect{
		{Kind: EffectStorageAppend, StorageAppend: &StorageAppendEffect{
			Stream:       c.Stream,
			Payloads:     c.Payloads,
			ExpectedNext: c.ExpectedNext,
		}},
	}
	return next, effects, nil
}

func applyCreateTable(state State, c *CreateTableCmd) (State, []Effect, error) {
	if _, exists := state.TableNameIndex[c.Name]; exists {
		return State{}, nil, newError(ErrConflict, "table %q already exists", c.Name)
	}
	for _, col := range c.Columns {
		if !col.Type.valid() {
			return State{}, nil, newError(ErrTypeMismatch, "column %q has invalid type %q", col.Name, col.Type)
		}
	}
	for _, pk := range c.PrimaryKey {
		found := false
		for _, col := range c.Columns {
			if col.Name == pk {
				found = true
				break
			}
		}
		if !found {
			return State{}, nil, newError(ErrUnknownColumn, "primary key column %q not declared", pk)
		}
	}

	next := state.Clone()
	tableID := next.NextTableID
	next.NextTableID++

	next.Tables[tableID] = TableSchema{
		TableID:    tableID,
		Name:       c.Name,
		Columns:    append([]ColumnDef(nil), c.Columns...),
		PrimaryKey: append([]string(nil), c.PrimaryKey...),
	}
	next.TableNameIndex[c.Name] = tableID
	next.Rows[tableID] = map[string]Row{}

	effects := []Effect{
		{Kind: EffectAudit, Audit: &AuditEffect{
			EventKind: "TableCreated",
			Details:   map[string]string{"table": c.Name},
		}},
	}
	return next, effects, nil
}

func applyDropTable(state State, c *DropTableCmd) (State, []Effect, error) {
	schema, ok := state.Tables[c.Table]
	if !ok || schema.Dropped {
		return State{}, nil, newError(ErrNotFound, "table %s not found", c.Table)
	}

	next := state.Clone()
	schema.Dropped = true
	next.Tables[c.Table] = schema
	delete(next.TableNameIndex, schema.Name)
	delete(next.Rows, c.Table)

	effects := []Effect{
		{Kind: EffectAudit, Audit: &AuditEffect{
			EventKind: "TableDropped",
			Details:   map[string]string{"table": schema.Name},
		}},
		{Kind: EffectWakeProjection, WakeProjection: &WakeProjectionEffect{Table: c.Table}},
	}
	return next, effects, nil
}

func applyCreateIndex(state State, c *CreateIndexCmd) (State, []Effect, error) {
	schema, ok := state.Tables[c.Table]
	if !ok || schema.Dropped {
		return State{}, nil, newError(ErrNotFound, "table %s not found", c.Table)
	}
	for _, col := range c.Columns {
		if _, ok := schema.ColumnByName(col); !ok {
			return State{}, nil, newError(ErrUnknownColumn, "table %q has no column %q", schema.Name, col)
		}
	}

	next := state.Clone()
	indexID := next.NextIndexID
	next.NextIndexID++
	next.Indexes[indexID] = IndexMetadata{
		IndexID: indexID,
		TableID: c.Table,
		Name:    c.Name,
		Columns: append([]string(nil), c.Columns...),
		Unique:  c.Unique,
	}

	effects := []Effect{
		{Kind: EffectWakeProjection, WakeProjection: &WakeProjectionEffect{Table: c.Table}},
	}
	return next, effects, nil
}

func applyDropIndex(state State, c *DropIndexCmd) (State, []Effect, error) {
	idx, ok := state.Indexes[c.Index]
	if !ok || idx.Dropped {
		return State{}, nil, newError(ErrNotFound, "index %s not found", c.Index)
	}

	next := state.Clone()
	idx.Dropped = true
	next.Indexes[c.Index] = idx
	return next, nil, nil
}

func applyInsert(state State, c *InsertCmd) (State, []Effect, error) {
	schema, ok := state.Tables[c.Table]
	if !ok || schema.Dropped {
		return State{}, nil, newError(ErrNotFound, "table %s not found", c.Table)
	}
	if err := validateRow(schema, c.Row); err != nil {
		return State{}, nil, err
	}

	key, err := rowKey(schema, c.Row)
	if err != nil {
		return State{}, nil, err
	}

	next := state.Clone()
	rows := next.cloneRows(c.Table)
	if _, exists := rows[key]; exists {
		return State{}, nil, newError(ErrPrimaryKey, "duplicate primary key in table %q", schema.Name)
	}
	rows[key] = cloneRow(c.Row)

	effects := []Effect{
		{Kind: EffectWakeProjection, WakeProjection: &WakeProjectionEffect{Table: c.Table}},
	}
	return next, effects, nil
}

func applyUpdate(state State, c *UpdateCmd) (State, []Effect, error) {
	schema, ok := state.Tables[c.Table]
	if !ok || schema.Dropped {
		return State{}, nil, newError(ErrNotFound, "table %s not found", c.Table)
	}
	for col := range c.Set {
		if _, ok := schema.ColumnByName(col); !ok {
			return State{}, nil, newError(ErrUnknownColumn, "table %q has no column %q", schema.Name, col)
		}
	}

	next := state.Clone()
	rows := next.cloneRows(c.Table)
	touched := 0
	for key, row := range rows {
		if !matchPredicates(row, c.Predicates) {
			continue
		}
		merged := cloneRow(row)
		for col, val := range c.Set {
			merged[col] = val
		}
		if err := validateRow(schema, merged); err != nil {
			return State{}, nil, err
		}
		rows[key] = merged
		touched++
	}

	var effects []Effect
	if touched > 0 {
		effects = []Effect{
			{Kind: EffectWakeProjection, WakeProjection: &WakeProjectionEffect{Table: c.Table}},
		}
	}
	return next, effects, nil
}

func applyDelete(state State, c *DeleteCmd) (State, []Effect, error) {
	schema, ok := state.Tables[c.Table]
	if !ok || schema.Dropped {
		return State{}, nil, newError(ErrNotFound, "table %s not found", c.Table)
	}

	next := state.Clone()
	rows := next.cloneRows(c.Table)
	touched := 0
	for key, row := range rows {
		if matchPredicates(row, c.Predicates) {
			delete(rows, key)
			touched++
		}
	}

	var effects []Effect
	if touched > 0 {
		effects = []Effect{
			{Kind: EffectWakeProjection, WakeProjection: &WakeProjectionEffect{Table: c.Table}},
		}
	}
	return next, effects, nil
}

func applyCheckpoint(state State, _ *CheckpointCmd) (State, []Effect, error) {
	next := state.Clone()
	effects := []Effect{
		{Kind: EffectCheckpoint, Checkpoint: &CheckpointEffect{StateHash: next.StateHash()}},
	}
	return next, effects, nil
}

// validateRow checks row against schema: every column present must match
// its declared type (or be Null, only if nullable), and no unknown columns
// may appear.
func validateRow(schema TableSchema, row Row) error {
	for name, val := range row {
		col, ok := schema.ColumnByName(name)
		if !ok {
			return newError(ErrUnknownColumn, "table %q has no column %q", schema.Name, name)
		}
		if _, isNull := val.(Null); isNull {
			if !col.Nullable {
				return newError(ErrNullConstraint, "column %q is not nullable", name)
			}
			continue
		}
		if !typeMatches(val, col.Type) {
			return newError(ErrTypeMismatch, "column %q expects %s", name, col.Type)
		}
	}
	for _, col := range schema.Columns {
		if col.Nullable {
			continue
		}
		if _, present := row[col.Name]; !present {
			return newError(ErrNullConstraint, "column %q is required", col.Name)
		}
	}
	return nil
}

// rowKey builds the canonical primary-key string used to index rows within
// a table's row map. Length-prefixed encoding (via appendValue) rules out
// key-boundary collisions between components.
func rowKey(schema TableSchema, row Row) (string, error) {
	if len(schema.PrimaryKey) == 0 {
		return "", newError(ErrConflict, "table %q has no primary key", schema.Name)
	}
	var buf []byte
	for _, col := range schema.PrimaryKey {
		val, present := row[col]
		if !present {
			return "", newError(ErrNullConstraint, "primary key column %q missing from row", col)
		}
		if _, isNull := val.(Null); isNull {
			return "", newError(ErrNullConstraint, "primary key column %q cannot be null", col)
		}
		buf = appendValue(buf, val)
	}
	return string(buf), nil
}

func cloneRow(row Row) Row {
	out := make(Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
