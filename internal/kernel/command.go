package kernel

import "github.com/kimberlite-db/kimberlite/internal/ids"

// Command is the closed sum type of kernel mutations (spec §4.3). Exactly
// one of the Command* fields is populated per the Kind tag; this "tagged
// struct" encoding (rather than an interface per variant) keeps
// apply_committed a single exhaustive switch and keeps commands trivially
// canonical-marshalable for VSR checksums.
type CommandKind string

const (
	CmdCreateStream CommandKind = "CreateStream"
	CmdAppendBatch  CommandKind = "AppendBatch"
	CmdCreateTable  CommandKind = "CreateTable"
	CmdDropTable    CommandKind = "DropTable"
	CmdCreateIndex  CommandKind = "CreateIndex"
	CmdDropIndex    CommandKind = "DropIndex"
	CmdInsert       CommandKind = "Insert"
	CmdUpdate       CommandKind = "Update"
	CmdDelete       CommandKind = "Delete"
	CmdCheckpoint   CommandKind = "Checkpoint"
)

// Command carries exactly one populated payload selected by Kind.
type Command struct {
	Kind CommandKind

	CreateStream *CreateStreamCmd
	AppendBatch  *AppendBatchCmd
	CreateTable  *CreateTableCmd
	DropTable    *DropTableCmd
	CreateIndex  *CreateIndexCmd
	DropIndex    *DropIndexCmd
	Insert       *InsertCmd
	Update       *UpdateCmd
	Delete       *DeleteCmd
	Checkpoint   *CheckpointCmd
}

type CreateStreamCmd struct {
	Tenant    ids.TenantId
	Name      string
	Class     DataClass
	Placement Placement
	Tick      int64
}

type AppendBatchCmd struct {
	Stream       ids.StreamId
	Payloads     [][]byte
	ExpectedNext uint64
}

type CreateTableCmd struct {
	Name       string
	Columns    []ColumnDef
	PrimaryKey []string
}

type DropTableCmd struct {
	Table ids.TableId
}

type CreateIndexCmd struct {
	Table   ids.TableId
	Name    string
	Columns []string
	Unique  bool
}

type DropIndexCmd struct {
	Index ids.IndexId
}

// Predicate is a closed, serializable condition over a row, used by
// Update and Delete to select target rows without a general expression
// evaluator (see predicate.go).
type Predicate struct {
	Column string
	Op     PredicateOp
	Value  Value
}

type PredicateOp string

const (
	PredicateEquals    PredicateOp = "Equals"
	PredicateNotEquals PredicateOp = "NotEquals"
	PredicateIsNull    PredicateOp = "IsNull"
	PredicateIsNotNull PredicateOp = "IsNotNull"
)

type InsertCmd struct {
	Table ids.TableId
	Row   Row
}

type UpdateCmd struct {
	Table      ids.TableId
	Predicates []Predicate
	Set        Row
}

type DeleteCmd struct {
	Table      ids.TableId
	Predicates []Predicate
}

// CheckpointCmd requests the shell to persist a kernel state snapshot.
// The kernel itself performs no I/O; it only emits the Checkpoint effect.
type CheckpointCmd struct{}
