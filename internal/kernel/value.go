package kernel

import "fmt"

// ColumnType is the closed enum of column types the kernel understands.
// There is no floating-point type: determinism (spec §4.3, §9) forbids it
// in structural logic, and every numeric column is Int64.
type ColumnType string

const (
	ColumnInt64     ColumnType = "Int64"
	ColumnText      ColumnType = "Text"
	ColumnBool      ColumnType = "Bool"
	ColumnTimestamp ColumnType = "Timestamp"
	ColumnBlob      ColumnType = "Blob"
)

func (t ColumnType) valid() bool {
	switch t {
	case ColumnInt64, ColumnText, ColumnBool, ColumnTimestamp, ColumnBlob:
		return true
	default:
		return false
	}
}

// Value is a sealed interface over the closed set of row-cell value types
// the kernel can store or compare. There is deliberately no float
// implementation, mirroring the IR's CP-5 float ban: floats break
// cross-platform determinism of state_hash.
type Value interface {
	valueKind() ColumnType
}

// Null represents SQL NULL. A nullable column's cell is either Null or a
// value of the column's declared type.
type Null struct{}

func (Null) valueKind() ColumnType { return "" }

// IntValue is an Int64 cell.
type IntValue int64

func (IntValue) valueKind() ColumnType { return ColumnInt64 }

// TextValue is a Text cell, stored as given; Apply does not NFC-normalize
// cell values.
type TextValue string

func (TextValue) valueKind() ColumnType { return ColumnText }

// BoolValue is a Bool cell.
type BoolValue bool

func (BoolValue) valueKind() ColumnType { return ColumnBool }

// TimestampValue is a Timestamp cell: a logical tick, never a wall-clock
// read performed inside the kernel (spec §9 determinism hygiene). The
// shell stamps this value before constructing the command.
type TimestampValue int64

func (TimestampValue) valueKind() ColumnType { return ColumnTimestamp }

// BlobValue is a Blob cell.
type BlobValue []byte

func (BlobValue) valueKind() ColumnType { return ColumnBlob }

// typeMatches reports whether v is either Null or a Value of type t.
func typeMatches(v Value, t ColumnType) bool {
	if _, isNull := v.(Null); isNull {
		return true
	}
	return v.valueKind() == t
}

// Row maps column names to cell values. It has no defined iteration order
// (Go map order), and row contents are not part of StateHash's input.
type Row map[string]Value

func (r Row) String() string {
	return fmt.Sprintf("Row(%d cols)", len(r))
}
