package kernel

import "github.com/kimberlite-db/kimberlite/internal/ids"

// DataClass classifies a stream's compliance sensitivity.
type DataClass string

const (
	PHI          DataClass = "PHI"
	NonPHI       DataClass = "NonPHI"
	Deidentified DataClass = "Deidentified"
)

func (d DataClass) valid() bool {
	switch d {
	case PHI, NonPHI, Deidentified:
		return true
	default:
		return false
	}
}

// PlacementKind distinguishes a region-pinned stream from a globally
// replicated one.
type PlacementKind string

const (
	PlacementRegion PlacementKind = "Region"
	PlacementGlobal PlacementKind = "Global"
)

// Placement is a stream's replication placement. Region is set only when
// Kind == PlacementRegion.
type Placement struct {
	Kind   PlacementKind
	Region string
}

// IsRegion reports whether p pins the stream to a single region.
func (p Placement) IsRegion() bool { return p.Kind == PlacementRegion }

// StreamMetadata is created exactly once by CreateStream; NextOffset is its
// only mutable field thereafter.
type StreamMetadata struct {
	StreamID        ids.StreamId
	TenantID        ids.TenantId
	Name            string
	Class           DataClass
	Placement       Placement
	NextOffset      uint64
	CreatedAtTick   int64
}

// ColumnDef describes one column of a TableSchema.
type ColumnDef struct {
	Name     string
	Type     ColumnType
	Nullable bool
	Default  Value // nil if no default
}

// TableSchema is a table's structural definition.
type TableSchema struct {
	TableID     ids.TableId
	Name        string
	Columns     []ColumnDef
	PrimaryKey  []string
	Dropped     bool // logical tombstone, never physically removed
}

// ColumnByName returns the ColumnDef named name, or ok=false.
func (t TableSchema) ColumnByName(name string) (ColumnDef, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// IndexMetadata describes a secondary index over a table.
type IndexMetadata struct {
	IndexID ids.IndexId
	TableID ids.TableId
	Name    string
	Columns []string
	Unique  bool
	Dropped bool
}
