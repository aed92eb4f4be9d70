// Package config compiles declarative CUE cluster and tenant-schema
// definitions into the typed Go structs the shell and simulator bootstrap
// from. The shape mirrors how the compiler package turns concept/sync CUE
// into ir.ConceptSpec/ir.SyncRule: a thin CUE-walking compiler feeding a
// small typed IR, not a general schema language.
package config

import "github.com/kimberlite-db/kimberlite/internal/wal"

// ClusterConfig describes one VSR replica group's static membership and
// durability policy (spec §4.4).
type ClusterConfig struct {
	GroupName    string
	Replicas     []ReplicaConfig
	Standbys     []ReplicaConfig
	FsyncPolicy  wal.FsyncPolicy
	ClusterVersion string // semver, e.g. "1.4.0" (spec §4.4 rolling upgrade)
}

// ReplicaConfig is one member's static address and placement.
type ReplicaConfig struct {
	Name    string
	Address string
	Region  string
}

// TenantSchema is one tenant's declared streams, tables, and indexes,
// compiled from CUE. BootstrapCommands (bootstrap.go) turns its streams and
// tables into CreateStream/CreateTable commands; it emits no CreateIndex
// commands for the declared indexes.
type TenantSchema struct {
	Tenant  uint64
	Streams []StreamConfig
	Tables  []TableConfig
}

// StreamConfig describes a stream to create at bootstrap.
type StreamConfig struct {
	Name          string
	Class         string // kernel.DataClass literal: "PHI", "NonPHI", "Deidentified"
	PlacementKind string // "Region" or "Global"
	Region        string
}

// TableConfig describes a table to create at bootstrap.
type TableConfig struct {
	Name       string
	Columns    []ColumnConfig
	PrimaryKey []string
	Indexes    []IndexConfig
}

// ColumnConfig describes one declared column.
type ColumnConfig struct {
	Name     string
	Type     string // kernel.ColumnType literal
	Nullable bool
}

// IndexConfig describes a secondary index to create after its table.
type IndexConfig struct {
	Name    string
	Columns []string
	Unique  bool
}
