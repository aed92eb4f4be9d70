package config

import (
	"fmt"

	"github.com/kimberlite-db/kimberlite/internal/ids"
	"github.com/kimberlite-db/kimberlite/internal/kernel"
)

// BootstrapCommands turns a compiled TenantSchema into the ordered
// sequence of kernel commands that creates it: every stream first, then
// every table with its own columns. It produces no CreateIndex commands:
// indexes reference tables by the TableId the kernel assigns at
// CreateTable time, which config.TenantSchema cannot know in advance, so a
// caller that wants the schema's indexes applies these commands one at a
// time, looks up the assigned TableId from the resulting State, and builds
// the CreateIndex commands itself (see ToCreateTableCommand).
func BootstrapCommands(schema TenantSchema) ([]kernel.Command, error) {
	var cmds []kernel.Command

	for _, s := range schema.Streams {
		cmd, err := toCreateStreamCommand(schema.Tenant, s)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}

	for _, t := range schema.Tables {
		cmd, err := ToCreateTableCommand(t)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}

	return cmds, nil
}

func toCreateStreamCommand(tenant uint64, s StreamConfig) (kernel.Command, error) {
	class, err := parseDataClass(s.Class)
	if err != nil {
		return kernel.Command{}, err
	}

	var placementKind kernel.PlacementKind
	switch s.PlacementKind {
	case "Region":
		placementKind = kernel.PlacementRegion
	case "Global", "":
		placementKind = kernel.PlacementGlobal
	default:
		return kernel.Command{}, fmt.Errorf("config: stream %q has unknown placement %q", s.Name, s.PlacementKind)
	}

	return kernel.Command{
		Kind: kernel.CmdCreateStream,
		CreateStream: &kernel.CreateStreamCmd{
			Tenant: ids.TenantId(tenant),
			Name:   s.Name,
			Class:  class,
			Placement: kernel.Placement{
				Kind:   placementKind,
				Region: s.Region,
			},
		},
	}, nil
}

// ToCreateTableCommand builds the CreateTable command for t. Exported so
// callers that must interleave table creation with index creation (to
// learn the assigned TableId) can build one table at a time.
func ToCreateTableCommand(t TableConfig) (kernel.Command, error) {
	cols := make([]kernel.ColumnDef, 0, len(t.Columns))
	for _, c := range t.Columns {
		colType, err := parseColumnType(c.Type)
		if err != nil {
			return kernel.Command{}, err
		}
		cols = append(cols, kernel.ColumnDef{
			Name:     c.Name,
			Type:     colType,
			Nullable: c.Nullable,
		})
	}

	return kernel.Command{
		Kind: kernel.CmdCreateTable,
		CreateTable: &kernel.CreateTableCmd{
			Name:       t.Name,
			Columns:    cols,
			PrimaryKey: append([]string(nil), t.PrimaryKey...),
		},
	}, nil
}

func parseDataClass(s string) (kernel.DataClass, error) {
	switch kernel.DataClass(s) {
	case kernel.PHI, kernel.NonPHI, kernel.Deidentified:
		return kernel.DataClass(s), nil
	default:
		return "", fmt.Errorf("config: unknown data class %q", s)
	}
}

func parseColumnType(s string) (kernel.ColumnType, error) {
	switch kernel.ColumnType(s) {
	case kernel.ColumnInt64, kernel.ColumnText, kernel.ColumnBool, kernel.ColumnTimestamp, kernel.ColumnBlob:
		return kernel.ColumnType(s), nil
	default:
		return "", fmt.Errorf("config: unknown column type %q", s)
	}
}
