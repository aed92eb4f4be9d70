package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kimberlite-db/kimberlite/internal/kernel"
)

func TestBootstrapCommandsProducesStreamsThenTables(t *testing.T) {
	schema := TenantSchema{
		Tenant: 1,
		Streams: []StreamConfig{
			{Name: "events", Class: "NonPHI", PlacementKind: "Global"},
			{Name: "charts", Class: "PHI", PlacementKind: "Region", Region: "us-east-1"},
		},
		Tables: []TableConfig{
			{
				Name: "patients",
				Columns: []ColumnConfig{
					{Name: "id", Type: "Int64"},
					{Name: "name", Type: "Text"},
				},
				PrimaryKey: []string{"id"},
			},
		},
	}

	cmds, err := BootstrapCommands(schema)
	require.NoError(t, err)
	require.Len(t, cmds, 3)
	require.Equal(t, kernel.CmdCreateStream, cmds[0].Kind)
	require.Equal(t, kernel.CmdCreateStream, cmds[1].Kind)
	require.Equal(t, kernel.CmdCreateTable, cmds[2].Kind)

	state := kernel.New()
	for _, cmd := range cmds {
		var err error
		state, _, err = kernel.Apply(state, cmd)
		require.NoError(t, err)
	}
	require.Len(t, state.Streams, 2)
	require.Len(t, state.Tables, 1)
}

func TestBootstrapCommandsRejectsUnknownDataClass(t *testing.T) {
	schema := TenantSchema{
		Tenant: 1,
		Streams: []StreamConfig{
			{Name: "events", Class: "Bogus", PlacementKind: "Global"},
		},
	}
	_, err := BootstrapCommands(schema)
	require.Error(t, err)
}
