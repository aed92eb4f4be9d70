package config

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/require"
)

func TestCompileTenantSchemaBasic(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		tenant_schema: t1: {
			tenant: 1
			stream: {
				events: { class: "NonPHI", placement: "Global" }
				charts: { class: "PHI", placement: "Region", region: "us-east-1" }
			}
			table: {
				patients: {
					column: {
						id:    { type: "Int64" }
						name:  { type: "Text" }
						notes: { type: "Text", nullable: true }
					}
					primary_key: ["id"]
					index: {
						by_name: { column: ["name"] }
					}
				}
			}
		}
	`)
	require.NoError(t, v.Err())

	schemaVal := v.LookupPath(cue.ParsePath("tenant_schema.t1"))
	schema, err := CompileTenantSchema(schemaVal)
	require.NoError(t, err)

	require.Equal(t, uint64(1), schema.Tenant)
	require.Len(t, schema.Streams, 2)
	require.Len(t, schema.Tables, 1)

	table := schema.Tables[0]
	require.Equal(t, "patients", table.Name)
	require.Len(t, table.Columns, 3)
	require.Equal(t, []string{"id"}, table.PrimaryKey)
	require.Len(t, table.Indexes, 1)
	require.Equal(t, "by_name", table.Indexes[0].Name)
}

func TestCompileTenantSchemaRequiresPrimaryKey(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		tenant_schema: t1: {
			tenant: 1
			table: {
				orphan: {
					column: { id: { type: "Int64" } }
				}
			}
		}
	`)
	require.NoError(t, v.Err())

	schemaVal := v.LookupPath(cue.ParsePath("tenant_schema.t1"))
	_, err := CompileTenantSchema(schemaVal)
	require.Error(t, err)
}

func TestCompileTenantSchemaRejectsMissingColumnType(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		tenant_schema: t1: {
			tenant: 1
			table: {
				orphan: {
					column: { id: {} }
					primary_key: ["id"]
				}
			}
		}
	`)
	require.NoError(t, v.Err())

	schemaVal := v.LookupPath(cue.ParsePath("tenant_schema.t1"))
	_, err := CompileTenantSchema(schemaVal)
	require.Error(t, err)
}
