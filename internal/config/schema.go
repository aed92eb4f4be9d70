package config

import (
	"cuelang.org/go/cue"
)

// CompileTenantSchema parses a CUE value shaped like:
//
//	tenant: 1
//	stream: {
//		events: { class: "NonPHI", placement: "Global" }
//		charts: { class: "PHI", placement: "Region", region: "us-east-1" }
//	}
//	table: {
//		patients: {
//			column: {
//				id:    { type: "Int64" }
//				name:  { type: "Text" }
//				notes: { type: "Text", nullable: true }
//			}
//			primary_key: ["id"]
//			index: {
//				by_name: { column: ["name"] }
//			}
//		}
//	}
func CompileTenantSchema(v cue.Value) (*TenantSchema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	schema := &TenantSchema{}

	tenantVal := v.LookupPath(cue.ParsePath("tenant"))
	if !tenantVal.Exists() {
		return nil, &CompileError{Field: "tenant", Message: "tenant is required", Pos: v.Pos()}
	}
	tenant, err := tenantVal.Uint64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	schema.Tenant = tenant

	schema.Streams, err = parseStreams(v)
	if err != nil {
		return nil, err
	}

	schema.Tables, err = parseTables(v)
	if err != nil {
		return nil, err
	}

	return schema, nil
}

func parseStreams(v cue.Value) ([]StreamConfig, error) {
	var out []StreamConfig

	streamVal := v.LookupPath(cue.ParsePath("stream"))
	if !streamVal.Exists() {
		return out, nil
	}

	iter, err := streamVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		name := iter.Label()
		sv := iter.Value()

		classVal := sv.LookupPath(cue.ParsePath("class"))
		if !classVal.Exists() {
			return nil, &CompileError{Field: "stream." + name + ".class", Message: "class is required", Pos: sv.Pos()}
		}
		class, err := classVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}

		placementVal := sv.LookupPath(cue.ParsePath("placement"))
		placement := "Global"
		if placementVal.Exists() {
			placement, err = placementVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
		}

		region := ""
		regionVal := sv.LookupPath(cue.ParsePath("region"))
		if regionVal.Exists() {
			region, err = regionVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
		}

		out = append(out, StreamConfig{
			Name:          name,
			Class:         class,
			PlacementKind: placement,
			Region:        region,
		})
	}

	return out, nil
}

func parseTables(v cue.Value) ([]TableConfig, error) {
	var out []TableConfig

	tableVal := v.LookupPath(cue.ParsePath("table"))
	if !tableVal.Exists() {
		return out, nil
	}

	iter, err := tableVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		name := iter.Label()
		tv := iter.Value()

		columns, err := parseColumns(name, tv)
		if err != nil {
			return nil, err
		}

		var primaryKey []string
		pkVal := tv.LookupPath(cue.ParsePath("primary_key"))
		if pkVal.Exists() {
			pkIter, err := pkVal.List()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for pkIter.Next() {
				col, err := pkIter.Value().String()
				if err != nil {
					return nil, formatCUEError(err)
				}
				primaryKey = append(primaryKey, col)
			}
		}
		if len(primaryKey) == 0 {
			return nil, &CompileError{Field: "table." + name + ".primary_key", Message: "primary_key is required", Pos: tv.Pos()}
		}

		indexes, err := parseIndexes(name, tv)
		if err != nil {
			return nil, err
		}

		out = append(out, TableConfig{
			Name:       name,
			Columns:    columns,
			PrimaryKey: primaryKey,
			Indexes:    indexes,
		})
	}

	return out, nil
}

func parseColumns(tableName string, tv cue.Value) ([]ColumnConfig, error) {
	var out []ColumnConfig

	colVal := tv.LookupPath(cue.ParsePath("column"))
	if !colVal.Exists() {
		return nil, &CompileError{Field: "table." + tableName + ".column", Message: "at least one column is required", Pos: tv.Pos()}
	}

	iter, err := colVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		colName := iter.Label()
		cv := iter.Value()

		typeVal := cv.LookupPath(cue.ParsePath("type"))
		if !typeVal.Exists() {
			return nil, &CompileError{Field: "table." + tableName + ".column." + colName + ".type", Message: "type is required", Pos: cv.Pos()}
		}
		colType, err := typeVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}

		nullable := false
		nullableVal := cv.LookupPath(cue.ParsePath("nullable"))
		if nullableVal.Exists() {
			nullable, err = nullableVal.Bool()
			if err != nil {
				return nil, formatCUEError(err)
			}
		}

		out = append(out, ColumnConfig{Name: colName, Type: colType, Nullable: nullable})
	}

	return out, nil
}

func parseIndexes(tableName string, tv cue.Value) ([]IndexConfig, error) {
	var out []IndexConfig

	idxVal := tv.LookupPath(cue.ParsePath("index"))
	if !idxVal.Exists() {
		return out, nil
	}

	iter, err := idxVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		idxName := iter.Label()
		iv := iter.Value()

		colsVal := iv.LookupPath(cue.ParsePath("column"))
		if !colsVal.Exists() {
			return nil, &CompileError{Field: "table." + tableName + ".index." + idxName + ".column", Message: "at least one column is required", Pos: iv.Pos()}
		}
		colsIter, err := colsVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var cols []string
		for colsIter.Next() {
			col, err := colsIter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			cols = append(cols, col)
		}

		unique := false
		uniqueVal := iv.LookupPath(cue.ParsePath("unique"))
		if uniqueVal.Exists() {
			unique, err = uniqueVal.Bool()
			if err != nil {
				return nil, formatCUEError(err)
			}
		}

		out = append(out, IndexConfig{Name: idxName, Columns: cols, Unique: unique})
	}

	return out, nil
}
