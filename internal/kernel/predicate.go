package kernel

// matchPredicates reports whether row satisfies every predicate in preds.
// An empty predicate list matches every row, mirroring a bare UPDATE/DELETE
// with no WHERE clause.
func matchPredicates(row Row, preds []Predicate) bool {
	for _, p := range preds {
		if !matchOne(row, p) {
			return false
		}
	}
	return true
}

func matchOne(row Row, p Predicate) bool {
	cell, present := row[p.Column]
	if !present {
		cell = Null{}
	}
	_, isNull := cell.(Null)

	switch p.Op {
	case PredicateIsNull:
		return isNull
	case PredicateIsNotNull:
		return !isNull
	case PredicateEquals:
		if isNull {
			return false
		}
		return valuesEqual(cell, p.Value)
	case PredicateNotEquals:
		if isNull {
			return false
		}
		return !valuesEqual(cell, p.Value)
	default:
		return false
	}
}

// valuesEqual compares two Values of the same declared column type.
// Mismatched dynamic types compare unequal rather than panicking — callers
// that need type safety validate columns against the schema beforehand.
func valuesEqual(a, b Value) bool {
	switch av := a.(type) {
	case IntValue:
		bv, ok := b.(IntValue)
		return ok && av == bv
	case TextValue:
		bv, ok := b.(TextValue)
		return ok && av == bv
	case BoolValue:
		bv, ok := b.(BoolValue)
		return ok && av == bv
	case TimestampValue:
		bv, ok := b.(TimestampValue)
		return ok && av == bv
	case BlobValue:
		bv, ok := b.(BlobValue)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case Null:
		_, ok := b.(Null)
		return ok
	default:
		return false
	}
}
