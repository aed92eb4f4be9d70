package kernel

import "fmt"

// ErrorKind is the kernel's closed error taxonomy (spec §4.3, §7). Every
// apply_committed failure maps to exactly one of these; state is left
// unchanged in every case.
type ErrorKind string

const (
	ErrPlacementViolation ErrorKind = "PlacementViolation"
	ErrNotFound           ErrorKind = "NotFound"
	ErrConflict           ErrorKind = "Conflict"
	ErrTypeMismatch       ErrorKind = "TypeMismatch"
	ErrNullConstraint     ErrorKind = "NullConstraint"
	ErrPrimaryKey         ErrorKind = "PrimaryKey"
	ErrUnknownColumn      ErrorKind = "UnknownColumn"
	ErrOffsetGap          ErrorKind = "OffsetGap"
)

// Error is the kernel's single error type. apply_committed never panics
// and never mutates state on an Error return — see Apply in apply.go.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("kernel: %s: %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	kerr, ok := err.(*Error)
	return ok && kerr.Kind == kind
}
