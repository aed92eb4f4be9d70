package vsr

import "fmt"

// ErrorKind is the closed error taxonomy for replica-side rejections.
// None of these represent state corruption; each is a handler refusing
// a message that violates a safety rule (spec §4.4).
type ErrorKind string

const (
	ErrStaleView        ErrorKind = "StaleView"
	ErrNotLeader        ErrorKind = "NotLeader"
	ErrOpMismatch       ErrorKind = "OpMismatch"
	ErrChecksumMismatch ErrorKind = "ChecksumMismatch"
	ErrWrongStatus      ErrorKind = "WrongStatus"
	ErrPayloadTooLarge  ErrorKind = "PayloadTooLarge"
	ErrDuplicateClaim   ErrorKind = "DuplicateClaim"
	ErrUnknownReplica   ErrorKind = "UnknownReplica"
)

// Error is vsr's single error type.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("vsr: %s: %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	verr, ok := err.(*Error)
	return ok && verr.Kind == kind
}
