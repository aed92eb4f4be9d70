// Package voprcli implements the kimberlite-vopr command line, grounded
// on the corpus's own internal/cli package: a Cobra root command, a
// shared JSON/text OutputFormatter, and an ExitError type a RunE can
// return to carry a specific process exit code back through Cobra.
package voprcli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes a VOPR CLI invocation reports (spec §6): 0 the run found no
// violation, 1 an invariant was violated, 2 the coverage gate was not
// met, 3 two runs of the same seed disagreed (nondeterminism).
const (
	ExitPass               = 0
	ExitInvariantViolation = 1
	ExitCoverageUnmet      = 2
	ExitNondeterminism     = 3
)

// ExitError carries a specific process exit code out of a Cobra RunE,
// grounded on the corpus's own ExitError/WrapExitError/GetExitCode.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError creates an ExitError with no wrapped cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with a specific exit code and message.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from err, defaulting to
// ExitInvariantViolation (1) for any error that isn't an *ExitError —
// the VOPR CLI treats an unclassified failure the same as a caught
// violation rather than succeeding silently.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitInvariantViolation
}

// OutputFormatter renders a run's result as either human-readable text or
// a single JSON document, selected by the root command's --format flag.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool
}

// JSON encodes v to the formatter's writer, indented for readability.
func (f *OutputFormatter) JSON(v interface{}) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Text writes a plain line to the formatter's writer.
func (f *OutputFormatter) Text(format string, args ...interface{}) {
	fmt.Fprintf(f.Writer, format+"\n", args...)
}

// VerboseLog writes a line only when Verbose is set.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if f.Verbose {
		fmt.Fprintf(f.Writer, format+"\n", args...)
	}
}
