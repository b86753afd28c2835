// Package errs defines the shared error taxonomy (spec §7). Each kind is a
// plain sentinel; call sites wrap it with fmt.Errorf("%w: ...", Kind, ...)
// the way the teacher wraps errors from assembler.Assemble and cpu.Decode.
// There is no hierarchy beyond "fatal / non-fatal" — callers use
// errors.Is(err, errs.ErrX) to classify.
package errs

import "errors"

var (
	// ErrArg is an invalid CLI argument or API input.
	ErrArg = errors.New("ArgError")
	// ErrParse is a malformed map / listing / linker map / signature /
	// variant file.
	ErrParse = errors.New("ParseError")
	// ErrLogic is an internal invariant violation.
	ErrLogic = errors.New("LogicError")
	// ErrDecode is an invalid instruction encoding.
	ErrDecode = errors.New("DecodeError")
	// ErrMemory is an out-of-range byte image access.
	ErrMemory = errors.New("MemoryError")
	// ErrIO is an underlying file I/O failure.
	ErrIO = errors.New("IoError")
	// ErrDos is an MZ structural failure.
	ErrDos = errors.New("DosError")
	// ErrAnalysis is a higher-level inconsistency, e.g. an incomplete
	// code map build.
	ErrAnalysis = errors.New("AnalysisError")
)

// Fatal reports whether the error should terminate the current tool
// invocation with exit code 1 (spec §7 propagation policy). Instruction
// decode errors are excluded: the explorer always catches them itself and
// turns them into a rollback, never into an outer-loop failure.
func Fatal(err error) bool {
	return err != nil && !errors.Is(err, ErrDecode)
}
