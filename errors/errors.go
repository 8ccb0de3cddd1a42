// Package errors provides typed error handling for the box sandbox.
//
// It defines domain-specific error types that let the keeper classify a
// failure as a policy violation, a target fault, or an internal sandbox
// error, and map that classification onto the two-character status codes
// written to the meta file. All errors support the standard errors.Is()
// and errors.As() functions for inspection.
package errors

import (
	"errors"
	"fmt"
)

// ErrorKind represents the category of an error. Every Kind except
// ErrInvalidConfig and ErrInternal corresponds 1:1 to a meta "status" code
// written by the keeper for the traced target; the other two are sandbox
// errors and are always reported as status:XX.
type ErrorKind int

const (
	// ErrForbiddenSyscall indicates a syscall was denied by policy or mode
	// detection. Meta status: FO.
	ErrForbiddenSyscall ErrorKind = iota
	// ErrForbiddenAccess indicates a file access was denied by the path
	// policy. Meta status: FA.
	ErrForbiddenAccess
	// ErrSignaled indicates the target died by signal, including
	// self-directed kill/tgkill. Meta status: SG.
	ErrSignaled
	// ErrRuntimeError indicates the target exited with a nonzero status.
	// Meta status: RE.
	ErrRuntimeError
	// ErrTimedOut indicates the CPU or wall-clock budget was exceeded.
	// Meta status: TO.
	ErrTimedOut
	// ErrInconsistent indicates an internal tracing inconsistency (unknown
	// instruction, mismatched syscall entry/exit, unexpected wait status).
	// Meta status: XX.
	ErrInconsistent
	// ErrInvalidConfig indicates a CLI or policy configuration error,
	// detected before any child is forked. Meta status: XX.
	ErrInvalidConfig
	// ErrInternal indicates the sandbox itself could not continue (a
	// failed syscall on the keeper's own process, etc). Meta status: XX.
	ErrInternal
)

// Status returns the two-character meta status code for the kind.
func (k ErrorKind) Status() string {
	switch k {
	case ErrForbiddenSyscall:
		return "FO"
	case ErrForbiddenAccess:
		return "FA"
	case ErrSignaled:
		return "SG"
	case ErrRuntimeError:
		return "RE"
	case ErrTimedOut:
		return "TO"
	default:
		return "XX"
	}
}

// String returns a human-readable name for the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrForbiddenSyscall:
		return "forbidden syscall"
	case ErrForbiddenAccess:
		return "forbidden file access"
	case ErrSignaled:
		return "terminated by signal"
	case ErrRuntimeError:
		return "nonzero exit"
	case ErrTimedOut:
		return "time limit exceeded"
	case ErrInconsistent:
		return "internal inconsistency"
	case ErrInvalidConfig:
		return "invalid config"
	case ErrInternal:
		return "internal error"
	default:
		return "unknown error"
	}
}

// IsTargetStatus reports whether the kind corresponds to a status written
// about the traced target, as opposed to a sandbox error (ErrInvalidConfig,
// ErrInternal) which is always reported as XX.
func (k ErrorKind) IsTargetStatus() bool {
	switch k {
	case ErrForbiddenSyscall, ErrForbiddenAccess, ErrSignaled, ErrRuntimeError, ErrTimedOut, ErrInconsistent:
		return true
	default:
		return false
	}
}

// SandboxError represents an error encountered while running the sandbox.
type SandboxError struct {
	// Op is the operation that failed (e.g., "decode-regs", "valid-filename").
	Op string
	// Target is the pid of the traced process, if applicable.
	Target int
	// Err is the underlying error.
	Err error
	// Kind is the error classification.
	Kind ErrorKind
	// Detail provides additional context, written verbatim as the meta
	// "message" value.
	Detail string
}

// Error returns the error message.
func (e *SandboxError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var msg string
	if e.Target != 0 {
		msg = fmt.Sprintf("pid %d: ", e.Target)
	}
	if e.Op != "" {
		msg += fmt.Sprintf("%s: ", e.Op)
	}
	if e.Detail != "" {
		msg += e.Detail
	} else {
		msg += e.Kind.String()
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *SandboxError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether the error matches the target. It matches if the
// target is a *SandboxError with the same Kind; any other target is not
// matched here, and errors.Is goes on to the wrapped error via Unwrap.
func (e *SandboxError) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if t, ok := target.(*SandboxError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a new SandboxError with the given kind.
func New(kind ErrorKind, op string, detail string) *SandboxError {
	return &SandboxError{
		Op:     op,
		Kind:   kind,
		Detail: detail,
	}
}

// Newf creates a new SandboxError with a formatted detail message.
func Newf(kind ErrorKind, op string, format string, args ...any) *SandboxError {
	return &SandboxError{
		Op:     op,
		Kind:   kind,
		Detail: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with sandbox context.
func Wrap(err error, kind ErrorKind, op string) *SandboxError {
	return &SandboxError{
		Op:   op,
		Err:  err,
		Kind: kind,
	}
}

// WrapWithTarget wraps an error with sandbox context and the target pid.
func WrapWithTarget(err error, kind ErrorKind, op string, pid int) *SandboxError {
	return &SandboxError{
		Op:     op,
		Target: pid,
		Err:    err,
		Kind:   kind,
	}
}

// WrapWithDetail wraps an error with additional detail.
func WrapWithDetail(err error, kind ErrorKind, op string, detail string) *SandboxError {
	return &SandboxError{
		Op:     op,
		Err:    err,
		Kind:   kind,
		Detail: detail,
	}
}

// IsKind checks if an error is of a specific kind.
func IsKind(err error, kind ErrorKind) bool {
	var serr *SandboxError
	if errors.As(err, &serr) {
		return serr.Kind == kind
	}
	return false
}

// GetKind returns the error kind if the error is a SandboxError.
func GetKind(err error) (ErrorKind, bool) {
	var serr *SandboxError
	if errors.As(err, &serr) {
		return serr.Kind, true
	}
	return 0, false
}

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)
