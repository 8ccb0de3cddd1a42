package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKind_Status(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		expected string
	}{
		{ErrForbiddenSyscall, "FO"},
		{ErrForbiddenAccess, "FA"},
		{ErrSignaled, "SG"},
		{ErrRuntimeError, "RE"},
		{ErrTimedOut, "TO"},
		{ErrInconsistent, "XX"},
		{ErrInvalidConfig, "XX"},
		{ErrInternal, "XX"},
		{ErrorKind(999), "XX"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.kind.Status(); got != tt.expected {
				t.Errorf("ErrorKind.Status() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestErrorKind_IsTargetStatus(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		expected bool
	}{
		{ErrForbiddenSyscall, true},
		{ErrForbiddenAccess, true},
		{ErrSignaled, true},
		{ErrRuntimeError, true},
		{ErrTimedOut, true},
		{ErrInconsistent, true},
		{ErrInvalidConfig, false},
		{ErrInternal, false},
	}

	for _, tt := range tests {
		if got := tt.kind.IsTargetStatus(); got != tt.expected {
			t.Errorf("%v.IsTargetStatus() = %v, want %v", tt.kind, got, tt.expected)
		}
	}
}

func TestSandboxError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *SandboxError
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "<nil>",
		},
		{
			name: "full error",
			err: &SandboxError{
				Op:     "valid-filename",
				Target: 4242,
				Kind:   ErrForbiddenAccess,
				Detail: "/etc/passwd not readable",
				Err:    fmt.Errorf("level 9"),
			},
			expected: "pid 4242: valid-filename: /etc/passwd not readable: level 9",
		},
		{
			name: "without target",
			err: &SandboxError{
				Op:     "setup",
				Kind:   ErrRlimitFailed.Kind,
				Detail: "setrlimit RLIMIT_AS failed",
			},
			expected: "setup: setrlimit RLIMIT_AS failed",
		},
		{
			name: "kind only",
			err: &SandboxError{
				Kind: ErrTimedOut,
			},
			expected: "time limit exceeded",
		},
		{
			name: "with underlying error",
			err: &SandboxError{
				Op:   "decode-regs",
				Kind: ErrInconsistent,
				Err:  fmt.Errorf("ptrace: no such process"),
			},
			expected: "decode-regs: internal inconsistency: ptrace: no such process",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("SandboxError.Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSandboxError_Unwrap(t *testing.T) {
	underlying := fmt.Errorf("underlying error")
	err := &SandboxError{
		Op:   "test",
		Kind: ErrInternal,
		Err:  underlying,
	}

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}

	var nilErr *SandboxError
	if got := nilErr.Unwrap(); got != nil {
		t.Errorf("nil.Unwrap() = %v, want nil", got)
	}
}

func TestSandboxError_Is(t *testing.T) {
	err1 := &SandboxError{Kind: ErrForbiddenSyscall, Op: "test1"}
	err2 := &SandboxError{Kind: ErrForbiddenSyscall, Op: "test2"}
	err3 := &SandboxError{Kind: ErrTimedOut, Op: "test3"}

	if !err1.Is(err2) {
		t.Error("err1.Is(err2) should be true (same kind)")
	}

	if err1.Is(err3) {
		t.Error("err1.Is(err3) should be false (different kind)")
	}

	if err1.Is(fmt.Errorf("some error")) {
		t.Error("err1.Is(fmt.Errorf(...)) should be false")
	}

	var nilErr *SandboxError
	if !nilErr.Is(nil) {
		t.Error("nil.Is(nil) should be true")
	}
}

func TestNew(t *testing.T) {
	err := New(ErrInvalidConfig, "parse-flags", "no command to run")

	if err.Kind != ErrInvalidConfig {
		t.Errorf("Kind = %v, want %v", err.Kind, ErrInvalidConfig)
	}
	if err.Op != "parse-flags" {
		t.Errorf("Op = %q, want %q", err.Op, "parse-flags")
	}
	if err.Detail != "no command to run" {
		t.Errorf("Detail = %q, want %q", err.Detail, "no command to run")
	}
}

func TestNewf(t *testing.T) {
	err := Newf(ErrInvalidConfig, "parse-syscall-rule", "unknown syscall %q", "frobnicate")

	if err.Detail != `unknown syscall "frobnicate"` {
		t.Errorf("Detail = %q, want %q", err.Detail, `unknown syscall "frobnicate"`)
	}
}

func TestWrap(t *testing.T) {
	underlying := fmt.Errorf("no such file or directory")
	err := Wrap(underlying, ErrInternal, "open redirect target")

	if err.Err != underlying {
		t.Error("Wrapped error should preserve underlying error")
	}
	if err.Kind != ErrInternal {
		t.Errorf("Kind = %v, want %v", err.Kind, ErrInternal)
	}
	if err.Op != "open redirect target" {
		t.Errorf("Op = %q, want %q", err.Op, "open redirect target")
	}
}

func TestWrapWithTarget(t *testing.T) {
	underlying := fmt.Errorf("no such process")
	err := WrapWithTarget(underlying, ErrInconsistent, "getregs", 1234)

	if err.Target != 1234 {
		t.Errorf("Target = %d, want %d", err.Target, 1234)
	}
}

func TestWrapWithDetail(t *testing.T) {
	underlying := fmt.Errorf("syscall failed")
	err := WrapWithDetail(underlying, ErrForbiddenSyscall, "valid-syscall", "ptrace denied open")

	if err.Detail != "ptrace denied open" {
		t.Errorf("Detail = %q, want %q", err.Detail, "ptrace denied open")
	}
}

func TestIsKind(t *testing.T) {
	err := &SandboxError{Kind: ErrForbiddenSyscall}
	wrapped := fmt.Errorf("wrapped: %w", err)

	if !IsKind(err, ErrForbiddenSyscall) {
		t.Error("IsKind(err, ErrForbiddenSyscall) should be true")
	}
	if !IsKind(wrapped, ErrForbiddenSyscall) {
		t.Error("IsKind(wrapped, ErrForbiddenSyscall) should be true")
	}
	if IsKind(err, ErrTimedOut) {
		t.Error("IsKind(err, ErrTimedOut) should be false")
	}
	if IsKind(fmt.Errorf("plain error"), ErrForbiddenSyscall) {
		t.Error("IsKind(plain error, ErrForbiddenSyscall) should be false")
	}
}

func TestGetKind(t *testing.T) {
	err := &SandboxError{Kind: ErrTimedOut}
	wrapped := fmt.Errorf("wrapped: %w", err)

	kind, ok := GetKind(err)
	if !ok || kind != ErrTimedOut {
		t.Errorf("GetKind(err) = (%v, %v), want (%v, true)", kind, ok, ErrTimedOut)
	}

	kind, ok = GetKind(wrapped)
	if !ok || kind != ErrTimedOut {
		t.Errorf("GetKind(wrapped) = (%v, %v), want (%v, true)", kind, ok, ErrTimedOut)
	}

	_, ok = GetKind(fmt.Errorf("plain error"))
	if ok {
		t.Error("GetKind(plain error) should return false")
	}
}

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  *SandboxError
		kind ErrorKind
	}{
		{"ErrNoCommand", ErrNoCommand, ErrInvalidConfig},
		{"ErrBadSyscallName", ErrBadSyscallName, ErrInvalidConfig},
		{"ErrBadPathRule", ErrBadPathRule, ErrInvalidConfig},
		{"ErrForkFailed", ErrForkFailed, ErrInternal},
		{"ErrExecFailed", ErrExecFailed, ErrInternal},
		{"ErrPtraceFailed", ErrPtraceFailed, ErrInternal},
		{"ErrSyscallDenied", ErrSyscallDenied, ErrForbiddenSyscall},
		{"ErrPathDenied", ErrPathDenied, ErrForbiddenAccess},
		{"ErrCPUTimeExceeded", ErrCPUTimeExceeded, ErrTimedOut},
		{"ErrMemoryExceeded", ErrMemoryExceeded, ErrSignaled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("%s.Kind = %v, want %v", tt.name, tt.err.Kind, tt.kind)
			}
			wrapped := Wrap(fmt.Errorf("underlying"), tt.kind, "test")
			if !errors.Is(wrapped, tt.err) {
				t.Errorf("errors.Is(wrapped, %s) should be true", tt.name)
			}
		})
	}
}

func TestErrorChain(t *testing.T) {
	underlying := fmt.Errorf("no such file or directory")
	err1 := Wrap(underlying, ErrForbiddenAccess, "valid-filename")
	err2 := fmt.Errorf("syscall rejected: %w", err1)

	if !errors.Is(err2, ErrPathDenied) {
		t.Error("errors.Is should find ErrPathDenied in chain")
	}

	var serr *SandboxError
	if !errors.As(err2, &serr) {
		t.Error("errors.As should find SandboxError in chain")
	}
	if serr.Op != "valid-filename" {
		t.Errorf("serr.Op = %q, want %q", serr.Op, "valid-filename")
	}

	if errors.Unwrap(err1) != underlying {
		t.Error("Unwrap should return underlying error")
	}
}
