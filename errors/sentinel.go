// Package errors provides predefined sentinel errors for common failure cases.
package errors

// Configuration errors, detected before any child is forked.
var (
	// ErrNoCommand indicates no target command was given on the command line.
	ErrNoCommand = &SandboxError{
		Kind:   ErrInvalidConfig,
		Detail: "no command to run",
	}

	// ErrBadSyscallName indicates a -s rule named a syscall the table does
	// not recognize.
	ErrBadSyscallName = &SandboxError{
		Kind:   ErrInvalidConfig,
		Detail: "unknown syscall name",
	}

	// ErrBadPathRule indicates a -p rule could not be parsed.
	ErrBadPathRule = &SandboxError{
		Kind:   ErrInvalidConfig,
		Detail: "malformed path rule",
	}

	// ErrBadEnvRule indicates a -E rule could not be parsed.
	ErrBadEnvRule = &SandboxError{
		Kind:   ErrInvalidConfig,
		Detail: "malformed environment rule",
	}

	// ErrUnsupportedArch indicates the sandbox was built for an architecture
	// it does not know how to trace.
	ErrUnsupportedArch = &SandboxError{
		Kind:   ErrInvalidConfig,
		Detail: "unsupported architecture",
	}
)

// Fork and exec errors raised before tracing begins.
var (
	// ErrForkFailed indicates the keeper could not create the inside process.
	ErrForkFailed = &SandboxError{
		Kind:   ErrInternal,
		Detail: "failed to start inside process",
	}

	// ErrExecFailed indicates the inside process could not execve the target.
	ErrExecFailed = &SandboxError{
		Kind:   ErrInternal,
		Detail: "failed to execve target program",
	}

	// ErrChdirFailed indicates the -c working directory could not be entered.
	ErrChdirFailed = &SandboxError{
		Kind:   ErrInternal,
		Detail: "failed to change directory",
	}

	// ErrRedirectFailed indicates an -i/-o/-r file redirection failed.
	ErrRedirectFailed = &SandboxError{
		Kind:   ErrInternal,
		Detail: "failed to redirect standard file descriptor",
	}

	// ErrRlimitFailed indicates a setrlimit call in the inside process failed.
	ErrRlimitFailed = &SandboxError{
		Kind:   ErrInternal,
		Detail: "failed to set resource limit",
	}
)

// Tracing errors encountered while the target is running.
var (
	// ErrPtraceFailed indicates a ptrace(2) call against the target failed.
	ErrPtraceFailed = &SandboxError{
		Kind:   ErrInternal,
		Detail: "ptrace call failed",
	}

	// ErrRegsFailed indicates PTRACE_GETREGS or PTRACE_SETREGS failed.
	ErrRegsFailed = &SandboxError{
		Kind:   ErrInconsistent,
		Detail: "failed to read or write target registers",
	}

	// ErrUnknownMode indicates the instruction at the syscall site was
	// neither SYSCALL nor INT 0x80.
	ErrUnknownMode = &SandboxError{
		Kind:   ErrInconsistent,
		Detail: "could not determine syscall entry mode",
	}

	// ErrSyscallDenied indicates the syscall table rejected the call.
	ErrSyscallDenied = &SandboxError{
		Kind:   ErrForbiddenSyscall,
		Detail: "syscall not permitted",
	}

	// ErrPathDenied indicates the path policy rejected a filename argument.
	ErrPathDenied = &SandboxError{
		Kind:   ErrForbiddenAccess,
		Detail: "path not permitted",
	}

	// ErrReadUserMem indicates a filename argument could not be read out of
	// the target's address space.
	ErrReadUserMem = &SandboxError{
		Kind:   ErrInconsistent,
		Detail: "failed to read target memory",
	}
)

// Limit and outcome errors.
var (
	// ErrCPUTimeExceeded indicates the CPU time limit was exceeded.
	ErrCPUTimeExceeded = &SandboxError{
		Kind:   ErrTimedOut,
		Detail: "time limit exceeded",
	}

	// ErrWallTimeExceeded indicates the wall clock limit was exceeded.
	ErrWallTimeExceeded = &SandboxError{
		Kind:   ErrTimedOut,
		Detail: "wall clock time limit exceeded",
	}

	// ErrMemoryExceeded indicates the address space limit killed the target.
	ErrMemoryExceeded = &SandboxError{
		Kind:   ErrSignaled,
		Detail: "memory limit exceeded",
	}

	// ErrProcFileFailed indicates /proc/<pid>/stat or /proc/<pid>/status
	// could not be read for resource accounting.
	ErrProcFileFailed = &SandboxError{
		Kind:   ErrInternal,
		Detail: "failed to read proc file",
	}

	// ErrMetaWriteFailed indicates the meta report could not be written.
	ErrMetaWriteFailed = &SandboxError{
		Kind:   ErrInternal,
		Detail: "failed to write meta file",
	}
)
