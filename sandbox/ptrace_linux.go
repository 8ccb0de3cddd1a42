//go:build linux && amd64

package sandbox

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"

	boxerrors "box/errors"
)

// denySyscallNumber is the reserved sentinel (~0) the keeper rewrites a
// denied syscall's number to at entry (§4.7). The kernel then fails the
// call with ENOSYS, but by the time that happens the keeper has already
// decided to kill the child, so the rewrite only matters if the kill races.
const denySyscallNumber = ^uint64(0)

// syscallMode distinguishes the code-segment selector of a traced stop.
type syscallMode int

const (
	modeUnknown syscallMode = iota
	mode64
	mode32
)

const (
	cs32 = 0x23
	cs64 = 0x33

	opcodeSyscall = 0x050f // little-endian encoding of 0x0f 0x05
	opcodeInt80   = 0x80cd // little-endian encoding of 0xcd 0x80
)

// SyscallArgs is the register snapshot captured at a syscall-entry stop.
type SyscallArgs struct {
	Num          int64
	Arg1, Arg2, Arg3 uint64
	Regs         syscall.PtraceRegs
}

// GetRegs reads the traced process's register file.
func GetRegs(pid int) (syscall.PtraceRegs, error) {
	var regs syscall.PtraceRegs
	if err := syscall.PtraceGetRegs(pid, &regs); err != nil {
		return regs, boxerrors.WrapWithTarget(err, boxerrors.ErrInconsistent, "getregs", pid)
	}
	return regs, nil
}

// SetRegs writes the traced process's register file.
func SetRegs(pid int, regs *syscall.PtraceRegs) error {
	if err := syscall.PtraceSetRegs(pid, regs); err != nil {
		return boxerrors.WrapWithTarget(err, boxerrors.ErrInconsistent, "setregs", pid)
	}
	return nil
}

// DecodeEntry reads the register file at a syscall-entry stop and decodes
// the syscall number and first three arguments, enforcing §4.6's mode
// detection. Since this is always an amd64 build (box.c's
// CONFIG_BOX_USER_AMD64 case, confirmed by CheckHostCompatible before any
// child is forked), only cs == 0x33 (64-bit mode) is ever accepted; a
// target observed in 32-bit mode (cs == 0x23) is a forbidden-mode error,
// and any other selector is a fatal inconsistency.
func DecodeEntry(pid int) (*SyscallArgs, error) {
	regs, err := GetRegs(pid)
	if err != nil {
		return nil, err
	}

	switch codeSegmentMode(regs.Cs) {
	case mode64:
		if err := checkSyscallOpcode(pid, regs.Rip); err != nil {
			return nil, err
		}
		return &SyscallArgs{
			Num:  int64(regs.Orig_rax),
			Arg1: regs.Rdi,
			Arg2: regs.Rsi,
			Arg3: regs.Rdx,
			Regs: regs,
		}, nil
	case mode32:
		return nil, boxerrors.New(boxerrors.ErrForbiddenSyscall, "decode-entry",
			"target entered 32-bit syscall mode, not supported by this amd64-only build")
	default:
		return nil, boxerrors.Newf(boxerrors.ErrInconsistent, "decode-entry", "unrecognised code segment 0x%x", regs.Cs)
	}
}

// DecodeExit reads the register file at a syscall-exit stop. Unlike
// DecodeEntry it does not check the instruction preceding rip, since rip has
// already advanced past the syscall instruction by the time the exit stop is
// delivered; only Orig_rax (to check against the remembered entry number)
// and Rax (the return value) matter here.
func DecodeExit(pid int) (*SyscallArgs, error) {
	regs, err := GetRegs(pid)
	if err != nil {
		return nil, err
	}
	return &SyscallArgs{
		Num:  int64(regs.Orig_rax),
		Regs: regs,
	}, nil
}

func codeSegmentMode(cs uint64) syscallMode {
	switch cs {
	case cs64:
		return mode64
	case cs32:
		return mode32
	default:
		return modeUnknown
	}
}

// checkSyscallOpcode reads the two bytes immediately before the resumed
// instruction pointer and requires them to be the 64-bit SYSCALL
// instruction (0x0f 0x05). The legacy INT 0x80 opcode is explicitly
// rejected as a forbidden-syscall error (§4.6); anything else is fatal.
func checkSyscallOpcode(pid int, rip uint64) error {
	buf := make([]byte, 2)
	n, err := syscall.PtracePeekData(pid, uintptr(rip-2), buf)
	if err != nil || n != len(buf) {
		return boxerrors.WrapWithTarget(err, boxerrors.ErrInconsistent, "peek-opcode", pid)
	}
	opcode := uint16(buf[0]) | uint16(buf[1])<<8
	switch opcode {
	case opcodeSyscall:
		return nil
	case opcodeInt80:
		return boxerrors.New(boxerrors.ErrForbiddenSyscall, "decode-entry", "INT 0x80 syscall entry is not permitted")
	default:
		return boxerrors.Newf(boxerrors.ErrInconsistent, "decode-entry", "unrecognised instruction before syscall entry (opcode 0x%04x)", opcode)
	}
}

// DenySyscall implements §4.7: overwrite the syscall number with the
// reserved sentinel so that if a subsequent kill races the kernel's
// completion of the call, the call that actually executes is a no-op
// ENOSYS rather than the denied operation.
func DenySyscall(pid int, regs *syscall.PtraceRegs) error {
	regs.Orig_rax = denySyscallNumber
	return SetRegs(pid, regs)
}

// SetSysgood enables PTRACE_O_TRACESYSGOOD so syscall-stop SIGTRAPs carry
// the 0x80 bit, distinguishing them from plain traps (§4.8 initial setup).
func SetSysgood(pid int) error {
	if err := unix.PtraceSetOptions(pid, unix.PTRACE_O_TRACESYSGOOD); err != nil {
		return boxerrors.WrapWithTarget(err, boxerrors.ErrInternal, "ptrace-setoptions", pid)
	}
	return nil
}

// ResumeToSyscall requests the next syscall-entry or syscall-exit stop,
// forwarding sig (0 for none).
func ResumeToSyscall(pid int, sig int) error {
	if err := syscall.PtraceSyscall(pid, sig); err != nil {
		return boxerrors.WrapWithTarget(err, boxerrors.ErrInternal, "ptrace-syscall", pid)
	}
	return nil
}

// KillTraced sends PTRACE_KILL, ignoring ESRCH (already gone).
func KillTraced(pid int) error {
	if err := syscall.PtraceKill(pid); err != nil && err != syscall.ESRCH {
		return fmt.Errorf("ptrace kill %d: %w", pid, err)
	}
	return nil
}
