//go:build linux && amd64

package sandbox

import (
	"fmt"
	"syscall"
	"time"

	boxerrors "box/errors"
	"box/logging"
)

// keeperState is the tick-parity bit from §4.8: a syscall-stop is either an
// entry or an exit, alternating strictly for a given child.
type keeperState int

const (
	stateHandshake keeperState = iota
	stateAtEntry
	stateAtExit
)

// Keeper drives the trace-event loop against one traced child. It owns all
// mutable run state explicitly, replacing the usual globals a C tracer would
// reach for (§9 "Global mutable state").
type Keeper struct {
	pid  int
	cfg  *Config
	tbl  *Table
	mem  MemReader
	wall time.Time

	state       keeperState
	sawHandshake bool
	execSeen    bool
	lastSys     int64
	lastNoReturn bool

	memPeakKB    int64
	syscallCount int64
	killed       bool

	ticksPerSecond int64
}

// NewKeeper builds a keeper for a freshly started (but not yet traced) pid.
func NewKeeper(pid int, cfg *Config, tbl *Table) *Keeper {
	return &Keeper{
		pid:            pid,
		cfg:            cfg,
		tbl:            tbl,
		mem:            NewProcMemReader(pid),
		ticksPerSecond: 100,
	}
}

// waitOutcome is one wait4 result, delivered over a channel so the main loop
// can select between it and the 1 Hz timeout tick without blocking inside a
// signal handler (§9's self-pipe suggestion, expressed as a channel).
type waitOutcome struct {
	ws  syscall.WaitStatus
	ru  syscall.Rusage
	err error
}

// Run drives the keeper loop to completion and returns the finished meta
// report. Every report it returns carries a "status"; a clean run gets "OK"
// (§4.8 "Exited normally" -> emit OK).
func (k *Keeper) Run() (*MetaReport, error) {
	k.wall = time.Now()
	report := NewMetaReport()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	waitCh := make(chan waitOutcome, 1)
	requestWait := func() {
		go func() {
			var ws syscall.WaitStatus
			var ru syscall.Rusage
			_, err := syscall.Wait4(k.pid, &ws, 0, &ru)
			waitCh <- waitOutcome{ws: ws, ru: ru, err: err}
		}()
	}
	requestWait()

	for {
		select {
		case <-ticker.C:
			if done, err := k.checkTimeouts(report); done {
				return report, err
			}

		case out := <-waitCh:
			if out.err == syscall.EINTR {
				requestWait()
				continue
			}
			if out.err != nil {
				return report, k.finishSandboxError(report, boxerrors.Wrap(out.err, boxerrors.ErrInternal, "wait4"))
			}

			done, resumeSig, err := k.handleStop(report, out.ws)
			if done {
				return report, err
			}
			if err := ResumeToSyscall(k.pid, resumeSig); err != nil {
				return report, k.finishSandboxError(report, err)
			}
			requestWait()
		}
	}
}

// handleStop classifies one wait status and reports whether the run is
// finished, along with the signal (if any) to forward on the next resume.
func (k *Keeper) handleStop(report *MetaReport, ws syscall.WaitStatus) (done bool, resumeSig int, err error) {
	switch {
	case ws.Exited():
		return true, 0, k.finishExited(report, ws.ExitStatus())

	case ws.Signaled():
		k.sampleMemPeak()
		return true, 0, k.finishSignaled(report, ws.Signal())

	case ws.Stopped():
		return k.handleStopSignal(report, ws.StopSignal())
	}

	return false, 0, nil
}

func (k *Keeper) handleStopSignal(report *MetaReport, sig syscall.Signal) (done bool, resumeSig int, err error) {
	if !k.sawHandshake {
		k.sawHandshake = true
		if err := SetSysgood(k.pid); err != nil {
			return true, 0, k.finishSandboxError(report, err)
		}
		return false, 0, nil
	}

	switch {
	case sig == syscall.SIGTRAP|0x80:
		return k.handleSyscallStop(report)

	case sig == syscall.SIGTRAP:
		// A plain trap after the handshake is unexpected: the target hit a
		// breakpoint-class trap rather than a syscall boundary.
		k.sampleMemPeak()
		return true, 0, k.finishTarget(report, boxerrors.New(boxerrors.ErrSignaled, "trace-stop", "Breakpoint"))

	case sig == syscall.SIGXCPU || sig == syscall.SIGXFSZ:
		k.sampleMemPeak()
		return true, 0, k.finishTarget(report, boxerrors.Newf(boxerrors.ErrSignaled, "trace-stop", "killed by %s", sig))

	case sig == syscall.SIGSTOP:
		return false, 0, nil

	default:
		k.sampleMemPeak()
		return false, int(sig), nil
	}
}

// handleSyscallStop dispatches one syscall-entry or syscall-exit stop,
// alternating strictly between the two per tick parity.
func (k *Keeper) handleSyscallStop(report *MetaReport) (done bool, resumeSig int, err error) {
	if k.state != stateAtExit {
		return k.handleEntry(report)
	}
	return k.handleExit(report)
}

func (k *Keeper) handleEntry(report *MetaReport) (done bool, resumeSig int, err error) {
	k.state = stateAtExit

	args, derr := DecodeEntry(k.pid)
	if derr != nil {
		return true, 0, k.finishTarget(report, derr)
	}
	k.lastSys = args.Num

	if !k.execSeen {
		if args.Num == sysExecve {
			k.execSeen = true
		}
		k.lastNoReturn = true // pre-exec loader calls are unconditionally trusted
		return false, 0, nil
	}

	action := k.tbl.Effective(int(args.Num), k.cfg.FilterLevel)
	primary := action.Primary(k.cfg.FilterLevel)
	k.lastNoReturn = action.NoReturn(k.cfg.FilterLevel)

	switch primary {
	case ActionAllow:
		k.syscallCount++
		if action.SampleMem(k.cfg.FilterLevel) {
			k.sampleMemPeak()
		}
		return false, 0, nil

	case ActionAllowFilename:
		name, ferr := ValidateFilename(k.mem, uintptr(args.Arg1), k.cfg.FileAccessLevel, k.cfg.PathRules)
		if ferr != nil {
			k.denyEntry(&args.Regs)
			return true, 0, k.finishTargetWithMessage(report, boxerrors.ErrPathDenied, fmt.Sprintf("Forbidden access to file %s", name))
		}
		k.syscallCount++
		return false, 0, nil

	case ActionAllowSelfSignal:
		if k.isSelfDirectedSignal(args) {
			k.syscallCount++
			return false, 0, nil
		}
		k.denyEntry(&args.Regs)
		return true, 0, k.finishTargetWithMessage(report, boxerrors.ErrSyscallDenied, fmt.Sprintf("Forbidden syscall %s", Name(int(args.Num))))

	default:
		k.denyEntry(&args.Regs)
		return true, 0, k.finishTargetWithMessage(report, boxerrors.ErrSyscallDenied, fmt.Sprintf("Forbidden syscall %s", Name(int(args.Num))))
	}
}

func (k *Keeper) handleExit(report *MetaReport) (done bool, resumeSig int, err error) {
	k.state = stateAtEntry

	args, derr := DecodeExit(k.pid)
	if derr != nil {
		return true, 0, k.finishTarget(report, derr)
	}

	if k.lastNoReturn {
		// execve/exit/exit_group/rt_sigreturn, or a pre-exec-loader call:
		// this stop is accepted as the exit without comparing its number to
		// the entry's, and the next syscall-stop is handled as an entry.
		k.lastSys = args.Num
		return false, 0, nil
	}

	if args.Num != k.lastSys && int64(denySyscallNumber) != args.Num {
		return true, 0, k.finishTarget(report, boxerrors.New(boxerrors.ErrInconsistent, "syscall-exit", "Mismatched syscall entry/exit"))
	}

	if k.cfg.Verbosity >= 3 {
		logging.Debug("syscall exit", "syscall", Name(int(args.Num)), "result", int64(args.Regs.Rax))
	}

	return false, 0, nil
}

func (k *Keeper) denyEntry(regs *syscall.PtraceRegs) {
	if err := DenySyscall(k.pid, regs); err != nil {
		logging.Warn("failed to rewrite denied syscall number", "error", err)
	}
}

// isSelfDirectedSignal reports whether a kill/tgkill syscall targets the
// traced process's own pid, the self-kill pattern §7 requires the keeper to
// recognise rather than deny. For both kill(pid, sig) and
// tgkill(tgid, tid, sig) the target pid/tgid is arg1, and the target is
// single-threaded under this sandbox's policy, so tgid and pid coincide.
func (k *Keeper) isSelfDirectedSignal(args *SyscallArgs) bool {
	return int64(int32(args.Arg1)) == int64(k.pid)
}

// checkTimeouts implements §4.8's timeout policy: wall clock is a straight
// delta; CPU time is read from /proc/<pid>/stat, and when an extra timeout
// (-x) is configured the child is only killed once its CPU time exceeds
// both the -t and the -x limit.
func (k *Keeper) checkTimeouts(report *MetaReport) (done bool, err error) {
	if k.cfg.WallTimeout > 0 {
		if time.Since(k.wall) > k.cfg.WallTimeout {
			k.killChild()
			return true, k.finishTarget(report, boxerrors.ErrWallTimeExceeded)
		}
	}

	if k.cfg.CPUTimeout <= 0 {
		return false, nil
	}

	ticks, err2 := readCPUTicks(k.pid)
	if err2 != nil {
		return false, nil // process may already be gone; let wait4 report it
	}
	cpuMs := ticks.Milliseconds(k.ticksPerSecond)
	budgetMs := k.cfg.CPUTimeout.Milliseconds()

	if int64(cpuMs) <= budgetMs {
		return false, nil
	}

	if k.cfg.ExtraTimeout > 0 {
		if int64(cpuMs) <= k.cfg.ExtraTimeout.Milliseconds() {
			return false, nil
		}
	}

	k.killChild()
	return true, k.finishTarget(report, boxerrors.ErrCPUTimeExceeded)
}

// killChild implements the cancellation path of §5: trace-kill, then
// process-group kill, then direct kill, then a blocking reap.
func (k *Keeper) killChild() {
	k.killed = true
	_ = KillTraced(k.pid)
	_ = syscall.Kill(-k.pid, syscall.SIGKILL)
	_ = syscall.Kill(k.pid, syscall.SIGKILL)

	var ws syscall.WaitStatus
	for {
		_, err := syscall.Wait4(k.pid, &ws, 0, nil)
		if err != syscall.EINTR {
			break
		}
	}
}

func (k *Keeper) sampleMemPeak() {
	kb, err := readVmPeakKB(k.pid)
	if err != nil {
		return
	}
	if kb > k.memPeakKB {
		k.memPeakKB = kb
	}
}

func (k *Keeper) elapsedMs() (cpuMs, wallMs int64) {
	wallMs = time.Since(k.wall).Milliseconds()
	ticks, err := readCPUTicks(k.pid)
	if err != nil {
		return 0, wallMs
	}
	return ticks.Milliseconds(k.ticksPerSecond), wallMs
}

func (k *Keeper) writeTimingAndMem(report *MetaReport) {
	cpuMs, wallMs := k.elapsedMs()
	report.Setf("time", "%.3f", float64(cpuMs)/1000)
	report.Setf("time-wall", "%.3f", float64(wallMs)/1000)
	if k.memPeakKB > 0 {
		report.Setf("mem", "%d", k.memPeakKB*1024)
	}
	if k.killed {
		report.Set("killed", "1")
	}
}

func (k *Keeper) finishExited(report *MetaReport, exitStatus int) error {
	k.sampleMemPeak()
	k.writeTimingAndMem(report)

	if exitStatus != 0 {
		report.Setf("exitcode", "%d", exitStatus)
		report.Set("status", boxerrors.ErrRuntimeError.Status())
		report.Set("message", fmt.Sprintf("Exited with error status %d", exitStatus))
		return boxerrors.New(boxerrors.ErrRuntimeError, "exit", "nonzero exit")
	}

	if k.overBudget() {
		report.Set("status", boxerrors.ErrTimedOut.Status())
		report.Set("message", "Time limit exceeded")
		return boxerrors.New(boxerrors.ErrTimedOut, "exit", "over time budget at exit")
	}

	report.Set("status", "OK")
	return nil
}

func (k *Keeper) overBudget() bool {
	cpuMs, wallMs := k.elapsedMs()
	if k.cfg.CPUTimeout > 0 && int64(cpuMs) > k.cfg.CPUTimeout.Milliseconds() {
		return true
	}
	if k.cfg.WallTimeout > 0 && int64(wallMs) > k.cfg.WallTimeout.Milliseconds() {
		return true
	}
	return false
}

func (k *Keeper) finishSignaled(report *MetaReport, sig syscall.Signal) error {
	k.writeTimingAndMem(report)
	report.Setf("exitsig", "%d", int(sig))
	report.Set("status", boxerrors.ErrSignaled.Status())
	detail := fmt.Sprintf("Caught fatal signal %d", int(sig))
	if k.syscallCount == 0 {
		detail += " during startup"
	}
	report.Set("message", detail)
	return boxerrors.Newf(boxerrors.ErrSignaled, "wait", "%s", detail)
}

// finishTarget finalises the run for a sandboxed-program fault that was
// raised as a *SandboxError carrying a target status kind.
func (k *Keeper) finishTarget(report *MetaReport, cause error) error {
	kind, ok := boxerrors.GetKind(cause)
	if !ok {
		kind = boxerrors.ErrInconsistent
	}
	k.killChild()
	k.writeTimingAndMem(report)
	report.Set("status", kind.Status())
	report.Set("message", cause.Error())
	return cause
}

func (k *Keeper) finishTargetWithMessage(report *MetaReport, kind boxerrors.ErrorKind, message string) error {
	k.killChild()
	k.writeTimingAndMem(report)
	report.Set("status", kind.Status())
	report.Set("message", message)
	return boxerrors.New(kind, "policy", message)
}

func (k *Keeper) finishSandboxError(report *MetaReport, cause error) error {
	report.Set("status", "XX")
	report.Set("message", cause.Error())
	return cause
}
