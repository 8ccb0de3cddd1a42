//go:build linux && amd64

package sandbox

import (
	"os/exec"
	"runtime"
	"syscall"
	"testing"
)

// startTracedChild launches path under PTRACE_TRACEME directly (bypassing
// the inside-process re-exec bootstrap this package drives in production),
// the same shortcut the tracer examples use to get a tracee under test
// without a full fork/exec dance: cmd.SysProcAttr.Ptrace handles TRACEME and
// the initial SIGSTOP-equivalent trap for us.
func startTracedChild(t *testing.T, path string, args ...string) *exec.Cmd {
	t.Helper()
	runtime.LockOSThread()

	cmd := exec.Command(path, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start traced child (ptrace likely unavailable in this environment): %v", err)
	}
	return cmd
}

func TestKeeperRunAllowsWellBehavedProgram(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("no /bin/true on this system")
	}

	cmd := startTracedChild(t, "true")

	cfg := &Config{FilterLevel: 1, FileAccessLevel: FileAccessBuiltins}
	tbl := NewTable()
	keeper := NewKeeper(cmd.Process.Pid, cfg, tbl)
	// The child already reached its own execve before tracing attached (this
	// test drives ptrace directly rather than through the inside-process
	// bootstrap, which normally arms tracing before the target's execve);
	// mark it seen so the table is consulted from the first observed call.
	keeper.execSeen = true

	report, err := keeper.Run()
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if status, _ := report.Get("status"); status != "OK" {
		msg, _ := report.Get("message")
		t.Errorf("status = %q (message %q), want OK", status, msg)
	}
	if _, ok := report.Get("time"); !ok {
		t.Error("report should carry a time field")
	}
}

func TestKeeperRunDeniesForbiddenSyscall(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("no /bin/true on this system")
	}

	cmd := startTracedChild(t, "true")

	cfg := &Config{FilterLevel: 1, FileAccessLevel: FileAccessBuiltins}
	tbl := NewTable()
	// Deny arch_prctl outright so even a trivial, well-behaved binary trips the
	// forbidden-syscall path the first time it calls something the default
	// table otherwise allows.
	tbl.Set(sysArchPrctl, ActionDeny)
	keeper := NewKeeper(cmd.Process.Pid, cfg, tbl)
	keeper.execSeen = true

	report, err := keeper.Run()
	if err == nil {
		t.Skip("target never reached the denied syscall on this libc, nothing to assert")
	}
	status, _ := report.Get("status")
	if status != "FO" {
		msg, _ := report.Get("message")
		t.Errorf("status = %q (message %q), want FO", status, msg)
	}
}

func TestKeeperRunWallTimeout(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("no /bin/sleep on this system")
	}

	cmd := startTracedChild(t, "sleep", "5")

	cfg := &Config{
		FilterLevel:     1,
		FileAccessLevel: FileAccessBuiltins,
		EnableTimes:     true,
	}
	tbl := NewTable()
	tbl.EnableTimes()
	keeper := NewKeeper(cmd.Process.Pid, cfg, tbl)

	// Drive checkTimeouts directly instead of waiting out a real budget: a
	// fresh Keeper's wall field is the zero Time, so any positive
	// WallTimeout is immediately "exceeded" without needing to wait.
	keeper.cfg.WallTimeout = 1
	report := NewMetaReport()
	done, err := keeper.checkTimeouts(report)
	if !done {
		t.Fatal("checkTimeouts should report done once the wall budget is exceeded")
	}
	if err == nil {
		t.Fatal("checkTimeouts should return the wall-timeout error")
	}
	if status, _ := report.Get("status"); status != "TO" {
		t.Errorf("status = %q, want TO", status)
	}

	cmd.Process.Kill()
	cmd.Wait()
}
