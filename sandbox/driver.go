//go:build linux

package sandbox

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"syscall"

	boxerrors "box/errors"
	"box/logging"
	"box/utils"
)

// CheckHostCompatible implements the §4.6 sanity check, degenerated to its
// only live case now that this module ships amd64-only builds: refuse to
// start rather than trace under an unsound mode-detection assumption.
func CheckHostCompatible() error {
	if runtime.GOOS != "linux" || runtime.GOARCH != "amd64" {
		return boxerrors.ErrUnsupportedArch
	}
	return nil
}

// Run is the top-level entry point the CLI layer calls: it resolves the
// inside-bootstrap re-exec, starts the traced child, drives the keeper loop,
// and writes the meta report before returning.
func Run(cfg *Config) (*MetaReport, error) {
	if err := CheckHostCompatible(); err != nil {
		return nil, err
	}
	if len(cfg.Argv) == 0 {
		return nil, boxerrors.ErrNoCommand
	}

	tbl, err := cfg.BuildTable()
	if err != nil {
		return nil, err
	}

	insideCfg := InsideConfig{
		Argv:          cfg.Argv,
		Env:           BuildEnvironment(os.Environ(), cfg.EnvRules, cfg.PassEnviron),
		Chdir:         cfg.Chdir,
		Stdin:         cfg.Stdin,
		Stdout:        cfg.Stdout,
		Stderr:        cfg.Stderr,
		StackLimitKB:  cfg.StackLimitKB,
		MemoryLimitKB: cfg.MemoryLimitKB,
		EnableTrace:   cfg.FilterLevel > 0,
	}
	encodedCfg, err := encodeInsideConfig(insideCfg)
	if err != nil {
		return nil, boxerrors.Wrap(err, boxerrors.ErrInvalidConfig, "encode-inside-config")
	}

	pipe, err := utils.NewSyncPipe()
	if err != nil {
		return nil, boxerrors.Wrap(err, boxerrors.ErrInternal, "sync-pipe")
	}

	self, err := os.Executable()
	if err != nil {
		return nil, boxerrors.Wrap(err, boxerrors.ErrInternal, "resolve-self")
	}

	cmd := exec.Command(self, InsideArgvToken)
	cmd.Env = []string{insideConfigEnv + "=" + encodedCfg}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{pipe.ChildFile()}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, boxerrors.Wrap(err, boxerrors.ErrInternal, "start-inside")
	}
	pipe.CloseChild()
	defer pipe.CloseParent()

	var cgroup *MemoryCgroup
	if cfg.UseCgroupMemory && cfg.MemoryLimitKB > 0 {
		cgroup, _ = NewMemoryCgroup(cmd.Process.Pid)
		if cgroup != nil {
			cgroup.AddProcess(cmd.Process.Pid)
			cgroup.SetMemoryMax(cfg.MemoryLimitKB * 1024)
		}
	}
	if cgroup != nil {
		defer cgroup.Destroy()
	}

	if bootErr := readBootstrapError(pipe); bootErr != nil {
		_, _ = cmd.Process.Wait()
		return nil, boxerrors.WrapWithDetail(bootErr, boxerrors.ErrInternal, "inside-bootstrap", bootErr.Error())
	}

	if cfg.Verbosity >= 1 {
		logging.Info("target started", "pid", cmd.Process.Pid, "filter-level", cfg.FilterLevel)
	}

	keeper := NewKeeper(cmd.Process.Pid, cfg, tbl)
	report, runErr := keeper.Run()

	if writeErr := report.WriteFile(cfg.MetaPath); writeErr != nil {
		logging.Warn("failed to write meta report", "error", writeErr)
	}

	return report, runErr
}

// readBootstrapError blocks until the inside process either closes its pipe
// end (successful execve, since the write end is O_CLOEXEC) or writes an
// error message describing why it could not reach execve.
func readBootstrapError(pipe *utils.SyncPipe) error {
	buf := make([]byte, 4096)
	n, err := pipe.ParentFile().Read(buf)
	if n > 0 {
		return fmt.Errorf("%s", string(buf[:n]))
	}
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}
