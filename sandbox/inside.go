//go:build linux

package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"syscall"

	"golang.org/x/sys/unix"

	boxerrors "box/errors"
	"box/utils"
)

// insideConfigEnv carries the JSON-encoded InsideConfig from the driver to
// the re-exec'd inside process.
const insideConfigEnv = "_BOX_INSIDE_CONFIG"

// InsideArgvToken is the hidden argv[1] the re-exec'd process recognises,
// the way the teacher's main.go recognises "init"/"exec-init".
const InsideArgvToken = "__box_inside__"

// InsideConfig is the subset of Config the inside bootstrap needs,
// serialised across the re-exec boundary since environment variables are
// the only channel available before the new process image exists.
type InsideConfig struct {
	Argv          []string
	Env           []string
	Chdir         string
	Stdin         string
	Stdout        string
	Stderr        string
	StackLimitKB  int64
	MemoryLimitKB int64
	EnableTrace   bool
}

// encodeInsideConfig serialises cfg for the environment variable channel.
func encodeInsideConfig(cfg InsideConfig) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode inside config: %w", err)
	}
	return string(data), nil
}

func decodeInsideConfig(s string) (InsideConfig, error) {
	var cfg InsideConfig
	if err := json.Unmarshal([]byte(s), &cfg); err != nil {
		return cfg, fmt.Errorf("decode inside config: %w", err)
	}
	return cfg, nil
}

// RunInside is the entry point of the re-exec'd process, reached when
// os.Args[1] == InsideArgvToken. It performs every step of §4.9 in order
// and never returns on success, since the final step replaces the process
// image via syscall.Exec.
func RunInside() {
	pipe := os.NewFile(3, "box-error-pipe")

	cfg, err := decodeInsideConfig(os.Getenv(insideConfigEnv))
	if err != nil {
		failInside(pipe, err)
	}

	if err := bootstrapInside(cfg); err != nil {
		failInside(pipe, err)
	}
	// unreachable: bootstrapInside never returns on success, because
	// syscall.Exec has already replaced this process image.
}

func failInside(pipe *os.File, err error) {
	if pipe != nil {
		_ = utils.SignalErrorOnFile(pipe, err)
	}
	os.Exit(2)
}

func bootstrapInside(cfg InsideConfig) error {
	if cfg.Chdir != "" {
		if err := os.Chdir(cfg.Chdir); err != nil {
			return boxerrors.Wrap(err, boxerrors.ErrInternal, "chdir")
		}
	}

	if err := redirectStdio(cfg.Stdin, cfg.Stdout, cfg.Stderr); err != nil {
		return err
	}

	if err := unix.Setpgid(0, 0); err != nil {
		return boxerrors.Wrap(err, boxerrors.ErrInternal, "setpgrp")
	}

	if err := applyRlimits(cfg.StackLimitKB, cfg.MemoryLimitKB); err != nil {
		return err
	}

	if cfg.EnableTrace {
		runtime.LockOSThread()
		if err := unix.PtraceTraceme(); err != nil {
			return boxerrors.Wrap(err, boxerrors.ErrInternal, "ptrace-traceme")
		}
		if err := syscall.Kill(os.Getpid(), syscall.SIGSTOP); err != nil {
			return boxerrors.Wrap(err, boxerrors.ErrInternal, "raise-sigstop")
		}
	}

	if len(cfg.Argv) == 0 {
		return boxerrors.ErrNoCommand
	}
	path, err := lookPath(cfg.Argv[0])
	if err != nil {
		return boxerrors.Wrap(err, boxerrors.ErrInternal, "lookup-target")
	}
	if err := execProcess(path, cfg.Argv, cfg.Env); err != nil {
		return boxerrors.Wrap(err, boxerrors.ErrInternal, "execve")
	}
	return nil
}

// redirectStdio closes and reopens fds 0/1/2 per §4.9: stdin read-only,
// stdout/stderr created/truncated at mode 0666, and stderr unconditionally
// duplicated from fd 1 whenever no -r target was given, even if -o was also
// left unset.
func redirectStdio(stdinPath, stdoutPath, stderrPath string) error {
	if stdinPath != "" {
		f, err := os.OpenFile(stdinPath, os.O_RDONLY, 0)
		if err != nil {
			return boxerrors.WrapWithDetail(err, boxerrors.ErrInternal, "redirect-stdin", stdinPath)
		}
		if err := dup2(int(f.Fd()), 0); err != nil {
			return err
		}
	}

	if stdoutPath != "" {
		f, err := os.OpenFile(stdoutPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
		if err != nil {
			return boxerrors.WrapWithDetail(err, boxerrors.ErrInternal, "redirect-stdout", stdoutPath)
		}
		if err := dup2(int(f.Fd()), 1); err != nil {
			return err
		}
	}

	if stderrPath != "" {
		f, err := os.OpenFile(stderrPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
		if err != nil {
			return boxerrors.WrapWithDetail(err, boxerrors.ErrInternal, "redirect-stderr", stderrPath)
		}
		if err := dup2(int(f.Fd()), 2); err != nil {
			return err
		}
	} else {
		if err := dup2(1, 2); err != nil {
			return err
		}
	}

	return nil
}

func dup2(oldfd, newfd int) error {
	if err := syscall.Dup2(oldfd, newfd); err != nil {
		return boxerrors.Wrap(err, boxerrors.ErrInternal, "dup2")
	}
	return nil
}

// applyRlimits sets RLIMIT_AS from memoryLimitKB (0 means no limit),
// RLIMIT_STACK from stackLimitKB (0 means infinite), and RLIMIT_NOFILE to
// 64, per §4.9.
func applyRlimits(stackLimitKB, memoryLimitKB int64) error {
	if memoryLimitKB > 0 {
		bytes := uint64(memoryLimitKB) * 1024
		if err := syscall.Setrlimit(syscall.RLIMIT_AS, &syscall.Rlimit{Cur: bytes, Max: bytes}); err != nil {
			return boxerrors.Wrap(err, boxerrors.ErrInternal, "setrlimit-as")
		}
	}

	stackBytes := uint64(syscall.RLIM_INFINITY)
	if stackLimitKB > 0 {
		stackBytes = uint64(stackLimitKB) * 1024
	}
	if err := syscall.Setrlimit(syscall.RLIMIT_STACK, &syscall.Rlimit{Cur: stackBytes, Max: stackBytes}); err != nil {
		return boxerrors.Wrap(err, boxerrors.ErrInternal, "setrlimit-stack")
	}

	const maxOpenFiles = 64
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &syscall.Rlimit{Cur: maxOpenFiles, Max: maxOpenFiles}); err != nil {
		return boxerrors.Wrap(err, boxerrors.ErrInternal, "setrlimit-nofile")
	}

	return nil
}
