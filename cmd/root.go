// Package cmd implements the box command-line interface.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	boxerrors "box/errors"
	"box/logging"
	"box/sandbox"
)

// Version information set at build time.
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
)

var opts struct {
	fileAccess     int
	chdir          string
	passEnviron    bool
	envRules       []string
	filterCount    int
	enableFork     bool
	stdin          string
	stdout         string
	stderr         string
	stackLimitKB   int64
	memoryLimitKB  int64
	metaPath       string
	pathRules      []string
	syscallRules   []string
	cpuTimeout     float64
	wallTimeout    float64
	extraTimeout   float64
	enableTimes    bool
	verbosity      int
	useCgroupMem   bool
}

// rootCmd is box itself: box [options] -- <command> <args...>.
var rootCmd = &cobra.Command{
	Use:   "box [options] -- command [args...]",
	Short: "run a program under a ptrace syscall sandbox",
	Long: `box runs an untrusted program under a syscall whitelist, a
file-access policy, and CPU/wall-clock/memory limits, and reports the
outcome as a structured meta file. It is meant to be invoked once per
test case by a contest-grading evaluator.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.ArbitraryArgs,
	RunE:          runBox,
}

func init() {
	f := rootCmd.Flags()
	f.IntVarP(&opts.fileAccess, "file-access", "a", 1, "file access level 0/1/2/3/4/9")
	f.StringVarP(&opts.chdir, "chdir", "c", "", "change to this directory before exec")
	f.BoolVarP(&opts.passEnviron, "pass-environ", "e", false, "inherit the full parent environment as the base")
	f.StringArrayVarP(&opts.envRules, "env", "E", nil, "environment rule: VAR (inherit), VAR= (unset), VAR=VAL (set)")
	f.CountVarP(&opts.filterCount, "filter", "f", "enable syscall filtering; twice for strict mode (drop liberal calls)")
	f.BoolVarP(&opts.enableFork, "fork", "F", false, "allow fork/vfork/clone/wait4 (children are not traced)")
	f.StringVarP(&opts.stdin, "stdin", "i", "", "redirect standard input from this file")
	f.StringVarP(&opts.stdout, "stdout", "o", "", "redirect standard output to this file")
	f.StringVarP(&opts.stderr, "stderr", "r", "", "redirect standard error to this file")
	f.Int64VarP(&opts.stackLimitKB, "stack", "k", 0, "stack limit in KiB, 0 for infinite")
	f.Int64VarP(&opts.memoryLimitKB, "mem", "m", 0, "address-space limit in KiB, 0 for none")
	f.StringVarP(&opts.metaPath, "meta", "M", "", "meta report file, - for standard output")
	f.StringArrayVarP(&opts.pathRules, "path", "p", nil, "path rule: PATH or PATH=yes|no")
	f.StringArrayVarP(&opts.syscallRules, "syscall", "s", nil, "syscall rule: NAME or NAME=yes|no|file")
	f.Float64VarP(&opts.cpuTimeout, "time", "t", 0, "CPU time limit in seconds, fractional")
	f.Float64VarP(&opts.wallTimeout, "wall-time", "w", 0, "wall clock time limit in seconds, fractional")
	f.Float64VarP(&opts.extraTimeout, "extra-time", "x", 0, "extra CPU timeout in seconds: past -t, kill only once this is also exceeded")
	f.BoolVarP(&opts.enableTimes, "times", "T", false, "allow the times syscall")
	f.CountVarP(&opts.verbosity, "verbose", "v", "increase logging verbosity (repeatable)")
	f.BoolVar(&opts.useCgroupMem, "cgroup-mem", false, "additionally enforce the memory limit via a cgroup v2 memory.max")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func runBox(cmd *cobra.Command, args []string) error {
	setupLogging()

	dash := cmd.ArgsLenAtDash()
	var target []string
	if dash >= 0 {
		target = args[dash:]
	} else {
		target = args
	}
	if len(target) == 0 {
		return fmt.Errorf("no command to run; usage: box [options] -- command [args...]")
	}

	cfg, err := buildConfig(target)
	if err != nil {
		return err
	}

	restore := maybeRawTerminal(cfg)
	defer restore()

	report, runErr := sandbox.Run(cfg)
	if report != nil && opts.metaPath == "" {
		// No -M given: the run still wants a human-readable summary on
		// standard error (§7 "sandbox errors ... then to standard error").
		if status, ok := report.Get("status"); ok && status != "OK" {
			if msg, ok := report.Get("message"); ok {
				fmt.Fprintf(os.Stderr, "%s: %s\n", status, msg)
			}
		}
	}

	if runErr == nil {
		os.Exit(0)
	}

	kind, ok := boxerrors.GetKind(runErr)
	if ok && kind.IsTargetStatus() {
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "box: %v\n", runErr)
	os.Exit(2)
	return nil
}

func buildConfig(target []string) (*sandbox.Config, error) {
	cfg := &sandbox.Config{
		Argv:            target,
		FileAccessLevel: sandbox.FileAccessLevel(opts.fileAccess),
		Chdir:           opts.chdir,
		PassEnviron:     opts.passEnviron,
		FilterLevel:     filterLevel(),
		EnableForkFamily: opts.enableFork,
		EnableTimes:     opts.enableTimes,
		Stdin:           opts.stdin,
		Stdout:          opts.stdout,
		Stderr:          opts.stderr,
		StackLimitKB:    opts.stackLimitKB,
		MemoryLimitKB:   opts.memoryLimitKB,
		MetaPath:        opts.metaPath,
		SyscallRules:    opts.syscallRules,
		CPUTimeout:      durationFromSeconds(opts.cpuTimeout),
		WallTimeout:     durationFromSeconds(opts.wallTimeout),
		ExtraTimeout:    durationFromSeconds(opts.extraTimeout),
		Verbosity:       opts.verbosity,
		UseCgroupMemory: opts.useCgroupMem,
	}

	for _, raw := range opts.envRules {
		rule, err := parseEnvRule(raw)
		if err != nil {
			return nil, err
		}
		cfg.EnvRules = append(cfg.EnvRules, rule)
	}

	for _, raw := range opts.pathRules {
		rule, err := parsePathRule(raw)
		if err != nil {
			return nil, err
		}
		cfg.PathRules = append(cfg.PathRules, rule)
	}

	return cfg, nil
}

func filterLevel() int {
	switch {
	case opts.filterCount >= 2:
		return 2
	case opts.filterCount == 1:
		return 1
	default:
		return 0
	}
}

func durationFromSeconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

func parsePathRule(s string) (sandbox.PathRule, error) {
	if i := strings.IndexByte(s, '='); i >= 0 {
		pattern, mode := s[:i], s[i+1:]
		switch mode {
		case "", "yes":
			return sandbox.PathRule{Pattern: pattern, Action: sandbox.PathAllow}, nil
		case "no":
			return sandbox.PathRule{Pattern: pattern, Action: sandbox.PathDeny}, nil
		default:
			return sandbox.PathRule{}, fmt.Errorf("bad path rule mode %q in %q", mode, s)
		}
	}
	return sandbox.PathRule{Pattern: s, Action: sandbox.PathAllow}, nil
}

func parseEnvRule(s string) (sandbox.EnvRule, error) {
	if i := strings.IndexByte(s, '='); i >= 0 {
		val := s[i+1:]
		return sandbox.EnvRule{Var: s[:i], Val: &val}, nil
	}
	return sandbox.EnvRule{Var: s, Val: nil}, nil
}

// maybeRawTerminal puts standard input in raw mode for the life of the run
// when it is left attached to a real terminal (no -i redirect given), the
// way the teacher's exec path does for an interactive "runc exec" session,
// so a submission that reads a key at a time sees it immediately rather than
// after a line is buffered. It returns a restore func that is always safe
// to call, even when no raw mode was entered.
func maybeRawTerminal(cfg *sandbox.Config) func() {
	if cfg.Stdin != "" || !term.IsTerminal(int(os.Stdin.Fd())) {
		return func() {}
	}
	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return func() {}
	}
	return func() {
		_ = term.Restore(int(os.Stdin.Fd()), oldState)
	}
}

func setupLogging() {
	level := slog.LevelWarn
	switch {
	case opts.verbosity >= 2:
		level = slog.LevelDebug
	case opts.verbosity == 1:
		level = slog.LevelInfo
	}
	logging.SetDefault(logging.NewLogger(logging.Config{Level: level}))
}
