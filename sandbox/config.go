package sandbox

import "time"

// Config bundles everything the CLI layer gathers from flags before any
// process is forked. It is built once and handed to the driver (Run) as a
// pointer, mirroring the way the teacher's container.CreateOptions
// and ExecOptions bundle per-operation options.
type Config struct {
	// Argv is the target program and its arguments, everything after "--".
	Argv []string

	// FileAccessLevel is the -a value.
	FileAccessLevel FileAccessLevel
	// Chdir is the -c directory, empty to skip.
	Chdir string
	// PassEnviron is -e: inherit the full parent environment as the base.
	PassEnviron bool
	// EnvRules are the -E rules, in declaration order.
	EnvRules []EnvRule
	// FilterLevel is 0 (no filtering), 1 (permissive, -f once), or 2
	// (strict, -f twice).
	FilterLevel int
	// EnableForkFamily is -F.
	EnableForkFamily bool
	// EnableTimes is -T.
	EnableTimes bool
	// Stdin/Stdout/Stderr are the -i/-o/-r redirect targets, empty to
	// leave the corresponding fd as inherited.
	Stdin, Stdout, Stderr string
	// StackLimitKB is -k; 0 means infinite.
	StackLimitKB int64
	// MemoryLimitKB is -m; 0 means no limit imposed.
	MemoryLimitKB int64
	// MetaPath is -M; "-" means standard output, "" means no report.
	MetaPath string
	// PathRules are the -p rules, in declaration order.
	PathRules []PathRule
	// SyscallRules are raw -s flag values ("name", "name=yes", "name=no",
	// "name=file"), applied to the default table in order.
	SyscallRules []string
	// CPUTimeout, WallTimeout, ExtraTimeout are -t/-w/-x, zero meaning
	// disabled.
	CPUTimeout, WallTimeout, ExtraTimeout time.Duration
	// Verbosity is the -v repeat count, 0-3.
	Verbosity int

	// UseCgroupMemory optionally backs MemoryLimitKB with a cgroup v2
	// memory.max in addition to RLIMIT_AS, best-effort (§8 of the expanded
	// design). Off by default: RLIMIT_AS alone is what the spec mandates.
	UseCgroupMemory bool
}

// BuildTable materialises a Table from the config's syscall and fork/times
// flags, applied in CLI order on top of the architecture defaults.
func (c *Config) BuildTable() (*Table, error) {
	t := NewTable()
	for _, rule := range c.SyscallRules {
		name, mode := splitSyscallRule(rule)
		if err := t.ApplyRule(name, mode); err != nil {
			return nil, err
		}
	}
	if c.EnableForkFamily {
		t.EnableFork()
	}
	if c.EnableTimes {
		t.EnableTimes()
	}
	return t, nil
}

func splitSyscallRule(rule string) (name, mode string) {
	for i := 0; i < len(rule); i++ {
		if rule[i] == '=' {
			return rule[:i], rule[i+1:]
		}
	}
	return rule, ""
}
