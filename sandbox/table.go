package sandbox

import "fmt"

// Table is the syscall-number-to-action lookup described in spec §4.1. It
// is mutated only during configuration and read-only for the life of a run.
type Table struct {
	actions []SyscallAction
}

// NewTable returns a table preloaded with the architecture's default
// actions.
func NewTable() *Table {
	return &Table{actions: newDefaultTable()}
}

// Effective returns the action for syscall number num at the given filter
// level (1 permissive, 2 strict).
func (t *Table) Effective(num int, filterLevel int) SyscallAction {
	return Effective(t.actions, num, filterLevel)
}

// Set installs an explicit action for a syscall number, growing the table
// if num falls in the CLI-override headroom beyond the named syscalls.
func (t *Table) Set(num int, action SyscallAction) {
	if num >= len(t.actions) {
		grown := make([]SyscallAction, num+1)
		copy(grown, t.actions)
		t.actions = grown
	}
	t.actions[num] = action
}

// Lookup resolves a syscall by name or by "#N" numeric form, as accepted by
// the -s flag.
func Lookup(name string) (int, error) {
	if len(name) > 1 && name[0] == '#' {
		var num int
		if _, err := fmt.Sscanf(name[1:], "%d", &num); err != nil {
			return 0, fmt.Errorf("bad syscall number %q: %w", name, err)
		}
		return num, nil
	}
	num, ok := syscallNumberByName[name]
	if !ok {
		return 0, fmt.Errorf("unknown syscall %q", name)
	}
	return num, nil
}

// Name returns the syscall name for a number, or "#N" if it is not in the
// named table (e.g. a numeric CLI override).
func Name(num int) string {
	if name, ok := syscallNameByNumber[num]; ok {
		return name
	}
	return fmt.Sprintf("#%d", num)
}

// ApplyRule sets the action for a syscall rule given in -s syntax: a bare
// name enables it (ActionAllow), "=yes" enables it, "=no" denies it
// explicitly, and "=file" marks it ActionAllowFilename.
func (t *Table) ApplyRule(name, mode string) error {
	num, err := Lookup(name)
	if err != nil {
		return err
	}
	switch mode {
	case "", "yes":
		t.Set(num, ActionAllow)
	case "no":
		t.Set(num, ActionDeny)
	case "file":
		t.Set(num, ActionAllowFilename)
	default:
		return fmt.Errorf("bad syscall rule mode %q for %q", mode, name)
	}
	return nil
}

// EnableFork sets fork, vfork, clone, and wait4 to ActionAllow, per the -F
// flag (§7). Children created this way are never themselves traced.
func (t *Table) EnableFork() {
	t.Set(sysFork, ActionAllow)
	t.Set(sysVfork, ActionAllow)
	t.Set(sysClone, ActionAllow)
	t.Set(sysWait4, ActionAllow)
}

// EnableTimes sets times to ActionAllow, per the -T flag (§7). Without it,
// times falls back to ActionDefault (deny).
func (t *Table) EnableTimes() {
	t.Set(sysTimes, ActionAllow)
}
