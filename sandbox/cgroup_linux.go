//go:build linux

package sandbox

import (
	"os"
	"path/filepath"
	"strconv"

	"box/logging"
)

// cgroupRoot is where box creates its scratch cgroups, mirroring the
// teacher's convention of a per-runtime subtree under /sys/fs/cgroup.
const cgroupRoot = "/sys/fs/cgroup/box"

// MemoryCgroup is a trimmed adaptation of the teacher's linux/cgroup.go,
// reduced to the single concern this module needs: backing the -m limit
// with a cgroup v2 memory.max as defense in depth alongside RLIMIT_AS
// (§8). CPU/pids/freezer/unified-resource handling from the original is
// dropped because nothing in this sandbox's Config exposes those knobs.
type MemoryCgroup struct {
	path string
}

// NewMemoryCgroup creates a scratch cgroup for pid, named after it so
// concurrent runs never collide. It is a best-effort operation: if cgroup
// v2 is not mounted or the cgroup directory cannot be created, it returns a
// nil cgroup and a nil error, and the caller silently proceeds with
// RLIMIT_AS alone. The memory controller is not checked here; its absence
// shows up as a failed memory.max write in SetMemoryMax.
func NewMemoryCgroup(pid int) (*MemoryCgroup, error) {
	if _, err := os.Stat(cgroupRoot + "/cgroup.controllers"); err != nil {
		if _, err := os.Stat(filepath.Dir(cgroupRoot) + "/cgroup.controllers"); err != nil {
			return nil, nil // cgroup v2 not mounted
		}
		if err := os.MkdirAll(cgroupRoot, 0755); err != nil {
			return nil, nil
		}
	}

	path := filepath.Join(cgroupRoot, strconv.Itoa(pid))
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, nil
	}
	return &MemoryCgroup{path: path}, nil
}

// SetMemoryMax writes memory.max in bytes. A write failure (missing
// controller, read-only cgroupfs) is logged at debug level and otherwise
// ignored, per the best-effort contract in §8.
func (c *MemoryCgroup) SetMemoryMax(limitBytes int64) {
	if c == nil {
		return
	}
	if err := os.WriteFile(filepath.Join(c.path, "memory.max"), []byte(strconv.FormatInt(limitBytes, 10)), 0644); err != nil {
		logging.Debug("cgroup memory.max write failed, continuing with rlimit only", "error", err)
	}
}

// AddProcess moves pid into the cgroup.
func (c *MemoryCgroup) AddProcess(pid int) {
	if c == nil {
		return
	}
	if err := os.WriteFile(filepath.Join(c.path, "cgroup.procs"), []byte(strconv.Itoa(pid)), 0644); err != nil {
		logging.Debug("cgroup.procs write failed, continuing with rlimit only", "error", err)
	}
}

// Destroy removes the scratch cgroup. The driver (Run) defers it right
// after creating the cgroup, so it runs when Run returns.
func (c *MemoryCgroup) Destroy() {
	if c == nil {
		return
	}
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		logging.Debug("cgroup cleanup failed", "path", c.path, "error", err)
	}
}

