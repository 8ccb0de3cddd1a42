//go:build linux

package sandbox

import (
	"os/exec"
	"syscall"
)

// lookPath resolves the target program against PATH when it has no slash,
// the same resolution syscall.Exec itself would need; box needs the
// resolved path up front so error messages and file-access checks see the
// real binary location rather than a bare name.
func lookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// execProcess replaces the current process image, the final and
// irreversible step of the inside bootstrap. It only returns on failure.
func execProcess(path string, args []string, env []string) error {
	return syscall.Exec(path, args, env)
}
