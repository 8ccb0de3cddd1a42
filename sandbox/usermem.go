//go:build linux

package sandbox

import (
	"bytes"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// pageSize is assumed to be the standard 4 KiB x86_64 page; reads are
// chunked so a single syscall never spans a page boundary, matching §4.4
// step 3's "paged reader" requirement and avoiding a cross-page fault on
// an unmapped neighbouring page when the string sits at the very end of
// its last mapped page.
const pageSize = 4096

// ProcMemReader reads a traced process's address space via
// /proc/<pid>/mem, falling back from process_vm_readv only when the fast
// path is unavailable (older kernels, restricted ptrace_scope).
type ProcMemReader struct {
	pid int
}

// NewProcMemReader returns a reader bound to the given traced pid. The
// process must be stopped (a ptrace stop) for the duration of any read.
func NewProcMemReader(pid int) *ProcMemReader {
	return &ProcMemReader{pid: pid}
}

// ReadString reads a NUL-terminated string starting at addr, reading at
// most maxLen bytes and never crossing a page boundary within a single
// underlying read.
func (r *ProcMemReader) ReadString(addr uintptr, maxLen int) (string, error) {
	var out bytes.Buffer
	remaining := maxLen
	cur := addr

	for remaining > 0 {
		chunk := int(pageSize - (cur % pageSize))
		if chunk > remaining {
			chunk = remaining
		}
		buf := make([]byte, chunk)
		n, err := r.readAt(cur, buf)
		if err != nil {
			return out.String(), fmt.Errorf("read target memory at 0x%x: %w", cur, err)
		}
		if n == 0 {
			break
		}
		if i := bytes.IndexByte(buf[:n], 0); i >= 0 {
			out.Write(buf[:i])
			return out.String(), nil
		}
		out.Write(buf[:n])
		cur += uintptr(n)
		remaining -= n
	}
	return out.String(), nil
}

// readAt tries process_vm_readv first (a single syscall, no fd churn),
// falling back to opening /proc/<pid>/mem and seeking.
func (r *ProcMemReader) readAt(addr uintptr, buf []byte) (int, error) {
	local := []unix.Iovec{{Base: &buf[0], Len: uint64(len(buf))}}
	remote := []unix.RemoteIovec{{Base: addr, Len: len(buf)}}
	n, err := unix.ProcessVMReadv(r.pid, local, remote, 0)
	if err == nil {
		return n, nil
	}
	return r.readAtProcMem(addr, buf)
}

func (r *ProcMemReader) readAtProcMem(addr uintptr, buf []byte) (int, error) {
	f, err := os.OpenFile(fmt.Sprintf("/proc/%d/mem", r.pid), os.O_RDONLY, 0)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.ReadAt(buf, int64(addr))
}
