package sandbox

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// CPUTicks holds the raw utime/stime fields from /proc/<pid>/stat.
type CPUTicks struct {
	Utime int64
	Stime int64
}

// Milliseconds converts the tick pair to milliseconds given the kernel's
// clock ticks-per-second (sysconf(_SC_CLK_TCK), almost always 100).
func (c CPUTicks) Milliseconds(ticksPerSecond int64) int64 {
	return (c.Utime + c.Stime) * 1000 / ticksPerSecond
}

// readCPUTicks parses /proc/<pid>/stat for the utime (field 14) and stime
// (field 15) fields. The comm field at position 2 is parenthesised and may
// itself contain spaces and ')' characters, so the parser locates the last
// ')' in the line before splitting the remaining fields by whitespace
// (field 1 is the pid, field 2 is comm, both skipped this way).
func readCPUTicks(pid int) (CPUTicks, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return CPUTicks{}, err
	}
	return parseStatTicks(string(data))
}

func parseStatTicks(line string) (CPUTicks, error) {
	closeParen := strings.LastIndexByte(line, ')')
	if closeParen < 0 {
		return CPUTicks{}, fmt.Errorf("malformed /proc/pid/stat: no comm closing paren")
	}
	rest := strings.TrimSpace(line[closeParen+1:])
	fields := strings.Fields(rest)
	// rest starts at field 3 (state); utime is field 14, stime field 15,
	// i.e. indices 11 and 12 within fields (0-based from field 3).
	const utimeIdx = 14 - 3
	const stimeIdx = 15 - 3
	if len(fields) <= stimeIdx {
		return CPUTicks{}, fmt.Errorf("malformed /proc/pid/stat: too few fields after comm")
	}
	utime, err := strconv.ParseInt(fields[utimeIdx], 10, 64)
	if err != nil {
		return CPUTicks{}, fmt.Errorf("parse utime: %w", err)
	}
	stime, err := strconv.ParseInt(fields[stimeIdx], 10, 64)
	if err != nil {
		return CPUTicks{}, fmt.Errorf("parse stime: %w", err)
	}
	return CPUTicks{Utime: utime, Stime: stime}, nil
}

// readVmPeakKB parses /proc/<pid>/status for the VmPeak line, returning
// kibibytes. It returns 0, nil if the process has no VmPeak line (some
// kernels omit it for processes without a resident mm, e.g. right after
// TRACE_ME before exec).
func readVmPeakKB(pid int) (int64, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "VmPeak:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, fmt.Errorf("malformed VmPeak line %q", line)
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse VmPeak: %w", err)
		}
		return kb, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, nil
}
