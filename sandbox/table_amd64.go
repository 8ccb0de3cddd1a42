//go:build amd64

package sandbox

// x86_64 syscall numbers used to build the default table. Seeded from the
// name→number map the teacher's seccomp filter builder carried
// (linux/seccomp.go's syscallMap) and cross-checked against box.c's own
// syscall_action[] table for which names get which default action.
const (
	sysRead             = 0
	sysWrite            = 1
	sysOpen             = 2
	sysClose            = 3
	sysStat             = 4
	sysFstat            = 5
	sysLstat            = 6
	sysPoll             = 7
	sysLseek            = 8
	sysMmap             = 9
	sysMprotect         = 10
	sysMunmap           = 11
	sysBrk              = 12
	sysRtSigaction      = 13
	sysRtSigprocmask    = 14
	sysRtSigreturn      = 15
	sysIoctl            = 16
	sysPread64          = 17
	sysPwrite64         = 18
	sysReadv            = 19
	sysWritev           = 20
	sysAccess           = 21
	sysPipe             = 22
	sysSelect           = 23
	sysMremap           = 25
	sysMsync            = 26
	sysMincore          = 27
	sysMadvise          = 28
	sysDup              = 32
	sysDup2             = 33
	sysPause            = 34
	sysNanosleep        = 35
	sysGetitimer        = 36
	sysAlarm            = 37
	sysSetitimer        = 38
	sysGetpid           = 39
	sysSocket           = 41
	sysConnect          = 42
	sysSendto           = 44
	sysRecvfrom         = 45
	sysFork             = 57
	sysVfork            = 58
	sysExecve           = 59
	sysExit             = 60
	sysWait4            = 61
	sysKill             = 62
	sysUname            = 63
	sysFcntl            = 72
	sysFsync            = 74
	sysTruncate         = 76
	sysGetcwd           = 79
	sysRename           = 82
	sysMkdir            = 83
	sysRmdir            = 84
	sysCreat            = 85
	sysUnlink           = 87
	sysReadlink         = 89
	sysChmod            = 90
	sysChown            = 92
	sysUmask            = 95
	sysGettimeofday     = 96
	sysGetrlimit        = 97
	sysGetrusage        = 98
	sysSysinfo          = 99
	sysTimes            = 100
	sysGetuid           = 102
	sysSyslog           = 103
	sysGetgid           = 104
	sysSetuid           = 105
	sysSetgid           = 106
	sysGeteuid          = 107
	sysGetegid          = 108
	sysSetpgid          = 109
	sysGetppid          = 110
	sysGetpgrp          = 111
	sysSetsid           = 112
	sysRtSigpending     = 127
	sysRtSigtimedwait   = 128
	sysRtSigsuspend     = 130
	sysSigaltstack      = 131
	sysPersonality      = 135
	sysStatfs           = 137
	sysFstatfs          = 138
	sysGettid           = 186
	sysTime             = 201
	sysFutex            = 202
	sysSchedGetaffinity = 204
	sysSetThreadArea    = 205
	sysClockGettime     = 228
	sysClockGetres      = 229
	sysClockNanosleep   = 230
	sysExitGroup        = 231
	sysTgkill           = 234
	sysMbind            = 237
	sysOpenat           = 257
	sysMkdirat          = 258
	sysUnlinkat         = 263
	sysFchmodat         = 268
	sysFaccessat        = 269
	sysSetTidAddress    = 218
	sysArchPrctl        = 158
	sysClone            = 56
	sysPrlimit64        = 302
	sysGetrandom        = 318
	sysMemfdCreate      = 319
	sysRseq             = 334
)

// numAmd64Syscalls is one past the highest syscall number named above
// (rseq, 334).
const numAmd64Syscalls = 335

// syscallNumberByName is the x86_64 name→number map used to resolve -s
// rules and the table dump, seeded from the teacher's seccomp.go table.
var syscallNumberByName = map[string]int{
	"read": sysRead, "write": sysWrite, "open": sysOpen, "close": sysClose,
	"stat": sysStat, "fstat": sysFstat, "lstat": sysLstat, "poll": sysPoll,
	"lseek": sysLseek, "mmap": sysMmap, "mprotect": sysMprotect, "munmap": sysMunmap,
	"brk": sysBrk, "rt_sigaction": sysRtSigaction, "rt_sigprocmask": sysRtSigprocmask,
	"rt_sigreturn": sysRtSigreturn, "ioctl": sysIoctl, "pread64": sysPread64,
	"pwrite64": sysPwrite64, "readv": sysReadv, "writev": sysWritev, "access": sysAccess,
	"pipe": sysPipe, "select": sysSelect, "mremap": sysMremap, "msync": sysMsync,
	"mincore": sysMincore, "madvise": sysMadvise, "dup": sysDup, "dup2": sysDup2,
	"pause": sysPause, "nanosleep": sysNanosleep, "getitimer": sysGetitimer,
	"alarm": sysAlarm, "setitimer": sysSetitimer, "getpid": sysGetpid,
	"socket": sysSocket, "connect": sysConnect, "sendto": sysSendto, "recvfrom": sysRecvfrom,
	"fork": sysFork, "vfork": sysVfork, "execve": sysExecve, "exit": sysExit,
	"wait4": sysWait4, "kill": sysKill, "uname": sysUname, "fcntl": sysFcntl,
	"fsync": sysFsync, "truncate": sysTruncate, "getcwd": sysGetcwd, "rename": sysRename,
	"mkdir": sysMkdir, "rmdir": sysRmdir, "creat": sysCreat,
	"unlink": sysUnlink, "readlink": sysReadlink, "chmod": sysChmod,
	"chown": sysChown, "umask": sysUmask, "gettimeofday": sysGettimeofday,
	"getrlimit": sysGetrlimit, "getrusage": sysGetrusage, "sysinfo": sysSysinfo,
	"times": sysTimes, "getuid": sysGetuid, "syslog": sysSyslog, "getgid": sysGetgid,
	"setuid": sysSetuid, "setgid": sysSetgid, "geteuid": sysGeteuid, "getegid": sysGetegid,
	"setpgid": sysSetpgid, "getppid": sysGetppid, "getpgrp": sysGetpgrp, "setsid": sysSetsid,
	"rt_sigpending": sysRtSigpending, "rt_sigtimedwait": sysRtSigtimedwait,
	"rt_sigsuspend": sysRtSigsuspend, "sigaltstack": sysSigaltstack,
	"personality": sysPersonality, "statfs": sysStatfs, "fstatfs": sysFstatfs,
	"gettid": sysGettid, "time": sysTime, "futex": sysFutex,
	"sched_getaffinity": sysSchedGetaffinity, "set_thread_area": sysSetThreadArea,
	"clock_gettime": sysClockGettime, "clock_getres": sysClockGetres,
	"clock_nanosleep": sysClockNanosleep, "exit_group": sysExitGroup, "tgkill": sysTgkill,
	"mbind": sysMbind, "openat": sysOpenat, "mkdirat": sysMkdirat, "unlinkat": sysUnlinkat,
	"fchmodat": sysFchmodat, "faccessat": sysFaccessat, "set_tid_address": sysSetTidAddress,
	"arch_prctl": sysArchPrctl, "clone": sysClone, "prlimit64": sysPrlimit64,
	"getrandom": sysGetrandom, "memfd_create": sysMemfdCreate, "rseq": sysRseq,
}

// syscallNameByNumber is the inverse of syscallNumberByName, built once.
var syscallNameByNumber = invertSyscallNames(syscallNumberByName)

func invertSyscallNames(m map[string]int) map[int]string {
	out := make(map[int]string, len(m))
	for name, num := range m {
		out[num] = name
	}
	return out
}

// defaultTableSize is NUM_SYSCALLS + 64, preserving box.c's NUM_ACTIONS
// headroom for numeric CLI overrides like "-s '#423=yes'".
const defaultTableSize = numAmd64Syscalls + 64

// newDefaultTable builds the x86_64 default action table: the read/write/
// memory/time/signal syscalls a libc-linked static or dynamic binary needs
// to reach main() and call exit are allowed outright or liberally; anything
// that grants new capabilities (process control, raw sockets, module
// loading) is left at ActionDefault (deny); chmod/chown are filename-gated.
func newDefaultTable() []SyscallAction {
	t := make([]SyscallAction, defaultTableSize)

	allow := func(nums ...int) {
		for _, n := range nums {
			t[n] = ActionAllow
		}
	}
	allowNoReturn := func(nums ...int) {
		for _, n := range nums {
			t[n] = ActionAllow | FlagNoReturn
		}
	}
	allowFilename := func(nums ...int) {
		for _, n := range nums {
			t[n] = ActionAllowFilename
		}
	}
	allowSample := func(nums ...int) {
		for _, n := range nums {
			t[n] = ActionAllow | FlagSampleMem
		}
	}
	liberal := func(nums ...int) {
		for _, n := range nums {
			t[n] = ActionAllow | FlagLiberal
		}
	}

	allow(sysRead, sysWrite, sysClose, sysFstat, sysLseek, sysMmap,
		sysMunmap, sysBrk, sysPread64, sysPwrite64, sysReadv, sysWritev,
		sysMsync, sysMincore, sysMadvise, sysDup, sysDup2,
		sysGetpid, sysUname, sysFcntl, sysIoctl,
		sysFsync, sysGetuid, sysGetgid,
		sysGeteuid, sysGetegid, sysGetppid, sysGetpgrp, sysSigaltstack,
		sysStatfs, sysFstatfs, sysGettid, sysFutex, sysSchedGetaffinity,
		sysSetThreadArea, sysClockGettime, sysClockGetres, sysClockNanosleep,
		sysSetTidAddress, sysArchPrctl, sysPrlimit64, sysGetrandom, sysRseq)

	allowFilename(sysOpen, sysStat, sysLstat, sysAccess, sysReadlink,
		sysCreat, sysTruncate, sysUnlink,
		sysChmod, sysChown, sysOpenat, sysFaccessat)

	allowSample(sysBrk, sysMmap)

	allowNoReturn(sysExecve, sysExit, sysExitGroup)

	// exit/exit_group also sample VmPeak at entry, while the address space
	// still exists.
	t[sysExit] |= FlagSampleMem
	t[sysExitGroup] |= FlagSampleMem

	liberal(sysNanosleep, sysTime, sysGettimeofday, sysPause,
		sysPipe, sysSelect, sysUmask, sysPoll, sysMprotect,
		sysRtSigaction, sysRtSigprocmask, sysGetitimer,
		sysAlarm, sysSetitimer, sysGetcwd, sysGetrlimit, sysGetrusage,
		sysRtSigpending, sysRtSigtimedwait, sysRtSigsuspend)

	// mremap is both liberal-gated and memory-sampled: it can resize/move a
	// mapping just like mmap, but drops to deny at strict filter level 2.
	t[sysMremap] = ActionAllow | FlagLiberal | FlagSampleMem

	// rt_sigreturn is liberal like the other signal-trampoline calls, but
	// also must never be held to strict exit-stop bookkeeping: its whole
	// point is to not return normally to the instruction after the call.
	t[sysRtSigreturn] = ActionAllow | FlagLiberal | FlagNoReturn

	// kill/tgkill are conditionally allowed by the keeper only for
	// self-directed signals (§4.8, self-kill detection); arg1 is checked
	// against the traced pid rather than treated as a filename.
	t[sysKill] = ActionAllowSelfSignal
	t[sysTgkill] = ActionAllowSelfSignal

	// fork/vfork/clone/wait4 stay at ActionDefault (deny) unless -F is
	// passed, which sets exactly these four to ActionAllow (§7).
	// sysinfo, syslog, setuid, setgid, setpgid, setsid, personality, mbind,
	// socket/connect/sendto/recvfrom, mkdir/rmdir/rename/mkdirat/
	// unlinkat/fchmodat, memfd_create stay at ActionDefault: they grant
	// persistence, privilege changes, or information disclosure beyond a
	// contest submission's needs.

	return t
}
