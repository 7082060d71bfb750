package defs

type Fdopt_t uint

// RISC-V Linux syscall numbers (asm-generic table)
const (
	SYS_GETCWD       = 17
	SYS_DUP          = 23
	SYS_DUP3         = 24
	SYS_MKDIRAT      = 34
	SYS_UNLINKAT     = 35
	SYS_LINKAT       = 37
	SYS_UMOUNT2      = 39
	SYS_MOUNT        = 40
	SYS_CHDIR        = 49
	SYS_OPENAT       = 56
	SYS_CLOSE        = 57
	SYS_PIPE2        = 59
	SYS_GETDENTS64   = 61
	SYS_READ         = 63
	SYS_WRITE        = 64
	SYS_FSTAT        = 80
	SYS_EXIT         = 93
	SYS_NANOSLEEP    = 101
	SYS_SCHED_YIELD  = 124
	SYS_TIMES        = 153
	SYS_UNAME        = 160
	SYS_GETTIMEOFDAY = 169
	SYS_GETPID       = 172
	SYS_GETPPID      = 173
	SYS_BRK          = 214
	SYS_MUNMAP       = 215
	SYS_CLONE        = 220
	SYS_EXECVE       = 221
	SYS_MMAP         = 222
	SYS_WAIT4        = 260
)

// open flags
const (
	O_RDONLY    Fdopt_t = 0
	O_WRONLY    Fdopt_t = 1
	O_RDWR      Fdopt_t = 2
	O_ACCMODE   Fdopt_t = 3
	O_CREAT     Fdopt_t = 0x40
	O_EXCL      Fdopt_t = 0x80
	O_TRUNC     Fdopt_t = 0x200
	O_APPEND    Fdopt_t = 0x400
	O_NONBLOCK  Fdopt_t = 0x800
	O_DIRECTORY Fdopt_t = 0x10000
	O_CLOEXEC   Fdopt_t = 0x80000
)

const (
	AT_FDCWD     = -100
	AT_REMOVEDIR = 0x200
)

const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)

// mmap
const (
	MAP_SHARED  = 0x1
	MAP_PRIVATE = 0x2
	MAP_FIXED   = 0x10
	MAP_ANON    = 0x20
	MAP_FAILED  = -1
	PROT_NONE   = 0x0
	PROT_READ   = 0x1
	PROT_WRITE  = 0x2
	PROT_EXEC   = 0x4
)

// clone
const (
	CSIGNAL       = 0xff
	SIGCHLD       = 17
	CLONE_VM      = 0x100
	CLONE_FS      = 0x200
	CLONE_FILES   = 0x400
	CLONE_SIGHAND = 0x800
	CLONE_THREAD  = 0x10000
)

// wait4
const (
	WAIT_ANY   = -1
	WNOHANG    = 1
	WUNTRACED  = 2
	WCONTINUED = 8
)

const (
	SIGILL  = 4
	SIGKILL = 9
	SIGSEGV = 11
	SIGSYS  = 31
)

// Mkexitsig returns the wait status bits of a task killed by sig.
func Mkexitsig(sig int) int {
	if sig <= 0 || sig > 64 {
		panic("bad sig")
	}
	return sig & 0x7f
}

// Mkexitcode returns the wait status word of a normal exit.
func Mkexitcode(code int) int {
	return (code & 0xff) << 8
}

// Exitcode undoes Mkexitcode.
func Exitcode(status int) int {
	return (status >> 8) & 0xff
}

const (
	RLIM_INFINITY = ^uint(0)
)
