package kernel

import "github.com/chaoskernel/chaos/bpath"
import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/fd"
import "github.com/chaoskernel/chaos/fdops"
import "github.com/chaoskernel/chaos/proc"
import "github.com/chaoskernel/chaos/stat"
import "github.com/chaoskernel/chaos/ustr"

// longest path accepted from user space, including the NUL
const PATH_MAX = 4096

// Syscall runs the system call of the running task p: number in a7,
// arguments in a0 to a5. the result goes to a0 and sepc steps over the
// ecall, except when the task blocked (the call is reissued once the task
// is woken), exited or replaced its image. returns true if p keeps the
// cpu.
func (k *Kernel_t) Syscall(p *proc.Proc_t) bool {
	tf := &p.Tf
	sysno := int(tf[defs.TF_A7])
	a0 := int(tf[defs.TF_A0])
	a1 := int(tf[defs.TF_A1])
	a2 := int(tf[defs.TF_A2])
	a3 := int(tf[defs.TF_A3])
	a4 := int(tf[defs.TF_A4])

	var ret int
	var blocked, gone, yield, noret bool
	switch sysno {
	case defs.SYS_GETCWD:
		ret = sys_getcwd(p, a0, a1)
	case defs.SYS_DUP:
		ret = sys_dup(p, a0)
	case defs.SYS_DUP3:
		ret = sys_dup3(p, a0, a1, a2)
	case defs.SYS_MKDIRAT:
		ret = k.sys_mkdirat(p, a0, a1, a2)
	case defs.SYS_UNLINKAT:
		ret = k.sys_unlinkat(p, a0, a1, a2)
	case defs.SYS_LINKAT:
		ret = k.sys_linkat(p, a0, a1, a2, a3, a4)
	case defs.SYS_UMOUNT2:
		ret = sys_umount2(p, a0, a1)
	case defs.SYS_MOUNT:
		ret = sys_mount(p, a0, a1, a2, a3, a4)
	case defs.SYS_CHDIR:
		ret = k.sys_chdir(p, a0)
	case defs.SYS_OPENAT:
		ret = k.sys_openat(p, a0, a1, a2, a3)
	case defs.SYS_CLOSE:
		ret = sys_close(p, a0)
	case defs.SYS_PIPE2:
		ret = k.sys_pipe2(p, a0, a1)
	case defs.SYS_GETDENTS64:
		ret = sys_getdents64(p, a0, a1, a2)
	case defs.SYS_READ:
		ret, blocked = k.sys_read(p, a0, a1, a2)
	case defs.SYS_WRITE:
		ret, blocked = k.sys_write(p, a0, a1, a2)
	case defs.SYS_FSTAT:
		ret = sys_fstat(p, a0, a1)
	case defs.SYS_EXIT:
		k.sys_exit(p, a0)
		gone = true
	case defs.SYS_NANOSLEEP:
		ret, blocked = k.sys_nanosleep(p, a0, a1)
	case defs.SYS_SCHED_YIELD:
		yield = true
	case defs.SYS_TIMES:
		ret = k.sys_times(p, a0)
	case defs.SYS_UNAME:
		ret = k.sys_uname(p, a0)
	case defs.SYS_GETTIMEOFDAY:
		ret = k.sys_gettimeofday(p, a0)
	case defs.SYS_GETPID:
		ret = int(p.Pid)
	case defs.SYS_GETPPID:
		ret = int(p.Ppid(k.Pt))
	case defs.SYS_BRK:
		ret = sys_brk(p, a0)
	case defs.SYS_MUNMAP:
		ret = sys_munmap(p, a0, a1)
	case defs.SYS_CLONE:
		ret = k.sys_clone(p, a0, a1)
	case defs.SYS_EXECVE:
		ret = k.sys_execve(p, a0, a1, a2)
		// the new image starts at its entry with a0 = argc
		noret = ret == 0
	case defs.SYS_MMAP:
		ret = sys_mmap(p, a0, a1, a2, a3, a4, int(tf[defs.TF_A5]))
	case defs.SYS_WAIT4:
		ret, blocked = k.sys_wait4(p, a0, a1, a2, a3)
	default:
		log.Warningf("%v: unknown syscall %v", p, sysno)
		ret = int(-defs.ENOSYS)
	}
	log.Debugf("%v: syscall %v = %v", p, sysno, ret)

	if gone || blocked {
		return false
	}
	if !noret {
		tf[defs.TF_A0] = uintptr(ret)
		tf[defs.TF_SEPC] += 4
	}
	if yield {
		k.Sched.Yield_now(p)
		return false
	}
	return true
}

func _fd_read(p *proc.Proc_t, fdn int) (*fd.Fd_t, defs.Err_t) {
	f, ok := p.Fd_get(fdn)
	if !ok {
		return nil, -defs.EBADF
	}
	if f.Perms&fd.FD_READ == 0 {
		return nil, -defs.EBADF
	}
	return f, 0
}

func _fd_write(p *proc.Proc_t, fdn int) (*fd.Fd_t, defs.Err_t) {
	f, ok := p.Fd_get(fdn)
	if !ok {
		return nil, -defs.EBADF
	}
	if f.Perms&fd.FD_WRITE == 0 {
		return nil, -defs.EBADF
	}
	return f, 0
}

func badpath(path ustr.Ustr) defs.Err_t {
	if len(path) == 0 {
		return -defs.ENOENT
	}
	return 0
}

// _userpath reads a path from user space and resolves it against the
// working directory.
func _userpath(p *proc.Proc_t, pathn int) (ustr.Ustr, defs.Err_t) {
	path, err := p.Vm.Userstr(pathn, PATH_MAX)
	if err != 0 {
		return nil, err
	}
	if err := badpath(path); err != 0 {
		return nil, err
	}
	return p.Cwd.Canonicalpath(path), 0
}

// _atpath resolves the path at pathn for an *at call: relative paths are
// relative to the directory open at dirfd, or to the working directory
// for AT_FDCWD.
func _atpath(p *proc.Proc_t, dirfd, pathn int) (ustr.Ustr, defs.Err_t) {
	path, err := p.Vm.Userstr(pathn, PATH_MAX)
	if err != 0 {
		return nil, err
	}
	if err := badpath(path); err != 0 {
		return nil, err
	}
	if path.IsAbsolute() {
		return bpath.Canonicalize(path), 0
	}
	if dirfd == defs.AT_FDCWD {
		return p.Cwd.Canonicalpath(path), 0
	}
	f, ok := p.Fd_get(dirfd)
	if !ok {
		return nil, -defs.EBADF
	}
	pf, ok := f.Fops.(fdops.Pather_i)
	if !ok {
		return nil, -defs.ENOTDIR
	}
	var st stat.Stat_t
	if err := f.Fops.Fstat(&st); err != 0 {
		return nil, err
	}
	if !st.Isdir() {
		return nil, -defs.ENOTDIR
	}
	return bpath.Join(pf.Path(), path), 0
}
