package kernel

import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/fd"
import "github.com/chaoskernel/chaos/proc"
import "github.com/chaoskernel/chaos/stat"

// sys_read and sys_write block the task while a pipe end has nothing to
// transfer; the call is reissued once the other side moves data or closes.
func (k *Kernel_t) sys_read(p *proc.Proc_t, fdn, bufn, sz int) (int, bool) {
	if sz < 0 {
		return int(-defs.EINVAL), false
	}
	f, err := _fd_read(p, fdn)
	if err != 0 {
		return int(err), false
	}
	if sz == 0 {
		return 0, false
	}
	return k._xfer(p, f, false, sz, func() (int, defs.Err_t) {
		return f.Fops.Read(p.Vm.Mkuserbuf(bufn, sz))
	})
}

func (k *Kernel_t) sys_write(p *proc.Proc_t, fdn, bufn, sz int) (int, bool) {
	if sz < 0 {
		return int(-defs.EINVAL), false
	}
	f, err := _fd_write(p, fdn)
	if err != 0 {
		return int(err), false
	}
	if sz == 0 {
		return 0, false
	}
	return k._xfer(p, f, true, sz, func() (int, defs.Err_t) {
		return f.Fops.Write(p.Vm.Mkuserbuf(bufn, sz))
	})
}

// _xfer runs op, first blocking p while f cannot make progress. -EAGAIN
// from a blocking end means another task drained or filled it first, so p
// waits again.
func (k *Kernel_t) _xfer(p *proc.Proc_t, f *fd.Fd_t, write bool, sz int,
	op func() (int, defs.Err_t)) (int, bool) {
	b, canblock := f.Fops.(blocker_i)
	if canblock && b.nonblocking() {
		canblock = false
	}
	for {
		if canblock {
			notready := func() bool {
				return !b.ready(write, sz)
			}
			if k.Wq.Block_if(p, b.waitkey(), notready) {
				return 0, true
			}
		}
		ret, err := op()
		if err == -defs.EAGAIN && canblock {
			continue
		}
		if err != 0 {
			return int(err), false
		}
		return ret, false
	}
}

func sys_close(p *proc.Proc_t, fdn int) int {
	f, ok := p.Fd_del(fdn)
	if !ok {
		return int(-defs.EBADF)
	}
	return int(f.Fops.Close())
}

func sys_fstat(p *proc.Proc_t, fdn, statn int) int {
	f, ok := p.Fd_get(fdn)
	if !ok {
		return int(-defs.EBADF)
	}
	buf := &stat.Stat_t{}
	if err := f.Fops.Fstat(buf); err != 0 {
		return int(err)
	}
	return int(p.Vm.K2user(buf.Bytes(), statn))
}

func sys_dup(p *proc.Proc_t, fdn int) int {
	nfd, err := p.Fd_dup(fdn)
	if err != 0 {
		return int(err)
	}
	return nfd
}

func sys_dup3(p *proc.Proc_t, ofdn, nfdn, flags int) int {
	if defs.Fdopt_t(flags)&^defs.O_CLOEXEC != 0 {
		return int(-defs.EINVAL)
	}
	cloexec := defs.Fdopt_t(flags)&defs.O_CLOEXEC != 0
	rfd, err := p.Fd_dup3(ofdn, nfdn, cloexec)
	if err != 0 {
		return int(err)
	}
	if rfd != nil {
		// errors closing the replaced descriptor are not reported
		rfd.Fops.Close()
	}
	return nfdn
}

func (k *Kernel_t) sys_openat(p *proc.Proc_t, dirfd, pathn, flags, mode int) int {
	path, err := _atpath(p, dirfd, pathn)
	if err != 0 {
		return int(err)
	}
	oflags := defs.Fdopt_t(flags)
	fops, err := k.Fs.Fs_open(path, oflags, mode)
	if err != 0 {
		return int(err)
	}
	nfd, ok := p.Fd_insert(&fd.Fd_t{Fops: fops}, fd.Mkperms(oflags))
	if !ok {
		fops.Close()
		return int(-defs.EMFILE)
	}
	return nfd
}

func (k *Kernel_t) sys_mkdirat(p *proc.Proc_t, dirfd, pathn, mode int) int {
	path, err := _atpath(p, dirfd, pathn)
	if err != 0 {
		return int(err)
	}
	return int(k.Fs.Fs_mkdir(path, mode))
}

func (k *Kernel_t) sys_unlinkat(p *proc.Proc_t, dirfd, pathn, flags int) int {
	if flags&^defs.AT_REMOVEDIR != 0 {
		return int(-defs.EINVAL)
	}
	path, err := _atpath(p, dirfd, pathn)
	if err != 0 {
		return int(err)
	}
	return int(k.Fs.Fs_unlink(path, flags&defs.AT_REMOVEDIR != 0))
}

func (k *Kernel_t) sys_linkat(p *proc.Proc_t, odirfd, oldn, ndirfd, newn,
	flags int) int {
	if flags != 0 {
		return int(-defs.EINVAL)
	}
	opath, err := _atpath(p, odirfd, oldn)
	if err != 0 {
		return int(err)
	}
	npath, err := _atpath(p, ndirfd, newn)
	if err != 0 {
		return int(err)
	}
	return int(k.Fs.Fs_link(opath, npath))
}

func (k *Kernel_t) sys_chdir(p *proc.Proc_t, dirn int) int {
	path, err := _userpath(p, dirn)
	if err != 0 {
		return int(err)
	}
	var st stat.Stat_t
	if err := k.Fs.Fs_stat(path, &st); err != 0 {
		return int(err)
	}
	if !st.Isdir() {
		return int(-defs.ENOTDIR)
	}
	p.Cwd.Set(path)
	return 0
}

// sys_getcwd returns buf, as the linux system call does.
func sys_getcwd(p *proc.Proc_t, bufn, sz int) int {
	cwd := p.Cwd.Get()
	if sz < len(cwd)+1 {
		return int(-defs.ERANGE)
	}
	buf := append([]uint8(cwd), 0)
	if err := p.Vm.K2user(buf, bufn); err != 0 {
		return int(err)
	}
	return bufn
}

func sys_getdents64(p *proc.Proc_t, fdn, bufn, sz int) int {
	if sz < 0 {
		return int(-defs.EINVAL)
	}
	f, ok := p.Fd_get(fdn)
	if !ok {
		return int(-defs.EBADF)
	}
	ret, err := f.Fops.Getdents(p.Vm.Mkuserbuf(bufn, sz))
	if err != 0 {
		return int(err)
	}
	return ret
}

// there is one filesystem; mount and umount2 check their arguments and
// succeed.
func sys_mount(p *proc.Proc_t, srcn, targetn, fstypen, flags, datan int) int {
	for _, sn := range []int{srcn, targetn, fstypen} {
		if _, err := p.Vm.Userstr(sn, PATH_MAX); err != 0 {
			return int(err)
		}
	}
	log.Infof("%v: mount ignored", p)
	return 0
}

func sys_umount2(p *proc.Proc_t, targetn, flags int) int {
	if _, err := p.Vm.Userstr(targetn, PATH_MAX); err != 0 {
		return int(err)
	}
	return 0
}
