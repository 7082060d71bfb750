package kernel

import "github.com/chaoskernel/chaos/accnt"
import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/mem"
import "github.com/chaoskernel/chaos/proc"
import "github.com/chaoskernel/chaos/stat"
import "github.com/chaoskernel/chaos/ustr"
import "github.com/chaoskernel/chaos/util"
import "github.com/chaoskernel/chaos/vm"

// largest executable execve reads
const IMAGEMAX = 16 << 20

func (k *Kernel_t) sys_exit(p *proc.Proc_t, code int) {
	k.Pt.Exit(p, defs.Mkexitcode(code))
}

// sys_clone only forks: the child gets a copy of the address space and
// returns 0 from the same ecall, on stack if stack is not 0.
func (k *Kernel_t) sys_clone(p *proc.Proc_t, flags, stack int) int {
	if flags&(defs.CLONE_THREAD|defs.CLONE_VM|defs.CLONE_SIGHAND) != 0 {
		return int(-defs.EINVAL)
	}
	if stack&0xf != 0 {
		return int(-defs.EINVAL)
	}
	child, err := k.Pt.Fork(p, uintptr(stack))
	if err != 0 {
		return int(err)
	}
	child.Tf[defs.TF_SEPC] += 4
	k.Sched.Enqueue(child)
	return int(child.Pid)
}

// _readimage reads a whole executable.
func (k *Kernel_t) _readimage(path ustr.Ustr) ([]uint8, defs.Err_t) {
	f, err := k.Fs.Fs_open(path, defs.O_RDONLY, 0)
	if err != 0 {
		return nil, err
	}
	defer f.Close()
	var st stat.Stat_t
	if err := f.Fstat(&st); err != 0 {
		return nil, err
	}
	if st.Isdir() {
		return nil, -defs.EACCES
	}
	sz := int(st.Size())
	if sz > IMAGEMAX {
		return nil, -defs.ENOEXEC
	}
	image := make([]uint8, sz)
	n, err := f.Pread(vm.Mkfakebuf(image), 0)
	if err != 0 {
		return nil, err
	}
	if n != sz {
		return nil, -defs.EIO
	}
	return image, 0
}

func (k *Kernel_t) sys_execve(p *proc.Proc_t, pathn, argn, envn int) int {
	path, err := _userpath(p, pathn)
	if err != 0 {
		return int(err)
	}
	args, err := p.Userargs(argn)
	if err != 0 {
		return int(err)
	}
	// the environment is checked but not passed on
	if _, err := p.Userargs(envn); err != 0 {
		return int(err)
	}
	image, err := k._readimage(path)
	if err != 0 {
		return int(err)
	}
	return int(k.Pt.Exec(p, path, image, args))
}

// _uwritable checks that [va, va+n) is mapped writable.
func _uwritable(p *proc.Proc_t, va, n int) defs.Err_t {
	for a := util.Rounddown(va, mem.PGSIZE); a < va+n; a += mem.PGSIZE {
		if _, _, err := p.Vm.Translate(a, true); err != 0 {
			return err
		}
	}
	return 0
}

// sys_wait4 blocks until a matching child exits. the user buffers are
// checked before the child is reaped so that a bad pointer does not lose
// the child.
func (k *Kernel_t) sys_wait4(p *proc.Proc_t, pid, statusn, options,
	rusagen int) (int, bool) {
	if options&^(defs.WNOHANG|defs.WUNTRACED|defs.WCONTINUED) != 0 {
		return int(-defs.EINVAL), false
	}
	if statusn != 0 {
		if err := _uwritable(p, statusn, 4); err != 0 {
			return int(err), false
		}
	}
	if rusagen != 0 {
		if err := _uwritable(p, rusagen, accnt.RUSAGESZ); err != 0 {
			return int(err), false
		}
	}
	wpid := defs.Pid_t(pid)
	if wpid == 0 {
		wpid = defs.WAIT_ANY
	}
	for {
		wst, ok, err := k.Pt.Wait4(p, wpid)
		if err != 0 {
			return int(err), false
		}
		if ok {
			if statusn != 0 {
				if err := p.Vm.Userwriten(statusn, 4, wst.Status); err != 0 {
					return int(err), false
				}
			}
			if rusagen != 0 {
				if err := p.Vm.K2user(wst.Atime.To_rusage(), rusagen); err != 0 {
					return int(err), false
				}
			}
			return int(wst.Pid), false
		}
		if options&defs.WNOHANG != 0 {
			return 0, false
		}
		nozombie := func() bool {
			return !p.Mywait.Haszombie(wpid)
		}
		if k.Wq.Block_if(p, proc.Childkey(p.Pid), nozombie) {
			return 0, true
		}
	}
}
