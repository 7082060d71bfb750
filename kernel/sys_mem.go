package kernel

import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/fd"
import "github.com/chaoskernel/chaos/fdops"
import "github.com/chaoskernel/chaos/proc"

// brk(0) returns the break. a failed move leaves the break where it was.
func sys_brk(p *proc.Proc_t, addr int) int {
	ret, err := p.Vm.Brk(addr)
	if err != 0 {
		return int(err)
	}
	return ret
}

// sys_mmap maps anonymous memory or a private copy of a file. shared maps
// are only allowed read-only since pages are never written back.
func sys_mmap(p *proc.Proc_t, addr, len, prot, flags, fdn, off int) int {
	if len <= 0 {
		return int(-defs.EINVAL)
	}
	if prot&^(defs.PROT_READ|defs.PROT_WRITE|defs.PROT_EXEC) != 0 {
		return int(-defs.EINVAL)
	}
	shared := flags&defs.MAP_SHARED != 0
	if shared == (flags&defs.MAP_PRIVATE != 0) {
		return int(-defs.EINVAL)
	}
	if shared && prot&defs.PROT_WRITE != 0 {
		return int(-defs.EINVAL)
	}
	var fops fdops.Fdops_i
	if flags&defs.MAP_ANON == 0 {
		f, ok := p.Fd_get(fdn)
		if !ok {
			return int(-defs.EBADF)
		}
		if f.Perms&fd.FD_READ == 0 {
			return int(-defs.EACCES)
		}
		fops = f.Fops
	}
	fixed := flags&defs.MAP_FIXED != 0
	va, err := p.Vm.Map(addr, len, prot, fixed, fops, off)
	if err != 0 {
		if err == -defs.ENOMEM {
			log.Warningf("%v: mmap of %v bytes: out of memory", p, len)
		}
		return int(err)
	}
	return va
}

func sys_munmap(p *proc.Proc_t, addr, len int) int {
	return int(p.Vm.Unmap(addr, len))
}
