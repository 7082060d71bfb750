package proc

import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/fd"

// Fork creates a child of parent with a private copy of every mapped page
// and of the descriptor table. the child resumes at the parent's saved pc
// with a0 = 0, and with sp = newsp when newsp is non-zero. the child is
// not yet runnable; the caller enqueues it. nothing is left allocated on
// failure.
func (pt *Ptable_t) Fork(parent *Proc_t, newsp uintptr) (*Proc_t, defs.Err_t) {
	if !pt.Lim.Sysprocs.Take() {
		log.Warningf("%v: fork: task limit", parent)
		return nil, -defs.EAGAIN
	}
	child := pt._mkproc(parent.Name)
	child.Ulim = parent.Ulim

	nvm, err := parent.Vm.Copy()
	if err != 0 {
		pt.Lim.Sysprocs.Give()
		log.Warningf("%v: fork: out of memory", parent)
		return nil, err
	}
	undo := func() {
		nvm.Uvmfree()
		pt.Lim.Sysprocs.Give()
	}
	ks, ok := pt._kstack_alloc()
	if !ok {
		undo()
		log.Warningf("%v: fork: no kernel stack", parent)
		return nil, -defs.ENOMEM
	}
	undo2 := func() {
		pt._kstack_free(ks)
		undo()
	}
	fds, nfds, err := parent.Fd_copyall()
	if err != 0 {
		undo2()
		return nil, err
	}
	child.Vm = nvm
	child.Kstack = ks
	child.Fds = fds
	child.nfds = nfds
	parent.Fdl.Lock()
	child.fdstart = parent.fdstart
	parent.Fdl.Unlock()
	child.Cwd = parent.Cwd.Copy()

	child.Tf = parent.Tf
	child.Tf[defs.TF_A0] = 0
	if newsp != 0 {
		child.Tf[defs.TF_SP] = newsp
	}

	if !pt._publish(child, parent) {
		for _, f := range child.Fds {
			if f != nil {
				fd.Close_panic(f)
			}
		}
		undo2()
		return nil, -defs.EAGAIN
	}
	log.Debugf("%v: fork -> %v", parent, child.Pid)
	return child, 0
}
