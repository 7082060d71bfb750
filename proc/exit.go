package proc

import "fmt"

import "github.com/chaoskernel/chaos/accnt"
import "github.com/chaoskernel/chaos/defs"

// Exit terminates p with wait status status. the address space and the
// descriptors are released now; the kernel stack and the table entry stay
// until the parent reaps the zombie. children move to init. exiting twice
// is a kernel bug.
func (pt *Ptable_t) Exit(p *Proc_t, status int) {
	p.Sl.Lock()
	if p.exited {
		p.Sl.Unlock()
		panic(fmt.Sprintf("%v: exit twice", p))
	}
	p.exited = true
	p.Sl.Unlock()

	p.Fd_closeall(0)
	p.Vm.Uvmfree()
	p.Vm = nil

	wakeinit := false
	pt.Lock()
	if p != pt.initp {
		l := p.Mywait._takeall()
		for _, k := range l {
			c, ok := pt.Lookup(k.Pid)
			if !ok {
				panic("unreaped child missing")
			}
			c.Pwait = &pt.initp.Mywait
			c.ppid = pt.initp.Pid
		}
		wakeinit = pt.initp.Mywait._adopt(l) > 0
	}

	p.Sl.Lock()
	p.State = ZOMBIE
	p.Status = status
	p.Sl.Unlock()

	var atime accnt.Accnt_t
	atime.Add(&p.Atime)
	atime.Add(&p.Catime)
	var ppid defs.Pid_t
	if p.Pwait != nil {
		p.Pwait.putpid(p.Pid, status, &atime)
		ppid = p.ppid
	}
	if p == pt.initp {
		pt.halted = true
		pt.haltst = status
	}
	pt.Unlock()

	log.Infof("%v: exit %#x", p, status)
	if pt.waker == nil {
		return
	}
	if wakeinit {
		pt.waker.Wake_all(Childkey(pt.initp.Pid))
	}
	if ppid != 0 {
		pt.waker.Wake_all(Childkey(ppid))
	}
}

// Kill terminates p as if by signal sig.
func (pt *Ptable_t) Kill(p *Proc_t, sig int) {
	log.Warningf("%v: killed by signal %v", p, sig)
	pt.Exit(p, defs.Mkexitsig(sig))
}

// Wait4 reaps an exited child of p matching pid (WAIT_ANY for any). the
// bool is false when matching children exist but none has exited; the
// caller then blocks on Childkey(p.Pid) or, with WNOHANG, returns 0.
// -ECHILD means no child matches.
func (pt *Ptable_t) Wait4(p *Proc_t, pid defs.Pid_t) (Waitst_t, bool, defs.Err_t) {
	var zw Waitst_t
	switch {
	case pid == 0:
		// one process group
		pid = defs.WAIT_ANY
	case pid < defs.WAIT_ANY:
		return zw, false, -defs.ECHILD
	}
	wst, ok, err := p.Mywait._reap(pid)
	if err != 0 || !ok {
		return zw, false, err
	}
	pt._reap(p, wst.Pid)
	p.Catime.Add(&wst.Atime)
	return wst, true, 0
}

// _reap destroys an exited child whose wait record was consumed.
func (pt *Ptable_t) _reap(parent *Proc_t, pid defs.Pid_t) {
	c, ok := pt.Lookup(pid)
	if !ok {
		panic("zombie missing")
	}
	if c.Getstate() != ZOMBIE {
		panic(fmt.Sprintf("%v: reap of live task", c))
	}
	// wait for the hart that ran the exit to switch away
	c.Oncpu.Lock()
	c.Oncpu.Unlock()
	pt._kstack_free(c.Kstack)
	c.Kstack = nil
	pt.ht.Del(int(pid))
	pt.Lim.Sysprocs.Give()
	log.Debugf("%v: reaped %v", parent, c)
}
