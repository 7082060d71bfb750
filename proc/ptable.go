package proc

import "fmt"
import "sync"

import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/fd"
import "github.com/chaoskernel/chaos/hashtable"
import "github.com/chaoskernel/chaos/limits"
import "github.com/chaoskernel/chaos/mem"
import "github.com/chaoskernel/chaos/ustr"

// Ptable_t is the process table. one lock serializes pid allocation, the
// hierarchy (Pwait links) and exit publication; lookups go through the
// lock-free hashtable.
type Ptable_t struct {
	sync.Mutex
	ht      *hashtable.Hashtable_t
	nextpid defs.Pid_t
	initp   *Proc_t
	phys    *mem.Physmem_t
	Lim     *limits.Syslimit_t
	waker   Waker_i
	// set when init exits
	halted bool
	haltst int
}

func MkPtable(phys *mem.Physmem_t, lim *limits.Syslimit_t) *Ptable_t {
	pt := &Ptable_t{}
	pt.ht = hashtable.MkHash(100)
	pt.nextpid = 1
	pt.phys = phys
	pt.Lim = lim
	return pt
}

// Set_waker installs the wait queue used to wake waiting parents.
func (pt *Ptable_t) Set_waker(w Waker_i) {
	pt.waker = w
}

func (pt *Ptable_t) Phys() *mem.Physmem_t {
	return pt.phys
}

func (pt *Ptable_t) Lookup(pid defs.Pid_t) (*Proc_t, bool) {
	v, ok := pt.ht.Get(int(pid))
	if !ok {
		return nil, false
	}
	return v.(*Proc_t), true
}

// Len returns the number of tasks in the table, zombies included.
func (pt *Ptable_t) Len() int {
	return pt.ht.Size()
}

// Iter calls f on every task until f returns true.
func (pt *Ptable_t) Iter(f func(*Proc_t) bool) {
	pt.ht.Iter(func(k, v interface{}) bool {
		return f(v.(*Proc_t))
	})
}

func (pt *Ptable_t) Init() *Proc_t {
	pt.Lock()
	defer pt.Unlock()
	return pt.initp
}

// Halted reports whether init exited, and with which wait status.
func (pt *Ptable_t) Halted() (bool, int) {
	pt.Lock()
	defer pt.Unlock()
	return pt.halted, pt.haltst
}

// Ppid returns the pid of the current parent.
func (p *Proc_t) Ppid(pt *Ptable_t) defs.Pid_t {
	pt.Lock()
	defer pt.Unlock()
	return p.ppid
}

func (pt *Ptable_t) _mkproc(name ustr.Ustr) *Proc_t {
	ret := &Proc_t{}
	ret.Name = append(ustr.MkUstr(), name...)
	ret.Core = -1
	ret.Ulim = _deflimits
	if pt.Lim.Nofile > 0 {
		ret.Ulim.Nofile = uint(pt.Lim.Nofile)
	}
	if pt.Lim.Vmas > 0 {
		ret.Ulim.Novma = uint(pt.Lim.Vmas)
	}
	return ret
}

// _publish assigns the pid and links the task under parent. parent is nil
// only for init.
func (pt *Ptable_t) _publish(p *Proc_t, parent *Proc_t) bool {
	pt.Lock()
	defer pt.Unlock()
	pid := pt.nextpid
	if parent != nil {
		if !parent.Mywait._start(pid, parent.Ulim.Noproc) {
			return false
		}
		p.Pwait = &parent.Mywait
		p.ppid = parent.Pid
	} else {
		if pt.initp != nil {
			panic("two inits")
		}
		pt.initp = p
	}
	pt.nextpid++
	p.Pid = pid
	p.Mywait.Wait_init(pid)
	if _, ok := pt.ht.Set(int(pid), p); !ok {
		panic(fmt.Sprintf("pid %v exists", pid))
	}
	return true
}

func (pt *Ptable_t) _kstack_alloc() ([]mem.Pa_t, bool) {
	var ret []mem.Pa_t
	for i := 0; i < KSTACKPAGES; i++ {
		_, p_pg, ok := pt.phys.Refpg_new()
		if !ok {
			pt._kstack_free(ret)
			return nil, false
		}
		pt.phys.Refup(p_pg)
		ret = append(ret, p_pg)
	}
	return ret, true
}

func (pt *Ptable_t) _kstack_free(ks []mem.Pa_t) {
	for _, p_pg := range ks {
		if !pt.phys.Refdown(p_pg) {
			panic("kernel stack shared")
		}
	}
}

// Console descriptors shared by init: fds[i] becomes descriptor i.
func (p *Proc_t) _setfds(fds []*fd.Fd_t) {
	p.Fds = make([]*fd.Fd_t, len(fds))
	for i, f := range fds {
		if f == nil {
			continue
		}
		p.Fds[i] = f
		p.nfds++
	}
	p.fdstart = 0
}
