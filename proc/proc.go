package proc

import "fmt"
import "sync"

import "github.com/op/go-logging"

import "github.com/chaoskernel/chaos/accnt"
import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/fd"
import "github.com/chaoskernel/chaos/mem"
import "github.com/chaoskernel/chaos/ustr"
import "github.com/chaoskernel/chaos/vm"

var log = logging.MustGetLogger("proc")

type Pstate_t int

const (
	READY Pstate_t = iota
	RUNNING
	BLOCKED
	ZOMBIE
)

func (s Pstate_t) String() string {
	switch s {
	case READY:
		return "READY"
	case RUNNING:
		return "RUNNING"
	case BLOCKED:
		return "BLOCKED"
	case ZOMBIE:
		return "ZOMBIE"
	}
	return fmt.Sprintf("Pstate_t(%d)", int(s))
}

type Blockreason_t int

const (
	B_NONE Blockreason_t = iota
	// a child exited
	B_CHILD
	// a deadline passed
	B_SLEEP
	// a filesystem or device resource
	B_RESOURCE
)

// Waitkey_t names what a blocked task waits for.
type Waitkey_t struct {
	Reason Blockreason_t
	Id     int
}

func Childkey(pid defs.Pid_t) Waitkey_t {
	return Waitkey_t{Reason: B_CHILD, Id: int(pid)}
}

func Sleepkey(pid defs.Pid_t) Waitkey_t {
	return Waitkey_t{Reason: B_SLEEP, Id: int(pid)}
}

func Resourcekey(id int) Waitkey_t {
	return Waitkey_t{Reason: B_RESOURCE, Id: id}
}

// Waker_i is how exit wakes waiters on a key.
type Waker_i interface {
	Wake_all(Waitkey_t) int
}

// per-process limits
type Ulimit_t struct {
	Nofile uint
	Novma  uint
	Noproc uint
}

// pages of kernel stack per task
const KSTACKPAGES = 2

type Proc_t struct {
	Pid  defs.Pid_t
	Name ustr.Ustr

	// waitinfo for my child processes
	Mywait Wait_t
	// waitinfo of my parent; protected by the ptable lock
	Pwait *Wait_t
	ppid  defs.Pid_t

	// saved user context
	Tf defs.Tf_t

	// Address space
	Vm *vm.Vm_t

	// kernel stack frames, owned until reap
	Kstack []mem.Pa_t

	Fds []*fd.Fd_t
	// where to start scanning for free fds
	fdstart int
	// fds, fdstart, nfds protected by fdl
	Fdl sync.Mutex
	// number of valid file descriptors
	nfds int

	Cwd *fd.Cwd_t

	Ulim Ulimit_t

	// this proc's rusage
	Atime accnt.Accnt_t
	// total child rusage
	Catime accnt.Accnt_t

	// scheduling state below is protected by Sl
	Sl    sync.Mutex
	State Pstate_t
	// valid while BLOCKED
	Blockkey Waitkey_t
	// core whose ready queue holds the task; -1 before first placement
	Core int
	// true while on a ready queue
	Onrq bool
	// timer ticks used of the current slice
	Ticks int
	// nanosleep deadline of a restarted sleep; 0 when not sleeping
	Sleepdl int64
	// wait status once ZOMBIE
	Status int
	exited bool

	// held by the hart running the task
	Oncpu sync.Mutex
}

func (p *Proc_t) String() string {
	return fmt.Sprintf("%v(%v)", p.Pid, string(p.Name))
}

func (p *Proc_t) Getstate() Pstate_t {
	p.Sl.Lock()
	defer p.Sl.Unlock()
	return p.State
}

func (p *Proc_t) Setstate(s Pstate_t) {
	p.Sl.Lock()
	if p.State == ZOMBIE {
		panic(fmt.Sprintf("%v: zombie to %v", p, s))
	}
	p.State = s
	p.Sl.Unlock()
}

// an fd table invariant: every fd must have its file field set. thus the
// caller cannot set an fd's file field without holding fdl. otherwise you will
// race with a forking thread when it copies the fd table.
func (p *Proc_t) Fd_insert(f *fd.Fd_t, perms int) (int, bool) {
	p.Fdl.Lock()
	a, b := p.fd_insert_inner(f, perms, 0)
	p.Fdl.Unlock()
	return a, b
}

// lowest free fd at or above min
func (p *Proc_t) fd_insert_inner(f *fd.Fd_t, perms int, min int) (int, bool) {
	if uint(p.nfds) >= p.Ulim.Nofile {
		return -1, false
	}
	start := p.fdstart
	if min > start {
		start = min
	}
	newfd := start
	for newfd < len(p.Fds) && p.Fds[newfd] != nil {
		newfd++
	}
	if newfd >= len(p.Fds) {
		if uint(newfd) >= p.Ulim.Nofile {
			return -1, false
		}
		// double size of fd table
		nl := 2*len(p.Fds) + 1
		if nl <= newfd {
			nl = newfd + 1
		}
		if uint(nl) > p.Ulim.Nofile {
			nl = int(p.Ulim.Nofile)
		}
		nfdt := make([]*fd.Fd_t, nl)
		copy(nfdt, p.Fds)
		p.Fds = nfdt
	}
	if min <= p.fdstart {
		p.fdstart = newfd + 1
	}
	f.Perms = perms
	if f.Fops == nil {
		panic("wtf!")
	}
	p.Fds[newfd] = f
	p.nfds++
	return newfd, true
}

// fdn is not guaranteed to be a sane fd
func (p *Proc_t) Fd_get_inner(fdn int) (*fd.Fd_t, bool) {
	if fdn < 0 || fdn >= len(p.Fds) {
		return nil, false
	}
	ret := p.Fds[fdn]
	ok := ret != nil
	return ret, ok
}

func (p *Proc_t) Fd_get(fdn int) (*fd.Fd_t, bool) {
	p.Fdl.Lock()
	ret, ok := p.Fd_get_inner(fdn)
	p.Fdl.Unlock()
	return ret, ok
}

// fdn is not guaranteed to be a sane fd
func (p *Proc_t) Fd_del(fdn int) (*fd.Fd_t, bool) {
	p.Fdl.Lock()
	a, b := p.fd_del_inner(fdn)
	p.Fdl.Unlock()
	return a, b
}

func (p *Proc_t) fd_del_inner(fdn int) (*fd.Fd_t, bool) {
	if fdn < 0 || fdn >= len(p.Fds) {
		return nil, false
	}
	ret := p.Fds[fdn]
	p.Fds[fdn] = nil
	ok := ret != nil
	if ok {
		p.nfds--
		if p.nfds < 0 {
			panic("neg nfds")
		}
		if fdn < p.fdstart {
			p.fdstart = fdn
		}
	}
	return ret, ok
}

// Fd_dup copies ofdn to the lowest free descriptor.
func (p *Proc_t) Fd_dup(ofdn int) (int, defs.Err_t) {
	p.Fdl.Lock()
	defer p.Fdl.Unlock()
	ofd, ok := p.Fd_get_inner(ofdn)
	if !ok {
		return 0, -defs.EBADF
	}
	cpy, err := fd.Copyfd(ofd)
	if err != 0 {
		return 0, err
	}
	nfd, ok := p.fd_insert_inner(cpy, ofd.Perms&^fd.FD_CLOEXEC, 0)
	if !ok {
		fd.Close_panic(cpy)
		return 0, -defs.EMFILE
	}
	return nfd, 0
}

// Fd_dup3 copies ofdn to nfdn. returns the descriptor nfdn replaced, which
// the caller must close, if any.
func (p *Proc_t) Fd_dup3(ofdn, nfdn int, cloexec bool) (*fd.Fd_t, defs.Err_t) {
	if ofdn == nfdn {
		return nil, -defs.EINVAL
	}
	if nfdn < 0 || uint(nfdn) >= p.Ulim.Nofile {
		return nil, -defs.EBADF
	}

	p.Fdl.Lock()
	defer p.Fdl.Unlock()

	ofd, ok := p.Fd_get_inner(ofdn)
	if !ok {
		return nil, -defs.EBADF
	}
	cpy, err := fd.Copyfd(ofd)
	if err != 0 {
		return nil, err
	}
	cpy.Perms &^= fd.FD_CLOEXEC
	if cloexec {
		cpy.Perms |= fd.FD_CLOEXEC
	}
	if nfdn >= len(p.Fds) {
		nfdt := make([]*fd.Fd_t, nfdn+1)
		copy(nfdt, p.Fds)
		p.Fds = nfdt
	}
	rfd, needclose := p.Fd_get_inner(nfdn)
	if !needclose {
		p.nfds++
	}
	p.Fds[nfdn] = cpy
	return rfd, 0
}

// Fd_copyall duplicates the table for a new task. on failure every copy
// made so far is closed.
func (p *Proc_t) Fd_copyall() ([]*fd.Fd_t, int, defs.Err_t) {
	p.Fdl.Lock()
	defer p.Fdl.Unlock()
	ret := make([]*fd.Fd_t, len(p.Fds))
	n := 0
	for i, f := range p.Fds {
		if f == nil {
			continue
		}
		nf, err := fd.Copyfd(f)
		if err != 0 {
			for _, c := range ret {
				if c != nil {
					fd.Close_panic(c)
				}
			}
			return nil, 0, err
		}
		ret[i] = nf
		n++
	}
	return ret, n, 0
}

// Fd_closeall closes every descriptor matching perms (all of them when
// perms is 0).
func (p *Proc_t) Fd_closeall(perms int) {
	p.Fdl.Lock()
	var cl []*fd.Fd_t
	for i, f := range p.Fds {
		if f == nil || (perms != 0 && f.Perms&perms == 0) {
			continue
		}
		p.fd_del_inner(i)
		cl = append(cl, f)
	}
	p.Fdl.Unlock()
	for _, f := range cl {
		fd.Close_panic(f)
	}
}

func (p *Proc_t) Nfds() int {
	p.Fdl.Lock()
	defer p.Fdl.Unlock()
	return p.nfds
}

// Userargs reads a NULL-terminated array of string pointers.
func (p *Proc_t) Userargs(uva int) ([]ustr.Ustr, defs.Err_t) {
	if uva == 0 {
		return nil, 0
	}
	const argmax = 64
	const lenmax = 1024
	ret := make([]ustr.Ustr, 0, 12)
	for i := 0; ; i++ {
		if i > argmax {
			return nil, -defs.E2BIG
		}
		ptr, err := p.Vm.Userreadn(uva+8*i, 8)
		if err != 0 {
			return nil, err
		}
		if ptr == 0 {
			break
		}
		str, err := p.Vm.Userstr(ptr, lenmax)
		if err != 0 {
			return nil, err
		}
		ret = append(ret, str)
	}
	return ret, 0
}

var _deflimits = Ulimit_t{
	Nofile: 1024,
	Novma:  4096,
	Noproc: 1 << 10,
}
