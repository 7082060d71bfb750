package sched

import "context"
import "fmt"
import "sync"
import "sync/atomic"
import "time"

import "github.com/op/go-logging"

import "github.com/chaoskernel/chaos/proc"

var log = logging.MustGetLogger("sched")

// Runq_t is the FIFO of ready tasks of one core.
type Runq_t struct {
	sync.Mutex
	q []*proc.Proc_t
}

func (rq *Runq_t) push(p *proc.Proc_t) {
	rq.Lock()
	rq.q = append(rq.q, p)
	rq.Unlock()
}

func (rq *Runq_t) pop() *proc.Proc_t {
	rq.Lock()
	defer rq.Unlock()
	if len(rq.q) == 0 {
		return nil
	}
	ret := rq.q[0]
	rq.q[0] = nil
	rq.q = rq.q[1:]
	return ret
}

func (rq *Runq_t) Len() int {
	rq.Lock()
	defer rq.Unlock()
	return len(rq.q)
}

// Sched_t is a per-core round robin scheduler. a task stays on the core it
// was first placed on; new tasks are placed round robin.
type Sched_t struct {
	rqs    []Runq_t
	notify []chan struct{}
	place  uint32
	// timer ticks per slice
	Quantum int
}

func MkSched(ncores, quantum int) *Sched_t {
	if ncores <= 0 || quantum <= 0 {
		panic("bad scheduler geometry")
	}
	s := &Sched_t{Quantum: quantum}
	s.rqs = make([]Runq_t, ncores)
	s.notify = make([]chan struct{}, ncores)
	for i := range s.notify {
		s.notify[i] = make(chan struct{}, 1)
	}
	return s
}

func (s *Sched_t) Ncores() int {
	return len(s.rqs)
}

// Enqueue makes p ready on its core.
func (s *Sched_t) Enqueue(p *proc.Proc_t) {
	p.Sl.Lock()
	if p.State == proc.ZOMBIE {
		p.Sl.Unlock()
		panic(fmt.Sprintf("%v: enqueue of zombie", p))
	}
	if p.Onrq {
		p.Sl.Unlock()
		panic(fmt.Sprintf("%v: enqueued twice", p))
	}
	if p.Core < 0 {
		n := atomic.AddUint32(&s.place, 1) - 1
		p.Core = int(n % uint32(len(s.rqs)))
	}
	p.State = proc.READY
	p.Onrq = true
	core := p.Core
	p.Sl.Unlock()

	s.rqs[core].push(p)
	select {
	case s.notify[core] <- struct{}{}:
	default:
	}
}

// Pick_next dequeues the next ready task of core and marks it running.
// nil means the core is idle.
func (s *Sched_t) Pick_next(core int) *proc.Proc_t {
	p := s.rqs[core].pop()
	if p == nil {
		return nil
	}
	p.Sl.Lock()
	if !p.Onrq || p.State != proc.READY {
		panic(fmt.Sprintf("%v: picked in state %v", p, p.State))
	}
	p.Onrq = false
	p.State = proc.RUNNING
	p.Sl.Unlock()
	return p
}

// Preempt charges a timer tick to the running task p. when p used its
// slice it goes to the back of the queue and Preempt returns true.
func (s *Sched_t) Preempt(core int, p *proc.Proc_t) bool {
	p.Sl.Lock()
	if p.State != proc.RUNNING || p.Core != core {
		panic(fmt.Sprintf("%v: preempt in state %v on %v", p, p.State, core))
	}
	p.Ticks++
	exp := p.Ticks >= s.Quantum
	if exp {
		p.Ticks = 0
	}
	p.Sl.Unlock()
	if exp {
		s.Enqueue(p)
	}
	return exp
}

// Yield_now gives up the rest of the slice of the running task p.
func (s *Sched_t) Yield_now(p *proc.Proc_t) {
	p.Sl.Lock()
	if p.State != proc.RUNNING {
		panic(fmt.Sprintf("%v: yield in state %v", p, p.State))
	}
	p.Ticks = 0
	p.Sl.Unlock()
	s.Enqueue(p)
}

// Wait_work waits until a task is enqueued on core, the timeout passes or
// ctx is done. returns false only when ctx is done.
func (s *Sched_t) Wait_work(ctx context.Context, core int, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s.notify[core]:
	case <-t.C:
	case <-ctx.Done():
		return false
	}
	return true
}

// Kick wakes every idle core.
func (s *Sched_t) Kick() {
	for _, c := range s.notify {
		select {
		case c <- struct{}{}:
		default:
		}
	}
}

func (s *Sched_t) Len(core int) int {
	return s.rqs[core].Len()
}

// Ready returns the number of ready tasks on all cores.
func (s *Sched_t) Ready() int {
	n := 0
	for i := range s.rqs {
		n += s.rqs[i].Len()
	}
	return n
}
