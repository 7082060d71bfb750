package sched

import "container/heap"
import "fmt"
import "sync"

import "github.com/chaoskernel/chaos/proc"

type dlent_t struct {
	dl int64
	p  *proc.Proc_t
	// arrival order among equal deadlines
	seq uint64
}

type dlheap_t []*dlent_t

func (h dlheap_t) Len() int { return len(h) }

func (h dlheap_t) Less(i, j int) bool {
	if h[i].dl != h[j].dl {
		return h[i].dl < h[j].dl
	}
	return h[i].seq < h[j].seq
}

func (h dlheap_t) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *dlheap_t) Push(x interface{}) {
	*h = append(*h, x.(*dlent_t))
}

func (h *dlheap_t) Pop() interface{} {
	old := *h
	n := len(old)
	ret := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ret
}

// Waitq_t holds blocked tasks in one FIFO per wait key, plus the sleep
// deadlines. a task is on at most one queue. woken tasks go back to the
// scheduler.
type Waitq_t struct {
	sync.Mutex
	s    *Sched_t
	qs   map[proc.Waitkey_t][]*proc.Proc_t
	on   map[*proc.Proc_t]proc.Waitkey_t
	dls  dlheap_t
	slp  map[*proc.Proc_t]*dlent_t
	nseq uint64
}

func MkWaitq(s *Sched_t) *Waitq_t {
	wq := &Waitq_t{s: s}
	wq.qs = make(map[proc.Waitkey_t][]*proc.Proc_t)
	wq.on = make(map[*proc.Proc_t]proc.Waitkey_t)
	wq.slp = make(map[*proc.Proc_t]*dlent_t)
	return wq
}

func (wq *Waitq_t) _block(p *proc.Proc_t, key proc.Waitkey_t) {
	if k, ok := wq.on[p]; ok {
		panic(fmt.Sprintf("%v: blocked on %v and %v", p, k, key))
	}
	p.Sl.Lock()
	if p.State != proc.RUNNING {
		p.Sl.Unlock()
		panic(fmt.Sprintf("%v: block in state %v", p, p.State))
	}
	p.State = proc.BLOCKED
	p.Blockkey = key
	p.Sl.Unlock()
	wq.on[p] = key
	wq.qs[key] = append(wq.qs[key], p)
}

// Block_if blocks the running task p on key when cond, evaluated under the
// wait queue lock, returns true. a waker that makes cond false before
// taking the lock cannot be missed. returns whether p blocked.
func (wq *Waitq_t) Block_if(p *proc.Proc_t, key proc.Waitkey_t, cond func() bool) bool {
	wq.Lock()
	defer wq.Unlock()
	if cond != nil && !cond() {
		return false
	}
	wq._block(p, key)
	return true
}

func (wq *Waitq_t) _take(key proc.Waitkey_t, n int) []*proc.Proc_t {
	q := wq.qs[key]
	if n > len(q) {
		n = len(q)
	}
	ret := make([]*proc.Proc_t, n)
	copy(ret, q[:n])
	if n == len(q) {
		delete(wq.qs, key)
	} else {
		wq.qs[key] = q[n:]
	}
	for _, p := range ret {
		delete(wq.on, p)
		delete(wq.slp, p)
	}
	return ret
}

func (wq *Waitq_t) _wake(ps []*proc.Proc_t) int {
	for _, p := range ps {
		wq.s.Enqueue(p)
	}
	return len(ps)
}

// Wake_one readies the longest waiting task on key. returns 1 if there
// was one.
func (wq *Waitq_t) Wake_one(key proc.Waitkey_t) int {
	wq.Lock()
	ps := wq._take(key, 1)
	wq.Unlock()
	return wq._wake(ps)
}

// Wake_all readies every task waiting on key in arrival order.
func (wq *Waitq_t) Wake_all(key proc.Waitkey_t) int {
	wq.Lock()
	ps := wq._take(key, len(wq.qs[key]))
	wq.Unlock()
	return wq._wake(ps)
}

// Sleep blocks p until deadline (monotonic ns). returns false without
// blocking when the deadline already passed.
func (wq *Waitq_t) Sleep(p *proc.Proc_t, deadline, now int64) bool {
	if deadline <= now {
		return false
	}
	wq.Lock()
	defer wq.Unlock()
	wq._block(p, proc.Sleepkey(p.Pid))
	wq.nseq++
	ent := &dlent_t{dl: deadline, p: p, seq: wq.nseq}
	wq.slp[p] = ent
	heap.Push(&wq.dls, ent)
	return true
}

// Sweep wakes the sleepers whose deadline is at or before now, earliest
// first. returns how many were woken.
func (wq *Waitq_t) Sweep(now int64) int {
	wq.Lock()
	var ps []*proc.Proc_t
	for wq.dls.Len() > 0 && wq.dls[0].dl <= now {
		ent := heap.Pop(&wq.dls).(*dlent_t)
		// stale when the task was woken some other way
		if wq.slp[ent.p] != ent {
			continue
		}
		ps = append(ps, wq._remove(ent.p)...)
	}
	wq.Unlock()
	return wq._wake(ps)
}

// _remove takes p off whatever queue it is on.
func (wq *Waitq_t) _remove(p *proc.Proc_t) []*proc.Proc_t {
	key, ok := wq.on[p]
	if !ok {
		return nil
	}
	q := wq.qs[key]
	for i, op := range q {
		if op == p {
			nq := append(q[:i:i], q[i+1:]...)
			if len(nq) == 0 {
				delete(wq.qs, key)
			} else {
				wq.qs[key] = nq
			}
			break
		}
	}
	delete(wq.on, p)
	delete(wq.slp, p)
	return []*proc.Proc_t{p}
}

// Next_deadline returns the earliest live sleep deadline.
func (wq *Waitq_t) Next_deadline() (int64, bool) {
	wq.Lock()
	defer wq.Unlock()
	for wq.dls.Len() > 0 {
		ent := wq.dls[0]
		if wq.slp[ent.p] == ent {
			return ent.dl, true
		}
		heap.Pop(&wq.dls)
	}
	return 0, false
}

// Blocked returns the number of blocked tasks.
func (wq *Waitq_t) Blocked() int {
	wq.Lock()
	defer wq.Unlock()
	return len(wq.on)
}

// Waiting returns the number of tasks blocked on key.
func (wq *Waitq_t) Waiting(key proc.Waitkey_t) int {
	wq.Lock()
	defer wq.Unlock()
	return len(wq.qs[key])
}

var _ proc.Waker_i = (*Waitq_t)(nil)
