package accnt

import "sync"
import "sync/atomic"

import "github.com/chaoskernel/chaos/util"

// clock ticks per second reported by times(2)
const HZ = 100

// sizeof(struct rusage)
const RUSAGESZ = 144

type Accnt_t struct {
	// nanoseconds
	Userns int64
	Sysns  int64
	// for getting consistent snapshot of both times; not always needed
	sync.Mutex
}

func (a *Accnt_t) Utadd(delta int) {
	atomic.AddInt64(&a.Userns, int64(delta))
}

func (a *Accnt_t) Systadd(delta int) {
	atomic.AddInt64(&a.Sysns, int64(delta))
}

func (a *Accnt_t) Add(n *Accnt_t) {
	u := atomic.LoadInt64(&n.Userns)
	s := atomic.LoadInt64(&n.Sysns)
	a.Lock()
	a.Userns += u
	a.Sysns += s
	a.Unlock()
}

// Snapshot returns user and system nanoseconds.
func (a *Accnt_t) Snapshot() (int64, int64) {
	a.Lock()
	defer a.Unlock()
	return atomic.LoadInt64(&a.Userns), atomic.LoadInt64(&a.Sysns)
}

func (a *Accnt_t) Fetch() []uint8 {
	a.Lock()
	ru := a.To_rusage()
	a.Unlock()
	return ru
}

func (a *Accnt_t) To_rusage() []uint8 {
	ret := make([]uint8, RUSAGESZ)
	totv := func(nano int64) (int, int) {
		secs := int(nano / 1e9)
		usecs := int((nano % 1e9) / 1000)
		return secs, usecs
	}
	off := 0
	// user timeval
	s, us := totv(a.Userns)
	util.Writen(ret, 8, off, s)
	off += 8
	util.Writen(ret, 8, off, us)
	off += 8
	// sys timeval
	s, us = totv(a.Sysns)
	util.Writen(ret, 8, off, s)
	off += 8
	util.Writen(ret, 8, off, us)
	return ret
}

// Ticks converts nanoseconds to times(2) clock ticks.
func Ticks(ns int64) int {
	return int(ns / (1e9 / HZ))
}

// Mktms builds struct tms from the task's own and its reaped children's
// accounting.
func Mktms(self, child *Accnt_t) []uint8 {
	ret := make([]uint8, 32)
	su, ss := self.Snapshot()
	cu, cs := child.Snapshot()
	util.Writen(ret, 8, 0, Ticks(su))
	util.Writen(ret, 8, 8, Ticks(ss))
	util.Writen(ret, 8, 16, Ticks(cu))
	util.Writen(ret, 8, 24, Ticks(cs))
	return ret
}
