package proc

import "sync"

import "github.com/chaoskernel/chaos/accnt"
import "github.com/chaoskernel/chaos/defs"

// Waitst_t is the record a parent keeps of one child. wait4 fails for a
// pid that is not a child, and only one wait4 reaps a given child.
type Waitst_t struct {
	Pid    defs.Pid_t
	Status int
	Atime  accnt.Accnt_t
	// true iff the exit status is valid
	Valid bool
}

// Wait_t is a task's list of children, in fork order. a child's record
// stays from fork until it is reaped.
type Wait_t struct {
	sync.Mutex
	kids []Waitst_t
	Pid  defs.Pid_t
}

func (w *Wait_t) Wait_init(mypid defs.Pid_t) {
	w.Pid = mypid
}

func (w *Wait_t) _find(id defs.Pid_t) int {
	for i := range w.kids {
		if w.kids[i].Pid == id {
			return i
		}
	}
	return -1
}

func (w *Wait_t) _firstzombie() int {
	for i := range w.kids {
		if w.kids[i].Valid {
			return i
		}
	}
	return -1
}

func (w *Wait_t) _del(i int) Waitst_t {
	ret := w.kids[i]
	w.kids = append(w.kids[:i], w.kids[i+1:]...)
	return ret
}

// returns the number of children, zombies included
func (w *Wait_t) Len() int {
	w.Lock()
	defer w.Unlock()
	return len(w.kids)
}

// _start records child id. it fails when the task already has noproc
// unreaped children.
func (w *Wait_t) _start(id defs.Pid_t, noproc uint) bool {
	w.Lock()
	defer w.Unlock()
	if uint(len(w.kids)) >= noproc {
		return false
	}
	w.kids = append(w.kids, Waitst_t{Pid: id})
	return true
}

// _cancel forgets a child that was never published.
func (w *Wait_t) _cancel(id defs.Pid_t) {
	w.Lock()
	defer w.Unlock()
	i := w._find(id)
	if i < 0 {
		panic("id must exist")
	}
	w._del(i)
}

func (w *Wait_t) putpid(pid defs.Pid_t, status int, atime *accnt.Accnt_t) {
	w.Lock()
	defer w.Unlock()
	i := w._find(pid)
	if i < 0 {
		panic("id must exist")
	}
	k := &w.kids[i]
	if k.Valid {
		panic("status posted twice")
	}
	k.Valid = true
	k.Status = status
	if atime != nil {
		k.Atime.Add(atime)
	}
}

// Haszombie reports whether a child matching id has exited. it is the
// wake condition of a blocked wait4.
func (w *Wait_t) Haszombie(id defs.Pid_t) bool {
	w.Lock()
	defer w.Unlock()
	if id == defs.WAIT_ANY {
		return w._firstzombie() >= 0
	}
	i := w._find(id)
	return i >= 0 && w.kids[i].Valid
}

// _reap removes the record of an exited child matching id; WAIT_ANY takes
// the oldest. the bool is false when a matching child exists but is still
// alive.
func (w *Wait_t) _reap(id defs.Pid_t) (Waitst_t, bool, defs.Err_t) {
	w.Lock()
	defer w.Unlock()
	var zw Waitst_t
	if len(w.kids) == 0 {
		return zw, false, -defs.ECHILD
	}
	var i int
	if id == defs.WAIT_ANY {
		i = w._firstzombie()
	} else if i = w._find(id); i < 0 {
		return zw, false, -defs.ECHILD
	}
	if i < 0 || !w.kids[i].Valid {
		return zw, false, 0
	}
	return w._del(i), true, 0
}

// _takeall empties the list and returns the records for adoption.
func (w *Wait_t) _takeall() []Waitst_t {
	w.Lock()
	defer w.Unlock()
	ret := w.kids
	w.kids = nil
	return ret
}

// _adopt appends the records of another task's children. returns the
// number of them that already exited.
func (w *Wait_t) _adopt(l []Waitst_t) int {
	w.Lock()
	defer w.Unlock()
	zombies := 0
	for _, k := range l {
		if k.Valid {
			zombies++
		}
	}
	w.kids = append(w.kids, l...)
	return zombies
}

// _pids returns the pids of every child.
func (w *Wait_t) _pids() []defs.Pid_t {
	w.Lock()
	defer w.Unlock()
	ret := make([]defs.Pid_t, 0, len(w.kids))
	for _, k := range w.kids {
		ret = append(ret, k.Pid)
	}
	return ret
}
