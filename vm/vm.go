package vm

import "fmt"

import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/mem"
import "github.com/chaoskernel/chaos/util"

type mtype_t uint

// types of mappings
const (
	VANON mtype_t = 1 << iota
	// private copy of a file
	VFILE mtype_t = 1 << iota
	// the program break region
	VHEAP mtype_t = 1 << iota
	VSTACK mtype_t = 1 << iota
)

func (mt mtype_t) String() string {
	switch mt {
	case VANON:
		return "anon"
	case VFILE:
		return "file"
	case VHEAP:
		return "heap"
	case VSTACK:
		return "stack"
	}
	return "?"
}

type Vminfo_t struct {
	Mtype mtype_t
	Pgn   uintptr
	Pglen int
	// PTE_R, PTE_W, PTE_X and PTE_U
	Perms mem.Pa_t
	// offset of the first page in the backing file
	foff int
}

func (vmi *Vminfo_t) Start() int {
	return int(vmi.Pgn << PGSHIFT)
}

func (vmi *Vminfo_t) Len() int {
	return vmi.Pglen << PGSHIFT
}

func (vmi *Vminfo_t) end() uintptr {
	return vmi.Pgn + uintptr(vmi.Pglen)
}

func (vmi *Vminfo_t) overlaps(o *Vminfo_t) bool {
	return vmi.Pgn < o.end() && o.Pgn < vmi.end()
}

func (vmi *Vminfo_t) String() string {
	var perms string
	for _, p := range []struct {
		b mem.Pa_t
		c string
	}{{PTE_R, "r"}, {PTE_W, "w"}, {PTE_X, "x"}} {
		if vmi.Perms&p.b != 0 {
			perms += p.c
		} else {
			perms += "-"
		}
	}
	s := fmt.Sprintf("[%#x - %#x) %v %v", vmi.Start(), vmi.Start()+vmi.Len(),
		perms, vmi.Mtype)
	if vmi.Mtype == VFILE {
		s += fmt.Sprintf(" @%#x", vmi.foff)
	}
	return s
}

// Vmregion_t is the sorted, disjoint set of mappings of one address space.
type Vmregion_t struct {
	rb     Rbh_t
	_pglen int
	Novma  uint
}

// file copies are never merged; the heap and anonymous maps are.
func (m *Vmregion_t) _canmerge(a, b *Vminfo_t) bool {
	if a.Pgn != b.end() && b.Pgn != a.end() {
		return false
	}
	if a.Mtype != b.Mtype || a.Perms != b.Perms {
		return false
	}
	return a.Mtype == VANON || a.Mtype == VHEAP
}

// insert adds a mapping, merging it with compatible neighbours. the caller
// has checked that vmi does not overlap an existing mapping.
func (m *Vmregion_t) insert(vmi *Vminfo_t) {
	if vmi.Pglen <= 0 {
		panic("bad vmi len")
	}
	next := m.rb.ceil(vmi.Pgn)
	if next != nil && next.vmi.overlaps(vmi) {
		panic(fmt.Sprintf("vma %v overlaps %v", vmi, &next.vmi))
	}
	prev := m.rb.last()
	if next != nil {
		prev = next.prev()
	}
	m._pglen += vmi.Pglen
	if prev != nil && m._canmerge(&prev.vmi, vmi) {
		prev.vmi.Pglen += vmi.Pglen
		if next != nil && m._canmerge(&prev.vmi, &next.vmi) {
			prev.vmi.Pglen += next.vmi.Pglen
			m.rb.remove(next)
			m.Novma--
		}
		return
	}
	if next != nil && m._canmerge(&next.vmi, vmi) {
		next.vmi.Pgn = vmi.Pgn
		next.vmi.Pglen += vmi.Pglen
		return
	}
	m.rb._insert(vmi)
	m.Novma++
}

func (m *Vmregion_t) Lookup(va uintptr) (*Vminfo_t, bool) {
	pgn := va >> PGSHIFT
	n := m.rb.lookup(pgn)
	if n == nil {
		return nil, false
	}
	return &n.vmi, true
}

// Overlaps reports whether any mapping intersects [va, va+len).
func (m *Vmregion_t) Overlaps(va, len int) bool {
	pgn := uintptr(va) >> PGSHIFT
	pgend := uintptr(util.Roundup(va+len, mem.PGSIZE)) >> PGSHIFT
	n := m.rb.ceil(pgn)
	return n != nil && n.vmi.Pgn < pgend
}

func (m *Vmregion_t) _copy1(par, src *Rbn_t) *Rbn_t {
	if src == nil {
		return nil
	}
	ret := &Rbn_t{}
	*ret = *src
	ret.p = par
	for d, c := range src.kid {
		ret.kid[d] = m._copy1(ret, c)
	}
	return ret
}

func (m *Vmregion_t) Copy() Vmregion_t {
	var ret Vmregion_t
	ret._pglen, ret.Novma = m._pglen, m.Novma
	ret.rb.root = m._copy1(nil, m.rb.root)
	return ret
}

func (m *Vmregion_t) dump() string {
	s := fmt.Sprintf("novma: %v\n", m.Novma)
	m.Iter(func(vmi *Vminfo_t) {
		s += vmi.String() + "\n"
	})
	return s
}

// Iter visits mappings in address order.
func (m *Vmregion_t) Iter(f func(*Vminfo_t)) {
	for n := m.rb.first(); n != nil; n = n.next() {
		f(&n.vmi)
	}
}

func (m *Vmregion_t) Pglen() int {
	return m._pglen
}

// _findhole returns the lowest page number at or above minpgn where pglen
// free pages end at or below maxpgn.
func (m *Vmregion_t) _findhole(minpgn, pglen, maxpgn uintptr) (uintptr, bool) {
	cand := minpgn
	for n := m.rb.ceil(minpgn); n != nil; n = n.next() {
		if n.vmi.Pgn >= cand+pglen {
			break
		}
		if e := n.vmi.end(); e > cand {
			cand = e
		}
	}
	if cand+pglen > maxpgn || cand+pglen < cand {
		return 0, false
	}
	return cand, true
}

// Remove drops [start, start+len) from the set. the range may span several
// mappings and may include unmapped pages. it fails only if splitting a
// mapping would exceed novma mappings, in which case nothing changes.
func (m *Vmregion_t) Remove(start, len int, novma uint) defs.Err_t {
	pgn := uintptr(start) >> PGSHIFT
	pgend := pgn + uintptr(util.Roundup(len, mem.PGSIZE)>>PGSHIFT)
	first := m.rb.ceil(pgn)
	if first != nil && first.vmi.Pgn < pgn && first.vmi.end() > pgend {
		if m.Novma >= novma {
			return -defs.ENOMEM
		}
	}
	for n := first; n != nil && n.vmi.Pgn < pgend; {
		nx := n.next()
		s, e := n.vmi.Pgn, n.vmi.end()
		switch {
		case s >= pgn && e <= pgend:
			m._pglen -= n.vmi.Pglen
			m.rb.remove(n)
			m.Novma--
		case s < pgn && e > pgend:
			avmi := n.vmi
			avmi.Pgn = pgend
			avmi.Pglen = int(e - pgend)
			if avmi.Mtype == VFILE {
				avmi.foff += int((pgend - s) << PGSHIFT)
			}
			n.vmi.Pglen = int(pgn - s)
			m._pglen -= int(pgend - pgn)
			m.rb._insert(&avmi)
			m.Novma++
		case s < pgn:
			m._pglen -= int(e - pgn)
			n.vmi.Pglen = int(pgn - s)
		default:
			m._pglen -= int(pgend - s)
			if n.vmi.Mtype == VFILE {
				n.vmi.foff += int((pgend - s) << PGSHIFT)
			}
			n.vmi.Pgn = pgend
			n.vmi.Pglen = int(e - pgend)
		}
		n = nx
	}
	return 0
}

// Verify checks that the mappings are sorted, disjoint and consistent with
// the cached counts.
func (m *Vmregion_t) Verify() error {
	if _, err := m.rb._check(m.rb.root); err != nil {
		return err
	}
	if m.rb.root != nil && m.rb.root.c != BLACK {
		return fmt.Errorf("red root")
	}
	var last *Vminfo_t
	var cnt uint
	var pgs int
	var err error
	m.Iter(func(vmi *Vminfo_t) {
		if err != nil {
			return
		}
		if vmi.Pglen <= 0 {
			err = fmt.Errorf("empty vma %v", vmi)
		} else if last != nil && last.end() > vmi.Pgn {
			err = fmt.Errorf("vma %v not after %v", vmi, last)
		}
		last = vmi
		cnt++
		pgs += vmi.Pglen
	})
	if err != nil {
		return err
	}
	if cnt != m.Novma {
		return fmt.Errorf("novma %v, found %v", m.Novma, cnt)
	}
	if pgs != m._pglen {
		return fmt.Errorf("pglen %v, found %v", m._pglen, pgs)
	}
	return nil
}
