package vm

import "github.com/chaoskernel/chaos/mem"

const TLBSIZE = 64

type tlbent_t struct {
	p_pg  mem.Pa_t
	perms mem.Pa_t
}

// Tlb_t caches translations of one address space. entries must be shot down
// whenever a leaf changes.
type Tlb_t struct {
	ents       map[uintptr]tlbent_t
	Hits       int
	Misses     int
	Shootdowns int
}

func (t *Tlb_t) lookup(vpn uintptr) (tlbent_t, bool) {
	e, ok := t.ents[vpn]
	if ok {
		t.Hits++
	} else {
		t.Misses++
	}
	return e, ok
}

func (t *Tlb_t) fill(vpn uintptr, e tlbent_t) {
	if t.ents == nil {
		t.ents = make(map[uintptr]tlbent_t, TLBSIZE)
	}
	if len(t.ents) >= TLBSIZE {
		// evict an arbitrary entry
		for k := range t.ents {
			delete(t.ents, k)
			break
		}
	}
	t.ents[vpn] = e
}

func (t *Tlb_t) inval(vpn uintptr, pgcount int) {
	if pgcount > len(t.ents) {
		for k := range t.ents {
			if k >= vpn && k < vpn+uintptr(pgcount) {
				delete(t.ents, k)
			}
		}
		return
	}
	for i := 0; i < pgcount; i++ {
		delete(t.ents, vpn+uintptr(i))
	}
}

func (t *Tlb_t) flush() {
	t.ents = nil
}

func (t *Tlb_t) Len() int {
	return len(t.ents)
}
