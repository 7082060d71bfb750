package mem

import "fmt"
import "sync"
import "sync/atomic"
import "unsafe"

const PGSHIFT uint = 12
const PGSIZE int = 1 << PGSHIFT
const PGOFFSET Pa_t = 0xfff
const PGMASK Pa_t = ^(PGOFFSET)

// DRAMBASE is where the frame pool starts in the physical address space,
// matching the qemu virt board.
const DRAMBASE Pa_t = 0x80000000

type Pa_t uintptr
type Bytepg_t [PGSIZE]uint8
type Pg_t [512]int
type Pmap_t [512]Pa_t

type Page_i interface {
	Refpg_new() (*Pg_t, Pa_t, bool)
	Refpg_new_nozero() (*Pg_t, Pa_t, bool)
	Refcnt(Pa_t) int
	Dmap(Pa_t) *Pg_t
	Dmap8(Pa_t) []uint8
	Refup(Pa_t)
	Refdown(Pa_t) bool
}

func Pg2bytes(pg *Pg_t) *Bytepg_t {
	return (*Bytepg_t)(unsafe.Pointer(pg))
}

func Bytepg2pg(pg *Bytepg_t) *Pg_t {
	return (*Pg_t)(unsafe.Pointer(pg))
}

func Pg2pmap(pg *Pg_t) *Pmap_t {
	return (*Pmap_t)(unsafe.Pointer(pg))
}

// can account for up to 16TB of mem
type Physpg_t struct {
	Refcnt int32
	// index into pgs of next page on free list
	nexti uint32
}

// Physmem_t owns the frames handed to the kernel by the host. Frames are
// backed by Go memory; their physical addresses are base + index*PGSIZE.
type Physmem_t struct {
	Pgs    []Physpg_t
	frames []Pg_t
	base   Pa_t
	// index into pgs of first free pg
	freei   uint32
	freelen int32
	sync.Mutex
}

const nilidx = ^uint32(0)

// Phys_init carves npages frames starting at physical address base.
func Phys_init(npages int, base Pa_t) *Physmem_t {
	if npages <= 0 || npages >= int(nilidx) {
		panic(fmt.Sprintf("bad frame count %v", npages))
	}
	if base&PGOFFSET != 0 {
		panic("unaligned base")
	}
	phys := &Physmem_t{}
	phys.Pgs = make([]Physpg_t, npages)
	phys.frames = make([]Pg_t, npages)
	phys.base = base
	for i := range phys.Pgs {
		phys.Pgs[i].nexti = uint32(i + 1)
	}
	phys.Pgs[npages-1].nexti = nilidx
	phys.freei = 0
	phys.freelen = int32(npages)
	return phys
}

func (phys *Physmem_t) _pa2idx(p_pg Pa_t) uint32 {
	if p_pg < phys.base {
		panic(fmt.Sprintf("pa %#x below frame pool", p_pg))
	}
	idx := uint32((p_pg - phys.base) >> PGSHIFT)
	if int(idx) >= len(phys.Pgs) {
		panic(fmt.Sprintf("pa %#x beyond frame pool", p_pg))
	}
	return idx
}

func (phys *Physmem_t) Refaddr(p_pg Pa_t) (*int32, uint32) {
	idx := phys._pa2idx(p_pg)
	return &phys.Pgs[idx].Refcnt, idx
}

func (phys *Physmem_t) Refcnt(p_pg Pa_t) int {
	ref, _ := phys.Refaddr(p_pg)
	return int(atomic.LoadInt32(ref))
}

func (phys *Physmem_t) Refup(p_pg Pa_t) {
	ref, _ := phys.Refaddr(p_pg)
	c := atomic.AddInt32(ref, 1)
	if c <= 0 {
		panic("wut")
	}
}

// returns true if p_pg should be added to the free list and the index of the
// page in the pgs array
func (phys *Physmem_t) _refdec(p_pg Pa_t) (bool, uint32) {
	ref, idx := phys.Refaddr(p_pg)
	c := atomic.AddInt32(ref, -1)
	if c < 0 {
		panic("refcount underflow")
	}
	return c == 0, idx
}

// Refdown returns true iff the frame was freed.
func (phys *Physmem_t) Refdown(p_pg Pa_t) bool {
	if add, idx := phys._refdec(p_pg); add {
		phys.Lock()
		phys.Pgs[idx].nexti = phys.freei
		phys.freei = idx
		phys.freelen++
		phys.Unlock()
		return true
	}
	return false
}

// refcnt of returned page is not incremented (it is usually incremented via
// Vm_t.Page_insert).
func (phys *Physmem_t) Refpg_new() (*Pg_t, Pa_t, bool) {
	pg, p_pg, ok := phys._phys_new()
	if !ok {
		return nil, 0, false
	}
	*pg = Pg_t{}
	return pg, p_pg, true
}

func (phys *Physmem_t) Refpg_new_nozero() (*Pg_t, Pa_t, bool) {
	return phys._phys_new()
}

func (phys *Physmem_t) Pmap_new() (*Pmap_t, Pa_t, bool) {
	a, b, ok := phys.Refpg_new()
	if !ok {
		return nil, 0, false
	}
	return Pg2pmap(a), b, ok
}

func (phys *Physmem_t) _phys_new() (*Pg_t, Pa_t, bool) {
	var p_pg Pa_t
	var ok bool
	phys.Lock()
	ff := phys.freei
	if ff != nilidx {
		p_pg = phys.base + Pa_t(ff)<<PGSHIFT
		phys.freei = phys.Pgs[ff].nexti
		ok = true
		if phys.Pgs[ff].Refcnt != 0 {
			panic("free page with references")
		}
		phys.freelen--
		if phys.freelen < 0 {
			panic("no")
		}
	}
	phys.Unlock()
	if ok {
		return phys.Dmap(p_pg), p_pg, true
	}
	return nil, 0, false
}

// Dmap returns the kernel view of the frame containing p.
func (phys *Physmem_t) Dmap(p Pa_t) *Pg_t {
	idx := phys._pa2idx(p & PGMASK)
	return &phys.frames[idx]
}

// returns a byte aligned virtual address for the physical address as slice of
// uint8s
func (phys *Physmem_t) Dmap8(p Pa_t) []uint8 {
	pg := phys.Dmap(p)
	off := p & PGOFFSET
	bpg := Pg2bytes(pg)
	return bpg[off:]
}

// Pgcount returns the number of free and total frames.
func (phys *Physmem_t) Pgcount() (int, int) {
	phys.Lock()
	r := int(phys.freelen)
	phys.Unlock()
	return r, len(phys.Pgs)
}

func (phys *Physmem_t) Base() Pa_t {
	return phys.base
}
