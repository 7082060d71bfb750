package vm

import "fmt"

import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/mem"

// Sv39 page table entry bits
const PTE_V mem.Pa_t = 1 << 0
const PTE_R mem.Pa_t = 1 << 1
const PTE_W mem.Pa_t = 1 << 2
const PTE_X mem.Pa_t = 1 << 3
const PTE_U mem.Pa_t = 1 << 4
const PTE_G mem.Pa_t = 1 << 5
const PTE_A mem.Pa_t = 1 << 6
const PTE_D mem.Pa_t = 1 << 7

// software bit (RSW): the leaf owns a frame. set even when the mapping is
// inaccessible and PTE_V is clear.
const PTE_OWN mem.Pa_t = 1 << 8

const PTE_RWX mem.Pa_t = PTE_R | PTE_W | PTE_X
const PTE_FLAGS mem.Pa_t = 0x3ff

const PGSIZEW uintptr = uintptr(mem.PGSIZE)
const PGSHIFT uint = 12
const PGOFFSET mem.Pa_t = 0xfff
const PGMASK mem.Pa_t = ^(PGOFFSET)

// user addresses are below the sign-extension hole of Sv39
const USERMIN int = 0x1000
const USERMAX int = 1 << 38

func Pte2pa(pte mem.Pa_t) mem.Pa_t {
	return (pte >> 10) << PGSHIFT
}

func Pa2pte(pa mem.Pa_t) mem.Pa_t {
	return (pa >> PGSHIFT) << 10
}

func pgbits(va uintptr) (uint, uint, uint) {
	lb := func(l uint) uint {
		return uint(va>>(PGSHIFT+9*l)) & 0x1ff
	}
	return lb(2), lb(1), lb(0)
}

func _instpg(phys *mem.Physmem_t, pg *mem.Pmap_t, idx uint) (mem.Pa_t, bool) {
	_, p_np, ok := phys.Refpg_new()
	if !ok {
		return 0, false
	}
	phys.Refup(p_np)
	npte := Pa2pte(p_np) | PTE_V
	pg[idx] = npte
	return npte, true
}

// returns nil if either 1) create was false and the mapping doesn't exist or
// 2) create was true but we failed to allocate a page to create the mapping.
func pmap_pgtbl(phys *mem.Physmem_t, root *mem.Pmap_t, va uintptr,
	create bool) (*mem.Pmap_t, int) {
	if va >= uintptr(USERMAX) {
		panic(fmt.Sprintf("non-user va %#x", va))
	}
	if va < uintptr(mem.PGSIZE) && create {
		panic("mapping page 0")
	}
	vpn2, vpn1, slot := pgbits(va)
	tbl := root
	for _, i := range [...]uint{vpn2, vpn1} {
		pe := tbl[i]
		if pe&PTE_V == 0 {
			if !create {
				return nil, 0
			}
			var ok bool
			pe, ok = _instpg(phys, tbl, i)
			if !ok {
				return nil, 0
			}
		}
		if pe&PTE_RWX != 0 {
			panic("superpage in user page table")
		}
		tbl = mem.Pg2pmap(phys.Dmap(Pte2pa(pe)))
	}
	return tbl, int(slot)
}

func pmap_walk(phys *mem.Physmem_t, root *mem.Pmap_t, va uintptr) (*mem.Pa_t, defs.Err_t) {
	tbl, slot := pmap_pgtbl(phys, root, va, true)
	if tbl == nil {
		// create was set; failed to allocate a page
		return nil, -defs.ENOMEM
	}
	return &tbl[slot], 0
}

func Pmap_lookup(phys *mem.Physmem_t, root *mem.Pmap_t, va uintptr) *mem.Pa_t {
	tbl, slot := pmap_pgtbl(phys, root, va, false)
	if tbl == nil {
		return nil
	}
	return &tbl[slot]
}

// pmfree releases the frames mapped in [start, end) and clears their
// leaves. returns the number of frames released.
func pmfree(phys *mem.Physmem_t, root *mem.Pmap_t, start, end uintptr) int {
	did := 0
	for i := start; i < end; {
		pg, slot := pmap_pgtbl(phys, root, i, false)
		if pg == nil {
			// this level is not mapped; skip to the next va that
			// may have a mapping at this level
			i += (1 << 21)
			i &^= (1 << 21) - 1
			continue
		}
		tofree := pg[slot:]
		left := (end - i) >> PGSHIFT
		if left < uintptr(len(tofree)) {
			tofree = tofree[:left]
		}
		for idx, pte := range tofree {
			if pte&PTE_OWN != 0 {
				if pte&PTE_U == 0 {
					panic("kernel pages in vminfo?")
				}
				phys.Refdown(Pte2pa(pte))
				tofree[idx] = 0
				did++
			}
		}
		i += uintptr(len(tofree)) << PGSHIFT
	}
	return did
}

// pmfree_tables releases the table pages below tbl; level 2 is the root.
func pmfree_tables(phys *mem.Physmem_t, tbl *mem.Pmap_t, level int) {
	if level == 0 {
		return
	}
	for i, pe := range tbl {
		if pe&PTE_V == 0 {
			continue
		}
		if pe&PTE_RWX != 0 {
			panic("leaf above level 0")
		}
		p_next := Pte2pa(pe)
		pmfree_tables(phys, mem.Pg2pmap(phys.Dmap(p_next)), level-1)
		phys.Refdown(p_next)
		tbl[i] = 0
	}
}

// Ptecopy gives the child private copies of every frame the parent maps in
// [start, end). returns false if frames ran out; the child keeps whatever
// was copied so far and must be freed by the caller.
func Ptecopy(phys *mem.Physmem_t, croot, proot *mem.Pmap_t, start, end uintptr) bool {
	for i := start; i < end; {
		pptb, slot := pmap_pgtbl(phys, proot, i, false)
		if pptb == nil {
			// skip to next page directory
			i += 1 << 21
			i &^= (1 << 21) - 1
			continue
		}
		cptb, _ := pmap_pgtbl(phys, croot, i, true)
		if cptb == nil {
			// failed to allocate user page table
			return false
		}
		ps := pptb[slot:]
		cs := cptb[slot:]
		left := (end - i) >> PGSHIFT
		if left < uintptr(len(ps)) {
			ps = ps[:left]
			cs = cs[:left]
		}
		for j, pte := range ps {
			if pte&PTE_OWN == 0 {
				continue
			}
			if pte&PTE_U == 0 {
				panic("huh?")
			}
			npg, p_npg, ok := phys.Refpg_new_nozero()
			if !ok {
				return false
			}
			*npg = *phys.Dmap(Pte2pa(pte))
			phys.Refup(p_npg)
			cs[j] = Pa2pte(p_npg) | pte&PTE_FLAGS
		}
		i += uintptr(len(ps)) << PGSHIFT
	}
	return true
}

// Mkleaf builds a leaf for a frame with the given permissions. a leaf
// without access permissions is kept but invalid.
func Mkleaf(p_pg mem.Pa_t, perms mem.Pa_t) mem.Pa_t {
	pte := Pa2pte(p_pg) | perms&(PTE_RWX|PTE_U) | PTE_OWN
	if perms&PTE_RWX != 0 {
		pte |= PTE_V
	}
	return pte
}
