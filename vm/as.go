package vm

import "fmt"
import "sync"

import "github.com/op/go-logging"

import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/fdops"
import "github.com/chaoskernel/chaos/mem"
import "github.com/chaoskernel/chaos/ustr"
import "github.com/chaoskernel/chaos/util"

var log = logging.MustGetLogger("vm")

// mmap without a usable hint starts searching here, well above the heap
const MMAPBASE int = 0x2000000000

type Vm_t struct {
	// lock for vmregion, pmap, p_pmap, tlb and the break
	sync.Mutex

	Vmregion Vmregion_t

	// root page table
	Pmap   *mem.Pmap_t
	P_pmap mem.Pa_t

	Tlb Tlb_t

	// the heap is [Heapbase, roundup(Heapend)); Heapend is the break
	Heapbase int
	Heapend  int

	// mapping limit
	Maxvma uint

	phys      *mem.Physmem_t
	pgfltaken bool
}

// Mkvm returns an empty address space.
func Mkvm(phys *mem.Physmem_t, maxvma uint) (*Vm_t, defs.Err_t) {
	pm, p_pm, ok := phys.Pmap_new()
	if !ok {
		return nil, -defs.ENOMEM
	}
	phys.Refup(p_pm)
	as := &Vm_t{Pmap: pm, P_pmap: p_pm, Maxvma: maxvma, phys: phys}
	return as, 0
}

func (as *Vm_t) Lock_pmap() {
	as.Lock()
	as.pgfltaken = true
}

func (as *Vm_t) Unlock_pmap() {
	as.pgfltaken = false
	as.Unlock()
}

func (as *Vm_t) Lockassert_pmap() {
	if !as.pgfltaken {
		panic("pgfl lock must be held")
	}
}

// Prot2perms converts PROT_* bits to leaf permissions. RISC-V has no
// write-only pages so write implies read.
func Prot2perms(prot int) mem.Pa_t {
	perms := PTE_U
	if prot&defs.PROT_READ != 0 {
		perms |= PTE_R
	}
	if prot&defs.PROT_WRITE != 0 {
		perms |= PTE_R | PTE_W
	}
	if prot&defs.PROT_EXEC != 0 {
		perms |= PTE_X
	}
	return perms
}

// _map backs vmi with fresh zeroed frames, optionally initialized by fill,
// and records the mapping. nothing changes on failure.
func (as *Vm_t) _map(vmi *Vminfo_t, fill func(int, *mem.Bytepg_t) defs.Err_t) defs.Err_t {
	as.Lockassert_pmap()
	if as.Vmregion.Overlaps(vmi.Start(), vmi.Len()) {
		panic(fmt.Sprintf("map over existing mapping %v", vmi))
	}
	pas := make([]mem.Pa_t, 0, vmi.Pglen)
	undo := func() {
		for _, p_pg := range pas {
			as.phys.Refup(p_pg)
			as.phys.Refdown(p_pg)
		}
	}
	for i := 0; i < vmi.Pglen; i++ {
		pg, p_pg, ok := as.phys.Refpg_new()
		if !ok {
			undo()
			log.Warningf("out of frames mapping %v", vmi)
			return -defs.ENOMEM
		}
		pas = append(pas, p_pg)
		if fill != nil {
			if err := fill(i, mem.Pg2bytes(pg)); err != 0 {
				undo()
				return err
			}
		}
	}
	// find every leaf before installing any frame
	ptes := make([]*mem.Pa_t, len(pas))
	for i := range pas {
		va := (vmi.Pgn + uintptr(i)) << PGSHIFT
		pte, err := pmap_walk(as.phys, as.Pmap, va)
		if err != 0 {
			undo()
			log.Warningf("out of frames for page tables mapping %v", vmi)
			return err
		}
		if *pte&PTE_OWN != 0 {
			panic("pte not empty")
		}
		ptes[i] = pte
	}
	for i, p_pg := range pas {
		as.phys.Refup(p_pg)
		*ptes[i] = Mkleaf(p_pg, vmi.Perms)
	}
	as.Vmregion.insert(vmi)
	return 0
}

// Map creates an anonymous or private file mapping of len bytes. a fixed
// mapping must not overlap an existing one; otherwise start is a hint and
// the lowest free range at or above it is used. returns the mapping address.
func (as *Vm_t) Map(start, len, prot int, fixed bool, fops fdops.Fdops_i,
	foff int) (int, defs.Err_t) {
	if len <= 0 || len > USERMAX {
		return 0, -defs.EINVAL
	}
	if fixed && start&int(PGOFFSET) != 0 {
		return 0, -defs.EINVAL
	}
	if fops != nil && (foff < 0 || foff&int(PGOFFSET) != 0) {
		return 0, -defs.EINVAL
	}
	pglen := util.Roundup(len, mem.PGSIZE) >> PGSHIFT

	as.Lock_pmap()
	defer as.Unlock_pmap()

	var va int
	if fixed {
		if start < USERMIN || start > USERMAX-pglen<<PGSHIFT {
			return 0, -defs.EINVAL
		}
		if as.Vmregion.Overlaps(start, pglen<<PGSHIFT) {
			return 0, -defs.EINVAL
		}
		va = start
	} else {
		hint := util.Rounddown(start, mem.PGSIZE)
		if hint < USERMIN || hint >= USERMAX {
			hint = MMAPBASE
		}
		pgn, ok := as.Vmregion._findhole(uintptr(hint)>>PGSHIFT,
			uintptr(pglen), uintptr(USERMAX)>>PGSHIFT)
		if !ok {
			return 0, -defs.ENOMEM
		}
		va = int(pgn << PGSHIFT)
	}
	if as.Vmregion.Novma >= as.Maxvma {
		return 0, -defs.ENOMEM
	}

	vmi := &Vminfo_t{Mtype: VANON, Pgn: uintptr(va) >> PGSHIFT,
		Pglen: pglen, Perms: Prot2perms(prot)}
	var fill func(int, *mem.Bytepg_t) defs.Err_t
	if fops != nil {
		vmi.Mtype = VFILE
		vmi.foff = foff
		fill = func(i int, pg *mem.Bytepg_t) defs.Err_t {
			_, err := fops.Pread(Mkfakebuf(pg[:]), foff+i*mem.PGSIZE)
			return err
		}
	}
	if err := as._map(vmi, fill); err != 0 {
		return 0, err
	}
	return va, 0
}

// Map_image maps [va, va+memsz) at a fixed address with data copied to va
// and the rest zero.
func (as *Vm_t) Map_image(va, memsz, prot int, data []uint8) defs.Err_t {
	if memsz <= 0 || len(data) > memsz || va < 0 {
		return -defs.EINVAL
	}
	start := util.Rounddown(va, mem.PGSIZE)
	end := util.Roundup(va+memsz, mem.PGSIZE)
	if start < USERMIN || end > USERMAX {
		return -defs.EINVAL
	}

	as.Lock_pmap()
	defer as.Unlock_pmap()
	if as.Vmregion.Overlaps(start, end-start) {
		return -defs.EINVAL
	}
	if as.Vmregion.Novma >= as.Maxvma {
		return -defs.ENOMEM
	}
	vmi := &Vminfo_t{Mtype: VANON, Pgn: uintptr(start) >> PGSHIFT,
		Pglen: (end - start) >> PGSHIFT, Perms: Prot2perms(prot)}
	dend := va + len(data)
	fill := func(i int, pg *mem.Bytepg_t) defs.Err_t {
		pgva := start + i*mem.PGSIZE
		lo := pgva
		if va > lo {
			lo = va
		}
		hi := pgva + mem.PGSIZE
		if dend < hi {
			hi = dend
		}
		if lo < hi {
			copy(pg[lo-pgva:], data[lo-va:hi-va])
		}
		return 0
	}
	return as._map(vmi, fill)
}

// Map_stack maps a read/write stack of size bytes ending at top.
func (as *Vm_t) Map_stack(top, size int) defs.Err_t {
	if top&int(PGOFFSET) != 0 || size <= 0 || size&int(PGOFFSET) != 0 {
		panic("unaligned stack")
	}
	as.Lock_pmap()
	defer as.Unlock_pmap()
	if top > USERMAX || top-size < USERMIN || as.Vmregion.Overlaps(top-size, size) {
		return -defs.EINVAL
	}
	vmi := &Vminfo_t{Mtype: VSTACK, Pgn: uintptr(top-size) >> PGSHIFT,
		Pglen: size >> PGSHIFT, Perms: PTE_U | PTE_R | PTE_W}
	return as._map(vmi, nil)
}

// Unmap removes [start, start+len). pages that are not mapped are ignored.
func (as *Vm_t) Unmap(start, len int) defs.Err_t {
	if start&int(PGOFFSET) != 0 || len <= 0 {
		return -defs.EINVAL
	}
	if start < 0 || len > USERMAX || start > USERMAX-len {
		return -defs.EINVAL
	}
	as.Lock_pmap()
	defer as.Unlock_pmap()
	return as._unmap(start, util.Roundup(len, mem.PGSIZE))
}

func (as *Vm_t) _unmap(start, len int) defs.Err_t {
	as.Lockassert_pmap()
	if err := as.Vmregion.Remove(start, len, as.Maxvma); err != 0 {
		return err
	}
	pmfree(as.phys, as.Pmap, uintptr(start), uintptr(start+len))
	as.Tlbshoot(uintptr(start), len>>PGSHIFT)
	return 0
}

// Setheap places an empty heap at base; used when building a new image.
func (as *Vm_t) Setheap(base int) {
	if base&int(PGOFFSET) != 0 {
		panic("unaligned heap")
	}
	as.Lock_pmap()
	as.Heapbase, as.Heapend = base, base
	as.Unlock_pmap()
}

// Brk moves the program break to addr. brk(0) reports the current break.
// growing into another mapping fails with ENOMEM and moving below the heap
// base with EINVAL; on failure the break is unchanged.
func (as *Vm_t) Brk(addr int) (int, defs.Err_t) {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	if addr == 0 {
		return as.Heapend, 0
	}
	if err := as._brk(addr); err != 0 {
		return 0, err
	}
	return as.Heapend, 0
}

// Grow_heap moves the break by delta and returns the old break.
func (as *Vm_t) Grow_heap(delta int) (int, defs.Err_t) {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	old := as.Heapend
	if delta == 0 {
		return old, 0
	}
	if err := as._brk(old + delta); err != 0 {
		return 0, err
	}
	return old, 0
}

func (as *Vm_t) _brk(addr int) defs.Err_t {
	as.Lockassert_pmap()
	if as.Heapbase == 0 {
		panic("no heap")
	}
	if addr < as.Heapbase {
		return -defs.EINVAL
	}
	if addr > USERMAX {
		return -defs.ENOMEM
	}
	oldtop := util.Roundup(as.Heapend, mem.PGSIZE)
	newtop := util.Roundup(addr, mem.PGSIZE)
	switch {
	case newtop > oldtop:
		if as.Vmregion.Overlaps(oldtop, newtop-oldtop) {
			return -defs.ENOMEM
		}
		if as.Vmregion.Novma >= as.Maxvma {
			return -defs.ENOMEM
		}
		vmi := &Vminfo_t{Mtype: VHEAP, Pgn: uintptr(oldtop) >> PGSHIFT,
			Pglen: (newtop - oldtop) >> PGSHIFT,
			Perms: PTE_U | PTE_R | PTE_W}
		if err := as._map(vmi, nil); err != 0 {
			return err
		}
	case newtop < oldtop:
		if err := as._unmap(newtop, oldtop-newtop); err != 0 {
			return err
		}
	}
	as.Heapend = addr
	return 0
}

// Translate returns the physical address backing va and the mapping's
// permissions, or EFAULT if the access is not allowed.
func (as *Vm_t) Translate(va int, write bool) (mem.Pa_t, mem.Pa_t, defs.Err_t) {
	as.Lock_pmap()
	a, b, c := as.Translate_inner(va, write)
	as.Unlock_pmap()
	return a, b, c
}

func (as *Vm_t) Translate_inner(va int, write bool) (mem.Pa_t, mem.Pa_t, defs.Err_t) {
	as.Lockassert_pmap()
	if va < 0 || va >= USERMAX {
		return 0, 0, -defs.EFAULT
	}
	uva := uintptr(va)
	vpn := uva >> PGSHIFT
	off := mem.Pa_t(uva) & PGOFFSET
	need := PTE_R
	if write {
		need = PTE_W
	}
	if e, ok := as.Tlb.lookup(vpn); ok {
		if e.perms&need == 0 {
			return 0, 0, -defs.EFAULT
		}
		return e.p_pg | off, e.perms, 0
	}
	vmi, ok := as.Vmregion.Lookup(uva)
	if !ok || vmi.Perms&need == 0 {
		return 0, 0, -defs.EFAULT
	}
	pte := Pmap_lookup(as.phys, as.Pmap, uva)
	if pte == nil || *pte&PTE_OWN == 0 {
		panic(fmt.Sprintf("mapped va %#x has no frame", va))
	}
	*pte |= PTE_A
	if write {
		*pte |= PTE_D
	}
	e := tlbent_t{p_pg: Pte2pa(*pte), perms: vmi.Perms}
	as.Tlb.fill(vpn, e)
	return e.p_pg | off, e.perms, 0
}

func (as *Vm_t) Userdmap8_inner(va int, k2u bool) ([]uint8, defs.Err_t) {
	pa, _, err := as.Translate_inner(va, k2u)
	if err != 0 {
		return nil, err
	}
	return as.phys.Dmap8(pa), 0
}

func (as *Vm_t) Userreadn(va, n int) (int, defs.Err_t) {
	as.Lock_pmap()
	a, b := as.userreadn_inner(va, n)
	as.Unlock_pmap()
	return a, b
}

func (as *Vm_t) userreadn_inner(va, n int) (int, defs.Err_t) {
	as.Lockassert_pmap()
	if n > 8 {
		panic("large n")
	}
	var buf [8]uint8
	if err := as.User2k_inner(buf[:n], va); err != 0 {
		return 0, err
	}
	return util.Readn(buf[:], n, 0), 0
}

func (as *Vm_t) Userwriten(va, n, val int) defs.Err_t {
	if n > 8 {
		panic("large n")
	}
	var buf [8]uint8
	util.Writen(buf[:], n, 0, val)
	return as.K2user(buf[:n], va)
}

// first ret value is the string from user space second is error
func (as *Vm_t) Userstr(uva int, lenmax int) (ustr.Ustr, defs.Err_t) {
	if lenmax < 0 {
		return nil, 0
	}
	as.Lock_pmap()
	defer as.Unlock_pmap()
	i := 0
	s := ustr.MkUstr()
	for {
		str, err := as.Userdmap8_inner(uva+i, false)
		if err != 0 {
			return s, err
		}
		for j, c := range str {
			if c == 0 {
				s = append(s, str[:j]...)
				if len(s) >= lenmax {
					return nil, -defs.ENAMETOOLONG
				}
				return s, 0
			}
		}
		s = append(s, str...)
		i += len(str)
		if len(s) >= lenmax {
			return nil, -defs.ENAMETOOLONG
		}
	}
}

// Usertimespec reads a struct timespec.
func (as *Vm_t) Usertimespec(va int) (int, int, defs.Err_t) {
	secs, err := as.Userreadn(va, 8)
	if err != 0 {
		return 0, 0, err
	}
	nsecs, err := as.Userreadn(va+8, 8)
	if err != 0 {
		return 0, 0, err
	}
	if secs < 0 || nsecs < 0 || nsecs >= 1e9 {
		return 0, 0, -defs.EINVAL
	}
	return secs, nsecs, 0
}

// copies src to the user virtual address uva. may copy part of src if uva +
// len(src) is not mapped
func (as *Vm_t) K2user(src []uint8, uva int) defs.Err_t {
	as.Lock_pmap()
	ret := as.K2user_inner(src, uva)
	as.Unlock_pmap()
	return ret
}

func (as *Vm_t) K2user_inner(src []uint8, uva int) defs.Err_t {
	as.Lockassert_pmap()
	cnt := 0
	for len(src) != 0 {
		dst, err := as.Userdmap8_inner(uva+cnt, true)
		if err != 0 {
			return err
		}
		did := copy(dst, src)
		src = src[did:]
		cnt += did
	}
	return 0
}

// copies len(dst) bytes from userspace address uva to dst
func (as *Vm_t) User2k(dst []uint8, uva int) defs.Err_t {
	as.Lock_pmap()
	ret := as.User2k_inner(dst, uva)
	as.Unlock_pmap()
	return ret
}

func (as *Vm_t) User2k_inner(dst []uint8, uva int) defs.Err_t {
	as.Lockassert_pmap()
	cnt := 0
	for len(dst) != 0 {
		src, err := as.Userdmap8_inner(uva+cnt, false)
		if err != 0 {
			return err
		}
		did := copy(dst, src)
		dst = dst[did:]
		cnt += did
	}
	return 0
}

func (as *Vm_t) Tlbshoot(startva uintptr, pgcount int) {
	if pgcount == 0 {
		return
	}
	as.Lockassert_pmap()
	as.Tlb.Shootdowns++
	as.Tlb.inval(startva>>PGSHIFT, pgcount)
}

// Copy returns a new address space with private copies of every page. on
// frame exhaustion nothing is left allocated.
func (as *Vm_t) Copy() (*Vm_t, defs.Err_t) {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	nas, err := Mkvm(as.phys, as.Maxvma)
	if err != 0 {
		return nil, err
	}
	nas.Vmregion = as.Vmregion.Copy()
	nas.Heapbase, nas.Heapend = as.Heapbase, as.Heapend
	ok := true
	as.Vmregion.Iter(func(vmi *Vminfo_t) {
		if ok {
			start := vmi.Pgn << PGSHIFT
			end := vmi.end() << PGSHIFT
			ok = Ptecopy(as.phys, nas.Pmap, as.Pmap, start, end)
		}
	})
	if !ok {
		nas.Uvmfree()
		log.Warningf("out of frames copying address space")
		return nil, -defs.ENOMEM
	}
	return nas, 0
}

// Uvmfree releases every frame and page table of the address space.
func (as *Vm_t) Uvmfree() {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	if as.Pmap == nil {
		panic("address space freed twice")
	}
	as.Vmregion.Iter(func(vmi *Vminfo_t) {
		pmfree(as.phys, as.Pmap, vmi.Pgn<<PGSHIFT, vmi.end()<<PGSHIFT)
	})
	pmfree_tables(as.phys, as.Pmap, 2)
	as.phys.Refdown(as.P_pmap)
	as.Pmap, as.P_pmap = nil, 0
	as.Vmregion = Vmregion_t{}
	as.Tlb.flush()
}

// Vmas returns a snapshot of the mappings in address order.
func (as *Vm_t) Vmas() []Vminfo_t {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	var ret []Vminfo_t
	as.Vmregion.Iter(func(vmi *Vminfo_t) {
		ret = append(ret, *vmi)
	})
	return ret
}

// Verify checks the mapping set and that every mapped page owns a frame
// with the mapping's permissions.
func (as *Vm_t) Verify() error {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	if err := as.Vmregion.Verify(); err != nil {
		return err
	}
	var err error
	as.Vmregion.Iter(func(vmi *Vminfo_t) {
		for pgn := vmi.Pgn; err == nil && pgn < vmi.end(); pgn++ {
			pte := Pmap_lookup(as.phys, as.Pmap, pgn<<PGSHIFT)
			if pte == nil || *pte&PTE_OWN == 0 {
				err = fmt.Errorf("page %#x of %v has no frame", pgn<<PGSHIFT, vmi)
			} else if *pte&(PTE_RWX|PTE_U) != vmi.Perms {
				err = fmt.Errorf("page %#x of %v has perms %#x", pgn<<PGSHIFT,
					vmi, *pte&PTE_FLAGS)
			}
		}
	})
	if err != nil {
		return err
	}
	if as.Heapend < as.Heapbase {
		return fmt.Errorf("break %#x below heap base %#x", as.Heapend, as.Heapbase)
	}
	return nil
}

