package vm

import "math/rand"
import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/fdops"
import "github.com/chaoskernel/chaos/mem"
import "github.com/chaoskernel/chaos/stat"

const PGSIZE = mem.PGSIZE
const RW = defs.PROT_READ | defs.PROT_WRITE

func mkvm(t *testing.T, npages int) (*Vm_t, *mem.Physmem_t) {
	phys := mem.Phys_init(npages, mem.DRAMBASE)
	as, err := Mkvm(phys, 64)
	require.Equal(t, defs.Err_t(0), err)
	return as, phys
}

func freepgs(phys *mem.Physmem_t) int {
	f, _ := phys.Pgcount()
	return f
}

func TestMmapDisjoint(t *testing.T) {
	as, _ := mkvm(t, 64)
	a, err := as.Map(0, PGSIZE, RW, false, nil, 0)
	require.Equal(t, defs.Err_t(0), err)
	b, err := as.Map(0, PGSIZE, RW, false, nil, 0)
	require.Equal(t, defs.Err_t(0), err)
	assert.NotEqual(t, a, b)
	assert.True(t, a+PGSIZE <= b || b+PGSIZE <= a)
	for _, vmi := range as.Vmas() {
		assert.Equal(t, 2*PGSIZE, vmi.Len(), "adjacent anon maps merge")
	}

	require.Equal(t, defs.Err_t(0), as.Userwriten(a, 8, 0x1111))
	require.Equal(t, defs.Err_t(0), as.Userwriten(b, 8, 0x2222))
	v, err := as.Userreadn(a, 8)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, 0x1111, v)
	v, _ = as.Userreadn(b, 8)
	assert.Equal(t, 0x2222, v)
	assert.NoError(t, as.Verify())
}

func TestMapZeroFilled(t *testing.T) {
	as, _ := mkvm(t, 64)
	a, err := as.Map(0, 3*PGSIZE, RW, false, nil, 0)
	require.Equal(t, defs.Err_t(0), err)
	buf := make([]uint8, 3*PGSIZE)
	buf[0] = 1
	require.Equal(t, defs.Err_t(0), as.User2k(buf, a))
	assert.Equal(t, make([]uint8, 3*PGSIZE), buf)
}

func TestMapFixed(t *testing.T) {
	as, _ := mkvm(t, 64)
	va, err := as.Map(0x40000, 2*PGSIZE, RW, true, nil, 0)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, 0x40000, va)

	_, err = as.Map(0x40000+PGSIZE, PGSIZE, RW, true, nil, 0)
	assert.Equal(t, -defs.EINVAL, err, "fixed overlap")
	_, err = as.Map(0x40001, PGSIZE, RW, true, nil, 0)
	assert.Equal(t, -defs.EINVAL, err, "unaligned")
	_, err = as.Map(0, PGSIZE, RW, true, nil, 0)
	assert.Equal(t, -defs.EINVAL, err, "page 0")
	_, err = as.Map(0, 0, RW, false, nil, 0)
	assert.Equal(t, -defs.EINVAL, err, "empty")

	// a hint inside a mapping takes the next free range
	va, err = as.Map(0x40000, PGSIZE, defs.PROT_READ, false, nil, 0)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, 0x42000, va)
	assert.NoError(t, as.Verify())
}

func TestUnmapSplit(t *testing.T) {
	as, phys := mkvm(t, 64)
	va, err := as.Map(0x100000, 4*PGSIZE, RW, true, nil, 0)
	require.Equal(t, defs.Err_t(0), err)
	before := freepgs(phys)

	require.Equal(t, defs.Err_t(0), as.Unmap(va+PGSIZE, PGSIZE))
	assert.Equal(t, before+1, freepgs(phys))
	vmas := as.Vmas()
	require.Len(t, vmas, 2)
	assert.Equal(t, va, vmas[0].Start())
	assert.Equal(t, PGSIZE, vmas[0].Len())
	assert.Equal(t, va+2*PGSIZE, vmas[1].Start())
	assert.Equal(t, 2*PGSIZE, vmas[1].Len())
	_, _, err = as.Translate(va+PGSIZE, false)
	assert.Equal(t, -defs.EFAULT, err)

	// already unmapped: no-op
	require.Equal(t, defs.Err_t(0), as.Unmap(va+PGSIZE, PGSIZE))
	require.Equal(t, defs.Err_t(0), as.Unmap(0x900000, PGSIZE))

	// spans both remaining pieces and the hole between them
	require.Equal(t, defs.Err_t(0), as.Unmap(va, 3*PGSIZE))
	vmas = as.Vmas()
	require.Len(t, vmas, 1)
	assert.Equal(t, va+3*PGSIZE, vmas[0].Start())
	assert.Equal(t, before+3, freepgs(phys))
	assert.NoError(t, as.Verify())

	assert.Equal(t, -defs.EINVAL, as.Unmap(va+1, PGSIZE))
	assert.Equal(t, -defs.EINVAL, as.Unmap(va, 0))
}

func TestUnmapVmaLimit(t *testing.T) {
	phys := mem.Phys_init(64, mem.DRAMBASE)
	as, _ := Mkvm(phys, 1)
	va, err := as.Map(0x100000, 3*PGSIZE, RW, true, nil, 0)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, -defs.ENOMEM, as.Unmap(va+PGSIZE, PGSIZE))
	vmas := as.Vmas()
	require.Len(t, vmas, 1)
	assert.Equal(t, 3*PGSIZE, vmas[0].Len())
	_, _, err = as.Translate(va+PGSIZE, true)
	assert.Equal(t, defs.Err_t(0), err, "failed unmap changed nothing")
}

func TestBrk(t *testing.T) {
	as, _ := mkvm(t, 64)
	base := 0x10000
	as.Setheap(base)
	cur, err := as.Brk(0)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, base, cur)

	cur, err = as.Brk(base + 100)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, base+100, cur)
	require.Equal(t, defs.Err_t(0), as.Userwriten(base+96, 4, 7))

	old, err := as.Grow_heap(PGSIZE)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, base+100, old)
	cur, _ = as.Brk(0)
	assert.Equal(t, base+100+PGSIZE, cur)
	vmas := as.Vmas()
	require.Len(t, vmas, 1)
	assert.Equal(t, VHEAP, vmas[0].Mtype)
	assert.Equal(t, 2*PGSIZE, vmas[0].Len())

	// collision with the next mapping leaves the break unchanged
	_, err = as.Map(base+3*PGSIZE, PGSIZE, RW, true, nil, 0)
	require.Equal(t, defs.Err_t(0), err)
	_, err = as.Brk(base + 3*PGSIZE + 1)
	assert.Equal(t, -defs.ENOMEM, err)
	cur, _ = as.Brk(0)
	assert.Equal(t, base+100+PGSIZE, cur)

	_, err = as.Brk(base - 1)
	assert.Equal(t, -defs.EINVAL, err)

	// shrinking to the base drops the heap mapping
	cur, err = as.Brk(base)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, base, cur)
	for _, vmi := range as.Vmas() {
		assert.NotEqual(t, VHEAP, vmi.Mtype)
	}
	_, _, err = as.Translate(base, false)
	assert.Equal(t, -defs.EFAULT, err)
	assert.NoError(t, as.Verify())
}

func TestCopyIsolation(t *testing.T) {
	as, phys := mkvm(t, 64)
	va, err := as.Map(0, 2*PGSIZE, RW, false, nil, 0)
	require.Equal(t, defs.Err_t(0), err)
	as.Setheap(0x10000)
	_, err = as.Brk(0x10000 + 10)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, defs.Err_t(0), as.Userwriten(va, 8, 1))

	nas, err := as.Copy()
	require.Equal(t, defs.Err_t(0), err)
	v, _ := nas.Userreadn(va, 8)
	assert.Equal(t, 1, v)
	require.Equal(t, defs.Err_t(0), nas.Userwriten(va, 8, 2))
	require.Equal(t, defs.Err_t(0), as.Userwriten(va+PGSIZE, 8, 3))
	v, _ = as.Userreadn(va, 8)
	assert.Equal(t, 1, v)
	v, _ = nas.Userreadn(va+PGSIZE, 8)
	assert.Equal(t, 0, v)
	cur, _ := nas.Brk(0)
	assert.Equal(t, 0x10000+10, cur)
	assert.NoError(t, nas.Verify())

	pa, _, _ := as.Translate(va, false)
	npa, _, _ := nas.Translate(va, false)
	assert.NotEqual(t, pa, npa)

	before := freepgs(phys)
	nas.Uvmfree()
	assert.True(t, freepgs(phys) > before)
	assert.Panics(t, func() { nas.Uvmfree() })
}

func TestCopyOOM(t *testing.T) {
	// root + 2 tables + 4 frames fit; a second copy of 4 frames does not
	as, phys := mkvm(t, 10)
	_, err := as.Map(0, 4*PGSIZE, RW, false, nil, 0)
	require.Equal(t, defs.Err_t(0), err)
	before := freepgs(phys)
	_, err = as.Copy()
	assert.Equal(t, -defs.ENOMEM, err)
	assert.Equal(t, before, freepgs(phys), "failed copy leaks nothing")
}

func TestMapOOM(t *testing.T) {
	as, phys := mkvm(t, 8)
	before := freepgs(phys)
	_, err := as.Map(0, 16*PGSIZE, RW, false, nil, 0)
	assert.Equal(t, -defs.ENOMEM, err)
	assert.Equal(t, before, freepgs(phys))
	assert.Empty(t, as.Vmas())
}

func TestUvmfree(t *testing.T) {
	phys := mem.Phys_init(64, mem.DRAMBASE)
	start := freepgs(phys)
	as, _ := Mkvm(phys, 64)
	_, err := as.Map(0, 5*PGSIZE, RW, false, nil, 0)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, defs.Err_t(0), as.Map_stack(0x100000000, 4*PGSIZE))
	as.Uvmfree()
	assert.Equal(t, start, freepgs(phys))
}

func TestTranslatePerms(t *testing.T) {
	as, _ := mkvm(t, 64)
	ro, err := as.Map(0, PGSIZE, defs.PROT_READ, false, nil, 0)
	require.Equal(t, defs.Err_t(0), err)
	none, err := as.Map(0, PGSIZE, defs.PROT_NONE, false, nil, 0)
	require.Equal(t, defs.Err_t(0), err)

	_, perms, err := as.Translate(ro, false)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, PTE_U|PTE_R, perms)
	_, _, err = as.Translate(ro, true)
	assert.Equal(t, -defs.EFAULT, err)
	_, _, err = as.Translate(none, false)
	assert.Equal(t, -defs.EFAULT, err)
	_, _, err = as.Translate(-1, false)
	assert.Equal(t, -defs.EFAULT, err)
	_, _, err = as.Translate(USERMAX, false)
	assert.Equal(t, -defs.EFAULT, err)
	assert.Equal(t, -defs.EFAULT, as.K2user([]uint8{1}, ro))
	assert.NoError(t, as.Verify())
}

func TestTlbShootdown(t *testing.T) {
	as, _ := mkvm(t, 64)
	va, err := as.Map(0, PGSIZE, RW, false, nil, 0)
	require.Equal(t, defs.Err_t(0), err)
	_, _, err = as.Translate(va, false)
	require.Equal(t, defs.Err_t(0), err)
	_, _, err = as.Translate(va, false)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, 1, as.Tlb.Hits)
	require.Equal(t, defs.Err_t(0), as.Unmap(va, PGSIZE))
	assert.Equal(t, 0, as.Tlb.Len())
	_, _, err = as.Translate(va, false)
	assert.Equal(t, -defs.EFAULT, err, "no stale translation")
}

func TestUserstr(t *testing.T) {
	as, _ := mkvm(t, 64)
	va, err := as.Map(0, 2*PGSIZE, RW, false, nil, 0)
	require.Equal(t, defs.Err_t(0), err)
	// straddle the page boundary
	s := va + PGSIZE - 3
	require.Equal(t, defs.Err_t(0), as.K2user([]uint8("hello\x00"), s))
	us, err := as.Userstr(s, 64)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, "hello", us.String())
	_, err = as.Userstr(s, 4)
	assert.Equal(t, -defs.ENAMETOOLONG, err)

	require.Equal(t, defs.Err_t(0), as.Userwriten(va+PGSIZE-4, 8, 0x0102030405060708))
	v, err := as.Userreadn(va+PGSIZE-4, 8)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, 0x0102030405060708, v)

	require.Equal(t, defs.Err_t(0), as.Userwriten(va, 8, 3))
	require.Equal(t, defs.Err_t(0), as.Userwriten(va+8, 8, 5))
	sec, nsec, err := as.Usertimespec(va)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, 3, sec)
	assert.Equal(t, 5, nsec)
	require.Equal(t, defs.Err_t(0), as.Userwriten(va+8, 8, 1e9))
	_, _, err = as.Usertimespec(va)
	assert.Equal(t, -defs.EINVAL, err)
}

func TestUserbuf(t *testing.T) {
	as, _ := mkvm(t, 64)
	va, err := as.Map(0, 2*PGSIZE, RW, false, nil, 0)
	require.Equal(t, defs.Err_t(0), err)
	ub := as.Mkuserbuf(va+PGSIZE-2, 4)
	n, err := ub.Uiowrite([]uint8{1, 2, 3, 4, 5})
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 0, ub.Remain())
	got := make([]uint8, 4)
	require.Equal(t, defs.Err_t(0), as.User2k(got, va+PGSIZE-2))
	assert.Equal(t, []uint8{1, 2, 3, 4}, got)

	ub = as.Mkuserbuf(va+2*PGSIZE-2, 4)
	n, err = ub.Uioread(got)
	assert.Equal(t, 2, n)
	assert.Equal(t, -defs.EFAULT, err)
}

func TestMapImage(t *testing.T) {
	as, _ := mkvm(t, 64)
	data := []uint8{0xde, 0xad, 0xbe, 0xef}
	require.Equal(t, defs.Err_t(0), as.Map_image(0x10010, 2*PGSIZE, defs.PROT_READ|defs.PROT_EXEC, data))
	got := make([]uint8, 6)
	require.Equal(t, defs.Err_t(0), as.User2k(got, 0x1000e))
	assert.Equal(t, []uint8{0, 0, 0xde, 0xad, 0xbe, 0xef}, got)
	vmas := as.Vmas()
	require.Len(t, vmas, 1)
	assert.Equal(t, 0x10000, vmas[0].Start())
	assert.Equal(t, 3*PGSIZE, vmas[0].Len())
	assert.Equal(t, -defs.EINVAL, as.Map_image(0x11000, 10, defs.PROT_READ, nil))
}

type memfile_t struct {
	data []uint8
}

func (f *memfile_t) Close() defs.Err_t                { return 0 }
func (f *memfile_t) Fstat(*stat.Stat_t) defs.Err_t     { return 0 }
func (f *memfile_t) Lseek(int, int) (int, defs.Err_t)  { return 0, -defs.ESPIPE }
func (f *memfile_t) Reopen() defs.Err_t               { return 0 }
func (f *memfile_t) Truncate(uint) defs.Err_t         { return -defs.EINVAL }
func (f *memfile_t) Read(fdops.Userio_i) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}
func (f *memfile_t) Write(fdops.Userio_i) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}
func (f *memfile_t) Pwrite(fdops.Userio_i, int) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}
func (f *memfile_t) Getdents(fdops.Userio_i) (int, defs.Err_t) {
	return 0, -defs.ENOTDIR
}
func (f *memfile_t) Pread(dst fdops.Userio_i, off int) (int, defs.Err_t) {
	if off >= len(f.data) {
		return 0, 0
	}
	return dst.Uiowrite(f.data[off:])
}

func TestMapFile(t *testing.T) {
	as, _ := mkvm(t, 64)
	f := &memfile_t{data: make([]uint8, PGSIZE+10)}
	for i := range f.data {
		f.data[i] = uint8(i)
	}
	va, err := as.Map(0, 3*PGSIZE, defs.PROT_READ, false, f, 0)
	require.Equal(t, defs.Err_t(0), err)
	got := make([]uint8, 12)
	require.Equal(t, defs.Err_t(0), as.User2k(got, va+PGSIZE))
	assert.Equal(t, f.data[PGSIZE:PGSIZE+10], got[:10])
	assert.Equal(t, []uint8{0, 0}, got[10:])
	vmas := as.Vmas()
	require.Len(t, vmas, 1)
	assert.Equal(t, VFILE, vmas[0].Mtype)

	_, err = as.Map(0, PGSIZE, defs.PROT_READ, false, f, 5)
	assert.Equal(t, -defs.EINVAL, err)
}

// random mmap/munmap keeps the mapping set sorted and disjoint
func TestRandomMaps(t *testing.T) {
	as, phys := mkvm(t, 512)
	start := freepgs(phys)
	r := rand.New(rand.NewSource(1))
	base := 0x1000000
	for i := 0; i < 300; i++ {
		va := base + r.Intn(64)*PGSIZE
		l := (1 + r.Intn(6)) * PGSIZE
		if r.Intn(2) == 0 {
			prot := RW
			if r.Intn(3) == 0 {
				prot = defs.PROT_READ
			}
			as.Map(va, l, prot, r.Intn(2) == 0, nil, 0)
		} else {
			as.Unmap(va, l)
		}
		require.NoError(t, as.Verify(), "step %v", i)
	}
	require.Equal(t, defs.Err_t(0), as.Unmap(base, 0x1000000))
	assert.Empty(t, as.Vmas())
	// only page tables remain
	assert.True(t, start-freepgs(phys) <= 4)
}
