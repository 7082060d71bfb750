package hart

import "bytes"
import "debug/elf"
import "io"
import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/mem"
import "github.com/chaoskernel/chaos/vm"

// load maps the PT_LOAD segments of img the way exec does.
func load(t *testing.T, img []uint8) (*vm.Vm_t, defs.Tf_t) {
	ef, err := elf.NewFile(bytes.NewReader(img))
	require.NoError(t, err)
	phys := mem.Phys_init(64, mem.DRAMBASE)
	as, verr := vm.Mkvm(phys, 16)
	require.Equal(t, defs.Err_t(0), verr)
	for _, ph := range ef.Progs {
		data, err := io.ReadAll(ph.Open())
		require.NoError(t, err)
		prot := defs.PROT_READ
		if ph.Flags&elf.PF_W != 0 {
			prot |= defs.PROT_WRITE
		}
		if ph.Flags&elf.PF_X != 0 {
			prot |= defs.PROT_EXEC
		}
		require.Equal(t, defs.Err_t(0),
			as.Map_image(int(ph.Vaddr), int(ph.Memsz), prot, data))
	}
	var tf defs.Tf_t
	tf[defs.TF_SEPC] = uintptr(ef.Entry)
	return as, tf
}

func TestMkelf(t *testing.T) {
	p := Mkprog("hello")
	s := p.Str("/bin/x")
	p.Exit(0)
	img := Mkelf(p)
	ef, err := elf.NewFile(bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, elf.EM_RISCV, ef.Machine)
	assert.Equal(t, elf.ET_EXEC, ef.Type)
	assert.Equal(t, elf.ELFCLASS64, ef.Class)
	assert.Equal(t, uint64(ENTRY), ef.Entry)
	require.Len(t, ef.Progs, 2)
	assert.Equal(t, uint64(TEXTVA), ef.Progs[0].Vaddr)
	assert.Equal(t, uint64(DATAVA), ef.Progs[1].Vaddr)
	assert.Equal(t, DATAVA, s)
}

func TestUserrunSteps(t *testing.T) {
	progs := MkProgs()
	p := Mkprog("steps")
	var seen uintptr
	p.Li(S1, 5).
		Addi(S1, S1, 2).
		Li(T0, p.Buf(16)).
		Sd(S1, T0, 0).
		Ld(S2, T0, 0).
		Hook(func(tf *defs.Tf_t, as *vm.Vm_t) { seen = tf[S2] }).
		Beq(S2, 7, "out").
		Illegal().
		Label("out").
		Ecall(defs.SYS_WRITE, I(1), R(T0), I(8))
	img := progs.Register(p)
	as, tf := load(t, img)
	h := MkHart(0, progs)

	cause, _ := h.Userrun(&tf, as)
	require.Equal(t, defs.EXC_UECALL, cause)
	assert.Equal(t, uintptr(7), seen)
	assert.Equal(t, uintptr(defs.SYS_WRITE), tf[defs.TF_A7])
	assert.Equal(t, uintptr(1), tf[defs.TF_A0])
	assert.Equal(t, uintptr(p.Buf(16)), tf[defs.TF_A1])
	assert.Equal(t, uintptr(8), tf[defs.TF_A2])
	assert.Equal(t, uintptr(ENTRY+4*8), tf[defs.TF_SEPC])

	// the kernel steps over the ecall; the program then falls off its end
	tf[defs.TF_SEPC] += 4
	cause, _ = h.Userrun(&tf, as)
	assert.Equal(t, defs.EXC_ILLEGAL, cause)
}

func TestUserrunTraps(t *testing.T) {
	progs := MkProgs()
	p := Mkprog("traps")
	p.Compute(1).
		Li(T0, 0x7000000).
		Ld(T1, T0, 0).
		Label("st").
		Li(T0, TEXTVA).
		Sd(T1, T0, 0)
	as, tf := load(t, progs.Register(p))
	h := MkHart(0, progs)

	cause, _ := h.Userrun(&tf, as)
	assert.Equal(t, defs.INT_STIMER, cause)
	cause, tval := h.Userrun(&tf, as)
	assert.Equal(t, defs.EXC_LOAD_PGFLT, cause)
	assert.Equal(t, uintptr(0x7000000), tval)

	// text is not writable
	tf[defs.TF_SEPC] = ENTRY + 4*3
	cause, tval = h.Userrun(&tf, as)
	assert.Equal(t, defs.EXC_STORE_PGFLT, cause)
	assert.Equal(t, uintptr(TEXTVA), tval)

	// executing data
	tf[defs.TF_SEPC] = DATAVA
	cause, _ = h.Userrun(&tf, as)
	assert.Equal(t, defs.EXC_INST_PGFLT, cause)
}

func TestUnknownProgram(t *testing.T) {
	p := Mkprog("ghost")
	p.Exit(0)
	as, tf := load(t, Mkelf(p))
	h := MkHart(0, MkProgs())
	cause, _ := h.Userrun(&tf, as)
	assert.Equal(t, defs.EXC_ILLEGAL, cause)
}

func TestLoopTakesTimer(t *testing.T) {
	progs := MkProgs()
	p := Mkprog("spin")
	p.Label("top").J("top")
	as, tf := load(t, progs.Register(p))
	h := MkHart(0, progs)
	cause, _ := h.Userrun(&tf, as)
	assert.Equal(t, defs.INT_STIMER, cause)
}

func TestCheckLabels(t *testing.T) {
	p := Mkprog("bad")
	p.J("nowhere")
	assert.Error(t, p.Check())
	assert.Panics(t, func() { Mkelf(p) })
}
