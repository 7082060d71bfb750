package hart

import "fmt"

import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/mem"
import "github.com/chaoskernel/chaos/vm"

// integer registers
const (
	ZERO = 0
	RA   = 1
	SP   = 2
	T0   = 5
	T1   = 6
	T2   = 7
	S0   = 8
	S1   = 9
	A0   = 10
	A1   = 11
	A2   = 12
	A3   = 13
	A4   = 14
	A5   = 15
	A6   = 16
	A7   = 17
	S2   = 18
	S3   = 19
	S4   = 20
	S5   = 21
)

// image layout of a program
const (
	TEXTVA    = 0x10000
	HDRSZ     = 64
	ENTRY     = TEXTVA + HDRSZ
	DATAVA    = 0x20000
	SCRATCHVA = DATAVA + mem.PGSIZE
	SCRATCHSZ = 2 * mem.PGSIZE
	// steps fit below the data segment
	MAXSTEPS = (DATAVA - ENTRY) / 4
)

var magic = [8]uint8{'C', 'H', 'A', 'O', 'S', 'P', 'R', 'G'}

type op_t int

const (
	op_ecall op_t = iota
	op_li
	op_mv
	op_addi
	op_ld
	op_sd
	op_beq
	op_bne
	op_blt
	op_j
	op_compute
	op_illegal
	op_hook
)

type argkind_t int

const (
	aimm argkind_t = iota
	areg
)

// Arg_t is a syscall argument: an immediate or a register.
type Arg_t struct {
	kind argkind_t
	v    int
}

func I(v int) Arg_t {
	return Arg_t{kind: aimm, v: v}
}

func R(reg int) Arg_t {
	return Arg_t{kind: areg, v: reg}
}

func (a Arg_t) val(tf *defs.Tf_t) uintptr {
	if a.kind == areg {
		return tf[a.v]
	}
	return uintptr(a.v)
}

type step_t struct {
	op    op_t
	sysno int
	args  []Arg_t
	rd    int
	rs    int
	imm   int
	label string
	hook  func(*defs.Tf_t, *vm.Vm_t)
}

// Prog_t is a scripted user program. each step occupies one 4-byte
// instruction slot starting at ENTRY. strings and argv arrays live in the
// data page; a zeroed scratch area follows it.
type Prog_t struct {
	Name   string
	steps  []step_t
	data   []uint8
	labels map[string]int
}

func Mkprog(name string) *Prog_t {
	if len(name) >= HDRSZ-len(magic) {
		panic("name too long")
	}
	return &Prog_t{Name: name, labels: make(map[string]int)}
}

func (p *Prog_t) Len() int {
	return len(p.steps)
}

func (p *Prog_t) _add(s step_t) *Prog_t {
	if len(p.steps) >= MAXSTEPS {
		panic("program too long")
	}
	p.steps = append(p.steps, s)
	return p
}

func (p *Prog_t) _data(b []uint8) int {
	va := DATAVA + len(p.data)
	p.data = append(p.data, b...)
	for len(p.data)%8 != 0 {
		p.data = append(p.data, 0)
	}
	if len(p.data) > mem.PGSIZE {
		panic("data page full")
	}
	return va
}

// Str places a NUL-terminated copy of s in the data page and returns its
// user address.
func (p *Prog_t) Str(s string) int {
	b := append([]uint8(s), 0)
	return p._data(b)
}

// Argv places a NULL-terminated pointer array for args.
func (p *Prog_t) Argv(args ...string) int {
	ptrs := make([]uint8, 8*(len(args)+1))
	for i, a := range args {
		va := p.Str(a)
		for j := 0; j < 8; j++ {
			ptrs[8*i+j] = uint8(va >> (8 * uint(j)))
		}
	}
	return p._data(ptrs)
}

// Buf returns the user address of off in the scratch area.
func (p *Prog_t) Buf(off int) int {
	if off < 0 || off >= SCRATCHSZ {
		panic("scratch offset")
	}
	return SCRATCHVA + off
}

// Label names the next step.
func (p *Prog_t) Label(name string) *Prog_t {
	if _, ok := p.labels[name]; ok {
		panic("dup label " + name)
	}
	p.labels[name] = len(p.steps)
	return p
}

// Ecall issues syscall sysno with args in a0..a5.
func (p *Prog_t) Ecall(sysno int, args ...Arg_t) *Prog_t {
	if len(args) > 6 {
		panic("too many args")
	}
	return p._add(step_t{op: op_ecall, sysno: sysno, args: args})
}

func (p *Prog_t) Exit(code int) *Prog_t {
	return p.Ecall(defs.SYS_EXIT, I(code))
}

func (p *Prog_t) Li(rd, imm int) *Prog_t {
	return p._add(step_t{op: op_li, rd: rd, imm: imm})
}

func (p *Prog_t) Mv(rd, rs int) *Prog_t {
	return p._add(step_t{op: op_mv, rd: rd, rs: rs})
}

func (p *Prog_t) Addi(rd, rs, imm int) *Prog_t {
	return p._add(step_t{op: op_addi, rd: rd, rs: rs, imm: imm})
}

// Ld loads the doubleword at rs+off into rd.
func (p *Prog_t) Ld(rd, rs, off int) *Prog_t {
	return p._add(step_t{op: op_ld, rd: rd, rs: rs, imm: off})
}

// Sd stores rd to the doubleword at rs+off.
func (p *Prog_t) Sd(rd, rs, off int) *Prog_t {
	return p._add(step_t{op: op_sd, rd: rd, rs: rs, imm: off})
}

func (p *Prog_t) Beq(rs, imm int, label string) *Prog_t {
	return p._add(step_t{op: op_beq, rs: rs, imm: imm, label: label})
}

func (p *Prog_t) Bne(rs, imm int, label string) *Prog_t {
	return p._add(step_t{op: op_bne, rs: rs, imm: imm, label: label})
}

func (p *Prog_t) Blt(rs, imm int, label string) *Prog_t {
	return p._add(step_t{op: op_blt, rs: rs, imm: imm, label: label})
}

func (p *Prog_t) J(label string) *Prog_t {
	return p._add(step_t{op: op_j, label: label})
}

// Compute burns n timer ticks of user time.
func (p *Prog_t) Compute(n int) *Prog_t {
	for i := 0; i < n; i++ {
		p._add(step_t{op: op_compute})
	}
	return p
}

func (p *Prog_t) Illegal() *Prog_t {
	return p._add(step_t{op: op_illegal})
}

// Hook runs f in user context; tests use it to observe registers and
// memory.
func (p *Prog_t) Hook(f func(*defs.Tf_t, *vm.Vm_t)) *Prog_t {
	return p._add(step_t{op: op_hook, hook: f})
}

// Check verifies that every branch target exists.
func (p *Prog_t) Check() error {
	for i, s := range p.steps {
		if s.label == "" {
			continue
		}
		if _, ok := p.labels[s.label]; !ok {
			return fmt.Errorf("%v: step %v: no label %q", p.Name, i, s.label)
		}
	}
	return nil
}
