package hart

import "bytes"
import "sync"
import "sync/atomic"

import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/vm"

// Progs_t maps program names to programs. images built by Mkelf name the
// program they run in their text header.
type Progs_t struct {
	sync.RWMutex
	m map[string]*Prog_t
}

func MkProgs() *Progs_t {
	return &Progs_t{m: make(map[string]*Prog_t)}
}

// Register adds p and returns its image.
func (ps *Progs_t) Register(p *Prog_t) []uint8 {
	img := Mkelf(p)
	ps.Lock()
	ps.m[p.Name] = p
	ps.Unlock()
	return img
}

func (ps *Progs_t) Lookup(name string) (*Prog_t, bool) {
	ps.RLock()
	defer ps.RUnlock()
	p, ok := ps.m[name]
	return p, ok
}

// non-trapping steps a hart runs before it takes a timer interrupt
const maxrun = 1 << 12

// Hart_t is a hart that runs scripted programs in user mode.
type Hart_t struct {
	id    int
	progs *Progs_t
	// steps executed
	Nsteps uint64
}

func MkHart(id int, progs *Progs_t) *Hart_t {
	return &Hart_t{id: id, progs: progs}
}

func (h *Hart_t) Id() int {
	return h.id
}

func (h *Hart_t) _prog(as *vm.Vm_t) (*Prog_t, bool) {
	hdr := make([]uint8, HDRSZ)
	if as.User2k(hdr, TEXTVA) != 0 {
		return nil, false
	}
	if !bytes.Equal(hdr[:len(magic)], magic[:]) {
		return nil, false
	}
	name := string(bytes.TrimRight(hdr[len(magic):], "\x00"))
	return h.progs.Lookup(name)
}

func _setreg(tf *defs.Tf_t, rd int, v uintptr) {
	if rd != ZERO {
		tf[rd] = v
	}
}

// Userrun resumes the user context tf in address space as and runs until
// the next trap. it returns scause and stval.
func (h *Hart_t) Userrun(tf *defs.Tf_t, as *vm.Vm_t) (uintptr, uintptr) {
	prog, ok := h._prog(as)
	if !ok {
		return defs.EXC_ILLEGAL, tf[defs.TF_SEPC]
	}
	for n := 0; n < maxrun; n++ {
		pc := int(tf[defs.TF_SEPC])
		_, perms, err := as.Translate(pc, false)
		if err != 0 || perms&vm.PTE_X == 0 {
			return defs.EXC_INST_PGFLT, uintptr(pc)
		}
		idx := (pc - ENTRY) / 4
		if pc < ENTRY || pc%4 != 0 || idx >= len(prog.steps) {
			return defs.EXC_ILLEGAL, uintptr(pc)
		}
		atomic.AddUint64(&h.Nsteps, 1)
		s := &prog.steps[idx]
		next := uintptr(pc + 4)
		switch s.op {
		case op_ecall:
			var regs [6]uintptr
			for i, a := range s.args {
				regs[i] = a.val(tf)
			}
			for i := range regs {
				tf[defs.TF_A0+i] = regs[i]
			}
			tf[defs.TF_A7] = uintptr(s.sysno)
			// the kernel steps over the ecall
			return defs.EXC_UECALL, 0
		case op_li:
			_setreg(tf, s.rd, uintptr(s.imm))
		case op_mv:
			_setreg(tf, s.rd, tf[s.rs])
		case op_addi:
			_setreg(tf, s.rd, tf[s.rs]+uintptr(s.imm))
		case op_ld:
			va := int(tf[s.rs]) + s.imm
			if _, _, err := as.Translate(va, false); err != 0 {
				return defs.EXC_LOAD_PGFLT, uintptr(va)
			}
			v, err := as.Userreadn(va, 8)
			if err != 0 {
				return defs.EXC_LOAD_PGFLT, uintptr(va)
			}
			_setreg(tf, s.rd, uintptr(v))
		case op_sd:
			va := int(tf[s.rs]) + s.imm
			if _, _, err := as.Translate(va, true); err != 0 {
				return defs.EXC_STORE_PGFLT, uintptr(va)
			}
			if as.Userwriten(va, 8, int(tf[s.rd])) != 0 {
				return defs.EXC_STORE_PGFLT, uintptr(va)
			}
		case op_beq, op_bne, op_blt:
			v := int(tf[s.rs])
			var take bool
			switch s.op {
			case op_beq:
				take = v == s.imm
			case op_bne:
				take = v != s.imm
			case op_blt:
				take = v < s.imm
			}
			if take {
				next = uintptr(ENTRY + 4*prog.labels[s.label])
			}
		case op_j:
			next = uintptr(ENTRY + 4*prog.labels[s.label])
		case op_compute:
			tf[defs.TF_SEPC] = next
			return defs.INT_STIMER, 0
		case op_illegal:
			return defs.EXC_ILLEGAL, uintptr(pc)
		case op_hook:
			s.hook(tf, as)
		}
		tf[defs.TF_SEPC] = next
	}
	return defs.INT_STIMER, 0
}
