package defs

type Pid_t int

type Inum_t int

// scause values delivered by a hart
const (
	INTERRUPT       uintptr = 1 << 63
	EXC_INST_MISA   uintptr = 0
	EXC_ILLEGAL     uintptr = 2
	EXC_BREAKPOINT  uintptr = 3
	EXC_LOAD_FAULT  uintptr = 5
	EXC_STORE_FAULT uintptr = 7
	EXC_UECALL      uintptr = 8
	EXC_INST_PGFLT  uintptr = 12
	EXC_LOAD_PGFLT  uintptr = 13
	EXC_STORE_PGFLT uintptr = 15
	INT_SSOFT       uintptr = INTERRUPT | 1
	INT_STIMER      uintptr = INTERRUPT | 5
	INT_SEXT        uintptr = INTERRUPT | 9
)

// trapframe layout: x0-x31 followed by sepc and sstatus
const (
	TF_RA      = 1
	TF_SP      = 2
	TF_GP      = 3
	TF_TP      = 4
	TF_A0      = 10
	TF_A1      = 11
	TF_A2      = 12
	TF_A3      = 13
	TF_A4      = 14
	TF_A5      = 15
	TF_A6      = 16
	TF_A7      = 17
	TF_SEPC    = 32
	TF_SSTATUS = 33
	TFSIZE     = 34

	// sstatus bits
	SSTATUS_SPIE = 1 << 5
	SSTATUS_SPP  = 1 << 8
	SSTATUS_SUM  = 1 << 18
)

type Tf_t [TFSIZE]uintptr

// Isintr reports whether scause is an interrupt rather than an exception.
func Isintr(cause uintptr) bool {
	return cause&INTERRUPT != 0
}

// Trapname is for diagnostics.
func Trapname(cause uintptr) string {
	switch cause {
	case EXC_INST_MISA:
		return "instruction misaligned"
	case EXC_ILLEGAL:
		return "illegal instruction"
	case EXC_BREAKPOINT:
		return "breakpoint"
	case EXC_LOAD_FAULT:
		return "load access fault"
	case EXC_STORE_FAULT:
		return "store access fault"
	case EXC_UECALL:
		return "ecall"
	case EXC_INST_PGFLT:
		return "instruction page fault"
	case EXC_LOAD_PGFLT:
		return "load page fault"
	case EXC_STORE_PGFLT:
		return "store page fault"
	case INT_SSOFT:
		return "software interrupt"
	case INT_STIMER:
		return "timer interrupt"
	case INT_SEXT:
		return "external interrupt"
	}
	return "unknown trap"
}
