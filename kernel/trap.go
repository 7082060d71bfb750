package kernel

import "context"
import "fmt"

import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/proc"

// Cpu_t is the trap loop of one hart. the hart's scheduler core has the
// same index.
type Cpu_t struct {
	k    *Kernel_t
	id   int
	hart Hart_i
	// task on this cpu; only touched by the cpu's own goroutine
	cur *proc.Proc_t
}

func (c *Cpu_t) Id() int {
	return c.id
}

func (c *Cpu_t) Current() *proc.Proc_t {
	return c.cur
}

// Step picks the next ready task of the cpu's core and runs it until it
// leaves the cpu: its slice expires, it yields, blocks or exits. returns
// false when the core has nothing to run.
func (c *Cpu_t) Step() bool {
	p := c.k.Sched.Pick_next(c.id)
	if p == nil {
		return false
	}
	p.Oncpu.Lock()
	c.cur = p
	c._run(p)
	c.cur = nil
	p.Oncpu.Unlock()
	return true
}

// Loop runs tasks until ctx is done or init exits.
func (c *Cpu_t) Loop(ctx context.Context) {
	for ctx.Err() == nil {
		if halted, _ := c.k.Pt.Halted(); halted {
			return
		}
		if c.Step() {
			continue
		}
		if !c.k.Sched.Wait_work(ctx, c.id, c.k.tick) {
			return
		}
	}
}

func (c *Cpu_t) _run(p *proc.Proc_t) {
	clock := c.k.Clock
	for {
		t0 := clock.Now()
		cause, tval := c.hart.Userrun(&p.Tf, p.Vm)
		t1 := clock.Now()
		p.Atime.Utadd(int(t1 - t0))
		on := c.trap(p, cause, tval)
		p.Atime.Systadd(int(clock.Now() - t1))
		if !on {
			return
		}
	}
}

// trap handles one trap of the running task p. returns true if p keeps
// the cpu.
func (c *Cpu_t) trap(p *proc.Proc_t, cause, tval uintptr) bool {
	switch cause {
	case defs.INT_STIMER:
		c.k.Tick()
		return !c.k.Sched.Preempt(c.id, p)
	case defs.EXC_UECALL:
		return c.k.Syscall(p)
	case defs.EXC_INST_PGFLT, defs.EXC_LOAD_PGFLT, defs.EXC_STORE_PGFLT,
		defs.EXC_LOAD_FAULT, defs.EXC_STORE_FAULT, defs.EXC_INST_MISA:
		log.Warningf("%v: %v at %#x, pc %#x", p, defs.Trapname(cause),
			tval, p.Tf[defs.TF_SEPC])
		c.k.Pt.Kill(p, defs.SIGSEGV)
		return false
	case defs.EXC_ILLEGAL, defs.EXC_BREAKPOINT:
		log.Warningf("%v: %v, pc %#x", p, defs.Trapname(cause),
			p.Tf[defs.TF_SEPC])
		c.k.Pt.Kill(p, defs.SIGILL)
		return false
	}
	if defs.Isintr(cause) {
		return true
	}
	panic(fmt.Sprintf("%v: unexpected trap %#x", p, cause))
}
