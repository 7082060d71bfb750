package kernel

import "context"
import "fmt"
import "sync"
import "time"

import "github.com/google/uuid"
import "github.com/op/go-logging"

import "github.com/chaoskernel/chaos/config"
import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/fdops"
import "github.com/chaoskernel/chaos/limits"
import "github.com/chaoskernel/chaos/mem"
import "github.com/chaoskernel/chaos/proc"
import "github.com/chaoskernel/chaos/sched"
import "github.com/chaoskernel/chaos/timer"
import "github.com/chaoskernel/chaos/ustr"
import "github.com/chaoskernel/chaos/vm"

var log = logging.MustGetLogger("kernel")

// Hart_i runs user code until the next trap and returns scause and stval.
// on an ecall sepc still points at the ecall.
type Hart_i interface {
	Userrun(tf *defs.Tf_t, as *vm.Vm_t) (uintptr, uintptr)
	Id() int
}

// Kernel_t ties the process table, the scheduler and the wait queue to the
// harts, the clock and the filesystem.
type Kernel_t struct {
	Phys  *mem.Physmem_t
	Pt    *proc.Ptable_t
	Sched *sched.Sched_t
	Wq    *sched.Waitq_t
	Fs    fdops.Fs_i
	Clock timer.Clock_i
	Cons  *Console_t
	Uname config.Uname_t
	// stamped in the boot log
	Bootid uuid.UUID

	// pipe ids name their wait queues
	npipe int64

	tick  time.Duration
	boot  int64
	cpus  []*Cpu_t
	sweep sync.Mutex
}

// Mkkernel builds a kernel with one scheduler core per hart.
func Mkkernel(cfg *config.Config_t, fs fdops.Fs_i, clock timer.Clock_i,
	cons *Console_t, harts []Hart_i) *Kernel_t {
	if len(harts) == 0 {
		panic("no harts")
	}
	k := &Kernel_t{Fs: fs, Clock: clock, Cons: cons, Uname: cfg.Uname}
	k.Bootid = uuid.New()
	if k.Uname.Domainname == "" {
		k.Uname.Domainname = k.Bootid.String()
	}
	k.Phys = mem.Phys_init(cfg.Npages(), mem.DRAMBASE)
	lim := limits.MkSysLimit(cfg.Limits.Procs, cfg.Limits.Nofile,
		cfg.Limits.Vmas)
	lim.Pipes = limits.Sysatomic_t(cfg.Limits.Pipes)
	k.Pt = proc.MkPtable(k.Phys, lim)
	k.Sched = sched.MkSched(len(harts), cfg.Kernel.Quantum)
	k.Wq = sched.MkWaitq(k.Sched)
	k.Pt.Set_waker(k.Wq)
	k.tick = time.Duration(cfg.Kernel.TickMs) * time.Millisecond
	k.boot = clock.Now()
	for i, h := range harts {
		k.cpus = append(k.cpus, &Cpu_t{k: k, id: i, hart: h})
	}
	log.Infof("boot %v: %v harts, %v frames", k.Bootid, len(harts),
		len(k.Phys.Pgs))
	return k
}

// Boot loads init from image and makes it runnable. its descriptors 0, 1
// and 2 are the console.
func (k *Kernel_t) Boot(image []uint8, path ustr.Ustr) *proc.Proc_t {
	p := k.Pt.Create_initial(image, path, k.Cons.Stdfds())
	k.Sched.Enqueue(p)
	return p
}

// Install writes image to path so that execve can find it.
func (k *Kernel_t) Install(path ustr.Ustr, image []uint8) defs.Err_t {
	f, err := k.Fs.Fs_open(path, defs.O_WRONLY|defs.O_CREAT|defs.O_TRUNC, 0755)
	if err != 0 {
		return err
	}
	defer f.Close()
	n, err := f.Write(vm.Mkfakebuf(image))
	if err != 0 {
		return err
	}
	if n != len(image) {
		return -defs.EIO
	}
	return 0
}

func (k *Kernel_t) Cpu(i int) *Cpu_t {
	return k.cpus[i]
}

func (k *Kernel_t) Ncpu() int {
	return len(k.cpus)
}

// Tick wakes the tasks whose sleep deadline passed.
func (k *Kernel_t) Tick() int {
	k.sweep.Lock()
	defer k.sweep.Unlock()
	return k.Wq.Sweep(k.Clock.Now())
}

// Uptime is nanoseconds since boot.
func (k *Kernel_t) Uptime() int64 {
	return k.Clock.Now() - k.boot
}

// Run drives every hart in its own goroutine and a timer that sweeps sleep
// deadlines, until init exits or ctx is done. returns init's wait status.
func (k *Kernel_t) Run(ctx context.Context) (int, error) {
	if k.Pt.Init() == nil {
		return 0, fmt.Errorf("kernel: no init")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, c := range k.cpus {
		wg.Add(1)
		go func(c *Cpu_t) {
			defer wg.Done()
			c.Loop(ctx)
			if halted, _ := k.Pt.Halted(); halted {
				cancel()
			}
		}(c)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(k.tick)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				k.Tick()
			}
		}
	}()
	wg.Wait()

	if halted, st := k.Pt.Halted(); halted {
		log.Infof("init exited with %#x", st)
		return st, nil
	}
	return 0, ctx.Err()
}
