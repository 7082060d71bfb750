package kernel

import "context"
import "io"
import "testing"
import "time"

import "github.com/google/uuid"
import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/chaoskernel/chaos/afsfs"
import "github.com/chaoskernel/chaos/config"
import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/hart"
import "github.com/chaoskernel/chaos/klog"
import "github.com/chaoskernel/chaos/timer"
import "github.com/chaoskernel/chaos/ustr"

// mkrealk builds a kernel on the real clock for Run.
func mkrealk(t *testing.T, nharts int, init *hart.Prog_t) *Kernel_t {
	klog.Quiet(io.Discard)
	cfg := config.Default()
	cfg.Kernel.Harts = nharts
	cfg.Kernel.Pages = 2048
	cfg.Kernel.TickMs = 1
	fs, err := afsfs.MkFs("mem://localhost/" + uuid.NewString())
	require.NoError(t, err)
	progs := hart.MkProgs()
	var harts []Hart_i
	for i := 0; i < nharts; i++ {
		harts = append(harts, hart.MkHart(i, progs))
	}
	k := Mkkernel(cfg, fs, timer.MkRealclock(), MkConsole(nil, io.Discard), harts)
	k.Boot(progs.Register(init), ustr.Ustr("/"+init.Name))
	return k
}

func sleepms(p *hart.Prog_t, ms int) *hart.Prog_t {
	ts := p.Buf(64)
	return p.Li(hart.T0, ts).
		Li(hart.T1, ms/1000).
		Sd(hart.T1, hart.T0, 0).
		Li(hart.T1, ms%1000*1000*1000).
		Sd(hart.T1, hart.T0, 8).
		Ecall(defs.SYS_NANOSLEEP, hart.I(ts), hart.I(0))
}

func TestRun(t *testing.T) {
	r := mkrec()
	p := hart.Mkprog("init")
	st := p.Buf(0)
	p.Ecall(defs.SYS_CLONE, hart.I(defs.SIGCHLD), hart.I(0)).
		Bne(hart.A0, 0, "second").
		Compute(500)
	sleepms(p, 5).
		Hook(r.a0("slept")).
		Exit(1).
		Label("second").
		Ecall(defs.SYS_CLONE, hart.I(defs.SIGCHLD), hart.I(0)).
		Bne(hart.A0, 0, "parent").
		Compute(500).
		Exit(2).
		Label("parent").
		Ecall(defs.SYS_WAIT4, hart.I(-1), hart.I(st), hart.I(0), hart.I(0)).
		Hook(r.word("s1", st, 4)).
		Ecall(defs.SYS_WAIT4, hart.I(-1), hart.I(st), hart.I(0), hart.I(0)).
		Hook(r.word("s2", st, 4)).
		Ecall(defs.SYS_WAIT4, hart.I(-1), hart.I(st), hart.I(0), hart.I(0)).
		Hook(r.a0("none")).
		Exit(5)
	k := mkrealk(t, 2, p)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	status, err := k.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, defs.Mkexitcode(5), status)
	assert.Equal(t, 0, r.get(t, "slept"))
	codes := []int{defs.Exitcode(r.get(t, "s1")), defs.Exitcode(r.get(t, "s2"))}
	assert.ElementsMatch(t, []int{1, 2}, codes)
	assert.Equal(t, int(-defs.ECHILD), r.get(t, "none"))
	assert.Equal(t, 0, k.Sched.Ready())
}

func TestRunCancel(t *testing.T) {
	p := hart.Mkprog("init")
	sleepms(p, 60*1000).Exit(0)
	k := mkrealk(t, 1, p)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := k.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	halted, _ := k.Pt.Halted()
	assert.False(t, halted)
	assert.Equal(t, 1, k.Wq.Blocked())
}

func TestRunNoInit(t *testing.T) {
	klog.Quiet(io.Discard)
	fs, err := afsfs.MkFs("mem://localhost/" + uuid.NewString())
	require.NoError(t, err)
	k := Mkkernel(config.Default(), fs, timer.MkRealclock(),
		MkConsole(nil, io.Discard), []Hart_i{hart.MkHart(0, hart.MkProgs())})
	_, err = k.Run(context.Background())
	assert.Error(t, err)
}
