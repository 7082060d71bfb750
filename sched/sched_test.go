package sched

import "context"
import "testing"
import "time"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/proc"

func mkp(pid int) *proc.Proc_t {
	return &proc.Proc_t{Pid: defs.Pid_t(pid), Core: -1}
}

func TestPlacementRoundRobin(t *testing.T) {
	s := MkSched(3, 2)
	var ps []*proc.Proc_t
	for i := 0; i < 6; i++ {
		p := mkp(i + 1)
		s.Enqueue(p)
		ps = append(ps, p)
	}
	for i, p := range ps {
		assert.Equal(t, i%3, p.Core)
	}
	for c := 0; c < 3; c++ {
		assert.Equal(t, 2, s.Len(c))
	}
	assert.Equal(t, 6, s.Ready())
}

func TestFairness(t *testing.T) {
	const ntasks = 4
	const quantum = 3
	s := MkSched(1, quantum)
	ran := make(map[defs.Pid_t]int)
	for i := 0; i < ntasks; i++ {
		s.Enqueue(mkp(i + 1))
	}
	// every task gets a full slice within each round of ntasks slices
	for round := 0; round < 10; round++ {
		seen := make(map[defs.Pid_t]bool)
		for i := 0; i < ntasks; i++ {
			p := s.Pick_next(0)
			require.NotNil(t, p)
			assert.Equal(t, proc.RUNNING, p.Getstate())
			assert.False(t, seen[p.Pid], "task %v twice in a round", p.Pid)
			seen[p.Pid] = true
			for tick := 1; tick <= quantum; tick++ {
				ran[p.Pid]++
				switched := s.Preempt(0, p)
				assert.Equal(t, tick == quantum, switched)
			}
		}
		assert.Len(t, seen, ntasks)
	}
	for _, n := range ran {
		assert.Equal(t, 10*quantum, n)
	}
}

func TestYield(t *testing.T) {
	s := MkSched(1, 10)
	a, b := mkp(1), mkp(2)
	s.Enqueue(a)
	s.Enqueue(b)
	p := s.Pick_next(0)
	require.Equal(t, a, p)
	s.Preempt(0, p)
	s.Yield_now(p)
	assert.Equal(t, 0, a.Ticks)
	assert.Equal(t, b, s.Pick_next(0))
	assert.Equal(t, a, s.Pick_next(0))
	assert.Nil(t, s.Pick_next(0))
}

func TestEnqueueInvariants(t *testing.T) {
	s := MkSched(1, 1)
	p := mkp(1)
	s.Enqueue(p)
	assert.Panics(t, func() { s.Enqueue(p) })

	z := mkp(2)
	z.State = proc.ZOMBIE
	assert.Panics(t, func() { s.Enqueue(z) })
}

func TestWaitWork(t *testing.T) {
	s := MkSched(2, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool)
	go func() {
		done <- s.Wait_work(ctx, 1, time.Minute)
	}()
	p := mkp(1)
	p.Core = 1
	s.Enqueue(p)
	assert.True(t, <-done)

	cancel()
	assert.False(t, s.Wait_work(ctx, 0, time.Minute))
	assert.True(t, s.Wait_work(context.Background(), 0, time.Millisecond))
}
