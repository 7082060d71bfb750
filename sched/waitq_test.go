package sched

import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/chaoskernel/chaos/proc"

// running returns a task picked from the scheduler.
func running(t *testing.T, s *Sched_t, pid int) *proc.Proc_t {
	p := mkp(pid)
	p.Core = 0
	s.Enqueue(p)
	got := s.Pick_next(0)
	require.Equal(t, p, got)
	return p
}

func TestBlockWake(t *testing.T) {
	s := MkSched(1, 1)
	wq := MkWaitq(s)
	key := proc.Childkey(7)
	a := running(t, s, 1)
	b := running(t, s, 2)

	assert.True(t, wq.Block_if(a, key, nil))
	assert.True(t, wq.Block_if(b, key, func() bool { return true }))
	assert.Equal(t, proc.BLOCKED, a.Getstate())
	assert.Equal(t, key, a.Blockkey)
	assert.Equal(t, 2, wq.Waiting(key))

	assert.Equal(t, 1, wq.Wake_one(key))
	assert.Equal(t, a, s.Pick_next(0))
	assert.Equal(t, 1, wq.Wake_all(key))
	assert.Equal(t, b, s.Pick_next(0))
	assert.Equal(t, 0, wq.Wake_all(key))
	assert.Equal(t, 0, wq.Blocked())
}

func TestBlockCondFalse(t *testing.T) {
	s := MkSched(1, 1)
	wq := MkWaitq(s)
	a := running(t, s, 1)
	assert.False(t, wq.Block_if(a, proc.Childkey(1), func() bool { return false }))
	assert.Equal(t, proc.RUNNING, a.Getstate())
	assert.Equal(t, 0, wq.Blocked())
}

func TestOneQueue(t *testing.T) {
	s := MkSched(1, 1)
	wq := MkWaitq(s)
	a := running(t, s, 1)
	wq.Block_if(a, proc.Childkey(1), nil)
	assert.Panics(t, func() { wq.Block_if(a, proc.Resourcekey(3), nil) })
}

func TestSleepSweep(t *testing.T) {
	s := MkSched(1, 1)
	wq := MkWaitq(s)
	a := running(t, s, 1)
	b := running(t, s, 2)
	c := running(t, s, 3)

	assert.False(t, wq.Sleep(c, 50, 100))
	assert.True(t, wq.Sleep(a, 300, 100))
	assert.True(t, wq.Sleep(b, 200, 100))
	dl, ok := wq.Next_deadline()
	require.True(t, ok)
	assert.Equal(t, int64(200), dl)

	assert.Equal(t, 0, wq.Sweep(199))
	assert.Equal(t, 1, wq.Sweep(200))
	assert.Equal(t, b, s.Pick_next(0))
	assert.Equal(t, 1, wq.Sweep(1000))
	assert.Equal(t, a, s.Pick_next(0))
	_, ok = wq.Next_deadline()
	assert.False(t, ok)
}

func TestSleepStaleDeadline(t *testing.T) {
	s := MkSched(1, 1)
	wq := MkWaitq(s)
	a := running(t, s, 1)
	require.True(t, wq.Sleep(a, 100, 0))
	// woken early through its key, then sleeps again
	assert.Equal(t, 1, wq.Wake_all(proc.Sleepkey(a.Pid)))
	require.Equal(t, a, s.Pick_next(0))
	require.True(t, wq.Sleep(a, 500, 50))

	assert.Equal(t, 0, wq.Sweep(100))
	assert.Equal(t, proc.BLOCKED, a.Getstate())
	dl, ok := wq.Next_deadline()
	require.True(t, ok)
	assert.Equal(t, int64(500), dl)
	assert.Equal(t, 1, wq.Sweep(500))
}
