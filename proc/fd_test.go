package proc

import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/fd"

func mkfd(f *nopfile_t) *fd.Fd_t {
	return &fd.Fd_t{Fops: f}
}

func TestFdLowest(t *testing.T) {
	p := &Proc_t{Ulim: Ulimit_t{Nofile: 8}}
	f := &nopfile_t{}
	for i := 0; i < 4; i++ {
		n, ok := p.Fd_insert(mkfd(f), fd.FD_READ)
		require.True(t, ok)
		assert.Equal(t, i, n)
	}
	_, ok := p.Fd_del(1)
	require.True(t, ok)
	n, _ := p.Fd_insert(mkfd(f), fd.FD_READ)
	assert.Equal(t, 1, n)
	n, _ = p.Fd_insert(mkfd(f), fd.FD_READ)
	assert.Equal(t, 4, n)
	assert.Equal(t, 5, p.Nfds())

	_, ok = p.Fd_del(1)
	assert.True(t, ok)
	_, ok = p.Fd_del(1)
	assert.False(t, ok)
	_, ok = p.Fd_del(-1)
	assert.False(t, ok)
	_, ok = p.Fd_get(100)
	assert.False(t, ok)
}

func TestFdLimit(t *testing.T) {
	p := &Proc_t{Ulim: Ulimit_t{Nofile: 3}}
	f := &nopfile_t{}
	for i := 0; i < 3; i++ {
		_, ok := p.Fd_insert(mkfd(f), 0)
		require.True(t, ok)
	}
	_, ok := p.Fd_insert(mkfd(f), 0)
	assert.False(t, ok)
	_, err := p.Fd_dup(0)
	assert.Equal(t, -defs.EMFILE, err)
	// the failed dup closed its copy
	assert.Equal(t, 1, f.closed)
}

func TestFdDup(t *testing.T) {
	p := &Proc_t{Ulim: Ulimit_t{Nofile: 16}}
	f := &nopfile_t{refs: 1}
	n, _ := p.Fd_insert(mkfd(f), fd.FD_READ|fd.FD_CLOEXEC)
	d, err := p.Fd_dup(n)
	ok(t, err)
	assert.Equal(t, 1, d)
	assert.Equal(t, 2, f.refs)
	dfd, _ := p.Fd_get(d)
	assert.Equal(t, fd.FD_READ, dfd.Perms)

	_, err = p.Fd_dup(9)
	assert.Equal(t, -defs.EBADF, err)

	old, err := p.Fd_dup3(n, 10, true)
	ok(t, err)
	assert.Nil(t, old)
	nfd, found := p.Fd_get(10)
	require.True(t, found)
	assert.Equal(t, fd.FD_READ|fd.FD_CLOEXEC, nfd.Perms)
	assert.Equal(t, 3, p.Nfds())

	g := &nopfile_t{refs: 1}
	gn, _ := p.Fd_insert(mkfd(g), fd.FD_WRITE)
	old, err = p.Fd_dup3(n, gn, false)
	ok(t, err)
	require.NotNil(t, old)
	assert.Equal(t, g, old.Fops)
	assert.Equal(t, 4, p.Nfds())

	_, err = p.Fd_dup3(n, n, false)
	assert.Equal(t, -defs.EINVAL, err)
	_, err = p.Fd_dup3(n, 16, false)
	assert.Equal(t, -defs.EBADF, err)
}

func TestFdCloseall(t *testing.T) {
	p := &Proc_t{Ulim: Ulimit_t{Nofile: 16}}
	a := &nopfile_t{refs: 1}
	b := &nopfile_t{refs: 1}
	p.Fd_insert(mkfd(a), fd.FD_READ)
	p.Fd_insert(mkfd(b), fd.FD_READ|fd.FD_CLOEXEC)
	p.Fd_closeall(fd.FD_CLOEXEC)
	assert.Equal(t, 0, a.closed)
	assert.Equal(t, 1, b.closed)
	assert.Equal(t, 1, p.Nfds())
	p.Fd_closeall(0)
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 0, p.Nfds())
}

func TestWaitList(t *testing.T) {
	var w Wait_t
	w.Wait_init(1)
	require.True(t, w._start(2, 2))
	require.True(t, w._start(3, 2))
	assert.False(t, w._start(4, 2))
	assert.False(t, w.Haszombie(defs.WAIT_ANY))
	w.putpid(3, 5, nil)
	assert.True(t, w.Haszombie(defs.WAIT_ANY))
	assert.False(t, w.Haszombie(2))
	assert.Panics(t, func() { w.putpid(3, 5, nil) })
	assert.Panics(t, func() { w.putpid(9, 5, nil) })

	wst, reaped, err := w._reap(defs.WAIT_ANY)
	ok(t, err)
	assert.True(t, reaped)
	assert.Equal(t, defs.Pid_t(3), wst.Pid)
	assert.Equal(t, 5, wst.Status)
	assert.Equal(t, []defs.Pid_t{2}, w._pids())

	var iw Wait_t
	iw.Wait_init(1)
	l := w._takeall()
	assert.Equal(t, 0, w.Len())
	assert.Equal(t, 0, iw._adopt(l))
	assert.Equal(t, 1, iw.Len())
}
