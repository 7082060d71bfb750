package kernel

import "sync"
import "sync/atomic"

import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/fd"
import "github.com/chaoskernel/chaos/fdops"
import "github.com/chaoskernel/chaos/limits"
import "github.com/chaoskernel/chaos/proc"
import "github.com/chaoskernel/chaos/stat"

// bytes a pipe holds. writes of at most PIPE_BUF bytes are not split.
const PIPE_BUF = 4096

// blocker_i is implemented by descriptors whose transfers wait for a peer.
// ready reports whether a read, or a write of n bytes, would make progress
// now. a transfer that would not returns -EAGAIN and, unless the end is
// non-blocking, the caller blocks on waitkey until the other side moves
// data or closes.
type blocker_i interface {
	ready(write bool, n int) bool
	waitkey() proc.Waitkey_t
	nonblocking() bool
}

// pipe_t is a byte ring shared by both ends. head and tail only grow; the
// ring index is their value modulo the buffer size.
type pipe_t struct {
	sync.Mutex
	buf     []uint8
	head    int
	tail    int
	readers int
	writers int
	key     proc.Waitkey_t
	waker   proc.Waker_i
	// returned to when both ends are closed
	lim *limits.Sysatomic_t
}

func (o *pipe_t) used() int {
	return o.head - o.tail
}

func (o *pipe_t) left() int {
	return len(o.buf) - o.used()
}

// copyin moves bytes from src into the free part of the ring.
func (o *pipe_t) copyin(src fdops.Userio_i) (int, defs.Err_t) {
	c := 0
	for o.left() > 0 && src.Remain() > 0 {
		hi := o.head % len(o.buf)
		end := len(o.buf)
		if ti := o.tail % len(o.buf); ti > hi {
			end = ti
		}
		n, err := src.Uioread(o.buf[hi:end])
		o.head += n
		c += n
		if err != 0 {
			if c == 0 {
				return 0, err
			}
			break
		}
		if n == 0 {
			break
		}
	}
	return c, 0
}

// copyout moves buffered bytes to dst.
func (o *pipe_t) copyout(dst fdops.Userio_i) (int, defs.Err_t) {
	c := 0
	for o.used() > 0 && dst.Remain() > 0 {
		ti := o.tail % len(o.buf)
		end := len(o.buf)
		if hi := o.head % len(o.buf); hi > ti {
			end = hi
		}
		n, err := dst.Uiowrite(o.buf[ti:end])
		o.tail += n
		c += n
		if err != 0 {
			if c == 0 {
				return 0, err
			}
			break
		}
		if n == 0 {
			break
		}
	}
	return c, 0
}

func (o *pipe_t) op_read(dst fdops.Userio_i) (int, defs.Err_t) {
	o.Lock()
	if o.used() == 0 {
		w := o.writers
		o.Unlock()
		if w == 0 {
			return 0, 0
		}
		return 0, -defs.EAGAIN
	}
	ret, err := o.copyout(dst)
	o.Unlock()
	if ret > 0 {
		o.waker.Wake_all(o.key)
	}
	return ret, err
}

// _need is the free space a write of n bytes waits for.
func _need(n int) int {
	if n > PIPE_BUF {
		return PIPE_BUF
	}
	return n
}

func (o *pipe_t) op_write(src fdops.Userio_i) (int, defs.Err_t) {
	o.Lock()
	if o.readers == 0 {
		o.Unlock()
		return 0, -defs.EPIPE
	}
	if o.left() < _need(src.Remain()) {
		o.Unlock()
		return 0, -defs.EAGAIN
	}
	ret, err := o.copyin(src)
	o.Unlock()
	if ret > 0 {
		o.waker.Wake_all(o.key)
	}
	return ret, err
}

func (o *pipe_t) ready(write bool, n int) bool {
	o.Lock()
	defer o.Unlock()
	if write {
		return o.readers == 0 || o.left() >= _need(n)
	}
	return o.writers == 0 || o.used() != 0
}

// op_reopen adjusts the open end counts. the last close of either end
// wakes the other side so it sees end of file or EPIPE.
func (o *pipe_t) op_reopen(rd, wd int) defs.Err_t {
	o.Lock()
	o.readers += rd
	o.writers += wd
	if o.readers < 0 || o.writers < 0 {
		panic("pipe end count")
	}
	wake := (rd < 0 && o.readers == 0) || (wd < 0 && o.writers == 0)
	dead := o.readers == 0 && o.writers == 0
	if dead {
		o.buf = nil
	}
	o.Unlock()
	if dead && o.lim != nil {
		o.lim.Give()
	}
	if wake {
		o.waker.Wake_all(o.key)
	}
	return 0
}

type pipefops_t struct {
	pipe     *pipe_t
	writer   bool
	nonblock bool
}

func (of *pipefops_t) Close() defs.Err_t {
	if of.writer {
		return of.pipe.op_reopen(0, -1)
	}
	return of.pipe.op_reopen(-1, 0)
}

func (of *pipefops_t) Reopen() defs.Err_t {
	if of.writer {
		return of.pipe.op_reopen(0, 1)
	}
	return of.pipe.op_reopen(1, 0)
}

func (of *pipefops_t) Fstat(st *stat.Stat_t) defs.Err_t {
	st.Wmode(stat.S_IFIFO | 0600)
	st.Wnlink(1)
	return 0
}

func (of *pipefops_t) Lseek(int, int) (int, defs.Err_t) {
	return 0, -defs.ESPIPE
}

func (of *pipefops_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	if of.writer {
		return 0, -defs.EBADF
	}
	return of.pipe.op_read(dst)
}

func (of *pipefops_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	if !of.writer {
		return 0, -defs.EBADF
	}
	return of.pipe.op_write(src)
}

func (of *pipefops_t) Truncate(uint) defs.Err_t {
	return -defs.EINVAL
}

func (of *pipefops_t) Pread(fdops.Userio_i, int) (int, defs.Err_t) {
	return 0, -defs.ESPIPE
}

func (of *pipefops_t) Pwrite(fdops.Userio_i, int) (int, defs.Err_t) {
	return 0, -defs.ESPIPE
}

func (of *pipefops_t) Getdents(fdops.Userio_i) (int, defs.Err_t) {
	return 0, -defs.ENOTDIR
}

func (of *pipefops_t) ready(write bool, n int) bool {
	return of.pipe.ready(write, n)
}

func (of *pipefops_t) nonblocking() bool {
	return of.nonblock
}

func (of *pipefops_t) waitkey() proc.Waitkey_t {
	return of.pipe.key
}

var _ fdops.Fdops_i = (*pipefops_t)(nil)
var _ blocker_i = (*pipefops_t)(nil)

// Mkpipe returns the read and write ends of a new pipe, or false when the
// system pipe limit is reached.
func (k *Kernel_t) Mkpipe(nonblock bool) (*fd.Fd_t, *fd.Fd_t, bool) {
	lim := &k.Pt.Lim.Pipes
	if !lim.Take() {
		return nil, nil, false
	}
	id := atomic.AddInt64(&k.npipe, 1)
	pp := &pipe_t{buf: make([]uint8, PIPE_BUF), readers: 1, writers: 1,
		key: proc.Resourcekey(int(id)), waker: k.Wq, lim: lim}
	rd := &fd.Fd_t{Fops: &pipefops_t{pipe: pp, nonblock: nonblock}}
	wr := &fd.Fd_t{Fops: &pipefops_t{pipe: pp, writer: true,
		nonblock: nonblock}}
	return rd, wr, true
}

// sys_pipe2 stores the read and write descriptors of a new pipe as two
// 32-bit ints at pipen.
func (k *Kernel_t) sys_pipe2(p *proc.Proc_t, pipen, flags int) int {
	opts := defs.Fdopt_t(flags)
	if opts&^(defs.O_CLOEXEC|defs.O_NONBLOCK) != 0 {
		return int(-defs.EINVAL)
	}
	if err := _uwritable(p, pipen, 8); err != 0 {
		return int(err)
	}
	rfp := fd.FD_READ
	wfp := fd.FD_WRITE
	if opts&defs.O_CLOEXEC != 0 {
		rfp |= fd.FD_CLOEXEC
		wfp |= fd.FD_CLOEXEC
	}
	rd, wr, ok := k.Mkpipe(opts&defs.O_NONBLOCK != 0)
	if !ok {
		return int(-defs.ENFILE)
	}
	rfd, ok := p.Fd_insert(rd, rfp)
	if !ok {
		fd.Close_panic(rd)
		fd.Close_panic(wr)
		return int(-defs.EMFILE)
	}
	wfd, ok := p.Fd_insert(wr, wfp)
	if !ok {
		p.Fd_del(rfd)
		fd.Close_panic(rd)
		fd.Close_panic(wr)
		return int(-defs.EMFILE)
	}
	err := p.Vm.Userwriten(pipen, 4, rfd)
	if err == 0 {
		err = p.Vm.Userwriten(pipen+4, 4, wfd)
	}
	if err != 0 {
		for _, n := range []int{rfd, wfd} {
			if f, ok := p.Fd_del(n); ok {
				fd.Close_panic(f)
			}
		}
		return int(err)
	}
	return 0
}
