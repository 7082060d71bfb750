package kernel

import "io"
import "sync"

import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/fd"
import "github.com/chaoskernel/chaos/fdops"
import "github.com/chaoskernel/chaos/stat"

// console device numbers, as on linux (5, 1)
const (
	CONSMAJ = 5
	CONSMIN = 1
)

// Console_t is the device behind the standard descriptors of init. input
// is optional; without one reads return end of file.
type Console_t struct {
	sync.Mutex
	in  io.Reader
	out io.Writer
	// open descriptors
	refs int
}

func MkConsole(in io.Reader, out io.Writer) *Console_t {
	return &Console_t{in: in, out: out}
}

// Mkfd returns a new descriptor for the console.
func (c *Console_t) Mkfd(perms int) *fd.Fd_t {
	c.Lock()
	c.refs++
	c.Unlock()
	return &fd.Fd_t{Fops: &confops_t{c: c}, Perms: perms}
}

// Refs returns the number of open console descriptors.
func (c *Console_t) Refs() int {
	c.Lock()
	defer c.Unlock()
	return c.refs
}

// Stdfds returns descriptors 0, 1 and 2.
func (c *Console_t) Stdfds() []*fd.Fd_t {
	return []*fd.Fd_t{
		c.Mkfd(fd.FD_READ),
		c.Mkfd(fd.FD_WRITE),
		c.Mkfd(fd.FD_WRITE),
	}
}

type confops_t struct {
	c *Console_t
}

func (cf *confops_t) Close() defs.Err_t {
	cf.c.Lock()
	defer cf.c.Unlock()
	if cf.c.refs <= 0 {
		panic("console refs")
	}
	cf.c.refs--
	return 0
}

func (cf *confops_t) Reopen() defs.Err_t {
	cf.c.Lock()
	cf.c.refs++
	cf.c.Unlock()
	return 0
}

func (cf *confops_t) Fstat(st *stat.Stat_t) defs.Err_t {
	st.Wmode(stat.S_IFCHR | 0620)
	st.Wnlink(1)
	st.Wrdev(CONSMAJ<<8 | CONSMIN)
	return 0
}

func (cf *confops_t) Lseek(int, int) (int, defs.Err_t) {
	return 0, -defs.ESPIPE
}

func (cf *confops_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	if cf.c.in == nil {
		return 0, 0
	}
	sz := dst.Remain()
	if sz > fdops.XFERCHUNK {
		sz = fdops.XFERCHUNK
	}
	buf := make([]uint8, sz)
	n, err := cf.c.in.Read(buf)
	if n == 0 && err != nil && err != io.EOF {
		return 0, -defs.EIO
	}
	return dst.Uiowrite(buf[:n])
}

func (cf *confops_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	// the lock is held across chunks so that concurrent writers do not
	// interleave
	cf.c.Lock()
	defer cf.c.Unlock()
	buf := make([]uint8, fdops.XFERCHUNK)
	tot := 0
	for src.Remain() > 0 {
		n, err := src.Uioread(buf)
		if n > 0 {
			if _, werr := cf.c.out.Write(buf[:n]); werr != nil {
				if tot == 0 {
					return 0, -defs.EIO
				}
				return tot, 0
			}
			tot += n
		}
		if err != 0 {
			if tot == 0 {
				return 0, err
			}
			break
		}
		if n == 0 {
			break
		}
	}
	return tot, 0
}

func (cf *confops_t) Truncate(uint) defs.Err_t {
	return -defs.EINVAL
}

func (cf *confops_t) Pread(fdops.Userio_i, int) (int, defs.Err_t) {
	return 0, -defs.ESPIPE
}

func (cf *confops_t) Pwrite(fdops.Userio_i, int) (int, defs.Err_t) {
	return 0, -defs.ESPIPE
}

func (cf *confops_t) Getdents(fdops.Userio_i) (int, defs.Err_t) {
	return 0, -defs.ENOTDIR
}

var _ fdops.Fdops_i = (*confops_t)(nil)
