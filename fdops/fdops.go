package fdops

import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/stat"
import "github.com/chaoskernel/chaos/ustr"
import "github.com/chaoskernel/chaos/util"

// interface for reading/writing from user space memory either via a pointer
// and length or a kernel buffer standing in for one
type Userio_i interface {
	// copy src to user memory
	Uiowrite(src []uint8) (int, defs.Err_t)
	// copy user memory to dst
	Uioread(dst []uint8) (int, defs.Err_t)
	// returns the number of unwritten/unread bytes remaining
	Remain() int
	// the total buffer size
	Totalsz() int
}

type Fdops_i interface {
	Close() defs.Err_t
	Fstat(*stat.Stat_t) defs.Err_t
	Lseek(int, int) (int, defs.Err_t)
	Read(Userio_i) (int, defs.Err_t)
	// reopen() is called with Proc_t.fdl is held
	Reopen() defs.Err_t
	Write(Userio_i) (int, defs.Err_t)
	Truncate(uint) defs.Err_t

	Pread(Userio_i, int) (int, defs.Err_t)
	Pwrite(Userio_i, int) (int, defs.Err_t)

	// Getdents writes as many whole linux_dirent64 records as fit and
	// advances the descriptor offset past them.
	Getdents(Userio_i) (int, defs.Err_t)
}

// Pather_i is implemented by file objects that know their canonical path.
// *at syscalls resolve relative paths against directory descriptors with it.
type Pather_i interface {
	Path() ustr.Ustr
}

// Fs_i is the filesystem the kernel delegates to. Paths are absolute and
// canonical.
type Fs_i interface {
	Fs_open(path ustr.Ustr, flags defs.Fdopt_t, mode int) (Fdops_i, defs.Err_t)
	Fs_mkdir(path ustr.Ustr, mode int) defs.Err_t
	Fs_unlink(path ustr.Ustr, isdir bool) defs.Err_t
	Fs_link(old, new ustr.Ustr) defs.Err_t
	Fs_stat(path ustr.Ustr, st *stat.Stat_t) defs.Err_t
}

// d_type values
const (
	DT_UNKNOWN = 0
	DT_CHR     = 2
	DT_DIR     = 4
	DT_REG     = 8
)

// offset of d_name in linux_dirent64
const DIRENTHDR = 19

// Direntsz returns the 8-byte aligned record length for a name.
func Direntsz(name string) int {
	return util.Roundup(DIRENTHDR+len(name)+1, 8)
}

// Mkdirent encodes one linux_dirent64 record. off is the offset of the next
// record.
func Mkdirent(ino uint64, off int64, dtype uint8, name string) []uint8 {
	l := Direntsz(name)
	ret := make([]uint8, l)
	util.Writen(ret, 8, 0, int(ino))
	util.Writen(ret, 8, 8, int(off))
	util.Writen(ret, 2, 16, l)
	util.Writen(ret, 1, 18, int(dtype))
	copy(ret[DIRENTHDR:], name)
	return ret
}

// bytes moved per user copy. copies loop over chunks of this size so a
// user-supplied length never sizes a kernel allocation.
const XFERCHUNK = 4096

// Readall drains src in XFERCHUNK pieces. a fault after some bytes ends
// the copy early and returns what was read; a fault before any byte is
// returned as the error.
func Readall(src Userio_i) ([]uint8, defs.Err_t) {
	var ret []uint8
	chunk := make([]uint8, XFERCHUNK)
	for src.Remain() > 0 {
		n, err := src.Uioread(chunk)
		ret = append(ret, chunk[:n]...)
		if err != 0 {
			if len(ret) == 0 {
				return nil, err
			}
			break
		}
		if n == 0 {
			break
		}
	}
	return ret, 0
}
