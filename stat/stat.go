package stat

import "encoding/binary"

// file type bits of st_mode
const (
	S_IFMT  uint = 0170000
	S_IFIFO uint = 0010000
	S_IFDIR uint = 0040000
	S_IFCHR uint = 0020000
	S_IFREG uint = 0100000
)

// STATSZ is sizeof(struct stat) on riscv64.
const STATSZ = 128

type Stat_t struct {
	_dev    uint
	_ino    uint
	_mode   uint
	_nlink  uint
	_size   uint
	_rdev   uint
	_blocks uint
	_m_sec  uint
	_m_nsec uint
}

func (st *Stat_t) Wdev(v uint) {
	st._dev = v
}

func (st *Stat_t) Wino(v uint) {
	st._ino = v
}

func (st *Stat_t) Wmode(v uint) {
	st._mode = v
}

func (st *Stat_t) Wnlink(v uint) {
	st._nlink = v
}

func (st *Stat_t) Wsize(v uint) {
	st._size = v
	st._blocks = (v + 511) / 512
}

func (st *Stat_t) Wrdev(v uint) {
	st._rdev = v
}

func (st *Stat_t) Wmtime(sec, nsec uint) {
	st._m_sec = sec
	st._m_nsec = nsec
}

func (st *Stat_t) Mode() uint {
	return st._mode
}

func (st *Stat_t) Size() uint {
	return st._size
}

func (st *Stat_t) Rdev() uint {
	return st._rdev
}

func (st *Stat_t) Rino() uint {
	return st._ino
}

func (st *Stat_t) Isdir() bool {
	return st._mode&S_IFMT == S_IFDIR
}

// Bytes lays the stat out as the asm-generic struct stat.
func (st *Stat_t) Bytes() []uint8 {
	ret := make([]uint8, STATSZ)
	le := binary.LittleEndian
	le.PutUint64(ret[0:], uint64(st._dev))
	le.PutUint64(ret[8:], uint64(st._ino))
	le.PutUint32(ret[16:], uint32(st._mode))
	le.PutUint32(ret[20:], uint32(st._nlink))
	// uid, gid are 0
	le.PutUint64(ret[32:], uint64(st._rdev))
	le.PutUint64(ret[48:], uint64(st._size))
	le.PutUint32(ret[56:], 4096)
	le.PutUint64(ret[64:], uint64(st._blocks))
	// atime, mtime and ctime all report the modification time
	for _, off := range []int{72, 88, 104} {
		le.PutUint64(ret[off:], uint64(st._m_sec))
		le.PutUint64(ret[off+8:], uint64(st._m_nsec))
	}
	return ret
}
