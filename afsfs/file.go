package afsfs

import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/fdops"
import "github.com/chaoskernel/chaos/stat"
import "github.com/chaoskernel/chaos/ustr"

// file_t is an open file or directory. descriptors copied by dup or fork
// share it, and with it the offset.
type file_t struct {
	fs     *Fs_t
	path   string
	ino    uint64
	isdir  bool
	append bool
	// protected by fs lock
	off  int
	refs int
}

func (f *file_t) Path() ustr.Ustr {
	return ustr.Ustr(f.path)
}

func (f *file_t) Close() defs.Err_t {
	f.fs.Lock()
	defer f.fs.Unlock()
	f.refs--
	if f.refs < 0 {
		panic("close of closed file")
	}
	return 0
}

func (f *file_t) Reopen() defs.Err_t {
	f.fs.Lock()
	f.refs++
	f.fs.Unlock()
	return 0
}

func (f *file_t) Fstat(st *stat.Stat_t) defs.Err_t {
	f.fs.Lock()
	defer f.fs.Unlock()
	return f.fs._stat(f.path, st)
}

func (f *file_t) _size() (int, defs.Err_t) {
	if f.isdir {
		return 0, 0
	}
	data, err := f.fs._read(f.path)
	return len(data), err
}

func (f *file_t) Lseek(off, whence int) (int, defs.Err_t) {
	f.fs.Lock()
	defer f.fs.Unlock()
	var base int
	switch whence {
	case defs.SEEK_SET:
	case defs.SEEK_CUR:
		base = f.off
	case defs.SEEK_END:
		sz, err := f._size()
		if err != 0 {
			return 0, err
		}
		base = sz
	default:
		return 0, -defs.EINVAL
	}
	if base+off < 0 {
		return 0, -defs.EINVAL
	}
	f.off = base + off
	return f.off, 0
}

func (f *file_t) _pread(dst fdops.Userio_i, off int) (int, defs.Err_t) {
	if f.isdir {
		return 0, -defs.EISDIR
	}
	data, err := f.fs._read(f.path)
	if err != 0 {
		return 0, err
	}
	if off >= len(data) {
		return 0, 0
	}
	return dst.Uiowrite(data[off:])
}

func (f *file_t) _pwrite(src fdops.Userio_i, off int) (int, defs.Err_t) {
	if f.isdir {
		return 0, -defs.EISDIR
	}
	buf, err := fdops.Readall(src)
	if err != 0 {
		return 0, err
	}
	n := len(buf)
	data, err := f.fs._read(f.path)
	if err != 0 {
		return 0, err
	}
	if f.append {
		off = len(data)
	}
	if off > FILEMAX || n > FILEMAX-off {
		return 0, -defs.EFBIG
	}
	if end := off + n; end > len(data) {
		nd := make([]uint8, end)
		copy(nd, data)
		data = nd
	}
	copy(data[off:], buf)
	if err := f.fs._write(f.path, data); err != 0 {
		return 0, err
	}
	return n, 0
}

func (f *file_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	f.fs.Lock()
	defer f.fs.Unlock()
	n, err := f._pread(dst, f.off)
	if err != 0 {
		return 0, err
	}
	f.off += n
	return n, 0
}

func (f *file_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	f.fs.Lock()
	defer f.fs.Unlock()
	if f.append {
		sz, err := f._size()
		if err != 0 {
			return 0, err
		}
		f.off = sz
	}
	n, err := f._pwrite(src, f.off)
	if err != 0 {
		return 0, err
	}
	f.off += n
	return n, 0
}

func (f *file_t) Pread(dst fdops.Userio_i, off int) (int, defs.Err_t) {
	if off < 0 {
		return 0, -defs.EINVAL
	}
	f.fs.Lock()
	defer f.fs.Unlock()
	return f._pread(dst, off)
}

func (f *file_t) Pwrite(src fdops.Userio_i, off int) (int, defs.Err_t) {
	if off < 0 {
		return 0, -defs.EINVAL
	}
	f.fs.Lock()
	defer f.fs.Unlock()
	return f._pwrite(src, off)
}

func (f *file_t) Truncate(newlen uint) defs.Err_t {
	f.fs.Lock()
	defer f.fs.Unlock()
	if f.isdir {
		return -defs.EISDIR
	}
	if newlen > FILEMAX {
		return -defs.EFBIG
	}
	data, err := f.fs._read(f.path)
	if err != 0 {
		return err
	}
	nd := make([]uint8, newlen)
	copy(nd, data)
	return f.fs._write(f.path, nd)
}

// Getdents writes whole records starting at the entry the offset names;
// "." and ".." come first.
func (f *file_t) Getdents(dst fdops.Userio_i) (int, defs.Err_t) {
	f.fs.Lock()
	defer f.fs.Unlock()
	if !f.isdir {
		return 0, -defs.ENOTDIR
	}
	ents, err := f.fs._list(f.path)
	if err != 0 {
		return 0, err
	}
	all := append([]dent_t{{".", true}, {"..", true}}, ents...)
	tot := 0
	for f.off < len(all) {
		e := all[f.off]
		dtype := uint8(fdops.DT_REG)
		if e.isdir {
			dtype = fdops.DT_DIR
		}
		var ino uint64
		switch e.name {
		case ".":
			ino = f.ino
		case "..":
			ino = f.fs._ino(_parent(f.path))
		default:
			ino = f.fs._ino(_child(f.path, e.name))
		}
		rec := fdops.Mkdirent(ino, int64(f.off+1), dtype, e.name)
		if len(rec) > dst.Remain() {
			if tot == 0 {
				return 0, -defs.EINVAL
			}
			break
		}
		n, err := dst.Uiowrite(rec)
		if err != 0 {
			return 0, err
		}
		tot += n
		f.off++
	}
	return tot, 0
}

func _child(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

func _parent(p string) string {
	for i := len(p) - 1; i > 0; i-- {
		if p[i] == '/' {
			return p[:i]
		}
	}
	return "/"
}

var _ fdops.Fdops_i = (*file_t)(nil)
var _ fdops.Pather_i = (*file_t)(nil)
