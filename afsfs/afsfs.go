package afsfs

import "bytes"
import "context"
import "fmt"
import "path"
import "sort"
import "strings"
import "sync"

import "github.com/op/go-logging"
import "github.com/viant/afs"
import "github.com/viant/afs/file"
import "github.com/viant/afs/storage"
import "github.com/viant/afs/url"

import "github.com/chaoskernel/chaos/bpath"
import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/fdops"
import "github.com/chaoskernel/chaos/stat"
import "github.com/chaoskernel/chaos/ustr"

var log = logging.MustGetLogger("afsfs")

// device number reported by stat
const FSDEV = 1

// largest file size; files are held whole in memory while written
const FILEMAX = 1 << 28

// Fs_t is a filesystem over an afs storage URL. the whole namespace is
// protected by one lock; file data is written through on every change.
type Fs_t struct {
	sync.Mutex
	fs   afs.Service
	ctx  context.Context
	root string
	inos map[string]uint64
	nino uint64
}

// MkFs opens the filesystem rooted at root, creating the root directory if
// needed. plain paths are local directories.
func MkFs(root string) (*Fs_t, error) {
	root = strings.TrimSuffix(url.Normalize(root, file.Scheme), "/")
	ret := &Fs_t{fs: afs.New(), ctx: context.Background(), root: root}
	ret.inos = make(map[string]uint64)
	ret.nino = 1
	ok, err := ret.fs.Exists(ret.ctx, root)
	if err != nil {
		return nil, fmt.Errorf("afsfs: %v: %w", root, err)
	}
	if !ok {
		if err := ret.fs.Create(ret.ctx, root, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("afsfs: create root %v: %w", root, err)
		}
	}
	log.Infof("filesystem at %v", root)
	return ret, nil
}

func (fs *Fs_t) Root() string {
	return fs.root
}

func (fs *Fs_t) _url(p string) string {
	if p == "/" || p == "" {
		return fs.root
	}
	return fs.root + p
}

func (fs *Fs_t) _ino(p string) uint64 {
	if ino, ok := fs.inos[p]; ok {
		return ino
	}
	fs.nino++
	fs.inos[p] = fs.nino
	return fs.nino
}

// _lookup returns the object at p. ok is false if there is none.
func (fs *Fs_t) _lookup(p string) (storage.Object, bool, defs.Err_t) {
	u := fs._url(p)
	ok, err := fs.fs.Exists(fs.ctx, u)
	if err != nil {
		log.Errorf("exists %v: %v", u, err)
		return nil, false, -defs.EIO
	}
	if !ok {
		return nil, false, 0
	}
	obj, err := fs.fs.Object(fs.ctx, u)
	if err != nil {
		log.Errorf("object %v: %v", u, err)
		return nil, false, -defs.EIO
	}
	return obj, true, 0
}

// _isdir reports whether the directory p exists; ENOENT or ENOTDIR
// otherwise.
func (fs *Fs_t) _dirok(p string) defs.Err_t {
	if p == "/" {
		return 0
	}
	obj, ok, err := fs._lookup(p)
	if err != 0 {
		return err
	}
	if !ok {
		return -defs.ENOENT
	}
	if !obj.IsDir() {
		return -defs.ENOTDIR
	}
	return 0
}

func (fs *Fs_t) _parentok(p ustr.Ustr) defs.Err_t {
	dir, fn := bpath.Sdirname(p)
	if len(fn) == 0 {
		return -defs.EEXIST
	}
	if len(dir) == 0 {
		dir = ustr.MkUstrRoot()
	}
	return fs._dirok(string(dir))
}

func (fs *Fs_t) _read(p string) ([]uint8, defs.Err_t) {
	data, err := fs.fs.DownloadWithURL(fs.ctx, fs._url(p))
	if err != nil {
		log.Errorf("download %v: %v", p, err)
		return nil, -defs.EIO
	}
	return data, 0
}

func (fs *Fs_t) _write(p string, data []uint8) defs.Err_t {
	err := fs.fs.Upload(fs.ctx, fs._url(p), file.DefaultFileOsMode,
		bytes.NewReader(data))
	if err != nil {
		log.Errorf("upload %v: %v", p, err)
		return -defs.EIO
	}
	return 0
}

type dent_t struct {
	name  string
	isdir bool
}

// _list returns the entries of directory p sorted by name.
func (fs *Fs_t) _list(p string) ([]dent_t, defs.Err_t) {
	u := fs._url(p)
	objs, err := fs.fs.List(fs.ctx, u)
	if err != nil {
		log.Errorf("list %v: %v", u, err)
		return nil, -defs.EIO
	}
	self := strings.TrimSuffix(u, "/")
	var ret []dent_t
	for i, o := range objs {
		// listings include the directory itself
		if strings.TrimSuffix(o.URL(), "/") == self ||
			(i == 0 && o.IsDir() && o.Name() == path.Base(self)) {
			continue
		}
		ret = append(ret, dent_t{name: o.Name(), isdir: o.IsDir()})
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].name < ret[j].name
	})
	return ret, 0
}

func (fs *Fs_t) Fs_open(p ustr.Ustr, flags defs.Fdopt_t, mode int) (fdops.Fdops_i, defs.Err_t) {
	fs.Lock()
	defer fs.Unlock()
	sp := string(p)
	obj, ok, err := fs._lookup(sp)
	if err != 0 {
		return nil, err
	}
	isdir := sp == "/" || (ok && obj.IsDir())
	if !ok && sp != "/" {
		if flags&defs.O_CREAT == 0 {
			return nil, -defs.ENOENT
		}
		if err := fs._parentok(p); err != 0 {
			return nil, err
		}
		if err := fs._write(sp, nil); err != 0 {
			return nil, err
		}
	} else if flags&(defs.O_CREAT|defs.O_EXCL) == defs.O_CREAT|defs.O_EXCL {
		return nil, -defs.EEXIST
	}
	acc := flags & defs.O_ACCMODE
	if isdir && acc != defs.O_RDONLY {
		return nil, -defs.EISDIR
	}
	if !isdir && flags&defs.O_DIRECTORY != 0 {
		return nil, -defs.ENOTDIR
	}
	if !isdir && flags&defs.O_TRUNC != 0 && acc != defs.O_RDONLY {
		if err := fs._write(sp, nil); err != 0 {
			return nil, err
		}
	}
	f := &file_t{fs: fs, path: sp, ino: fs._ino(sp), isdir: isdir, refs: 1}
	f.append = flags&defs.O_APPEND != 0
	return f, 0
}

func (fs *Fs_t) Fs_mkdir(p ustr.Ustr, mode int) defs.Err_t {
	fs.Lock()
	defer fs.Unlock()
	sp := string(p)
	if sp == "/" {
		return -defs.EEXIST
	}
	_, ok, err := fs._lookup(sp)
	if err != 0 {
		return err
	}
	if ok {
		return -defs.EEXIST
	}
	if err := fs._parentok(p); err != 0 {
		return err
	}
	if err := fs.fs.Create(fs.ctx, fs._url(sp), file.DefaultDirOsMode, true); err != nil {
		log.Errorf("mkdir %v: %v", sp, err)
		return -defs.EIO
	}
	return 0
}

func (fs *Fs_t) Fs_unlink(p ustr.Ustr, isdir bool) defs.Err_t {
	fs.Lock()
	defer fs.Unlock()
	sp := string(p)
	if sp == "/" {
		return -defs.EBUSY
	}
	obj, ok, err := fs._lookup(sp)
	if err != 0 {
		return err
	}
	if !ok {
		return -defs.ENOENT
	}
	switch {
	case isdir && !obj.IsDir():
		return -defs.ENOTDIR
	case !isdir && obj.IsDir():
		return -defs.EISDIR
	case isdir:
		ents, err := fs._list(sp)
		if err != 0 {
			return err
		}
		if len(ents) != 0 {
			return -defs.ENOTEMPTY
		}
	}
	if err := fs.fs.Delete(fs.ctx, fs._url(sp)); err != nil {
		log.Errorf("delete %v: %v", sp, err)
		return -defs.EIO
	}
	delete(fs.inos, sp)
	return 0
}

// Fs_link gives old's contents a second name. storage has no hard links,
// so the new name is a copy.
func (fs *Fs_t) Fs_link(old, new ustr.Ustr) defs.Err_t {
	fs.Lock()
	defer fs.Unlock()
	obj, ok, err := fs._lookup(string(old))
	if err != 0 {
		return err
	}
	if !ok {
		return -defs.ENOENT
	}
	if obj.IsDir() {
		return -defs.EPERM
	}
	_, ok, err = fs._lookup(string(new))
	if err != 0 {
		return err
	}
	if ok || string(new) == "/" {
		return -defs.EEXIST
	}
	if err := fs._parentok(new); err != 0 {
		return err
	}
	if err := fs.fs.Copy(fs.ctx, fs._url(string(old)), fs._url(string(new))); err != nil {
		log.Errorf("link %v %v: %v", old, new, err)
		return -defs.EIO
	}
	return 0
}

func (fs *Fs_t) Fs_stat(p ustr.Ustr, st *stat.Stat_t) defs.Err_t {
	fs.Lock()
	defer fs.Unlock()
	return fs._stat(string(p), st)
}

func (fs *Fs_t) _stat(sp string, st *stat.Stat_t) defs.Err_t {
	st.Wdev(FSDEV)
	st.Wino(uint(fs._ino(sp)))
	st.Wnlink(1)
	if sp == "/" {
		st.Wmode(stat.S_IFDIR | 0755)
		return 0
	}
	obj, ok, err := fs._lookup(sp)
	if err != 0 {
		return err
	}
	if !ok {
		return -defs.ENOENT
	}
	if obj.IsDir() {
		st.Wmode(stat.S_IFDIR | 0755)
	} else {
		st.Wmode(stat.S_IFREG | 0644)
		// object listings of some backends carry no size
		data, err := fs._read(sp)
		if err != 0 {
			return err
		}
		st.Wsize(uint(len(data)))
	}
	mt := obj.ModTime()
	st.Wmtime(uint(mt.Unix()), uint(mt.Nanosecond()))
	return 0
}

var _ fdops.Fs_i = (*Fs_t)(nil)
