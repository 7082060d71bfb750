package fd

import "sync"

import "github.com/chaoskernel/chaos/bpath"
import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/fdops"
import "github.com/chaoskernel/chaos/ustr"

const (
	FD_READ    = 0x1
	FD_WRITE   = 0x2
	FD_CLOEXEC = 0x4
)

type Fd_t struct {
	// fops is an interface implemented via a "pointer receiver", thus fops
	// is a reference, not a value
	Fops  fdops.Fdops_i
	Perms int
}

// Copyfd duplicates the descriptor; the file object is shared.
func Copyfd(fd *Fd_t) (*Fd_t, defs.Err_t) {
	nfd := &Fd_t{}
	*nfd = *fd
	err := nfd.Fops.Reopen()
	if err != 0 {
		return nil, err
	}
	return nfd, 0
}

func Close_panic(f *Fd_t) {
	if f.Fops.Close() != 0 {
		panic("must succeed")
	}
}

// Mkperms derives descriptor permissions from open flags.
func Mkperms(flags defs.Fdopt_t) int {
	var p int
	switch flags & defs.O_ACCMODE {
	case defs.O_RDONLY:
		p = FD_READ
	case defs.O_WRONLY:
		p = FD_WRITE
	case defs.O_RDWR:
		p = FD_READ | FD_WRITE
	}
	if flags&defs.O_CLOEXEC != 0 {
		p |= FD_CLOEXEC
	}
	return p
}

type Cwd_t struct {
	sync.Mutex // to serialize chdirs
	Path       ustr.Ustr
}

// Canonicalpath resolves p against the working directory.
func (cwd *Cwd_t) Canonicalpath(p ustr.Ustr) ustr.Ustr {
	cwd.Lock()
	d := cwd.Path
	cwd.Unlock()
	return bpath.Join(d, p)
}

func (cwd *Cwd_t) Get() ustr.Ustr {
	cwd.Lock()
	defer cwd.Unlock()
	return append(ustr.MkUstr(), cwd.Path...)
}

func (cwd *Cwd_t) Set(p ustr.Ustr) {
	cwd.Lock()
	cwd.Path = append(ustr.MkUstr(), p...)
	cwd.Unlock()
}

// Copy is used by fork.
func (cwd *Cwd_t) Copy() *Cwd_t {
	return &Cwd_t{Path: cwd.Get()}
}

func MkRootCwd() *Cwd_t {
	c := &Cwd_t{}
	c.Path = ustr.MkUstrRoot()
	return c
}
