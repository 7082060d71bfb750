package proc

import "encoding/binary"

import "github.com/chaoskernel/chaos/bpath"
import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/fd"
import "github.com/chaoskernel/chaos/mem"
import "github.com/chaoskernel/chaos/ustr"
import "github.com/chaoskernel/chaos/util"
import "github.com/chaoskernel/chaos/vm"

// auxiliary vector keys
const (
	AT_NULL   = 0
	AT_PAGESZ = 6
)

// _load builds a complete address space for image with the initial user
// stack holding args. the returned trapframe enters the image.
func (pt *Ptable_t) _load(image []uint8, args []ustr.Ustr,
	maxvma uint) (*vm.Vm_t, defs.Tf_t, defs.Err_t) {
	var tf defs.Tf_t
	img, err := _elfparse(image)
	if err != 0 {
		return nil, tf, err
	}
	nvm, err := vm.Mkvm(pt.phys, maxvma)
	if err != 0 {
		return nil, tf, err
	}
	fail := func(err defs.Err_t) (*vm.Vm_t, defs.Tf_t, defs.Err_t) {
		nvm.Uvmfree()
		return nil, tf, err
	}
	for _, s := range img.segs {
		if err := nvm.Map_image(s.va, s.memsz, s.prot, s.data); err != 0 {
			if err == -defs.EINVAL {
				err = -defs.ENOEXEC
			}
			return fail(err)
		}
	}
	if err := nvm.Map_stack(STACKTOP, STACKSIZE); err != 0 {
		return fail(err)
	}
	nvm.Setheap(util.Roundup(img.end, mem.PGSIZE))

	sp, argv, envp, err := _mkstack(nvm, args)
	if err != 0 {
		return fail(err)
	}
	tf[defs.TF_SP] = uintptr(sp)
	tf[defs.TF_SEPC] = uintptr(img.entry)
	tf[defs.TF_A0] = uintptr(len(args))
	tf[defs.TF_A1] = uintptr(argv)
	tf[defs.TF_A2] = uintptr(envp)
	tf[defs.TF_SSTATUS] = defs.SSTATUS_SPIE
	return nvm, tf, 0
}

// _mkstack writes the initial stack: argc, the argv pointers, an empty
// envp and the auxiliary vector, with the strings above them.
func _mkstack(as *vm.Vm_t, args []ustr.Ustr) (int, int, int, defs.Err_t) {
	strsz := 0
	for _, a := range args {
		strsz += len(a) + 1
	}
	// argc, argv, NULL, envp NULL, two auxv pairs
	words := 1 + len(args) + 1 + 1 + 4
	strbase := STACKTOP - util.Roundup(strsz, 8)
	sp := util.Rounddown(strbase-8*words, 16)
	if STACKTOP-sp > STACKSIZE-mem.PGSIZE {
		return 0, 0, 0, -defs.E2BIG
	}

	buf := make([]uint8, STACKTOP-sp)
	le := binary.LittleEndian
	put := func(va int, v uint64) {
		le.PutUint64(buf[va-sp:], v)
	}
	put(sp, uint64(len(args)))
	soff := strbase
	for i, a := range args {
		put(sp+8+8*i, uint64(soff))
		copy(buf[soff-sp:], a)
		soff += len(a) + 1
	}
	put(sp+8+8*len(args), 0)
	envp := sp + 8 + 8*(len(args)+1)
	put(envp, 0)
	auxv := envp + 8
	put(auxv, AT_PAGESZ)
	put(auxv+8, uint64(mem.PGSIZE))
	put(auxv+16, AT_NULL)
	put(auxv+24, 0)
	if err := as.K2user(buf, sp); err != 0 {
		return 0, 0, 0, err
	}
	return sp, sp + 8, envp, 0
}

func _basename(path ustr.Ustr) ustr.Ustr {
	_, fn := bpath.Sdirname(path)
	return append(ustr.MkUstr(), fn...)
}

// Exec replaces the address space and user context of p with image. the
// new space is completely built before the old one is released, so on
// failure p is untouched. descriptors marked close-on-exec are closed.
func (pt *Ptable_t) Exec(p *Proc_t, path ustr.Ustr, image []uint8,
	args []ustr.Ustr) defs.Err_t {
	nvm, tf, err := pt._load(image, args, p.Ulim.Novma)
	if err != 0 {
		log.Infof("%v: exec %v failed: %v", p, path, err)
		return err
	}
	old := p.Vm
	p.Vm = nvm
	old.Uvmfree()
	p.Fd_closeall(fd.FD_CLOEXEC)
	p.Name = _basename(path)
	p.Tf = tf
	log.Debugf("%v: exec %v", p, path)
	return 0
}

// Create_initial boots init (pid 1) from image. fds become its standard
// descriptors. init cannot fail to load.
func (pt *Ptable_t) Create_initial(image []uint8, path ustr.Ustr,
	fds []*fd.Fd_t) *Proc_t {
	if !pt.Lim.Sysprocs.Take() {
		panic("no task for init")
	}
	p := pt._mkproc(_basename(path))
	nvm, tf, err := pt._load(image, []ustr.Ustr{path}, p.Ulim.Novma)
	if err != 0 {
		panic("cannot load init: " + err.String())
	}
	ks, ok := pt._kstack_alloc()
	if !ok {
		panic("no kernel stack for init")
	}
	p.Vm = nvm
	p.Tf = tf
	p.Kstack = ks
	p._setfds(fds)
	p.Cwd = fd.MkRootCwd()
	if !pt._publish(p, nil) {
		panic("cannot publish init")
	}
	if p.Pid != 1 {
		panic("init must be pid 1")
	}
	log.Infof("init %v started", path)
	return p
}
