package proc

import "debug/elf"
import "encoding/binary"
import "strings"
import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/fd"
import "github.com/chaoskernel/chaos/hart"
import "github.com/chaoskernel/chaos/mem"
import "github.com/chaoskernel/chaos/ustr"

func TestExec(t *testing.T) {
	pt, p, _ := boot(t, 256)
	c, err := pt.Fork(p, 0)
	ok(t, err)
	keep := &nopfile_t{refs: 1}
	drop := &nopfile_t{refs: 1}
	kfd, _ := c.Fd_insert(&fd.Fd_t{Fops: keep}, fd.FD_READ)
	dfd, _ := c.Fd_insert(&fd.Fd_t{Fops: drop}, fd.FD_READ|fd.FD_CLOEXEC)
	before := freepgs(pt)

	args := []ustr.Ustr{ustr.Ustr("ls"), ustr.Ustr("-l"), ustr.Ustr("/tmp")}
	ok(t, pt.Exec(c, ustr.Ustr("/bin/ls"), image("ls"), args))
	assert.Equal(t, "ls", string(c.Name))
	assert.Equal(t, defs.Pid_t(2), c.Pid)
	assert.Equal(t, defs.Pid_t(1), c.Ppid(pt))
	_, found := c.Fd_get(kfd)
	assert.True(t, found)
	_, found = c.Fd_get(dfd)
	assert.False(t, found)
	assert.Equal(t, 1, drop.closed)
	assert.Equal(t, 0, keep.closed)
	// same image shape, so the frame count is unchanged
	assert.Equal(t, before, freepgs(pt))

	assert.Equal(t, uintptr(3), c.Tf[defs.TF_A0])
	got, err := c.Userargs(int(c.Tf[defs.TF_A1]))
	ok(t, err)
	assert.Equal(t, args, got)
	assert.NoError(t, c.Vm.Verify())
}

func TestExecFailureUntouched(t *testing.T) {
	pt, p, _ := boot(t, 256)
	oldvm := p.Vm
	oldtf := p.Tf
	vmas0 := vmas(p)
	before := freepgs(pt)

	bad := image("x")
	// wrong machine
	binary.LittleEndian.PutUint16(bad[18:], uint16(elf.EM_X86_64))
	err := pt.Exec(p, ustr.Ustr("/x"), bad, nil)
	assert.Equal(t, -defs.ENOEXEC, err)
	err = pt.Exec(p, ustr.Ustr("/x"), []uint8("#!/bin/sh\n"), nil)
	assert.Equal(t, -defs.ENOEXEC, err)

	var huge []ustr.Ustr
	for i := 0; i < 40; i++ {
		huge = append(huge, ustr.Ustr(strings.Repeat("a", 4000)))
	}
	err = pt.Exec(p, ustr.Ustr("/x"), image("x"), huge)
	assert.Equal(t, -defs.E2BIG, err)

	assert.Equal(t, oldvm, p.Vm)
	assert.Equal(t, oldtf, p.Tf)
	assert.Equal(t, vmas0, vmas(p))
	assert.Equal(t, "init", string(p.Name))
	assert.Equal(t, before, freepgs(pt))
}

func TestElfparse(t *testing.T) {
	prog := hart.Mkprog("e")
	prog.Str("data")
	prog.Exit(0)
	img, err := _elfparse(hart.Mkelf(prog))
	ok(t, err)
	assert.Equal(t, hart.ENTRY, img.entry)
	require.Len(t, img.segs, 2)
	assert.Equal(t, defs.PROT_READ|defs.PROT_EXEC, img.segs[0].prot)
	assert.Equal(t, defs.PROT_READ|defs.PROT_WRITE, img.segs[1].prot)

	// entry outside every executable segment
	bad := hart.Mkelf(prog)
	binary.LittleEndian.PutUint64(bad[24:], hart.DATAVA)
	_, err = _elfparse(bad)
	assert.Equal(t, -defs.ENOEXEC, err)

	// not an executable
	bad = hart.Mkelf(prog)
	binary.LittleEndian.PutUint16(bad[16:], uint16(elf.ET_DYN))
	_, err = _elfparse(bad)
	assert.Equal(t, -defs.ENOEXEC, err)

	// text segment at page 0
	bad = hart.Mkelf(prog)
	binary.LittleEndian.PutUint64(bad[64+16:], 0)
	_, err = _elfparse(bad)
	assert.Equal(t, -defs.ENOEXEC, err)

	// file size far past the end of the image
	bad = hart.Mkelf(prog)
	binary.LittleEndian.PutUint64(bad[64+32:], 0xe0000000)
	binary.LittleEndian.PutUint64(bad[64+40:], 0xe0000000)
	_, err = _elfparse(bad)
	assert.Equal(t, -defs.ENOEXEC, err)

	// offset past the end of the image
	bad = hart.Mkelf(prog)
	binary.LittleEndian.PutUint64(bad[64+8:], uint64(len(bad)+mem.PGSIZE))
	_, err = _elfparse(bad)
	assert.Equal(t, -defs.ENOEXEC, err)
}
