package vm

import "github.com/chaoskernel/chaos/defs"

// Userbuf_t is a window [va, va+n) of a task's memory that file objects
// fill or drain through fdops.Userio_i. each transfer translates and
// copies under the pmap lock, page by page, so a fault part way through
// leaves the bytes before it transferred and the cursor after them.
type Userbuf_t struct {
	as   *Vm_t
	va   int
	n    int
	done int
}

func (as *Vm_t) Mkuserbuf(va, n int) *Userbuf_t {
	if n < 0 {
		panic("negative length")
	}
	if n > USERMAX {
		log.Warningf("user buffer of %v bytes at %#x", n, va)
	}
	return &Userbuf_t{as: as, va: va, n: n}
}

func (ub *Userbuf_t) Remain() int {
	return ub.n - ub.done
}

func (ub *Userbuf_t) Totalsz() int {
	return ub.n
}

// Uioread copies from user memory into dst.
func (ub *Userbuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	return ub._xfer(dst, false)
}

// Uiowrite copies src into user memory; the pages must be writable.
func (ub *Userbuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	return ub._xfer(src, true)
}

func (ub *Userbuf_t) _xfer(kbuf []uint8, touser bool) (int, defs.Err_t) {
	ub.as.Lock_pmap()
	defer ub.as.Unlock_pmap()
	moved := 0
	for moved < len(kbuf) && ub.done < ub.n {
		pg, err := ub.as.Userdmap8_inner(ub.va+ub.done, touser)
		if err != 0 {
			return moved, err
		}
		if left := ub.n - ub.done; len(pg) > left {
			pg = pg[:left]
		}
		var c int
		if touser {
			c = copy(pg, kbuf[moved:])
		} else {
			c = copy(kbuf[moved:], pg)
		}
		moved += c
		ub.done += c
	}
	return moved, 0
}

// Fakeubuf_t serves a kernel slice through fdops.Userio_i, for loading
// executables and filling file-backed pages.
type Fakeubuf_t struct {
	buf []uint8
	off int
}

func Mkfakebuf(buf []uint8) *Fakeubuf_t {
	return &Fakeubuf_t{buf: buf}
}

func (fb *Fakeubuf_t) Remain() int {
	return len(fb.buf) - fb.off
}

func (fb *Fakeubuf_t) Totalsz() int {
	return len(fb.buf)
}

func (fb *Fakeubuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	c := copy(dst, fb.buf[fb.off:])
	fb.off += c
	return c, 0
}

func (fb *Fakeubuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	c := copy(fb.buf[fb.off:], src)
	fb.off += c
	return c, 0
}
