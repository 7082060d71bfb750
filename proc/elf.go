package proc

import "bytes"
import "debug/elf"
import "io"
import "sort"

import "github.com/chaoskernel/chaos/defs"
import "github.com/chaoskernel/chaos/mem"
import "github.com/chaoskernel/chaos/util"
import "github.com/chaoskernel/chaos/vm"

// user stack placement
const (
	STACKTOP   = 0x100000000
	STACKPAGES = 20
	STACKSIZE  = STACKPAGES * mem.PGSIZE
)

type elfseg_t struct {
	va    int
	memsz int
	prot  int
	data  []uint8
}

type elfimg_t struct {
	entry int
	segs  []elfseg_t
	// first byte past the highest segment
	end int
}

func _prot(f elf.ProgFlag) int {
	prot := defs.PROT_NONE
	if f&elf.PF_R != 0 {
		prot |= defs.PROT_READ
	}
	if f&elf.PF_W != 0 {
		prot |= defs.PROT_WRITE
	}
	if f&elf.PF_X != 0 {
		prot |= defs.PROT_EXEC
	}
	return prot
}

// _elfparse validates an rv64 executable and returns its loadable
// segments. every malformed image is -ENOEXEC.
func _elfparse(image []uint8) (*elfimg_t, defs.Err_t) {
	ef, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return nil, -defs.ENOEXEC
	}
	defer ef.Close()
	if ef.Class != elf.ELFCLASS64 || ef.Data != elf.ELFDATA2LSB ||
		ef.Machine != elf.EM_RISCV || ef.Type != elf.ET_EXEC {
		return nil, -defs.ENOEXEC
	}
	ret := &elfimg_t{entry: int(ef.Entry)}
	for _, ph := range ef.Progs {
		if ph.Type != elf.PT_LOAD || ph.Memsz == 0 {
			continue
		}
		if ph.Filesz > ph.Memsz || ph.Memsz > STACKTOP {
			return nil, -defs.ENOEXEC
		}
		va := int(ph.Vaddr)
		end := va + int(ph.Memsz)
		if va < vm.USERMIN || end > STACKTOP-STACKSIZE {
			return nil, -defs.ENOEXEC
		}
		// file bytes must lie in the image before they are copied out
		if ph.Off > uint64(len(image)) ||
			ph.Filesz > uint64(len(image))-ph.Off {
			return nil, -defs.ENOEXEC
		}
		data := make([]uint8, ph.Filesz)
		if _, err := io.ReadFull(ph.Open(), data); err != nil {
			return nil, -defs.ENOEXEC
		}
		seg := elfseg_t{va: va, memsz: int(ph.Memsz), prot: _prot(ph.Flags),
			data: data}
		ret.segs = append(ret.segs, seg)
		if end > ret.end {
			ret.end = end
		}
	}
	if len(ret.segs) == 0 {
		return nil, -defs.ENOEXEC
	}
	sort.Slice(ret.segs, func(i, j int) bool {
		return ret.segs[i].va < ret.segs[j].va
	})
	// segments sharing a page would need merged permissions
	for i := 1; i < len(ret.segs); i++ {
		prev := ret.segs[i-1]
		pend := util.Roundup(prev.va+prev.memsz, mem.PGSIZE)
		if util.Rounddown(ret.segs[i].va, mem.PGSIZE) < pend {
			return nil, -defs.ENOEXEC
		}
	}
	inseg := false
	for _, s := range ret.segs {
		if ret.entry >= s.va && ret.entry < s.va+s.memsz &&
			s.prot&defs.PROT_EXEC != 0 {
			inseg = true
		}
	}
	if !inseg {
		return nil, -defs.ENOEXEC
	}
	return ret, 0
}
