package hart

import "bytes"
import "debug/elf"
import "encoding/binary"

import "github.com/chaoskernel/chaos/mem"
import "github.com/chaoskernel/chaos/util"

const (
	ehdrsz = 64
	phdrsz = 56
)

// Mkelf returns the rv64 executable image of p: a read/execute text
// segment holding the program header and one slot per step, and a
// read/write data segment holding p's strings followed by the scratch area.
func Mkelf(p *Prog_t) []uint8 {
	if err := p.Check(); err != nil {
		panic(err)
	}
	text := make([]uint8, HDRSZ+4*len(p.steps))
	copy(text, magic[:])
	copy(text[len(magic):], p.Name)

	textoff := uint64(mem.PGSIZE)
	dataoff := textoff + uint64(util.Roundup(len(text), mem.PGSIZE))

	var ident [elf.EI_NIDENT]uint8
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = uint8(elf.ELFCLASS64)
	ident[elf.EI_DATA] = uint8(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = uint8(elf.EV_CURRENT)
	ident[elf.EI_OSABI] = uint8(elf.ELFOSABI_NONE)

	hdr := elf.Header64{
		Ident:     ident,
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_RISCV),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     ENTRY,
		Phoff:     ehdrsz,
		Ehsize:    ehdrsz,
		Phentsize: phdrsz,
		Phnum:     2,
	}
	progs := []elf.Prog64{
		{
			Type:   uint32(elf.PT_LOAD),
			Flags:  uint32(elf.PF_R | elf.PF_X),
			Off:    textoff,
			Vaddr:  TEXTVA,
			Paddr:  TEXTVA,
			Filesz: uint64(len(text)),
			Memsz:  uint64(len(text)),
			Align:  uint64(mem.PGSIZE),
		},
		{
			Type:   uint32(elf.PT_LOAD),
			Flags:  uint32(elf.PF_R | elf.PF_W),
			Off:    dataoff,
			Vaddr:  DATAVA,
			Paddr:  DATAVA,
			Filesz: uint64(len(p.data)),
			Memsz:  uint64(mem.PGSIZE + SCRATCHSZ),
			Align:  uint64(mem.PGSIZE),
		},
	}

	buf := &bytes.Buffer{}
	le := binary.LittleEndian
	if err := binary.Write(buf, le, &hdr); err != nil {
		panic(err)
	}
	if err := binary.Write(buf, le, progs); err != nil {
		panic(err)
	}
	ret := make([]uint8, dataoff+uint64(len(p.data)))
	copy(ret, buf.Bytes())
	copy(ret[textoff:], text)
	copy(ret[dataoff:], p.data)
	return ret
}
