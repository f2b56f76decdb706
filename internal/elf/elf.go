// Package elf decodes the ELF identification, header, and section headers
// of an ELF32/64 image (spec.md §4.C). Grounded on the teacher's ELF
// encoder (WriteELF) for the field ordering and on pattyshack/bad's
// standalone elf.Parse for the reader-side shape (Parse(io.Reader) → *File,
// bounds-checked field reads keyed on the class byte).
package elf

import (
	"encoding/binary"
	"fmt"
	"strings"

	binmodel "github.com/xyproto/binscope/internal/binary"
	"github.com/xyproto/binscope/internal/binerr"
)

const (
	identSize    = 16
	shfWrite     = 0x1
	shfAlloc     = 0x2
	shfExecInstr = 0x4
)

var machineNames = map[uint16]string{
	0x02: "SPARC",
	0x03: "X86",
	0x08: "MIPS",
	0x14: "PowerPC",
	0x16: "S390",
	0x28: "ARM",
	0x2A: "SuperH",
	0x32: "IA-64",
	0x3E: "AMD64",
	0xB7: "AArch64",
	0xF3: "RISC-V",
}

// machineBits is consulted before falling back to the ei_class-derived bit
// width, per spec.md §4.C ("bits is looked up from machine; falls back to class").
var machineBits = map[uint16]int{
	0x03: 32, // X86
	0x08: 32, // MIPS (o32 default)
	0x14: 32, // PowerPC
	0x28: 32, // ARM
	0x2A: 32, // SuperH
	0x3E: 64, // AMD64
	0xB7: 64, // AArch64
	0xF3: 64, // RISC-V (rv64 default)
}

var shtNames = map[uint32]string{
	0: "NULL", 1: "PROGBITS", 2: "SYMTAB", 3: "STRTAB", 4: "RELA",
	5: "HASH", 6: "DYNAMIC", 7: "NOTE", 8: "NOBITS", 9: "REL",
	10: "SHLIB", 11: "DYNSYM",
}

// Parse decodes an ELF image from buf into the uniform ParsedBinary model.
func Parse(buf []byte) (*binmodel.ParsedBinary, error) {
	if len(buf) < identSize {
		return nil, binerr.New(binerr.InvalidFormat, "buffer shorter than e_ident (%d bytes)", len(buf))
	}
	if buf[0] != 0x7F || buf[1] != 'E' || buf[2] != 'L' || buf[3] != 'F' {
		return nil, binerr.New(binerr.InvalidFormat, "missing ELF magic")
	}

	eiClass := buf[4]
	eiData := buf[5]
	is64 := eiClass == 2
	isLE := eiData == 1

	var order binary.ByteOrder = binary.LittleEndian
	if !isLE {
		order = binary.BigEndian
	}

	ehsize := 52
	if is64 {
		ehsize = 64
	}
	if len(buf) < ehsize {
		return nil, binerr.New(binerr.TooSmall, "buffer shorter than ELF header (%d bytes)", len(buf))
	}

	var eType, eMachine uint16
	var eEntry, eShoff uint64
	var eShentsize, eShnum, eShstrndx uint16

	eType = order.Uint16(buf[16:18])
	eMachine = order.Uint16(buf[18:20])
	if is64 {
		eEntry = order.Uint64(buf[24:32])
		eShoff = order.Uint64(buf[40:48])
		eShentsize = order.Uint16(buf[58:60])
		eShnum = order.Uint16(buf[60:62])
		eShstrndx = order.Uint16(buf[62:64])
	} else {
		eEntry = uint64(order.Uint32(buf[24:28]))
		eShoff = uint64(order.Uint32(buf[32:36]))
		eShentsize = order.Uint16(buf[46:48])
		eShnum = order.Uint16(buf[48:50])
		eShstrndx = order.Uint16(buf[50:52])
	}

	bits, ok := machineBits[eMachine]
	if !ok {
		bits = 32
		if is64 {
			bits = 64
		}
	}

	type rawShdr struct {
		name, typ, flags, addr, offset, size uint64
	}
	raw := make([]rawShdr, 0, eShnum)
	for i := 0; i < int(eShnum); i++ {
		off := int(eShoff) + i*int(eShentsize)
		if eShentsize == 0 || off+int(eShentsize) > len(buf) {
			break
		}
		row := buf[off:]
		var r rawShdr
		if is64 {
			r.name = uint64(order.Uint32(row[0:4]))
			r.typ = uint64(order.Uint32(row[4:8]))
			r.flags = order.Uint64(row[8:16])
			r.addr = order.Uint64(row[16:24])
			r.offset = order.Uint64(row[24:32])
			r.size = order.Uint64(row[32:40])
		} else {
			r.name = uint64(order.Uint32(row[0:4]))
			r.typ = uint64(order.Uint32(row[4:8]))
			r.flags = uint64(order.Uint32(row[8:12]))
			r.addr = uint64(order.Uint32(row[12:16]))
			r.offset = uint64(order.Uint32(row[16:20]))
			r.size = uint64(order.Uint32(row[20:24]))
		}
		raw = append(raw, r)
	}

	var strtab []byte
	if int(eShstrndx) < len(raw) {
		s := raw[eShstrndx]
		if s.offset+s.size <= uint64(len(buf)) {
			strtab = buf[s.offset : s.offset+s.size]
		}
	}

	sections := make([]binmodel.Section, 0, len(raw))
	for i, r := range raw {
		name := sectionName(strtab, r.name, i)
		sections = append(sections, binmodel.Section{
			Name:           name,
			VirtualAddress: r.addr,
			VirtualSize:    0,
			RawOffset:      r.offset,
			RawSize:        r.size,
			Flags:          uint32(r.flags),
			FlagsStr:       elfFlagsString(uint32(r.flags)),
			TypeStr:        shtString(uint32(r.typ)),
			IsCode:         r.flags&shfExecInstr != 0,
		})
	}

	arch := machineNames[eMachine]
	if arch == "" {
		arch = fmt.Sprintf("machine_%#x", eMachine)
	}
	typeStr := elfTypeString(eType)

	info := map[string]string{
		"e_type":    typeStr,
		"endian":    map[bool]string{true: "little", false: "big"}[isLE],
		"shoff":     fmt.Sprintf("0x%x", eShoff),
		"shnum":     fmt.Sprintf("%d", eShnum),
		"shstrndx":  fmt.Sprintf("%d", eShstrndx),
	}

	pb := &binmodel.ParsedBinary{
		Format:     binmodel.ELF,
		Type:       typeStr,
		Arch:       arch,
		Bits:       bits,
		EntryPoint: eEntry,
		HasEntry:   eEntry != 0,
		Sections:   sections,
		Info:       info,
		Summary:    fmt.Sprintf("ELF%d %s %s, %d sections, entry %#x", bits, arch, typeStr, len(sections), eEntry),
	}
	return pb, nil
}

func sectionName(strtab []byte, nameOff uint64, idx int) string {
	if strtab == nil || nameOff >= uint64(len(strtab)) {
		return fmt.Sprintf("section_%d", idx)
	}
	end := nameOff
	for end < uint64(len(strtab)) && strtab[end] != 0 {
		end++
	}
	name := string(strtab[nameOff:end])
	if name == "" {
		return fmt.Sprintf("section_%d", idx)
	}
	return name
}

func elfFlagsString(flags uint32) string {
	var parts []string
	if flags&shfWrite != 0 {
		parts = append(parts, "WRITE")
	}
	if flags&shfAlloc != 0 {
		parts = append(parts, "ALLOC")
	}
	if flags&shfExecInstr != 0 {
		parts = append(parts, "EXEC")
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%#x", flags)
	}
	return strings.Join(parts, "|")
}

func shtString(typ uint32) string {
	if name, ok := shtNames[typ]; ok {
		return name
	}
	return fmt.Sprintf("%#x", typ)
}

func elfTypeString(t uint16) string {
	switch t {
	case 1:
		return "REL"
	case 2:
		return "EXEC"
	case 3:
		return "DYN"
	case 4:
		return "CORE"
	default:
		return fmt.Sprintf("%#x", t)
	}
}
