package elf

import "encoding/binary"

// buildMinimalELF64LE assembles a 64-byte ELF64 little-endian header, one
// section header, and a minimal ".text\x00" section-header string table,
// mirroring the field order the teacher's own WriteELF encoder uses.
func buildMinimalELF64LE() []byte {
	const ehsize = 64
	const shentsize = 64

	buf := make([]byte, ehsize)
	buf[0], buf[1], buf[2], buf[3] = 0x7F, 'E', 'L', 'F'
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EI_VERSION

	binary.LittleEndian.PutUint16(buf[16:18], 2)      // e_type: EXEC
	binary.LittleEndian.PutUint16(buf[18:20], 0x3E)    // e_machine: AMD64
	binary.LittleEndian.PutUint64(buf[24:32], 0x401000) // e_entry
	binary.LittleEndian.PutUint64(buf[40:48], uint64(ehsize)) // e_shoff right after header
	binary.LittleEndian.PutUint16(buf[58:60], shentsize)
	binary.LittleEndian.PutUint16(buf[60:62], 1) // e_shnum: 1 section
	binary.LittleEndian.PutUint16(buf[62:64], 0) // e_shstrndx: section 0 is the strtab itself

	strtabData := []byte("\x00.text\x00")

	section := make([]byte, shentsize)
	binary.LittleEndian.PutUint32(section[0:4], 1) // sh_name offset into strtab: ".text"
	binary.LittleEndian.PutUint32(section[4:8], 3)  // sh_type: STRTAB (doubles as data holder for this fixture)
	binary.LittleEndian.PutUint64(section[8:16], 0x6) // sh_flags: ALLOC|EXEC
	binary.LittleEndian.PutUint64(section[16:24], 0x401000)
	sectionOffset := uint64(ehsize + shentsize)
	binary.LittleEndian.PutUint64(section[24:32], sectionOffset)
	binary.LittleEndian.PutUint64(section[32:40], uint64(len(strtabData)))

	buf = append(buf, section...)
	buf = append(buf, strtabData...)
	return buf
}
