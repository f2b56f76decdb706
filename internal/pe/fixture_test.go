package pe

import "encoding/binary"

// buildMinimalPE32Plus assembles the smallest PE32+ image the parser can
// read: a 64-byte DOS stub, the PE signature, a one-section COFF header,
// and a minimal optional header. The byte layout mirrors the teacher's own
// WritePEHeaderWithImports encoder in the retrieval pack's pe.go — that
// function writes this exact header shape; here it is replayed by hand
// for a single deterministic fixture rather than imported, since the
// teacher's encoder builds a full dynamically-linked image we don't need.
func buildMinimalPE32Plus() []byte {
	buf := make([]byte, dosHeaderSize)
	buf[0], buf[1] = 'M', 'Z'
	lfanewOff := uint32(dosHeaderSize)
	binary.LittleEndian.PutUint32(buf[0x3C:0x40], lfanewOff)

	// PE signature.
	buf = append(buf, 'P', 'E', 0, 0)

	// COFF header (20 bytes).
	coff := make([]byte, coffHeaderSize)
	binary.LittleEndian.PutUint16(coff[0:2], 0x8664) // machine: AMD64
	binary.LittleEndian.PutUint16(coff[2:4], 1)       // NumberOfSections
	binary.LittleEndian.PutUint32(coff[4:8], 0)       // TimeDateStamp
	const optHeaderSize = 112
	binary.LittleEndian.PutUint16(coff[16:18], optHeaderSize)
	binary.LittleEndian.PutUint16(coff[18:20], 0x0002) // characteristics: EXE
	buf = append(buf, coff...)

	opt := make([]byte, optHeaderSize)
	binary.LittleEndian.PutUint16(opt[0:2], optMagicPE32p) // 0x020B
	binary.LittleEndian.PutUint32(opt[16:20], 0x1500)       // AddressOfEntryPoint
	binary.LittleEndian.PutUint32(opt[20:24], 0x1000)       // BaseOfCode
	binary.LittleEndian.PutUint64(opt[24:32], 0x140000000)  // ImageBase
	binary.LittleEndian.PutUint16(opt[68:70], 3)            // Subsystem
	buf = append(buf, opt...)

	section := make([]byte, sectionRowSize)
	copy(section[0:8], ".text")
	binary.LittleEndian.PutUint32(section[8:12], 0x10)     // VirtualSize
	binary.LittleEndian.PutUint32(section[12:16], 0x1000)  // VirtualAddress
	binary.LittleEndian.PutUint32(section[16:20], 0x10)    // SizeOfRawData
	binary.LittleEndian.PutUint32(section[20:24], 0x200)   // PointerToRawData
	binary.LittleEndian.PutUint32(section[36:40], 0x60000020)
	buf = append(buf, section...)

	return buf
}
