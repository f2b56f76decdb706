// Package format classifies a raw buffer into one of the container
// formats binscope understands (spec.md §4.A). It is a pure function of
// the first handful of bytes — no parsing happens here, only identification.
package format

import (
	"encoding/binary"

	binmodel "github.com/xyproto/binscope/internal/binary"
)

// Mach-O magic constants, grounded on the teacher's own macho.go writer
// (MH_MAGIC_64 = 0xfeedfacf etc.) — read back the same values it emits.
const (
	machMagic32    = 0xfeedface
	machCigam32    = 0xcefaedfe
	machMagic64    = 0xfeedfacf
	machCigam64    = 0xcffaedfe
	machFatOrClass = 0xcafebabe
)

// Result is what the detector returns.
type Result struct {
	Type        binmodel.FormatTag
	Description string
}

// Detect classifies buf using the exact ordering spec.md §4.A requires:
// length check first, then MZ, then ELF magic, then the big-endian u32 at
// offset 0 against the Mach-O constants (CAFEBABE preferred over
// JavaClass when both share the same magic).
func Detect(buf []byte) Result {
	if len(buf) < 4 {
		return Result{Type: binmodel.Raw, Description: "too small"}
	}
	if buf[0] == 0x4D && buf[1] == 0x5A {
		return Result{Type: binmodel.PE, Description: "Portable Executable"}
	}
	if len(buf) >= 4 && buf[0] == 0x7F && buf[1] == 0x45 && buf[2] == 0x4C && buf[3] == 0x46 {
		return Result{Type: binmodel.ELF, Description: "Executable and Linkable Format"}
	}

	magic32 := binary.BigEndian.Uint32(buf[0:4])
	switch magic32 {
	case machMagic32, machCigam32:
		return Result{Type: binmodel.MachO32, Description: "Mach-O 32-bit"}
	case machMagic64, machCigam64:
		return Result{Type: binmodel.MachO64, Description: "Mach-O 64-bit"}
	case machFatOrClass:
		// CAFEBABE is shared between Mach-O Fat binaries and Java class
		// files; the detector prefers Mach-O (spec.md §4.A), so 0xCAFEBABE
		// is always classified MachOFat and Detect never returns JavaClass.
		return Result{Type: binmodel.MachOFat, Description: "Mach-O Fat binary"}
	}

	return Result{Type: binmodel.Raw, Description: "unrecognized format"}
}
