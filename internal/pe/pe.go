// Package pe decodes the DOS/COFF/optional headers and section table of a
// PE image (spec.md §4.B). Field offsets here are the mirror image of the
// teacher's own encoder in elf.go's sibling pe.go (WritePEHeaderWithImports),
// which writes exactly the layout this package reads back.
package pe

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	binmodel "github.com/xyproto/binscope/internal/binary"
	"github.com/xyproto/binscope/internal/binerr"
)

const (
	dosHeaderSize   = 0x40
	peSigSize       = 4
	coffHeaderSize  = 20
	sectionRowSize  = 40
	optMagicPE32    = 0x10B
	optMagicPE32p   = 0x20B
)

// section characteristic bits (spec.md §4.B).
const (
	scnCntCode     = 0x00000020
	scnCntInitData = 0x00000040
	scnCntUninit   = 0x00000080
	scnMemExecute  = 0x20000000
	scnMemRead     = 0x40000000
	scnMemWrite    = 0x80000000
)

var sectionFlagNames = []struct {
	bit  uint32
	name string
}{
	{scnCntCode, "CODE"},
	{scnCntInitData, "INIT_DATA"},
	{scnCntUninit, "UNINIT_DATA"},
	{scnMemExecute, "EXEC"},
	{scnMemRead, "READ"},
	{scnMemWrite, "WRITE"},
}

var machineNames = map[uint16]string{
	0x014c: "I386",
	0x0200: "IA64",
	0x8664: "AMD64",
	0xaa64: "ARM64",
	0x01c0: "ARM",
}

// Parse decodes a PE image from buf into the uniform ParsedBinary model.
func Parse(buf []byte) (*binmodel.ParsedBinary, error) {
	if len(buf) < dosHeaderSize {
		return nil, binerr.New(binerr.InvalidFormat, "buffer shorter than DOS header (%d bytes)", len(buf))
	}
	if buf[0] != 'M' || buf[1] != 'Z' {
		return nil, binerr.New(binerr.InvalidFormat, "missing MZ signature")
	}

	lfanew := binary.LittleEndian.Uint32(buf[0x3C:0x40])
	peOff := uint64(lfanew)
	if peOff+peSigSize+coffHeaderSize > uint64(len(buf)) {
		return nil, binerr.New(binerr.InvalidFormat, "e_lfanew %#x overflows buffer", lfanew)
	}
	sigOff := int(peOff)
	if !(buf[sigOff] == 'P' && buf[sigOff+1] == 'E' && buf[sigOff+2] == 0 && buf[sigOff+3] == 0) {
		return nil, binerr.New(binerr.InvalidFormat, "missing PE signature at %#x", peOff)
	}

	coffOff := sigOff + peSigSize
	machine := binary.LittleEndian.Uint16(buf[coffOff : coffOff+2])
	numSections := binary.LittleEndian.Uint16(buf[coffOff+2 : coffOff+4])
	timestamp := binary.LittleEndian.Uint32(buf[coffOff+4 : coffOff+8])
	sizeOfOptHeader := binary.LittleEndian.Uint16(buf[coffOff+16 : coffOff+18])
	characteristics := binary.LittleEndian.Uint16(buf[coffOff+18 : coffOff+20])

	optBase := coffOff + coffHeaderSize
	if optBase+2 > len(buf) {
		return nil, binerr.New(binerr.InvalidFormat, "optional header out of bounds")
	}
	optMagic := binary.LittleEndian.Uint16(buf[optBase : optBase+2])
	is64 := optMagic == optMagicPE32p

	var entryPoint, imageBase uint64
	var baseOfCode uint32
	var subsystem uint16
	if optBase+24 <= len(buf) {
		entryPoint = uint64(binary.LittleEndian.Uint32(buf[optBase+16 : optBase+20]))
		baseOfCode = binary.LittleEndian.Uint32(buf[optBase+20 : optBase+24])
	}
	if is64 {
		if optBase+32 <= len(buf) {
			imageBase = binary.LittleEndian.Uint64(buf[optBase+24 : optBase+32])
		}
	} else {
		if optBase+32 <= len(buf) {
			imageBase = uint64(binary.LittleEndian.Uint32(buf[optBase+28 : optBase+32]))
		}
	}
	if optBase+70 <= len(buf) {
		subsystem = binary.LittleEndian.Uint16(buf[optBase+68 : optBase+70])
	}

	sectionTableOff := optBase + int(sizeOfOptHeader)
	sections := make([]binmodel.Section, 0, numSections)
	for i := 0; i < int(numSections); i++ {
		rowOff := sectionTableOff + i*sectionRowSize
		if rowOff+sectionRowSize > len(buf) {
			break
		}
		row := buf[rowOff : rowOff+sectionRowSize]
		name := strings.TrimRight(string(row[0:8]), "\x00")
		if name == "" {
			name = fmt.Sprintf("section_%d", i)
		}
		virtualSize := uint64(binary.LittleEndian.Uint32(row[8:12]))
		virtualAddr := uint64(binary.LittleEndian.Uint32(row[12:16]))
		rawSize := uint64(binary.LittleEndian.Uint32(row[16:20]))
		rawOffset := uint64(binary.LittleEndian.Uint32(row[20:24]))
		flags := binary.LittleEndian.Uint32(row[36:40])

		sections = append(sections, binmodel.Section{
			Name:           name,
			VirtualAddress: virtualAddr,
			VirtualSize:    virtualSize,
			RawOffset:      rawOffset,
			RawSize:        rawSize,
			Flags:          flags,
			FlagsStr:       flagsString(flags),
			TypeStr:        "SECTION",
			IsCode:         flags&(scnCntCode|scnMemExecute) == (scnCntCode | scnMemExecute),
		})
	}

	fileType := "OBJ"
	if characteristics&0x2000 != 0 {
		fileType = "DLL"
	} else if characteristics&0x0002 != 0 {
		fileType = "EXE"
	}

	bits := 32
	if is64 {
		bits = 64
	}
	arch := machineNames[machine]
	if arch == "" {
		arch = fmt.Sprintf("machine_%#x", machine)
	}

	ts := time.Unix(int64(timestamp), 0).UTC().Format("2006-01-02 15:04:05") + " UTC"

	info := map[string]string{
		"machine":          arch,
		"timestamp":        ts,
		"subsystem":        fmt.Sprintf("%d", subsystem),
		"base_of_code":     fmt.Sprintf("0x%x", baseOfCode),
		"image_base":       fmt.Sprintf("0x%x", imageBase),
		"characteristics":  fmt.Sprintf("0x%x", characteristics),
		"number_of_sections": fmt.Sprintf("%d", numSections),
	}

	pb := &binmodel.ParsedBinary{
		Format:     binmodel.PE,
		Type:       fileType,
		Arch:       arch,
		Bits:       bits,
		EntryPoint: imageBase + entryPoint,
		HasEntry:   true,
		Sections:   sections,
		Info:       info,
		Summary:    fmt.Sprintf("PE %s %s, %d sections, entry %#x", arch, fileType, len(sections), imageBase+entryPoint),
	}
	return pb, nil
}

func flagsString(flags uint32) string {
	var parts []string
	for _, f := range sectionFlagNames {
		if flags&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%#x", flags)
	}
	return strings.Join(parts, "|")
}
