package format

import (
	"testing"

	binmodel "github.com/xyproto/binscope/internal/binary"
)

func TestDetect(t *testing.T) {
	cases := []struct {
		name string
		buf  []byte
		want binmodel.FormatTag
	}{
		{"empty", nil, binmodel.Raw},
		{"too short", []byte{0x4D}, binmodel.Raw},
		{"pe", []byte{0x4D, 0x5A, 0x90, 0x00, 0x00, 0x00}, binmodel.PE},
		{"elf", []byte{0x7F, 0x45, 0x4C, 0x46, 0x02, 0x01}, binmodel.ELF},
		{"macho64 be", []byte{0xfe, 0xed, 0xfa, 0xcf, 0, 0, 0, 0}, binmodel.MachO64},
		{"macho64 le", []byte{0xcf, 0xfa, 0xed, 0xfe, 0, 0, 0, 0}, binmodel.MachO64},
		{"macho32 be", []byte{0xfe, 0xed, 0xfa, 0xce, 0, 0, 0, 0}, binmodel.MachO32},
		// 0xCAFEBABE is shared between Mach-O Fat and Java class files;
		// the detector must always prefer Mach-O per spec.md §4.A.
		{"cafebabe prefers macho fat", []byte{0xca, 0xfe, 0xba, 0xbe, 0, 0, 0, 3}, binmodel.MachOFat},
		{"raw", []byte{0x01, 0x02, 0x03, 0x04}, binmodel.Raw},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Detect(c.buf)
			if got.Type != c.want {
				t.Fatalf("Detect(%v) = %v, want %v", c.buf, got.Type, c.want)
			}
		})
	}
}
