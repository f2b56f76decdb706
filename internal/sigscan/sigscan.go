// Package sigscan performs the fixed-pattern byte scan from spec.md §4.H:
// a handful of recognizable machine-code idioms (string ops, syscall
// gates, indirect thunk stubs) scanned directly over the code bytes,
// independent of whatever the decoder managed to disassemble.
package sigscan

import (
	"fmt"

	binmodel "github.com/xyproto/binscope/internal/binary"
)

const maxScanBytes = 1 * 1024 * 1024 // 1 MiB

// Hit is one byte-signature match.
type Hit struct {
	Address string
	Name    string
	Note    string
}

type pattern struct {
	bytes []byte
	name  string
	note  string
}

// patterns, scanned in this exact order (spec.md §4.H); matches may
// overlap across different patterns but a match advances by its own
// length before the scan resumes.
var patterns = []pattern{
	{[]byte{0xF3, 0xAA}, "rep stosb", "byte fill loop"},
	{[]byte{0xF3, 0xAB}, "rep stosd", "dword fill loop"},
	{[]byte{0xF3, 0xA4}, "rep movsb", "byte copy loop"},
	{[]byte{0xF3, 0xA5}, "rep movsd", "dword copy loop"},
	{[]byte{0x0F, 0x05}, "syscall", "fast syscall entry"},
	{[]byte{0xCD, 0x80}, "int 0x80", "legacy Linux syscall gate"},
	{[]byte{0xFF, 0x25}, "jmp [mem]", "indirect jump, likely a PLT/IAT stub"},
	{[]byte{0xFF, 0x15}, "call [mem]", "indirect call, likely an IAT thunk"},
}

// Scan finds every occurrence of each pattern within the first
// min(len(code), 1 MiB) bytes of code, in pattern order.
func Scan(code []byte, baseVA uint64, bits int) []Hit {
	limit := len(code)
	if limit > maxScanBytes {
		limit = maxScanBytes
	}
	region := code[:limit]

	var hits []Hit
	for _, p := range patterns {
		for i := 0; i+len(p.bytes) <= len(region); {
			if matches(region[i:i+len(p.bytes)], p.bytes) {
				hits = append(hits, Hit{
					Address: binmodel.CanonicalAddr(baseVA+uint64(i), bits),
					Name:    p.name,
					Note:    p.note,
				})
				i += len(p.bytes)
				continue
			}
			i++
		}
	}
	return hits
}

func matches(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (h Hit) String() string {
	return fmt.Sprintf("%s: %s (%s)", h.Address, h.Name, h.Note)
}
