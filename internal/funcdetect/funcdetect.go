// Package funcdetect performs the linear function-boundary scan from
// spec.md §4.G: a start-of-function flag that clears on the first
// non-padding instruction and re-arms on any end-of-flow mnemonic,
// including the int3 padding bytes a linker inserts between functions.
package funcdetect

import (
	"strconv"
	"strings"

	binmodel "github.com/xyproto/binscope/internal/binary"
)

var endOfFlow = map[string]bool{
	"ret": true, "retn": true, "retq": true, "retf": true,
	"ud2": true, "hlt": true, "int3": true,
}

// Detect returns function labels keyed by canonical address, value
// "sub_<hex>" with the 0x prefix and leading zeros stripped (or "0" for
// address zero).
func Detect(insts []binmodel.Instruction) map[string]string {
	labels := make(map[string]string)
	atBoundary := true
	for _, inst := range insts {
		mnemonic := strings.ToLower(strings.TrimSpace(inst.Mnemonic))
		if atBoundary && mnemonic != "int3" {
			labels[inst.AddrStr] = "sub_" + trimHex(inst.AddrStr)
			atBoundary = false
		}
		if endOfFlow[mnemonic] {
			atBoundary = true
		}
	}
	return labels
}

func trimHex(canonical string) string {
	h := strings.TrimPrefix(canonical, "0x")
	v, err := strconv.ParseUint(h, 16, 64)
	if err != nil {
		return h
	}
	return strconv.FormatUint(v, 16)
}
