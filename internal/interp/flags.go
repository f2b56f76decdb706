package interp

import "math/bits"

// Flags holds the condition-code bits the interpreter tracks (spec.md §4.J).
type Flags struct {
	CF, ZF, SF, OF, PF, AF bool
}

func (f *Flags) reset() { *f = Flags{} }

// Check evaluates a Jcc condition-code mnemonic suffix against the current
// flags. jcxz/jecxz/jrcxz are accepted but always report false — they are
// documented as never-taken since the counter-register variant is not
// otherwise exercised by this interpreter.
func (f *Flags) Check(cc string) bool {
	switch cc {
	case "o":
		return f.OF
	case "no":
		return !f.OF
	case "s":
		return f.SF
	case "ns":
		return !f.SF
	case "e", "z":
		return f.ZF
	case "ne", "nz":
		return !f.ZF
	case "b", "nae", "c":
		return f.CF
	case "ae", "nb", "nc":
		return !f.CF
	case "be", "na":
		return f.CF || f.ZF
	case "a", "nbe":
		return !f.CF && !f.ZF
	case "l", "nge":
		return f.SF != f.OF
	case "ge", "nl":
		return f.SF == f.OF
	case "le", "ng":
		return f.ZF || (f.SF != f.OF)
	case "g", "nle":
		return !f.ZF && (f.SF == f.OF)
	case "p", "pe":
		return f.PF
	case "np", "po":
		return !f.PF
	case "cxz", "ecxz", "rcxz":
		return false
	}
	return false
}

// jccToCC strips the leading "j" from a Jcc mnemonic ("jne" -> "ne",
// "jcxz" -> "cxz").
func jccToCC(mnemonic string) string {
	if len(mnemonic) > 1 && mnemonic[0] == 'j' {
		return mnemonic[1:]
	}
	return mnemonic
}

func parity8(v uint64) bool {
	return bits.OnesCount8(uint8(v))%2 == 0
}

// updateArith recomputes flags after an add/sub on an n-bit result.
// raw is a+b or a-b computed in int64, which is the exact mathematical
// result (can be negative/over-width) for widths below 64; at width 64 it
// wraps, so CF is taken from an unsigned comparison of a, b and result.
// result is truncated to width bits; width is 8/16/32/64.
func (f *Flags) updateArith(raw int64, result uint64, width uint, a, b uint64, isSub bool) {
	mask := widthMask(width)
	f.ZF = (result & mask) == 0
	f.SF = (result>>(width-1))&1 == 1
	f.PF = parity8(result)

	f.CF = raw < 0 || uint64(raw) > mask
	if width >= 64 {
		if isSub {
			f.CF = a < b
		} else {
			f.CF = result < a
		}
	}

	sa := (a>>(width-1))&1 == 1
	sb := (b>>(width-1))&1 == 1
	sr := f.SF
	if isSub {
		f.OF = sa != sb && sr != sa
	} else {
		f.OF = sa == sb && sr != sa
	}
}

// updateLogic sets flags after a bitwise and/or/xor/test: cf=of=0, zf/sf/pf
// from the result.
func (f *Flags) updateLogic(result uint64, width uint) {
	f.CF = false
	f.OF = false
	mask := widthMask(width)
	f.ZF = (result & mask) == 0
	f.SF = (result>>(width-1))&1 == 1
	f.PF = parity8(result)
}
