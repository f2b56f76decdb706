// Package xref builds the reverse cross-reference index (spec.md §4.F):
// for every direct call/jmp/Jcc whose operand is a literal address, record
// a {from, type} entry keyed by the canonical target. Indirect operands
// (registers, memory expressions, symbols) are skipped.
package xref

import (
	"regexp"
	"strconv"
	"strings"

	binmodel "github.com/xyproto/binscope/internal/binary"
)

// EdgeType is the xref's classification of the originating instruction.
type EdgeType int

const (
	Call EdgeType = iota
	Jmp
	Jcc
)

func (e EdgeType) String() string {
	switch e {
	case Call:
		return "call"
	case Jmp:
		return "jmp"
	default:
		return "jcc"
	}
}

// Entry is one static reference to a target address.
type Entry struct {
	From string
	Type EdgeType
}

var jccMnemonics = map[string]bool{}

func init() {
	for _, m := range strings.Split(
		"jo,jno,js,jns,je,jne,jz,jnz,jb,jnae,jc,jnb,jae,jnc,jbe,jna,ja,jnbe,"+
			"jl,jnge,jge,jnl,jle,jng,jg,jnle,jp,jpe,jnp,jpo,jcxz,jecxz,jrcxz,"+
			"loop,loope,loopne", ",") {
		jccMnemonics[m] = true
	}
}

var (
	hexHSuffix = regexp.MustCompile(`^[0-9a-fA-F]+h$`)
	hex0x      = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)
)

// Build scans insts and returns the reverse index keyed by canonical
// target address (spec.md "Xref entry").
func Build(insts []binmodel.Instruction, bits int) map[string][]Entry {
	index := make(map[string][]Entry)
	for _, inst := range insts {
		mnemonic := strings.ToLower(strings.TrimSpace(inst.Mnemonic))
		var kind EdgeType
		switch {
		case mnemonic == "call":
			kind = Call
		case mnemonic == "jmp":
			kind = Jmp
		case jccMnemonics[mnemonic]:
			kind = Jcc
		default:
			continue
		}

		target, ok := ResolveDirectTarget(inst.Operands, bits)
		if !ok {
			continue
		}
		index[target] = append(index[target], Entry{From: inst.AddrStr, Type: kind})
	}
	return index
}

// ResolveDirectTarget parses a direct literal operand ("1000h" or
// "0x1000"); register/memory/symbol operands return ok=false.
func ResolveDirectTarget(operand string, bits int) (string, bool) {
	op := strings.ToLower(strings.TrimSpace(operand))
	var value uint64
	switch {
	case hex0x.MatchString(op):
		v, err := strconv.ParseUint(op[2:], 16, 64)
		if err != nil {
			return "", false
		}
		value = v
	case hexHSuffix.MatchString(op):
		v, err := strconv.ParseUint(op[:len(op)-1], 16, 64)
		if err != nil {
			return "", false
		}
		value = v
	default:
		return "", false
	}
	return binmodel.CanonicalAddr(value, bits), true
}
