// Package cfg partitions a linear instruction sequence into basic blocks
// and classifies their successor edges (spec.md §4.I). Target resolution
// reuses the xref package's direct-operand parser — a jump target is a
// literal address under the exact same rules an xref entry requires.
package cfg

import (
	"strings"

	binmodel "github.com/xyproto/binscope/internal/binary"
	"github.com/xyproto/binscope/internal/xref"
)

// EdgeKind is a basic block's successor classification.
type EdgeKind int

const (
	Fall EdgeKind = iota
	Jump
)

func (e EdgeKind) String() string {
	if e == Jump {
		return "jump"
	}
	return "fall"
}

// Edge is one successor of a basic block.
type Edge struct {
	To   string
	Type EdgeKind
}

// Block is a maximal straight-line instruction run with one entry and,
// after a terminating branch, up to two exits.
type Block struct {
	ID    string // address of the first instruction
	Insts []binmodel.Instruction
	Succs []Edge
}

var endOfFlow = map[string]bool{
	"jmp": true, "ret": true, "retn": true, "retq": true, "retf": true,
	"ud2": true, "hlt": true,
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

func isBlockEnder(mnemonic string) bool {
	return endOfFlow[mnemonic] || jccMnemonics[mnemonic] || mnemonic == "call"
}

// Build partitions insts into basic blocks and classifies each block's
// successor edges.
func Build(insts []binmodel.Instruction, bits int) []Block {
	if len(insts) == 0 {
		return nil
	}

	starts := computeStarts(insts, bits)

	var blocks []Block
	var cur *Block
	for i, inst := range insts {
		if starts[inst.AddrStr] || cur == nil {
			if cur != nil {
				blocks = append(blocks, *cur)
			}
			cur = &Block{ID: inst.AddrStr}
		}
		cur.Insts = append(cur.Insts, inst)

		// Peek at whether this is the last instruction before a new
		// start or end of stream; if so close the block immediately so
		// fallthrough edges can reference the *next* block's start.
		isLast := i == len(insts)-1 || starts[insts[i+1].AddrStr]
		if isLast {
			cur.Succs = successorsFor(*cur, insts, i, bits)
			blocks = append(blocks, *cur)
			cur = nil
		}
	}
	return blocks
}

// computeStarts marks addresses that begin a new basic block: the first
// instruction, the instruction after any block-ending mnemonic, and any
// resolvable direct branch target.
func computeStarts(insts []binmodel.Instruction, bits int) map[string]bool {
	starts := map[string]bool{insts[0].AddrStr: true}
	for i, inst := range insts {
		mnemonic := strings.ToLower(strings.TrimSpace(inst.Mnemonic))
		if !isBlockEnder(mnemonic) {
			continue
		}
		if i+1 < len(insts) {
			starts[insts[i+1].AddrStr] = true
		}
		if target, ok := xref.ResolveDirectTarget(inst.Operands, bits); ok {
			starts[target] = true
		}
	}
	return starts
}

func successorsFor(block Block, insts []binmodel.Instruction, lastIdx int, bits int) []Edge {
	last := block.Insts[len(block.Insts)-1]
	mnemonic := strings.ToLower(strings.TrimSpace(last.Mnemonic))

	var nextAddr string
	if lastIdx+1 < len(insts) {
		nextAddr = insts[lastIdx+1].AddrStr
	}

	switch {
	case jccMnemonics[mnemonic]:
		var edges []Edge
		if nextAddr != "" {
			edges = append(edges, Edge{To: nextAddr, Type: Fall})
		}
		if target, ok := xref.ResolveDirectTarget(last.Operands, bits); ok {
			edges = append(edges, Edge{To: target, Type: Jump})
		}
		return edges
	case mnemonic == "jmp":
		if target, ok := xref.ResolveDirectTarget(last.Operands, bits); ok {
			return []Edge{{To: target, Type: Jump}}
		}
		return nil
	case endOfFlow[mnemonic]:
		return nil
	default:
		if nextAddr != "" {
			return []Edge{{To: nextAddr, Type: Fall}}
		}
		return nil
	}
}
