// Package decode wraps a pluggable x86 decoder behind the Decoder Adapter
// contract from spec.md §4.E: cap the input, cap the instruction count,
// and substitute a hex-dump fallback whenever no decoder is available or
// the decoder fails. The real decoder is golang.org/x/arch/x86/x86asm —
// the same package maxgio92/resurgo's prologue scanner and pattyshack/bad's
// full disassembler build on — wrapped so its instruction schema matches
// spec.md §3's Instruction record exactly.
package decode

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"

	binmodel "github.com/xyproto/binscope/internal/binary"
	"github.com/xyproto/binscope/internal/diag"
)

const (
	maxInputBytes         = 2 * 1024 * 1024 // 2 MiB
	defaultMaxInstructions = 10000
	fallbackMaxRows       = 32
	fallbackRowBytes      = 16
)

// MaxInstructions is the decoder adapter's instruction-count cap. It
// defaults to the spec's 10,000 but the CLI overrides it at startup from
// BINSCOPE_MAX_INSTRUCTIONS.
var MaxInstructions = defaultMaxInstructions

// Decoder is the pluggable abstract decode operation (spec.md §6 "Decoder
// contract"). A nil Decoder, or one that errors/panics, triggers the
// built-in hex-dump fallback — the adapter never propagates the failure.
type Decoder interface {
	Decode(code []byte, baseVA uint64, bits int) ([]binmodel.Instruction, error)
}

// Result is what the adapter returns to the pipeline.
type Result struct {
	Instructions []binmodel.Instruction
	Fallback     bool
}

// Adapt runs dec over code, applying the input/count caps and substituting
// the hex-dump fallback on any failure. dec may be nil.
func Adapt(dec Decoder, code []byte, baseVA uint64, bits int) Result {
	bits = binmodel.ClampBits(bits)
	if len(code) > maxInputBytes {
		diag.Logf("decode: capping input from %d to %d bytes", len(code), maxInputBytes)
		code = code[:maxInputBytes]
	}

	if dec != nil {
		insts, err := safeDecode(dec, code, baseVA, bits)
		if err == nil {
			if len(insts) > MaxInstructions {
				diag.Logf("decode: capping instruction count from %d to %d", len(insts), MaxInstructions)
				insts = insts[:MaxInstructions]
			}
			return Result{Instructions: insts, Fallback: false}
		}
		diag.Warnf("decoder unavailable, using hex-dump fallback: %v", err)
	}

	return Result{Instructions: hexDumpFallback(code, baseVA, bits), Fallback: true}
}

// safeDecode recovers from a decoder panic the same way the adapter
// recovers from a returned error — the decoder is an external collaborator
// and must never take the pipeline down with it.
func safeDecode(dec Decoder, code []byte, baseVA uint64, bits int) (insts []binmodel.Instruction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoder panicked: %v", r)
		}
	}()
	return dec.Decode(code, baseVA, bits)
}

func hexDumpFallback(code []byte, baseVA uint64, bits int) []binmodel.Instruction {
	rows := make([]binmodel.Instruction, 0, fallbackMaxRows)
	for row := 0; row < fallbackMaxRows; row++ {
		start := row * fallbackRowBytes
		if start >= len(code) {
			break
		}
		end := start + fallbackRowBytes
		if end > len(code) {
			end = len(code)
		}
		chunk := code[start:end]
		addr := baseVA + uint64(start)

		rows = append(rows, binmodel.Instruction{
			Address:  addr,
			AddrStr:  fmt.Sprintf("0x%08x", addr),
			Bytes:    hexBytes(chunk),
			Mnemonic: asciiTransliterate(chunk),
			Operands: "",
		})
	}
	return rows
}

func hexBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02x", v)
	}
	return strings.Join(parts, " ")
}

func asciiTransliterate(b []byte) string {
	out := make([]byte, len(b))
	for i, v := range b {
		if v >= 0x20 && v < 0x7f {
			out[i] = v
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}

// X86Decoder is the real Decoder, backed by golang.org/x/arch/x86/x86asm.
type X86Decoder struct{}

// Decode linearly disassembles code starting at baseVA. Addresses are
// zero-padded to 16 nibbles for 64-bit mode, 8 otherwise (spec.md §4.E).
func (X86Decoder) Decode(code []byte, baseVA uint64, bits int) ([]binmodel.Instruction, error) {
	bits = binmodel.ClampBits(bits)
	var insts []binmodel.Instruction
	offset := 0
	for offset < len(code) {
		inst, err := x86asm.Decode(code[offset:], bits)
		if err != nil || inst.Len == 0 {
			// Unknown byte: advance one byte so a single bad opcode
			// doesn't stall the whole linear scan; record nothing for it.
			offset++
			continue
		}
		addr := baseVA + uint64(offset)
		text := strings.ToLower(x86asm.IntelSyntax(inst, addr, nil))
		mnemonic, operands, _ := strings.Cut(text, " ")

		insts = append(insts, binmodel.Instruction{
			Address:  addr,
			AddrStr:  binmodel.CanonicalAddr(addr, bits),
			Bytes:    hexBytes(code[offset : offset+inst.Len]),
			Mnemonic: mnemonic,
			Operands: strings.TrimSpace(operands),
		})
		offset += inst.Len
	}
	return insts, nil
}
