// Package interp is the deterministic x86/x86-64 interpreter (spec.md
// §4.J): a tagged register file, paged memory, flags, and a stepping
// protocol over the instruction stream a Decoder already produced. It never
// mutates that stream; it only walks it by address.
package interp

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	binmodel "github.com/xyproto/binscope/internal/binary"
)

const initialRSP = 0x7fff0000

// StepResult is the tagged outcome of a single step.
type StepResult struct {
	OK   bool
	Inst *binmodel.Instruction
	Err  error
}

// Interpreter owns all interpreter-local mutable state exclusively: no
// other goroutine may touch Regs, Flags, or Mem concurrently with Step/Run.
type Interpreter struct {
	Regs        *RegisterFile
	Flags       Flags
	Mem         *Memory
	Breakpoints map[uint64]bool

	bits   int
	insts  []binmodel.Instruction
	byAddr map[uint64]int
	steps  uint64
}

// New constructs an interpreter for the given address width (32 or 64).
func New(bits int) *Interpreter {
	return &Interpreter{
		Regs:        newRegisterFile(),
		Mem:         newMemory(),
		Breakpoints: make(map[uint64]bool),
		bits:        binmodel.ClampBits(bits),
	}
}

func (ip *Interpreter) word() uint64 {
	return uint64(ip.bits / 8)
}

func parseAddr(s string) uint64 {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	v, _ := strconv.ParseUint(s, 16, 64)
	return v
}

// Load resets all state and installs a new instruction stream. rip starts
// at the first instruction's address; rsp starts at 0x7fff0000 with a few
// stack pages pre-touched so memory dumps render immediately.
func (ip *Interpreter) Load(insts []binmodel.Instruction) {
	ip.Regs.reset()
	ip.Flags.reset()
	ip.Mem.reset()
	ip.steps = 0

	ip.insts = insts
	ip.byAddr = make(map[uint64]int, len(insts))
	for i, inst := range insts {
		ip.byAddr[parseAddr(inst.AddrStr)] = i
	}

	if len(insts) > 0 {
		ip.Regs.Write("rip", parseAddr(insts[0].AddrStr))
	}
	ip.Regs.Write("rsp", initialRSP)
	for base := uint64(initialRSP &^ (pageSize - 1)); base < initialRSP+pageSize*4; base += pageSize {
		ip.Mem.Touch(base)
	}
}

// AddBreakpoint arms a breakpoint at addr.
func (ip *Interpreter) AddBreakpoint(addr uint64) { ip.Breakpoints[addr] = true }

// RemoveBreakpoint disarms a breakpoint at addr.
func (ip *Interpreter) RemoveBreakpoint(addr uint64) { delete(ip.Breakpoints, addr) }

// Step executes exactly one instruction at the current rip.
func (ip *Interpreter) Step() StepResult {
	rip, _ := ip.Regs.Read("rip")
	idx, ok := ip.byAddr[rip]
	if !ok {
		return StepResult{OK: false, Err: fmt.Errorf("rip at unmapped address 0x%x", rip)}
	}
	inst := ip.insts[idx]

	var ripNext uint64
	if idx+1 < len(ip.insts) {
		ripNext = parseAddr(ip.insts[idx+1].AddrStr)
	} else {
		ripNext = rip
	}
	ip.Regs.Write("rip", ripNext)
	ip.steps++

	if err := ip.dispatch(inst); err != nil {
		return StepResult{OK: false, Inst: &inst, Err: err}
	}
	return StepResult{OK: true, Inst: &inst}
}

// RunStatus is the tagged reason Run stopped.
type RunStatus int

const (
	RunBreakpoint RunStatus = iota
	RunError
	RunStopped
	RunStepCap
	RunNoMoreCode
)

const stepHardCap = 50000

// RunBatchSize is the number of steps Run executes before yielding to the
// host's scheduling unit. The CLI overrides it at startup from
// BINSCOPE_RUN_BATCH.
var RunBatchSize = 100

// Run steps in cooperative batches, yielding at each batch boundary so the
// host can observe cancellation; it stops at a breakpoint, an error, the
// context being cancelled, or the 50,000-step safety cap.
func (ip *Interpreter) Run(ctx context.Context) (RunStatus, *StepResult) {
	for ip.steps < stepHardCap {
		for i := 0; i < RunBatchSize; i++ {
			select {
			case <-ctx.Done():
				return RunStopped, nil
			default:
			}

			res := ip.Step()
			if !res.OK {
				if res.Err != nil && strings.Contains(res.Err.Error(), "unmapped address") {
					return RunNoMoreCode, &res
				}
				return RunError, &res
			}
			rip, _ := ip.Regs.Read("rip")
			if ip.Breakpoints[rip] {
				return RunBreakpoint, &res
			}
			if ip.steps >= stepHardCap {
				return RunStepCap, &res
			}
		}
		select {
		case <-ctx.Done():
			return RunStopped, nil
		default:
		}
	}
	return RunStepCap, nil
}

func splitOperands(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}
