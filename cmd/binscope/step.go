package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	binmodel "github.com/xyproto/binscope/internal/binary"
	"github.com/xyproto/binscope/internal/decode"
	"github.com/xyproto/binscope/internal/diag"
	"github.com/xyproto/binscope/internal/interp"
	"github.com/xyproto/binscope/internal/pipeline"
)

// quietSink discards stage chatter; step only cares about the final
// report, not the progress narration analyze prints.
type quietSink struct{}

func (quietSink) Stage(pipeline.StageEvent)  {}
func (quietSink) Results(pipeline.Report)    {}
func (quietSink) Error(string, error)        {}

func newStepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "step <file>",
		Short: "Load a binary's disassembly into the interpreter and step through it interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStep(cmd, args[0])
		},
	}
}

func runStep(cmd *cobra.Command, path string) error {
	in, err := pipeline.NewFileInput(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}

	report, err := pipeline.Run(context.Background(), in, quietSink{}, pipeline.Options{
		Decoder: decode.X86Decoder{},
	})
	if err != nil {
		return err
	}
	if len(report.Disasm.Instructions) == 0 {
		return fmt.Errorf("no disassembled instructions to step through")
	}

	ip := interp.New(report.File.Bits)
	ip.Load(report.Disasm.Instructions)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "loaded %d instructions, rip=0x%x\n", len(report.Disasm.Instructions), mustRIP(ip))
	return replLoop(out, ip)
}

func mustRIP(ip *interp.Interpreter) uint64 {
	v, _ := ip.Regs.Read("rip")
	return v
}

func replLoop(out io.Writer, ip *interp.Interpreter) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprint(out, "(binscope-step) ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			fmt.Fprint(out, "(binscope-step) ")
			continue
		}

		switch fields[0] {
		case "n", "next":
			res := ip.Step()
			if !res.OK {
				fmt.Fprintf(out, "trap: %v\n", res.Err)
			} else {
				fmt.Fprintf(out, "%s %s %s\n", res.Inst.AddrStr, res.Inst.Mnemonic, res.Inst.Operands)
			}
		case "b":
			if len(fields) < 2 {
				fmt.Fprintln(out, "usage: b <addr>")
				break
			}
			addr, err := strconv.ParseUint(strings.TrimPrefix(fields[1], "0x"), 16, 64)
			if err != nil {
				fmt.Fprintf(out, "bad address %q\n", fields[1])
				break
			}
			ip.AddBreakpoint(addr)
			fmt.Fprintf(out, "breakpoint set at %s\n", binmodel.CanonicalAddr(addr, 64))
		case "r", "run":
			status, res := ip.Run(context.Background())
			fmt.Fprintf(out, "stopped: %v", statusString(status))
			if res != nil && res.Err != nil {
				fmt.Fprintf(out, " (%v)", res.Err)
			}
			fmt.Fprintln(out)
		case "regs":
			dumpRegs(out, ip)
		case "x":
			if len(fields) < 2 {
				fmt.Fprintln(out, "usage: x <addr>")
				break
			}
			addr, err := strconv.ParseUint(strings.TrimPrefix(fields[1], "0x"), 16, 64)
			if err != nil {
				fmt.Fprintf(out, "bad address %q\n", fields[1])
				break
			}
			dumpPage(out, ip, addr)
		case "q", "quit":
			return nil
		default:
			fmt.Fprintf(out, "unknown command %q\n", fields[0])
		}
		fmt.Fprint(out, "(binscope-step) ")
	}
	fmt.Fprintln(out)
	return nil
}

func statusString(s interp.RunStatus) string {
	switch s {
	case interp.RunBreakpoint:
		return "breakpoint"
	case interp.RunError:
		return "error"
	case interp.RunStopped:
		return "cancelled"
	case interp.RunStepCap:
		return "step cap"
	case interp.RunNoMoreCode:
		return "end of code"
	default:
		return "unknown"
	}
}

var regDumpOrder = []string{
	"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "rsp", "rbp",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15", "rip",
}

func dumpRegs(out io.Writer, ip *interp.Interpreter) {
	for _, name := range regDumpOrder {
		v, _ := ip.Regs.Read(name)
		fmt.Fprintf(out, "  %-4s 0x%016x\n", name, v)
	}
	fmt.Fprintf(out, "  flags cf=%v zf=%v sf=%v of=%v pf=%v af=%v\n",
		ip.Flags.CF, ip.Flags.ZF, ip.Flags.SF, ip.Flags.OF, ip.Flags.PF, ip.Flags.AF)
}

// dumpPage renders the first 256 bytes of the 4 KiB page containing addr.
func dumpPage(out io.Writer, ip *interp.Interpreter, addr uint64) {
	base := addr &^ 0xfff
	for row := uint64(0); row < 256; row += 16 {
		fmt.Fprintf(out, "0x%016x  ", base+row)
		for col := uint64(0); col < 16; col++ {
			fmt.Fprintf(out, "%02x ", ip.Mem.ReadByte(base+row+col))
		}
		fmt.Fprintln(out)
	}
	diag.Logf("step: dumped page at 0x%x", base)
}
