package interp

import (
	"context"
	"testing"

	binmodel "github.com/xyproto/binscope/internal/binary"
)

func mkInst(addr uint64, mnemonic, operands string) binmodel.Instruction {
	return binmodel.Instruction{
		Address:  addr,
		AddrStr:  binmodel.CanonicalAddr(addr, 32),
		Mnemonic: mnemonic,
		Operands: operands,
	}
}

func TestRegisterWrite32ZeroExtends(t *testing.T) {
	rf := newRegisterFile()
	rf.Write("rax", 0xffffffffffffffff)
	rf.Write("eax", 0x1)
	got, _ := rf.Read("rax")
	if got != 0x1 {
		t.Errorf("rax = 0x%x, want 0x1 (32-bit write must zero-extend)", got)
	}
}

func TestRegisterWrite8PreservesUpperBits(t *testing.T) {
	rf := newRegisterFile()
	rf.Write("rax", 0x1122334455667788)
	rf.Write("al", 0xff)
	got, _ := rf.Read("rax")
	if got != 0x11223344556677ff {
		t.Errorf("rax = 0x%x, want 0x11223344556677ff", got)
	}
	rf.Write("ah", 0x00)
	got, _ = rf.Read("rax")
	if got != 0x112233445566_00ff {
		t.Errorf("rax = 0x%x, want high byte cleared", got)
	}
}

func TestPushPopAreInverse(t *testing.T) {
	ip := New(64)
	ip.Load(nil)
	ip.Regs.Write("rbx", 0x123456789abcdef0)
	rspBefore, _ := ip.Regs.Read("rsp")

	if err := ip.execPush([]string{"rbx"}); err != nil {
		t.Fatalf("push: %v", err)
	}
	ip.Regs.Write("rbx", 0)
	if err := ip.execPop([]string{"rbx"}); err != nil {
		t.Fatalf("pop: %v", err)
	}
	got, _ := ip.Regs.Read("rbx")
	if got != 0x123456789abcdef0 {
		t.Errorf("rbx after push/pop = 0x%x, want 0x123456789abcdef0", got)
	}
	rspAfter, _ := ip.Regs.Read("rsp")
	if rspAfter != rspBefore {
		t.Errorf("rsp after push/pop = 0x%x, want 0x%x", rspAfter, rspBefore)
	}
}

func TestXorRegRegClearsAndSetsZF(t *testing.T) {
	ip := New(32)
	ip.Load(nil)
	ip.Regs.Write("eax", 0xdeadbeef)
	if err := ip.execLogic([]string{"eax", "eax"}, logicXor); err != nil {
		t.Fatalf("xor: %v", err)
	}
	got, _ := ip.Regs.Read("eax")
	if got != 0 {
		t.Errorf("eax = 0x%x, want 0", got)
	}
	if !ip.Flags.ZF || ip.Flags.SF || ip.Flags.CF || ip.Flags.OF {
		t.Errorf("flags after xor reg,reg = %+v, want zf=1 s=c=o=0", ip.Flags)
	}
}

func TestCallRetRestoresRipAndRsp(t *testing.T) {
	insts := []binmodel.Instruction{
		mkInst(0x1000, "call", "0x2000"),
		mkInst(0x1005, "nop", ""),
		mkInst(0x2000, "ret", ""),
	}
	ip := New(32)
	ip.Load(insts)
	rspBefore, _ := ip.Regs.Read("rsp")

	for i := 0; i < 2; i++ {
		res := ip.Step()
		if !res.OK {
			t.Fatalf("step %d failed: %v", i, res.Err)
		}
	}
	rip, _ := ip.Regs.Read("rip")
	rsp, _ := ip.Regs.Read("rsp")
	if rip != 0x1005 {
		t.Errorf("rip = 0x%x, want 0x1005", rip)
	}
	if rsp != rspBefore {
		t.Errorf("rsp = 0x%x, want 0x%x", rsp, rspBefore)
	}
}

// TestEndToEndMovAddRet reproduces spec.md §8's worked scenario: mov eax,5;
// add eax,3; ret with mem[rsp] pre-written to 0xdead.
func TestEndToEndMovAddRet(t *testing.T) {
	insts := []binmodel.Instruction{
		mkInst(0x401000, "mov", "eax, 5"),
		mkInst(0x401005, "add", "eax, 3"),
		mkInst(0x401008, "ret", ""),
	}
	ip := New(32)
	ip.Load(insts)
	rsp0, _ := ip.Regs.Read("rsp")
	ip.Mem.Write(rsp0, 0xdead, 4)

	for i := 0; i < 3; i++ {
		res := ip.Step()
		if !res.OK {
			t.Fatalf("step %d failed: %v", i, res.Err)
		}
	}

	eax, _ := ip.Regs.Read("eax")
	rip, _ := ip.Regs.Read("rip")
	rsp, _ := ip.Regs.Read("rsp")
	if eax != 8 {
		t.Errorf("eax = %d, want 8", eax)
	}
	if rip != 0xdead {
		t.Errorf("rip = 0x%x, want 0xdead", rip)
	}
	if rsp != rsp0+4 {
		t.Errorf("rsp = 0x%x, want 0x%x", rsp, rsp0+4)
	}
	// 8 (0b1000) has one set bit (odd parity) in its low byte, but per
	// spec.md's own worked example the expected pf after this add is 0:
	// "zf=0, sf=0, cf=0, of=0, pf=0" is the scenario's stated outcome even
	// though its parenthetical claims even parity — the parity of 0b1000
	// is in fact odd (one set bit), so pf=0 is what a correct parity
	// check produces, and is what this interpreter computes.
	if ip.Flags.ZF || ip.Flags.SF || ip.Flags.CF || ip.Flags.OF || ip.Flags.PF {
		t.Errorf("flags after add = %+v, want all false", ip.Flags)
	}
}

func TestStepAtUnmappedRipReturnsError(t *testing.T) {
	ip := New(32)
	ip.Load([]binmodel.Instruction{mkInst(0x1000, "nop", "")})
	ip.Regs.Write("rip", 0x9999)
	res := ip.Step()
	if res.OK {
		t.Fatal("Step at unmapped rip should fail")
	}
}

func TestRunStopsAtBreakpoint(t *testing.T) {
	insts := []binmodel.Instruction{
		mkInst(0x1000, "nop", ""),
		mkInst(0x1001, "nop", ""),
		mkInst(0x1002, "nop", ""),
	}
	ip := New(32)
	ip.Load(insts)
	ip.AddBreakpoint(0x1001)

	status, _ := ip.Run(context.Background())
	if status != RunBreakpoint {
		t.Fatalf("status = %v, want RunBreakpoint", status)
	}
	rip, _ := ip.Regs.Read("rip")
	if rip != 0x1001 {
		t.Errorf("rip = 0x%x, want 0x1001", rip)
	}
}

func TestShlShrSar(t *testing.T) {
	ip := New(32)
	ip.Load(nil)
	ip.Regs.Write("eax", 0x1)
	if err := ip.execShift([]string{"eax", "0x4"}, shiftLeft); err != nil {
		t.Fatal(err)
	}
	got, _ := ip.Regs.Read("eax")
	if got != 0x10 {
		t.Errorf("shl eax,4 = 0x%x, want 0x10", got)
	}

	ip.Regs.Write("eax", 0x80000000)
	if err := ip.execShift([]string{"eax", "0x1"}, shiftArith); err != nil {
		t.Fatal(err)
	}
	got, _ = ip.Regs.Read("eax")
	if got != 0xc0000000 {
		t.Errorf("sar 0x80000000,1 = 0x%x, want 0xc0000000", got)
	}
}

func TestLeaComputesAddressWithoutDereference(t *testing.T) {
	ip := New(64)
	ip.Load(nil)
	ip.Regs.Write("rax", 0x1000)
	ip.Regs.Write("rbx", 0x10)
	if err := ip.execLea([]string{"rcx", "[rax+rbx*2-8]"}); err != nil {
		t.Fatal(err)
	}
	got, _ := ip.Regs.Read("rcx")
	if got != 0x1018 {
		t.Errorf("rcx = 0x%x, want 0x1018", got)
	}
}
