package xref

import (
	"testing"

	binmodel "github.com/xyproto/binscope/internal/binary"
)

func TestBuild(t *testing.T) {
	insts := []binmodel.Instruction{
		{AddrStr: "0x00000100", Mnemonic: "call", Operands: "401000h"},
		{AddrStr: "0x00000105", Mnemonic: "jne", Operands: "0x401010"},
		{AddrStr: "0x0000010a", Mnemonic: "jmp", Operands: "rax"},
	}

	got := Build(insts, 32)

	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2: %+v", len(got), got)
	}
	callEntries, ok := got["0x00401000"]
	if !ok || len(callEntries) != 1 || callEntries[0] != (Entry{From: "0x00000100", Type: Call}) {
		t.Errorf("0x00401000 entries = %+v", callEntries)
	}
	jccEntries, ok := got["0x00401010"]
	if !ok || len(jccEntries) != 1 || jccEntries[0] != (Entry{From: "0x00000105", Type: Jcc}) {
		t.Errorf("0x00401010 entries = %+v", jccEntries)
	}
	if _, ok := got["rax"]; ok {
		t.Error("indirect jmp rax must not produce an xref entry")
	}
}

func TestResolveDirectTarget(t *testing.T) {
	cases := []struct {
		op      string
		wantOK  bool
		wantHex string
	}{
		{"401000h", true, "0x00401000"},
		{"0x401000", true, "0x00401000"},
		{"rax", false, ""},
		{"[rax+8]", false, ""},
		{"some_symbol", false, ""},
	}
	for _, c := range cases {
		got, ok := ResolveDirectTarget(c.op, 32)
		if ok != c.wantOK {
			t.Errorf("ResolveDirectTarget(%q) ok = %v, want %v", c.op, ok, c.wantOK)
			continue
		}
		if ok && got != c.wantHex {
			t.Errorf("ResolveDirectTarget(%q) = %q, want %q", c.op, got, c.wantHex)
		}
	}
}
