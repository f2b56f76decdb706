// Package pipeline orchestrates the analysis stages (spec.md §4.K) over an
// Input Source and emits events to a Progress Sink, producing one immutable
// Report (spec.md §4.L / §6 "Report shape").
package pipeline

import (
	binmodel "github.com/xyproto/binscope/internal/binary"
	"github.com/xyproto/binscope/internal/sigscan"
	"github.com/xyproto/binscope/internal/xref"
)

// FileInfo is the report's "file" block.
type FileInfo struct {
	Name    string            `json:"name"`
	Size    int64             `json:"size"`
	SizeStr string            `json:"size_str"`
	Format  string            `json:"format"`
	Type    string            `json:"type"`
	Arch    string            `json:"arch"`
	Bits    int               `json:"bits"`
	Info    map[string]string `json:"format_info,omitempty"`
}

// SectionInfo is one entry of the report's "sections" array.
type SectionInfo struct {
	Name           string `json:"name"`
	VirtualAddress string `json:"virtual_address"`
	Size           uint64 `json:"size"`
	RawSize        uint64 `json:"raw_size"`
	Flags          string `json:"flags"`
	IsCode         bool   `json:"is_code"`
	Type           string `json:"type"`
}

// Disasm is the report's "disasm" block.
type Disasm struct {
	Section      string                  `json:"section"`
	Fallback     bool                    `json:"fallback"`
	Instructions []binmodel.Instruction  `json:"instructions"`
	BaseVA       string                  `json:"base_va"`
}

// ByteSigHit mirrors sigscan.Hit for report serialisation.
type ByteSigHit struct {
	AddrStr string `json:"addr"`
	Name    string `json:"name"`
	Note    string `json:"note"`
}

// XrefEntry mirrors xref.Entry for report serialisation.
type XrefEntry struct {
	From string `json:"from"`
	Type string `json:"type"`
}

// Analysis is the report's "analysis" block.
type Analysis struct {
	Xrefs      map[string][]XrefEntry `json:"xrefs"`
	FuncLabels map[string]string      `json:"func_labels"`
	ByteSigs   []ByteSigHit           `json:"byte_sigs"`
}

// Report is the single immutable value the pipeline produces. Once
// returned it is never mutated; downstream consumers (the CLI's JSON
// encoder, the interpreter's Load) only read from it.
type Report struct {
	File     FileInfo      `json:"file"`
	Sections []SectionInfo `json:"sections"`
	Disasm   Disasm        `json:"disasm"`
	Analysis Analysis      `json:"analysis"`
}

func toSectionInfo(s binmodel.Section, bits int) SectionInfo {
	return SectionInfo{
		Name:           s.Name,
		VirtualAddress: binmodel.CanonicalAddr(s.VirtualAddress, bits),
		Size:           s.VirtualSize,
		RawSize:        s.RawSize,
		Flags:          s.FlagsStr,
		IsCode:         s.IsCode,
		Type:           s.TypeStr,
	}
}

func toXrefEntries(entries []xref.Entry) []XrefEntry {
	out := make([]XrefEntry, len(entries))
	for i, e := range entries {
		out[i] = XrefEntry{From: e.From, Type: e.Type.String()}
	}
	return out
}

func toByteSigHits(hits []sigscan.Hit) []ByteSigHit {
	out := make([]ByteSigHit, len(hits))
	for i, h := range hits {
		out[i] = ByteSigHit{AddrStr: h.Address, Name: h.Name, Note: h.Note}
	}
	return out
}
