package pipeline

import (
	"context"
	"fmt"
	"time"

	binmodel "github.com/xyproto/binscope/internal/binary"
	"github.com/xyproto/binscope/internal/binerr"
	"github.com/xyproto/binscope/internal/cfg"
	"github.com/xyproto/binscope/internal/decode"
	"github.com/xyproto/binscope/internal/diag"
	"github.com/xyproto/binscope/internal/elf"
	"github.com/xyproto/binscope/internal/format"
	"github.com/xyproto/binscope/internal/funcdetect"
	"github.com/xyproto/binscope/internal/pe"
	"github.com/xyproto/binscope/internal/sigscan"
	"github.com/xyproto/binscope/internal/xref"
)

// InputSource is the pipeline's one inbound collaborator: an opaque
// {bytes, original_name, size} triple (spec.md §6). The core never
// inspects path, mtime, or permissions beyond what this interface exposes.
type InputSource interface {
	Bytes() ([]byte, error)
	Name() string
	Size() int64
}

// StageStatus is a stage event's tagged outcome.
type StageStatus int

const (
	Running StageStatus = iota
	Done
	Errored
)

func (s StageStatus) String() string {
	switch s {
	case Running:
		return "running"
	case Done:
		return "done"
	default:
		return "error"
	}
}

// StageEvent is one progress notification (spec.md §4.K).
type StageEvent struct {
	ID     string
	Status StageStatus
	Label  string
	Result any
}

// ProgressSink is the pipeline's one outbound collaborator: it receives
// stage events plus a single terminal results or error event.
type ProgressSink interface {
	Stage(StageEvent)
	Results(Report)
	Error(stage string, err error)
}

// Options configures a pipeline run: the Decoder (nil selects the hex-dump
// fallback) and the pause between stages (zero falls back to 1ms).
type Options struct {
	Decoder   decode.Decoder
	YieldPause time.Duration
}

func (o Options) pause() time.Duration {
	if o.YieldPause > 0 {
		return o.YieldPause
	}
	return time.Millisecond
}

// cooperativePause yields between stages so a host polling the sink can
// observe progress, honoring cancellation immediately.
func cooperativePause(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Run walks every stage in order, emitting events to sink, and returns the
// finished report. A parser error at the headers stage stops the pipeline
// early, matching it to an error event rather than a panic.
func Run(ctx context.Context, in InputSource, sink ProgressSink, opts Options) (*Report, error) {
	sink.Stage(StageEvent{ID: "upload", Status: Done, Label: fmt.Sprintf("%s (%d bytes)", in.Name(), in.Size())})

	buf, err := in.Bytes()
	if err != nil {
		sink.Error("upload", err)
		return nil, err
	}
	if !cooperativePause(ctx, opts.pause()) {
		return nil, ctx.Err()
	}

	sink.Stage(StageEvent{ID: "detect", Status: Running, Label: "identifying container format"})
	det := format.Detect(buf)
	sink.Stage(StageEvent{ID: "detect", Status: Done, Label: det.Description, Result: det.Type.String()})
	if !cooperativePause(ctx, opts.pause()) {
		return nil, ctx.Err()
	}

	sink.Stage(StageEvent{ID: "headers", Status: Running, Label: "parsing headers"})
	pb, err := parseHeaders(det.Type, buf)
	if err != nil {
		sink.Stage(StageEvent{ID: "headers", Status: Errored, Label: err.Error()})
		sink.Error("headers", err)
		return nil, err
	}
	sink.Stage(StageEvent{ID: "headers", Status: Done, Label: fmt.Sprintf("%s %s %d-bit", pb.Type, pb.Arch, pb.Bits)})
	if !cooperativePause(ctx, opts.pause()) {
		return nil, ctx.Err()
	}

	sink.Stage(StageEvent{ID: "sections", Status: Running, Label: "enumerating sections"})
	sink.Stage(StageEvent{ID: "sections", Status: Done, Label: fmt.Sprintf("%d sections", len(pb.Sections)), Result: len(pb.Sections)})
	if !cooperativePause(ctx, opts.pause()) {
		return nil, ctx.Err()
	}

	codeSection := pickCodeSection(pb)
	var code []byte
	var baseVA uint64
	var sectionName string
	if codeSection != nil {
		sectionName = codeSection.Name
		baseVA = codeSection.VirtualAddress
		code = sliceSection(buf, *codeSection)
	}

	sink.Stage(StageEvent{ID: "disasm", Status: Running, Label: "disassembling " + sectionName})
	decRes := decode.Adapt(opts.Decoder, code, baseVA, pb.Bits)
	disasmLabel := fmt.Sprintf("%d instructions", len(decRes.Instructions))
	if decRes.Fallback {
		disasmLabel = "hex-dump fallback: " + disasmLabel
	}
	sink.Stage(StageEvent{ID: "disasm", Status: Done, Label: disasmLabel})
	if !cooperativePause(ctx, opts.pause()) {
		return nil, ctx.Err()
	}

	sink.Stage(StageEvent{ID: "refs", Status: Running, Label: "building cross-references"})
	xrefs := xref.Build(decRes.Instructions, pb.Bits)
	labels := funcdetect.Detect(decRes.Instructions)
	sigHits := sigscan.Scan(code, baseVA, pb.Bits)
	sink.Stage(StageEvent{ID: "refs", Status: Done, Label: fmt.Sprintf("%d xrefs, %d functions, %d signatures", len(xrefs), len(labels), len(sigHits))})
	if !cooperativePause(ctx, opts.pause()) {
		return nil, ctx.Err()
	}

	sink.Stage(StageEvent{ID: "report", Status: Running, Label: "assembling report"})
	report := assembleReport(in, pb, sectionName, baseVA, decRes, xrefs, labels, sigHits)
	sink.Stage(StageEvent{ID: "report", Status: Done, Label: "report ready"})

	sink.Results(report)
	return &report, nil
}

func parseHeaders(tag binmodel.FormatTag, buf []byte) (*binmodel.ParsedBinary, error) {
	switch tag {
	case binmodel.PE:
		return pe.Parse(buf)
	case binmodel.ELF:
		return elf.Parse(buf)
	default:
		return nil, binerr.New(binerr.InvalidFormat, "unsupported or unrecognized container format")
	}
}

// pickCodeSection prefers the section containing the entry point, falling
// back to the first section flagged executable.
func pickCodeSection(pb *binmodel.ParsedBinary) *binmodel.Section {
	if pb.HasEntry {
		for i := range pb.Sections {
			s := &pb.Sections[i]
			if pb.EntryPoint >= s.VirtualAddress && pb.EntryPoint < s.VirtualAddress+s.VirtualSize {
				return s
			}
		}
	}
	for i := range pb.Sections {
		if pb.Sections[i].IsCode {
			return &pb.Sections[i]
		}
	}
	return nil
}

func sliceSection(buf []byte, s binmodel.Section) []byte {
	start := s.RawOffset
	end := start + s.RawSize
	if start >= uint64(len(buf)) {
		return nil
	}
	if end > uint64(len(buf)) {
		end = uint64(len(buf))
	}
	return buf[start:end]
}

func assembleReport(in InputSource, pb *binmodel.ParsedBinary, sectionName string, baseVA uint64, decRes decode.Result, xrefs map[string][]xref.Entry, labels map[string]string, sigHits []sigscan.Hit) Report {
	sections := make([]SectionInfo, len(pb.Sections))
	for i, s := range pb.Sections {
		sections[i] = toSectionInfo(s, pb.Bits)
	}

	xrefOut := make(map[string][]XrefEntry, len(xrefs))
	for k, v := range xrefs {
		xrefOut[k] = toXrefEntries(v)
	}

	diag.Logf("report: %s format=%s arch=%s bits=%d sections=%d", in.Name(), pb.Format, pb.Arch, pb.Bits, len(pb.Sections))

	return Report{
		File: FileInfo{
			Name:    in.Name(),
			Size:    in.Size(),
			SizeStr: fmt.Sprintf("%d bytes", in.Size()),
			Format:  pb.Format.String(),
			Type:    pb.Type,
			Arch:    pb.Arch,
			Bits:    pb.Bits,
			Info:    pb.Info,
		},
		Sections: sections,
		Disasm: Disasm{
			Section:      sectionName,
			Fallback:     decRes.Fallback,
			Instructions: decRes.Instructions,
			BaseVA:       binmodel.CanonicalAddr(baseVA, pb.Bits),
		},
		Analysis: Analysis{
			Xrefs:      xrefOut,
			FuncLabels: labels,
			ByteSigs:   toByteSigHits(sigHits),
		},
	}
}

// CFGFor builds the control-flow graph of a report's disassembly on demand;
// the pipeline itself does not compute or store CFGs in the report.
func CFGFor(r *Report, bits int) []cfg.Block {
	return cfg.Build(r.Disasm.Instructions, bits)
}
