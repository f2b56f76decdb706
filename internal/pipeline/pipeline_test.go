package pipeline

import (
	"context"
	"encoding/binary"
	"testing"
)

type fakeInput struct {
	data []byte
	name string
}

func (f fakeInput) Bytes() ([]byte, error) { return f.data, nil }
func (f fakeInput) Name() string           { return f.name }
func (f fakeInput) Size() int64            { return int64(len(f.data)) }

type recordingSink struct {
	stages  []StageEvent
	report  *Report
	errStage string
	err     error
}

func (r *recordingSink) Stage(ev StageEvent) { r.stages = append(r.stages, ev) }
func (r *recordingSink) Results(rep Report)  { r.report = &rep }
func (r *recordingSink) Error(stage string, err error) {
	r.errStage = stage
	r.err = err
}

// buildMinimalELF64LE mirrors internal/elf's own fixture: a 64-byte ELF64
// little-endian header with one section that doubles as its own string
// table, so the pipeline has a real container to walk end to end.
func buildMinimalELF64LE() []byte {
	const ehsize = 64
	const shentsize = 64

	buf := make([]byte, ehsize)
	buf[0], buf[1], buf[2], buf[3] = 0x7F, 'E', 'L', 'F'
	buf[4] = 2
	buf[5] = 1
	buf[6] = 1

	binary.LittleEndian.PutUint16(buf[16:18], 2)
	binary.LittleEndian.PutUint16(buf[18:20], 0x3E)
	binary.LittleEndian.PutUint64(buf[24:32], 0x401000)
	binary.LittleEndian.PutUint64(buf[40:48], uint64(ehsize))
	binary.LittleEndian.PutUint16(buf[58:60], shentsize)
	binary.LittleEndian.PutUint16(buf[60:62], 1)
	binary.LittleEndian.PutUint16(buf[62:64], 0)

	strtabData := []byte("\x00.text\x00")

	section := make([]byte, shentsize)
	binary.LittleEndian.PutUint32(section[0:4], 1)
	binary.LittleEndian.PutUint32(section[4:8], 3)
	binary.LittleEndian.PutUint64(section[8:16], 0x6)
	binary.LittleEndian.PutUint64(section[16:24], 0x401000)
	sectionOffset := uint64(ehsize + shentsize)
	binary.LittleEndian.PutUint64(section[24:32], sectionOffset)
	binary.LittleEndian.PutUint64(section[32:40], uint64(len(strtabData)))

	buf = append(buf, section...)
	buf = append(buf, strtabData...)
	return buf
}

func TestRunHappyPathUsesHexFallbackWithNoDecoder(t *testing.T) {
	in := fakeInput{data: buildMinimalELF64LE(), name: "sample.elf"}
	sink := &recordingSink{}

	report, err := Run(context.Background(), in, sink, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.File.Format != "ELF" {
		t.Errorf("File.Format = %q, want ELF", report.File.Format)
	}
	if !report.Disasm.Fallback {
		t.Error("expected hex-dump fallback with a nil decoder")
	}
	if sink.report == nil {
		t.Error("sink never received a Results event")
	}

	var sawReportDone bool
	for _, ev := range sink.stages {
		if ev.ID == "report" && ev.Status == Done {
			sawReportDone = true
		}
	}
	if !sawReportDone {
		t.Errorf("stage events = %+v, want a report/done event", sink.stages)
	}
}

func TestRunStopsAtHeadersOnInvalidFormat(t *testing.T) {
	in := fakeInput{data: []byte("not a binary"), name: "garbage.bin"}
	sink := &recordingSink{}

	_, err := Run(context.Background(), in, sink, Options{})
	if err == nil {
		t.Fatal("expected an error for an unrecognized format")
	}
	if sink.errStage != "headers" {
		t.Errorf("sink.errStage = %q, want headers", sink.errStage)
	}
}
