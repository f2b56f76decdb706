package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xyproto/binscope/internal/decode"
	"github.com/xyproto/binscope/internal/pipeline"
)

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Run the full analysis pipeline over a binary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args[0])
		},
	}
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "emit the report as JSON on stdout instead of a console summary")
	return cmd
}

func runAnalyze(cmd *cobra.Command, path string) error {
	in, err := pipeline.NewFileInput(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}

	sink := pipeline.NewConsoleSink(os.Stderr)
	opts := pipeline.Options{
		Decoder: decode.X86Decoder{},
	}

	report, err := pipeline.Run(context.Background(), in, sink, opts)
	if err != nil {
		return err
	}

	if jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printSummary(cmd, report)
	return nil
}

func printSummary(cmd *cobra.Command, r *pipeline.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n%s  %s %s %d-bit\n", r.File.Name, r.File.Format, r.File.Arch, r.File.Bits)
	fmt.Fprintf(out, "sections: %d, instructions: %d (fallback=%v)\n",
		len(r.Sections), len(r.Disasm.Instructions), r.Disasm.Fallback)
	fmt.Fprintf(out, "xrefs: %d, functions: %d, byte signatures: %d\n",
		len(r.Analysis.Xrefs), len(r.Analysis.FuncLabels), len(r.Analysis.ByteSigs))
	for addr, label := range r.Analysis.FuncLabels {
		fmt.Fprintf(out, "  %s %s\n", addr, label)
	}
}
