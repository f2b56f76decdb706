// Command binscope is a static-analysis CLI over PE/ELF binaries: format
// and header identification, linear disassembly, cross-references,
// function-boundary and byte-signature scans, and an interactive
// single-stepping interpreter.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	env "github.com/xyproto/env/v2"

	"github.com/xyproto/binscope/internal/decode"
	"github.com/xyproto/binscope/internal/diag"
	"github.com/xyproto/binscope/internal/interp"
)

var (
	verboseFlag bool
	jsonFlag    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "binscope",
		Short:         "Static analysis for PE and ELF binaries",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			diag.Verbose = verboseFlag || env.Bool("BINSCOPE_VERBOSE")
			decode.MaxInstructions = env.IntOr("BINSCOPE_MAX_INSTRUCTIONS", decode.MaxInstructions)
			interp.RunBatchSize = env.IntOr("BINSCOPE_RUN_BATCH", interp.RunBatchSize)
		},
	}
	root.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "verbose diagnostics on stderr")

	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newStepCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the binscope version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "binscope 0.1.0")
			return nil
		},
	}
}
