// Package diag is the teacher's debug-logging convention (a package-level
// Verbose switch plus fmt.Fprintf(os.Stderr, ...)) lifted out of main.go/
// elf_complete.go into something every stage of the pipeline can share.
package diag

import (
	"fmt"
	"os"
)

// Verbose gates Logf. Set from the CLI (-v/--verbose) or BINSCOPE_VERBOSE.
var Verbose bool

// Logf writes a diagnostic line to stderr when Verbose is set.
func Logf(format string, args ...any) {
	if !Verbose {
		return
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

// Warnf always writes, regardless of Verbose — for recoverable conditions
// the caller should know about (decoder fallback, dropped relocation, ...).
func Warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
}
