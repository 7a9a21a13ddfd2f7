package sysinfo

import (
	"fmt"
	"os"
)

// Sink is a destination that accepts one formatted line. Stdout carries
// informational reports, stderr warnings; tests supply a buffer.
type Sink interface {
	Printf(format string, args ...any)
}

// StdoutSink writes formatted lines to standard output.
type StdoutSink struct{}

func (StdoutSink) Printf(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format, args...)
}

// StderrSink writes formatted lines to standard error.
type StderrSink struct{}

func (StderrSink) Printf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
}

var (
	_ Sink = StdoutSink{}
	_ Sink = StderrSink{}
)

// Field widths are fixed so successive report lines align.
const statusLineFormat = "mem avail: %4d of %4d MiB (%2d %%), swap free: %4d of %4d MiB (%2d %%)\n"

// PrintMemStats emits one status line summarizing available/total memory and
// free/total swap, in MiB and percent.
func PrintMemStats(out Sink, s Snapshot) {
	out.Printf(statusLineFormat,
		s.MemAvailableMiB,
		s.MemTotalMiB,
		s.MemAvailablePercent,
		s.SwapFreeMiB,
		s.SwapTotalMiB,
		s.SwapFreePercent)
}
