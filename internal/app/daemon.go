// Package app wires the telemetry services into a polling daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	merr "memwatch/internal/errors"
	"memwatch/internal/sysinfo"
)

// MemoryService supplies system memory snapshots.
type MemoryService interface {
	Snapshot() (sysinfo.Snapshot, error)
}

// ProcessService probes per-process memory facts.
type ProcessService interface {
	Pids() ([]int, error)
	Alive(pid int) bool
	RSSKiB(pid int) (int64, error)
	Comm(pid int) (string, error)
	UID(pid int) (int, error)
	OOMScore(pid int) (int, error)
}

// Protector applies process self-protection before polling starts.
type Protector interface {
	Apply(ctx context.Context) error
}

// Dependencies groups the external services required by the daemon.
type Dependencies struct {
	Memory    MemoryService
	Processes ProcessService
	Protector Protector
	Reporter  sysinfo.Sink
	Logger    *slog.Logger

	PollInterval   time.Duration
	ReportInterval time.Duration
}

// Daemon polls the memory snapshot on an interval and periodically reports a
// status line plus the largest resident process. It makes no termination
// decisions.
type Daemon struct {
	memory    MemoryService
	processes ProcessService
	protector Protector
	reporter  sysinfo.Sink
	logger    *slog.Logger

	pollInterval   time.Duration
	reportInterval time.Duration
}

// NewDaemon constructs a Daemon with validated dependencies.
func NewDaemon(deps Dependencies) *Daemon {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	if deps.Reporter == nil {
		deps.Reporter = sysinfo.StdoutSink{}
	}
	if deps.PollInterval <= 0 {
		deps.PollInterval = time.Second
	}
	if deps.ReportInterval < deps.PollInterval {
		deps.ReportInterval = deps.PollInterval
	}
	return &Daemon{
		memory:         deps.Memory,
		processes:      deps.Processes,
		protector:      deps.Protector,
		reporter:       deps.Reporter,
		logger:         deps.Logger,
		pollInterval:   deps.PollInterval,
		reportInterval: deps.ReportInterval,
	}
}

// Run applies self-protection, then polls until the context is cancelled.
// Snapshot failures are critical and returned to the caller, which decides
// the exit status; per-process failures never escape a cycle.
func (d *Daemon) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			err = fmt.Errorf("daemon panic: %v", r)
			d.logger.Error("daemon panic recovered",
				slog.Any("panic", r),
				slog.String("stack", string(stack)))
		}
	}()

	if ctx == nil {
		return errors.New("context must not be nil")
	}
	if d.memory == nil {
		return errors.New("memory service must not be nil")
	}

	if d.protector != nil {
		if perr := d.protector.Apply(ctx); perr != nil {
			d.logWarn("self-protection incomplete, continuing unprotected", perr)
		}
	}

	if rerr := d.report(); rerr != nil {
		return rerr
	}

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	lastReport := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			snap, serr := d.memory.Snapshot()
			if serr != nil {
				return serr
			}
			d.logger.Debug("memory snapshot",
				slog.Int64("mem_avail_kib", snap.MemAvailableKiB),
				slog.Int64("mem_total_kib", snap.MemTotalKiB),
				slog.Int("mem_avail_percent", snap.MemAvailablePercent),
				slog.Int("swap_free_percent", snap.SwapFreePercent))
			if now.Sub(lastReport) >= d.reportInterval {
				sysinfo.PrintMemStats(d.reporter, snap)
				d.reportLargestProcess()
				lastReport = now
			}
		}
	}
}

// report takes one snapshot and prints the status line immediately, so the
// operator sees a read-out at startup rather than after the first interval.
func (d *Daemon) report() error {
	snap, err := d.memory.Snapshot()
	if err != nil {
		return err
	}
	sysinfo.PrintMemStats(d.reporter, snap)
	d.reportLargestProcess()
	return nil
}

// reportLargestProcess probes the enumerated processes and logs the largest
// resident one. Any process that vanished or failed to parse is skipped.
func (d *Daemon) reportLargestProcess() {
	if d.processes == nil {
		return
	}
	pids, err := d.processes.Pids()
	if err != nil {
		d.logWarn("process enumeration failed", err)
		return
	}

	largestPid := -1
	var largestRSS int64
	for _, pid := range pids {
		if !d.processes.Alive(pid) {
			continue
		}
		rss, err := d.processes.RSSKiB(pid)
		if err != nil {
			continue
		}
		if rss > largestRSS {
			largestRSS = rss
			largestPid = pid
		}
	}
	if largestPid < 0 {
		return
	}

	attrs := []slog.Attr{
		slog.Int("pid", largestPid),
		slog.Int64("rss_kib", largestRSS),
	}
	if comm, err := d.processes.Comm(largestPid); err == nil {
		attrs = append(attrs, slog.String("comm", comm))
	}
	if uid, err := d.processes.UID(largestPid); err == nil {
		attrs = append(attrs, slog.Int("uid", uid))
	}
	if score, err := d.processes.OOMScore(largestPid); err == nil {
		attrs = append(attrs, slog.Int("oom_score", score))
	}
	d.logger.Info("largest resident process", merr.AttrsToArgs(attrs)...)
}

// logWarn logs a categorized error with its structured context when
// available, falling back to the plain message.
func (d *Daemon) logWarn(msg string, err error) {
	var cerr *merr.Error
	if errors.As(err, &cerr) {
		d.logger.Warn(msg, merr.AttrsToArgs(cerr.LogAttrs())...)
		return
	}
	d.logger.Warn(msg, slog.String("error", err.Error()))
}
