// Package sysinfo reads system memory state from the /proc filesystem.
// All returned values are in KiB unless stated otherwise.
package sysinfo

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	merr "memwatch/internal/errors"
)

// Exit statuses attached to critical errors. Supervisors rely on these to
// distinguish "source unreadable" from "unsupported kernel", so the two must
// stay distinct.
const (
	ExitReadFailed   = 102
	ExitFieldMissing = 104
)

var errShortRead = errors.New("read returned no data")

// Snapshot is one reading of system memory state. It is produced fresh on
// every call and returned by value; no partial snapshot is ever observable.
type Snapshot struct {
	MemTotalKiB     int64
	MemAvailableKiB int64
	SwapTotalKiB    int64
	SwapFreeKiB     int64

	MemTotalMiB     int64
	MemAvailableMiB int64
	SwapTotalMiB    int64
	SwapFreeMiB     int64

	MemAvailablePercent int
	SwapFreePercent     int
}

// Reader produces memory snapshots from a meminfo pseudo-file. The file
// handle is opened once and rewound before each read; meminfo is stream-like
// and must be re-read fully each cycle. A Reader is not safe for concurrent
// use; run one Reader per polling goroutine.
type Reader struct {
	path   string
	logger *slog.Logger

	file     *os.File
	buf      []byte
	warnOnce sync.Once
}

// NewReader constructs a Reader for the given meminfo path. bufBytes caps a
// single read; content beyond the cap is not parsed. A nil logger disables
// warnings.
func NewReader(path string, bufBytes int, logger *slog.Logger) *Reader {
	return &Reader{
		path:   path,
		logger: logger,
		buf:    make([]byte, bufBytes),
	}
}

// Close releases the cached file handle.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Snapshot reads the meminfo source and returns a fresh Snapshot. Inability
// to open or read the source, or absence of a mandatory field, is a critical
// error carrying a distinct exit status; there is no degraded mode for the
// tool's core read-out.
func (r *Reader) Snapshot() (Snapshot, error) {
	if r.file == nil {
		f, err := os.Open(r.path)
		if err != nil {
			return Snapshot{}, merr.Critical(
				fmt.Errorf("could not open %s: %w", r.path, err),
				ExitReadFailed, "open_meminfo", merr.ErrorContext{Path: r.path})
		}
		r.file = f
	}

	if _, err := r.file.Seek(0, io.SeekStart); err != nil {
		return Snapshot{}, merr.Critical(
			fmt.Errorf("could not rewind %s: %w", r.path, err),
			ExitReadFailed, "rewind_meminfo", merr.ErrorContext{Path: r.path})
	}

	n, err := readFull(r.file, r.buf)
	if err != nil || n == 0 {
		if err == nil {
			err = errShortRead
		}
		return Snapshot{}, merr.Critical(
			fmt.Errorf("could not read %s: %w", r.path, err),
			ExitReadFailed, "read_meminfo", merr.ErrorContext{Path: r.path})
	}
	if n == len(r.buf) && r.logger != nil {
		r.logger.Warn("meminfo content filled the read buffer, parsing may be partial",
			slog.String("path", r.path), slog.Int("buffer_bytes", len(r.buf)))
	}

	snap, usedFallback, err := parseSnapshot(string(r.buf[:n]))
	if err != nil {
		return Snapshot{}, err
	}
	if usedFallback {
		r.warnOnce.Do(func() {
			if r.logger != nil {
				r.logger.Warn("kernel does not provide MemAvailable (needs 3.14+), falling back to an estimate",
					slog.String("path", r.path))
			}
		})
	}
	return snap, nil
}

// readFull reads until buf is full or EOF. Pseudo-files may return short
// reads, so a single Read call is not enough.
func readFull(f *os.File, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := f.Read(buf[n:])
		n += m
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// parseSnapshot extracts the snapshot from raw meminfo content. The returned
// bool reports whether the availability estimate was used in place of a
// kernel-provided MemAvailable.
func parseSnapshot(content string) (Snapshot, bool, error) {
	var s Snapshot

	memTotal, err := mandatoryField(content, "MemTotal:")
	if err != nil {
		return s, false, err
	}
	if memTotal == 0 {
		return s, false, merr.Critical(
			fmt.Errorf("MemTotal is zero"),
			ExitFieldMissing, "parse_meminfo", merr.ErrorContext{Field: "MemTotal:"})
	}
	swapTotal, err := mandatoryField(content, "SwapTotal:")
	if err != nil {
		return s, false, err
	}
	swapFree, err := mandatoryField(content, "SwapFree:")
	if err != nil {
		return s, false, err
	}

	usedFallback := false
	avail := fieldValue(content, "MemAvailable:")
	if avail < 0 {
		avail, err = availableGuesstimate(content)
		if err != nil {
			return s, false, err
		}
		usedFallback = true
	}

	s.MemTotalKiB = memTotal
	s.MemAvailableKiB = avail
	s.SwapTotalKiB = swapTotal
	s.SwapFreeKiB = swapFree

	s.MemAvailablePercent = int(avail * 100 / memTotal)
	if swapTotal > 0 {
		s.SwapFreePercent = int(swapFree * 100 / swapTotal)
	} else {
		// No swap configured: report 0 rather than divide by zero.
		s.SwapFreePercent = 0
	}

	s.MemTotalMiB = memTotal / 1024
	s.MemAvailableMiB = avail / 1024
	s.SwapTotalMiB = swapTotal / 1024
	s.SwapFreeMiB = swapFree / 1024

	return s, usedFallback, nil
}

// availableGuesstimate approximates MemAvailable on kernels that do not
// provide it. The constituent fields are mandatory once this path is taken.
func availableGuesstimate(content string) (int64, error) {
	cached, err := mandatoryField(content, "Cached:")
	if err != nil {
		return 0, err
	}
	memFree, err := mandatoryField(content, "MemFree:")
	if err != nil {
		return 0, err
	}
	buffers, err := mandatoryField(content, "Buffers:")
	if err != nil {
		return 0, err
	}
	shmem, err := mandatoryField(content, "Shmem:")
	if err != nil {
		return 0, err
	}
	return memFree + cached + buffers - shmem, nil
}

// mandatoryField is fieldValue for fields whose absence means the kernel is
// unsupported; the error is critical and carries ExitFieldMissing.
func mandatoryField(content, label string) (int64, error) {
	v := fieldValue(content, label)
	if v < 0 {
		return 0, merr.Critical(
			fmt.Errorf("could not find entry %q", label),
			ExitFieldMissing, "parse_meminfo", merr.ErrorContext{Field: label})
	}
	return v, nil
}

// fieldValue locates the first occurrence of label in content and parses the
// first base-10 integer after it. It returns -1 when the label is missing or
// the value does not parse; all meminfo fields are non-negative, so the
// sentinel is unambiguous. Callers with signed domains must not use it.
func fieldValue(content, label string) int64 {
	idx := strings.Index(content, label)
	if idx < 0 {
		return -1
	}
	rest := content[idx+len(label):]
	rest = strings.TrimLeft(rest, " \t")

	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return -1
	}
	v, err := strconv.ParseInt(rest[:end], 10, 64)
	if err != nil {
		return -1
	}
	return v
}
