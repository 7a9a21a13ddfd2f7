package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	merr "memwatch/internal/errors"
	"memwatch/internal/sysinfo"
)

type fakeMemory struct {
	mu    sync.Mutex
	snap  sysinfo.Snapshot
	err   error
	calls int
}

func (f *fakeMemory) Snapshot() (sysinfo.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.snap, f.err
}

func (f *fakeMemory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeProcesses struct {
	pids map[int]int64 // pid -> rss
}

func (f *fakeProcesses) Pids() ([]int, error) {
	out := make([]int, 0, len(f.pids))
	for pid := range f.pids {
		out = append(out, pid)
	}
	return out, nil
}
func (f *fakeProcesses) Alive(pid int) bool            { _, ok := f.pids[pid]; return ok }
func (f *fakeProcesses) RSSKiB(pid int) (int64, error) { return f.pids[pid], nil }
func (f *fakeProcesses) Comm(pid int) (string, error)  { return fmt.Sprintf("proc-%d", pid), nil }
func (f *fakeProcesses) UID(pid int) (int, error)      { return 1000, nil }
func (f *fakeProcesses) OOMScore(pid int) (int, error) { return 100, nil }

type recordingSink struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingSink) Printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}

func (r *recordingSink) first() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.lines) == 0 {
		return ""
	}
	return r.lines[0]
}

func testSnapshot() sysinfo.Snapshot {
	return sysinfo.Snapshot{
		MemTotalKiB:         8192000,
		MemAvailableKiB:     4096000,
		MemTotalMiB:         8000,
		MemAvailableMiB:     4000,
		MemAvailablePercent: 50,
	}
}

func TestDaemon_ReportsAndStops(t *testing.T) {
	memory := &fakeMemory{snap: testSnapshot()}
	sink := &recordingSink{}
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))

	d := NewDaemon(Dependencies{
		Memory:         memory,
		Processes:      &fakeProcesses{pids: map[int]int64{10: 100, 20: 50000}},
		Reporter:       sink,
		Logger:         logger,
		PollInterval:   5 * time.Millisecond,
		ReportInterval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.count() >= 2 },
		2*time.Second, time.Millisecond)
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, memory.callCount(), 2)
	assert.Contains(t, sink.first(), "mem avail: 4000 of 8000 MiB (50 %)")
	assert.Contains(t, logBuf.String(), `"pid":20`, "largest resident process is reported")
}

func TestDaemon_CriticalSnapshotErrorStops(t *testing.T) {
	critical := merr.Critical(errors.New("could not read meminfo"), 102, "read_meminfo")
	memory := &fakeMemory{err: critical}

	d := NewDaemon(Dependencies{
		Memory:       memory,
		Reporter:     &recordingSink{},
		Logger:       slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)),
		PollInterval: time.Millisecond,
	})

	err := d.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 102, merr.ExitCodeOf(err))
}

func TestDaemon_NilChecks(t *testing.T) {
	d := NewDaemon(Dependencies{Memory: &fakeMemory{snap: testSnapshot()}})
	require.Error(t, d.Run(nil)) //nolint:staticcheck // nil context is the case under test

	d = NewDaemon(Dependencies{})
	require.Error(t, d.Run(context.Background()))
}

type failingProtector struct{ called bool }

func (f *failingProtector) Apply(ctx context.Context) error {
	f.called = true
	return merr.WrapRecoverable(errors.New("mlockall denied"), "mlockall")
}

func TestDaemon_ProtectorFailureIsNotFatal(t *testing.T) {
	memory := &fakeMemory{snap: testSnapshot()}
	protector := &failingProtector{}
	var logBuf bytes.Buffer

	d := NewDaemon(Dependencies{
		Memory:         memory,
		Protector:      protector,
		Reporter:       &recordingSink{},
		Logger:         slog.New(slog.NewJSONHandler(&logBuf, nil)),
		PollInterval:   time.Millisecond,
		ReportInterval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return memory.callCount() >= 2 },
		2*time.Second, time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.True(t, protector.called)
	assert.Contains(t, logBuf.String(), "self-protection incomplete")
}
