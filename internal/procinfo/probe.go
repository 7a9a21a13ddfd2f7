// Package procinfo probes per-process memory facts from /proc/<pid>.
// A vanished process is the common case, not an error: every read here fails
// soft so one disappearing target can never take the poller down.
package procinfo

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/sys/unix"

	merr "memwatch/internal/errors"
)

// Probe reads per-process pseudo-files under a proc root. The page size is
// queried once and memoized; it is host-invariant for the process lifetime.
// A Probe is not safe for concurrent use.
type Probe struct {
	root   string
	logger *slog.Logger

	pageOnce sync.Once
	pageSize int
}

// NewProbe constructs a Probe over the given proc root (normally "/proc").
// A nil logger disables parse warnings.
func NewProbe(root string, logger *slog.Logger) *Probe {
	return &Probe{root: root, logger: logger}
}

func (p *Probe) pidPath(pid int, name string) string {
	return filepath.Join(p.root, strconv.Itoa(pid), name)
}

// Pids enumerates the numeric entries of the proc root.
func (p *Probe) Pids() ([]int, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		return nil, merr.PathError(err, p.root, "list_proc")
	}
	pids := make([]int, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid <= 0 {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// Alive reports whether pid refers to a running, non-zombie process. A
// zombie holds no reclaimable memory and is considered dead. Open failure
// means the process is gone; parse failure is logged and reported as dead.
func (p *Probe) Alive(pid int) bool {
	data, err := os.ReadFile(p.pidPath(pid, "stat"))
	if err != nil {
		return false
	}
	state, err := statState(data)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("unparseable process stat line",
				slog.Int("pid", pid), slog.String("error", err.Error()))
		}
		return false
	}
	return state != 'Z'
}

// statState extracts the single-character run state from stat content, the
// third field. The second field is the command name in parentheses and may
// itself contain spaces and parentheses, so scanning resumes after the last
// closing parenthesis.
func statState(data []byte) (byte, error) {
	i := bytes.LastIndexByte(data, ')')
	if i < 0 {
		return 0, fmt.Errorf("no command name field in %q", data)
	}
	rest := bytes.TrimLeft(data[i+1:], " ")
	if len(rest) == 0 {
		return 0, fmt.Errorf("no state field after command name in %q", data)
	}
	return rest[0], nil
}

// readInt reads the first integer token of /proc/<pid>/<name>. Some of these
// files hold legitimately negative values, so failure is reported through the
// error and never through a sentinel.
func (p *Probe) readInt(pid int, name string) (int64, error) {
	path := p.pidPath(pid, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, merr.WrapRecoverable(err, "read_proc_file",
			merr.ErrorContext{Path: path, Pid: pid})
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, merr.WrapRecoverable(fmt.Errorf("empty file"), "parse_proc_file",
			merr.ErrorContext{Path: path, Pid: pid})
	}
	v, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, merr.WrapRecoverable(err, "parse_proc_file",
			merr.ErrorContext{Path: path, Pid: pid, Value: fields[0]})
	}
	return v, nil
}

// OOMScore reads the kernel-computed OOM score of pid.
func (p *Probe) OOMScore(pid int) (int, error) {
	v, err := p.readInt(pid, "oom_score")
	return int(v), err
}

// OOMScoreAdj reads the user-set OOM score adjustment of pid. The value may
// legitimately be negative; absence is signalled only by the error.
func (p *Probe) OOMScoreAdj(pid int) (int, error) {
	v, err := p.readInt(pid, "oom_score_adj")
	return int(v), err
}

// UID returns the effective owner of pid, taken from the ownership metadata
// of its /proc directory rather than parsed from text.
func (p *Probe) UID(pid int) (int, error) {
	path := filepath.Join(p.root, strconv.Itoa(pid))
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, merr.WrapRecoverable(err, "stat_proc_dir",
			merr.ErrorContext{Path: path, Pid: pid})
	}
	return int(st.Uid), nil
}

// Comm returns the command name of pid. The kernel truncates comm to 16
// bytes including the terminator; a truncated trailing multi-byte sequence
// is stripped so the result is always valid UTF-8.
func (p *Probe) Comm(pid int) (string, error) {
	path := p.pidPath(pid, "comm")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", merr.WrapRecoverable(err, "read_comm",
			merr.ErrorContext{Path: path, Pid: pid})
	}
	// At least a one-character name plus the trailing newline.
	if len(data) < 2 || data[len(data)-1] != '\n' {
		return "", merr.WrapRecoverable(fmt.Errorf("malformed comm %q", data), "parse_comm",
			merr.ErrorContext{Path: path, Pid: pid})
	}
	return trimIncompleteRune(string(data[:len(data)-1])), nil
}

// trimIncompleteRune drops trailing bytes that form an incomplete UTF-8
// sequence, as left behind by the kernel's byte-level comm truncation.
func trimIncompleteRune(s string) string {
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size > 1 {
			return s
		}
		s = s[:len(s)-1]
	}
	return s
}

// RSSKiB returns the resident set size of pid in KiB: the second field of
// statm (pages) scaled by the host page size.
func (p *Probe) RSSKiB(pid int) (int64, error) {
	path := p.pidPath(pid, "statm")
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, merr.WrapRecoverable(err, "read_statm",
			merr.ErrorContext{Path: path, Pid: pid})
	}
	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return 0, merr.WrapRecoverable(fmt.Errorf("too few statm fields"), "parse_statm",
			merr.ErrorContext{Path: path, Pid: pid,
				Expected: "2 fields", Actual: strconv.Itoa(len(fields)) + " fields"})
	}
	pages, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, merr.WrapRecoverable(err, "parse_statm",
			merr.ErrorContext{Path: path, Pid: pid, Value: fields[1]})
	}
	return pages * int64(p.page()) / 1024, nil
}

func (p *Probe) page() int {
	p.pageOnce.Do(func() {
		if p.pageSize == 0 {
			p.pageSize = unix.Getpagesize()
		}
	})
	return p.pageSize
}
