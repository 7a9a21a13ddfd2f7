package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCritical_CarriesExitCode(t *testing.T) {
	root := errors.New("could not find entry \"MemTotal:\"")
	err := Critical(root, 104, "parse_meminfo", ErrorContext{Field: "MemTotal:"})

	require.NotNil(t, err)
	assert.True(t, IsCritical(err))
	assert.Equal(t, 104, ExitCodeOf(err))
	assert.ErrorIs(t, err, root)
	assert.Contains(t, err.Error(), "critical")
	assert.Contains(t, err.Error(), "MemTotal:")
}

func TestExitCodeOf_WrappedCritical(t *testing.T) {
	inner := Critical(errors.New("read failed"), 102, "read_meminfo", ErrorContext{})
	wrapped := fmt.Errorf("taking snapshot: %w", inner)
	assert.Equal(t, 102, ExitCodeOf(wrapped))
}

func TestExitCodeOf_Fallbacks(t *testing.T) {
	assert.Equal(t, 0, ExitCodeOf(nil))
	assert.Equal(t, 1, ExitCodeOf(errors.New("plain")))
	assert.Equal(t, 1, ExitCodeOf(WrapRecoverable(errors.New("soft"), "probe")))
}

func TestWrapRecoverable_NilPassthrough(t *testing.T) {
	assert.Nil(t, WrapRecoverable(nil, "anything"))
	assert.Nil(t, Critical(nil, 104, "anything"))
}

func TestErrorContext_Merge(t *testing.T) {
	base := ErrorContext{Operation: "read_proc_file", Pid: 42, Expected: "2 fields"}
	merged := base.Merge(ErrorContext{Path: "/proc/42/statm", Pid: 43, Actual: "1 fields"})

	assert.Equal(t, "read_proc_file", merged.Operation)
	assert.Equal(t, "/proc/42/statm", merged.Path)
	assert.Equal(t, 43, merged.Pid)
	assert.Equal(t, "2 fields", merged.Expected)
	assert.Equal(t, "1 fields", merged.Actual)
	// The receiver is unchanged.
	assert.Equal(t, 42, base.Pid)

	m := merged.ToMap()
	assert.Equal(t, "2 fields", m["expected"])
	assert.Equal(t, "1 fields", m["actual"])
}

func TestMultiError(t *testing.T) {
	var m MultiError
	assert.NoError(t, m.ErrorOrNil())

	m.Add(nil)
	assert.Zero(t, m.Len())

	first := errors.New("mlockall failed")
	m.Add(first)
	m.Add(errors.New("oom_score_adj write failed"))

	err := m.ErrorOrNil()
	require.Error(t, err)
	assert.Equal(t, 2, m.Len())
	assert.Contains(t, err.Error(), "mlockall failed; oom_score_adj write failed")
	assert.ErrorIs(t, err, first)
}
