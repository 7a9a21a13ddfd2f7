package errors

import (
	"errors"
	"fmt"
)

// Category classifies an error to guide handling strategy.
type Category int

const (
	// CategoryCritical errors leave the tool without its core data source.
	// The top-level caller is expected to terminate the process.
	CategoryCritical Category = iota
	// CategoryRecoverable errors concern a single probe target; callers
	// treat them as "no value for this process" and move on.
	CategoryRecoverable
	// CategoryDegraded errors indicate an approximation is in use while
	// operation continues normally.
	CategoryDegraded
)

func (c Category) String() string {
	switch c {
	case CategoryCritical:
		return "critical"
	case CategoryRecoverable:
		return "recoverable"
	case CategoryDegraded:
		return "degraded"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// Error wraps an underlying error with a handling category, structured
// context, and, for critical errors, the exit status the process should
// terminate with. Library code never exits; it returns an Error and the
// top-level caller decides.
type Error struct {
	Category Category
	ExitCode int
	Err      error
	Context  ErrorContext
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	ctxMap := e.Context.ToMap()
	if len(ctxMap) == 0 {
		return fmt.Sprintf("[%s] %v", e.Category, e.Err)
	}
	return fmt.Sprintf("[%s] %v (context=%v)", e.Category, e.Err, ctxMap)
}

// Unwrap exposes the wrapped root cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New constructs an Error with the provided category, cause, and context.
func New(category Category, err error, context ErrorContext) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Category: category,
		Err:      err,
		Context:  context,
	}
}

// Critical wraps an error as critical and records the exit status the process
// must terminate with once the error reaches the top-level caller.
func Critical(err error, exitCode int, operation string, contexts ...ErrorContext) *Error {
	if err == nil {
		return nil
	}
	ctx := ErrorContext{Operation: operation}
	for _, c := range contexts {
		ctx = ctx.Merge(c)
	}
	e := New(CategoryCritical, err, ctx)
	e.ExitCode = exitCode
	return e
}

// WrapRecoverable wraps an existing error as recoverable while merging context maps.
func WrapRecoverable(err error, operation string, contexts ...ErrorContext) *Error {
	if err == nil {
		return nil
	}
	ctx := ErrorContext{Operation: operation}
	for _, c := range contexts {
		ctx = ctx.Merge(c)
	}
	return New(CategoryRecoverable, err, ctx)
}

// PathError annotates a recoverable error with the pseudo-file it concerns.
func PathError(err error, path, operation string) *Error {
	return WrapRecoverable(err, operation, ErrorContext{Path: path})
}

// IsCritical reports whether err carries a critical category anywhere in its chain.
func IsCritical(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Category == CategoryCritical
}

// ExitCodeOf returns the exit status recorded on a critical error, or 1 for
// any other non-nil error, so supervisors can distinguish failure causes.
func ExitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) && e.ExitCode > 0 {
		return e.ExitCode
	}
	return 1
}
