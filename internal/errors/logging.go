package errors

import (
	"fmt"
	"log/slog"
)

// AttrsToArgs converts slog.Attr slice to []any for use with structured logging.
func AttrsToArgs(attrs []slog.Attr) []any {
	if len(attrs) == 0 {
		return nil
	}
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return args
}

// LogAttrs renders the error's category, cause, and context as slog attributes.
func (e *Error) LogAttrs() []slog.Attr {
	if e == nil {
		return nil
	}
	attrs := []slog.Attr{
		slog.String("category", e.Category.String()),
		slog.String("error", e.Err.Error()),
	}
	for k, v := range e.Context.ToMap() {
		attrs = append(attrs, slog.String(k, fmt.Sprint(v)))
	}
	return attrs
}
