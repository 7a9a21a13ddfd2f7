package errors

import "strconv"

const (
	contextKeyOperation = "operation"
	contextKeyPath      = "path"
	contextKeyField     = "field"
	contextKeyPid       = "pid"
	contextKeyValue     = "value"
	contextKeyExpected  = "expected"
	contextKeyActual    = "actual"
)

// ErrorContext captures structured metadata for categorized errors.
type ErrorContext struct {
	Operation string
	Path      string
	Field     string
	Pid       int
	Value     string
	Expected  string
	Actual    string
	Extra     map[string]any
}

// Merge returns a new ErrorContext combining the receiver with the provided context.
// Non-empty fields from the other context override existing values. Extra maps are merged.
func (ec ErrorContext) Merge(other ErrorContext) ErrorContext {
	result := ec

	if other.Operation != "" {
		result.Operation = other.Operation
	}
	if other.Path != "" {
		result.Path = other.Path
	}
	if other.Field != "" {
		result.Field = other.Field
	}
	if other.Pid != 0 {
		result.Pid = other.Pid
	}
	if other.Value != "" {
		result.Value = other.Value
	}
	if other.Expected != "" {
		result.Expected = other.Expected
	}
	if other.Actual != "" {
		result.Actual = other.Actual
	}

	if len(other.Extra) > 0 {
		if result.Extra == nil {
			result.Extra = make(map[string]any, len(other.Extra))
		}
		for k, v := range other.Extra {
			result.Extra[k] = v
		}
	}

	return result
}

// ToMap converts the context into a map for logging compatibility.
func (ec ErrorContext) ToMap() map[string]any {
	result := make(map[string]any)

	if ec.Operation != "" {
		result[contextKeyOperation] = ec.Operation
	}
	if ec.Path != "" {
		result[contextKeyPath] = ec.Path
	}
	if ec.Field != "" {
		result[contextKeyField] = ec.Field
	}
	if ec.Pid != 0 {
		result[contextKeyPid] = strconv.Itoa(ec.Pid)
	}
	if ec.Value != "" {
		result[contextKeyValue] = ec.Value
	}
	if ec.Expected != "" {
		result[contextKeyExpected] = ec.Expected
	}
	if ec.Actual != "" {
		result[contextKeyActual] = ec.Actual
	}

	for k, v := range ec.Extra {
		result[k] = v
	}

	return result
}
