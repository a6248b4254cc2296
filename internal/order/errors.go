package order

import "fmt"

// ValidationError reports a signal or order field that violates its
// constraints. It is handled locally by the execution engine, which
// rejects the order and surfaces the reason to the caller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}
