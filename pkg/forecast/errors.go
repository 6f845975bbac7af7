package forecast

import (
	"fmt"
	"strings"
)

// InvalidArgumentError reports a bad call argument (negative periods,
// non-positive frequency, ...). The call fails fast with no partial work.
type InvalidArgumentError struct {
	Msg string
}

func (e *InvalidArgumentError) Error() string {
	return "invalid argument: " + e.Msg
}

// AlreadyFittedError is returned when Fit is called on a fitted model
// without re-fitting enabled.
type AlreadyFittedError struct{}

func (e *AlreadyFittedError) Error() string {
	return "model is already fitted; enable re-fit to fit again"
}

// InvalidStateError reports an operation invoked in the wrong lifecycle
// state, e.g. AddSeasonality after fit or Predict before fit.
type InvalidStateError struct {
	Op    string
	State string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s is not valid on a %s model", e.Op, e.State)
}

// UnknownKeyError reports a future frame referencing a key that was never fit.
type UnknownKeyError struct {
	Key string
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("unknown key %q: not present in the fitted set", e.Key)
}

// KeyError ties one key to the error that failed it. It is the unit of the
// per-key failure report.
type KeyError struct {
	Key string
	Err error
}

func (e KeyError) Error() string {
	return fmt.Sprintf("key %q: %v", e.Key, e.Err)
}

func (e KeyError) Unwrap() error { return e.Err }

// AggregateError bundles all per-key failures of a batch when the error
// policy is raise. Callers can still see exactly which keys failed.
type AggregateError struct {
	Errors []KeyError
}

func (e *AggregateError) Error() string {
	keys := make([]string, len(e.Errors))
	for i, ke := range e.Errors {
		keys[i] = ke.Key
	}
	return fmt.Sprintf("%d of the batch's keys failed (%s)", len(e.Errors), strings.Join(keys, ", "))
}

// Unwrap exposes the per-key errors to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i := range e.Errors {
		out[i] = e.Errors[i]
	}
	return out
}
