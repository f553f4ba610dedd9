package eventloop

import (
	"errors"
	"fmt"
)

// TypeError reports that a value handed to the loop was not of the expected
// shape (e.g. a nil callback where one is required).
type TypeError struct {
	Cause   error
	Message string
}

func (e *TypeError) Error() string {
	if e.Message == "" {
		return "eventloop: type error"
	}
	return e.Message
}

func (e *TypeError) Unwrap() error { return e.Cause }

// RangeError reports that a value was outside the range the loop accepts,
// such as a timer period of zero or a fd beyond the poller's fixed table.
type RangeError struct {
	Cause   error
	Message string
}

func (e *RangeError) Error() string {
	if e.Message == "" {
		return "eventloop: range error"
	}
	return e.Message
}

func (e *RangeError) Unwrap() error { return e.Cause }

// TimeoutError reports that a bounded wait did not complete before its
// deadline. No function in this module returns it; RunOnce and TimeoutOnce
// simply return after their poll budget.
type TimeoutError struct {
	Cause   error
	Message string
}

func (e *TimeoutError) Error() string {
	if e.Message == "" {
		return "eventloop: operation timed out"
	}
	return e.Message
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// AggregateError collects independent failures from a fan-in operation.
// Helper.Wait does not use it: it returns the first error its errgroup saw.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "eventloop: aggregate error (empty)"
	case 1:
		return e.Errors[0].Error()
	default:
		return fmt.Sprintf("eventloop: %d errors, first: %v", len(e.Errors), e.Errors[0])
	}
}

func (e *AggregateError) Unwrap() []error { return e.Errors }

// Is reports whether target is (or wraps) an *AggregateError. It does not
// compare target with the wrapped errors; errors.Is reaches those through
// Unwrap.
func (e *AggregateError) Is(target error) bool {
	var other *AggregateError
	return errors.As(target, &other)
}

// WrapError wraps cause with a contextual message, preserving it for
// errors.Is/errors.As.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
