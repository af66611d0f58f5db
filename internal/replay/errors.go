package replay

import (
	"errors"
	"fmt"
)

// FormatError reports input that cannot be read as a replay at all.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *FormatError) Unwrap() error { return e.Err }

// EncodingError reports a text field that could not be represented in the
// requested encoding. Callers recover from it locally.
type EncodingError struct {
	Field string
	Err   error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding %s: %v", e.Field, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

var errNUL = errors.New("contains a NUL byte")

func notReplay() error {
	return &FormatError{Reason: "not a recognized replay"}
}

func truncated(field string, err error) error {
	return &FormatError{Reason: "truncated header at " + field, Err: err}
}
