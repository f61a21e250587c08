package ir

import (
	"errors"
	"fmt"
)

// CorruptRecordError reports a malformed length, tag or field while
// decoding a binary record.
type CorruptRecordError struct {
	// Offset is the byte offset inside the record (or stream) where
	// decoding failed.
	Offset int64

	// Field names the element being decoded.
	Field string

	Message string

	// Err is the underlying cause, if any (e.g. io.ErrUnexpectedEOF).
	Err error
}

func (e *CorruptRecordError) Error() string {
	msg := fmt.Sprintf("corrupt record at offset %d: %s: %s", e.Offset, e.Field, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptRecordError) Unwrap() error { return e.Err }

// NotFoundError reports a lookup of an unknown nid, UUID, stamp or
// chronology. Callers treat it as "no data".
type NotFoundError struct {
	Kind string // "nid", "uuid", "stamp", "chronology", ...
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

// ConfigurationError reports an invalid combination of options, detected
// before any processing starts.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Message)
}

// ValidationError reports a value that violates a record invariant.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IOError wraps a failure of the underlying byte source or sink. It is
// propagated, never retried internally.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsCorrupt returns true if err wraps a CorruptRecordError.
func IsCorrupt(err error) bool {
	var ce *CorruptRecordError
	return errors.As(err, &ce)
}

// IsNotFound returns true if err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConfiguration returns true if err wraps a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsIO returns true if err wraps an IOError.
func IsIO(err error) bool {
	var ie *IOError
	return errors.As(err, &ie)
}
