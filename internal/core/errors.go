package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDecodeFailure is matched by every DecodeError.
	ErrDecodeFailure = errors.New("encoding error: no supported encoding could decode file")

	// ErrOutputWrite is matched by every OutputWriteError.
	ErrOutputWrite = errors.New("output write failed")

	// ErrNoSourceFiles is returned by discovery when nothing matches. The
	// pipeline turns it into a zero-work report, never a failure.
	ErrNoSourceFiles = errors.New("no source files found")
)

// DecodeError reports that none of the candidate encodings could decode a
// file. The file is skipped and the run continues.
type DecodeError struct {
	Path  string
	Tried []string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("encoding error: %s could not be decoded as any of [%s]",
		e.Path, strings.Join(e.Tried, ", "))
}

// Is lets errors.Is(err, ErrDecodeFailure) match.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecodeFailure
}

// OutputWriteError is fatal for a run: an output directory or file could
// not be created or written.
type OutputWriteError struct {
	Path string
	Op   string
	Err  error
}

func (e *OutputWriteError) Error() string {
	return fmt.Sprintf("output write failed: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *OutputWriteError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrOutputWrite) match.
func (e *OutputWriteError) Is(target error) bool {
	return target == ErrOutputWrite
}

// UnknownKindError is returned for a dataset kind that is not registered.
type UnknownKindError struct {
	Kind string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown dataset kind: %q", e.Kind)
}

// CoercionError reports a numeric field that could not be converted.
type CoercionError struct {
	Column string
	Value  string
	Err    error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("invalid number in %q: %q", e.Column, e.Value)
}

func (e *CoercionError) Unwrap() error {
	return e.Err
}
