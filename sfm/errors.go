package sfm

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrMalformedFile matches every MalformedFileError with errors.Is.
	ErrMalformedFile = errors.New("malformed file")
	// ErrMissingReference matches every MissingReferenceError with errors.Is.
	ErrMissingReference = errors.New("missing reference")
)

// MalformedFileError is returned when a file cannot be read as its declared format.
// Record locates the problem inside the file, e.g. "line 12" or "camera 3".
type MalformedFileError struct {
	File   string
	Record string
	Err    error
}

// NewMalformedFileError returns a MalformedFileError wrapping err.
func NewMalformedFileError(file, record string, err error) error {
	return &MalformedFileError{File: file, Record: record, Err: err}
}

// MalformedFileErrorf returns a MalformedFileError with a formatted cause.
func MalformedFileErrorf(file, record, format string, args ...interface{}) error {
	return &MalformedFileError{File: file, Record: record, Err: errors.Errorf(format, args...)}
}

func (e *MalformedFileError) Error() string {
	if e.Record == "" {
		return fmt.Sprintf("malformed file %q: %v", e.File, e.Err)
	}
	return fmt.Sprintf("malformed file %q at %s: %v", e.File, e.Record, e.Err)
}

// Unwrap returns the underlying cause.
func (e *MalformedFileError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrMalformedFile) hold.
func (e *MalformedFileError) Is(target error) bool {
	return target == ErrMalformedFile
}

// MissingReferenceError is returned when an id referenced by one section is absent from the
// section it must be joined with.
type MissingReferenceError struct {
	File       string
	From       string
	To         string
	Identifier string
}

// NewMissingReferenceError returns a MissingReferenceError.
func NewMissingReferenceError(file, from, to string, id interface{}) error {
	return &MissingReferenceError{File: file, From: from, To: to, Identifier: fmt.Sprint(id)}
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("%q: %s references %s %s which does not exist", e.File, e.From, e.To, e.Identifier)
}

// Is makes errors.Is(err, ErrMissingReference) hold.
func (e *MissingReferenceError) Is(target error) bool {
	return target == ErrMissingReference
}
