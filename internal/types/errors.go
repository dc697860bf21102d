package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFaceDetected means the extractor found no face in the image. The user should reposition and retry.
	ErrNoFaceDetected = errors.New("no face detected")

	// ErrNoEnrollments means a punch was attempted before anyone was enrolled.
	ErrNoEnrollments = errors.New("no identities enrolled")

	// ErrEmptyGallery is returned by the match engine instead of comparing against nothing.
	ErrEmptyGallery = errors.New("gallery is empty")

	// ErrImageUnavailable means the image source could not produce a frame.
	ErrImageUnavailable = errors.New("image unavailable")
)

// NoMatchError reports a face that was not close enough to any enrolled signature.
type NoMatchError struct {
	Distance float64
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("face not recognized (best distance %.3f)", e.Distance)
}

// ValidationError reports invalid input such as an empty or wrongly sized signature.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// StorageError wraps an I/O failure on the gallery or the ledger.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err as a StorageError. Returns nil for a nil err.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
