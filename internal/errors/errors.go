// Package errors defines the sentinel errors used across runledger.
//
// Callers categorize failures with errors.Is. This package must not import
// any other internal package.
package errors

import "errors"

var (
	// ErrNoInput indicates that no suite document was supplied, or that every
	// supplied document was missing or malformed.
	ErrNoInput = errors.New("no usable suite input")

	// ErrStoreUnavailable indicates the trend store could not be opened, read or written.
	ErrStoreUnavailable = errors.New("trend store unavailable")

	// ErrStoreOutOfOrder indicates a run older than the newest stored run.
	ErrStoreOutOfOrder = errors.New("run timestamp precedes latest stored run")

	// ErrRunNotFound indicates that a run id is not present in the trend store.
	ErrRunNotFound = errors.New("run not found")

	// ErrEmptyValue indicates that a required value was empty or zero.
	ErrEmptyValue = errors.New("value cannot be empty")

	// ErrInvalidSuite indicates an unknown suite name.
	ErrInvalidSuite = errors.New("invalid suite")

	// ErrMalformedDocument indicates a suite document that does not match its schema.
	ErrMalformedDocument = errors.New("malformed suite document")

	// ErrArchiverUnavailable indicates the archival rendering capability is missing.
	ErrArchiverUnavailable = errors.New("archival renderer unavailable")

	// ErrUnknownFormat indicates a requested report format that does not exist.
	ErrUnknownFormat = errors.New("unknown report format")

	// ErrArtifactLocked indicates another process holds the output directory lock.
	ErrArtifactLocked = errors.New("output directory is locked")

	// ErrConfigInvalid indicates a configuration value failed validation.
	ErrConfigInvalid = errors.New("invalid configuration")
)

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join returns an error wrapping every non-nil err, or nil if there are none.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
