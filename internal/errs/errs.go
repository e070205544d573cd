// Package errs holds the error kinds shared across wasmenv. Concrete errors wrap one of these sentinels so that
// callers can classify a failure with errors.Is without depending on the package that produced it.
package errs

import "errors"

var (
	ErrPrecondition     = errors.New("precondition failed")
	ErrNetwork          = errors.New("network failure")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyInstalled = errors.New("already installed")
	ErrExtraction       = errors.New("extraction failed")
	ErrFilesystem       = errors.New("filesystem failure")
	ErrMalformedVersion = errors.New("malformed version")
)
