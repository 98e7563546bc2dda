// Package common defines shared sentinel errors used across FileKeeper
// components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// ErrDuplicateContent signals a unique-constraint violation on the
	// content hash. The dedup path recovers from it by retrying as a
	// reference-count increment; it should never reach service callers.
	ErrDuplicateContent = errors.New("duplicate content hash")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Upload rejection errors. Surfaced distinctly so callers can report
	// a specific outcome instead of a generic failure.
	ErrContentRejected    = errors.New("content rejected by scanner")
	ErrScannerUnavailable = errors.New("scanner unavailable")
	ErrFileTooLarge       = errors.New("file size limit exceeded")

	// Validation errors for structural operations.
	ErrInvalidParent = errors.New("parent is not a live folder")
)
