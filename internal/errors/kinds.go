package errors

import (
	"github.com/cockroachdb/errors"
)

// Markers for the failure classes of a mirror run. Attach them with Mark and
// test for them with errors.Is.
var (
	// ErrFetch marks any failed HTTP fetch: transport error, timeout, non-2xx
	// status or oversized body.
	ErrFetch = errors.New("fetch failed")

	// ErrRootFetch marks a failure to fetch the root page. It aborts the job.
	ErrRootFetch = errors.New("root page fetch failed")

	// ErrStorage marks a failure to persist bytes under the mirror root.
	ErrStorage = errors.New("storage failed")

	// ErrInvalidURL marks a URL that cannot be mirrored.
	ErrInvalidURL = errors.New("invalid URL")
)

// Mark tags err with the given marker while keeping its message intact.
func Mark(err error, marker error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, marker)
}

// IsRecoverable reports whether err only affects a single resource.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, ErrRootFetch) {
		return false
	}
	return errors.Is(err, ErrFetch) || errors.Is(err, ErrStorage)
}
