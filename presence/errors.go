/*
errors.go - Centralized error types for the presence engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer maps these to HTTP status codes.

ERROR CATEGORIES:
  1. Soft conditions - Missing reference, bad coordinates. These are NOT
     errors: the evaluator reports a fail-closed verdict and the pipeline
     continues. They never appear in this file.
  2. Conflict errors - Duplicate presence insert, recovered locally.
  3. Not-found errors - Dangling agent/checkin/mission references.
  4. Storage errors - Infrastructure failures, retryable by the caller.

USAGE:
  if errors.Is(err, presence.ErrDuplicatePresence) {
      // already recorded, fetch and return the existing row
  }
*/
package presence

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicatePresence is returned by stores when a presence insert
	// violates the uniqueness constraint on the originating checkin.
	// Expected under client retries; the Recorder recovers by re-fetching.
	ErrDuplicatePresence = errors.New("presence record already exists for checkin")

	// ErrAgentNotFound is returned when a referenced agent doesn't exist.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrCheckinNotFound is returned when a referenced checkin doesn't exist.
	ErrCheckinNotFound = errors.New("checkin not found")

	// ErrMissionNotFound is returned when a referenced mission doesn't exist.
	ErrMissionNotFound = errors.New("mission not found")

	// ErrMissionClosed is returned when submitting to a mission that is no
	// longer active.
	ErrMissionClosed = errors.New("mission is not active")

	// ErrInvalidTolerance is returned when an agent's tolerance radius is
	// not strictly positive.
	ErrInvalidTolerance = errors.New("tolerance radius must be > 0")

	// ErrPartialReference is returned when exactly one reference coordinate
	// component is provided. References are both-or-neither.
	ErrPartialReference = errors.New("reference coordinates must both be set or both be null")

	// ErrStorageUnavailable wraps infrastructure-level persistence failures.
	// Retryable; no partial state is left behind.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// StorageError wraps a store failure with the operation that failed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return ErrStorageUnavailable }

// NewStorageError wraps err as a retryable storage failure.
func NewStorageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// DuplicatePresenceError reports the conflicting checkin on a duplicate
// presence insert.
type DuplicatePresenceError struct {
	AgentID   AgentID
	CheckinID CheckinID
	At        time.Time
}

func (e *DuplicatePresenceError) Error() string {
	return fmt.Sprintf("presence already recorded for checkin %s (agent %s)", e.CheckinID, e.AgentID)
}

func (e *DuplicatePresenceError) Unwrap() error { return ErrDuplicatePresence }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTolerance) ||
		errors.Is(err, ErrPartialReference) ||
		errors.Is(err, ErrMissionClosed)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAgentNotFound) ||
		errors.Is(err, ErrCheckinNotFound) ||
		errors.Is(err, ErrMissionNotFound)
}
