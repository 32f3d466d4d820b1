package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStaleState indicates a compare-and-swap advance lost: another
	// actor already moved the record past the expected stage.
	ErrStaleState = errors.New("stale state")

	// ErrIllegalTransition indicates a stage transition that would move
	// a record backwards or out of a terminal state.
	ErrIllegalTransition = errors.New("illegal stage transition")

	// ErrUnsupportedFormat indicates no normaliser handles the artifact.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrMalformedRoadmap indicates the roadmap snapshot failed
	// structural validation.
	ErrMalformedRoadmap = errors.New("malformed roadmap structure")

	// ErrMalformedAIResponse indicates the AI capability returned a
	// result that failed schema validation after the internal repair
	// attempt.
	ErrMalformedAIResponse = errors.New("malformed AI response")

	// ErrBranchNotOurs indicates a branch with the deterministic
	// proposal name exists but was created by another actor. Never
	// force-pushed over; escalated instead.
	ErrBranchNotOurs = errors.New("branch exists and is not ours")

	// ErrBaseRevisionStale indicates the target component changed
	// between mapping and proposal build.
	ErrBaseRevisionStale = errors.New("base revision stale")

	// ErrRateLimited indicates a backend rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrCapabilityTimeout indicates the AI capability call timed out.
	ErrCapabilityTimeout = errors.New("capability timeout")

	// ErrCancelled indicates the item's pipeline run was aborted.
	ErrCancelled = errors.New("cancelled")
)

// ErrorClass partitions pipeline failures by how the coordinator
// responds to them.
type ErrorClass int

// Error classes.
const (
	// ClassTransientBackend covers network faults, timeouts and rate
	// limits. Retried with exponential backoff up to the attempt cap.
	ClassTransientBackend ErrorClass = iota

	// ClassValidationFailure covers malformed AI output (after its one
	// internal repair attempt) and schema mismatches. Never retried.
	ClassValidationFailure

	// ClassConcurrencyConflict covers stale base revisions and
	// unexpected existing branches. Bounded retry, then escalation as a
	// fresh proposal attempt.
	ClassConcurrencyConflict

	// ClassFatal covers unsupported formats and permanently malformed
	// roadmap structures. No retry.
	ClassFatal
)

// String returns the class name for ledger records and logs.
func (c ErrorClass) String() string {
	switch c {
	case ClassTransientBackend:
		return "transient-backend"
	case ClassValidationFailure:
		return "validation-failure"
	case ClassConcurrencyConflict:
		return "concurrency-conflict"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify maps an error to its class. Unknown errors are treated as
// transient so a blip never permanently fails an item without using
// its retry budget.
func Classify(err error) ErrorClass {
	switch {
	case errors.Is(err, ErrMalformedAIResponse),
		errors.Is(err, ErrInvalidInput):
		return ClassValidationFailure
	case errors.Is(err, ErrBaseRevisionStale),
		errors.Is(err, ErrBranchNotOurs),
		errors.Is(err, ErrStaleState):
		return ClassConcurrencyConflict
	case errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrMalformedRoadmap),
		errors.Is(err, ErrCancelled):
		return ClassFatal
	default:
		return ClassTransientBackend
	}
}

// Retryable reports whether the coordinator may re-attempt the stage.
func Retryable(err error) bool {
	switch Classify(err) {
	case ClassTransientBackend, ClassConcurrencyConflict:
		return true
	default:
		return false
	}
}
