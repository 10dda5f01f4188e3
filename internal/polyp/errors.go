package polyp

import "errors"

// #region errors

// Semantic errors shared across the engine. Adapter-specific failures
// (ErrModelUnavailable, ErrVerifierUnavailable) live with their adapters.
var (
	// ErrValidation indicates a structural mismatch (hash binding, dimension,
	// normalization). Fatal to the request; the polyp is never created.
	ErrValidation = errors.New("reef: validation failed")

	// ErrNotFound indicates an unknown polyp identifier.
	ErrNotFound = errors.New("reef: polyp not found")

	// ErrConflict indicates an optimistic-concurrency loss on a state
	// transition. The caller should re-read and re-evaluate.
	ErrConflict = errors.New("reef: transition conflict")

	// ErrTerminalState indicates an attempted transition out of a terminal
	// state. Treated as a no-op by idempotent sweeps.
	ErrTerminalState = errors.New("reef: state is terminal")

	// ErrEmptyIndex indicates the queried model space has no vectors yet.
	ErrEmptyIndex = errors.New("reef: vector space is empty")
)

// #endregion errors
