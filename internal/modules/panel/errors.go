package panel

import "errors"

// Shared error taxonomy for the estimation pipeline. Per-date recoverable
// failures (ErrRankDeficient, ErrInsufficientData) are recorded and skipped;
// everything else is fatal at call time.
var (
	// ErrRankDeficient indicates a singular or ill-conditioned design matrix
	// for a date (too few assets, a single-member sector, collinear scores).
	ErrRankDeficient = errors.New("rank deficient design matrix")

	// ErrInsufficientData indicates fewer observations than a computation
	// requires (trailing window exceeds available history, empty cross-section).
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidConfig indicates an out-of-range configuration value.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrSchemaMismatch indicates a missing or malformed field in an input panel.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrUnknownFactor indicates a registry lookup for an unregistered name.
	ErrUnknownFactor = errors.New("unknown factor")
)
