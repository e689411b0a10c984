package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Lifecycle errors
	ErrActivationRefused = errors.New("activation refused by an external policy")
	ErrUnknownUnit       = errors.New("unknown compute unit")
	ErrNoUnits           = errors.New("no compute units present")
	ErrInvalidTopology   = errors.New("invalid cluster topology")

	// Tunable errors
	ErrUnknownTunable = errors.New("unknown tunable")
	ErrInvalidTunable = errors.New("invalid tunable value")

	// Composition errors
	ErrUnknownAlgorithm     = errors.New("unknown decision algorithm")
	ErrUnknownSuspendSource = errors.New("unknown suspend source")

	// Journal errors
	ErrEventNotFound = errors.New("event not found")
)
