package ai

import "errors"

// Sentinel failure kinds for completion calls. Callers match with errors.Is
// to pick user-facing fallback copy; anything not wrapping one of these is a
// generic failure.
var (
	// ErrMissingAPIKey indicates a missing or rejected upstream credential.
	ErrMissingAPIKey = errors.New("completion credential missing or invalid")
	// ErrQuotaExceeded indicates the upstream rate or quota limit was hit.
	ErrQuotaExceeded = errors.New("completion quota exceeded")
	// ErrUnavailable indicates the model or endpoint cannot be reached.
	ErrUnavailable = errors.New("completion model unavailable")
)
