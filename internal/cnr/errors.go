package cnr

import "errors"

// Sentinel errors surfaced by the acquisition pipeline. Callers match them
// with errors.Is; everything else is reported as a generic failure.
var (
	ErrInvalidReference = errors.New("invalid case reference")
	ErrInvalidCutoff    = errors.New("invalid cutoff date")
	ErrRecordNotFound   = errors.New("case record not found")
	ErrRetriesExhausted = errors.New("session retries exhausted")
	ErrUnexpected       = errors.New("unexpected acquisition failure")
	ErrQueueClosed      = errors.New("queue closed")
)
