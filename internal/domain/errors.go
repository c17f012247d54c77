package domain

import "errors"

var (
	// ErrNotFound means the caller referenced a conversation or agent that
	// does not exist for their owner/tenant. Surfaced directly, never retried.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a concurrent writer won a turn-index race. Retryable
	// once by the orchestrator; fatal if the retry conflicts again.
	ErrConflict = errors.New("write conflict")
)
