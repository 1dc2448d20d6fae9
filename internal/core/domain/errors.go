package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRetrievalUnavailable marks a lexical or vector index failure.
	// Absorbed at the retrieval tier: the failing side contributes an
	// empty candidate list and the turn continues.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrRerankUnavailable marks a rerank model failure. Absorbed: the
	// fused order's head is used instead.
	ErrRerankUnavailable = errors.New("rerank unavailable")

	// ErrUngrounded means the assembled context shares no term with the
	// question. Short-circuits the turn to the canonical refusal.
	ErrUngrounded = errors.New("context not grounded in question")

	// ErrGenerationFailed marks a language-model failure. Surfaced to the
	// user as an "Error: <cause>" answer, never as a fault.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrConfigurationMissing marks an absent required setting. Fatal at
	// startup; the service refuses to run degraded.
	ErrConfigurationMissing = errors.New("configuration missing")

	ErrInvalidInput = errors.New("invalid input")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
