package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// StatusError carries the HTTP status of a failed backend call so the
// executor can tell transient overload from permanent faults.
type StatusError struct {
	Operation string
	Code      int
	Body      string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Operation, e.Code)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Operation, e.Code, e.Body)
}

// ClassifyBackendError is the shared classifier for the retrieval and
// generation backends. Rate limits and server errors retry and count
// against the breaker; client errors fail fast; caller cancellation is
// neither retried nor held against the backend.
func ClassifyBackendError(err error) ErrorClassification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var status *StatusError
	if errors.As(err, &status) {
		transient := status.Code == http.StatusTooManyRequests || status.Code >= http.StatusInternalServerError
		return ErrorClassification{Retryable: transient, RecordFailure: transient}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}

	return ErrorClassification{Retryable: false, RecordFailure: true}
}
