// internal/common/errors/handler.go
package errors

import (
	"net/http"
	"time"
)

// Normalize ensures any error surfaces as a StandardError.
func Normalize(err error) *StandardError {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// HTTPStatus maps an error code to the status the API boundary should return.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrCodeClassificationAmbiguous, ErrCodeFeatureExtraction, ErrCodeQueryNotReadOnly:
		return http.StatusUnprocessableEntity
	case ErrCodeCompletionUnavailable, ErrCodeModelUnavailable:
		return http.StatusBadGateway
	case ErrCodeAnalysisExhausted, ErrCodePredictionUnavailable, ErrCodeQueryFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
