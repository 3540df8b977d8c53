// Package errors provides standardized error handling for the query pipeline.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeClassificationAmbiguous ErrorCode = "CLASSIFICATION_AMBIGUOUS"
	ErrCodeFeatureExtraction       ErrorCode = "FEATURE_EXTRACTION_ERROR"
	ErrCodeAnalysisExhausted       ErrorCode = "ANALYSIS_EXHAUSTED"
	ErrCodePredictionUnavailable   ErrorCode = "PREDICTION_UNAVAILABLE"
	ErrCodeModelUnavailable        ErrorCode = "MODEL_UNAVAILABLE"
	ErrCodeCompletionUnavailable   ErrorCode = "COMPLETION_UNAVAILABLE"
	ErrCodeQueryFailed             ErrorCode = "QUERY_ERROR"
	ErrCodeQueryNotReadOnly        ErrorCode = "QUERY_NOT_READ_ONLY"
	ErrCodeSynthesisFailed         ErrorCode = "SYNTHESIS_ERROR"
	ErrCodeInvalidRequest          ErrorCode = "INVALID_REQUEST"
	ErrCodeInternal                ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewPredictionUnavailableError creates a non-retryable prediction error.
func NewPredictionUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePredictionUnavailable,
		Message:   "Price model did not return a usable prediction",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidRequestError creates a non-retryable bad-input error.
func NewInvalidRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidRequest,
		Message:   "Request is malformed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// GetRetryCount returns the recommended retry count for a code. Pipeline
// errors are terminal for the request; only transport-level codes retry.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeCompletionUnavailable, ErrCodeModelUnavailable:
		return 2
	case ErrCodeQueryFailed:
		return 1
	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "CLASSIFICATION") || strings.Contains(codeStr, "FEATURE") || strings.Contains(codeStr, "SYNTHESIS"):
		return "PIPELINE"
	case strings.Contains(codeStr, "QUERY") || strings.Contains(codeStr, "ANALYSIS"):
		return "DATABASE"
	case strings.Contains(codeStr, "COMPLETION") || strings.Contains(codeStr, "MODEL") || strings.Contains(codeStr, "PREDICTION"):
		return "UPSTREAM"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
