package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the closed set of error categories the service reports.
type Kind string

const (
	KindUnsupportedFormat Kind = "unsupported_format"
	KindPayloadTooLarge   Kind = "payload_too_large"
	KindCorruptImage      Kind = "corrupt_image"
	KindModelUnavailable  Kind = "model_unavailable"
	KindInferenceFailed   Kind = "inference_failed"
	KindInvalidThreshold  Kind = "invalid_threshold"
	KindInternal          Kind = "internal"
)

// AppError is a structured application error. Hint carries remediation
// guidance for operators and is only set for kinds where acting on the
// error is possible.
type AppError struct {
	Kind       Kind   `json:"error"`
	Message    string `json:"message"`
	Hint       string `json:"hint,omitempty"`
	StatusCode int    `json:"-"`
	Cause      error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewUnsupportedFormat reports a file whose extension or detected encoding
// is outside the supported set.
func NewUnsupportedFormat(filename string, allowed []string) *AppError {
	return &AppError{
		Kind:       KindUnsupportedFormat,
		Message:    fmt.Sprintf("unsupported file type: %q", filename),
		Hint:       fmt.Sprintf("allowed formats: %v", allowed),
		StatusCode: http.StatusBadRequest,
	}
}

// NewPayloadTooLarge reports an upload exceeding the configured byte limit.
func NewPayloadTooLarge(size, limit int64) *AppError {
	return &AppError{
		Kind:       KindPayloadTooLarge,
		Message:    fmt.Sprintf("image is %d bytes, limit is %d bytes", size, limit),
		StatusCode: http.StatusRequestEntityTooLarge,
	}
}

// NewCorruptImage reports bytes that could not be decoded as an image.
func NewCorruptImage(message string, cause error) *AppError {
	return &AppError{
		Kind:       KindCorruptImage,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewModelUnavailable reports degraded-mode operation: the classifier never
// loaded and inference cannot run. The hint tells the operator how to
// recover; the server itself keeps serving.
func NewModelUnavailable(reason string) *AppError {
	if reason == "" {
		reason = "classifier model is not loaded"
	}
	return &AppError{
		Kind:       KindModelUnavailable,
		Message:    reason,
		Hint:       "re-export the model to ONNX and restart, or set MODEL_PATH to a valid model file; the API runs in degraded mode until then",
		StatusCode: http.StatusServiceUnavailable,
	}
}

// NewInferenceFailed reports a transient backend failure during a single
// inference call, distinct from the model never having loaded.
func NewInferenceFailed(cause error) *AppError {
	return &AppError{
		Kind:       KindInferenceFailed,
		Message:    "inference failed",
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewInvalidThreshold reports a threshold outside the closed interval [0,1].
func NewInvalidThreshold(value float64) *AppError {
	return &AppError{
		Kind:       KindInvalidThreshold,
		Message:    fmt.Sprintf("threshold must be a number between 0 and 1, got %g", value),
		StatusCode: http.StatusBadRequest,
	}
}

// NewInternal creates a catch-all error for unexpected faults.
func NewInternal(message string, cause error) *AppError {
	return &AppError{
		Kind:       KindInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// KindOf extracts the error kind, or KindInternal for unrecognized errors.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind checks if the error is of a specific kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// StatusCode extracts the HTTP status code from an error
func StatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
