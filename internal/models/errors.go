package models

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypeExternal   ErrorType = "external"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeValidation ErrorType = "validation"
)

// Machine-readable error codes surfaced in AgentResult.ErrorCode and in
// coordinator result envelopes.
const (
	CodeAgentTimeout        = "AGENT_TIMEOUT"
	CodeAgentException      = "AGENT_EXCEPTION"
	CodeBatchTimeout        = "BATCH_TIMEOUT"
	CodeInvalidAnalysisType = "INVALID_ANALYSIS_TYPE"
	CodeCacheMiss           = "CACHE_MISS"
	CodeExhaustedRetries    = "EXHAUSTED_RETRIES"
	CodeRefinementExhausted = "REFINEMENT_EXHAUSTED"
	CodeRateLimited         = "RATE_LIMITED"
	CodeBadRequest          = "BAD_REQUEST"
)

type AppError struct {
	Code     string
	Message  string
	Type     ErrorType
	Cause    error
	Metadata map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(errType ErrorType, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Type: errType}
}

func NewExternalError(code, message string) *AppError {
	return newError(ErrorTypeExternal, code, message)
}

func NewInternalError(code, message string) *AppError {
	return newError(ErrorTypeInternal, code, message)
}

func NewTimeoutError(code, message string) *AppError {
	return newError(ErrorTypeTimeout, code, message)
}

func NewValidationError(code, message string) *AppError {
	return newError(ErrorTypeValidation, code, message)
}

func WrapExternalError(code string, err error) *AppError {
	return NewExternalError(code, "external collaborator failed").WithCause(err)
}

// ErrorCode extracts the machine-readable code from an error chain, falling
// back to AGENT_EXCEPTION for plain errors.
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeAgentException
}

func IsTimeout(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrorTypeTimeout
	}
	return false
}
