package domain

import (
	"fmt"
	"time"
)

// AppError is the base domain error type.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// ErrorEnvelope is the public error response body.
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Envelope wraps the error for the wire with an RFC3339 timestamp.
func (e *AppError) Envelope() ErrorEnvelope {
	return ErrorEnvelope{Error: ErrorDetail{
		Code:      e.Code,
		Message:   e.Message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}}
}

// Standard domain error constructors. Codes match the public error envelope.

func ErrValidation(msg string) *AppError {
	return &AppError{Code: "INVALID_REQUEST", Message: msg, Status: 400}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Message: msg, Status: 401}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Message: msg, Status: 403}
}

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: "RESOURCE_NOT_FOUND", Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: "DUPLICATE_RESOURCE", Message: msg, Status: 409}
}

func ErrInsufficientFunds() *AppError {
	return &AppError{Code: "INSUFFICIENT_FUNDS", Message: "insufficient funds", Status: 400}
}

func ErrWalletDisabled(msg string) *AppError {
	return &AppError{Code: "INVALID_REQUEST", Message: msg, Status: 400}
}

func ErrRateLimited(msg string) *AppError {
	return &AppError{Code: "RATE_LIMIT_EXCEEDED", Message: msg, Status: 429}
}

func ErrUpstream(msg string, cause error) *AppError {
	return &AppError{Code: "SERVICE_UNAVAILABLE", Message: msg, Status: 503, Cause: cause}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Message: msg, Status: 500, Cause: cause}
}
