package domain

import (
	"errors"
	"fmt"
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

// Error codes specific to the tracking pipeline.
const (
	CodeNoVariantAvailable    = "NO_VARIANT_AVAILABLE"
	CodeUnresolvedDestination = "UNRESOLVED_DESTINATION"
	CodeDuplicateConversion   = "DUPLICATE_CONVERSION"
	CodeInactiveSource        = "INACTIVE_SOURCE"
	CodeLeadRequired          = "LEAD_REQUIRED"
)

// AsAppError unwraps err to an *AppError if it contains one.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// Standard domain error constructors.

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Message: msg, Status: 409}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: "VALIDATION_ERROR", Message: msg, Status: 400}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Message: msg, Status: 401}
}

func ErrRateLimited(msg string) *AppError {
	return &AppError{Code: "RATE_LIMITED", Message: msg, Status: 429}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Message: msg, Status: 500, Cause: cause}
}

// Tracking pipeline errors.

func ErrNoVariantAvailable(splitTestID string) *AppError {
	return &AppError{Code: CodeNoVariantAvailable, Message: fmt.Sprintf("split test %s has no selectable variant", splitTestID), Status: 422}
}

func ErrUnresolvedDestination(trackingLinkID string) *AppError {
	return &AppError{Code: CodeUnresolvedDestination, Message: fmt.Sprintf("tracking link %s has no destination", trackingLinkID), Status: 400}
}

func ErrDuplicateConversion(existingID string) *AppError {
	return &AppError{Code: CodeDuplicateConversion, Message: fmt.Sprintf("conversion already recorded: %s", existingID), Status: 409}
}

func ErrInactiveSource(msg string) *AppError {
	return &AppError{Code: CodeInactiveSource, Message: msg, Status: 403}
}

func ErrLeadRequired(visitorID string) *AppError {
	return &AppError{Code: CodeLeadRequired, Message: fmt.Sprintf("no lead for visitor %s", visitorID), Status: 400}
}
