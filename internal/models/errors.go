package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Code classifies an AppError. Each code maps to one API status.
type Code string

const (
	CodeNotFound         Code = "NOT_FOUND"
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeInternal         Code = "INTERNAL_ERROR"
)

var codeStatus = map[Code]int{
	CodeNotFound:         fiber.StatusNotFound,
	CodeValidation:       fiber.StatusBadRequest,
	CodeUnauthorized:     fiber.StatusUnauthorized,
	CodePermissionDenied: fiber.StatusForbidden,
}

// Status is the HTTP status the JSON API answers with. Unknown codes are
// internal errors.
func (c Code) Status() int {
	if s, ok := codeStatus[c]; ok {
		return s
	}
	return fiber.StatusInternalServerError
}

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError is an error the handlers know how to present. Err, when set, is
// the underlying cause.
type AppError struct {
	Code    Code
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error { return e.Err }

func newAppError(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// NewNotFoundError reports a missing resource. key is an id, slug or
// username.
func NewNotFoundError(resource string, key any) *AppError {
	return newAppError(CodeNotFound, fmt.Sprintf("%s %v not found", resource, key))
}

func NewValidationError(message string) *AppError {
	return newAppError(CodeValidation, message)
}

func NewUnauthorizedError(message string) *AppError {
	return newAppError(CodeUnauthorized, message)
}

// NewPermissionDeniedError is returned when an authenticated user acts on
// something they do not own.
func NewPermissionDeniedError(message string) *AppError {
	return newAppError(CodePermissionDenied, message)
}

// NewInternalError wraps an unexpected failure. Its cause is never shown to
// API clients.
func NewInternalError(err error) *AppError {
	return &AppError{Code: CodeInternal, Message: "Internal server error", Err: err}
}

// ErrorCode returns the code of the first AppError in err's chain, or "".
func ErrorCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsNotFound reports whether err carries CodeNotFound.
func IsNotFound(err error) bool {
	return ErrorCode(err) == CodeNotFound
}

// StatusFor maps err to the status used by the JSON API.
func StatusFor(err error) int {
	return ErrorCode(err).Status()
}

// RespondWithError writes err as an ErrorResponse with the given status.
// The cause of a non-internal AppError goes into details.
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	resp := ErrorResponse{Error: err.Error()}
	var appErr *AppError
	if errors.As(err, &appErr) {
		resp = ErrorResponse{Error: appErr.Message, Code: string(appErr.Code)}
		if appErr.Err != nil && appErr.Code != CodeInternal {
			resp.Details = appErr.Err.Error()
		}
	}
	return c.Status(status).JSON(resp)
}

// RespondWithAppError writes err with the status StatusFor picks.
func RespondWithAppError(c *fiber.Ctx, err error) error {
	return RespondWithError(c, StatusFor(err), err)
}
