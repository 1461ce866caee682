package handlers

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Authentication errors
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidToken    ErrorCode = "INVALID_TOKEN"
	ErrCodeInvalidPassword ErrorCode = "INVALID_PASSWORD"

	// Validation errors
	ErrCodeBadRequest ErrorCode = "BAD_REQUEST"

	// Resource errors
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists  ErrorCode = "ALREADY_EXISTS"
	ErrCodeResourceLocked ErrorCode = "RESOURCE_LOCKED"

	// Share errors
	ErrCodeShareExpired ErrorCode = "SHARE_EXPIRED"

	// Server errors
	ErrCodeInternal      ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"
	ErrCodeStorageError  ErrorCode = "STORAGE_ERROR"
)

// APIError represents a standardized API error response
type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError creates a new API error
func NewAPIError(code ErrorCode, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
	}
}

// HTTPStatus returns the appropriate HTTP status code for the error
func (e *APIError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeUnauthorized, ErrCodeInvalidToken, ErrCodeInvalidPassword:
		return http.StatusUnauthorized
	case ErrCodeBadRequest, ErrCodeAlreadyExists, ErrCodeResourceLocked:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeShareExpired:
		return http.StatusGone
	case ErrCodeInternal, ErrCodeDatabaseError, ErrCodeStorageError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// RespondError sends a standardized error response
func RespondError(c echo.Context, err *APIError) error {
	return c.JSON(err.HTTPStatus(), map[string]interface{}{
		"error": err.Message,
		"code":  err.Code,
	})
}

// Common error constructors for convenience

// ErrUnauthorized returns an unauthorized error
func ErrUnauthorized(message string) *APIError {
	if message == "" {
		message = "Authentication required"
	}
	return NewAPIError(ErrCodeUnauthorized, message)
}

// ErrNotFound returns a not found error
func ErrNotFound(resource string) *APIError {
	message := "Resource not found"
	if resource != "" {
		message = fmt.Sprintf("%s not found", resource)
	}
	return NewAPIError(ErrCodeNotFound, message)
}

// ErrBadRequest returns a bad request error
func ErrBadRequest(message string) *APIError {
	if message == "" {
		message = "Invalid request"
	}
	return NewAPIError(ErrCodeBadRequest, message)
}

// ErrAlreadyExists returns an already exists error
func ErrAlreadyExists(resource string) *APIError {
	message := "Resource already exists"
	if resource != "" {
		message = fmt.Sprintf("%s already registered", resource)
	}
	return NewAPIError(ErrCodeAlreadyExists, message)
}

// ErrResourceLocked returns an error for deletion attempts on locked files
func ErrResourceLocked() *APIError {
	return NewAPIError(ErrCodeResourceLocked, "Cannot delete a locked file")
}

// ErrShareExpired returns an error for expired share links
func ErrShareExpired() *APIError {
	return NewAPIError(ErrCodeShareExpired, "Share has expired")
}

// ErrInvalidPassword returns an error for rejected share passwords
func ErrInvalidPassword() *APIError {
	return NewAPIError(ErrCodeInvalidPassword, "Invalid password")
}

// ErrInternal returns an internal server error
func ErrInternal(message string) *APIError {
	if message == "" {
		message = "Internal server error"
	}
	return NewAPIError(ErrCodeInternal, message)
}

// ErrDatabase returns a database error
func ErrDatabase() *APIError {
	return NewAPIError(ErrCodeDatabaseError, "Database error")
}

// ErrStorage returns a blob storage error
func ErrStorage(operation string) *APIError {
	message := "Storage error"
	if operation != "" {
		message = fmt.Sprintf("Failed to %s", operation)
	}
	return NewAPIError(ErrCodeStorageError, message)
}

// GetClaims extracts JWT claims from the context
// Returns nil if no claims are present
func GetClaims(c echo.Context) *JWTClaims {
	claims, ok := c.Get("user").(*JWTClaims)
	if !ok || claims == nil {
		return nil
	}
	return claims
}

// RequireClaims extracts JWT claims and returns an error if not
// authenticated. The 401 response is written here; the returned error is
// always non-nil so callers stop instead of dereferencing nil claims.
func RequireClaims(c echo.Context) (*JWTClaims, error) {
	claims := GetClaims(c)
	if claims == nil {
		apiErr := ErrUnauthorized("")
		if err := RespondError(c, apiErr); err != nil {
			return nil, err
		}
		return nil, apiErr
	}
	return claims, nil
}
