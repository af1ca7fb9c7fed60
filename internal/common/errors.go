package common

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ValidationError rejects malformed input or an illegal state
// transition. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a validation error for a field
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// PreconditionFailedError signals an operation whose precondition does
// not hold (e-invoice not required, idempotent skip). Callers treat it
// as a success no-op, not a failure.
type PreconditionFailedError struct {
	Op     string
	Reason string
}

func (e *PreconditionFailedError) Error() string {
	return fmt.Sprintf("precondition failed for %s: %s", e.Op, e.Reason)
}

// NewPreconditionFailed creates a precondition error for an operation
func NewPreconditionFailed(op, reason string) error {
	return &PreconditionFailedError{Op: op, Reason: reason}
}

// AllocationConflictError signals that a generated identifier was
// already claimed by a concurrent writer. The allocator retries a
// bounded number of times before surfacing it.
type AllocationConflictError struct {
	Identifier string
}

func (e *AllocationConflictError) Error() string {
	return fmt.Sprintf("identifier %q already claimed", e.Identifier)
}

// DeliveryFailureError records a failed channel send. It is stored on
// the channel state and never unwinds order or invoice state.
type DeliveryFailureError struct {
	Channel string
	Reason  string
}

func (e *DeliveryFailureError) Error() string {
	return fmt.Sprintf("delivery via %s failed: %s", e.Channel, e.Reason)
}

// PersistenceError wraps a storage failure. Surfaced to the caller as a
// request-level failure so the webhook provider retries.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// WrapPersistence wraps err as a persistence failure, passing nil through
func WrapPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPreconditionFailed reports whether err is a precondition failure
func IsPreconditionFailed(err error) bool {
	var pe *PreconditionFailedError
	return errors.As(err, &pe)
}

// IsAllocationConflict reports whether err is an allocation conflict
func IsAllocationConflict(err error) bool {
	var ae *AllocationConflictError
	return errors.As(err, &ae)
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	} `json:"error"`
}

// CreateErrorResponse creates a standardized error response
func CreateErrorResponse(code string, message string, details map[string]string) *ErrorResponse {
	var resp ErrorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	resp.Error.Details = details
	return &resp
}

// SendValidationError sends a validation error response
func SendValidationError(c echo.Context, field, message string) error {
	details := map[string]string{
		field: message,
	}
	return c.JSON(http.StatusBadRequest, CreateErrorResponse("VALIDATION_ERROR", "Validation failed", details))
}

// SendClientError sends a client error response
func SendClientError(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, CreateErrorResponse("CLIENT_ERROR", message, nil))
}

// SendServerError sends a server error response
func SendServerError(c echo.Context, message string) error {
	return c.JSON(http.StatusInternalServerError, CreateErrorResponse("SERVER_ERROR", message, nil))
}

// SendNotFoundError sends a not found error response
func SendNotFoundError(c echo.Context, resource string) error {
	return c.JSON(http.StatusNotFound, CreateErrorResponse("NOT_FOUND", fmt.Sprintf("%s not found", resource), nil))
}

// SendDomainError maps a pipeline error onto an HTTP response:
// validation errors become 400, precondition failures a 200 no-op,
// everything else a 500.
func SendDomainError(c echo.Context, err error) error {
	switch {
	case IsValidation(err):
		return SendClientError(c, err.Error())
	case IsPreconditionFailed(err):
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "no_op",
			"reason": err.Error(),
		})
	default:
		return SendServerError(c, "operation could not be completed")
	}
}
