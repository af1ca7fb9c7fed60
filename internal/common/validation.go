package common

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var gstinPattern = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z]{1}[0-9A-Z]{1}Z[0-9A-Z]{1}$`)

// ValidateUUID validates UUID format
func ValidateUUID(idStr string, fieldName string) (uuid.UUID, error) {
	idStr = strings.TrimSpace(idStr)
	if idStr == "" {
		return uuid.Nil, NewValidationError(fieldName, "is required")
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, NewValidationError(fieldName, "invalid UUID format")
	}

	return id, nil
}

// ValidateGSTIN validates GSTIN format (15 characters, state code prefix)
func ValidateGSTIN(gstin, fieldName string) error {
	if strings.TrimSpace(gstin) == "" {
		return nil // GSTIN is optional
	}

	if len(gstin) != 15 {
		return NewValidationError(fieldName, "must be exactly 15 characters")
	}

	if !gstinPattern.MatchString(gstin) {
		return NewValidationError(fieldName, "invalid GSTIN format")
	}

	return nil
}

// ValidateRequiredString validates required string fields
func ValidateRequiredString(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return NewValidationError(fieldName, "is required")
	}
	return nil
}

// ValidatePositiveAmount validates money amounts with an upper bound
func ValidatePositiveAmount(value float64, fieldName string, maxValue float64) error {
	if value <= 0 {
		return NewValidationError(fieldName, "must be positive")
	}
	if value > maxValue {
		return NewValidationError(fieldName, fmt.Sprintf("cannot exceed %.2f", maxValue))
	}
	return nil
}

// ValidateQuantity validates item quantities
func ValidateQuantity(quantity int, fieldName string) error {
	if quantity <= 0 {
		return NewValidationError(fieldName, "must be positive")
	}
	if quantity > 1000000 {
		return NewValidationError(fieldName, "cannot exceed 1,000,000 units")
	}
	return nil
}

// SameState reports whether two state names refer to the same
// jurisdiction. Comparison is trimmed and case-insensitive.
func SameState(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// SafeString safely handles string pointer operations
func SafeString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}

// ValidatePaginationParams validates pagination parameters
func ValidatePaginationParams(limit, offset int) (int, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	if offset < 0 {
		offset = 0
	}
	if offset > 1000000 {
		return 0, 0, NewValidationError("offset", "cannot exceed 1,000,000")
	}

	return limit, offset, nil
}
