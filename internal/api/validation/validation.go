// Package validation checks request payloads before they reach the core and
// reports problems per field.
package validation

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

const (
	maxNameLen        = 100
	maxDescriptionLen = 2000
	maxMessageLen     = 1000
	maxPostalCodeLen  = 20
	maxTeamCapacity   = 1000

	// MaxPageLimit caps the page size of list endpoints.
	MaxPageLimit = 100
	// DefaultPageLimit is the page size when none is requested.
	DefaultPageLimit = 20
)

// Coalesce returns the first non-empty string, so camelCase and snake_case
// spellings of a field collapse to one value.
func Coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// CoalescePtr returns the first non-nil pointer.
func CoalescePtr[T any](values ...*T) *T {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// Pagination holds parsed page and limit query parameters.
type Pagination struct {
	Page  int
	Limit int
}

// ParsePagination reads page and limit, applying defaults for empty values.
func ParsePagination(page, limit string) (Pagination, []FieldError) {
	p := Pagination{Page: 1, Limit: DefaultPageLimit}
	var errs []FieldError

	if page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 {
			errs = append(errs, FieldError{Field: "page", Message: "page must be a positive integer"})
		} else {
			p.Page = n
		}
	}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 || n > MaxPageLimit {
			errs = append(errs, FieldError{Field: "limit", Message: "limit must be between 1 and " + strconv.Itoa(MaxPageLimit)})
		} else {
			p.Limit = n
		}
	}

	return p, errs
}

func requireUUID(errs []FieldError, field, value string) []FieldError {
	if value == "" {
		return append(errs, FieldError{Field: field, Message: field + " is required"})
	}
	if _, err := uuid.Parse(value); err != nil {
		return append(errs, FieldError{Field: field, Message: field + " must be a valid UUID"})
	}
	return errs
}

func maxLen(errs []FieldError, field, value string, n int) []FieldError {
	if utf8.RuneCountInString(value) > n {
		return append(errs, FieldError{Field: field, Message: field + " must be at most " + strconv.Itoa(n) + " characters"})
	}
	return errs
}

func requireName(errs []FieldError, value string) []FieldError {
	name := strings.TrimSpace(value)
	if name == "" {
		return append(errs, FieldError{Field: "name", Message: "name is required"})
	}
	return maxLen(errs, "name", name, maxNameLen)
}
