package validation

import "strings"

const (
	maxBioLen    = 2000
	maxTagCount  = 50
	maxTagLength = 50
)

// RegisterUserRequest mirrors the fields needed for registration validation.
type RegisterUserRequest struct {
	Name       string
	Bio        string
	Skills     []string
	Interests  []string
	PostalCode string
}

// ValidateRegisterUserRequest validates the fields of a registration request.
func ValidateRegisterUserRequest(req RegisterUserRequest) []FieldError {
	var errs []FieldError

	errs = requireName(errs, req.Name)
	errs = maxLen(errs, "bio", req.Bio, maxBioLen)
	errs = maxLen(errs, "postalCode", req.PostalCode, maxPostalCodeLen)
	errs = validTags(errs, "skills", req.Skills)
	errs = validTags(errs, "interests", req.Interests)

	return errs
}

func validTags(errs []FieldError, field string, tags []string) []FieldError {
	if len(tags) > maxTagCount {
		return append(errs, FieldError{Field: field, Message: field + " must have at most 50 entries"})
	}
	for _, tag := range tags {
		t := strings.TrimSpace(tag)
		if t == "" || len(t) > maxTagLength {
			return append(errs, FieldError{Field: field, Message: field + " entries must be 1-50 characters"})
		}
	}
	return errs
}
