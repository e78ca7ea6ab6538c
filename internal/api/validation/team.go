package validation

import "strconv"

// CreateTeamRequest mirrors the fields needed for create team validation.
type CreateTeamRequest struct {
	Name        string
	Description string
	PostalCode  string
	MaxMembers  *int
}

// ValidateCreateTeamRequest validates the fields of a create team request.
func ValidateCreateTeamRequest(req CreateTeamRequest) []FieldError {
	var errs []FieldError

	errs = requireName(errs, req.Name)
	errs = maxLen(errs, "description", req.Description, maxDescriptionLen)
	errs = maxLen(errs, "postalCode", req.PostalCode, maxPostalCodeLen)
	errs = validCapacity(errs, req.MaxMembers)

	return errs
}

// UpdateTeamRequest mirrors the fields of a partial team update.
type UpdateTeamRequest struct {
	Name            *string
	Description     *string
	IsPublic        *bool
	PostalCode      *string
	MaxMembers      *int
	ClearMaxMembers bool
}

// ValidateUpdateTeamRequest validates a partial team update. At least one
// field must be present.
func ValidateUpdateTeamRequest(req UpdateTeamRequest) []FieldError {
	var errs []FieldError

	if req.Name == nil && req.Description == nil && req.IsPublic == nil &&
		req.PostalCode == nil && req.MaxMembers == nil && !req.ClearMaxMembers {
		return []FieldError{{Field: "body", Message: "at least one field must be provided"}}
	}

	if req.Name != nil {
		errs = requireName(errs, *req.Name)
	}
	if req.Description != nil {
		errs = maxLen(errs, "description", *req.Description, maxDescriptionLen)
	}
	if req.PostalCode != nil {
		errs = maxLen(errs, "postalCode", *req.PostalCode, maxPostalCodeLen)
	}
	if req.MaxMembers != nil && req.ClearMaxMembers {
		errs = append(errs, FieldError{Field: "maxMembers", Message: "maxMembers cannot be set and cleared at once"})
	} else {
		errs = validCapacity(errs, req.MaxMembers)
	}

	return errs
}

// TransferOwnershipRequest names the member who becomes creator.
type TransferOwnershipRequest struct {
	UserID string
}

// ValidateTransferOwnershipRequest validates an ownership transfer.
func ValidateTransferOwnershipRequest(req TransferOwnershipRequest) []FieldError {
	return requireUUID(nil, "userId", req.UserID)
}

func validCapacity(errs []FieldError, n *int) []FieldError {
	if n == nil {
		return errs
	}
	if *n < 1 || *n > maxTeamCapacity {
		return append(errs, FieldError{Field: "maxMembers", Message: "maxMembers must be between 1 and " + strconv.Itoa(maxTeamCapacity)})
	}
	return errs
}
