package validation

import "github.com/teamup/teamup/internal/team"

// AddMemberRequest mirrors the fields of a direct member add.
type AddMemberRequest struct {
	UserID string
	Role   string
}

// ValidateAddMemberRequest validates a direct add. An empty role means member.
func ValidateAddMemberRequest(req AddMemberRequest) []FieldError {
	errs := requireUUID(nil, "userId", req.UserID)

	if req.Role != "" {
		role, err := team.ParseRole(req.Role)
		if err != nil {
			errs = append(errs, FieldError{Field: "role", Message: `role must be one of "member", "admin", "owner"`})
		} else if role == team.RoleCreator {
			errs = append(errs, FieldError{Field: "role", Message: "creator is assigned through ownership transfer"})
		}
	}

	return errs
}
