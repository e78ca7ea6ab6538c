package policy

import "errors"

// Reason names why a membership operation was refused.
type Reason string

const (
	ReasonTeamNotFound       Reason = "TeamNotFound"
	ReasonNotAuthorized      Reason = "NotAuthorized"
	ReasonUserNotFound       Reason = "UserNotFound"
	ReasonAlreadyMember      Reason = "AlreadyMember"
	ReasonTeamFull           Reason = "TeamFull"
	ReasonInvitationPending  Reason = "InvitationPending"
	ReasonApplicationPending Reason = "ApplicationPending"
	ReasonNotFound           Reason = "NotFound"
	ReasonLastCreator        Reason = "LastCreator"
	ReasonTeamPrivate        Reason = "TeamPrivate"
	ReasonCapacityTooLow     Reason = "CapacityTooLow"
	ReasonRoleUnchanged      Reason = "RoleUnchanged"
)

var messages = map[Reason]string{
	ReasonTeamNotFound:       "Team not found",
	ReasonNotAuthorized:      "You are not authorized to perform this action",
	ReasonUserNotFound:       "User not found",
	ReasonAlreadyMember:      "User is already a member of this team",
	ReasonTeamFull:           "Team has reached its maximum number of members",
	ReasonInvitationPending:  "A pending invitation already exists for this user",
	ReasonApplicationPending: "A pending application already exists for this user",
	ReasonNotFound:           "Not found or already resolved",
	ReasonLastCreator:        "Cannot remove the last creator of the team; transfer ownership first",
	ReasonTeamPrivate:        "This team is not accepting applications",
	ReasonCapacityTooLow:     "Maximum members cannot be lower than the current member count",
	ReasonRoleUnchanged:      "The user already holds this role",
}

// Denial is the error returned when a policy refuses an operation.
type Denial struct {
	Reason Reason
}

// Error returns the user-facing message for the reason.
func (d *Denial) Error() string {
	if msg, ok := messages[d.Reason]; ok {
		return msg
	}
	return string(d.Reason)
}

// Deny builds a Denial error for the reason.
func Deny(reason Reason) error {
	return &Denial{Reason: reason}
}

// ReasonOf extracts the denial reason from err, if err is (or wraps) a Denial.
func ReasonOf(err error) (Reason, bool) {
	var d *Denial
	if errors.As(err, &d) {
		return d.Reason, true
	}
	return "", false
}

// IsDenied reports whether err carries the given reason.
func IsDenied(err error, reason Reason) bool {
	r, ok := ReasonOf(err)
	return ok && r == reason
}
