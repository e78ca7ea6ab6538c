// Package policy decides whether membership state changes are allowed.
//
// Every function here is pure: it reads a snapshot loaded by the caller inside
// its transaction and returns either the transition to apply or a *Denial.
// Capacity decisions rely on Snapshot.MemberCount, which callers must read
// fresh in the same transaction that performs the write.
package policy

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/teamup/teamup/internal/application"
	"github.com/teamup/teamup/internal/invitation"
	"github.com/teamup/teamup/internal/team"
)

// Action names the state transition an allowed operation performs.
type Action int

const (
	ActionNone Action = iota
	ActionCreateInvitation
	ActionAcceptInvitation
	ActionDeclineInvitation
	ActionCancelInvitation
	ActionAddMember
	ActionRemoveMember
	ActionCreateApplication
	ActionApproveApplication
	ActionRejectApplication
	ActionWithdrawApplication
	ActionTransferOwnership
	ActionUpdateTeam
	ActionArchiveTeam
)

// Snapshot is the team-side state a decision is made against.
type Snapshot struct {
	// Team is nil when the team does not exist.
	Team *team.Team
	// MemberCount is the number of membership rows, read in the deciding transaction.
	MemberCount int
	// Actor is the acting user's membership, nil when they hold none.
	Actor *team.Member
}

func (s Snapshot) teamActive() bool {
	return s.Team != nil && !s.Team.Archived()
}

func (s Snapshot) full() bool {
	return s.Team.AtCapacity(s.MemberCount)
}

func (s Snapshot) actorIsManager() bool {
	return s.Actor != nil && s.Actor.Role.IsManager()
}

// Subject is the state of the user an operation targets.
type Subject struct {
	UserID             uuid.UUID
	Exists             bool
	Membership         *team.Member
	PendingInvitation  *invitation.Invitation
	PendingApplication *application.Application
}

// CanInvite decides whether the actor may invite the subject to the team.
func CanInvite(s Snapshot, invitee Subject) (Action, error) {
	switch {
	case !s.teamActive():
		return ActionNone, Deny(ReasonTeamNotFound)
	case !s.actorIsManager():
		return ActionNone, Deny(ReasonNotAuthorized)
	case !invitee.Exists:
		return ActionNone, Deny(ReasonUserNotFound)
	case invitee.Membership != nil:
		return ActionNone, Deny(ReasonAlreadyMember)
	case s.full():
		return ActionNone, Deny(ReasonTeamFull)
	case invitee.PendingInvitation != nil:
		return ActionNone, Deny(ReasonInvitationPending)
	case invitee.PendingApplication != nil:
		return ActionNone, Deny(ReasonApplicationPending)
	}
	return ActionCreateInvitation, nil
}

// CanRespondToInvitation decides whether the acting user may answer inv.
// s.Actor is the acting user's current membership in the invitation's team.
func CanRespondToInvitation(inv *invitation.Invitation, s Snapshot, actingUserID uuid.UUID, resp invitation.Response) (Action, error) {
	if inv == nil || inv.InviteeID != actingUserID || !inv.Pending() || !s.teamActive() {
		return ActionNone, Deny(ReasonNotFound)
	}

	switch resp {
	case invitation.ResponseAccept:
		if s.Actor != nil {
			return ActionNone, Deny(ReasonAlreadyMember)
		}
		// Capacity may have changed since the invitation was sent.
		if s.full() {
			return ActionNone, Deny(ReasonTeamFull)
		}
		return ActionAcceptInvitation, nil
	case invitation.ResponseDecline:
		return ActionDeclineInvitation, nil
	default:
		return ActionNone, fmt.Errorf("unknown invitation response %q", resp)
	}
}

// CanCancelInvitation decides whether the actor may withdraw a pending invitation.
func CanCancelInvitation(inv *invitation.Invitation, s Snapshot) (Action, error) {
	if inv == nil || !inv.Pending() {
		return ActionNone, Deny(ReasonNotFound)
	}
	if !s.actorIsManager() {
		return ActionNone, Deny(ReasonNotAuthorized)
	}
	return ActionCancelInvitation, nil
}

// CanAddMember decides whether the actor may add the subject directly with role.
func CanAddMember(s Snapshot, target Subject, role team.Role) (Action, error) {
	switch {
	case !s.teamActive():
		return ActionNone, Deny(ReasonTeamNotFound)
	case !s.actorIsManager() || !s.Actor.Role.CanGrant(role):
		return ActionNone, Deny(ReasonNotAuthorized)
	case !target.Exists:
		return ActionNone, Deny(ReasonUserNotFound)
	case target.Membership != nil:
		return ActionNone, Deny(ReasonAlreadyMember)
	case s.full():
		return ActionNone, Deny(ReasonTeamFull)
	}
	return ActionAddMember, nil
}

// CanRemoveMember decides whether the actor may remove target from the team.
// creatorCount is the number of creator-role memberships on the team.
func CanRemoveMember(s Snapshot, target *team.Member, creatorCount int) (Action, error) {
	if !s.teamActive() {
		return ActionNone, Deny(ReasonTeamNotFound)
	}
	if s.Actor == nil {
		return ActionNone, Deny(ReasonNotAuthorized)
	}
	if target == nil {
		return ActionNone, Deny(ReasonNotFound)
	}

	if s.Actor.UserID != target.UserID {
		if !s.Actor.Role.IsManager() || !s.Actor.Role.CanManage(target.Role) {
			return ActionNone, Deny(ReasonNotAuthorized)
		}
	}

	if target.Role == team.RoleCreator && creatorCount <= 1 {
		return ActionNone, Deny(ReasonLastCreator)
	}

	return ActionRemoveMember, nil
}

// CanApply decides whether the applicant may ask to join the team.
func CanApply(s Snapshot, applicant Subject) (Action, error) {
	switch {
	case !s.teamActive():
		return ActionNone, Deny(ReasonTeamNotFound)
	case !s.Team.IsPublic:
		return ActionNone, Deny(ReasonTeamPrivate)
	case applicant.Membership != nil:
		return ActionNone, Deny(ReasonAlreadyMember)
	case s.full():
		return ActionNone, Deny(ReasonTeamFull)
	case applicant.PendingApplication != nil:
		return ActionNone, Deny(ReasonApplicationPending)
	case applicant.PendingInvitation != nil:
		return ActionNone, Deny(ReasonInvitationPending)
	}
	return ActionCreateApplication, nil
}

// CanReviewApplication decides whether the actor may approve or reject app.
// applicantMembership is the applicant's current membership, if any.
func CanReviewApplication(app *application.Application, s Snapshot, applicantMembership *team.Member, decision application.Decision) (Action, error) {
	if app == nil || !app.Pending() || !s.teamActive() {
		return ActionNone, Deny(ReasonNotFound)
	}
	if !s.actorIsManager() {
		return ActionNone, Deny(ReasonNotAuthorized)
	}

	switch decision {
	case application.DecisionApprove:
		if applicantMembership != nil {
			return ActionNone, Deny(ReasonAlreadyMember)
		}
		if s.full() {
			return ActionNone, Deny(ReasonTeamFull)
		}
		return ActionApproveApplication, nil
	case application.DecisionReject:
		return ActionRejectApplication, nil
	default:
		return ActionNone, fmt.Errorf("unknown application decision %q", decision)
	}
}

// CanWithdrawApplication decides whether the acting user may withdraw app.
func CanWithdrawApplication(app *application.Application, actingUserID uuid.UUID) (Action, error) {
	if app == nil || !app.Pending() || app.ApplicantID != actingUserID {
		return ActionNone, Deny(ReasonNotFound)
	}
	return ActionWithdrawApplication, nil
}

// CanTransferOwnership decides whether the actor, who must be a creator, may
// hand the creator role to target. The actor becomes an owner.
func CanTransferOwnership(s Snapshot, target *team.Member) (Action, error) {
	switch {
	case !s.teamActive():
		return ActionNone, Deny(ReasonTeamNotFound)
	case s.Actor == nil || s.Actor.Role != team.RoleCreator:
		return ActionNone, Deny(ReasonNotAuthorized)
	case target == nil:
		return ActionNone, Deny(ReasonNotFound)
	case target.Role == team.RoleCreator:
		return ActionNone, Deny(ReasonRoleUnchanged)
	}
	return ActionTransferOwnership, nil
}

// CanUpdateTeam decides whether the actor may edit team details. newMax is the
// requested capacity, nil when unchanged or cleared.
func CanUpdateTeam(s Snapshot, newMax *int) (Action, error) {
	switch {
	case !s.teamActive():
		return ActionNone, Deny(ReasonTeamNotFound)
	case s.Actor == nil || !s.Actor.Role.IsOwnerLevel():
		return ActionNone, Deny(ReasonNotAuthorized)
	case newMax != nil && *newMax < s.MemberCount:
		return ActionNone, Deny(ReasonCapacityTooLow)
	}
	return ActionUpdateTeam, nil
}

// CanArchiveTeam decides whether the actor may soft-delete the team.
func CanArchiveTeam(s Snapshot) (Action, error) {
	switch {
	case !s.teamActive():
		return ActionNone, Deny(ReasonTeamNotFound)
	case s.Actor == nil || !s.Actor.Role.IsOwnerLevel():
		return ActionNone, Deny(ReasonNotAuthorized)
	}
	return ActionArchiveTeam, nil
}

// CanViewRequests decides whether the actor may list a team's sent
// invitations and received applications.
func CanViewRequests(s Snapshot) error {
	if !s.teamActive() {
		return Deny(ReasonTeamNotFound)
	}
	if !s.actorIsManager() {
		return Deny(ReasonNotAuthorized)
	}
	return nil
}
