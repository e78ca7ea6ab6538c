package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/teamup/teamup/internal/application"
	"github.com/teamup/teamup/internal/invitation"
	"github.com/teamup/teamup/internal/team"
)

// Store scopes persistence access to a single transaction per operation.
type Store interface {
	// InTx runs fn in a read-committed transaction, committing when fn returns
	// nil and rolling back otherwise. fn's error is returned unchanged.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of reads and writes the lifecycle performs inside a transaction.
// Getters return (nil, nil) when the row does not exist.
type Tx interface {
	// LockTeam returns the team (archived or not) and holds its row lock until
	// the transaction ends, serialising capacity-affecting operations.
	LockTeam(ctx context.Context, teamID uuid.UUID) (*team.Team, error)
	GetTeam(ctx context.Context, teamID uuid.UUID) (*team.Team, error)
	UpdateTeam(ctx context.Context, teamID uuid.UUID, fields team.UpdateFields, at time.Time) (*team.Team, error)
	ArchiveTeam(ctx context.Context, teamID uuid.UUID, at time.Time) error

	UserExists(ctx context.Context, userID uuid.UUID) (bool, error)
	GetMembership(ctx context.Context, teamID, userID uuid.UUID) (*team.Member, error)
	CountMembers(ctx context.Context, teamID uuid.UUID) (int, error)
	CountRole(ctx context.Context, teamID uuid.UUID, role team.Role) (int, error)
	InsertMembership(ctx context.Context, m *team.Member) error
	DeleteMembership(ctx context.Context, teamID, userID uuid.UUID) (bool, error)
	SetMemberRole(ctx context.Context, teamID, userID uuid.UUID, role team.Role) error
	ListManagedTeams(ctx context.Context, userID uuid.UUID) ([]ManagedTeam, error)

	GetInvitation(ctx context.Context, id uuid.UUID) (*invitation.Invitation, error)
	PendingInvitation(ctx context.Context, teamID, inviteeID uuid.UUID) (*invitation.Invitation, error)
	InsertInvitation(ctx context.Context, inv *invitation.Invitation) error
	// ResolveInvitation moves a pending invitation to status. It reports false
	// when the invitation was no longer pending.
	ResolveInvitation(ctx context.Context, id uuid.UUID, status invitation.Status, at time.Time) (bool, error)
	ListInvitationsByInvitee(ctx context.Context, inviteeID uuid.UUID, status invitation.Status) ([]invitation.Invitation, error)
	ListInvitationsByTeam(ctx context.Context, teamID uuid.UUID) ([]invitation.Invitation, error)

	GetApplication(ctx context.Context, id uuid.UUID) (*application.Application, error)
	PendingApplication(ctx context.Context, teamID, applicantID uuid.UUID) (*application.Application, error)
	InsertApplication(ctx context.Context, app *application.Application) error
	// ResolveApplication moves a pending application to status. It reports
	// false when the application was no longer pending.
	ResolveApplication(ctx context.Context, id uuid.UUID, status application.Status, reviewerID uuid.UUID, at time.Time) (bool, error)
	// DeletePendingApplication removes a pending application, reporting false
	// when none was removed.
	DeletePendingApplication(ctx context.Context, id uuid.UUID) (bool, error)
	ListApplicationsByTeam(ctx context.Context, teamID uuid.UUID) ([]application.Application, error)
	ListApplicationsByApplicant(ctx context.Context, applicantID uuid.UUID) ([]application.Application, error)
}

// ManagedTeam is an active team in which a user holds a manager role.
type ManagedTeam struct {
	Team        team.Team
	Role        team.Role
	MemberCount int
}
