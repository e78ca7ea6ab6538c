package team

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrTeamNotFound is returned when a team record is not found or is archived.
var ErrTeamNotFound = errors.New("team not found")

// ErrDuplicateMember is returned when a (team, user) membership already exists.
var ErrDuplicateMember = errors.New("user is already a member of the team")

// Repository provides read access to teams and the transactional creation of a
// team together with its creator membership.
type Repository interface {
	Create(ctx context.Context, team *Team) error
	GetByID(ctx context.Context, id uuid.UUID) (*Team, error)
	List(ctx context.Context, filter ListFilter) (*ListResult, error)
	ListMembers(ctx context.Context, teamID uuid.UUID) ([]Member, error)
}
