package team

import (
	"time"

	"github.com/google/uuid"
)

// Team represents a row in the teams table.
type Team struct {
	ID          uuid.UUID
	Name        string
	Description string
	IsPublic    bool
	MaxMembers  *int // nil means unlimited
	PostalCode  string
	CreatedBy   uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ArchivedAt  *time.Time
}

// Archived reports whether the team has been soft-deleted.
func (t *Team) Archived() bool {
	return t.ArchivedAt != nil
}

// AtCapacity reports whether a team with the given member count can take no one else.
func (t *Team) AtCapacity(memberCount int) bool {
	return t.MaxMembers != nil && memberCount >= *t.MaxMembers
}

// Member represents a row in the team_members table.
type Member struct {
	TeamID   uuid.UUID
	UserID   uuid.UUID
	UserName string // populated by joins, empty otherwise
	Role     Role
	JoinedAt time.Time
}

// ListFilter holds pagination and filters for listing active teams.
type ListFilter struct {
	Name     *string // partial match (ILIKE)
	MemberID *uuid.UUID
	Page     int // default 1
	Limit    int // default 20
}

// ListResult holds the result of a paginated team listing.
type ListResult struct {
	Teams []Team
	Total int
	Page  int
	Limit int
}

// UpdateFields holds user-updatable fields on a team. Nil fields are not updated.
type UpdateFields struct {
	Name        *string
	Description *string
	IsPublic    *bool
	PostalCode  *string
	MaxMembers  *int
	// ClearMaxMembers removes the capacity limit; it wins over MaxMembers.
	ClearMaxMembers bool
}
