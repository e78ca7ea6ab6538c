package invitation

import (
	"time"

	"github.com/google/uuid"
)

// Status is the state of an invitation. Every status other than pending is terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
	StatusCanceled Status = "canceled"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Invitation represents a row in the team_invitations table.
type Invitation struct {
	ID          uuid.UUID
	TeamID      uuid.UUID
	TeamName    string // populated by joins, empty otherwise
	InviterID   uuid.UUID
	InviteeID   uuid.UUID
	Message     string
	Status      Status
	CreatedAt   time.Time
	RespondedAt *time.Time
}

// Pending reports whether the invitation still awaits a response.
func (i *Invitation) Pending() bool {
	return i.Status == StatusPending
}

// Response is the invitee's answer to an invitation.
type Response string

const (
	ResponseAccept  Response = "accept"
	ResponseDecline Response = "decline"
)
