package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a membership lifecycle event.
type EventType string

const (
	EventInvitationCreated    EventType = "invitation.created"
	EventInvitationAccepted   EventType = "invitation.accepted"
	EventInvitationDeclined   EventType = "invitation.declined"
	EventInvitationCanceled   EventType = "invitation.canceled"
	EventMemberAdded          EventType = "member.added"
	EventMemberRemoved        EventType = "member.removed"
	EventApplicationSubmitted EventType = "application.submitted"
	EventApplicationApproved  EventType = "application.approved"
	EventApplicationRejected  EventType = "application.rejected"
	EventApplicationWithdrawn EventType = "application.withdrawn"
	EventTeamUpdated          EventType = "team.updated"
	EventTeamArchived         EventType = "team.archived"
	EventOwnershipTransferred EventType = "team.ownership_transferred"
)

// Event is a committed lifecycle transition handed to the dispatcher.
// It is delivered to the team room and to each user in UserIDs.
type Event struct {
	Type       EventType   `json:"type"`
	TeamID     uuid.UUID   `json:"teamId"`
	UserIDs    []uuid.UUID `json:"-"`
	Data       any         `json:"data,omitempty"`
	OccurredAt time.Time   `json:"occurredAt"`
}

// Notifier receives lifecycle events after commit. Delivery is best-effort:
// implementations log failures and never report them to the caller.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, ev Event)

// Notify calls f(ctx, ev).
func (f NotifierFunc) Notify(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// Nop is a Notifier that drops every event.
var Nop Notifier = NotifierFunc(func(context.Context, Event) {})
