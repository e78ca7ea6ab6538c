package application

import (
	"time"

	"github.com/google/uuid"
)

// Status is the state of a membership application.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Application represents a row in the team_applications table.
type Application struct {
	ID          uuid.UUID
	TeamID      uuid.UUID
	TeamName    string // populated by joins, empty otherwise
	ApplicantID uuid.UUID
	Message     string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ReviewedAt  *time.Time
	ReviewedBy  *uuid.UUID
}

// Pending reports whether the application still awaits review.
func (a *Application) Pending() bool {
	return a.Status == StatusPending
}

// Decision is a reviewer's verdict on an application.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)
