package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/teamup/teamup/internal/application"
	"github.com/teamup/teamup/internal/notify"
	"github.com/teamup/teamup/internal/policy"
	"github.com/teamup/teamup/internal/team"
)

// Apply submits a pending application from applicantID to a public team.
func (m *Manager) Apply(ctx context.Context, teamID, applicantID uuid.UUID, message string) (app *application.Application, err error) {
	defer func() { finish("apply", err) }()

	err = m.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		snap, err := loadSnapshot(ctx, tx, teamID, applicantID)
		if err != nil {
			return err
		}
		applicant, err := loadSubject(ctx, tx, teamID, applicantID)
		if err != nil {
			return err
		}
		if _, err := policy.CanApply(snap, applicant); err != nil {
			return err
		}

		at := m.now()
		app = &application.Application{
			TeamID:      teamID,
			TeamName:    snap.Team.Name,
			ApplicantID: applicantID,
			Message:     message,
			Status:      application.StatusPending,
			CreatedAt:   at,
			UpdatedAt:   at,
		}
		if err := tx.InsertApplication(ctx, app); err != nil {
			return fmt.Errorf("inserting application: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("application submitted", "applicationId", app.ID, "teamId", teamID, "applicantId", applicantID)
	m.emit(ctx, notify.Event{Type: notify.EventApplicationSubmitted, TeamID: teamID, Data: app})
	return app, nil
}

// ReviewApplication approves or rejects a pending application. Approval
// inserts the membership in the same transaction.
func (m *Manager) ReviewApplication(ctx context.Context, applicationID, reviewerID uuid.UUID, decision application.Decision) (app *application.Application, err error) {
	defer func() { finish("review_application", err) }()

	var action policy.Action
	err = m.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		found, err := tx.GetApplication(ctx, applicationID)
		if err != nil {
			return fmt.Errorf("loading application: %w", err)
		}
		if found == nil {
			return policy.Deny(policy.ReasonNotFound)
		}

		snap, err := loadSnapshot(ctx, tx, found.TeamID, reviewerID)
		if err != nil {
			return err
		}
		if app, err = tx.GetApplication(ctx, applicationID); err != nil {
			return fmt.Errorf("reloading application: %w", err)
		}

		var applicantMembership *team.Member
		if app != nil {
			if applicantMembership, err = tx.GetMembership(ctx, app.TeamID, app.ApplicantID); err != nil {
				return fmt.Errorf("loading applicant membership: %w", err)
			}
		}

		if action, err = policy.CanReviewApplication(app, snap, applicantMembership, decision); err != nil {
			return err
		}

		at := m.now()
		status := application.StatusRejected
		if action == policy.ActionApproveApplication {
			status = application.StatusApproved
		}

		ok, err := tx.ResolveApplication(ctx, app.ID, status, reviewerID, at)
		if err != nil {
			return fmt.Errorf("resolving application: %w", err)
		}
		if !ok {
			return policy.Deny(policy.ReasonNotFound)
		}

		if action == policy.ActionApproveApplication {
			err := tx.InsertMembership(ctx, &team.Member{
				TeamID:   app.TeamID,
				UserID:   app.ApplicantID,
				Role:     team.RoleMember,
				JoinedAt: at,
			})
			if err != nil {
				return fmt.Errorf("inserting membership: %w", err)
			}
		}

		app.Status = status
		app.ReviewedAt = &at
		app.ReviewedBy = &reviewerID
		app.UpdatedAt = at
		app.TeamName = snap.Team.Name
		return nil
	})
	if err != nil {
		return nil, err
	}

	evType := notify.EventApplicationRejected
	if action == policy.ActionApproveApplication {
		evType = notify.EventApplicationApproved
	}
	slog.Info("application reviewed", "applicationId", app.ID, "teamId", app.TeamID, "status", string(app.Status))
	m.emit(ctx, notify.Event{
		Type:    evType,
		TeamID:  app.TeamID,
		UserIDs: []uuid.UUID{app.ApplicantID},
		Data:    app,
	})
	return app, nil
}

// WithdrawApplication deletes the applicant's own pending application.
func (m *Manager) WithdrawApplication(ctx context.Context, applicationID, actingUserID uuid.UUID) (err error) {
	defer func() { finish("withdraw_application", err) }()

	var app *application.Application
	err = m.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		found, err := tx.GetApplication(ctx, applicationID)
		if err != nil {
			return fmt.Errorf("loading application: %w", err)
		}
		if found == nil {
			return policy.Deny(policy.ReasonNotFound)
		}
		if _, err := tx.LockTeam(ctx, found.TeamID); err != nil {
			return fmt.Errorf("locking team: %w", err)
		}
		if app, err = tx.GetApplication(ctx, applicationID); err != nil {
			return fmt.Errorf("reloading application: %w", err)
		}
		if _, err := policy.CanWithdrawApplication(app, actingUserID); err != nil {
			return err
		}

		ok, err := tx.DeletePendingApplication(ctx, app.ID)
		if err != nil {
			return fmt.Errorf("deleting application: %w", err)
		}
		if !ok {
			return policy.Deny(policy.ReasonNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.emit(ctx, notify.Event{Type: notify.EventApplicationWithdrawn, TeamID: app.TeamID, Data: app})
	return nil
}

// ListTeamApplications returns every application a team has received. Only
// team managers may see them.
func (m *Manager) ListTeamApplications(ctx context.Context, teamID, actingUserID uuid.UUID) ([]application.Application, error) {
	var out []application.Application
	err := m.store.View(ctx, func(ctx context.Context, tx Tx) error {
		if err := m.authorizeRequests(ctx, tx, teamID, actingUserID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListApplicationsByTeam(ctx, teamID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListMyApplications returns every application submitted by userID.
func (m *Manager) ListMyApplications(ctx context.Context, userID uuid.UUID) ([]application.Application, error) {
	var out []application.Application
	err := m.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.ListApplicationsByApplicant(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing applications: %w", err)
	}
	return out, nil
}
