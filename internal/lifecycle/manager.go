// Package lifecycle applies policy-approved membership transitions to storage.
//
// Each mutating operation runs as load snapshot, evaluate policy, write,
// commit inside one Store transaction. The team row is locked before any
// capacity or uniqueness check so concurrent operations on the same team are
// serialised by the database. A policy denial aborts before any write. Events
// are emitted only after the transaction has committed.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teamup/teamup/internal/application"
	"github.com/teamup/teamup/internal/invitation"
	"github.com/teamup/teamup/internal/metrics"
	"github.com/teamup/teamup/internal/notify"
	"github.com/teamup/teamup/internal/policy"
	"github.com/teamup/teamup/internal/team"
)

// Manager orchestrates invitations, applications and memberships.
type Manager struct {
	store    Store
	notifier notify.Notifier
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for transition timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager. A nil notifier drops all events.
func NewManager(store Store, notifier notify.Notifier, opts ...Option) *Manager {
	if notifier == nil {
		notifier = notify.Nop
	}
	m := &Manager{
		store:    store,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// loadSnapshot locks the team row and reads the fresh member count and the
// actor's membership. A missing team yields an empty snapshot.
func loadSnapshot(ctx context.Context, tx Tx, teamID, actorID uuid.UUID) (policy.Snapshot, error) {
	t, err := tx.LockTeam(ctx, teamID)
	if err != nil {
		return policy.Snapshot{}, fmt.Errorf("locking team: %w", err)
	}
	if t == nil {
		return policy.Snapshot{}, nil
	}

	count, err := tx.CountMembers(ctx, teamID)
	if err != nil {
		return policy.Snapshot{}, fmt.Errorf("counting members: %w", err)
	}

	actor, err := tx.GetMembership(ctx, teamID, actorID)
	if err != nil {
		return policy.Snapshot{}, fmt.Errorf("loading actor membership: %w", err)
	}

	return policy.Snapshot{Team: t, MemberCount: count, Actor: actor}, nil
}

// loadSubject reads everything the policy needs to know about a target user.
func loadSubject(ctx context.Context, tx Tx, teamID, userID uuid.UUID) (policy.Subject, error) {
	subject := policy.Subject{UserID: userID}

	exists, err := tx.UserExists(ctx, userID)
	if err != nil {
		return subject, fmt.Errorf("checking user: %w", err)
	}
	if !exists {
		return subject, nil
	}
	subject.Exists = true

	if subject.Membership, err = tx.GetMembership(ctx, teamID, userID); err != nil {
		return subject, fmt.Errorf("loading membership: %w", err)
	}
	if subject.PendingInvitation, err = tx.PendingInvitation(ctx, teamID, userID); err != nil {
		return subject, fmt.Errorf("loading pending invitation: %w", err)
	}
	if subject.PendingApplication, err = tx.PendingApplication(ctx, teamID, userID); err != nil {
		return subject, fmt.Errorf("loading pending application: %w", err)
	}

	return subject, nil
}

func (m *Manager) emit(ctx context.Context, ev notify.Event) {
	ev.OccurredAt = m.now()
	metrics.EventDispatched(string(ev.Type))
	m.notifier.Notify(ctx, ev)
}

func finish(op string, err error) {
	metrics.RecordLifecycle(op, err)
	if r, ok := policy.ReasonOf(err); ok {
		slog.Debug("lifecycle operation denied", "operation", op, "reason", string(r))
	}
}

// Invite creates a pending invitation from inviterID to inviteeID.
func (m *Manager) Invite(ctx context.Context, teamID, inviterID, inviteeID uuid.UUID, message string) (inv *invitation.Invitation, err error) {
	defer func() { finish("invite", err) }()

	err = m.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		snap, err := loadSnapshot(ctx, tx, teamID, inviterID)
		if err != nil {
			return err
		}
		invitee, err := loadSubject(ctx, tx, teamID, inviteeID)
		if err != nil {
			return err
		}
		if _, err := policy.CanInvite(snap, invitee); err != nil {
			return err
		}

		inv = &invitation.Invitation{
			TeamID:    teamID,
			TeamName:  snap.Team.Name,
			InviterID: inviterID,
			InviteeID: inviteeID,
			Message:   message,
			Status:    invitation.StatusPending,
			CreatedAt: m.now(),
		}
		if err := tx.InsertInvitation(ctx, inv); err != nil {
			return fmt.Errorf("inserting invitation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("invitation created", "invitationId", inv.ID, "teamId", teamID, "inviteeId", inviteeID)
	m.emit(ctx, notify.Event{
		Type:    notify.EventInvitationCreated,
		TeamID:  teamID,
		UserIDs: []uuid.UUID{inviteeID},
		Data:    inv,
	})
	return inv, nil
}

// Respond accepts or declines an invitation on behalf of its invitee.
func (m *Manager) Respond(ctx context.Context, invitationID, actingUserID uuid.UUID, resp invitation.Response) (inv *invitation.Invitation, err error) {
	defer func() { finish("respond", err) }()

	var action policy.Action
	err = m.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		found, err := tx.GetInvitation(ctx, invitationID)
		if err != nil {
			return fmt.Errorf("loading invitation: %w", err)
		}
		if found == nil {
			return policy.Deny(policy.ReasonNotFound)
		}

		snap, err := loadSnapshot(ctx, tx, found.TeamID, actingUserID)
		if err != nil {
			return err
		}
		// Re-read under the team lock; the first read only told us which team to lock.
		if inv, err = tx.GetInvitation(ctx, invitationID); err != nil {
			return fmt.Errorf("reloading invitation: %w", err)
		}

		if action, err = policy.CanRespondToInvitation(inv, snap, actingUserID, resp); err != nil {
			return err
		}

		at := m.now()
		status := invitation.StatusDeclined
		if action == policy.ActionAcceptInvitation {
			status = invitation.StatusAccepted
		}

		ok, err := tx.ResolveInvitation(ctx, inv.ID, status, at)
		if err != nil {
			return fmt.Errorf("resolving invitation: %w", err)
		}
		if !ok {
			return policy.Deny(policy.ReasonNotFound)
		}

		if action == policy.ActionAcceptInvitation {
			err := tx.InsertMembership(ctx, &team.Member{
				TeamID:   inv.TeamID,
				UserID:   actingUserID,
				Role:     team.RoleMember,
				JoinedAt: at,
			})
			if err != nil {
				return fmt.Errorf("inserting membership: %w", err)
			}
		}

		inv.Status = status
		inv.RespondedAt = &at
		inv.TeamName = snap.Team.Name
		return nil
	})
	if err != nil {
		return nil, err
	}

	evType := notify.EventInvitationDeclined
	if action == policy.ActionAcceptInvitation {
		evType = notify.EventInvitationAccepted
	}
	slog.Info("invitation resolved", "invitationId", inv.ID, "teamId", inv.TeamID, "status", string(inv.Status))
	m.emit(ctx, notify.Event{
		Type:    evType,
		TeamID:  inv.TeamID,
		UserIDs: []uuid.UUID{inv.InviterID},
		Data:    inv,
	})
	return inv, nil
}

// Cancel withdraws a pending invitation on behalf of a team manager.
func (m *Manager) Cancel(ctx context.Context, invitationID, actingUserID uuid.UUID) (inv *invitation.Invitation, err error) {
	defer func() { finish("cancel", err) }()

	err = m.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		found, err := tx.GetInvitation(ctx, invitationID)
		if err != nil {
			return fmt.Errorf("loading invitation: %w", err)
		}
		if found == nil {
			return policy.Deny(policy.ReasonNotFound)
		}

		snap, err := loadSnapshot(ctx, tx, found.TeamID, actingUserID)
		if err != nil {
			return err
		}
		if inv, err = tx.GetInvitation(ctx, invitationID); err != nil {
			return fmt.Errorf("reloading invitation: %w", err)
		}
		if _, err := policy.CanCancelInvitation(inv, snap); err != nil {
			return err
		}

		at := m.now()
		ok, err := tx.ResolveInvitation(ctx, inv.ID, invitation.StatusCanceled, at)
		if err != nil {
			return fmt.Errorf("canceling invitation: %w", err)
		}
		if !ok {
			return policy.Deny(policy.ReasonNotFound)
		}

		inv.Status = invitation.StatusCanceled
		inv.RespondedAt = &at
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("invitation canceled", "invitationId", inv.ID, "teamId", inv.TeamID)
	m.emit(ctx, notify.Event{
		Type:    notify.EventInvitationCanceled,
		TeamID:  inv.TeamID,
		UserIDs: []uuid.UUID{inv.InviteeID},
		Data:    inv,
	})
	return inv, nil
}

// AddMember inserts a membership directly, without an invitation round-trip.
// Any pending invitation for the user is canceled and any pending application
// approved, since both are superseded by the new membership.
func (m *Manager) AddMember(ctx context.Context, teamID, actingUserID, targetUserID uuid.UUID, role team.Role) (member *team.Member, err error) {
	defer func() { finish("add_member", err) }()

	err = m.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		snap, err := loadSnapshot(ctx, tx, teamID, actingUserID)
		if err != nil {
			return err
		}
		target, err := loadSubject(ctx, tx, teamID, targetUserID)
		if err != nil {
			return err
		}
		if _, err := policy.CanAddMember(snap, target, role); err != nil {
			return err
		}

		at := m.now()
		member = &team.Member{TeamID: teamID, UserID: targetUserID, Role: role, JoinedAt: at}
		if err := tx.InsertMembership(ctx, member); err != nil {
			return fmt.Errorf("inserting membership: %w", err)
		}

		if inv := target.PendingInvitation; inv != nil {
			if _, err := tx.ResolveInvitation(ctx, inv.ID, invitation.StatusCanceled, at); err != nil {
				return fmt.Errorf("superseding invitation: %w", err)
			}
		}
		if app := target.PendingApplication; app != nil {
			if _, err := tx.ResolveApplication(ctx, app.ID, application.StatusApproved, actingUserID, at); err != nil {
				return fmt.Errorf("superseding application: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("member added", "teamId", teamID, "userId", targetUserID, "role", role.String())
	m.emit(ctx, notify.Event{
		Type:    notify.EventMemberAdded,
		TeamID:  teamID,
		UserIDs: []uuid.UUID{targetUserID},
		Data:    member,
	})
	return member, nil
}

// RemoveMember deletes targetUserID's membership. Members may always remove
// themselves; removing others requires a role that can manage the target's.
func (m *Manager) RemoveMember(ctx context.Context, teamID, actingUserID, targetUserID uuid.UUID) (err error) {
	defer func() { finish("remove_member", err) }()

	err = m.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		snap, err := loadSnapshot(ctx, tx, teamID, actingUserID)
		if err != nil {
			return err
		}

		var target *team.Member
		var creators int
		if snap.Team != nil {
			if target, err = tx.GetMembership(ctx, teamID, targetUserID); err != nil {
				return fmt.Errorf("loading target membership: %w", err)
			}
			if creators, err = tx.CountRole(ctx, teamID, team.RoleCreator); err != nil {
				return fmt.Errorf("counting creators: %w", err)
			}
		}

		if _, err := policy.CanRemoveMember(snap, target, creators); err != nil {
			return err
		}

		ok, err := tx.DeleteMembership(ctx, teamID, targetUserID)
		if err != nil {
			return fmt.Errorf("deleting membership: %w", err)
		}
		if !ok {
			return policy.Deny(policy.ReasonNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("member removed", "teamId", teamID, "userId", targetUserID, "by", actingUserID)
	m.emit(ctx, notify.Event{
		Type:    notify.EventMemberRemoved,
		TeamID:  teamID,
		UserIDs: []uuid.UUID{targetUserID},
		Data:    map[string]uuid.UUID{"userId": targetUserID, "removedBy": actingUserID},
	})
	return nil
}

// TransferOwnership hands the creator role from the acting creator to
// targetUserID. The former creator keeps the owner role.
func (m *Manager) TransferOwnership(ctx context.Context, teamID, actingUserID, targetUserID uuid.UUID) (err error) {
	defer func() { finish("transfer_ownership", err) }()

	err = m.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		snap, err := loadSnapshot(ctx, tx, teamID, actingUserID)
		if err != nil {
			return err
		}

		var target *team.Member
		if snap.Team != nil {
			if target, err = tx.GetMembership(ctx, teamID, targetUserID); err != nil {
				return fmt.Errorf("loading target membership: %w", err)
			}
		}
		if _, err := policy.CanTransferOwnership(snap, target); err != nil {
			return err
		}

		if err := tx.SetMemberRole(ctx, teamID, targetUserID, team.RoleCreator); err != nil {
			return fmt.Errorf("promoting new creator: %w", err)
		}
		if err := tx.SetMemberRole(ctx, teamID, actingUserID, team.RoleOwner); err != nil {
			return fmt.Errorf("demoting former creator: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("ownership transferred", "teamId", teamID, "from", actingUserID, "to", targetUserID)
	m.emit(ctx, notify.Event{
		Type:    notify.EventOwnershipTransferred,
		TeamID:  teamID,
		UserIDs: []uuid.UUID{targetUserID},
		Data:    map[string]uuid.UUID{"from": actingUserID, "to": targetUserID},
	})
	return nil
}

// UpdateTeam edits team details. Lowering the capacity below the current
// member count is refused.
func (m *Manager) UpdateTeam(ctx context.Context, teamID, actingUserID uuid.UUID, fields team.UpdateFields) (t *team.Team, err error) {
	defer func() { finish("update_team", err) }()

	err = m.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		snap, err := loadSnapshot(ctx, tx, teamID, actingUserID)
		if err != nil {
			return err
		}

		newMax := fields.MaxMembers
		if fields.ClearMaxMembers {
			newMax = nil
		}
		if _, err := policy.CanUpdateTeam(snap, newMax); err != nil {
			return err
		}

		if t, err = tx.UpdateTeam(ctx, teamID, fields, m.now()); err != nil {
			return fmt.Errorf("updating team: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.emit(ctx, notify.Event{Type: notify.EventTeamUpdated, TeamID: teamID, Data: t})
	return t, nil
}

// ArchiveTeam soft-deletes the team. Archived teams are excluded from every
// active operation.
func (m *Manager) ArchiveTeam(ctx context.Context, teamID, actingUserID uuid.UUID) (err error) {
	defer func() { finish("archive_team", err) }()

	err = m.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		snap, err := loadSnapshot(ctx, tx, teamID, actingUserID)
		if err != nil {
			return err
		}
		if _, err := policy.CanArchiveTeam(snap); err != nil {
			return err
		}
		if err := tx.ArchiveTeam(ctx, teamID, m.now()); err != nil {
			return fmt.Errorf("archiving team: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("team archived", "teamId", teamID, "by", actingUserID)
	m.emit(ctx, notify.Event{Type: notify.EventTeamArchived, TeamID: teamID})
	return nil
}

// ListReceivedInvitations returns the pending invitations addressed to userID
// for active teams, newest first.
func (m *Manager) ListReceivedInvitations(ctx context.Context, userID uuid.UUID) ([]invitation.Invitation, error) {
	var out []invitation.Invitation
	err := m.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.ListInvitationsByInvitee(ctx, userID, invitation.StatusPending)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing received invitations: %w", err)
	}
	return out, nil
}

// ListSentInvitations returns every invitation a team has sent. Only team
// managers may see them.
func (m *Manager) ListSentInvitations(ctx context.Context, teamID, actingUserID uuid.UUID) ([]invitation.Invitation, error) {
	var out []invitation.Invitation
	err := m.store.View(ctx, func(ctx context.Context, tx Tx) error {
		if err := m.authorizeRequests(ctx, tx, teamID, actingUserID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListInvitationsByTeam(ctx, teamID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListInvitableTeams returns the active teams where userID holds a manager
// role and there is still room for another member.
func (m *Manager) ListInvitableTeams(ctx context.Context, userID uuid.UUID) ([]ManagedTeam, error) {
	var managed []ManagedTeam
	err := m.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		managed, err = tx.ListManagedTeams(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing managed teams: %w", err)
	}

	out := make([]ManagedTeam, 0, len(managed))
	for _, mt := range managed {
		if mt.Team.Archived() || !mt.Role.IsManager() || mt.Team.AtCapacity(mt.MemberCount) {
			continue
		}
		out = append(out, mt)
	}
	return out, nil
}

// IsMember reports whether userID holds any membership in an active team.
func (m *Manager) IsMember(ctx context.Context, teamID, userID uuid.UUID) (bool, error) {
	var member bool
	err := m.store.View(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.GetTeam(ctx, teamID)
		if err != nil || t == nil || t.Archived() {
			return err
		}
		mem, err := tx.GetMembership(ctx, teamID, userID)
		member = mem != nil
		return err
	})
	if err != nil {
		return false, fmt.Errorf("checking membership: %w", err)
	}
	return member, nil
}

func (m *Manager) authorizeRequests(ctx context.Context, tx Tx, teamID, actingUserID uuid.UUID) error {
	t, err := tx.GetTeam(ctx, teamID)
	if err != nil {
		return fmt.Errorf("loading team: %w", err)
	}
	snap := policy.Snapshot{Team: t}
	if t != nil {
		if snap.Actor, err = tx.GetMembership(ctx, teamID, actingUserID); err != nil {
			return fmt.Errorf("loading actor membership: %w", err)
		}
	}
	return policy.CanViewRequests(snap)
}
