package lifecycle_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teamup/teamup/internal/application"
	"github.com/teamup/teamup/internal/invitation"
	"github.com/teamup/teamup/internal/lifecycle"
	"github.com/teamup/teamup/internal/notify"
	"github.com/teamup/teamup/internal/team"
)

type memberKey struct {
	teamID uuid.UUID
	userID uuid.UUID
}

type memState struct {
	teams        map[uuid.UUID]team.Team
	users        map[uuid.UUID]bool
	members      map[memberKey]team.Member
	invitations  map[uuid.UUID]invitation.Invitation
	applications map[uuid.UUID]application.Application
}

func (s *memState) clone() *memState {
	c := &memState{
		teams:        make(map[uuid.UUID]team.Team, len(s.teams)),
		users:        make(map[uuid.UUID]bool, len(s.users)),
		members:      make(map[memberKey]team.Member, len(s.members)),
		invitations:  make(map[uuid.UUID]invitation.Invitation, len(s.invitations)),
		applications: make(map[uuid.UUID]application.Application, len(s.applications)),
	}
	for k, v := range s.teams {
		c.teams[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.invitations {
		c.invitations[k] = v
	}
	for k, v := range s.applications {
		c.applications[k] = v
	}
	return c
}

// memStore is an in-memory lifecycle.Store. A single mutex held for the whole
// transaction stands in for the team row lock; writes land on a copy of the
// state that replaces the committed state only when fn succeeds.
type memStore struct {
	mu    sync.Mutex
	state *memState

	// failInsertMembership, when set, is returned by every InsertMembership.
	failInsertMembership error
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		teams:        map[uuid.UUID]team.Team{},
		users:        map[uuid.UUID]bool{},
		members:      map[memberKey]team.Member{},
		invitations:  map[uuid.UUID]invitation.Invitation{},
		applications: map[uuid.UUID]application.Application{},
	}}
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx lifecycle.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, state: s.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *memStore) View(ctx context.Context, fn func(ctx context.Context, tx lifecycle.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(ctx, &memTx{store: s, state: s.state.clone(), readOnly: true})
}

// seedUser registers a user account and returns its ID.
func (s *memStore) seedUser() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New()
	s.state.users[id] = true
	return id
}

// seedTeam creates an active team whose creator is creatorID.
func (s *memStore) seedTeam(creatorID uuid.UUID, maxMembers *int, public bool) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New()
	now := time.Now().UTC()
	s.state.teams[id] = team.Team{
		ID: id, Name: "team-" + id.String()[:8], IsPublic: public, MaxMembers: maxMembers,
		CreatedBy: creatorID, CreatedAt: now, UpdatedAt: now,
	}
	s.state.members[memberKey{id, creatorID}] = team.Member{TeamID: id, UserID: creatorID, Role: team.RoleCreator, JoinedAt: now}
	return id
}

// seedMember inserts a membership directly.
func (s *memStore) seedMember(teamID, userID uuid.UUID, role team.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.members[memberKey{teamID, userID}] = team.Member{TeamID: teamID, UserID: userID, Role: role, JoinedAt: time.Now().UTC()}
}

func (s *memStore) memberCount(teamID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return countMembers(s.state, teamID)
}

func (s *memStore) membership(teamID, userID uuid.UUID) (team.Member, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.state.members[memberKey{teamID, userID}]
	return m, ok
}

func (s *memStore) invitation(id uuid.UUID) (invitation.Invitation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.state.invitations[id]
	return inv, ok
}

func (s *memStore) application(id uuid.UUID) (application.Application, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.state.applications[id]
	return app, ok
}

func countMembers(st *memState, teamID uuid.UUID) int {
	n := 0
	for k := range st.members {
		if k.teamID == teamID {
			n++
		}
	}
	return n
}

var errReadOnly = errors.New("write in read-only transaction")

type memTx struct {
	store    *memStore
	state    *memState
	readOnly bool
}

func (tx *memTx) writable() error {
	if tx.readOnly {
		return errReadOnly
	}
	return nil
}

func (tx *memTx) LockTeam(ctx context.Context, teamID uuid.UUID) (*team.Team, error) {
	return tx.GetTeam(ctx, teamID)
}

func (tx *memTx) GetTeam(_ context.Context, teamID uuid.UUID) (*team.Team, error) {
	t, ok := tx.state.teams[teamID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (tx *memTx) UpdateTeam(_ context.Context, teamID uuid.UUID, f team.UpdateFields, at time.Time) (*team.Team, error) {
	if err := tx.writable(); err != nil {
		return nil, err
	}
	t, ok := tx.state.teams[teamID]
	if !ok {
		return nil, fmt.Errorf("team %s not found", teamID)
	}
	if f.Name != nil {
		t.Name = *f.Name
	}
	if f.Description != nil {
		t.Description = *f.Description
	}
	if f.IsPublic != nil {
		t.IsPublic = *f.IsPublic
	}
	if f.PostalCode != nil {
		t.PostalCode = *f.PostalCode
	}
	if f.ClearMaxMembers {
		t.MaxMembers = nil
	} else if f.MaxMembers != nil {
		v := *f.MaxMembers
		t.MaxMembers = &v
	}
	t.UpdatedAt = at
	tx.state.teams[teamID] = t
	return &t, nil
}

func (tx *memTx) ArchiveTeam(_ context.Context, teamID uuid.UUID, at time.Time) error {
	if err := tx.writable(); err != nil {
		return err
	}
	t := tx.state.teams[teamID]
	t.ArchivedAt = &at
	tx.state.teams[teamID] = t
	return nil
}

func (tx *memTx) UserExists(_ context.Context, userID uuid.UUID) (bool, error) {
	return tx.state.users[userID], nil
}

func (tx *memTx) GetMembership(_ context.Context, teamID, userID uuid.UUID) (*team.Member, error) {
	m, ok := tx.state.members[memberKey{teamID, userID}]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (tx *memTx) CountMembers(_ context.Context, teamID uuid.UUID) (int, error) {
	return countMembers(tx.state, teamID), nil
}

func (tx *memTx) CountRole(_ context.Context, teamID uuid.UUID, role team.Role) (int, error) {
	n := 0
	for k, m := range tx.state.members {
		if k.teamID == teamID && m.Role == role {
			n++
		}
	}
	return n, nil
}

func (tx *memTx) InsertMembership(_ context.Context, m *team.Member) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if tx.store.failInsertMembership != nil {
		return tx.store.failInsertMembership
	}
	key := memberKey{m.TeamID, m.UserID}
	if _, ok := tx.state.members[key]; ok {
		return fmt.Errorf("duplicate membership for %s in %s", m.UserID, m.TeamID)
	}
	tx.state.members[key] = *m
	return nil
}

func (tx *memTx) DeleteMembership(_ context.Context, teamID, userID uuid.UUID) (bool, error) {
	if err := tx.writable(); err != nil {
		return false, err
	}
	key := memberKey{teamID, userID}
	if _, ok := tx.state.members[key]; !ok {
		return false, nil
	}
	delete(tx.state.members, key)
	return true, nil
}

func (tx *memTx) SetMemberRole(_ context.Context, teamID, userID uuid.UUID, role team.Role) error {
	if err := tx.writable(); err != nil {
		return err
	}
	key := memberKey{teamID, userID}
	m, ok := tx.state.members[key]
	if !ok {
		return fmt.Errorf("membership for %s in %s not found", userID, teamID)
	}
	m.Role = role
	tx.state.members[key] = m
	return nil
}

func (tx *memTx) ListManagedTeams(_ context.Context, userID uuid.UUID) ([]lifecycle.ManagedTeam, error) {
	var out []lifecycle.ManagedTeam
	for k, m := range tx.state.members {
		if k.userID != userID || !m.Role.IsManager() {
			continue
		}
		t := tx.state.teams[k.teamID]
		if t.Archived() {
			continue
		}
		out = append(out, lifecycle.ManagedTeam{Team: t, Role: m.Role, MemberCount: countMembers(tx.state, k.teamID)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Team.Name < out[j].Team.Name })
	return out, nil
}

func (tx *memTx) GetInvitation(_ context.Context, id uuid.UUID) (*invitation.Invitation, error) {
	inv, ok := tx.state.invitations[id]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

func (tx *memTx) PendingInvitation(_ context.Context, teamID, inviteeID uuid.UUID) (*invitation.Invitation, error) {
	for _, inv := range tx.state.invitations {
		if inv.TeamID == teamID && inv.InviteeID == inviteeID && inv.Pending() {
			return &inv, nil
		}
	}
	return nil, nil
}

func (tx *memTx) InsertInvitation(ctx context.Context, inv *invitation.Invitation) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if dup, _ := tx.PendingInvitation(ctx, inv.TeamID, inv.InviteeID); dup != nil {
		return errors.New("duplicate pending invitation")
	}
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	tx.state.invitations[inv.ID] = *inv
	return nil
}

func (tx *memTx) ResolveInvitation(_ context.Context, id uuid.UUID, status invitation.Status, at time.Time) (bool, error) {
	if err := tx.writable(); err != nil {
		return false, err
	}
	inv, ok := tx.state.invitations[id]
	if !ok || !inv.Pending() {
		return false, nil
	}
	inv.Status = status
	inv.RespondedAt = &at
	tx.state.invitations[id] = inv
	return true, nil
}

func (tx *memTx) ListInvitationsByInvitee(_ context.Context, inviteeID uuid.UUID, status invitation.Status) ([]invitation.Invitation, error) {
	var out []invitation.Invitation
	for _, inv := range tx.state.invitations {
		if inv.InviteeID != inviteeID || inv.Status != status {
			continue
		}
		t := tx.state.teams[inv.TeamID]
		if t.Archived() {
			continue
		}
		inv.TeamName = t.Name
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (tx *memTx) ListInvitationsByTeam(_ context.Context, teamID uuid.UUID) ([]invitation.Invitation, error) {
	var out []invitation.Invitation
	for _, inv := range tx.state.invitations {
		if inv.TeamID == teamID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (tx *memTx) GetApplication(_ context.Context, id uuid.UUID) (*application.Application, error) {
	app, ok := tx.state.applications[id]
	if !ok {
		return nil, nil
	}
	return &app, nil
}

func (tx *memTx) PendingApplication(_ context.Context, teamID, applicantID uuid.UUID) (*application.Application, error) {
	for _, app := range tx.state.applications {
		if app.TeamID == teamID && app.ApplicantID == applicantID && app.Pending() {
			return &app, nil
		}
	}
	return nil, nil
}

func (tx *memTx) InsertApplication(ctx context.Context, app *application.Application) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if dup, _ := tx.PendingApplication(ctx, app.TeamID, app.ApplicantID); dup != nil {
		return errors.New("duplicate pending application")
	}
	if app.ID == uuid.Nil {
		app.ID = uuid.New()
	}
	tx.state.applications[app.ID] = *app
	return nil
}

func (tx *memTx) ResolveApplication(_ context.Context, id uuid.UUID, status application.Status, reviewerID uuid.UUID, at time.Time) (bool, error) {
	if err := tx.writable(); err != nil {
		return false, err
	}
	app, ok := tx.state.applications[id]
	if !ok || !app.Pending() {
		return false, nil
	}
	app.Status = status
	app.ReviewedAt = &at
	app.ReviewedBy = &reviewerID
	app.UpdatedAt = at
	tx.state.applications[id] = app
	return true, nil
}

func (tx *memTx) DeletePendingApplication(_ context.Context, id uuid.UUID) (bool, error) {
	if err := tx.writable(); err != nil {
		return false, err
	}
	app, ok := tx.state.applications[id]
	if !ok || !app.Pending() {
		return false, nil
	}
	delete(tx.state.applications, id)
	return true, nil
}

func (tx *memTx) ListApplicationsByTeam(_ context.Context, teamID uuid.UUID) ([]application.Application, error) {
	var out []application.Application
	for _, app := range tx.state.applications {
		if app.TeamID == teamID {
			out = append(out, app)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (tx *memTx) ListApplicationsByApplicant(_ context.Context, applicantID uuid.UUID) ([]application.Application, error) {
	var out []application.Application
	for _, app := range tx.state.applications {
		if app.ApplicantID == applicantID {
			out = append(out, app)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// recorder captures emitted events together with the committed member count
// of the event's team at emission time.
type recorder struct {
	store *memStore

	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	ev             notify.Event
	committedCount int
}

func (r *recorder) Notify(_ context.Context, ev notify.Event) {
	count := r.store.memberCount(ev.TeamID)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{ev: ev, committedCount: count})
}

func (r *recorder) types() []notify.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.ev.Type
	}
	return out
}

func (r *recorder) last() recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}
