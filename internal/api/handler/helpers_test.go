package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/teamup/teamup/internal/api/middleware"
	"github.com/teamup/teamup/internal/application"
	"github.com/teamup/teamup/internal/auth"
	"github.com/teamup/teamup/internal/invitation"
	"github.com/teamup/teamup/internal/lifecycle"
	"github.com/teamup/teamup/internal/team"
)

// --- Mock Lifecycle Manager ---

type mockManager struct {
	updateTeamFn        func(ctx context.Context, teamID, actingUserID uuid.UUID, fields team.UpdateFields) (*team.Team, error)
	archiveTeamFn       func(ctx context.Context, teamID, actingUserID uuid.UUID) error
	transferFn          func(ctx context.Context, teamID, actingUserID, targetUserID uuid.UUID) error
	listInvitableFn     func(ctx context.Context, userID uuid.UUID) ([]lifecycle.ManagedTeam, error)
	isMemberFn          func(ctx context.Context, teamID, userID uuid.UUID) (bool, error)
	addMemberFn         func(ctx context.Context, teamID, actingUserID, targetUserID uuid.UUID, role team.Role) (*team.Member, error)
	removeMemberFn      func(ctx context.Context, teamID, actingUserID, targetUserID uuid.UUID) error
	inviteFn            func(ctx context.Context, teamID, inviterID, inviteeID uuid.UUID, message string) (*invitation.Invitation, error)
	respondFn           func(ctx context.Context, invitationID, actingUserID uuid.UUID, resp invitation.Response) (*invitation.Invitation, error)
	cancelFn            func(ctx context.Context, invitationID, actingUserID uuid.UUID) (*invitation.Invitation, error)
	listReceivedFn      func(ctx context.Context, userID uuid.UUID) ([]invitation.Invitation, error)
	listSentFn          func(ctx context.Context, teamID, actingUserID uuid.UUID) ([]invitation.Invitation, error)
	applyFn             func(ctx context.Context, teamID, applicantID uuid.UUID, message string) (*application.Application, error)
	reviewFn            func(ctx context.Context, applicationID, reviewerID uuid.UUID, decision application.Decision) (*application.Application, error)
	withdrawFn          func(ctx context.Context, applicationID, actingUserID uuid.UUID) error
	listTeamAppsFn      func(ctx context.Context, teamID, actingUserID uuid.UUID) ([]application.Application, error)
	listMyApplicationFn func(ctx context.Context, userID uuid.UUID) ([]application.Application, error)
}

func (m *mockManager) UpdateTeam(ctx context.Context, teamID, actingUserID uuid.UUID, fields team.UpdateFields) (*team.Team, error) {
	if m.updateTeamFn != nil {
		return m.updateTeamFn(ctx, teamID, actingUserID, fields)
	}
	return sampleTeam(teamID, actingUserID), nil
}

func (m *mockManager) ArchiveTeam(ctx context.Context, teamID, actingUserID uuid.UUID) error {
	if m.archiveTeamFn != nil {
		return m.archiveTeamFn(ctx, teamID, actingUserID)
	}
	return nil
}

func (m *mockManager) TransferOwnership(ctx context.Context, teamID, actingUserID, targetUserID uuid.UUID) error {
	if m.transferFn != nil {
		return m.transferFn(ctx, teamID, actingUserID, targetUserID)
	}
	return nil
}

func (m *mockManager) ListInvitableTeams(ctx context.Context, userID uuid.UUID) ([]lifecycle.ManagedTeam, error) {
	if m.listInvitableFn != nil {
		return m.listInvitableFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockManager) IsMember(ctx context.Context, teamID, userID uuid.UUID) (bool, error) {
	if m.isMemberFn != nil {
		return m.isMemberFn(ctx, teamID, userID)
	}
	return false, nil
}

func (m *mockManager) AddMember(ctx context.Context, teamID, actingUserID, targetUserID uuid.UUID, role team.Role) (*team.Member, error) {
	if m.addMemberFn != nil {
		return m.addMemberFn(ctx, teamID, actingUserID, targetUserID, role)
	}
	return &team.Member{TeamID: teamID, UserID: targetUserID, Role: role, JoinedAt: time.Now().UTC()}, nil
}

func (m *mockManager) RemoveMember(ctx context.Context, teamID, actingUserID, targetUserID uuid.UUID) error {
	if m.removeMemberFn != nil {
		return m.removeMemberFn(ctx, teamID, actingUserID, targetUserID)
	}
	return nil
}

func (m *mockManager) Invite(ctx context.Context, teamID, inviterID, inviteeID uuid.UUID, message string) (*invitation.Invitation, error) {
	if m.inviteFn != nil {
		return m.inviteFn(ctx, teamID, inviterID, inviteeID, message)
	}
	return &invitation.Invitation{
		ID:        uuid.New(),
		TeamID:    teamID,
		InviterID: inviterID,
		InviteeID: inviteeID,
		Message:   message,
		Status:    invitation.StatusPending,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (m *mockManager) Respond(ctx context.Context, invitationID, actingUserID uuid.UUID, resp invitation.Response) (*invitation.Invitation, error) {
	if m.respondFn != nil {
		return m.respondFn(ctx, invitationID, actingUserID, resp)
	}
	return nil, nil
}

func (m *mockManager) Cancel(ctx context.Context, invitationID, actingUserID uuid.UUID) (*invitation.Invitation, error) {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, invitationID, actingUserID)
	}
	return nil, nil
}

func (m *mockManager) ListReceivedInvitations(ctx context.Context, userID uuid.UUID) ([]invitation.Invitation, error) {
	if m.listReceivedFn != nil {
		return m.listReceivedFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockManager) ListSentInvitations(ctx context.Context, teamID, actingUserID uuid.UUID) ([]invitation.Invitation, error) {
	if m.listSentFn != nil {
		return m.listSentFn(ctx, teamID, actingUserID)
	}
	return nil, nil
}

func (m *mockManager) Apply(ctx context.Context, teamID, applicantID uuid.UUID, message string) (*application.Application, error) {
	if m.applyFn != nil {
		return m.applyFn(ctx, teamID, applicantID, message)
	}
	now := time.Now().UTC()
	return &application.Application{
		ID:          uuid.New(),
		TeamID:      teamID,
		ApplicantID: applicantID,
		Message:     message,
		Status:      application.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (m *mockManager) ReviewApplication(ctx context.Context, applicationID, reviewerID uuid.UUID, decision application.Decision) (*application.Application, error) {
	if m.reviewFn != nil {
		return m.reviewFn(ctx, applicationID, reviewerID, decision)
	}
	return nil, nil
}

func (m *mockManager) WithdrawApplication(ctx context.Context, applicationID, actingUserID uuid.UUID) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, applicationID, actingUserID)
	}
	return nil
}

func (m *mockManager) ListTeamApplications(ctx context.Context, teamID, actingUserID uuid.UUID) ([]application.Application, error) {
	if m.listTeamAppsFn != nil {
		return m.listTeamAppsFn(ctx, teamID, actingUserID)
	}
	return nil, nil
}

func (m *mockManager) ListMyApplications(ctx context.Context, userID uuid.UUID) ([]application.Application, error) {
	if m.listMyApplicationFn != nil {
		return m.listMyApplicationFn(ctx, userID)
	}
	return nil, nil
}

// --- Helpers ---

// makeChiRequest builds a request carrying chi URL params and, when caller
// is non-nil, an authenticated identity.
func makeChiRequest(method, path string, body []byte, caller *auth.Identity, params map[string]string) (*http.Request, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()

	ctx := req.Context()
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	if caller != nil {
		ctx = middleware.WithIdentity(ctx, caller)
	}

	return req.WithContext(ctx), w
}

func parseEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var env map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &env)
	require.NoError(t, err, "failed to parse response body")
	return env
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	env := parseEnvelope(t, w)
	errObj, ok := env["error"].(map[string]interface{})
	require.True(t, ok, "expected an error object, got %v", env)
	return errObj["code"].(string)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func newCaller() *auth.Identity {
	return &auth.Identity{UserID: uuid.New(), UserName: "alice", Credential: auth.CredentialAPIKey}
}

func sampleTeam(id, creator uuid.UUID) *team.Team {
	now := time.Now().UTC()
	capacity := 5
	return &team.Team{
		ID:          id,
		Name:        "robotics",
		Description: "we build robots",
		IsPublic:    true,
		MaxMembers:  &capacity,
		PostalCode:  "10115",
		CreatedBy:   creator,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
