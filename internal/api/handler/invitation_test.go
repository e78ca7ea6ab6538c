package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamup/teamup/internal/api/handler"
	"github.com/teamup/teamup/internal/invitation"
	"github.com/teamup/teamup/internal/policy"
)

func sampleInvitation(status invitation.Status) *invitation.Invitation {
	inv := &invitation.Invitation{
		ID:        uuid.New(),
		TeamID:    uuid.New(),
		TeamName:  "robotics",
		InviterID: uuid.New(),
		InviteeID: uuid.New(),
		Message:   "join us",
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	if status != invitation.StatusPending {
		at := time.Now().UTC()
		inv.RespondedAt = &at
	}
	return inv
}

func TestInvitationCreate(t *testing.T) {
	t.Parallel()

	caller := newCaller()
	teamID, invitee := uuid.New(), uuid.New()
	h := handler.NewInvitationHandler(&mockManager{})

	req, w := makeChiRequest(http.MethodPost, "/teams/"+teamID.String()+"/invitations",
		mustJSON(t, map[string]string{"invitee_id": invitee.String(), "message": "  join us  "}),
		caller, map[string]string{"id": teamID.String()})

	h.Create(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	data := parseEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, teamID.String(), data["teamId"])
	assert.Equal(t, caller.UserID.String(), data["inviterId"])
	assert.Equal(t, invitee.String(), data["inviteeId"])
	assert.Equal(t, "join us", data["message"])
	assert.Equal(t, "pending", data["status"])
	assert.Nil(t, data["respondedAt"])
}

func TestInvitationCreate_Denials(t *testing.T) {
	t.Parallel()

	tests := []struct {
		reason     policy.Reason
		wantStatus int
		wantCode   string
	}{
		{policy.ReasonInvitationPending, http.StatusBadRequest, "INVITATION_PENDING"},
		{policy.ReasonAlreadyMember, http.StatusBadRequest, "ALREADY_MEMBER"},
		{policy.ReasonTeamFull, http.StatusBadRequest, "TEAM_FULL"},
		{policy.ReasonTeamNotFound, http.StatusNotFound, "TEAM_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			t.Parallel()
			mgr := &mockManager{
				inviteFn: func(context.Context, uuid.UUID, uuid.UUID, uuid.UUID, string) (*invitation.Invitation, error) {
					return nil, policy.Deny(tt.reason)
				},
			}
			h := handler.NewInvitationHandler(mgr)
			teamID := uuid.New()
			req, w := makeChiRequest(http.MethodPost, "/", mustJSON(t, map[string]string{"inviteeId": uuid.NewString()}),
				newCaller(), map[string]string{"id": teamID.String()})

			h.Create(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, w))
		})
	}
}

func TestInvitationCreate_MissingInvitee(t *testing.T) {
	t.Parallel()

	h := handler.NewInvitationHandler(&mockManager{})
	req, w := makeChiRequest(http.MethodPost, "/", []byte(`{"message":"hi"}`), newCaller(), map[string]string{"id": uuid.NewString()})

	h.Create(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
}

func TestInvitationListReceived(t *testing.T) {
	t.Parallel()

	caller := newCaller()
	mgr := &mockManager{
		listReceivedFn: func(_ context.Context, userID uuid.UUID) ([]invitation.Invitation, error) {
			assert.Equal(t, caller.UserID, userID)
			return []invitation.Invitation{*sampleInvitation(invitation.StatusPending)}, nil
		},
	}
	h := handler.NewInvitationHandler(mgr)
	req, w := makeChiRequest(http.MethodGet, "/invitations/received", nil, caller, nil)

	h.ListReceived(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	items := parseEnvelope(t, w)["data"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "robotics", items[0].(map[string]interface{})["teamName"])
}

func TestInvitationListReceived_Empty(t *testing.T) {
	t.Parallel()

	h := handler.NewInvitationHandler(&mockManager{})
	req, w := makeChiRequest(http.MethodGet, "/invitations/received", nil, newCaller(), nil)

	h.ListReceived(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, parseEnvelope(t, w)["data"])
}

func TestInvitationListSent_NotAuthorized(t *testing.T) {
	t.Parallel()

	mgr := &mockManager{
		listSentFn: func(context.Context, uuid.UUID, uuid.UUID) ([]invitation.Invitation, error) {
			return nil, policy.Deny(policy.ReasonNotAuthorized)
		},
	}
	h := handler.NewInvitationHandler(mgr)
	req, w := makeChiRequest(http.MethodGet, "/", nil, newCaller(), map[string]string{"id": uuid.NewString()})

	h.ListSent(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestInvitationRespond(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        map[string]string
		wantAnswer  invitation.Response
		wantMessage string
	}{
		{"accept", map[string]string{"response": "accept"}, invitation.ResponseAccept, "Invitation accepted"},
		{"decline via action", map[string]string{"action": "DECLINE"}, invitation.ResponseDecline, "Invitation declined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got invitation.Response
			mgr := &mockManager{
				respondFn: func(_ context.Context, _, _ uuid.UUID, resp invitation.Response) (*invitation.Invitation, error) {
					got = resp
					if resp == invitation.ResponseAccept {
						return sampleInvitation(invitation.StatusAccepted), nil
					}
					return sampleInvitation(invitation.StatusDeclined), nil
				},
			}
			h := handler.NewInvitationHandler(mgr)
			id := uuid.New()
			req, w := makeChiRequest(http.MethodPost, "/invitations/"+id.String()+"/respond", mustJSON(t, tt.body),
				newCaller(), map[string]string{"id": id.String()})

			h.Respond(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantAnswer, got)
			env := parseEnvelope(t, w)
			assert.Equal(t, tt.wantMessage, env["message"])
			assert.NotNil(t, env["data"].(map[string]interface{})["respondedAt"])
		})
	}
}

func TestInvitationRespond_InvalidAnswer(t *testing.T) {
	t.Parallel()

	h := handler.NewInvitationHandler(&mockManager{})
	id := uuid.New()
	req, w := makeChiRequest(http.MethodPost, "/", mustJSON(t, map[string]string{"response": "maybe"}),
		newCaller(), map[string]string{"id": id.String()})

	h.Respond(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
}

func TestInvitationRespond_AlreadyResolved(t *testing.T) {
	t.Parallel()

	mgr := &mockManager{
		respondFn: func(context.Context, uuid.UUID, uuid.UUID, invitation.Response) (*invitation.Invitation, error) {
			return nil, policy.Deny(policy.ReasonNotFound)
		},
	}
	h := handler.NewInvitationHandler(mgr)
	id := uuid.New()
	req, w := makeChiRequest(http.MethodPost, "/", mustJSON(t, map[string]string{"response": "accept"}),
		newCaller(), map[string]string{"id": id.String()})

	h.Respond(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))
}

func TestInvitationCancel(t *testing.T) {
	t.Parallel()

	mgr := &mockManager{
		cancelFn: func(context.Context, uuid.UUID, uuid.UUID) (*invitation.Invitation, error) {
			return sampleInvitation(invitation.StatusCanceled), nil
		},
	}
	h := handler.NewInvitationHandler(mgr)
	id := uuid.New()
	req, w := makeChiRequest(http.MethodPost, "/invitations/"+id.String()+"/cancel", nil, newCaller(), map[string]string{"id": id.String()})

	h.Cancel(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "canceled", parseEnvelope(t, w)["data"].(map[string]interface{})["status"])
}
