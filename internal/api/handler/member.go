package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/teamup/teamup/internal/api/middleware"
	"github.com/teamup/teamup/internal/api/response"
	"github.com/teamup/teamup/internal/api/validation"
	"github.com/teamup/teamup/internal/team"
)

// MemberManager is the part of the lifecycle manager the member endpoints use.
type MemberManager interface {
	AddMember(ctx context.Context, teamID, actingUserID, targetUserID uuid.UUID, role team.Role) (*team.Member, error)
	RemoveMember(ctx context.Context, teamID, actingUserID, targetUserID uuid.UUID) error
}

type addMemberRequest struct {
	UserID      string `json:"userId"`
	UserIDSnake string `json:"user_id"`
	Role        string `json:"role"`
}

type memberResponse struct {
	TeamID   string `json:"teamId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
	Role     string `json:"role"`
	JoinedAt string `json:"joinedAt"`
}

func toMemberResponse(m *team.Member) memberResponse {
	return memberResponse{
		TeamID:   m.TeamID.String(),
		UserID:   m.UserID.String(),
		UserName: m.UserName,
		Role:     m.Role.String(),
		JoinedAt: m.JoinedAt.UTC().Format(timeFormat),
	}
}

// MemberHandler handles direct membership changes.
type MemberHandler struct {
	mgr MemberManager
}

// NewMemberHandler creates a new MemberHandler.
func NewMemberHandler(mgr MemberManager) *MemberHandler {
	return &MemberHandler{mgr: mgr}
}

// Add handles POST /teams/{id}/members.
func (h *MemberHandler) Add(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	caller, ok := actor(w, r, requestID)
	if !ok {
		return
	}
	teamID, ok := urlUUID(w, r, "id", requestID)
	if !ok {
		return
	}

	var req addMemberRequest
	if !decodeJSON(w, r, &req, requestID) {
		return
	}
	userID := validation.Coalesce(req.UserID, req.UserIDSnake)
	if writeValidation(w, validation.ValidateAddMemberRequest(validation.AddMemberRequest{
		UserID: userID,
		Role:   req.Role,
	}), requestID) {
		return
	}

	role := team.RoleMember
	if req.Role != "" {
		role, _ = team.ParseRole(req.Role)
	}

	member, err := h.mgr.AddMember(r.Context(), teamID, caller.UserID, uuid.MustParse(userID), role)
	if err != nil {
		writeOpError(w, err, requestID, "Failed to add member")
		return
	}

	response.SuccessMessage(w, http.StatusCreated, "Member added", toMemberResponse(member), requestID)
}

// Remove handles DELETE /teams/{id}/members/{userId}. Members may remove
// themselves.
func (h *MemberHandler) Remove(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	caller, ok := actor(w, r, requestID)
	if !ok {
		return
	}
	teamID, ok := urlUUID(w, r, "id", requestID)
	if !ok {
		return
	}
	userID, ok := urlUUID(w, r, "userId", requestID)
	if !ok {
		return
	}

	if err := h.mgr.RemoveMember(r.Context(), teamID, caller.UserID, userID); err != nil {
		writeOpError(w, err, requestID, "Failed to remove member")
		return
	}

	response.SuccessMessage(w, http.StatusOK, "Member removed", map[string]string{
		"teamId": teamID.String(),
		"userId": userID.String(),
	}, requestID)
}
