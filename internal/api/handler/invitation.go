package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/teamup/teamup/internal/api/middleware"
	"github.com/teamup/teamup/internal/api/response"
	"github.com/teamup/teamup/internal/api/validation"
	"github.com/teamup/teamup/internal/invitation"
)

// InvitationManager is the part of the lifecycle manager the invitation
// endpoints use.
type InvitationManager interface {
	Invite(ctx context.Context, teamID, inviterID, inviteeID uuid.UUID, message string) (*invitation.Invitation, error)
	Respond(ctx context.Context, invitationID, actingUserID uuid.UUID, resp invitation.Response) (*invitation.Invitation, error)
	Cancel(ctx context.Context, invitationID, actingUserID uuid.UUID) (*invitation.Invitation, error)
	ListReceivedInvitations(ctx context.Context, userID uuid.UUID) ([]invitation.Invitation, error)
	ListSentInvitations(ctx context.Context, teamID, actingUserID uuid.UUID) ([]invitation.Invitation, error)
}

type createInvitationRequest struct {
	InviteeID      string `json:"inviteeId"`
	InviteeIDSnake string `json:"invitee_id"`
	Message        string `json:"message"`
}

type respondInvitationRequest struct {
	Response string `json:"response"`
	Action   string `json:"action"`
}

type invitationResponse struct {
	ID          string  `json:"id"`
	TeamID      string  `json:"teamId"`
	TeamName    string  `json:"teamName,omitempty"`
	InviterID   string  `json:"inviterId"`
	InviteeID   string  `json:"inviteeId"`
	Message     string  `json:"message"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"createdAt"`
	RespondedAt *string `json:"respondedAt"`
}

func toInvitationResponse(inv *invitation.Invitation) invitationResponse {
	resp := invitationResponse{
		ID:        inv.ID.String(),
		TeamID:    inv.TeamID.String(),
		TeamName:  inv.TeamName,
		InviterID: inv.InviterID.String(),
		InviteeID: inv.InviteeID.String(),
		Message:   inv.Message,
		Status:    string(inv.Status),
		CreatedAt: inv.CreatedAt.UTC().Format(timeFormat),
	}
	if inv.RespondedAt != nil {
		s := inv.RespondedAt.UTC().Format(timeFormat)
		resp.RespondedAt = &s
	}
	return resp
}

func toInvitationResponses(invs []invitation.Invitation) []invitationResponse {
	items := make([]invitationResponse, 0, len(invs))
	for i := range invs {
		items = append(items, toInvitationResponse(&invs[i]))
	}
	return items
}

// InvitationHandler handles invitation endpoints.
type InvitationHandler struct {
	mgr InvitationManager
}

// NewInvitationHandler creates a new InvitationHandler.
func NewInvitationHandler(mgr InvitationManager) *InvitationHandler {
	return &InvitationHandler{mgr: mgr}
}

// Create handles POST /teams/{id}/invitations.
func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	caller, ok := actor(w, r, requestID)
	if !ok {
		return
	}
	teamID, ok := urlUUID(w, r, "id", requestID)
	if !ok {
		return
	}

	var req createInvitationRequest
	if !decodeJSON(w, r, &req, requestID) {
		return
	}
	inviteeID := validation.Coalesce(req.InviteeID, req.InviteeIDSnake)
	message := strings.TrimSpace(req.Message)
	if writeValidation(w, validation.ValidateCreateInvitationRequest(validation.CreateInvitationRequest{
		InviteeID: inviteeID,
		Message:   message,
	}), requestID) {
		return
	}

	inv, err := h.mgr.Invite(r.Context(), teamID, caller.UserID, uuid.MustParse(inviteeID), message)
	if err != nil {
		writeOpError(w, err, requestID, "Failed to create invitation")
		return
	}

	response.SuccessMessage(w, http.StatusCreated, "Invitation sent", toInvitationResponse(inv), requestID)
}

// ListSent handles GET /teams/{id}/invitations. Team managers only.
func (h *InvitationHandler) ListSent(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	caller, ok := actor(w, r, requestID)
	if !ok {
		return
	}
	teamID, ok := urlUUID(w, r, "id", requestID)
	if !ok {
		return
	}

	invs, err := h.mgr.ListSentInvitations(r.Context(), teamID, caller.UserID)
	if err != nil {
		writeOpError(w, err, requestID, "Failed to list invitations")
		return
	}

	response.Success(w, http.StatusOK, toInvitationResponses(invs), requestID)
}

// ListReceived handles GET /invitations/received.
func (h *InvitationHandler) ListReceived(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	caller, ok := actor(w, r, requestID)
	if !ok {
		return
	}

	invs, err := h.mgr.ListReceivedInvitations(r.Context(), caller.UserID)
	if err != nil {
		writeOpError(w, err, requestID, "Failed to list invitations")
		return
	}

	response.Success(w, http.StatusOK, toInvitationResponses(invs), requestID)
}

// Respond handles POST /invitations/{id}/respond.
func (h *InvitationHandler) Respond(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	caller, ok := actor(w, r, requestID)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", requestID)
	if !ok {
		return
	}

	var req respondInvitationRequest
	if !decodeJSON(w, r, &req, requestID) {
		return
	}
	answer := strings.ToLower(validation.Coalesce(req.Response, req.Action))
	if writeValidation(w, validation.ValidateRespondInvitationRequest(validation.RespondInvitationRequest{
		Response: answer,
	}), requestID) {
		return
	}

	inv, err := h.mgr.Respond(r.Context(), id, caller.UserID, invitation.Response(answer))
	if err != nil {
		writeOpError(w, err, requestID, "Failed to respond to invitation")
		return
	}

	message := "Invitation declined"
	if inv.Status == invitation.StatusAccepted {
		message = "Invitation accepted"
	}
	response.SuccessMessage(w, http.StatusOK, message, toInvitationResponse(inv), requestID)
}

// Cancel handles POST /invitations/{id}/cancel.
func (h *InvitationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	caller, ok := actor(w, r, requestID)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", requestID)
	if !ok {
		return
	}

	inv, err := h.mgr.Cancel(r.Context(), id, caller.UserID)
	if err != nil {
		writeOpError(w, err, requestID, "Failed to cancel invitation")
		return
	}

	response.SuccessMessage(w, http.StatusOK, "Invitation canceled", toInvitationResponse(inv), requestID)
}
