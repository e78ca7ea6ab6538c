package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teamup/teamup/internal/api/middleware"
	"github.com/teamup/teamup/internal/api/response"
	"github.com/teamup/teamup/internal/api/validation"
	"github.com/teamup/teamup/internal/lifecycle"
	"github.com/teamup/teamup/internal/team"
)

const timeFormat = time.RFC3339

// TeamManager is the part of the lifecycle manager the team endpoints use.
type TeamManager interface {
	UpdateTeam(ctx context.Context, teamID, actingUserID uuid.UUID, fields team.UpdateFields) (*team.Team, error)
	ArchiveTeam(ctx context.Context, teamID, actingUserID uuid.UUID) error
	TransferOwnership(ctx context.Context, teamID, actingUserID, targetUserID uuid.UUID) error
	ListInvitableTeams(ctx context.Context, userID uuid.UUID) ([]lifecycle.ManagedTeam, error)
	IsMember(ctx context.Context, teamID, userID uuid.UUID) (bool, error)
}

type createTeamRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	IsPublic        *bool  `json:"isPublic"`
	IsPublicSnake   *bool  `json:"is_public"`
	MaxMembers      *int   `json:"maxMembers"`
	MaxMembersSnake *int   `json:"max_members"`
	PostalCode      string `json:"postalCode"`
	PostalCodeSnake string `json:"postal_code"`
}

type updateTeamRequest struct {
	Name            *string `json:"name"`
	Description     *string `json:"description"`
	IsPublic        *bool   `json:"isPublic"`
	IsPublicSnake   *bool   `json:"is_public"`
	MaxMembers      *int    `json:"maxMembers"`
	MaxMembersSnake *int    `json:"max_members"`
	Unlimited       bool    `json:"unlimited"`
	PostalCode      *string `json:"postalCode"`
	PostalCodeSnake *string `json:"postal_code"`
}

type transferRequest struct {
	UserID      string `json:"userId"`
	UserIDSnake string `json:"user_id"`
}

type teamResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	IsPublic    bool    `json:"isPublic"`
	MaxMembers  *int    `json:"maxMembers"`
	PostalCode  string  `json:"postalCode"`
	CreatedBy   string  `json:"createdBy"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
	ArchivedAt  *string `json:"archivedAt,omitempty"`
}

func toTeamResponse(t *team.Team) teamResponse {
	resp := teamResponse{
		ID:          t.ID.String(),
		Name:        t.Name,
		Description: t.Description,
		IsPublic:    t.IsPublic,
		MaxMembers:  t.MaxMembers,
		PostalCode:  t.PostalCode,
		CreatedBy:   t.CreatedBy.String(),
		CreatedAt:   t.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:   t.UpdatedAt.UTC().Format(timeFormat),
	}
	if t.ArchivedAt != nil {
		s := t.ArchivedAt.UTC().Format(timeFormat)
		resp.ArchivedAt = &s
	}
	return resp
}

type invitableTeamResponse struct {
	teamResponse
	Role        string `json:"role"`
	MemberCount int    `json:"memberCount"`
}

// TeamHandler handles team endpoints.
type TeamHandler struct {
	repo team.Repository
	mgr  TeamManager
}

// NewTeamHandler creates a new TeamHandler.
func NewTeamHandler(repo team.Repository, mgr TeamManager) *TeamHandler {
	return &TeamHandler{repo: repo, mgr: mgr}
}

// Create handles POST /teams. The caller becomes the team's creator.
func (h *TeamHandler) Create(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	caller, ok := actor(w, r, requestID)
	if !ok {
		return
	}

	var req createTeamRequest
	if !decodeJSON(w, r, &req, requestID) {
		return
	}

	maxMembers := validation.CoalescePtr(req.MaxMembers, req.MaxMembersSnake)
	postalCode := strings.TrimSpace(validation.Coalesce(req.PostalCode, req.PostalCodeSnake))
	if writeValidation(w, validation.ValidateCreateTeamRequest(validation.CreateTeamRequest{
		Name:        req.Name,
		Description: req.Description,
		PostalCode:  postalCode,
		MaxMembers:  maxMembers,
	}), requestID) {
		return
	}

	isPublic := true
	if v := validation.CoalescePtr(req.IsPublic, req.IsPublicSnake); v != nil {
		isPublic = *v
	}

	t := &team.Team{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		IsPublic:    isPublic,
		MaxMembers:  maxMembers,
		PostalCode:  postalCode,
		CreatedBy:   caller.UserID,
	}

	if err := h.repo.Create(r.Context(), t); err != nil {
		slog.Error("failed to create team", "error", err, "userId", caller.UserID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create team", requestID)
		return
	}

	slog.Info("team created", "teamId", t.ID, "createdBy", caller.UserID)
	response.SuccessMessage(w, http.StatusCreated, "Team created", toTeamResponse(t), requestID)
}

// List handles GET /teams. Without ?mine=true only public teams are listed.
func (h *TeamHandler) List(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	caller, ok := actor(w, r, requestID)
	if !ok {
		return
	}

	q := r.URL.Query()
	page, errs := validation.ParsePagination(q.Get("page"), q.Get("limit"))
	if writeValidation(w, errs, requestID) {
		return
	}

	filter := team.ListFilter{Page: page.Page, Limit: page.Limit}
	if v := strings.TrimSpace(q.Get("name")); v != "" {
		filter.Name = &v
	}
	if q.Get("mine") == "true" {
		filter.MemberID = &caller.UserID
	}

	result, err := h.repo.List(r.Context(), filter)
	if err != nil {
		slog.Error("failed to list teams", "error", err)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list teams", requestID)
		return
	}

	items := make([]teamResponse, 0, len(result.Teams))
	for i := range result.Teams {
		items = append(items, toTeamResponse(&result.Teams[i]))
	}

	response.SuccessList(w, http.StatusOK, items, result.Total, result.Page, result.Limit, requestID)
}

// Invitable handles GET /teams/invitable: active teams where the caller may
// invite and a seat is still free.
func (h *TeamHandler) Invitable(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	caller, ok := actor(w, r, requestID)
	if !ok {
		return
	}

	teams, err := h.mgr.ListInvitableTeams(r.Context(), caller.UserID)
	if err != nil {
		writeOpError(w, err, requestID, "Failed to list invitable teams")
		return
	}

	items := make([]invitableTeamResponse, 0, len(teams))
	for i := range teams {
		items = append(items, invitableTeamResponse{
			teamResponse: toTeamResponse(&teams[i].Team),
			Role:         teams[i].Role.String(),
			MemberCount:  teams[i].MemberCount,
		})
	}

	response.Success(w, http.StatusOK, items, requestID)
}

// visibleTeam loads a team the caller may see: public teams, or private
// teams the caller belongs to. Others are reported as not found.
func (h *TeamHandler) visibleTeam(w http.ResponseWriter, r *http.Request, requestID string) (*team.Team, bool) {
	caller, ok := actor(w, r, requestID)
	if !ok {
		return nil, false
	}
	id, ok := urlUUID(w, r, "id", requestID)
	if !ok {
		return nil, false
	}

	t, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, team.ErrTeamNotFound) {
			response.Err(w, http.StatusNotFound, "TEAM_NOT_FOUND", "Team not found", requestID)
			return nil, false
		}
		slog.Error("failed to get team", "error", err, "id", id)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get team", requestID)
		return nil, false
	}

	if !t.IsPublic {
		member, err := h.mgr.IsMember(r.Context(), t.ID, caller.UserID)
		if err != nil {
			slog.Error("failed to check membership", "error", err, "teamId", t.ID)
			response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get team", requestID)
			return nil, false
		}
		if !member {
			response.Err(w, http.StatusNotFound, "TEAM_NOT_FOUND", "Team not found", requestID)
			return nil, false
		}
	}

	return t, true
}

// GetByID handles GET /teams/{id}.
func (h *TeamHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	t, ok := h.visibleTeam(w, r, requestID)
	if !ok {
		return
	}

	response.Success(w, http.StatusOK, toTeamResponse(t), requestID)
}

// Members handles GET /teams/{id}/members.
func (h *TeamHandler) Members(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	t, ok := h.visibleTeam(w, r, requestID)
	if !ok {
		return
	}

	members, err := h.repo.ListMembers(r.Context(), t.ID)
	if err != nil {
		slog.Error("failed to list members", "error", err, "teamId", t.ID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list members", requestID)
		return
	}

	items := make([]memberResponse, 0, len(members))
	for i := range members {
		items = append(items, toMemberResponse(&members[i]))
	}

	response.Success(w, http.StatusOK, items, requestID)
}

// Update handles PATCH /teams/{id}.
func (h *TeamHandler) Update(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	caller, ok := actor(w, r, requestID)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", requestID)
	if !ok {
		return
	}

	var req updateTeamRequest
	if !decodeJSON(w, r, &req, requestID) {
		return
	}

	fields := team.UpdateFields{
		Name:            req.Name,
		Description:     req.Description,
		IsPublic:        validation.CoalescePtr(req.IsPublic, req.IsPublicSnake),
		PostalCode:      validation.CoalescePtr(req.PostalCode, req.PostalCodeSnake),
		MaxMembers:      validation.CoalescePtr(req.MaxMembers, req.MaxMembersSnake),
		ClearMaxMembers: req.Unlimited,
	}
	if writeValidation(w, validation.ValidateUpdateTeamRequest(validation.UpdateTeamRequest{
		Name:            fields.Name,
		Description:     fields.Description,
		IsPublic:        fields.IsPublic,
		PostalCode:      fields.PostalCode,
		MaxMembers:      fields.MaxMembers,
		ClearMaxMembers: fields.ClearMaxMembers,
	}), requestID) {
		return
	}
	if fields.Name != nil {
		name := strings.TrimSpace(*fields.Name)
		fields.Name = &name
	}

	t, err := h.mgr.UpdateTeam(r.Context(), id, caller.UserID, fields)
	if err != nil {
		writeOpError(w, err, requestID, "Failed to update team")
		return
	}

	response.SuccessMessage(w, http.StatusOK, "Team updated", toTeamResponse(t), requestID)
}

// Archive handles DELETE /teams/{id}. Teams are soft-deleted.
func (h *TeamHandler) Archive(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	caller, ok := actor(w, r, requestID)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", requestID)
	if !ok {
		return
	}

	if err := h.mgr.ArchiveTeam(r.Context(), id, caller.UserID); err != nil {
		writeOpError(w, err, requestID, "Failed to archive team")
		return
	}

	response.SuccessMessage(w, http.StatusOK, "Team archived", map[string]string{"teamId": id.String()}, requestID)
}

// Transfer handles POST /teams/{id}/transfer.
func (h *TeamHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	caller, ok := actor(w, r, requestID)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", requestID)
	if !ok {
		return
	}

	var req transferRequest
	if !decodeJSON(w, r, &req, requestID) {
		return
	}
	userID := validation.Coalesce(req.UserID, req.UserIDSnake)
	if writeValidation(w, validation.ValidateTransferOwnershipRequest(validation.TransferOwnershipRequest{UserID: userID}), requestID) {
		return
	}

	if err := h.mgr.TransferOwnership(r.Context(), id, caller.UserID, uuid.MustParse(userID)); err != nil {
		writeOpError(w, err, requestID, "Failed to transfer ownership")
		return
	}

	response.SuccessMessage(w, http.StatusOK, "Ownership transferred", map[string]string{
		"teamId":    id.String(),
		"creatorId": userID,
	}, requestID)
}
