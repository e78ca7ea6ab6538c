package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/teamup/teamup/internal/api/middleware"
	"github.com/teamup/teamup/internal/api/response"
	"github.com/teamup/teamup/internal/api/validation"
	"github.com/teamup/teamup/internal/application"
)

// ApplicationManager is the part of the lifecycle manager the application
// endpoints use.
type ApplicationManager interface {
	Apply(ctx context.Context, teamID, applicantID uuid.UUID, message string) (*application.Application, error)
	ReviewApplication(ctx context.Context, applicationID, reviewerID uuid.UUID, decision application.Decision) (*application.Application, error)
	WithdrawApplication(ctx context.Context, applicationID, actingUserID uuid.UUID) error
	ListTeamApplications(ctx context.Context, teamID, actingUserID uuid.UUID) ([]application.Application, error)
	ListMyApplications(ctx context.Context, userID uuid.UUID) ([]application.Application, error)
}

type createApplicationRequest struct {
	Message string `json:"message"`
}

type reviewApplicationRequest struct {
	Decision string `json:"decision"`
	Action   string `json:"action"`
}

type applicationResponse struct {
	ID          string  `json:"id"`
	TeamID      string  `json:"teamId"`
	TeamName    string  `json:"teamName,omitempty"`
	ApplicantID string  `json:"applicantId"`
	Message     string  `json:"message"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
	ReviewedAt  *string `json:"reviewedAt"`
	ReviewedBy  *string `json:"reviewedBy"`
}

func toApplicationResponse(app *application.Application) applicationResponse {
	resp := applicationResponse{
		ID:          app.ID.String(),
		TeamID:      app.TeamID.String(),
		TeamName:    app.TeamName,
		ApplicantID: app.ApplicantID.String(),
		Message:     app.Message,
		Status:      string(app.Status),
		CreatedAt:   app.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:   app.UpdatedAt.UTC().Format(timeFormat),
	}
	if app.ReviewedAt != nil {
		s := app.ReviewedAt.UTC().Format(timeFormat)
		resp.ReviewedAt = &s
	}
	if app.ReviewedBy != nil {
		s := app.ReviewedBy.String()
		resp.ReviewedBy = &s
	}
	return resp
}

func toApplicationResponses(apps []application.Application) []applicationResponse {
	items := make([]applicationResponse, 0, len(apps))
	for i := range apps {
		items = append(items, toApplicationResponse(&apps[i]))
	}
	return items
}

// ApplicationHandler handles application endpoints.
type ApplicationHandler struct {
	mgr ApplicationManager
}

// NewApplicationHandler creates a new ApplicationHandler.
func NewApplicationHandler(mgr ApplicationManager) *ApplicationHandler {
	return &ApplicationHandler{mgr: mgr}
}

// Apply handles POST /teams/{id}/applications.
func (h *ApplicationHandler) Apply(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	caller, ok := actor(w, r, requestID)
	if !ok {
		return
	}
	teamID, ok := urlUUID(w, r, "id", requestID)
	if !ok {
		return
	}

	var req createApplicationRequest
	if !decodeJSON(w, r, &req, requestID) {
		return
	}
	message := strings.TrimSpace(req.Message)
	if writeValidation(w, validation.ValidateCreateApplicationRequest(validation.CreateApplicationRequest{
		Message: message,
	}), requestID) {
		return
	}

	app, err := h.mgr.Apply(r.Context(), teamID, caller.UserID, message)
	if err != nil {
		writeOpError(w, err, requestID, "Failed to submit application")
		return
	}

	response.SuccessMessage(w, http.StatusCreated, "Application submitted", toApplicationResponse(app), requestID)
}

// ListForTeam handles GET /teams/{id}/applications. Team managers only.
func (h *ApplicationHandler) ListForTeam(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	caller, ok := actor(w, r, requestID)
	if !ok {
		return
	}
	teamID, ok := urlUUID(w, r, "id", requestID)
	if !ok {
		return
	}

	apps, err := h.mgr.ListTeamApplications(r.Context(), teamID, caller.UserID)
	if err != nil {
		writeOpError(w, err, requestID, "Failed to list applications")
		return
	}

	response.Success(w, http.StatusOK, toApplicationResponses(apps), requestID)
}

// ListMine handles GET /applications/mine.
func (h *ApplicationHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	caller, ok := actor(w, r, requestID)
	if !ok {
		return
	}

	apps, err := h.mgr.ListMyApplications(r.Context(), caller.UserID)
	if err != nil {
		writeOpError(w, err, requestID, "Failed to list applications")
		return
	}

	response.Success(w, http.StatusOK, toApplicationResponses(apps), requestID)
}

// Review handles POST /applications/{id}/review.
func (h *ApplicationHandler) Review(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	caller, ok := actor(w, r, requestID)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", requestID)
	if !ok {
		return
	}

	var req reviewApplicationRequest
	if !decodeJSON(w, r, &req, requestID) {
		return
	}
	decision := strings.ToLower(validation.Coalesce(req.Decision, req.Action))
	if writeValidation(w, validation.ValidateReviewApplicationRequest(validation.ReviewApplicationRequest{
		Decision: decision,
	}), requestID) {
		return
	}

	app, err := h.mgr.ReviewApplication(r.Context(), id, caller.UserID, application.Decision(decision))
	if err != nil {
		writeOpError(w, err, requestID, "Failed to review application")
		return
	}

	message := "Application rejected"
	if app.Status == application.StatusApproved {
		message = "Application approved"
	}
	response.SuccessMessage(w, http.StatusOK, message, toApplicationResponse(app), requestID)
}

// Withdraw handles DELETE /applications/{id}.
func (h *ApplicationHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	caller, ok := actor(w, r, requestID)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", requestID)
	if !ok {
		return
	}

	if err := h.mgr.WithdrawApplication(r.Context(), id, caller.UserID); err != nil {
		writeOpError(w, err, requestID, "Failed to withdraw application")
		return
	}

	response.SuccessMessage(w, http.StatusOK, "Application withdrawn", map[string]string{"applicationId": id.String()}, requestID)
}
