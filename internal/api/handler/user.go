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
	"github.com/teamup/teamup/internal/auth"
)

// AccountService registers users and issues session tokens.
type AccountService interface {
	Register(ctx context.Context, u *auth.User) (string, error)
	IssueToken(id *auth.Identity) (string, time.Time, error)
}

type registerRequest struct {
	Name            string   `json:"name"`
	Bio             string   `json:"bio"`
	Skills          []string `json:"skills"`
	Interests       []string `json:"interests"`
	PostalCode      string   `json:"postalCode"`
	PostalCodeSnake string   `json:"postal_code"`
}

type userResponse struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Bio        string   `json:"bio"`
	Skills     []string `json:"skills"`
	Interests  []string `json:"interests"`
	PostalCode string   `json:"postalCode"`
	CreatedAt  string   `json:"createdAt"`
}

type userWithKeyResponse struct {
	userResponse
	ApiKey string `json:"apiKey"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

func toUserResponse(u *auth.User) userResponse {
	skills, interests := u.Skills, u.Interests
	if skills == nil {
		skills = []string{}
	}
	if interests == nil {
		interests = []string{}
	}
	return userResponse{
		ID:         u.ID.String(),
		Name:       u.Name,
		Bio:        u.Bio,
		Skills:     skills,
		Interests:  interests,
		PostalCode: u.PostalCode,
		CreatedAt:  u.CreatedAt.UTC().Format(timeFormat),
	}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.TrimSpace(v))
	}
	return out
}

// UserHandler handles registration, session tokens and profiles.
type UserHandler struct {
	accounts AccountService
	userRepo auth.UserRepository
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(accounts AccountService, userRepo auth.UserRepository) *UserHandler {
	return &UserHandler{accounts: accounts, userRepo: userRepo}
}

// Register handles POST /auth/register. The API key is returned only here.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req registerRequest
	if !decodeJSON(w, r, &req, requestID) {
		return
	}

	postalCode := strings.TrimSpace(validation.Coalesce(req.PostalCode, req.PostalCodeSnake))
	if writeValidation(w, validation.ValidateRegisterUserRequest(validation.RegisterUserRequest{
		Name:       req.Name,
		Bio:        req.Bio,
		Skills:     req.Skills,
		Interests:  req.Interests,
		PostalCode: postalCode,
	}), requestID) {
		return
	}

	u := &auth.User{
		Name:       strings.TrimSpace(req.Name),
		Bio:        strings.TrimSpace(req.Bio),
		Skills:     trimAll(req.Skills),
		Interests:  trimAll(req.Interests),
		PostalCode: postalCode,
	}

	rawKey, err := h.accounts.Register(r.Context(), u)
	if err != nil {
		slog.Error("failed to register user", "error", err)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to register user", requestID)
		return
	}

	slog.Info("user registered", "userId", u.ID)
	response.SuccessMessage(w, http.StatusCreated, "Store this API key; it is shown only once", userWithKeyResponse{
		userResponse: toUserResponse(u),
		ApiKey:       rawKey,
	}, requestID)
}

// Token handles POST /auth/token, exchanging the caller's API key for a
// short-lived session token usable on the websocket handshake. A session
// token cannot be used to mint another one.
func (h *UserHandler) Token(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	caller, ok := actor(w, r, requestID)
	if !ok {
		return
	}
	if caller.Credential != auth.CredentialAPIKey {
		response.Err(w, http.StatusForbidden, "API_KEY_REQUIRED", "Session tokens can only be issued for an API key", requestID)
		return
	}

	token, expires, err := h.accounts.IssueToken(caller)
	if err != nil {
		slog.Error("failed to issue token", "error", err, "userId", caller.UserID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue token", requestID)
		return
	}

	response.Success(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expires.UTC().Format(timeFormat),
	}, requestID)
}

// Me handles GET /users/me.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	caller, ok := actor(w, r, requestID)
	if !ok {
		return
	}
	h.writeUser(w, r, caller.UserID, requestID)
}

// GetByID handles GET /users/{id}.
func (h *UserHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	if _, ok := actor(w, r, requestID); !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", requestID)
	if !ok {
		return
	}
	h.writeUser(w, r, id, requestID)
}

func (h *UserHandler) writeUser(w http.ResponseWriter, r *http.Request, id uuid.UUID, requestID string) {
	u, err := h.userRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			response.Err(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found", requestID)
			return
		}
		slog.Error("failed to get user", "error", err, "id", id)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get user", requestID)
		return
	}

	response.Success(w, http.StatusOK, toUserResponse(u), requestID)
}

// RevokeMe handles DELETE /users/me, revoking the caller's API key.
func (h *UserHandler) RevokeMe(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	caller, ok := actor(w, r, requestID)
	if !ok {
		return
	}

	if err := h.userRepo.Revoke(r.Context(), caller.UserID); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) || errors.Is(err, auth.ErrUserRevoked) {
			response.Err(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found", requestID)
			return
		}
		slog.Error("failed to revoke user", "error", err, "userId", caller.UserID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to revoke user", requestID)
		return
	}

	slog.Info("user revoked", "userId", caller.UserID)
	response.NoContent(w)
}
