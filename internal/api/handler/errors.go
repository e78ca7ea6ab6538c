package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/teamup/teamup/internal/api/middleware"
	"github.com/teamup/teamup/internal/api/response"
	"github.com/teamup/teamup/internal/api/validation"
	"github.com/teamup/teamup/internal/auth"
	"github.com/teamup/teamup/internal/policy"
)

const maxBodyBytes = 1 << 20 // 1MB limit

type denialMapping struct {
	status int
	code   string
}

var denials = map[policy.Reason]denialMapping{
	policy.ReasonNotAuthorized:      {http.StatusForbidden, "NOT_AUTHORIZED"},
	policy.ReasonTeamPrivate:        {http.StatusForbidden, "TEAM_PRIVATE"},
	policy.ReasonTeamNotFound:       {http.StatusNotFound, "TEAM_NOT_FOUND"},
	policy.ReasonUserNotFound:       {http.StatusNotFound, "USER_NOT_FOUND"},
	policy.ReasonNotFound:           {http.StatusNotFound, "NOT_FOUND"},
	policy.ReasonAlreadyMember:      {http.StatusBadRequest, "ALREADY_MEMBER"},
	policy.ReasonTeamFull:           {http.StatusBadRequest, "TEAM_FULL"},
	policy.ReasonInvitationPending:  {http.StatusBadRequest, "INVITATION_PENDING"},
	policy.ReasonApplicationPending: {http.StatusBadRequest, "APPLICATION_PENDING"},
	policy.ReasonLastCreator:        {http.StatusBadRequest, "LAST_CREATOR"},
	policy.ReasonCapacityTooLow:     {http.StatusBadRequest, "CAPACITY_TOO_LOW"},
	policy.ReasonRoleUnchanged:      {http.StatusBadRequest, "ROLE_UNCHANGED"},
}

// writeOpError maps a lifecycle error onto the response. Denials keep their
// own message; anything else is logged and reported as an opaque 500.
func writeOpError(w http.ResponseWriter, err error, requestID, failure string) {
	if reason, ok := policy.ReasonOf(err); ok {
		m, known := denials[reason]
		if !known {
			m = denialMapping{http.StatusBadRequest, "DENIED"}
		}
		response.Err(w, m.status, m.code, err.Error(), requestID)
		return
	}

	slog.Error(failure, "error", err, "requestId", requestID)
	response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", failure, requestID)
}

// decodeJSON reads a size-limited JSON body into dst. It writes the error
// response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, requestID string) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			response.Err(w, http.StatusBadRequest, "INVALID_JSON", "Request body is required", requestID)
			return false
		}
		response.Err(w, http.StatusBadRequest, "INVALID_JSON", "Request body must be valid JSON", requestID)
		return false
	}
	return true
}

func writeValidation(w http.ResponseWriter, errs []validation.FieldError, requestID string) bool {
	if len(errs) == 0 {
		return false
	}
	response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", errs, requestID)
	return true
}

// urlUUID parses a chi URL parameter as a UUID, writing 400 on failure.
func urlUUID(w http.ResponseWriter, r *http.Request, param, requestID string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_ID", param+" must be a valid UUID", requestID)
		return uuid.Nil, false
	}
	return id, true
}

// actor returns the authenticated caller, writing 401 when absent.
func actor(w http.ResponseWriter, r *http.Request, requestID string) (*auth.Identity, bool) {
	id := middleware.GetIdentity(r.Context())
	if id == nil {
		response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key or session token is required", requestID)
		return nil, false
	}
	return id, true
}
