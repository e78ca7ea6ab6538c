package validation

// CreateInvitationRequest mirrors the fields of an invitation.
type CreateInvitationRequest struct {
	InviteeID string
	Message   string
}

// ValidateCreateInvitationRequest validates an invitation request.
func ValidateCreateInvitationRequest(req CreateInvitationRequest) []FieldError {
	errs := requireUUID(nil, "inviteeId", req.InviteeID)
	return maxLen(errs, "message", req.Message, maxMessageLen)
}

// RespondInvitationRequest carries the invitee's answer.
type RespondInvitationRequest struct {
	Response string
}

// ValidateRespondInvitationRequest validates an invitation response.
func ValidateRespondInvitationRequest(req RespondInvitationRequest) []FieldError {
	switch req.Response {
	case "accept", "decline":
		return nil
	case "":
		return []FieldError{{Field: "response", Message: "response is required"}}
	}
	return []FieldError{{Field: "response", Message: `response must be "accept" or "decline"`}}
}
