package validation

// CreateApplicationRequest mirrors the fields of an application to join.
type CreateApplicationRequest struct {
	Message string
}

// ValidateCreateApplicationRequest validates an application.
func ValidateCreateApplicationRequest(req CreateApplicationRequest) []FieldError {
	return maxLen(nil, "message", req.Message, maxMessageLen)
}

// ReviewApplicationRequest carries a manager's decision.
type ReviewApplicationRequest struct {
	Decision string
}

// ValidateReviewApplicationRequest validates a review decision.
func ValidateReviewApplicationRequest(req ReviewApplicationRequest) []FieldError {
	switch req.Decision {
	case "approve", "reject":
		return nil
	case "":
		return []FieldError{{Field: "decision", Message: "decision is required"}}
	}
	return []FieldError{{Field: "decision", Message: `decision must be "approve" or "reject"`}}
}
