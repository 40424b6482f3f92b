package types

import "errors"

// ErrValidation matches every *ValidationError through errors.Is
var ErrValidation = errors.New("validation failed")

// ARCHITECTURAL DISCOVERY: Specific error messages surface unchanged to REST
// callers and socket clients, so Reason is written for end users
var (
	ErrContentRequired     = &ValidationError{Field: "content", Reason: "Message content is required"}
	ErrContentTooLong      = &ValidationError{Field: "content", Reason: "Message cannot exceed 1000 characters"}
	ErrSenderIDRequired    = &ValidationError{Field: "senderId", Reason: "senderId is required"}
	ErrSenderNameRequired  = &ValidationError{Field: "senderName", Reason: "senderName is required"}
	ErrInvalidSenderType   = &ValidationError{Field: "senderType", Reason: "senderType must be child or ai"}
	ErrNegativeStep        = &ValidationError{Field: "currentStep", Reason: "Current step cannot be negative"}
	ErrLessonIDRequired    = &ValidationError{Field: "lessonId", Reason: "Lesson ID is required"}
	ErrUnknownParticipants = &ValidationError{Field: "participants", Reason: "Some participants do not exist"}
	ErrSessionIDRequired   = &ValidationError{Field: "sessionId", Reason: "sessionId is required"}
	ErrUserIDRequired      = &ValidationError{Field: "userId", Reason: "userId is required"}
)

// ValidationError describes a rejected field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Is lets errors.Is(err, ErrValidation) match any validation failure
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError builds a ValidationError for field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
