package types

import (
	"strings"
	"unicode/utf8"
)

// Field limits shared by REST and socket validation
const (
	MaxContentLength     = 1000
	MaxLessonTitle       = 100
	MaxLessonDescription = 500
	MaxChildName         = 50
	MaxPersonality       = 200
	MinAge               = 5
	MaxAge               = 18
	MinStepDuration      = 1
	MaxStepDuration      = 120
)

// Normalize trims the input and checks every required field.
// FUNCTIONAL DISCOVERY: Length limits count characters, not bytes, so
// children typing emoji get the same 1000 character budget
func (in *MessageInput) Normalize() error {
	in.SenderID = strings.TrimSpace(in.SenderID)
	in.SenderName = strings.TrimSpace(in.SenderName)
	in.Content = strings.TrimSpace(in.Content)

	if in.SenderID == "" {
		return ErrSenderIDRequired
	}
	if in.SenderName == "" {
		return ErrSenderNameRequired
	}
	if !IsValidSenderType(in.SenderType) {
		return ErrInvalidSenderType
	}
	if in.Content == "" {
		return ErrContentRequired
	}
	if utf8.RuneCountInString(in.Content) > MaxContentLength {
		return ErrContentTooLong
	}
	return nil
}

// Validate checks the patch values that can be judged without storage
func (p SessionPatch) Validate() error {
	if p.CurrentStep != nil && *p.CurrentStep < 0 {
		return ErrNegativeStep
	}
	return nil
}

// Normalize trims lesson text fields and validates limits
func (l *Lesson) Normalize() error {
	l.Title = strings.TrimSpace(l.Title)
	l.Subject = strings.TrimSpace(l.Subject)

	if l.Title == "" {
		return NewValidationError("title", "Lesson title is required")
	}
	if utf8.RuneCountInString(l.Title) > MaxLessonTitle {
		return NewValidationError("title", "Title cannot exceed 100 characters")
	}
	if l.Subject == "" {
		return NewValidationError("subject", "Subject is required")
	}
	if l.TargetAge < MinAge || l.TargetAge > MaxAge {
		return NewValidationError("targetAge", "Target age must be between 5 and 18")
	}
	if strings.TrimSpace(l.Description) == "" {
		return NewValidationError("description", "Description is required")
	}
	if utf8.RuneCountInString(l.Description) > MaxLessonDescription {
		return NewValidationError("description", "Description cannot exceed 500 characters")
	}
	if len(l.Steps) == 0 {
		return NewValidationError("steps", "A lesson needs at least one step")
	}
	for i := range l.Steps {
		if err := l.Steps[i].normalize(); err != nil {
			return err
		}
	}
	if l.Participants == nil {
		l.Participants = []string{}
	}
	return nil
}

func (s *Step) normalize() error {
	s.Title = strings.TrimSpace(s.Title)
	if strings.TrimSpace(s.ID) == "" {
		return NewValidationError("steps.id", "Step id is required")
	}
	if s.Title == "" {
		return NewValidationError("steps.title", "Step title is required")
	}
	if strings.TrimSpace(s.Description) == "" {
		return NewValidationError("steps.description", "Step description is required")
	}
	if strings.TrimSpace(s.AIPrompt) == "" {
		return NewValidationError("steps.aiPrompt", "AI prompt is required")
	}
	// zero means the duration was omitted
	if s.Duration != 0 && (s.Duration < MinStepDuration || s.Duration > MaxStepDuration) {
		return NewValidationError("steps.duration", "Duration must be between 1 and 120 minutes")
	}
	return nil
}

// Normalize trims child fields, applies the default avatar, and validates limits
func (c *Child) Normalize() error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return NewValidationError("name", "Child name is required")
	}
	if utf8.RuneCountInString(c.Name) > MaxChildName {
		return NewValidationError("name", "Name cannot exceed 50 characters")
	}
	if strings.TrimSpace(c.Personality) == "" {
		return NewValidationError("personality", "Personality description is required")
	}
	if utf8.RuneCountInString(c.Personality) > MaxPersonality {
		return NewValidationError("personality", "Personality description cannot exceed 200 characters")
	}
	if c.Age != nil && (*c.Age < MinAge || *c.Age > MaxAge) {
		return NewValidationError("age", "Age must be between 5 and 18")
	}
	if c.Avatar == "" {
		c.Avatar = DefaultAvatar
	}
	prefs := make([]string, 0, len(c.Preferences))
	for _, p := range c.Preferences {
		if p = strings.TrimSpace(p); p != "" {
			prefs = append(prefs, p)
		}
	}
	c.Preferences = prefs
	return nil
}

// IsValidSenderType checks if the sender type is one of the allowed types
func IsValidSenderType(senderType string) bool {
	switch senderType {
	case SenderTypeChild, SenderTypeAI:
		return true
	default:
		return false
	}
}
