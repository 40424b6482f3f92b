package types

import (
	"encoding/json"
	"strings"
	"time"
)

// Sender types accepted on a message
const (
	SenderTypeChild = "child"
	SenderTypeAI    = "ai"
)

// DefaultAvatar is assigned to children created without an avatar
const DefaultAvatar = "/api/placeholder/100/100"

// Session is a single run of a lesson and the transcript produced during it.
// FUNCTIONAL DISCOVERY: ID, LessonID and Participants never change after
// creation. Messages only grow and IsActive only moves from true to false.
type Session struct {
	ID             string     `json:"id"`
	LessonID       string     `json:"lessonId"`
	Messages       []Message  `json:"messages"`
	CurrentStep    int        `json:"currentStep"`
	CurrentSpeaker *string    `json:"currentSpeaker"`
	IsActive       bool       `json:"isActive"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	Participants   []string   `json:"participants"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Message is one transcript entry.
// ARCHITECTURAL DISCOVERY: Seq is the per-session ordering key assigned by
// storage at append time, ID is globally unique and never taken from callers
type Message struct {
	ID         string    `json:"id"`
	Seq        int64     `json:"seq"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	SenderType string    `json:"senderType"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Reactions  []string  `json:"reactions"`
}

// MessageInput carries the caller-supplied fields of a new message
type MessageInput struct {
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	SenderType string `json:"senderType"`
	Content    string `json:"content"`
}

// SessionPatch is a partial update of the mutable session fields.
// CurrentSpeaker is tri-state: SpeakerSet false leaves it untouched,
// SpeakerSet true with a nil CurrentSpeaker clears it.
type SessionPatch struct {
	CurrentStep    *int
	CurrentSpeaker *string
	SpeakerSet     bool
	IsActive       *bool
}

// IsEmpty reports whether the patch changes nothing
func (p SessionPatch) IsEmpty() bool {
	return p.CurrentStep == nil && !p.SpeakerSet && p.IsActive == nil
}

// UnmarshalJSON distinguishes an absent currentSpeaker from an explicit null
func (p *SessionPatch) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = SessionPatch{}
	if v, ok := raw["currentStep"]; ok && string(v) != "null" {
		var step int
		if err := json.Unmarshal(v, &step); err != nil {
			return &ValidationError{Field: "currentStep", Reason: "currentStep must be an integer"}
		}
		p.CurrentStep = &step
	}
	if v, ok := raw["currentSpeaker"]; ok {
		p.SpeakerSet = true
		if string(v) != "null" {
			var speaker string
			if err := json.Unmarshal(v, &speaker); err != nil {
				return &ValidationError{Field: "currentSpeaker", Reason: "currentSpeaker must be a string or null"}
			}
			// blank clears like null
			if strings.TrimSpace(speaker) != "" {
				p.CurrentSpeaker = &speaker
			}
		}
	}
	if v, ok := raw["isActive"]; ok && string(v) != "null" {
		var active bool
		if err := json.Unmarshal(v, &active); err != nil {
			return &ValidationError{Field: "isActive", Reason: "isActive must be a boolean"}
		}
		p.IsActive = &active
	}
	return nil
}

// Step is one stage of a lesson script
type Step struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	AIPrompt          string   `json:"aiPrompt"`
	ExpectedResponses []string `json:"expectedResponses,omitempty"`
	Duration          int      `json:"duration,omitempty"`
}

// Lesson is a scripted activity that sessions are created from
type Lesson struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Subject      string    `json:"subject"`
	TargetAge    int       `json:"targetAge"`
	Description  string    `json:"description"`
	Steps        []Step    `json:"steps"`
	Participants []string  `json:"participants"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Child is a participant profile
type Child struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Avatar      string    `json:"avatar"`
	Personality string    `json:"personality"`
	Age         *int      `json:"age,omitempty"`
	Preferences []string  `json:"preferences"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
