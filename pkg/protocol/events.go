// Package protocol defines the real-time event envelope exchanged over
// /ws and the typed payload of every inbound and outbound event.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"lessonchat/pkg/types"
)

// Inbound event names
const (
	EventJoinLesson    = "join-lesson"
	EventSendMessage   = "send-message"
	EventChangeStep    = "change-step"
	EventChangeSpeaker = "change-speaker"
)

// Outbound event names
const (
	EventSessionState   = "session-state"
	EventUserJoined     = "user-joined"
	EventNewMessage     = "new-message"
	EventStepChanged    = "step-changed"
	EventSpeakerChanged = "speaker-changed"
	EventUserLeft       = "user-left"
	EventError          = "error"
	EventSessionEnded   = "session-ended"
	EventSessionDeleted = "session-deleted"
)

// Envelope is one inbound text frame
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is one outbound text frame
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Inbound is implemented by every decoded client event
type Inbound interface {
	// Name returns the wire event name
	Name() string
	// Session returns the session the event targets
	Session() string
}

// JoinLesson subscribes a connection to a session room
type JoinLesson struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

func (JoinLesson) Name() string      { return EventJoinLesson }
func (e JoinLesson) Session() string { return e.SessionID }

// SendMessage appends a message to the session transcript
type SendMessage struct {
	SessionID  string `json:"sessionId"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	SenderType string `json:"senderType"`
	Content    string `json:"content"`
}

func (SendMessage) Name() string      { return EventSendMessage }
func (e SendMessage) Session() string { return e.SessionID }

// Input returns the message fields in store form
func (e SendMessage) Input() types.MessageInput {
	return types.MessageInput{
		SenderID:   e.SenderID,
		SenderName: e.SenderName,
		SenderType: e.SenderType,
		Content:    e.Content,
	}
}

// ChangeStep moves the session to another lesson step
type ChangeStep struct {
	SessionID string `json:"sessionId"`
	NewStep   int    `json:"newStep"`
}

func (ChangeStep) Name() string      { return EventChangeStep }
func (e ChangeStep) Session() string { return e.SessionID }

// ChangeSpeaker sets or, with a nil SpeakerID, clears the current speaker
type ChangeSpeaker struct {
	SessionID string  `json:"sessionId"`
	SpeakerID *string `json:"speakerId"`
}

func (ChangeSpeaker) Name() string      { return EventChangeSpeaker }
func (e ChangeSpeaker) Session() string { return e.SessionID }

// PresencePayload announces a user entering or leaving a room
type PresencePayload struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type StepChangedPayload struct {
	NewStep int `json:"newStep"`
}

type SpeakerChangedPayload struct {
	SpeakerID *string `json:"speakerId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type SessionEndedPayload struct {
	SessionID string    `json:"sessionId"`
	EndTime   time.Time `json:"endTime"`
}

type SessionDeletedPayload struct {
	SessionID string `json:"sessionId"`
}

// SessionState carries the full session snapshot to a joiner
func SessionState(session *types.Session) Event {
	return Event{Event: EventSessionState, Data: session}
}

func UserJoined(userID string) Event {
	return Event{Event: EventUserJoined, Data: PresencePayload{
		UserID:  userID,
		Message: fmt.Sprintf("User %s joined the lesson", userID),
	}}
}

func UserLeft(userID string) Event {
	return Event{Event: EventUserLeft, Data: PresencePayload{
		UserID:  userID,
		Message: fmt.Sprintf("User %s left the lesson", userID),
	}}
}

func NewMessage(message *types.Message) Event {
	return Event{Event: EventNewMessage, Data: message}
}

func StepChanged(step int) Event {
	return Event{Event: EventStepChanged, Data: StepChangedPayload{NewStep: step}}
}

func SpeakerChanged(speakerID *string) Event {
	return Event{Event: EventSpeakerChanged, Data: SpeakerChangedPayload{SpeakerID: speakerID}}
}

// Error is sent only to the connection whose event failed
func Error(message string) Event {
	return Event{Event: EventError, Data: ErrorPayload{Message: message}}
}

func SessionEnded(sessionID string, endTime time.Time) Event {
	return Event{Event: EventSessionEnded, Data: SessionEndedPayload{SessionID: sessionID, EndTime: endTime}}
}

func SessionDeleted(sessionID string) Event {
	return Event{Event: EventSessionDeleted, Data: SessionDeletedPayload{SessionID: sessionID}}
}
