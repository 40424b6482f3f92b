package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"lessonchat/pkg/types"
)

// ErrInvalidEnvelope is returned for frames that are not an event envelope
var ErrInvalidEnvelope = types.NewValidationError("event", "Invalid event payload")

// ARCHITECTURAL DISCOVERY: Payload shape is checked against a fixed schema
// per event before decoding, so handlers only ever see well-typed events.
// Content length and trimming stay with the message validation rules.
var schemaSources = map[string]string{
	EventJoinLesson: `{
		"type": "object",
		"required": ["sessionId", "userId"],
		"properties": {
			"sessionId": {"type": "string", "minLength": 1},
			"userId": {"type": "string", "minLength": 1}
		}
	}`,
	EventSendMessage: `{
		"type": "object",
		"required": ["sessionId", "senderId", "senderName", "senderType", "content"],
		"properties": {
			"sessionId": {"type": "string", "minLength": 1},
			"senderId": {"type": "string"},
			"senderName": {"type": "string"},
			"senderType": {"type": "string", "enum": ["child", "ai"]},
			"content": {"type": "string"}
		}
	}`,
	EventChangeStep: `{
		"type": "object",
		"required": ["sessionId", "newStep"],
		"properties": {
			"sessionId": {"type": "string", "minLength": 1},
			"newStep": {"type": "integer", "minimum": 0}
		}
	}`,
	EventChangeSpeaker: `{
		"type": "object",
		"required": ["sessionId"],
		"properties": {
			"sessionId": {"type": "string", "minLength": 1},
			"speakerId": {"type": ["string", "null"]}
		}
	}`,
}

// reasons overrides schema descriptions with the messages clients already know
var reasons = map[string]string{
	"newStep:number_gte":   types.ErrNegativeStep.Reason,
	"senderType:enum":      types.ErrInvalidSenderType.Reason,
	"sessionId:string_gte": types.ErrSessionIDRequired.Reason,
	"userId:string_gte":    types.ErrUserIDRequired.Reason,
}

var schemas = compileSchemas()

func compileSchemas() map[string]*gojsonschema.Schema {
	compiled := make(map[string]*gojsonschema.Schema, len(schemaSources))
	for event, source := range schemaSources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
		if err != nil {
			panic(fmt.Sprintf("protocol: invalid schema for %s: %v", event, err))
		}
		compiled[event] = schema
	}
	return compiled
}

// Decode parses one inbound frame into its typed event.
// Every failure is a *types.ValidationError.
func Decode(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrInvalidEnvelope
	}

	schema, ok := schemas[env.Event]
	if !ok {
		return nil, types.NewValidationError("event", fmt.Sprintf("Unknown event: %s", env.Event))
	}

	data := []byte(env.Data)
	if len(data) == 0 || string(data) == "null" {
		data = []byte("{}")
	}
	if err := validate(schema, data); err != nil {
		return nil, err
	}

	var (
		event Inbound
		err   error
	)
	switch env.Event {
	case EventJoinLesson:
		var e JoinLesson
		err = json.Unmarshal(data, &e)
		event = e
	case EventSendMessage:
		var e SendMessage
		err = json.Unmarshal(data, &e)
		event = e
	case EventChangeStep:
		var e ChangeStep
		err = json.Unmarshal(data, &e)
		event = e
	case EventChangeSpeaker:
		var e ChangeSpeaker
		err = json.Unmarshal(data, &e)
		// a blank speaker clears, same as null
		if e.SpeakerID != nil && strings.TrimSpace(*e.SpeakerID) == "" {
			e.SpeakerID = nil
		}
		event = e
	}
	if err != nil {
		return nil, ErrInvalidEnvelope
	}
	return event, nil
}

func validate(schema *gojsonschema.Schema, data []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return ErrInvalidEnvelope
	}
	if result.Valid() {
		return nil
	}

	// first error wins; clients show a single message
	first := result.Errors()[0]
	field := strings.TrimPrefix(first.Field(), "(root).")
	if first.Type() == "required" {
		if property, ok := first.Details()["property"].(string); ok {
			return types.NewValidationError(property, property+" is required")
		}
	}
	if reason, ok := reasons[field+":"+first.Type()]; ok {
		return types.NewValidationError(field, reason)
	}
	return types.NewValidationError(field, first.Description())
}
