// Package relay applies session events and fans the results out to session rooms.
package relay

import (
	"context"
	"errors"

	"lessonchat/internal/hub"
	"lessonchat/internal/logger"
	"lessonchat/internal/metrics"
	"lessonchat/pkg/interfaces"
	"lessonchat/pkg/protocol"
	"lessonchat/pkg/types"
)

// Lanes runs work for one session at a time
type Lanes interface {
	Do(ctx context.Context, sessionID string, fn func(context.Context) error) error
}

// Event names used for REST-originated mutations in metrics
const (
	opAppendMessage = "api-append-message"
	opPatchSession  = "api-patch-session"
	opDeleteSession = "api-delete-session"
	opDisconnect    = "disconnect"
)

// Generic client messages for unexpected failures, per inbound event
var failureMessages = map[string]string{
	protocol.EventJoinLesson:    "Error joining lesson",
	protocol.EventSendMessage:   "Error sending message",
	protocol.EventChangeStep:    "Error changing step",
	protocol.EventChangeSpeaker: "Error changing speaker",
}

// Service is the Event Relay.
// ARCHITECTURAL DISCOVERY: Socket events and REST writes share one
// validate, mutate, broadcast path. Each runs inside the session's lane, so
// the store and every subscriber observe one order per session.
type Service struct {
	sessions interfaces.SessionManager
	rooms    interfaces.RoomRegistry
	lanes    Lanes
	metrics  *metrics.Metrics
}

// NewService creates a relay. m may be nil.
func NewService(sessions interfaces.SessionManager, rooms interfaces.RoomRegistry, lanes Lanes, m *metrics.Metrics) *Service {
	return &Service{
		sessions: sessions,
		rooms:    rooms,
		lanes:    lanes,
		metrics:  m,
	}
}

// HandleEvent dispatches one decoded socket event. Failures go back to conn
// as an error event and are never broadcast.
func (s *Service) HandleEvent(ctx context.Context, conn interfaces.Connection, event protocol.Inbound) {
	var err error
	switch e := event.(type) {
	case protocol.JoinLesson:
		err = s.Join(ctx, conn, e)
	case protocol.SendMessage:
		err = s.SendMessage(ctx, e)
	case protocol.ChangeStep:
		err = s.ChangeStep(ctx, e)
	case protocol.ChangeSpeaker:
		err = s.ChangeSpeaker(ctx, e)
	default:
		err = types.NewValidationError("event", "Unknown event: "+event.Name())
	}

	s.metrics.ObserveEvent(event.Name(), outcome(err))
	if err == nil {
		return
	}

	message := clientMessage(err, event.Name())
	logger.Debug("relay_event_failed",
		"event", event.Name(),
		"session_id", event.Session(),
		"connection_id", conn.GetID(),
		"error", err)
	if werr := conn.WriteJSON(protocol.Error(message)); werr != nil {
		logger.Debug("relay_error_event_failed", "connection_id", conn.GetID(), "error", werr)
	}
}

// Join subscribes conn to the session room and sends it the current snapshot
// FUNCTIONAL DISCOVERY: Membership only changes after the session resolves,
// so a failed join leaves the connection where it was
func (s *Service) Join(ctx context.Context, conn interfaces.Connection, e protocol.JoinLesson) error {
	return s.lanes.Do(ctx, e.SessionID, func(ctx context.Context) error {
		session, err := s.sessions.GetSession(ctx, e.SessionID)
		if err != nil {
			return err
		}

		oldUser := conn.GetUserID()
		if previous := s.rooms.Join(conn, e.SessionID, e.UserID); previous != "" && oldUser != "" {
			s.rooms.Broadcast(previous, protocol.UserLeft(oldUser), conn)
		}

		s.rooms.Broadcast(e.SessionID, protocol.UserJoined(e.UserID), conn)
		if err := conn.WriteJSON(protocol.SessionState(session)); err != nil {
			logger.Warn("session_state_delivery_failed", "session_id", e.SessionID, "connection_id", conn.GetID(), "error", err)
		}

		logger.Info("user_joined", "session_id", e.SessionID, "user_id", e.UserID, "connection_id", conn.GetID())
		return nil
	})
}

// SendMessage appends a message and broadcasts it to the whole room, sender included
func (s *Service) SendMessage(ctx context.Context, e protocol.SendMessage) error {
	_, _, err := s.appendAndBroadcast(ctx, e.SessionID, e.Input())
	return err
}

// ChangeStep moves the session to e.NewStep. No upper bound is checked.
func (s *Service) ChangeStep(ctx context.Context, e protocol.ChangeStep) error {
	step := e.NewStep
	_, err := s.patchAndBroadcast(ctx, e.SessionID, types.SessionPatch{CurrentStep: &step})
	return err
}

// ChangeSpeaker sets or clears the current speaker
func (s *Service) ChangeSpeaker(ctx context.Context, e protocol.ChangeSpeaker) error {
	_, err := s.patchAndBroadcast(ctx, e.SessionID, types.SessionPatch{SpeakerSet: true, CurrentSpeaker: e.SpeakerID})
	return err
}

// Disconnect removes conn from its room and tells the rest of the room
func (s *Service) Disconnect(ctx context.Context, conn interfaces.Connection) {
	sessionID := conn.GetSessionID()
	if sessionID == "" {
		return
	}

	leave := func(context.Context) error {
		sid, userID, ok := s.rooms.Leave(conn)
		if ok && userID != "" {
			s.rooms.Broadcast(sid, protocol.UserLeft(userID), conn)
		}
		return nil
	}

	if err := s.lanes.Do(ctx, sessionID, leave); err != nil {
		// the lane is gone (shutdown) or saturated; membership must still be dropped
		logger.Debug("relay_disconnect_outside_lane", "session_id", sessionID, "error", err)
		_ = leave(ctx)
	}
	s.metrics.ObserveEvent(opDisconnect, metrics.OutcomeOK)
}

// AppendMessage is the REST path for new messages
func (s *Service) AppendMessage(ctx context.Context, sessionID string, input types.MessageInput) (*types.Session, *types.Message, error) {
	session, message, err := s.appendAndBroadcast(ctx, sessionID, input)
	s.metrics.ObserveEvent(opAppendMessage, outcome(err))
	return session, message, err
}

// PatchSession is the REST path for session updates. It broadcasts
// step-changed, speaker-changed and, when the session ends, session-ended.
func (s *Service) PatchSession(ctx context.Context, sessionID string, patch types.SessionPatch) (*types.Session, error) {
	session, err := s.patchAndBroadcast(ctx, sessionID, patch)
	s.metrics.ObserveEvent(opPatchSession, outcome(err))
	return session, err
}

// DeleteSession removes the session, notifies its room and closes it
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	err := s.lanes.Do(ctx, sessionID, func(ctx context.Context) error {
		if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
			return err
		}
		s.rooms.Broadcast(sessionID, protocol.SessionDeleted(sessionID), nil)
		s.rooms.CloseRoom(sessionID)
		logger.Info("session_deleted", "session_id", sessionID)
		return nil
	})
	s.metrics.ObserveEvent(opDeleteSession, outcome(err))
	return err
}

func (s *Service) appendAndBroadcast(ctx context.Context, sessionID string, input types.MessageInput) (*types.Session, *types.Message, error) {
	var (
		session *types.Session
		message *types.Message
	)
	err := s.lanes.Do(ctx, sessionID, func(ctx context.Context) error {
		var err error
		session, message, err = s.sessions.AppendMessage(ctx, sessionID, input)
		if err != nil {
			return err
		}
		s.rooms.Broadcast(sessionID, protocol.NewMessage(message), nil)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return session, message, nil
}

func (s *Service) patchAndBroadcast(ctx context.Context, sessionID string, patch types.SessionPatch) (*types.Session, error) {
	var session *types.Session
	err := s.lanes.Do(ctx, sessionID, func(ctx context.Context) error {
		// TECHNICAL DISCOVERY: The lane makes this read-then-write consistent,
		// so session-ended fires only on the transition
		wasActive := false
		if patch.IsActive != nil && !*patch.IsActive {
			before, err := s.sessions.GetSession(ctx, sessionID)
			if err != nil {
				return err
			}
			wasActive = before.IsActive
		}

		var err error
		session, err = s.sessions.PatchSession(ctx, sessionID, patch)
		if err != nil {
			return err
		}

		if patch.CurrentStep != nil {
			s.rooms.Broadcast(sessionID, protocol.StepChanged(session.CurrentStep), nil)
		}
		if patch.SpeakerSet {
			s.rooms.Broadcast(sessionID, protocol.SpeakerChanged(session.CurrentSpeaker), nil)
		}
		if wasActive && !session.IsActive && session.EndTime != nil {
			s.rooms.Broadcast(sessionID, protocol.SessionEnded(sessionID, *session.EndTime), nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// clientMessage picks the text an originating client sees for err
func clientMessage(err error, event string) string {
	var verr *types.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Reason
	case errors.Is(err, interfaces.ErrSessionNotFound):
		return interfaces.ErrSessionNotFound.Error()
	case errors.Is(err, interfaces.ErrSessionEnded):
		return "Session has ended"
	case errors.Is(err, hub.ErrLaneFull):
		return "Session is busy, try again"
	}

	logger.Error("relay_event_error", "event", event, "error", err)
	if msg, ok := failureMessages[event]; ok {
		return msg
	}
	return "Internal error"
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, types.ErrValidation):
		return metrics.OutcomeInvalid
	case interfaces.IsNotFound(err):
		return metrics.OutcomeNotFound
	case errors.Is(err, interfaces.ErrSessionEnded):
		return metrics.OutcomeConflict
	case errors.Is(err, hub.ErrLaneFull):
		return metrics.OutcomeOverloaded
	default:
		return metrics.OutcomeError
	}
}
