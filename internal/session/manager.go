package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"lessonchat/internal/logger"
	"lessonchat/pkg/interfaces"
	"lessonchat/pkg/types"
)

// Manager implements the SessionManager interface on top of the database manager
type Manager struct {
	dbManager interfaces.DatabaseManager
	now       func() time.Time
}

// NewManager creates a new session manager
func NewManager(dbManager interfaces.DatabaseManager) *Manager {
	return &Manager{
		dbManager: dbManager,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession creates a new session for lessonID.
// FUNCTIONAL DISCOVERY: An explicit participant list must fully resolve to
// children; an empty list inherits the lesson's participants unchecked
func (m *Manager) CreateSession(ctx context.Context, lessonID string, participants []string) (*types.Session, error) {
	lessonID = strings.TrimSpace(lessonID)
	if lessonID == "" {
		return nil, types.ErrLessonIDRequired
	}

	lesson, err := m.dbManager.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}

	participants = removeDuplicates(participants)
	if len(participants) > 0 {
		missing, err := m.dbManager.MissingChildren(ctx, participants)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve participants: %w", err)
		}
		if len(missing) > 0 {
			logger.Debug("session_create_unknown_participants", "lesson_id", lessonID, "missing", missing)
			return nil, types.ErrUnknownParticipants
		}
	} else {
		participants = append([]string{}, lesson.Participants...)
	}

	now := m.now()
	session := &types.Session{
		ID:           uuid.New().String(),
		LessonID:     lesson.ID,
		Messages:     []types.Message{},
		CurrentStep:  0,
		IsActive:     true,
		StartTime:    now,
		Participants: participants,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := m.dbManager.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	logger.Info("session_created", "session_id", session.ID, "lesson_id", lesson.ID, "participants", len(participants))
	return session, nil
}

// GetSession retrieves a session by ID
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	return m.dbManager.GetSession(ctx, sessionID)
}

// ListSessions returns sessions newest first
func (m *Manager) ListSessions(ctx context.Context, activeOnly bool) ([]*types.Session, error) {
	return m.dbManager.ListSessions(ctx, activeOnly)
}

// AppendMessage validates input and appends it as a new message.
// Caller-supplied ids and timestamps are never accepted.
func (m *Manager) AppendMessage(ctx context.Context, sessionID string, input types.MessageInput) (*types.Session, *types.Message, error) {
	if err := input.Normalize(); err != nil {
		return nil, nil, err
	}

	message := &types.Message{
		ID:         uuid.New().String(),
		SenderID:   input.SenderID,
		SenderName: input.SenderName,
		SenderType: input.SenderType,
		Content:    input.Content,
		Timestamp:  m.now(),
		Reactions:  []string{},
	}

	session, err := m.dbManager.AppendMessage(ctx, sessionID, message)
	if err != nil {
		return nil, nil, err
	}
	return session, message, nil
}

// PatchSession applies a partial update. An empty patch returns the current state.
func (m *Manager) PatchSession(ctx context.Context, sessionID string, patch types.SessionPatch) (*types.Session, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return m.dbManager.GetSession(ctx, sessionID)
	}

	session, err := m.dbManager.PatchSession(ctx, sessionID, patch, m.now())
	if err != nil {
		return nil, err
	}
	if patch.IsActive != nil && !*patch.IsActive {
		logger.Info("session_ended", "session_id", sessionID, "end_time", session.EndTime)
	}
	return session, nil
}

// DeleteSession removes a session and its transcript
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	if err := m.dbManager.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	logger.Info("session_deleted", "session_id", sessionID)
	return nil
}

// removeDuplicates keeps the first occurrence of each non-empty id
func removeDuplicates(ids []string) []string {
	seen := make(map[string]bool)
	unique := make([]string, 0, len(ids))

	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	return unique
}
