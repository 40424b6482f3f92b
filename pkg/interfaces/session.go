package interfaces

import (
	"context"

	"lessonchat/pkg/types"
)

// SessionManager is the Session Store used by the relay and the REST API
// ARCHITECTURAL DISCOVERY: Context-first design ensures cancellation and
// timeouts reach the single database writer
type SessionManager interface {
	// CreateSession starts a session for lessonID. Empty participants are
	// copied from the lesson.
	CreateSession(ctx context.Context, lessonID string, participants []string) (*types.Session, error)

	GetSession(ctx context.Context, sessionID string) (*types.Session, error)

	ListSessions(ctx context.Context, activeOnly bool) ([]*types.Session, error)

	// AppendMessage validates the input, assigns id and timestamp, and appends it
	AppendMessage(ctx context.Context, sessionID string, input types.MessageInput) (*types.Session, *types.Message, error)

	PatchSession(ctx context.Context, sessionID string, patch types.SessionPatch) (*types.Session, error)

	DeleteSession(ctx context.Context, sessionID string) error
}

// CatalogManager serves lesson and child CRUD
type CatalogManager interface {
	CreateLesson(ctx context.Context, lesson *types.Lesson) (*types.Lesson, error)
	GetLesson(ctx context.Context, lessonID string) (*types.Lesson, error)
	ListLessons(ctx context.Context) ([]*types.Lesson, error)
	UpdateLesson(ctx context.Context, lessonID string, lesson *types.Lesson) (*types.Lesson, error)
	DeleteLesson(ctx context.Context, lessonID string) error

	CreateChild(ctx context.Context, child *types.Child) (*types.Child, error)
	GetChild(ctx context.Context, childID string) (*types.Child, error)
	ListChildren(ctx context.Context) ([]*types.Child, error)
	UpdateChild(ctx context.Context, childID string, child *types.Child) (*types.Child, error)
	DeleteChild(ctx context.Context, childID string) error
}
