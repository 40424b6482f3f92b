package interfaces

import (
	"context"
	"time"

	"lessonchat/pkg/types"
)

// SessionRepository persists sessions and their transcripts
// ARCHITECTURAL DISCOVERY: Append and patch are single storage operations so
// the read-modify-write of a session never happens in application code
type SessionRepository interface {
	// CreateSession inserts a new session row
	CreateSession(ctx context.Context, session *types.Session) error

	// GetSession loads a session with its messages ordered by seq
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)

	// ListSessions returns sessions newest first without their messages
	ListSessions(ctx context.Context, activeOnly bool) ([]*types.Session, error)

	// AppendMessage assigns the next seq to message inside one transaction
	// and returns the updated session
	AppendMessage(ctx context.Context, sessionID string, message *types.Message) (*types.Session, error)

	// PatchSession applies the set fields of patch. Ending a session stamps
	// endTime with now only if it is still unset.
	PatchSession(ctx context.Context, sessionID string, patch types.SessionPatch, now time.Time) (*types.Session, error)

	// DeleteSession removes a session and its messages
	DeleteSession(ctx context.Context, sessionID string) error
}

// CatalogRepository persists lessons and children
type CatalogRepository interface {
	CreateLesson(ctx context.Context, lesson *types.Lesson) error
	GetLesson(ctx context.Context, lessonID string) (*types.Lesson, error)
	ListLessons(ctx context.Context, activeOnly bool) ([]*types.Lesson, error)
	UpdateLesson(ctx context.Context, lesson *types.Lesson) error
	DeactivateLesson(ctx context.Context, lessonID string, now time.Time) error

	CreateChild(ctx context.Context, child *types.Child) error
	GetChild(ctx context.Context, childID string) (*types.Child, error)
	ListChildren(ctx context.Context) ([]*types.Child, error)
	UpdateChild(ctx context.Context, child *types.Child) error
	DeleteChild(ctx context.Context, childID string) error

	// MissingChildren returns the ids from childIDs that do not resolve
	MissingChildren(ctx context.Context, childIDs []string) ([]string, error)
}

// DatabaseManager handles all database operations
// FUNCTIONAL DISCOVERY: Health and lifecycle live next to data operations so
// the health endpoint and shutdown path need only one dependency
type DatabaseManager interface {
	SessionRepository
	CatalogRepository

	// HealthCheck verifies database connectivity and basic operations
	HealthCheck(ctx context.Context) error

	// Close drains pending writes and closes the database
	Close() error
}
