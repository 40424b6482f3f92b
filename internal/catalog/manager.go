package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lessonchat/internal/logger"
	"lessonchat/pkg/interfaces"
	"lessonchat/pkg/types"
)

// Manager serves lesson and child CRUD over the catalog repository.
type Manager struct {
	repo interfaces.CatalogRepository
	now  func() time.Time
}

// NewManager returns a Manager backed by repo.
func NewManager(repo interfaces.CatalogRepository) *Manager {
	return &Manager{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateLesson validates and stores a new active lesson.
func (m *Manager) CreateLesson(ctx context.Context, lesson *types.Lesson) (*types.Lesson, error) {
	if err := lesson.Normalize(); err != nil {
		return nil, err
	}
	if err := m.checkParticipants(ctx, lesson.Participants); err != nil {
		return nil, err
	}

	now := m.now()
	lesson.ID = uuid.New().String()
	lesson.IsActive = true
	lesson.CreatedAt = now
	lesson.UpdatedAt = now

	if err := m.repo.CreateLesson(ctx, lesson); err != nil {
		return nil, fmt.Errorf("failed to create lesson: %w", err)
	}
	logger.Info("lesson_created", "lesson_id", lesson.ID, "steps", len(lesson.Steps))
	return lesson, nil
}

// GetLesson returns a lesson, including soft-deleted ones that sessions still reference.
func (m *Manager) GetLesson(ctx context.Context, lessonID string) (*types.Lesson, error) {
	return m.repo.GetLesson(ctx, lessonID)
}

// ListLessons returns active lessons newest first.
func (m *Manager) ListLessons(ctx context.Context) ([]*types.Lesson, error) {
	return m.repo.ListLessons(ctx, true)
}

// UpdateLesson replaces the editable fields of an existing lesson.
func (m *Manager) UpdateLesson(ctx context.Context, lessonID string, lesson *types.Lesson) (*types.Lesson, error) {
	existing, err := m.repo.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if err := lesson.Normalize(); err != nil {
		return nil, err
	}
	if err := m.checkParticipants(ctx, lesson.Participants); err != nil {
		return nil, err
	}

	lesson.ID = existing.ID
	lesson.IsActive = existing.IsActive
	lesson.CreatedAt = existing.CreatedAt
	lesson.UpdatedAt = m.now()

	if err := m.repo.UpdateLesson(ctx, lesson); err != nil {
		return nil, err
	}
	return lesson, nil
}

// DeleteLesson soft-deletes a lesson.
func (m *Manager) DeleteLesson(ctx context.Context, lessonID string) error {
	if err := m.repo.DeactivateLesson(ctx, lessonID, m.now()); err != nil {
		return err
	}
	logger.Info("lesson_deactivated", "lesson_id", lessonID)
	return nil
}

// CreateChild validates and stores a child profile.
func (m *Manager) CreateChild(ctx context.Context, child *types.Child) (*types.Child, error) {
	if err := child.Normalize(); err != nil {
		return nil, err
	}

	now := m.now()
	child.ID = uuid.New().String()
	child.CreatedAt = now
	child.UpdatedAt = now

	if err := m.repo.CreateChild(ctx, child); err != nil {
		return nil, fmt.Errorf("failed to create child: %w", err)
	}
	logger.Info("child_created", "child_id", child.ID)
	return child, nil
}

// GetChild returns a child profile.
func (m *Manager) GetChild(ctx context.Context, childID string) (*types.Child, error) {
	return m.repo.GetChild(ctx, childID)
}

// ListChildren returns every child sorted by name.
func (m *Manager) ListChildren(ctx context.Context) ([]*types.Child, error) {
	return m.repo.ListChildren(ctx)
}

// UpdateChild replaces the editable fields of an existing child.
func (m *Manager) UpdateChild(ctx context.Context, childID string, child *types.Child) (*types.Child, error) {
	existing, err := m.repo.GetChild(ctx, childID)
	if err != nil {
		return nil, err
	}
	if err := child.Normalize(); err != nil {
		return nil, err
	}

	child.ID = existing.ID
	child.CreatedAt = existing.CreatedAt
	child.UpdatedAt = m.now()

	if err := m.repo.UpdateChild(ctx, child); err != nil {
		return nil, err
	}
	return child, nil
}

// DeleteChild removes a child profile.
func (m *Manager) DeleteChild(ctx context.Context, childID string) error {
	if err := m.repo.DeleteChild(ctx, childID); err != nil {
		return err
	}
	logger.Info("child_deleted", "child_id", childID)
	return nil
}

func (m *Manager) checkParticipants(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	missing, err := m.repo.MissingChildren(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to resolve participants: %w", err)
	}
	if len(missing) > 0 {
		return types.ErrUnknownParticipants
	}
	return nil
}
