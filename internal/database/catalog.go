package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"lessonchat/pkg/interfaces"
	"lessonchat/pkg/types"
)

const lessonColumns = `id, title, subject, target_age, description, steps, participants, is_active, created_at, updated_at`

const childColumns = `id, name, avatar, personality, age, preferences, created_at, updated_at`

// CreateLesson inserts a lesson
func (m *Manager) CreateLesson(ctx context.Context, lesson *types.Lesson) error {
	stepsJSON, participantsJSON, err := marshalLesson(lesson)
	if err != nil {
		return err
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO lessons (`+lessonColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			lesson.ID,
			lesson.Title,
			lesson.Subject,
			lesson.TargetAge,
			lesson.Description,
			stepsJSON,
			participantsJSON,
			lesson.IsActive,
			lesson.CreatedAt,
			lesson.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert lesson: %w", err)
		}
		return nil
	})
}

// GetLesson retrieves a lesson by ID, including soft-deleted lessons
func (m *Manager) GetLesson(ctx context.Context, lessonID string) (*types.Lesson, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE id = ?`, lessonID)
	lesson, err := scanLesson(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrLessonNotFound
		}
		return nil, fmt.Errorf("failed to query lesson: %w", err)
	}
	return lesson, nil
}

// ListLessons returns lessons newest first
func (m *Manager) ListLessons(ctx context.Context, activeOnly bool) ([]*types.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query lessons: %w", err)
	}
	defer func() { _ = rows.Close() }()

	lessons := []*types.Lesson{}
	for rows.Next() {
		lesson, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lesson row: %w", err)
		}
		lessons = append(lessons, lesson)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lesson rows: %w", err)
	}
	return lessons, nil
}

// UpdateLesson replaces the editable lesson fields
func (m *Manager) UpdateLesson(ctx context.Context, lesson *types.Lesson) error {
	stepsJSON, participantsJSON, err := marshalLesson(lesson)
	if err != nil {
		return err
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			UPDATE lessons
			SET title = ?, subject = ?, target_age = ?, description = ?, steps = ?,
				participants = ?, is_active = ?, updated_at = ?
			WHERE id = ?
		`,
			lesson.Title,
			lesson.Subject,
			lesson.TargetAge,
			lesson.Description,
			stepsJSON,
			participantsJSON,
			lesson.IsActive,
			lesson.UpdatedAt,
			lesson.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update lesson: %w", err)
		}
		return requireAffected(res, interfaces.ErrLessonNotFound)
	})
}

// DeactivateLesson soft-deletes a lesson. Existing sessions keep referencing it.
func (m *Manager) DeactivateLesson(ctx context.Context, lessonID string, now time.Time) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `UPDATE lessons SET is_active = 0, updated_at = ? WHERE id = ?`, now, lessonID)
		if err != nil {
			return fmt.Errorf("failed to deactivate lesson: %w", err)
		}
		return requireAffected(res, interfaces.ErrLessonNotFound)
	})
}

// CreateChild inserts a child profile
func (m *Manager) CreateChild(ctx context.Context, child *types.Child) error {
	prefsJSON, err := json.Marshal(nonNil(child.Preferences))
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO children (`+childColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			child.ID,
			child.Name,
			child.Avatar,
			child.Personality,
			child.Age,
			string(prefsJSON),
			child.CreatedAt,
			child.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert child: %w", err)
		}
		return nil
	})
}

// GetChild retrieves a child by ID
func (m *Manager) GetChild(ctx context.Context, childID string) (*types.Child, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+childColumns+` FROM children WHERE id = ?`, childID)
	child, err := scanChild(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrChildNotFound
		}
		return nil, fmt.Errorf("failed to query child: %w", err)
	}
	return child, nil
}

// ListChildren returns all children sorted by name
func (m *Manager) ListChildren(ctx context.Context) ([]*types.Child, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT `+childColumns+` FROM children ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query children: %w", err)
	}
	defer func() { _ = rows.Close() }()

	children := []*types.Child{}
	for rows.Next() {
		child, err := scanChild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan child row: %w", err)
		}
		children = append(children, child)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating child rows: %w", err)
	}
	return children, nil
}

// UpdateChild replaces the editable child fields
func (m *Manager) UpdateChild(ctx context.Context, child *types.Child) error {
	prefsJSON, err := json.Marshal(nonNil(child.Preferences))
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			UPDATE children
			SET name = ?, avatar = ?, personality = ?, age = ?, preferences = ?, updated_at = ?
			WHERE id = ?
		`,
			child.Name,
			child.Avatar,
			child.Personality,
			child.Age,
			string(prefsJSON),
			child.UpdatedAt,
			child.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update child: %w", err)
		}
		return requireAffected(res, interfaces.ErrChildNotFound)
	})
}

// DeleteChild removes a child profile. Sessions and lessons keep the stale id.
func (m *Manager) DeleteChild(ctx context.Context, childID string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `DELETE FROM children WHERE id = ?`, childID)
		if err != nil {
			return fmt.Errorf("failed to delete child: %w", err)
		}
		return requireAffected(res, interfaces.ErrChildNotFound)
	})
}

// MissingChildren returns the subset of childIDs with no matching row
func (m *Manager) MissingChildren(ctx context.Context, childIDs []string) ([]string, error) {
	missing := []string{}
	if len(childIDs) == 0 {
		return missing, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(childIDs)), ",")
	args := make([]interface{}, len(childIDs))
	for i, id := range childIDs {
		args[i] = id
	}

	rows, err := m.db.QueryContext(ctx, `SELECT id FROM children WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query children: %w", err)
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]bool, len(childIDs))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan child id: %w", err)
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating child ids: %w", err)
	}

	for _, id := range childIDs {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func marshalLesson(lesson *types.Lesson) (string, string, error) {
	steps := lesson.Steps
	if steps == nil {
		steps = []types.Step{}
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal steps: %w", err)
	}
	participantsJSON, err := json.Marshal(nonNil(lesson.Participants))
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal participants: %w", err)
	}
	return string(stepsJSON), string(participantsJSON), nil
}

func scanLesson(row rowScanner) (*types.Lesson, error) {
	var lesson types.Lesson
	var stepsJSON, participantsJSON string

	err := row.Scan(
		&lesson.ID,
		&lesson.Title,
		&lesson.Subject,
		&lesson.TargetAge,
		&lesson.Description,
		&stepsJSON,
		&participantsJSON,
		&lesson.IsActive,
		&lesson.CreatedAt,
		&lesson.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(stepsJSON), &lesson.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}
	if err := json.Unmarshal([]byte(participantsJSON), &lesson.Participants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participants: %w", err)
	}
	return &lesson, nil
}

func scanChild(row rowScanner) (*types.Child, error) {
	var child types.Child
	var age sql.NullInt64
	var prefsJSON string

	err := row.Scan(
		&child.ID,
		&child.Name,
		&child.Avatar,
		&child.Personality,
		&age,
		&prefsJSON,
		&child.CreatedAt,
		&child.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if age.Valid {
		a := int(age.Int64)
		child.Age = &a
	}
	if err := json.Unmarshal([]byte(prefsJSON), &child.Preferences); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preferences: %w", err)
	}
	return &child, nil
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}
