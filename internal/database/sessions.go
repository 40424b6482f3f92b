package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"lessonchat/pkg/interfaces"
	"lessonchat/pkg/types"
)

const sessionColumns = `id, lesson_id, current_step, current_speaker, is_active,
	start_time, end_time, participants, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// CreateSession creates a new session in the database
func (m *Manager) CreateSession(ctx context.Context, session *types.Session) error {
	participantsJSON, err := json.Marshal(nonNil(session.Participants))
	if err != nil {
		return fmt.Errorf("failed to marshal participants: %w", err)
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO sessions (id, lesson_id, current_step, current_speaker, is_active,
				start_time, end_time, participants, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			session.ID,
			session.LessonID,
			session.CurrentStep,
			session.CurrentSpeaker,
			session.IsActive,
			session.StartTime,
			session.EndTime,
			string(participantsJSON),
			session.CreatedAt,
			session.UpdatedAt,
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return interfaces.ErrLessonNotFound
			}
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

// GetSession retrieves a session and its transcript
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	// ARCHITECTURAL DISCOVERY: Read operations can be concurrent - no need for writeChannel
	row := m.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	messages, err := m.getMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.Messages = messages
	return session, nil
}

// ListSessions returns sessions ordered by start_time DESC, without transcripts
func (m *Manager) ListSessions(ctx context.Context, activeOnly bool) ([]*types.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY start_time DESC, rowid DESC`

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := []*types.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		session.Messages = []types.Message{}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return sessions, nil
}

// AppendMessage stores message as the newest entry of the session transcript
// FUNCTIONAL DISCOVERY: seq is computed inside the write transaction, so two
// appends to one session can never receive the same position
func (m *Manager) AppendMessage(ctx context.Context, sessionID string, message *types.Message) (*types.Session, error) {
	reactionsJSON, err := json.Marshal(nonNil(message.Reactions))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reactions: %w", err)
	}

	err = m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var seq int64
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE((SELECT MAX(seq) FROM messages WHERE session_id = s.id), 0) + 1
			FROM sessions s WHERE s.id = ?
		`, sessionID).Scan(&seq)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return interfaces.ErrSessionNotFound
			}
			return fmt.Errorf("failed to compute message seq: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (id, session_id, seq, sender_id, sender_name, sender_type, content, timestamp, reactions)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			message.ID,
			sessionID,
			seq,
			message.SenderID,
			message.SenderName,
			message.SenderType,
			message.Content,
			message.Timestamp,
			string(reactionsJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		if _, err = tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, message.Timestamp, sessionID); err != nil {
			return fmt.Errorf("failed to touch session: %w", err)
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit message append: %w", err)
		}
		message.Seq = seq
		return nil
	})
	if err != nil {
		return nil, err
	}

	return m.GetSession(ctx, sessionID)
}

// PatchSession applies the set fields of patch in one statement
func (m *Manager) PatchSession(ctx context.Context, sessionID string, patch types.SessionPatch, now time.Time) (*types.Session, error) {
	err := m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var active bool
		if err := tx.QueryRowContext(ctx, `SELECT is_active FROM sessions WHERE id = ?`, sessionID).Scan(&active); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return interfaces.ErrSessionNotFound
			}
			return fmt.Errorf("failed to query session: %w", err)
		}

		// FUNCTIONAL DISCOVERY: isActive is monotone. Ending twice is a no-op,
		// reactivating an ended session is a conflict.
		if patch.IsActive != nil && *patch.IsActive && !active {
			return interfaces.ErrSessionEnded
		}

		sets := []string{"updated_at = ?"}
		args := []interface{}{now}
		if patch.CurrentStep != nil {
			sets = append(sets, "current_step = ?")
			args = append(args, *patch.CurrentStep)
		}
		if patch.SpeakerSet {
			sets = append(sets, "current_speaker = ?")
			args = append(args, patch.CurrentSpeaker)
		}
		if patch.IsActive != nil && !*patch.IsActive {
			sets = append(sets, "is_active = 0", "end_time = COALESCE(end_time, ?)")
			args = append(args, now)
		}
		args = append(args, sessionID)

		query := `UPDATE sessions SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit session update: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return m.GetSession(ctx, sessionID)
}

// DeleteSession removes a session; messages cascade
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
		if err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			return interfaces.ErrSessionNotFound
		}
		return nil
	})
}

func (m *Manager) getMessages(ctx context.Context, sessionID string) ([]types.Message, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, seq, sender_id, sender_name, sender_type, content, timestamp, reactions
		FROM messages
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := []types.Message{}
	for rows.Next() {
		var msg types.Message
		var reactionsJSON string
		if err := rows.Scan(
			&msg.ID,
			&msg.Seq,
			&msg.SenderID,
			&msg.SenderName,
			&msg.SenderType,
			&msg.Content,
			&msg.Timestamp,
			&reactionsJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		if err := json.Unmarshal([]byte(reactionsJSON), &msg.Reactions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reactions: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}

func scanSession(row rowScanner) (*types.Session, error) {
	var session types.Session
	var speaker sql.NullString
	var endTime sql.NullTime
	var participantsJSON string

	err := row.Scan(
		&session.ID,
		&session.LessonID,
		&session.CurrentStep,
		&speaker,
		&session.IsActive,
		&session.StartTime,
		&endTime,
		&participantsJSON,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if speaker.Valid {
		session.CurrentSpeaker = &speaker.String
	}
	if endTime.Valid {
		session.EndTime = &endTime.Time
	}
	if err := json.Unmarshal([]byte(participantsJSON), &session.Participants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participants: %w", err)
	}
	return &session, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
