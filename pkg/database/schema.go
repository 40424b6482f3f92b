package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator provides database schema validation functionality
// ARCHITECTURAL DISCOVERY: Separate validation component lets startup verify
// the embedded migrations produced the structure the repositories expect
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// Validate runs every structural check
func (v *SchemaValidator) Validate() error {
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	if err := v.ValidateTableStructure(); err != nil {
		return err
	}
	return v.ValidateIndexes()
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"lessons":           "Lesson catalog",
		"children":          "Child profiles",
		"sessions":          "Session state",
		"messages":          "Session transcripts",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.exists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}
	return nil
}

// ValidateTableStructure verifies table column structure matches expectations
// TECHNICAL DISCOVERY: Column validation ensures type compatibility between
// Go structs and database schema
func (v *SchemaValidator) ValidateTableStructure() error {
	expected := map[string]map[string]string{
		"sessions": {
			"id":              "TEXT",
			"lesson_id":       "TEXT",
			"current_step":    "INTEGER",
			"current_speaker": "TEXT",
			"is_active":       "INTEGER",
			"start_time":      "DATETIME",
			"end_time":        "DATETIME",
			"participants":    "TEXT",
		},
		"messages": {
			"id":          "TEXT",
			"session_id":  "TEXT",
			"seq":         "INTEGER",
			"sender_id":   "TEXT",
			"sender_name": "TEXT",
			"sender_type": "TEXT",
			"content":     "TEXT",
			"timestamp":   "DATETIME",
			"reactions":   "TEXT",
		},
		"lessons": {
			"id":         "TEXT",
			"title":      "TEXT",
			"target_age": "INTEGER",
			"steps":      "TEXT",
			"is_active":  "INTEGER",
		},
		"children": {
			"id":          "TEXT",
			"name":        "TEXT",
			"age":         "INTEGER",
			"preferences": "TEXT",
		},
	}

	for table, columns := range expected {
		if err := v.validateColumns(table, columns); err != nil {
			return fmt.Errorf("%s table structure invalid: %w", table, err)
		}
	}
	return nil
}

// ValidateIndexes verifies that all performance indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_sessions_lesson":      "Sessions by lesson",
		"idx_sessions_active":      "Active session filter",
		"idx_sessions_start_time":  "Newest-first listing",
		"idx_messages_session_seq": "Transcript ordering",
		"idx_lessons_active":       "Active lesson filter",
		"idx_children_name":        "Children by name",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.exists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}
	return nil
}

// ValidateConstraints verifies that foreign keys and checks are enforced
// on the connection the validator holds
func (v *SchemaValidator) ValidateConstraints() error {
	_, err := v.db.Exec(`
		INSERT INTO messages (id, session_id, seq, sender_id, sender_name, sender_type, content, timestamp)
		VALUES ('constraint-probe', 'missing-session', 1, 'u', 'U', 'child', 'x', CURRENT_TIMESTAMP)
	`)
	if err == nil {
		_, _ = v.db.Exec("DELETE FROM messages WHERE id = 'constraint-probe'")
		return fmt.Errorf("foreign key constraint not enforced: messages.session_id")
	}

	_, err = v.db.Exec(`
		INSERT INTO children (id, name, personality, age, created_at, updated_at)
		VALUES ('constraint-probe', 'Probe', 'p', 99, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`)
	if err == nil {
		_, _ = v.db.Exec("DELETE FROM children WHERE id = 'constraint-probe'")
		return fmt.Errorf("check constraint not enforced: children.age")
	}
	return nil
}

func (v *SchemaValidator) exists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// validateColumns checks that a table has the expected columns with correct types
func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid, notNull, pk int
		var name, dataType string
		var defaultValue interface{}
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		foundColumns[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for col, wantType := range expectedColumns {
		gotType, ok := foundColumns[col]
		if !ok {
			return fmt.Errorf("column %s not found", col)
		}
		if gotType != wantType {
			return fmt.Errorf("column %s has type %s, expected %s", col, gotType, wantType)
		}
	}
	return nil
}
