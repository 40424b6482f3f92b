package database

import (
	"database/sql"
	"errors"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Config holds database configuration
// ARCHITECTURAL DISCOVERY: Configuration struct provides all database settings
// needed for production deployment without hardcoded values
type Config struct {
	DatabasePath    string        `json:"database_path" yaml:"database_path"`
	MaxConnections  int           `json:"max_connections" yaml:"max_connections"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	BusyRetryDelay  time.Duration `json:"busy_retry_delay" yaml:"busy_retry_delay"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

// DefaultConfig returns production-ready database configuration
// FUNCTIONAL DISCOVERY: SQLite performs well with a small pool when every
// write is funneled through one writer goroutine
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:    "./data/lessonchat.db",
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 10,
		BusyRetryDelay:  time.Second,
		WriteTimeout:    30 * time.Second,
	}
}

// Validate ensures the configuration is valid
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.New("database path cannot be empty")
	}
	if c.MaxConnections <= 0 {
		return errors.New("max connections must be greater than 0")
	}
	if c.ConnMaxLifetime <= 0 {
		return errors.New("connection max lifetime must be greater than 0")
	}
	if c.ConnMaxIdleTime <= 0 {
		return errors.New("connection max idle time must be greater than 0")
	}
	if c.BusyRetryDelay < 0 {
		return errors.New("busy retry delay cannot be negative")
	}
	if c.WriteTimeout <= 0 {
		return errors.New("write timeout must be greater than 0")
	}
	return nil
}

// DSN builds the go-sqlite3 connection string.
// TECHNICAL DISCOVERY: foreign_keys and busy_timeout are per-connection
// settings, so they go in the DSN where every pooled connection picks them up
func (c *Config) DSN() string {
	q := url.Values{}
	q.Set("_foreign_keys", "on")
	q.Set("_busy_timeout", "5000")
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	return "file:" + c.DatabasePath + "?" + q.Encode()
}

// SQLite optimization pragmas for classroom scale
const sqliteOptimizations = `
	PRAGMA cache_size = -64000;
	PRAGMA temp_store = MEMORY;
`

// ApplyOptimizations applies the database-wide performance pragmas
func ApplyOptimizations(db *sql.DB) error {
	_, err := db.Exec(sqliteOptimizations)
	return err
}
