package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"lessonchat/internal/logger"
	dbconfig "lessonchat/pkg/database"
)

// ErrManagerClosed is returned for writes attempted after Close
var ErrManagerClosed = errors.New("database manager is closed")

// ErrWriteTimeout is returned when the writer does not pick up an operation in time
var ErrWriteTimeout = errors.New("write operation timeout")

// Manager implements the DatabaseManager interface
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
}

// writeOperation represents a database write operation
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database and starts the writer goroutine.
// Call Migrate before serving traffic.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// FUNCTIONAL DISCOVERY: Connection pool configuration critical for concurrent reads
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplyOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// Migrate applies the embedded schema and verifies the result
func (m *Manager) Migrate() error {
	if err := dbconfig.NewMigrationManager(m.db).ApplyMigrations(); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	if err := dbconfig.NewSchemaValidator(m.db).Validate(); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			// FUNCTIONAL DISCOVERY: Only lock contention is retried, and only
			// once. Domain errors such as not-found return immediately.
			if err != nil && isBusy(err) {
				logger.Warn("database_write_busy_retrying", "delay", m.config.BusyRetryDelay, "error", err)
				time.Sleep(m.config.BusyRetryDelay)
				err = op.operation(m.db)
				if err != nil {
					logger.Error("database_write_failed_after_retry", "error", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			m.drain()
			logger.Info("database_write_loop_stopped")
			return
		}
	}
}

// drain completes operations that were queued before shutdown
func (m *Manager) drain() {
	for {
		select {
		case op := <-m.writeChannel:
			op.result <- op.operation(m.db)
		default:
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	result := make(chan error, 1)
	timer := time.NewTimer(m.config.WriteTimeout)
	defer timer.Stop()

	// TECHNICAL DISCOVERY: The read lock is held until the operation is
	// queued so Close cannot stop the writer between the check and the send
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		m.mu.RUnlock()
	case <-timer.C:
		m.mu.RUnlock()
		return ErrWriteTimeout
	case <-ctx.Done():
		m.mu.RUnlock()
		return ctx.Err()
	}

	// TECHNICAL DISCOVERY: Once queued the operation will run, so wait for
	// its result rather than abandoning a write that may still commit
	return <-result
}

// isBusy reports whether err is SQLite lock contention
func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB returns the underlying database connection
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the database manager
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
