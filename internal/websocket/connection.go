package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lessonchat/internal/logger"
)

// Connection implements the interfaces.Connection interface
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized to prevent race conditions.
// Every frame goes through writeCh and a single writer goroutine.
type Connection struct {
	id           string
	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration
	userID       string // set on join-lesson
	sessionID    string // set on join-lesson
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
	mu           sync.RWMutex // protects membership fields
}

// NewConnection wraps conn and starts its writer goroutine
func NewConnection(conn *websocket.Conn, config Config) *Connection {
	config = config.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           uuid.New().String(),
		conn:         conn,
		writeCh:      make(chan []byte, config.SendBufferSize),
		writeTimeout: config.WriteTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

// writeLoop is the only goroutine writing data frames to the socket
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("websocket_write_failed", "connection_id", c.id, "error", err)
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues v for the writer goroutine.
// FUNCTIONAL DISCOVERY: The hand-off never blocks. A client that falls a whole
// buffer behind gets ErrWriteQueueFull instead of stalling its room.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrWriteQueueFull
	}
}

// Close stops the writer and closes the socket. Safe to call repeatedly.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Done is closed once the connection is closed
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *Connection) GetID() string {
	return c.id
}

func (c *Connection) SetMembership(sessionID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
	c.userID = userID
}

func (c *Connection) GetUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Connection) GetSessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}
