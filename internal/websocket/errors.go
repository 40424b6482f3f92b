package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteQueueFull   = errors.New("connection write queue full")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)
