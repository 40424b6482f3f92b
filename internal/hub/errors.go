package hub

import "errors"

// Hub-specific error types
var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrLaneFull          = errors.New("session lane is full")
	ErrTaskPanicked      = errors.New("session task panicked")
)
