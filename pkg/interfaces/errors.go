package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrSessionNotFound = errors.New("Session not found")
	ErrLessonNotFound  = errors.New("Lesson not found")
	ErrChildNotFound   = errors.New("Child not found")
	ErrSessionEnded    = errors.New("session has ended and cannot be reactivated")
)

// IsNotFound reports whether err is any of the not-found errors
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrLessonNotFound) ||
		errors.Is(err, ErrChildNotFound)
}
