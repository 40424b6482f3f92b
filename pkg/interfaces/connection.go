package interfaces

// Connection represents one real-time client endpoint
// ARCHITECTURAL DISCOVERY: Pure abstraction without transport details keeps
// the relay and registry testable with in-memory fakes
type Connection interface {
	// WriteJSON queues a JSON frame for the client
	// FUNCTIONAL DISCOVERY: Implementations must be safe for concurrent callers
	// and use a single writer goroutine per socket
	WriteJSON(v interface{}) error

	// Close closes the connection and releases its writer
	Close() error

	// GetID returns the server-assigned endpoint id
	GetID() string

	// GetUserID returns the user id announced on join, empty before join
	GetUserID() string

	// GetSessionID returns the session room this endpoint belongs to, empty before join
	GetSessionID() string

	// SetMembership records the room and user the endpoint joined.
	// Passing empty strings clears the membership.
	SetMembership(sessionID, userID string)
}
