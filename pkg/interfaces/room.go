package interfaces

// RoomStats summarizes live room membership
type RoomStats struct {
	Rooms       int            `json:"rooms"`
	Connections int            `json:"connections"`
	PerSession  map[string]int `json:"perSession"`
}

// RoomRegistry tracks which endpoints are subscribed to which session
// ARCHITECTURAL DISCOVERY: Delivery is fire-and-forget; Broadcast never
// reports per-recipient failures to the caller
type RoomRegistry interface {
	// Join moves conn into sessionID's room and returns the room it left, if any
	Join(conn Connection, sessionID, userID string) (previous string)

	// Leave removes conn from the room it joined. ok is false when conn had no room.
	Leave(conn Connection) (sessionID, userID string, ok bool)

	// Broadcast sends an event to every member of the room except the given endpoint
	Broadcast(sessionID string, event interface{}, except Connection) int

	// Count returns the number of endpoints in the room
	Count(sessionID string) int

	// CloseRoom detaches every member from the room
	CloseRoom(sessionID string)

	Stats() RoomStats
}
