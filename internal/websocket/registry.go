package websocket

import (
	"sync"

	"lessonchat/internal/logger"
	"lessonchat/pkg/interfaces"
	"lessonchat/pkg/protocol"
)

// BroadcastObserver is told the outcome of every broadcast
type BroadcastObserver func(event string, delivered, failed int)

// Registry tracks session rooms and their member connections
// ARCHITECTURAL DISCOVERY: Pure membership tracking without business logic.
// The relay decides what to send, the registry only knows who receives it.
type Registry struct {
	mu       sync.RWMutex                                // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy broadcast lookups
	rooms    map[string]map[string]interfaces.Connection // sessionID -> connectionID -> Connection
	observer BroadcastObserver
}

// NewRegistry creates an empty registry. observer may be nil.
func NewRegistry(observer BroadcastObserver) *Registry {
	return &Registry{
		rooms:    make(map[string]map[string]interfaces.Connection),
		observer: observer,
	}
}

// Join moves conn into sessionID's room and records the membership on conn
// FUNCTIONAL DISCOVERY: A connection belongs to at most one room. Joining
// another room leaves the old one, rejoining the same room only updates userID.
func (r *Registry) Join(conn interfaces.Connection, sessionID, userID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := conn.GetSessionID()
	if previous == sessionID {
		previous = ""
	} else if previous != "" {
		r.remove(previous, conn)
	}

	room, ok := r.rooms[sessionID]
	if !ok {
		room = make(map[string]interfaces.Connection)
		r.rooms[sessionID] = room
	}
	room[conn.GetID()] = conn
	conn.SetMembership(sessionID, userID)

	return previous
}

// Leave removes conn from the room recorded on it
func (r *Registry) Leave(conn interfaces.Connection) (string, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessionID := conn.GetSessionID()
	userID := conn.GetUserID()
	if sessionID == "" {
		return "", "", false
	}
	r.remove(sessionID, conn)
	conn.SetMembership("", "")
	return sessionID, userID, true
}

// remove deletes conn from one room and drops the room when empty. Caller holds mu.
func (r *Registry) remove(sessionID string, conn interfaces.Connection) {
	room, ok := r.rooms[sessionID]
	if !ok {
		return
	}
	// only the registered instance may remove itself
	if room[conn.GetID()] == conn {
		delete(room, conn.GetID())
	}
	if len(room) == 0 {
		delete(r.rooms, sessionID)
	}
}

// Members returns a snapshot of the room's connections
func (r *Registry) Members(sessionID string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[sessionID]
	members := make([]interfaces.Connection, 0, len(room))
	for _, conn := range room {
		members = append(members, conn)
	}
	return members
}

// Broadcast hands event to every member except the given connection and
// returns how many accepted it. An empty room is a no-op.
func (r *Registry) Broadcast(sessionID string, event interface{}, except interfaces.Connection) int {
	members := r.Members(sessionID)

	delivered, failed := 0, 0
	for _, conn := range members {
		if except != nil && conn == except {
			continue
		}
		if err := conn.WriteJSON(event); err != nil {
			failed++
			logger.Warn("broadcast_delivery_failed",
				"session_id", sessionID,
				"connection_id", conn.GetID(),
				"error", err)
			continue
		}
		delivered++
	}

	if r.observer != nil {
		r.observer(eventName(event), delivered, failed)
	}
	return delivered
}

// Count returns the number of connections in the room
func (r *Registry) Count(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[sessionID])
}

// CloseRoom detaches every member from the room without closing their sockets
func (r *Registry) CloseRoom(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, conn := range r.rooms[sessionID] {
		conn.SetMembership("", "")
	}
	delete(r.rooms, sessionID)
}

// CloseAll closes every member connection and empties the registry
func (r *Registry) CloseAll() {
	r.mu.Lock()
	rooms := r.rooms
	r.rooms = make(map[string]map[string]interfaces.Connection)
	r.mu.Unlock()

	for _, room := range rooms {
		for _, conn := range room {
			if err := conn.Close(); err != nil {
				logger.Debug("connection_close_failed", "connection_id", conn.GetID(), "error", err)
			}
		}
	}
}

// Stats returns registry statistics for monitoring and health checks
func (r *Registry) Stats() interfaces.RoomStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := interfaces.RoomStats{
		Rooms:      len(r.rooms),
		PerSession: make(map[string]int, len(r.rooms)),
	}
	for sessionID, room := range r.rooms {
		stats.PerSession[sessionID] = len(room)
		stats.Connections += len(room)
	}
	return stats
}

func eventName(event interface{}) string {
	switch e := event.(type) {
	case protocol.Event:
		return e.Event
	case *protocol.Event:
		return e.Event
	default:
		return "unknown"
	}
}
