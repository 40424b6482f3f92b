package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"lessonchat/internal/logger"
	"lessonchat/pkg/interfaces"
	"lessonchat/pkg/protocol"
	"lessonchat/pkg/types"
)

// EventHandler applies decoded client events
type EventHandler interface {
	// HandleEvent validates, applies and broadcasts one event. Failures are
	// reported to conn as error events, never returned.
	HandleEvent(ctx context.Context, conn interfaces.Connection, event protocol.Inbound)

	// Disconnect runs once when the socket goes away
	Disconnect(ctx context.Context, conn interfaces.Connection)
}

// Handler upgrades /ws requests and runs the per-connection read pump
// ARCHITECTURAL DISCOVERY: Clean separation of WebSocket handling from business logic.
// Decoding happens here, everything after a typed event belongs to the EventHandler.
type Handler struct {
	events   EventHandler
	config   Config
	upgrader websocket.Upgrader

	// every upgraded connection, joined or not, until its read pump exits
	mu      sync.Mutex
	conns   map[*Connection]struct{}
	closing bool
	pumps   sync.WaitGroup
}

// NewHandler creates a WebSocket handler
func NewHandler(events EventHandler, config Config) *Handler {
	config = config.withDefaults()
	h := &Handler{
		events: events,
		config: config,
		conns:  make(map[*Connection]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

// ServeHTTP upgrades the request and hands the socket to its read pump
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader already wrote the HTTP error
		logger.Warn("websocket_upgrade_failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := NewConnection(ws, h.config)
	if !h.track(conn) {
		closeWithCode(conn, websocket.CloseGoingAway, "server shutting down", h.config.WriteTimeout)
		return
	}
	logger.Info("websocket_connected", "connection_id", conn.GetID(), "remote", r.RemoteAddr)

	go func() {
		defer h.untrack(conn)
		h.handleConnection(conn)
	}()
}

// track registers conn unless Shutdown has started
func (h *Handler) track(conn *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.pumps.Add(1)
	h.conns[conn] = struct{}{}
	return true
}

func (h *Handler) untrack(conn *Connection) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	h.pumps.Done()
}

// Shutdown sends a going-away close frame to every live connection, closes
// it, and waits until all read pumps have exited or ctx is done. New
// upgrades are refused once Shutdown has been called.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	conns := make([]*Connection, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		closeWithCode(conn, websocket.CloseGoingAway, "server shutting down", h.config.WriteTimeout)
	}

	done := make(chan struct{})
	go func() {
		h.pumps.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the number of live connections
func (h *Handler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// closeWithCode writes a close frame, best effort, then closes the socket
func closeWithCode(conn *Connection, code int, text string, timeout time.Duration) {
	frame := websocket.FormatCloseMessage(code, text)
	if err := conn.conn.WriteControl(websocket.CloseMessage, frame, time.Now().Add(timeout)); err != nil {
		logger.Debug("websocket_close_frame_failed", "connection_id", conn.GetID(), "error", err)
	}
	_ = conn.Close()
}

// checkOrigin accepts requests without an Origin header (non-browser clients)
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.config.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// handleConnection manages the connection lifecycle with heartbeat monitoring
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		// FUNCTIONAL DISCOVERY: Deferred cleanup ensures user-left is announced
		// even if the read pump exits on an error
		h.events.Disconnect(context.Background(), conn)
		_ = conn.Close()
		logger.Info("websocket_disconnected", "connection_id", conn.GetID())
	}()

	ws := conn.conn
	ws.SetReadLimit(h.config.MaxMessageSize)
	if err := ws.SetReadDeadline(time.Now().Add(h.config.ReadTimeout)); err != nil {
		logger.Warn("websocket_read_deadline_failed", "connection_id", conn.GetID(), "error", err)
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	// TECHNICAL DISCOVERY: WriteControl is safe to call concurrently with the
	// writer goroutine, so pings run on their own ticker
	go func() {
		ticker := time.NewTicker(h.config.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.config.WriteTimeout)); err != nil {
					_ = conn.Close()
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(h.config.EventRate), h.config.EventBurst)

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket_read_error", "connection_id", conn.GetID(), "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if !limiter.Allow() {
			h.reject(conn, "Too many events, slow down")
			continue
		}

		event, err := protocol.Decode(data)
		if err != nil {
			h.reject(conn, clientMessage(err))
			continue
		}

		h.events.HandleEvent(conn.ctx, conn, event)
	}
}

func (h *Handler) reject(conn *Connection, message string) {
	if err := conn.WriteJSON(protocol.Error(message)); err != nil {
		logger.Debug("websocket_error_event_failed", "connection_id", conn.GetID(), "error", err)
	}
}

func clientMessage(err error) string {
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		return verr.Reason
	}
	return "Invalid event"
}
