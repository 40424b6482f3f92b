// Package api serves the Session API over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"lessonchat/internal/logger"
	"lessonchat/internal/metrics"
	"lessonchat/internal/ratelimit"
	"lessonchat/pkg/interfaces"
	"lessonchat/pkg/types"
)

// maxBodyBytes bounds every JSON request body
const maxBodyBytes = 1 << 20

const rateLimitMessage = "Too many requests from this IP, please try again later."

// Mutator applies session writes and broadcasts them to the session room
type Mutator interface {
	AppendMessage(ctx context.Context, sessionID string, input types.MessageInput) (*types.Session, *types.Message, error)
	PatchSession(ctx context.Context, sessionID string, patch types.SessionPatch) (*types.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// HealthChecker reports storage health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies are the collaborators a Server routes to. Metrics, Limiter
// and WebSocket are optional.
type Dependencies struct {
	Sessions       interfaces.SessionManager
	Mutator        Mutator
	Catalog        interfaces.CatalogManager
	Rooms          interfaces.RoomRegistry
	Health         HealthChecker
	Metrics        *metrics.Metrics
	Limiter        *ratelimit.Limiter
	WebSocket      http.Handler
	AllowedOrigins []string
}

// Server handles HTTP requests for the Session API
// ARCHITECTURAL DISCOVERY: Reads go straight to the session store, every
// write goes through the Mutator so live subscribers see REST changes too
type Server struct {
	sessions interfaces.SessionManager
	mutator  Mutator
	catalog  interfaces.CatalogManager
	rooms    interfaces.RoomRegistry
	health   HealthChecker
	metrics  *metrics.Metrics
	limiter  *ratelimit.Limiter
	origins  map[string]bool
	anyOrig  bool
	router   chi.Router
}

// NewServer builds the router for deps
func NewServer(deps Dependencies) *Server {
	s := &Server{
		sessions: deps.Sessions,
		mutator:  deps.Mutator,
		catalog:  deps.Catalog,
		rooms:    deps.Rooms,
		health:   deps.Health,
		metrics:  deps.Metrics,
		limiter:  deps.Limiter,
		origins:  make(map[string]bool, len(deps.AllowedOrigins)),
	}
	for _, origin := range deps.AllowedOrigins {
		if origin == "*" {
			s.anyOrig = true
		}
		s.origins[origin] = true
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogMiddleware)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.healthCheck)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}
	if deps.WebSocket != nil {
		r.Method(http.MethodGet, "/ws", deps.WebSocket)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(s.rateLimitMiddleware)
		api.Use(jsonMiddleware)

		api.Route("/sessions", func(sr chi.Router) {
			sr.Get("/", s.listSessions)
			sr.Post("/", s.createSession)
			sr.Get("/{id}", s.getSession)
			sr.Put("/{id}", s.updateSession)
			sr.Delete("/{id}", s.deleteSession)
			sr.Post("/{id}/messages", s.appendMessage)
		})
		s.registerCatalogRoutes(api)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Request/response types

type CreateSessionRequest struct {
	LessonID     string   `json:"lessonId"`
	Participants []string `json:"participants"`
}

type SessionResponse struct {
	Session *types.Session `json:"session"`
}

type SessionDetailResponse struct {
	Session         *types.Session `json:"session"`
	Lesson          *types.Lesson  `json:"lesson"`
	ConnectionCount int            `json:"connectionCount"`
}

type ListSessionsResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

// SessionSummary is a listed session with its live connection count
type SessionSummary struct {
	*types.Session
	ConnectionCount int `json:"connectionCount"`
}

type MessageResponse struct {
	Session *types.Session `json:"session"`
	Message *types.Message `json:"message"`
}

type MessageResult struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string               `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
	Database  string               `json:"database"`
	Rooms     interfaces.RoomStats `json:"rooms"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// FUNCTIONAL DISCOVERY: POST /api/sessions - participants default to the lesson's
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !s.decode(w, r, &req) {
		return
	}

	session, err := s.sessions.CreateSession(r.Context(), req.LessonID, req.Participants)
	if err != nil {
		s.sendFailure(w, err, "Failed to create session")
		return
	}
	respondJSON(w, http.StatusCreated, SessionResponse{Session: session})
}

// FUNCTIONAL DISCOVERY: GET /api/sessions/{id} - session, its lesson and live connection count
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	session, err := s.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		s.sendFailure(w, err, "Failed to get session")
		return
	}

	// a deleted child or lesson never hides the session itself
	lesson, err := s.catalog.GetLesson(r.Context(), session.LessonID)
	if err != nil {
		if !interfaces.IsNotFound(err) {
			logger.Warn("session_lesson_lookup_failed", "session_id", sessionID, "lesson_id", session.LessonID, "error", err)
		}
		lesson = nil
	}

	respondJSON(w, http.StatusOK, SessionDetailResponse{
		Session:         session,
		Lesson:          lesson,
		ConnectionCount: s.rooms.Count(sessionID),
	})
}

// FUNCTIONAL DISCOVERY: GET /api/sessions - ?active=true restricts to live sessions
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	activeOnly := false
	if raw := r.URL.Query().Get("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			s.sendValidation(w, types.NewValidationError("active", "active must be true or false"))
			return
		}
		activeOnly = v
	}

	sessions, err := s.sessions.ListSessions(r.Context(), activeOnly)
	if err != nil {
		s.sendFailure(w, err, "Failed to list sessions")
		return
	}

	summaries := make([]SessionSummary, len(sessions))
	for i, session := range sessions {
		summaries[i] = SessionSummary{Session: session, ConnectionCount: s.rooms.Count(session.ID)}
	}
	respondJSON(w, http.StatusOK, ListSessionsResponse{Sessions: summaries})
}

// FUNCTIONAL DISCOVERY: PUT /api/sessions/{id} - partial update, broadcast by the mutator
func (s *Server) updateSession(w http.ResponseWriter, r *http.Request) {
	var patch types.SessionPatch
	if !s.decode(w, r, &patch) {
		return
	}

	session, err := s.mutator.PatchSession(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.sendFailure(w, err, "Failed to update session")
		return
	}
	respondJSON(w, http.StatusOK, SessionResponse{Session: session})
}

// FUNCTIONAL DISCOVERY: POST /api/sessions/{id}/messages - REST append, same path as send-message
func (s *Server) appendMessage(w http.ResponseWriter, r *http.Request) {
	var input types.MessageInput
	if !s.decode(w, r, &input) {
		return
	}

	session, message, err := s.mutator.AppendMessage(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		s.sendFailure(w, err, "Failed to add message")
		return
	}
	respondJSON(w, http.StatusCreated, MessageResponse{Session: session, Message: message})
}

// FUNCTIONAL DISCOVERY: DELETE /api/sessions/{id} - removes the session and its transcript
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.mutator.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.sendFailure(w, err, "Failed to delete session")
		return
	}
	respondJSON(w, http.StatusOK, MessageResult{Message: "Session deleted successfully"})
}

// FUNCTIONAL DISCOVERY: GET /health - 503 when storage is unreachable
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "OK"
	dbStatus := "healthy"
	code := http.StatusOK
	if s.health != nil {
		if err := s.health.HealthCheck(ctx); err != nil {
			logger.Error("health_check_failed", "error", err)
			status = "ERROR"
			dbStatus = "unavailable"
			code = http.StatusServiceUnavailable
		}
	}

	respondJSON(w, code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Database:  dbStatus,
		Rooms:     s.rooms.Stats(),
	})
}

// decode reads a bounded JSON body into v. It writes the 400 itself and
// reports false when the body is unusable.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var verr *types.ValidationError
		if errors.As(err, &verr) {
			s.sendValidation(w, verr)
			return false
		}
		sendError(w, http.StatusBadRequest, "Invalid JSON", "")
		return false
	}
	return true
}

// sendFailure maps a domain error onto the HTTP status taxonomy
func (s *Server) sendFailure(w http.ResponseWriter, err error, generic string) {
	var verr *types.ValidationError
	switch {
	case errors.As(err, &verr):
		s.sendValidation(w, verr)
	case interfaces.IsNotFound(err):
		sendError(w, http.StatusNotFound, notFoundMessage(err), "")
	case errors.Is(err, interfaces.ErrSessionEnded):
		sendError(w, http.StatusConflict, "Session has ended and cannot be reactivated", "isActive")
	default:
		logger.Error("api_request_failed", "error", err)
		sendError(w, http.StatusInternalServerError, generic, "")
	}
}

func (s *Server) sendValidation(w http.ResponseWriter, err *types.ValidationError) {
	sendError(w, http.StatusBadRequest, err.Reason, err.Field)
}

func notFoundMessage(err error) string {
	for _, target := range []error{interfaces.ErrSessionNotFound, interfaces.ErrLessonNotFound, interfaces.ErrChildNotFound} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return "Not found"
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func sendError(w http.ResponseWriter, code int, message, field string) {
	respondJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
		Field:   field,
	})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("response_encode_failed", "error", err)
	}
}

// ARCHITECTURAL DISCOVERY: CORS is restricted to the configured client
// origins. "*" opens it to every origin.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (s.anyOrig || s.origins[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}
		w.Header().Add("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// jsonMiddleware sets the JSON content type on every API response
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware applies the per-IP budget to /api routes
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			sendError(w, http.StatusTooManyRequests, rateLimitMessage, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogMiddleware emits one slog record and one metric per request
func (s *Server) requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			// hijacked for the WebSocket upgrade
			status = http.StatusSwitchingProtocols
		}
		s.metrics.ObserveRequest(r.Method, status)
		logger.Debug("http_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"remote", clientIP(r),
		)
	})
}

// clientIP returns the host part of RemoteAddr, which RealIP has already
// replaced with the forwarded address when present
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
