package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"lessonchat/internal/app"
	"lessonchat/internal/config"
	"lessonchat/pkg/types"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// newApplication runs the full stack on an ephemeral port with a seeded catalog.
// Stop is registered as cleanup and is safe to call earlier.
func newApplication(t *testing.T) *app.Application {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "lessonchat.db")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.HTTP.RateLimitRequests = 0
	cfg.Logging.Level = "error"
	cfg.SeedDemoData = true

	application, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start application: %v", err)
	}
	t.Cleanup(func() {
		if err := stopApplication(application); err != nil {
			t.Logf("Failed to stop application: %v", err)
		}
	})
	return application
}

func startApplication(t *testing.T) string {
	t.Helper()
	return newApplication(t).GetAddr()
}

func stopApplication(application *app.Application) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return application.Stop(ctx)
}

func doJSON(t *testing.T, method, url string, body interface{}, out interface{}) int {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func dialSocket(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	if err := conn.WriteJSON(map[string]interface{}{"event": event, "data": data}); err != nil {
		t.Fatalf("Failed to send %s: %v", event, err)
	}
}

// waitFor reads until an event named want arrives and decodes its data into out
func waitFor(t *testing.T, conn *websocket.Conn, want string, out interface{}) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("Waiting for %s: %v", want, err)
		}
		if env.Event != want {
			continue
		}
		if out != nil {
			if err := json.Unmarshal(env.Data, out); err != nil {
				t.Fatalf("Failed to decode %s payload: %v", want, err)
			}
		}
		return
	}
}

func TestLessonFlow_EndToEnd(t *testing.T) {
	addr := startApplication(t)
	base := "http://" + addr

	var lessons struct {
		Lessons []*types.Lesson `json:"lessons"`
	}
	if code := doJSON(t, http.MethodGet, base+"/api/lessons", nil, &lessons); code != http.StatusOK {
		t.Fatalf("Expected 200 listing lessons, got %d", code)
	}
	if len(lessons.Lessons) != 1 {
		t.Fatalf("Expected one seeded lesson, got %d", len(lessons.Lessons))
	}
	lesson := lessons.Lessons[0]

	var created struct {
		Session *types.Session `json:"session"`
	}
	if code := doJSON(t, http.MethodPost, base+"/api/sessions", map[string]string{"lessonId": lesson.ID}, &created); code != http.StatusCreated {
		t.Fatalf("Expected 201 creating session, got %d", code)
	}
	sessionID := created.Session.ID
	if len(created.Session.Participants) != 3 {
		t.Errorf("Expected lesson participants copied, got %v", created.Session.Participants)
	}

	// two endpoints join the room
	ava := dialSocket(t, addr)
	leo := dialSocket(t, addr)

	send(t, ava, "join-lesson", map[string]string{"sessionId": sessionID, "userId": "ava"})
	var state types.Session
	waitFor(t, ava, "session-state", &state)
	if state.ID != sessionID || !state.IsActive {
		t.Errorf("Unexpected session-state: %+v", state)
	}

	send(t, leo, "join-lesson", map[string]string{"sessionId": sessionID, "userId": "leo"})
	waitFor(t, leo, "session-state", nil)
	var joined struct {
		UserID  string `json:"userId"`
		Message string `json:"message"`
	}
	waitFor(t, ava, "user-joined", &joined)
	if joined.UserID != "leo" || joined.Message != "User leo joined the lesson" {
		t.Errorf("Unexpected user-joined: %+v", joined)
	}

	// socket message reaches the whole room, sender included
	send(t, ava, "send-message", map[string]string{
		"sessionId": sessionID, "senderId": "ava", "senderName": "Ava", "senderType": "child", "content": "I like Saturn",
	})
	var first types.Message
	waitFor(t, leo, "new-message", &first)
	waitFor(t, ava, "new-message", nil)
	if first.Seq != 1 || first.Content != "I like Saturn" || first.ID == "" {
		t.Errorf("Unexpected new-message: %+v", first)
	}

	// REST writes are broadcast like socket events
	if code := doJSON(t, http.MethodPut, base+"/api/sessions/"+sessionID, map[string]int{"currentStep": 1}, nil); code != http.StatusOK {
		t.Fatalf("Expected 200 on step update, got %d", code)
	}
	var step struct {
		NewStep int `json:"newStep"`
	}
	waitFor(t, leo, "step-changed", &step)
	if step.NewStep != 1 {
		t.Errorf("Expected step 1, got %d", step.NewStep)
	}

	var appended struct {
		Message *types.Message `json:"message"`
	}
	code := doJSON(t, http.MethodPost, base+"/api/sessions/"+sessionID+"/messages", map[string]string{
		"senderId": "ai", "senderName": "Guide", "senderType": "ai", "content": "Saturn has rings!",
	}, &appended)
	if code != http.StatusCreated {
		t.Fatalf("Expected 201 on REST append, got %d", code)
	}
	var second types.Message
	waitFor(t, ava, "new-message", &second)
	if second.Seq != 2 || second.ID != appended.Message.ID {
		t.Errorf("Expected REST message broadcast with seq 2, got %+v", second)
	}

	// validation failures go to the sender only
	send(t, leo, "change-step", map[string]interface{}{"sessionId": sessionID, "newStep": -1})
	var failure struct {
		Message string `json:"message"`
	}
	waitFor(t, leo, "error", &failure)
	if failure.Message != types.ErrNegativeStep.Reason {
		t.Errorf("Unexpected error message %q", failure.Message)
	}

	// ending is one way
	if code := doJSON(t, http.MethodPut, base+"/api/sessions/"+sessionID, map[string]bool{"isActive": false}, nil); code != http.StatusOK {
		t.Fatalf("Expected 200 on end, got %d", code)
	}
	waitFor(t, ava, "session-ended", nil)
	if code := doJSON(t, http.MethodPut, base+"/api/sessions/"+sessionID, map[string]bool{"isActive": true}, nil); code != http.StatusConflict {
		t.Errorf("Expected 409 on reactivation, got %d", code)
	}

	// leaving announces to the remaining member
	_ = leo.Close()
	var left struct {
		UserID string `json:"userId"`
	}
	waitFor(t, ava, "user-left", &left)
	if left.UserID != "leo" {
		t.Errorf("Expected leo to leave, got %q", left.UserID)
	}

	var detail struct {
		Session         *types.Session `json:"session"`
		Lesson          *types.Lesson  `json:"lesson"`
		ConnectionCount int            `json:"connectionCount"`
	}
	if code := doJSON(t, http.MethodGet, base+"/api/sessions/"+sessionID, nil, &detail); code != http.StatusOK {
		t.Fatalf("Expected 200 on detail, got %d", code)
	}
	if len(detail.Session.Messages) != 2 || detail.Session.CurrentStep != 1 || detail.Session.EndTime == nil {
		t.Errorf("Unexpected persisted session: %+v", detail.Session)
	}
	if detail.Lesson == nil || detail.Lesson.ID != lesson.ID || detail.ConnectionCount != 1 {
		t.Errorf("Unexpected detail: lesson=%v connections=%d", detail.Lesson, detail.ConnectionCount)
	}

	if code := doJSON(t, http.MethodDelete, base+"/api/sessions/"+sessionID, nil, nil); code != http.StatusOK {
		t.Fatalf("Expected 200 on delete, got %d", code)
	}
	waitFor(t, ava, "session-deleted", nil)
	if code := doJSON(t, http.MethodGet, base+"/api/sessions/"+sessionID, nil, nil); code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", code)
	}
}

func TestLessonFlow_JoinUnknownSession(t *testing.T) {
	addr := startApplication(t)
	conn := dialSocket(t, addr)

	send(t, conn, "join-lesson", map[string]string{"sessionId": "missing", "userId": "ava"})
	var failure struct {
		Message string `json:"message"`
	}
	waitFor(t, conn, "error", &failure)
	if failure.Message != "Session not found" {
		t.Errorf("Expected Session not found, got %q", failure.Message)
	}
}

func TestLessonFlow_ConcurrentMessagesKeepOrder(t *testing.T) {
	addr := startApplication(t)
	base := "http://" + addr

	var lessons struct {
		Lessons []*types.Lesson `json:"lessons"`
	}
	doJSON(t, http.MethodGet, base+"/api/lessons", nil, &lessons)
	var created struct {
		Session *types.Session `json:"session"`
	}
	doJSON(t, http.MethodPost, base+"/api/sessions", map[string]string{"lessonId": lessons.Lessons[0].ID}, &created)
	sessionID := created.Session.ID

	listener := dialSocket(t, addr)
	send(t, listener, "join-lesson", map[string]string{"sessionId": sessionID, "userId": "watcher"})
	waitFor(t, listener, "session-state", nil)

	const senders, each = 4, 5
	done := make(chan struct{})
	for s := 0; s < senders; s++ {
		go func(s int) {
			defer func() { done <- struct{}{} }()
			conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
			if err != nil {
				t.Errorf("dial failed: %v", err)
				return
			}
			defer conn.Close()
			for i := 0; i < each; i++ {
				_ = conn.WriteJSON(map[string]interface{}{"event": "send-message", "data": map[string]string{
					"sessionId": sessionID, "senderId": fmt.Sprintf("c%d", s), "senderName": "Kid",
					"senderType": "child", "content": fmt.Sprintf("msg %d-%d", s, i),
				}})
			}
			// keep the socket open until its events are applied
			time.Sleep(500 * time.Millisecond)
		}(s)
	}

	// the room sees seq numbers strictly in order
	for want := int64(1); want <= senders*each; want++ {
		var msg types.Message
		waitFor(t, listener, "new-message", &msg)
		if msg.Seq != want {
			t.Fatalf("Expected seq %d, got %d", want, msg.Seq)
		}
	}
	for s := 0; s < senders; s++ {
		<-done
	}
}

func TestLessonFlow_StopClosesEverySocket(t *testing.T) {
	application := newApplication(t)
	addr := application.GetAddr()
	base := "http://" + addr

	var lessons struct {
		Lessons []*types.Lesson `json:"lessons"`
	}
	doJSON(t, http.MethodGet, base+"/api/lessons", nil, &lessons)
	if len(lessons.Lessons) == 0 {
		t.Fatal("Expected a seeded lesson")
	}
	var created struct {
		Session *types.Session `json:"session"`
	}
	if code := doJSON(t, http.MethodPost, base+"/api/sessions", map[string]string{"lessonId": lessons.Lessons[0].ID}, &created); code != http.StatusCreated {
		t.Fatalf("Expected 201 creating session, got %d", code)
	}

	// one socket never joins, one is detached from its room by a delete,
	// one is still in a room
	idle := dialSocket(t, addr)
	detached := dialSocket(t, addr)
	send(t, detached, "join-lesson", map[string]string{"sessionId": created.Session.ID, "userId": "ava"})
	waitFor(t, detached, "session-state", nil)
	if code := doJSON(t, http.MethodDelete, base+"/api/sessions/"+created.Session.ID, nil, nil); code != http.StatusOK {
		t.Fatalf("Expected 200 deleting session, got %d", code)
	}
	waitFor(t, detached, "session-deleted", nil)

	if code := doJSON(t, http.MethodPost, base+"/api/sessions", map[string]string{"lessonId": lessons.Lessons[0].ID}, &created); code != http.StatusCreated {
		t.Fatalf("Expected 201 creating session, got %d", code)
	}
	joined := dialSocket(t, addr)
	send(t, joined, "join-lesson", map[string]string{"sessionId": created.Session.ID, "userId": "leo"})
	waitFor(t, joined, "session-state", nil)

	if err := stopApplication(application); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"idle": idle, "detached": detached, "joined": joined} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var err error
		for err == nil {
			_, _, err = conn.ReadMessage()
		}
		if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
			t.Errorf("%s socket: expected going-away close after Stop, got %v", name, err)
		}
	}
}
