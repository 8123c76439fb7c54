package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Preyoshi04/MockWise/internal/interview"
	"github.com/Preyoshi04/MockWise/internal/logger"
	"github.com/Preyoshi04/MockWise/internal/models"
	"github.com/Preyoshi04/MockWise/internal/repositories/memory"
	"github.com/Preyoshi04/MockWise/internal/services"
)

type fakeChannel struct {
	id     string
	events chan interview.CallEvent

	once  sync.Once
	mu    sync.Mutex
	stops int
}

func newFakeChannel(id string) *fakeChannel {
	return &fakeChannel{id: id, events: make(chan interview.CallEvent, 8)}
}

func (c *fakeChannel) ID() string                         { return c.id }
func (c *fakeChannel) JoinURL() string                    { return "" }
func (c *fakeChannel) Events() <-chan interview.CallEvent { return c.events }

func (c *fakeChannel) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.stops++
	c.mu.Unlock()
	c.once.Do(func() { close(c.events) })
	return nil
}

func (c *fakeChannel) Stops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

type fakeDialer struct {
	mu    sync.Mutex
	users []string
	ch    *fakeChannel
}

func (d *fakeDialer) Dial(ctx context.Context, userID string) (interview.CallChannel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users = append(d.users, userID)
	d.ch = newFakeChannel("ws-call-1")
	return d.ch, nil
}

func (d *fakeDialer) channel() *fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ch
}

// wsMsg mirrors wsServerMsg with the state decoded as text.
type wsMsg struct {
	Type    string `json:"type"`
	Action  string `json:"action"`
	Message string `json:"message"`
	State   *struct {
		State         string            `json:"state"`
		CallID        string            `json:"callId"`
		CameraEnabled bool              `json:"cameraEnabled"`
		Saved         bool              `json:"saved"`
		Notice        *interview.Notice `json:"notice"`
	} `json:"state"`
}

type wsFixture struct {
	srv    *httptest.Server
	h      *WSHandler
	dialer *fakeDialer
	repo   *memory.InterviewRepo
	svc    services.InterviewService
}

func newWSFixture(t *testing.T, origins ...string) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &wsFixture{dialer: &fakeDialer{}, repo: memory.NewInterviewRepo()}
	f.svc = services.NewInterviewService(f.repo, memory.NewUserRepo(), nil)
	f.h = NewWSHandler(f.dialer, f.svc, logger.Discard(), origins)

	r := gin.New()
	r.GET("/interview/ws", asUser("u1"), f.h.Session)
	r.GET("/anon/ws", f.h.Session)
	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *wsFixture) url(path string) string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http") + path
}

func (f *wsFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.url("/interview/ws"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	// the first frame is always the idle snapshot
	readUntil(t, conn, func(m wsMsg) bool { return m.Type == "state" && m.State.State == "idle" })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(wsMsg) bool) wsMsg {
	t.Helper()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var m wsMsg
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(m) {
			return m
		}
	}
}

// readClose drains frames until the server closes the connection.
func readClose(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, _, err := conn.ReadMessage(); err != nil {
			var ce *websocket.CloseError
			if !errors.As(err, &ce) {
				t.Fatalf("expected a close frame, got %v", err)
			}
			return ce
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func isState(state string) func(wsMsg) bool {
	return func(m wsMsg) bool { return m.Type == "state" && m.State.State == state }
}

// startLive dials a call through the socket and brings it live.
func (f *wsFixture) startLive(t *testing.T, conn *websocket.Conn) *fakeChannel {
	t.Helper()
	send(t, conn, map[string]any{"type": "start"})
	readUntil(t, conn, func(m wsMsg) bool { return m.Type == "state" && m.State.CallID == "ws-call-1" })
	ch := f.dialer.channel()
	ch.events <- interview.CallEvent{Kind: interview.EventConnected}
	readUntil(t, conn, isState("live"))
	return ch
}

func TestWSSession_RequiresUser(t *testing.T) {
	f := newWSFixture(t)
	_, resp, err := websocket.DefaultDialer.Dial(f.url("/anon/ws"), nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v %v", resp, err)
	}
}

func TestWSSession_RejectsUnknownOrigin(t *testing.T) {
	f := newWSFixture(t, "https://app.example")

	_, resp, err := websocket.DefaultDialer.Dial(f.url("/interview/ws"), http.Header{"Origin": {"https://evil.example"}})
	if err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v %v", resp, err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(f.url("/interview/ws"), http.Header{"Origin": {"https://app.example"}})
	if err != nil {
		t.Fatalf("allowed origin: %v", err)
	}
	conn.Close()
}

func TestWSSession_RemoteCamera(t *testing.T) {
	f := newWSFixture(t)
	f.h.cameraTimeout = 100 * time.Millisecond
	conn := f.dial(t)

	// granted
	send(t, conn, map[string]any{"type": "toggle_camera"})
	readUntil(t, conn, func(m wsMsg) bool { return m.Type == "camera" && m.Action == "open" })
	send(t, conn, map[string]any{"type": "camera_result", "ok": true})
	readUntil(t, conn, func(m wsMsg) bool { return m.Type == "state" && m.State.CameraEnabled })

	// turning it off asks the browser to close
	send(t, conn, map[string]any{"type": "toggle_camera"})
	readUntil(t, conn, func(m wsMsg) bool { return m.Type == "camera" && m.Action == "close" })
	readUntil(t, conn, func(m wsMsg) bool { return m.Type == "state" && !m.State.CameraEnabled })

	// denied
	send(t, conn, map[string]any{"type": "toggle_camera"})
	readUntil(t, conn, func(m wsMsg) bool { return m.Type == "camera" && m.Action == "open" })
	send(t, conn, map[string]any{"type": "camera_result", "ok": false, "error": "denied"})
	m := readUntil(t, conn, func(m wsMsg) bool { return m.Type == "state" && m.State.Notice != nil })
	if !strings.Contains(m.State.Notice.Message, "denied") || m.State.CameraEnabled {
		t.Fatalf("denied notice = %+v", m.State.Notice)
	}
	m = readUntil(t, conn, func(m wsMsg) bool { return m.Type == "error" })
	if m.Message != interview.ErrCameraDenied.Error() {
		t.Fatalf("error = %q", m.Message)
	}

	// no answer
	send(t, conn, map[string]any{"type": "toggle_camera"})
	readUntil(t, conn, func(m wsMsg) bool { return m.Type == "camera" && m.Action == "open" })
	m = readUntil(t, conn, func(m wsMsg) bool { return m.Type == "error" })
	if m.Message != "camera did not respond" {
		t.Fatalf("error = %q", m.Message)
	}

	// a late answer to the timed out request is not mistaken for the next one
	send(t, conn, map[string]any{"type": "camera_result", "ok": true})
	send(t, conn, map[string]any{"type": "toggle_camera"})
	readUntil(t, conn, func(m wsMsg) bool { return m.Type == "camera" && m.Action == "open" })
	m = readUntil(t, conn, func(m wsMsg) bool { return m.Type == "error" || (m.Type == "state" && m.State.CameraEnabled) })
	if m.Type != "error" {
		t.Fatalf("stale camera_result opened the camera")
	}
}

func TestWSSession_CommandQueueOverflow(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t)

	// the dispatcher blocks on the camera answer, so later commands pile up
	send(t, conn, map[string]any{"type": "toggle_camera"})
	readUntil(t, conn, func(m wsMsg) bool { return m.Type == "camera" && m.Action == "open" })
	for i := 0; i < wsQueueSize+1; i++ {
		send(t, conn, map[string]any{"type": "end"})
	}
	m := readUntil(t, conn, func(m wsMsg) bool { return m.Type == "error" })
	if m.Message != "too many pending commands" {
		t.Fatalf("error = %q", m.Message)
	}

	// releasing the camera drains the queue in order
	send(t, conn, map[string]any{"type": "camera_result", "ok": true})
	readUntil(t, conn, func(m wsMsg) bool { return m.Type == "state" && m.State.CameraEnabled })
	m = readUntil(t, conn, func(m wsMsg) bool { return m.Type == "error" })
	if m.Message != interview.ErrNotStarted.Error() {
		t.Fatalf("queued end gave %q", m.Message)
	}
}

func TestWSSession_UnknownAndInvalidMessages(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{nope")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if m := readUntil(t, conn, func(m wsMsg) bool { return m.Type == "error" }); m.Message != "invalid json" {
		t.Fatalf("error = %q", m.Message)
	}
	send(t, conn, map[string]any{"type": "dance"})
	if m := readUntil(t, conn, func(m wsMsg) bool { return m.Type == "error" }); m.Message != "unknown message type" {
		t.Fatalf("error = %q", m.Message)
	}
}

func TestWSSession_EndSendsCloseFrame(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t)
	ch := f.startLive(t, conn)

	send(t, conn, map[string]any{"type": "end"})
	readUntil(t, conn, isState("ended"))
	ce := readClose(t, conn)
	if ce.Code != websocket.CloseNormalClosure || ce.Text != "ended" {
		t.Fatalf("close frame = %d %q", ce.Code, ce.Text)
	}

	if ch.Stops() == 0 {
		t.Fatalf("call not stopped")
	}
	got, err := f.repo.GetByID(context.Background(), "ws-call-1")
	if err != nil {
		t.Fatalf("fallback result missing: %v", err)
	}
	if got.UserID != "u1" || got.Status != models.StatusPending || got.Source != models.SourceClientFallback {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestWSSession_ClientDisconnectTearsDown(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t)
	ch := f.startLive(t, conn)

	conn.Close()

	waitFor(t, "call stop", func() bool { return ch.Stops() > 0 })
	if f.repo.Len() != 0 {
		t.Fatalf("an unmounted session must not record a result")
	}
}

func TestWSSession_TamperingAbortSurvivesLateReport(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t)
	f.startLive(t, conn)

	send(t, conn, map[string]any{"type": "toggle_camera"})
	m := readUntil(t, conn, isState("aborted"))
	if m.State.Notice == nil || !m.State.Notice.Blocking {
		t.Fatalf("abort notice = %+v", m.State.Notice)
	}
	if ce := readClose(t, conn); ce.Text != "aborted" {
		t.Fatalf("close text = %q", ce.Text)
	}

	// hanging up makes the platform send its report and a late verdict
	queue := &fakeQueue{}
	wh := NewWebhookHandler(f.svc, nil, nil, queue, "", logger.Discard())
	r := gin.New()
	r.POST("/api/webhook", wh.Receive)
	for _, body := range []string{
		`{"message":{"type":"end-of-call-report","call":{"id":"ws-call-1","assistantOverrides":{"variableValues":{"userId":"u1"}}},"artifact":{"transcript":"AI: hi"}}}`,
		strings.Replace(scenarioPayload, "abc123", "ws-call-1", 1),
	} {
		if w := doJSON(r, http.MethodPost, "/api/webhook", body); w.Code != http.StatusOK {
			t.Fatalf("webhook status %d body %s", w.Code, w.Body.String())
		}
	}

	if f.repo.Len() != 0 {
		t.Fatalf("aborted session has %d results", f.repo.Len())
	}
	if len(queue.calls) != 0 {
		t.Fatalf("report job queued: %v", queue.calls)
	}
	rows, _ := f.svc.ListByUser(context.Background(), "u1", 10)
	if len(rows) != 0 {
		t.Fatalf("aborted session listed")
	}
}
