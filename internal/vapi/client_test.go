package vapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Preyoshi04/MockWise/internal/interview"
	"github.com/Preyoshi04/MockWise/internal/pubsub"
)

type fakeVapi struct {
	srv *httptest.Server

	mu       sync.Mutex
	created  []map[string]any
	controls []map[string]any
	auth     []string
}

func newFakeVapi(t *testing.T) *fakeVapi {
	t.Helper()
	f := &fakeVapi{}
	mux := http.NewServeMux()
	mux.HandleFunc("/call/web", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.created = append(f.created, body)
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         "call-123",
			"webCallUrl": "https://daily.example/call-123",
			"monitor":    map[string]any{"controlUrl": f.srv.URL + "/control/call-123"},
		})
	})
	mux.HandleFunc("/control/call-123", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.controls = append(f.controls, body)
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func TestClient_DialBindsUserAndRelaysEvents(t *testing.T) {
	f := newFakeVapi(t)
	bus := pubsub.NewMemoryBus()
	c := NewClient(Options{BaseURL: f.srv.URL + "/", APIKey: "k", AssistantID: "asst-1", Bus: bus})

	ch, err := c.Dial(context.Background(), "user-9")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if ch.ID() != "call-123" || ch.JoinURL() != "https://daily.example/call-123" {
		t.Fatalf("unexpected channel: %s %s", ch.ID(), ch.JoinURL())
	}

	f.mu.Lock()
	body := f.created[0]
	auth := f.auth[0]
	f.mu.Unlock()
	if auth != "Bearer k" {
		t.Fatalf("authorization header = %q", auth)
	}
	if body["assistantId"] != "asst-1" {
		t.Fatalf("assistantId = %v", body["assistantId"])
	}
	vars := body["assistantOverrides"].(map[string]any)["variableValues"].(map[string]any)
	if vars["userId"] != "user-9" {
		t.Fatalf("userId variable = %v", vars["userId"])
	}

	payload, _ := json.Marshal(interview.CallEvent{Kind: interview.EventConnected})
	if err := bus.Publish(context.Background(), pubsub.CallEventsTopic("call-123"), payload); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case ev := <-ch.Events():
		if ev.Kind != interview.EventConnected {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not relayed")
	}
}

func TestClient_StopEndsCallAndSubscription(t *testing.T) {
	f := newFakeVapi(t)
	bus := pubsub.NewMemoryBus()
	c := NewClient(Options{BaseURL: f.srv.URL, APIKey: "k", AssistantID: "asst-1", Bus: bus})

	ch, err := c.Dial(context.Background(), "user-9")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := ch.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := ch.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}

	select {
	case _, ok := <-ch.Events():
		if ok {
			t.Fatalf("expected closed events channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("events channel not closed after stop")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.controls) != 1 || f.controls[0]["type"] != "end-call" {
		t.Fatalf("expected one end-call control message, got %v", f.controls)
	}
	if bus.Subscribers(pubsub.CallEventsTopic("call-123")) != 0 {
		t.Fatalf("subscription leaked")
	}
}

func TestClient_NotConfigured(t *testing.T) {
	c := NewClient(Options{Bus: pubsub.NewMemoryBus()})
	if _, err := c.Dial(context.Background(), "u"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestClient_CreateCallFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad assistant", http.StatusBadRequest)
	}))
	defer srv.Close()

	bus := pubsub.NewMemoryBus()
	c := NewClient(Options{BaseURL: srv.URL, APIKey: "k", AssistantID: "a", Bus: bus})
	if _, err := c.Dial(context.Background(), "u"); err == nil {
		t.Fatalf("expected error on 400")
	}
}

func TestClient_DrivesController(t *testing.T) {
	f := newFakeVapi(t)
	bus := pubsub.NewMemoryBus()
	c := NewClient(Options{BaseURL: f.srv.URL, APIKey: "k", AssistantID: "a", Bus: bus})

	ctrl := interview.NewController(interview.Config{Dialer: c, Camera: noCamera{}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ctrl.Run(ctx) }()

	if err := ctrl.Start(ctx, "u1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	publish := func(ev interview.CallEvent) {
		b, _ := json.Marshal(ev)
		_ = bus.Publish(ctx, pubsub.CallEventsTopic("call-123"), b)
	}
	publish(interview.CallEvent{Kind: interview.EventConnected})
	waitFor(t, func() bool { return ctrl.Snapshot().State == interview.Live })

	publish(interview.CallEvent{Kind: interview.EventTerminated, Reason: "customer-ended-call"})
	select {
	case <-ctrl.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("controller did not finish")
	}
	if ctrl.Snapshot().State != interview.Ended {
		t.Fatalf("expected ended, got %s", ctrl.Snapshot().State)
	}
}

type noCamera struct{}

func (noCamera) Open(ctx context.Context) error { return interview.ErrCameraDenied }
func (noCamera) Close() error                   { return nil }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met")
}
