package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"officedesk/internal/config"
	"officedesk/internal/engine"
)

type webhookReceiver struct {
	srv      *httptest.Server
	requests atomic.Int64
	failures int64

	mu      sync.Mutex
	events  []webhookEvent
	headers []http.Header
}

// newWebhookReceiver answers 500 to the first failures requests and 200
// afterwards, recording every delivered event and its headers.
func newWebhookReceiver(t *testing.T, failures int64) *webhookReceiver {
	t.Helper()
	r := &webhookReceiver{failures: failures}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		n := r.requests.Add(1)
		if n <= r.failures {
			http.Error(w, "receiver offline", http.StatusInternalServerError)
			return
		}
		var evt webhookEvent
		if err := json.NewDecoder(req.Body).Decode(&evt); err != nil {
			t.Errorf("decode delivery: %v", err)
		}
		r.mu.Lock()
		r.events = append(r.events, evt)
		r.headers = append(r.headers, req.Header.Clone())
		r.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func TestWebhookDispatchRetriesThenAdvancesCursor(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, config.Default())
	task, err := e.CreateTask(ctx, engine.TaskCreateOptions{
		Name:     "notify the receiver",
		Category: "general",
		ActorID:  "tester",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	receiver := newWebhookReceiver(t, 1)
	d := &webhookDispatcher{
		engine: e,
		urls:   []string{receiver.srv.URL},
		secret: "hook-secret",
		client: &http.Client{Timeout: time.Second},
		log:    zap.NewNop().Sugar(),
	}

	d.dispatch(ctx)
	cursor, err := e.Repo.WebhookCursor(ctx)
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if cursor != 0 {
		t.Fatalf("cursor advanced past a failed delivery: got %d", cursor)
	}

	d.dispatch(ctx)
	cursor, err = e.Repo.WebhookCursor(ctx)
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if cursor == 0 {
		t.Fatal("cursor did not advance after successful delivery")
	}
	if len(receiver.events) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(receiver.events))
	}
	evt := receiver.events[0]
	if evt.Type != "task.created" {
		t.Fatalf("event type = %q, want task.created", evt.Type)
	}
	if evt.EntityID != task.ID {
		t.Fatalf("entity id = %q, want %q", evt.EntityID, task.ID)
	}
	if cursor != evt.ID {
		t.Fatalf("cursor = %d, want delivered event id %d", cursor, evt.ID)
	}
	h := receiver.headers[0]
	if got := h.Get("X-Officedesk-Event"); got != "task.created" {
		t.Fatalf("X-Officedesk-Event = %q", got)
	}
	if got := h.Get("X-Officedesk-Secret"); got != "hook-secret" {
		t.Fatalf("X-Officedesk-Secret = %q", got)
	}
	if h.Get("X-Officedesk-Delivery") == "" {
		t.Fatal("missing X-Officedesk-Delivery header")
	}

	// A clean run with nothing new delivers nothing and leaves the cursor.
	d.dispatch(ctx)
	after, err := e.Repo.WebhookCursor(ctx)
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if after != cursor {
		t.Fatalf("cursor moved without new events: %d -> %d", cursor, after)
	}
	if len(receiver.events) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(receiver.events))
	}
}

func TestWebhookDispatchDeliversBacklogInOrder(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, config.Default())
	for _, name := range []string{"first", "second", "third"} {
		if _, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			Name:     name,
			Category: "general",
			ActorID:  "tester",
		}); err != nil {
			t.Fatalf("create task %s: %v", name, err)
		}
	}
	receiver := newWebhookReceiver(t, 0)
	d := &webhookDispatcher{
		engine: e,
		urls:   []string{receiver.srv.URL},
		client: &http.Client{Timeout: time.Second},
		log:    zap.NewNop().Sugar(),
	}

	d.dispatch(ctx)
	if len(receiver.events) != 3 {
		t.Fatalf("deliveries = %d, want 3", len(receiver.events))
	}
	for i := 1; i < len(receiver.events); i++ {
		if receiver.events[i].ID <= receiver.events[i-1].ID {
			t.Fatalf("events delivered out of order: %d after %d",
				receiver.events[i].ID, receiver.events[i-1].ID)
		}
	}
	cursor, err := e.Repo.WebhookCursor(ctx)
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if want := receiver.events[2].ID; cursor != want {
		t.Fatalf("cursor = %d, want %d", cursor, want)
	}
	// No secret configured, so the header stays off the wire.
	if got := receiver.headers[0].Get("X-Officedesk-Secret"); got != "" {
		t.Fatalf("X-Officedesk-Secret = %q, want empty", got)
	}
}

func TestWebhookRunStopsOnCancel(t *testing.T) {
	e := newTestEngine(t, config.Default())
	d := &webhookDispatcher{
		engine: e,
		urls:   []string{"http://127.0.0.1:0"},
		client: &http.Client{Timeout: 100 * time.Millisecond},
		log:    zap.NewNop().Sugar(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.run(ctx, 10*time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}
}
