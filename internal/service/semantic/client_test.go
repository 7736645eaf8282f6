package semantic

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func sidecarStub(t *testing.T, healthy bool, probes *int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			if probes != nil {
				atomic.AddInt64(probes, 1)
			}
			if !healthy {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"chunks":[{"text":"minutes from last week","score":0.8}]}`)
	}))
}

func TestContextConcurrent(t *testing.T) {
	stub := sidecarStub(t, true, nil)
	defer stub.Close()

	c := New(stub.URL, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			chunks, err := c.Context(context.Background(), "p1", "minutes", 5)
			if err != nil {
				t.Errorf("context: %v", err)
				return
			}
			if len(chunks) != 1 {
				t.Errorf("expected one chunk, got %d", len(chunks))
			}
		}()
	}
	wg.Wait()
}

func TestAvailableCachesProbe(t *testing.T) {
	var probes int64
	stub := sidecarStub(t, true, &probes)
	defer stub.Close()

	c := New(stub.URL, time.Minute)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if !c.Available(ctx) {
			t.Fatalf("expected available")
		}
	}
	if n := atomic.LoadInt64(&probes); n != 1 {
		t.Fatalf("expected one probe within ttl, got %d", n)
	}
}

func TestUnhealthySidecarDegrades(t *testing.T) {
	stub := sidecarStub(t, false, nil)
	defer stub.Close()

	c := New(stub.URL, time.Minute)
	ctx := context.Background()
	if c.Available(ctx) {
		t.Fatalf("expected unavailable")
	}
	chunks, err := c.Context(ctx, "p1", "minutes", 5)
	if err != nil || chunks != nil {
		t.Fatalf("expected silent degradation, got %v %v", chunks, err)
	}
}

func TestNoBaseURL(t *testing.T) {
	c := New("", time.Minute)
	if c.Available(context.Background()) {
		t.Fatalf("expected unavailable without base url")
	}
}

func TestPrompt(t *testing.T) {
	if Prompt(nil) != "" {
		t.Fatalf("expected empty prompt for no chunks")
	}
	got := Prompt([]Chunk{{Text: "a"}, {Text: "b"}})
	want := "Relevant project context:\n- a\n- b\n"
	if got != want {
		t.Fatalf("prompt = %q, want %q", got, want)
	}
}
