package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"officedesk/internal/config"
)

func openAIStub(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"message":{"content":"`+reply+`"}}]}`)
	}))
}

func TestChatConcurrent(t *testing.T) {
	stub := openAIStub(t, "ok")
	defer stub.Close()

	c := New(config.LLM{
		Provider: "openai",
		OpenAI:   config.Provider{BaseURL: stub.URL, APIKey: "k", Model: "m"},
	})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := c.Chat(context.Background(), Request{Message: "hello"})
			if err != nil {
				errs <- err
				return
			}
			if resp.Reply != "ok" {
				errs <- errors.New("unexpected reply " + resp.Reply)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("chat: %v", err)
	}
}

func TestChatMissingKey(t *testing.T) {
	c := New(config.LLM{Provider: "openai"})
	_, err := c.Chat(context.Background(), Request{Message: "hello"})
	if !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestChatUnknownProvider(t *testing.T) {
	c := New(config.LLM{})
	_, err := c.Chat(context.Background(), Request{Message: "hello", Provider: "llama-at-home"})
	if err == nil {
		t.Fatalf("expected unknown provider error")
	}
}

func TestChatProviderErrorWrapped(t *testing.T) {
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer stub.Close()

	c := New(config.LLM{
		Provider:  "anthropic",
		Anthropic: config.Provider{BaseURL: stub.URL, APIKey: "k", Model: "m"},
	})
	_, err := c.Chat(context.Background(), Request{Message: "hello"})
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.Provider != "anthropic" || pe.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected provider error %+v", pe)
	}
}

func TestResolveModelPrecedence(t *testing.T) {
	var gotBody []byte
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer stub.Close()

	c := New(config.LLM{
		Provider: "openai",
		Model:    "config-model",
		OpenAI:   config.Provider{BaseURL: stub.URL, APIKey: "k", Model: "provider-model"},
	})
	resp, err := c.Chat(context.Background(), Request{Message: "hi", Model: "request-model"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Model != "request-model" {
		t.Fatalf("expected request model to win, got %s", resp.Model)
	}
	if len(gotBody) == 0 {
		t.Fatalf("expected provider request body")
	}
}
