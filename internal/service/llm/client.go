package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"officedesk/internal/config"
)

// ErrNoAPIKey reports that the resolved provider has no key configured.
var ErrNoAPIKey = errors.New("no api key configured for provider")

// Client proxies chat requests to a hosted model provider.
type Client struct {
	Config     config.LLM
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(cfg config.LLM) *Client {
	timeout := 60 * time.Second
	return &Client{
		Config:     cfg,
		HTTPClient: &http.Client{Timeout: timeout},
		Timeout:    timeout,
	}
}

// Request is a single chat exchange. System is optional context
// prepended to the conversation.
type Request struct {
	Message  string
	System   string
	Provider string
	Model    string
}

// Response is the provider's reply plus the provider/model actually used.
type Response struct {
	Reply    string
	Provider string
	Model    string
}

// ProviderError wraps non-2xx provider responses.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: status=%d body=%s", e.Provider, e.StatusCode, e.Body)
}

// Chat resolves the provider and model, sends the message, and returns
// the reply.
func (c *Client) Chat(ctx context.Context, req Request) (Response, error) {
	provider := req.Provider
	if provider == "" {
		provider = c.Config.Provider
	}
	if provider == "" {
		provider = "openai"
	}
	switch provider {
	case "openai":
		return c.chatOpenAI(ctx, req)
	case "anthropic":
		return c.chatAnthropic(ctx, req)
	default:
		return Response{}, fmt.Errorf("unknown provider %q", provider)
	}
}

func (c *Client) resolveModel(req Request, p config.Provider) string {
	if req.Model != "" {
		return req.Model
	}
	if c.Config.Model != "" {
		return c.Config.Model
	}
	return p.Model
}

func (c *Client) chatOpenAI(ctx context.Context, req Request) (Response, error) {
	p := c.Config.OpenAI
	if p.APIKey == "" {
		return Response{}, fmt.Errorf("openai: %w", ErrNoAPIKey)
	}
	model := c.resolveModel(req, p)
	messages := []map[string]string{}
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.Message})
	body := map[string]any{
		"model":    model,
		"messages": messages,
	}
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	headers := map[string]string{"Authorization": "Bearer " + p.APIKey}
	if err := c.post(ctx, "openai", p.BaseURL, "/chat/completions", headers, body, &out); err != nil {
		return Response{}, err
	}
	if len(out.Choices) == 0 {
		return Response{}, fmt.Errorf("openai: empty choices in response")
	}
	return Response{Reply: out.Choices[0].Message.Content, Provider: "openai", Model: model}, nil
}

func (c *Client) chatAnthropic(ctx context.Context, req Request) (Response, error) {
	p := c.Config.Anthropic
	if p.APIKey == "" {
		return Response{}, fmt.Errorf("anthropic: %w", ErrNoAPIKey)
	}
	model := c.resolveModel(req, p)
	body := map[string]any{
		"model":      model,
		"max_tokens": 1024,
		"messages": []map[string]string{
			{"role": "user", "content": req.Message},
		},
	}
	if req.System != "" {
		body["system"] = req.System
	}
	var out struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	headers := map[string]string{
		"x-api-key":         p.APIKey,
		"anthropic-version": "2023-06-01",
	}
	if err := c.post(ctx, "anthropic", p.BaseURL, "/v1/messages", headers, body, &out); err != nil {
		return Response{}, err
	}
	if len(out.Content) == 0 {
		return Response{}, fmt.Errorf("anthropic: empty content in response")
	}
	return Response{Reply: out.Content[0].Text, Provider: "anthropic", Model: model}, nil
}

func (c *Client) post(ctx context.Context, provider, baseURL, endpoint string, headers map[string]string, body any, out any) error {
	// Chat handlers call this concurrently; the Client is never written here.
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: c.Timeout}
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}
	url := strings.TrimRight(baseURL, "/") + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", provider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &ProviderError{Provider: provider, StatusCode: resp.StatusCode, Body: string(b)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
