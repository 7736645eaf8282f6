package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Client talks to the semantic context sidecar. A missing or unhealthy
// sidecar is not an error condition for callers: Context returns no
// chunks and chats proceed without project context.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	ProbeTTL   time.Duration

	mu        sync.Mutex
	probedAt  time.Time
	available bool
}

// New creates a client with sane defaults.
func New(baseURL string, probeTTL time.Duration) *Client {
	if probeTTL <= 0 {
		probeTTL = 30 * time.Second
	}
	timeout := 10 * time.Second
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
		Timeout:    timeout,
		ProbeTTL:   probeTTL,
	}
}

// Chunk is one retrieved context passage.
type Chunk struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Available reports sidecar health, probing at most once per ProbeTTL.
func (c *Client) Available(ctx context.Context) bool {
	if c.BaseURL == "" {
		return false
	}
	c.mu.Lock()
	if time.Since(c.probedAt) < c.ProbeTTL {
		ok := c.available
		c.mu.Unlock()
		return ok
	}
	c.mu.Unlock()

	ok := c.probe(ctx)

	c.mu.Lock()
	c.available = ok
	c.probedAt = time.Now()
	c.mu.Unlock()
	return ok
}

func (c *Client) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Context returns relevant chunks for a project query, or nil when the
// sidecar is unavailable or has nothing.
func (c *Client) Context(ctx context.Context, projectID, query string, limit int) ([]Chunk, error) {
	if !c.Available(ctx) {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}
	endpoint := fmt.Sprintf("%s/projects/%s/context?query=%s&limit=%d",
		c.base(), url.PathEscape(projectID), url.QueryEscape(query), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		// A mid-TTL outage degrades to no context rather than failing the chat.
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	var out struct {
		Chunks []Chunk `json:"chunks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Chunks, nil
}

// Prompt renders chunks into a system prompt block, newest relevance first.
func Prompt(chunks []Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant project context:\n")
	for _, ch := range chunks {
		b.WriteString("- ")
		b.WriteString(ch.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// httpClient never writes to the Client; requests may run concurrently.
func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.Timeout}
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
