package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"officedesk/internal/domain"
	"officedesk/internal/engine"
)

const (
	defaultWebhookInterval = 5 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// webhookDispatcher tails the event log and posts new events to the
// configured URLs. The cursor is persisted so restarts do not replay
// already-delivered events.
type webhookDispatcher struct {
	engine engine.Engine
	urls   []string
	secret string
	client *http.Client
	log    *zap.SugaredLogger
}

// StartWebhookDispatcher runs the dispatcher until ctx is cancelled.
// It is a no-op when no webhook URLs are configured.
func StartWebhookDispatcher(ctx context.Context, e engine.Engine, log *zap.SugaredLogger) {
	if e.Config == nil || len(e.Config.Webhooks.URLs) == 0 {
		return
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	d := &webhookDispatcher{
		engine: e,
		urls:   e.Config.Webhooks.URLs,
		secret: e.Config.Webhooks.Secret,
		client: &http.Client{Timeout: defaultWebhookTimeout},
		log:    log,
	}
	interval := e.Config.Webhooks.PollInterval
	if interval <= 0 {
		interval = defaultWebhookInterval
	}
	go d.run(ctx, interval)
}

func (d *webhookDispatcher) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d.dispatch(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *webhookDispatcher) dispatch(ctx context.Context) {
	cursor, err := d.engine.Repo.WebhookCursor(ctx)
	if err != nil {
		d.log.Warnw("webhook cursor read failed", "error", err)
		return
	}
	events, err := d.engine.Repo.EventsAfter(ctx, defaultWebhookBatch, cursor)
	if err != nil {
		d.log.Warnw("webhook event fetch failed", "error", err)
		return
	}
	for _, evt := range events {
		if err := d.deliver(ctx, evt); err != nil {
			// Leave the cursor where it is so the event retries next tick.
			return
		}
		if err := d.engine.Repo.SetWebhookCursor(ctx, evt.ID); err != nil {
			d.log.Warnw("webhook cursor write failed", "error", err)
			return
		}
	}
}

// deliver posts one event to every URL. Delivery is all-or-nothing per
// event so a failing endpoint blocks cursor advancement.
func (d *webhookDispatcher) deliver(ctx context.Context, evt domain.Event) error {
	for _, u := range d.urls {
		if strings.TrimSpace(u) == "" {
			continue
		}
		if err := d.postEvent(ctx, u, evt); err != nil {
			d.log.Warnw("webhook delivery failed", "url", u, "event_id", evt.ID, "error", err)
			return err
		}
	}
	return nil
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	ProjectID  string          `json:"project_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func (d *webhookDispatcher) postEvent(ctx context.Context, url string, evt domain.Event) error {
	payload := json.RawMessage([]byte("{}"))
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage([]byte(evt.Payload))
	}
	body := webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		ProjectID:  evt.ProjectID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Officedesk-Event", evt.Type)
	req.Header.Set("X-Officedesk-Delivery", fmt.Sprintf("%d", evt.ID))
	if strings.TrimSpace(d.secret) != "" {
		req.Header.Set("X-Officedesk-Secret", d.secret)
	}
	res, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}
