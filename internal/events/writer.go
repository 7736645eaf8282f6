package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends audit events inside the transaction that performs the
// mutation, so an event exists exactly when its change committed. Now is
// the clock injected by the engine.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

const insertEvent = `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json)
VALUES (?,?,?,?,?,?,?)`

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, projectID, entityKind, entityID, actorID string, payload EventPayload) error {
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	ts := w.clock().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx, insertEvent,
		ts, evtType, orNull(projectID), entityKind, orNull(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}

func (w Writer) clock() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// project_id and entity_id columns are nullable so cross-entity events
// stay queryable without sentinel values.
func orNull(v string) any {
	if v == "" {
		return nil
	}
	return v
}
