package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	UserCreated      = "user.created"
	TeamCreated      = "team.created"
	ProjectCreated   = "project.created"
	TaskCreated      = "task.created"
	TaskStateChanged = "task.state_changed"
)

// Types lists every event the write path emits.
var Types = []string{UserCreated, TeamCreated, ProjectCreated, TaskCreated, TaskStateChanged}

// Writer appends outbox rows inside the caller's transaction, so an event exists iff its change committed.
type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind string, entityID int64, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339Nano)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, entityID, actorID, string(data)); err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}
