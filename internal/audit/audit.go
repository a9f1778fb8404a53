// Package audit records circulation transitions in an informational sink.
// Recording never blocks or fails a circulation operation.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"library-circulation-backend/internal/logger"
)

// Entry is one recorded transition.
type Entry struct {
	ID       string         `json:"id"`
	At       time.Time      `json:"at"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID int64          `json:"entity_id"`
	PatronID int64          `json:"patron_id,omitempty"`
	Detail   map[string]any `json:"detail,omitempty"`
}

// NewEntry stamps an entry with a fresh id and the current time.
func NewEntry(action, entity string, entityID, patronID int64, detail map[string]any) Entry {
	return Entry{
		ID:       uuid.NewString(),
		At:       time.Now().UTC(),
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		PatronID: patronID,
		Detail:   detail,
	}
}

type Recorder interface {
	Record(ctx context.Context, entries ...Entry) error
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, ...Entry) error { return nil }

// LogRecorder writes entries to the structured logger.
type LogRecorder struct{}

func (LogRecorder) Record(_ context.Context, entries ...Entry) error {
	l := logger.WithService("audit")
	for _, e := range entries {
		l.Info("audit", "id", e.ID, "action", e.Action, "entity", e.Entity,
			"entityID", e.EntityID, "patronID", e.PatronID, "detail", e.Detail)
	}
	return nil
}

// Safe records entries and swallows the error after logging it.
func Safe(ctx context.Context, r Recorder, entries ...Entry) {
	if r == nil || len(entries) == 0 {
		return
	}
	if err := r.Record(ctx, entries...); err != nil {
		logger.Warn("Failed to record audit entries", "count", len(entries), "error", err)
	}
}
