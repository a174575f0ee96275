// Package audit defines the audit trail contract for history-rewriting
// operations (cost corrections, damage write-offs).
package audit

import (
	"context"
	"encoding/json"

	"lotledger/internal/core/id"
)

// Action is the type of audited operation.
type Action string

const (
	ActionCostCorrection Action = "cost_correction"
	ActionDamage         Action = "damage"
	ActionRestock        Action = "restock"
)

// Entry is a single audit record. Changes carries a before/after
// snapshot serialized as JSON; the store may compress it.
type Entry struct {
	EntityType string
	EntityID   id.ID
	Action     Action
	Changes    json.RawMessage
}

// Recorder persists audit entries. The Postgres implementation
// compresses large payloads; tests use NopRecorder.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// NopRecorder discards audit entries.
type NopRecorder struct{}

func (NopRecorder) Record(ctx context.Context, entry Entry) error { return nil }

// Snapshot builds the canonical before/after payload.
func Snapshot(before, after any) (json.RawMessage, error) {
	return json.Marshal(map[string]any{
		"before": before,
		"after":  after,
	})
}
