// Package audit defines the append-only audit trail the engine writes to.
// Delivery is best effort: a Sink never blocks and never fails its caller.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ActionCreateOrder = "CREATE_ORDER"
	ActionAddItem     = "ADD_ITEM"
	ActionRemoveItem  = "REMOVE_ITEM"
	ActionCheckout    = "CHECKOUT"
	ActionVoidOrder   = "VOID_ORDER"
	ActionAdjustStock = "ADJUST_STOCK"
)

const (
	EntityOrder     = "Order"
	EntityInventory = "Inventory"
)

type Entry struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actorId"`
	Action     string         `json:"action"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entityId"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// NewEntry stamps an id and time on a record.
func NewEntry(actorID, action, entity, entityID string, meta map[string]any) Entry {
	return Entry{
		ID:         uuid.NewString(),
		ActorID:    actorID,
		Action:     action,
		Entity:     entity,
		EntityID:   entityID,
		Metadata:   meta,
		OccurredAt: time.Now().UTC(),
	}
}

type Sink interface {
	Record(ctx context.Context, e Entry)
}

// LogSink writes entries to the structured log only.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Record(_ context.Context, e Entry) {
	s.Logger.Info("audit",
		zap.String("audit_id", e.ID),
		zap.String("actor_id", e.ActorID),
		zap.String("action", e.Action),
		zap.String("entity", e.Entity),
		zap.String("entity_id", e.EntityID),
		zap.Any("metadata", e.Metadata),
	)
}

// Multi fans an entry out to several sinks.
type Multi []Sink

func (m Multi) Record(ctx context.Context, e Entry) {
	for _, s := range m {
		s.Record(ctx, e)
	}
}

// MemorySink keeps entries in process; handy for tests and the demo backend.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

func (s *MemorySink) Record(_ context.Context, e Entry) {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
}

func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// ByAction filters recorded entries.
func (s *MemorySink) ByAction(action string) []Entry {
	var out []Entry
	for _, e := range s.Entries() {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}
