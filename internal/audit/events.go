package audit

import (
	"encoding/json"
	"time"
)

const (
	EventAuditRecorded = "AuditRecorded"
	TopicAudit         = "pos.audit"
)

// Envelope wraps every message on the audit topic.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // entity id
	Payload       json.RawMessage `json:"payload"`
}

// PartitionKey keeps all records of one entity on one partition, in order.
func PartitionKey(e Entry) []byte { return []byte(e.Entity + ":" + e.EntityID) }
