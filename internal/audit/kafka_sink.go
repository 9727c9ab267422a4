package audit

import (
	"context"
	"time"

	kafkax "github.com/ariefcatur/go-pos-checkout/internal/kafka"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

type publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header) bool
}

// KafkaSink publishes entries to the audit topic through the async producer.
type KafkaSink struct {
	Producer publisher
	Service  string
}

func (s KafkaSink) Record(ctx context.Context, e Entry) {
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventAuditRecorded,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.Service,
		CorrelationID: e.EntityID,
		Payload:       kafkax.MustMarshal(e),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		ev.TraceID = sc.TraceID().String()
	}
	s.Producer.Publish(PartitionKey(e), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(EventAuditRecorded)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
