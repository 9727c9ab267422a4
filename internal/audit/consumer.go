package audit

import (
	"context"
	"encoding/json"
	"fmt"

	kafkax "github.com/ariefcatur/go-pos-checkout/internal/kafka"
	"github.com/ariefcatur/go-pos-checkout/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type appender interface {
	Append(ctx context.Context, e Entry) error
}

// Recorder consumes the audit topic and persists each entry once.
type Recorder struct {
	Store       appender
	Redis       redis.Cmdable // optional; nil disables the dedup shortcut
	ServiceName string
	Log         *zap.Logger
}

// HandleMessage is installed as the kafka consumer handler.
func (r *Recorder) HandleMessage(ctx context.Context, m kafkago.Message) error {
	var env Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		r.Log.Warn("skipping undecodable audit message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != EventAuditRecorded {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, r.ServiceName, env.EventID)
	if r.Redis != nil {
		if seen, _ := redisx.Exists(ctx, r.Redis, dkey); seen {
			return nil
		}
	}

	e, err := kafkax.UnwrapPayload[Entry](env.Payload)
	if err != nil {
		r.Log.Warn("skipping audit message with bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	if err := r.Store.Append(ctx, e); err != nil {
		return fmt.Errorf("append audit %s: %w", e.ID, err)
	}
	if r.Redis != nil {
		_ = r.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}
	return nil
}
