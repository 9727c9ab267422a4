package audit

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the durable end of the trail: the auditor process appends here.
type Repo struct{ DB *pgxpool.Pool }

// Append is idempotent on the entry id, so redelivered messages are harmless.
func (r *Repo) Append(ctx context.Context, e Entry) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	_, err = r.DB.Exec(ctx, `
		INSERT INTO audit_log(id, actor_id, action, entity, entity_id, meta_json, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.ActorID, e.Action, e.Entity, e.EntityID, meta, e.OccurredAt)
	return err
}
