package shared

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog captures a mutating action for the audit trail.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditStore persists audit entries in PostgreSQL.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore constructs the store.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Record writes one audit entry. Failures are returned to the caller, who may
// treat the trail as best effort.
func (s *AuditStore) Record(ctx context.Context, log AuditLog) error {
	if s == nil {
		return nil
	}
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	meta, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		log.ActorID, log.Action, log.Entity, log.EntityID, meta, log.At)
	return err
}
