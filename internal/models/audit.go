package models

import (
	"time"

	"github.com/uptrace/bun"
)

type AuditLog struct {
	bun.BaseModel `bun:"table:audit_logs,alias:al"`

	ID         string         `bun:"id,pk,type:uuid" json:"id"`
	Action     string         `bun:"action,notnull" json:"action"`
	EntityType string         `bun:"entity_type,notnull" json:"entityType"`
	EntityID   string         `bun:"entity_id,notnull" json:"entityId"`
	ActorID    string         `bun:"actor_id" json:"actorId,omitempty"`
	Details    map[string]any `bun:"details,type:jsonb" json:"details,omitempty"`
	CreatedAt  time.Time      `bun:"created_at,notnull" json:"createdAt"`
}
