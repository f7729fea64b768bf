package audit

import (
	"context"
	"fmt"
	"time"

	"paintball-ticketing/internal/database"
	"paintball-ticketing/internal/models"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	ActionOrderCreated    = "order.created"
	ActionOrderPaid       = "order.payment_confirmed"
	ActionOrderCancelled  = "order.cancelled"
	ActionOrderRefunded   = "order.refunded"
	ActionPaymentInit     = "order.payment_initialized"
	ActionTicketCancelled = "ticket.cancelled"
	ActionSettingsUpdated = "settings.updated"
	ActionCustomerCreated = "customer.created"

	EntityOrder          = "order"
	EntityTicket         = "ticket"
	EntityTicketSettings = "ticket_settings"
	EntityCustomer       = "customer"
)

type Entry struct {
	Action     string
	EntityType string
	EntityID   string
	ActorID    string
	Details    map[string]any
}

// Recorder writes audit rows. Callers run it as a post-commit effect, so a failure
// here is logged by the caller and never reaches the business operation.
type Recorder struct {
	db  *bun.DB
	now func() time.Time
}

func NewRecorder(db *bun.DB) *Recorder {
	return &Recorder{db: db, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, e Entry) error {
	row := &models.AuditLog{
		ID:         uuid.NewString(),
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Details:    e.Details,
		CreatedAt:  r.now().UTC(),
	}
	if _, err := database.Conn(ctx, r.db).NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert audit %s: %w", e.Action, err)
	}
	return nil
}

// List returns the trail for one entity, newest first.
func (r *Recorder) List(ctx context.Context, entityType, entityID string) ([]models.AuditLog, error) {
	var rows []models.AuditLog
	err := r.db.NewSelect().
		Model(&rows).
		Where("entity_type = ?", entityType).
		Where("entity_id = ?", entityID).
		Order("created_at DESC").
		Scan(ctx)
	return rows, err
}
