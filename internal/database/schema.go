package database

import (
	"context"
	"fmt"

	"paintball-ticketing/internal/models"

	"github.com/uptrace/bun"
)

var schemaModels = []any{
	(*models.Customer)(nil),
	(*models.Order)(nil),
	(*models.Ticket)(nil),
	(*models.TicketScan)(nil),
	(*models.TicketSettings)(nil),
	(*models.AuditLog)(nil),
}

// CreateSchema builds the tables straight from the models. Postgres deployments use
// the versioned migrations instead; this serves sqlite dev mode and tests.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, m := range schemaModels {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}

	indexes := []struct {
		model   any
		name    string
		columns []string
	}{
		{(*models.Order)(nil), "idx_orders_customer_id", []string{"customer_id"}},
		{(*models.Order)(nil), "idx_orders_payment_reference", []string{"payment_reference"}},
		{(*models.Ticket)(nil), "idx_tickets_order_id", []string{"order_id"}},
		{(*models.TicketScan)(nil), "idx_ticket_scans_ticket_code", []string{"ticket_code"}},
		{(*models.TicketScan)(nil), "idx_ticket_scans_scanned_at", []string{"scanned_at"}},
	}
	for _, idx := range indexes {
		if _, err := db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.columns...).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}
