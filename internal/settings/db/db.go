package db

import (
	"context"

	"paintball-ticketing/internal/database"
	"paintball-ticketing/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// GetSettings returns database.ErrNotFound when the singleton row is absent.
func (d *DB) GetSettings(ctx context.Context) (*models.TicketSettings, error) {
	var s models.TicketSettings
	err := database.Conn(ctx, d.Bun).NewSelect().
		Model(&s).
		Where("id = ?", models.TicketSettingsID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &s, nil
}

// CreateSettings inserts the row unless another instance won the race.
func (d *DB) CreateSettings(ctx context.Context, s *models.TicketSettings) error {
	s.ID = models.TicketSettingsID
	_, err := database.Conn(ctx, d.Bun).NewInsert().
		Model(s).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	return err
}

func (d *DB) UpdateSettings(ctx context.Context, s *models.TicketSettings) error {
	s.ID = models.TicketSettingsID
	_, err := database.Conn(ctx, d.Bun).NewUpdate().
		Model(s).
		Column("max_scan_count", "scan_window_days", "validity_days", "base_price", "updated_at", "updated_by").
		WherePK().
		Exec(ctx)
	return err
}
