package db

import (
	"context"
	"time"

	"paintball-ticketing/internal/database"
	"paintball-ticketing/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) CreateTickets(ctx context.Context, tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	_, err := database.Conn(ctx, d.Bun).NewInsert().Model(&tickets).Exec(ctx)
	return err
}

func (d *DB) CodeExists(ctx context.Context, code string) (bool, error) {
	return database.Conn(ctx, d.Bun).NewSelect().
		Model((*models.Ticket)(nil)).
		Where("code = ?", code).
		Exists(ctx)
}

// GetTicketByCode returns database.ErrNotFound for unknown codes. With forUpdate the
// row stays locked until the surrounding transaction ends.
func (d *DB) GetTicketByCode(ctx context.Context, code string, forUpdate bool) (*models.Ticket, error) {
	var ticket models.Ticket
	q := database.Conn(ctx, d.Bun).NewSelect().
		Model(&ticket).
		Where("code = ?", code).
		Limit(1)
	if forUpdate {
		q = database.ForUpdate(d.Bun, q)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, database.NotFound(err)
	}
	return &ticket, nil
}

func (d *DB) ListTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error) {
	tickets := make([]models.Ticket, 0)
	err := database.Conn(ctx, d.Bun).NewSelect().
		Model(&tickets).
		Where("order_id = ?", orderID).
		Order("code ASC").
		Scan(ctx)
	return tickets, err
}

// UpdateTicket writes only the named columns; updated_at is always included.
func (d *DB) UpdateTicket(ctx context.Context, ticket *models.Ticket, columns ...string) error {
	_, err := database.Conn(ctx, d.Bun).NewUpdate().
		Model(ticket).
		Column(append(columns, "updated_at")...).
		WherePK().
		Exec(ctx)
	return err
}

// UpdateStatusByOrder moves every ticket of the order in one of the from states to to.
func (d *DB) UpdateStatusByOrder(ctx context.Context, orderID string, from []models.TicketStatus, to models.TicketStatus, at time.Time) (int64, error) {
	res, err := database.Conn(ctx, d.Bun).NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", at).
		Where("order_id = ?", orderID).
		Where("status IN (?)", bun.In(from)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *DB) InsertScan(ctx context.Context, scan *models.TicketScan) error {
	_, err := database.Conn(ctx, d.Bun).NewInsert().Model(scan).Exec(ctx)
	return err
}

// ListScans returns the attempts recorded against a code, newest first. Scan ids
// are time-ordered, so attempts within the same instant keep insertion order.
func (d *DB) ListScans(ctx context.Context, code string, limit int) ([]models.TicketScan, error) {
	scans := make([]models.TicketScan, 0)
	q := database.Conn(ctx, d.Bun).NewSelect().
		Model(&scans).
		Where("ticket_code = ?", code).
		OrderExpr("scanned_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Scan(ctx)
	return scans, err
}
