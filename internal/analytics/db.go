package analytics

import (
	"context"
	"time"

	"paintball-ticketing/internal/models"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

type StatusCount struct {
	Status string          `bun:"status" json:"status"`
	Count  int             `bun:"count" json:"count"`
	Amount decimal.Decimal `bun:"amount" json:"amount"`
}

type ScanCounts struct {
	Total  int `bun:"total"`
	Denied int `bun:"denied"`
}

type Sale struct {
	PaidAt   time.Time       `bun:"paid_at"`
	Amount   decimal.Decimal `bun:"amount"`
	Quantity int             `bun:"quantity"`
}

func (d *DB) OrdersByStatus(ctx context.Context) ([]StatusCount, error) {
	var rows []StatusCount
	err := d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		ColumnExpr("status").
		ColumnExpr("COUNT(*) AS count").
		ColumnExpr("COALESCE(SUM(amount), 0) AS amount").
		Group("status").
		Order("status").
		Scan(ctx, &rows)
	return rows, err
}

func (d *DB) TicketsByStatus(ctx context.Context) ([]StatusCount, error) {
	var rows []StatusCount
	err := d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		ColumnExpr("status").
		ColumnExpr("COUNT(*) AS count").
		ColumnExpr("0 AS amount").
		Group("status").
		Order("status").
		Scan(ctx, &rows)
	return rows, err
}

// ScansSince counts scan attempts at or after since.
func (d *DB) ScansSince(ctx context.Context, since time.Time) (ScanCounts, error) {
	var c ScanCounts
	err := d.Bun.NewSelect().
		Model((*models.TicketScan)(nil)).
		ColumnExpr("COUNT(*) AS total").
		ColumnExpr("COALESCE(SUM(CASE WHEN allowed THEN 0 ELSE 1 END), 0) AS denied").
		Where("scanned_at >= ?", since).
		Scan(ctx, &c)
	return c, err
}

// PaidSince lists completed orders paid at or after since.
func (d *DB) PaidSince(ctx context.Context, since time.Time) ([]Sale, error) {
	var rows []Sale
	err := d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		Column("paid_at", "amount", "quantity").
		Where("status = ?", models.OrderCompleted).
		Where("paid_at >= ?", since).
		Order("paid_at").
		Scan(ctx, &rows)
	return rows, err
}
