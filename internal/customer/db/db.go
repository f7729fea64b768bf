package db

import (
	"context"
	"strings"
	"time"

	"paintball-ticketing/internal/database"
	"paintball-ticketing/internal/models"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) CreateCustomer(ctx context.Context, c *models.Customer) error {
	_, err := database.Conn(ctx, d.Bun).NewInsert().Model(c).Exec(ctx)
	return err
}

func (d *DB) GetCustomerByID(ctx context.Context, id string) (*models.Customer, error) {
	var c models.Customer
	err := database.Conn(ctx, d.Bun).NewSelect().
		Model(&c).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &c, nil
}

func (d *DB) GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	var c models.Customer
	err := database.Conn(ctx, d.Bun).NewSelect().
		Model(&c).
		Where("LOWER(email) = ?", strings.ToLower(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &c, nil
}

// ListCustomers matches search against name and email and returns the page plus the total.
func (d *DB) ListCustomers(ctx context.Context, search string, limit, offset int) ([]models.Customer, int, error) {
	customers := make([]models.Customer, 0)
	q := database.Conn(ctx, d.Bun).NewSelect().
		Model(&customers).
		OrderExpr("created_at DESC").
		Limit(limit).
		Offset(offset)
	if search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("LOWER(name) LIKE ?", pattern).WhereOr("LOWER(email) LIKE ?", pattern)
		})
	}
	total, err := q.ScanAndCount(ctx)
	return customers, total, err
}

// AdjustStats applies a signed delta to the aggregate columns in one statement so
// concurrent confirmations never lose an update.
func (d *DB) AdjustStats(ctx context.Context, id string, orders int, spent decimal.Decimal, lastPurchase *time.Time, at time.Time) error {
	q := database.Conn(ctx, d.Bun).NewUpdate().
		Model((*models.Customer)(nil)).
		Set("total_orders = total_orders + ?", orders).
		Set("total_spent = total_spent + ?", spent).
		Set("updated_at = ?", at).
		Where("id = ?", id)
	if lastPurchase != nil {
		q = q.Set("last_purchase = ?", *lastPurchase)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return database.ErrNotFound
	}
	return nil
}
