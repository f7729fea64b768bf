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

// ListFilter narrows ListOrders; zero values match everything.
type ListFilter struct {
	Status     models.OrderStatus
	CustomerID string
	Limit      int
	Offset     int
}

func (d *DB) CreateOrder(ctx context.Context, order *models.Order) error {
	_, err := database.Conn(ctx, d.Bun).NewInsert().Model(order).Exec(ctx)
	return err
}

func (d *DB) OrderNumberExists(ctx context.Context, number string) (bool, error) {
	return database.Conn(ctx, d.Bun).NewSelect().
		Model((*models.Order)(nil)).
		Where("order_number = ?", number).
		Exists(ctx)
}

// GetOrderByID returns database.ErrNotFound when absent. forUpdate locks the row
// for the rest of the transaction.
func (d *DB) GetOrderByID(ctx context.Context, id string, forUpdate bool) (*models.Order, error) {
	var order models.Order
	q := database.Conn(ctx, d.Bun).NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1)
	if forUpdate {
		q = database.ForUpdate(d.Bun, q)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, database.NotFound(err)
	}
	return &order, nil
}

func (d *DB) GetOrderByReference(ctx context.Context, reference string) (*models.Order, error) {
	var order models.Order
	err := database.Conn(ctx, d.Bun).NewSelect().
		Model(&order).
		Where("payment_reference = ?", reference).
		OrderExpr("purchased_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &order, nil
}

func (d *DB) ListOrders(ctx context.Context, f ListFilter) ([]models.Order, int, error) {
	orders := make([]models.Order, 0)
	q := database.Conn(ctx, d.Bun).NewSelect().
		Model(&orders).
		OrderExpr("purchased_at DESC").
		Limit(f.Limit).
		Offset(f.Offset)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.CustomerID != "" {
		q = q.Where("customer_id = ?", f.CustomerID)
	}
	total, err := q.ScanAndCount(ctx)
	return orders, total, err
}

// UpdateOrder writes the named columns plus updated_at.
func (d *DB) UpdateOrder(ctx context.Context, order *models.Order, columns ...string) error {
	_, err := database.Conn(ctx, d.Bun).NewUpdate().
		Model(order).
		Column(append(columns, "updated_at")...).
		WherePK().
		Exec(ctx)
	return err
}
