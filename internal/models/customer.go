package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type Customer struct {
	bun.BaseModel `bun:"table:customers,alias:c"`

	ID           string          `bun:"id,pk,type:uuid" json:"id"`
	Name         string          `bun:"name,notnull" json:"name"`
	Email        string          `bun:"email,notnull,unique" json:"email"`
	Phone        string          `bun:"phone" json:"phone,omitempty"`
	TotalOrders  int             `bun:"total_orders,notnull,default:0" json:"totalOrders"`
	TotalSpent   decimal.Decimal `bun:"total_spent,type:numeric(12,2),notnull,default:0" json:"totalSpent"`
	LastPurchase *time.Time      `bun:"last_purchase" json:"lastPurchase,omitempty"`
	CreatedAt    time.Time       `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt    time.Time       `bun:"updated_at,notnull" json:"updatedAt"`
}
