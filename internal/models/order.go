package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
)

type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID               string              `bun:"id,pk,type:uuid" json:"id"`
	OrderNumber      string              `bun:"order_number,notnull,unique" json:"orderNumber"`
	CustomerID       string              `bun:"customer_id,type:uuid,notnull" json:"customerId"`
	Quantity         int                 `bun:"quantity,notnull" json:"quantity"`
	Amount           decimal.Decimal     `bun:"amount,type:numeric(12,2),notnull" json:"amount"`
	Status           OrderStatus         `bun:"status,notnull" json:"status"`
	SessionLabel     string              `bun:"session_label" json:"sessionLabel,omitempty"`
	PaymentReference string              `bun:"payment_reference,nullzero" json:"paymentReference,omitempty"`
	PaymentMethod    string              `bun:"payment_method,nullzero" json:"paymentMethod,omitempty"`
	PaidAt           *time.Time          `bun:"paid_at" json:"paidAt,omitempty"`
	PaidAmount       decimal.NullDecimal `bun:"paid_amount,type:numeric(12,2)" json:"paidAmount"`
	RefundedAt       *time.Time          `bun:"refunded_at" json:"refundedAt,omitempty"`
	RefundReason     string              `bun:"refund_reason,nullzero" json:"refundReason,omitempty"`
	PurchasedAt      time.Time           `bun:"purchased_at,notnull" json:"purchasedAt"`
	UpdatedAt        time.Time           `bun:"updated_at,notnull" json:"updatedAt"`

	Tickets []Ticket `bun:"-" json:"tickets,omitempty"`
}
