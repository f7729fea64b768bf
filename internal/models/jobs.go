package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Job names carried on the queue and consumed by the mailer.
const (
	EventOrderCreated          = "order.created"
	EventOrderPaymentConfirmed = "order.payment_confirmed"
	EventOrderRefunded         = "order.refunded"
)

// OrderNotification is the payload of every order email job.
type OrderNotification struct {
	OrderID       string          `json:"orderId"`
	OrderNumber   string          `json:"orderNumber"`
	CustomerName  string          `json:"customerName"`
	CustomerEmail string          `json:"customerEmail"`
	Quantity      int             `json:"quantity"`
	Amount        decimal.Decimal `json:"amount"`
	SessionLabel  string          `json:"sessionLabel,omitempty"`
	TicketCodes   []string        `json:"ticketCodes,omitempty"`
	ValidUntil    *time.Time      `json:"validUntil,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// NewOrderNotification builds the job payload from an order, its customer and tickets.
func NewOrderNotification(o *Order, c *Customer, tickets []Ticket) OrderNotification {
	n := OrderNotification{
		OrderID:      o.ID,
		OrderNumber:  o.OrderNumber,
		Quantity:     o.Quantity,
		Amount:       o.Amount,
		SessionLabel: o.SessionLabel,
		Reason:       o.RefundReason,
	}
	if c != nil {
		n.CustomerName = c.Name
		n.CustomerEmail = c.Email
	}
	for i := range tickets {
		n.TicketCodes = append(n.TicketCodes, tickets[i].Code)
		if n.ValidUntil == nil {
			v := tickets[i].ValidUntil
			n.ValidUntil = &v
		}
	}
	return n
}
