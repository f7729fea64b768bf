// Package payment talks to the card processors that collect order payments.
package payment

import (
	"context"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	ErrChargeNotFound   = errors.New("charge not found at gateway")
)

// ChargeRequest starts a hosted checkout for one order.
type ChargeRequest struct {
	OrderID     string
	OrderNumber string
	Email       string
	Amount      decimal.Decimal
	Currency    string
	CallbackURL string
}

type Charge struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorizationUrl"`
}

// Verification is the gateway's view of a charge.
type Verification struct {
	Reference string
	OrderID   string
	Paid      bool
	Amount    decimal.Decimal
	Method    string
	Status    string
}

// WebhookEvent is a verified notification. Reference is empty for events the
// service does not act on.
type WebhookEvent struct {
	Type      string
	Reference string
	OrderID   string
}

type Gateway interface {
	Name() string
	InitializeCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	VerifyCharge(ctx context.Context, reference string) (*Verification, error)
	// ParseWebhook authenticates the payload before decoding it.
	ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error)
}

// minorUnits converts 25.50 to 2550.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func fromMinorUnits(n int64) decimal.Decimal {
	return decimal.New(n, -2)
}
