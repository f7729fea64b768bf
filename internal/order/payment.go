package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"paintball-ticketing/internal/apperr"
	"paintball-ticketing/internal/audit"
	"paintball-ticketing/internal/database"
	"paintball-ticketing/internal/models"
	"paintball-ticketing/internal/payment"
	"paintball-ticketing/internal/retry"

	"github.com/shopspring/decimal"
)

const defaultPaymentMethod = "manual"

// ConfirmRequest records a payment against a PENDING order. PaidAmount zero means
// the order amount; Method defaults to "manual".
type ConfirmRequest struct {
	OrderID    string          `json:"-"`
	Reference  string          `json:"paymentReference"`
	PaidAmount decimal.Decimal `json:"paidAmount"`
	Method     string          `json:"paymentMethod"`
}

type PaymentInit struct {
	Order  *models.Order   `json:"order"`
	Charge *payment.Charge `json:"charge"`
}

// ConfirmPayment completes the order, activates its tickets and updates the
// customer aggregates atomically. A second confirmation is rejected, so the
// aggregates move once per order.
func (s *OrderService) ConfirmPayment(ctx context.Context, req ConfirmRequest, actor string) (*models.Order, error) {
	if req.PaidAmount.IsNegative() {
		return nil, apperr.Validation("paid amount cannot be negative")
	}
	method := req.Method
	if method == "" {
		method = defaultPaymentMethod
	}

	var order *models.Order
	err := retry.Do(ctx, s.Retry, func(ctx context.Context) error {
		return s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			o, err := s.loadOrder(ctx, req.OrderID, true)
			if err != nil {
				return err
			}
			switch o.Status {
			case models.OrderCompleted:
				return apperr.ValidationWrap(fmt.Sprintf("order %s is already completed", o.OrderNumber), ErrOrderAlreadyCompleted)
			case models.OrderCancelled:
				return apperr.ValidationWrap(fmt.Sprintf("order %s is cancelled", o.OrderNumber), ErrOrderCancelled)
			}

			paid := req.PaidAmount
			if paid.IsZero() {
				paid = o.Amount
			}
			if paid.LessThan(o.Amount) {
				return apperr.ValidationWrap(fmt.Sprintf("paid amount %s is less than order amount %s",
					paid.StringFixed(2), o.Amount.StringFixed(2)), ErrUnderpaid)
			}

			now := s.Now().UTC()
			o.Status = models.OrderCompleted
			o.PaidAt = &now
			o.PaidAmount = decimal.NewNullDecimal(paid)
			o.PaymentMethod = method
			if req.Reference != "" {
				o.PaymentReference = req.Reference
			}
			o.UpdatedAt = now
			if err := s.DB.UpdateOrder(ctx, o, "status", "paid_at", "paid_amount", "payment_method", "payment_reference"); err != nil {
				return fmt.Errorf("complete order: %w", err)
			}

			if err := s.customers.RecordPurchase(ctx, o.CustomerID, o.Amount, now); err != nil {
				return err
			}

			tickets, err := s.tickets.ActivateForOrder(ctx, o)
			if err != nil {
				return err
			}
			o.Tickets = tickets
			order = o
			return nil
		})
	})
	if err != nil {
		s.logger.Warn("ORDER", fmt.Sprintf("Payment confirmation for %s failed: %v", req.OrderID, err))
		return nil, err
	}

	s.logger.LogOrder("PAID", order.OrderNumber, fmt.Sprintf("%s via %s", order.PaidAmount.Decimal.StringFixed(2), order.PaymentMethod))
	s.metrics.PaymentConfirmed()

	effects := s.effects()
	s.invalidateAnalytics(effects)
	s.enqueue(effects, models.EventOrderPaymentConfirmed, order, nil, order.Tickets)
	s.record(effects, audit.ActionOrderPaid, order, actor, map[string]any{
		"paidAmount":       order.PaidAmount.Decimal.StringFixed(2),
		"paymentMethod":    order.PaymentMethod,
		"paymentReference": order.PaymentReference,
	})
	effects.Run(ctx)

	return order, nil
}

// InitializePayment opens a hosted checkout for a PENDING order. A gateway
// failure leaves the order untouched.
func (s *OrderService) InitializePayment(ctx context.Context, id, actor string) (*PaymentInit, error) {
	if s.gateway == nil {
		return nil, apperr.Dependency("no payment gateway configured", nil)
	}

	o, err := s.loadOrder(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if o.Status != models.OrderPending {
		return nil, apperr.Validation(fmt.Sprintf("order %s is %s", o.OrderNumber, o.Status))
	}
	if o.PaymentReference != "" && s.locks != nil {
		held, err := s.locks.Held(ctx, o.PaymentReference)
		if err != nil {
			s.logger.Warn("PAYMENT", fmt.Sprintf("verification lock check for %s failed, continuing: %v", o.PaymentReference, err))
		}
		if held {
			return nil, apperr.Conflict(fmt.Sprintf("payment %s is being verified", o.PaymentReference), nil)
		}
	}
	customer, err := s.customers.Get(ctx, o.CustomerID)
	if err != nil {
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	charge, err := s.gateway.InitializeCharge(gctx, payment.ChargeRequest{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Email:       customer.Email,
		Amount:      o.Amount,
		Currency:    s.currency,
		CallbackURL: s.callback,
	})
	s.metrics.ObserveGateway("initialize", time.Since(start).Seconds(), err)
	if err != nil {
		s.logger.Error("PAYMENT", fmt.Sprintf("%s initialize for %s failed: %v", s.gateway.Name(), o.OrderNumber, err))
		return nil, apperr.Dependency("payment gateway unavailable", err)
	}

	o.PaymentReference = charge.Reference
	o.PaymentMethod = s.gateway.Name()
	o.UpdatedAt = s.Now().UTC()
	if err := s.DB.UpdateOrder(ctx, o, "payment_reference", "payment_method"); err != nil {
		return nil, fmt.Errorf("store payment reference: %w", err)
	}

	s.logger.LogOrder("PAYMENT_INIT", o.OrderNumber, fmt.Sprintf("%s reference %s", s.gateway.Name(), charge.Reference))
	effects := s.effects()
	s.record(effects, audit.ActionPaymentInit, o, actor, map[string]any{
		"gateway":   s.gateway.Name(),
		"reference": charge.Reference,
	})
	effects.Run(ctx)

	return &PaymentInit{Order: o, Charge: charge}, nil
}

// VerifyPayment asks the gateway about a reference and confirms the order when
// the charge is paid. Verifying an already completed order is a no-op.
func (s *OrderService) VerifyPayment(ctx context.Context, reference, actor string) (*models.Order, error) {
	if s.gateway == nil {
		return nil, apperr.Dependency("no payment gateway configured", nil)
	}

	o, err := s.DB.GetOrderByReference(ctx, reference)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperr.NotFound("no order for payment reference")
	}
	if err != nil {
		return nil, fmt.Errorf("load order by reference: %w", err)
	}
	if o.Status == models.OrderCompleted {
		return s.GetOrder(ctx, o.ID)
	}

	if s.locks != nil {
		release, ok, err := s.locks.Acquire(ctx, reference)
		switch {
		case err != nil:
			s.logger.Warn("PAYMENT", fmt.Sprintf("verification lock unavailable, continuing: %v", err))
		case !ok:
			return nil, apperr.Conflict("payment verification already in progress", nil)
		default:
			defer release()
		}
	}

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	v, err := s.gateway.VerifyCharge(gctx, reference)
	s.metrics.ObserveGateway("verify", time.Since(start).Seconds(), err)
	if errors.Is(err, payment.ErrChargeNotFound) {
		return nil, apperr.NotFound("charge not found at gateway")
	}
	if err != nil {
		return nil, apperr.Dependency("payment gateway unavailable", err)
	}
	if !v.Paid {
		return nil, apperr.Validation(fmt.Sprintf("charge %s is not paid (%s)", reference, v.Status))
	}
	if v.OrderID != "" && v.OrderID != o.ID {
		s.logger.LogSecurity("PAYMENT_MISMATCH", fmt.Sprintf("reference %s belongs to order %s, not %s", reference, v.OrderID, o.ID))
		return nil, apperr.Validation("payment reference does not match order")
	}
	if v.Amount.LessThan(o.Amount) {
		s.logger.Warn("PAYMENT", fmt.Sprintf("charge %s settled %s against order amount %s", reference, v.Amount.StringFixed(2), o.Amount.StringFixed(2)))
		return nil, apperr.ValidationWrap(fmt.Sprintf("paid amount %s is less than order amount %s",
			v.Amount.StringFixed(2), o.Amount.StringFixed(2)), ErrUnderpaid)
	}

	confirmed, err := s.ConfirmPayment(ctx, ConfirmRequest{
		OrderID:    o.ID,
		Reference:  reference,
		PaidAmount: v.Amount,
		Method:     v.Method,
	}, actor)
	if errors.Is(err, ErrOrderAlreadyCompleted) {
		return s.GetOrder(ctx, o.ID)
	}
	return confirmed, err
}

// HandleWebhook authenticates a gateway notification and verifies the charge it
// names. Events for unknown references are acknowledged and dropped.
func (s *OrderService) HandleWebhook(ctx context.Context, payload []byte, header http.Header) error {
	if s.gateway == nil {
		return apperr.Dependency("no payment gateway configured", nil)
	}

	event, err := s.gateway.ParseWebhook(payload, header)
	if errors.Is(err, payment.ErrInvalidSignature) {
		s.logger.LogSecurity("WEBHOOK_SIGNATURE", fmt.Sprintf("%s webhook rejected", s.gateway.Name()))
		return apperr.Unauthorized("invalid webhook signature")
	}
	if err != nil {
		return apperr.ValidationWrap("malformed webhook payload", err)
	}
	if event.Reference == "" {
		s.logger.Debug("PAYMENT", fmt.Sprintf("ignoring %s event %s", s.gateway.Name(), event.Type))
		return nil
	}

	_, err = s.VerifyPayment(ctx, event.Reference, "webhook:"+s.gateway.Name())
	if apperr.Is(err, apperr.KindNotFound) {
		s.logger.Warn("PAYMENT", fmt.Sprintf("webhook for unknown reference %s", event.Reference))
		return nil
	}
	return err
}
