// Package order sells tickets: it creates orders with their tickets, confirms
// payment, and handles cancellation and refunds.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paintball-ticketing/internal/aftercommit"
	"paintball-ticketing/internal/apperr"
	"paintball-ticketing/internal/audit"
	"paintball-ticketing/internal/database"
	"paintball-ticketing/internal/logger"
	"paintball-ticketing/internal/metrics"
	"paintball-ticketing/internal/models"
	"paintball-ticketing/internal/order/db"
	"paintball-ticketing/internal/payment"
	"paintball-ticketing/internal/retry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MinQuantity = 1
	MaxQuantity = 100

	defaultPageSize = 50
	maxPageSize     = 200

	analyticsCachePattern = "analytics:*"
)

var (
	ErrOrderAlreadyCompleted = errors.New("order is already completed")
	ErrOrderCancelled        = errors.New("order is cancelled")
	ErrOrderNotPending       = errors.New("only PENDING orders can be cancelled")
	ErrOrderNotCompleted     = errors.New("only COMPLETED orders can be refunded")
	ErrUnderpaid             = errors.New("paid amount is less than the order amount")
	ErrOrderNumberTaken      = errors.New("order number already taken")
)

type DBLayer interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	OrderNumberExists(ctx context.Context, number string) (bool, error)
	GetOrderByID(ctx context.Context, id string, forUpdate bool) (*models.Order, error)
	GetOrderByReference(ctx context.Context, reference string) (*models.Order, error)
	ListOrders(ctx context.Context, f db.ListFilter) ([]models.Order, int, error)
	UpdateOrder(ctx context.Context, order *models.Order, columns ...string) error
}

type Customers interface {
	Get(ctx context.Context, id string) (*models.Customer, error)
	RecordPurchase(ctx context.Context, id string, amount decimal.Decimal, at time.Time) error
	ReversePurchase(ctx context.Context, id string, amount decimal.Decimal) error
}

type Tickets interface {
	CreateForOrder(ctx context.Context, order *models.Order, settings models.TicketSettings) ([]models.Ticket, error)
	ActivateForOrder(ctx context.Context, order *models.Order) ([]models.Ticket, error)
	CancelForOrder(ctx context.Context, orderID string) (int64, error)
	ListByOrder(ctx context.Context, orderID string) ([]models.Ticket, error)
}

type SettingsSource interface {
	Current() models.TicketSettings
}

// Queue accepts background jobs; the Kafka producer and NopQueue satisfy it.
type Queue interface {
	Enqueue(ctx context.Context, event, key string, payload any) error
}

type CacheInvalidator interface {
	DeletePattern(ctx context.Context, pattern string) error
}

// PaymentLocker serialises gateway verification per payment reference.
type PaymentLocker interface {
	Acquire(ctx context.Context, reference string) (release func(), ok bool, err error)
	Held(ctx context.Context, reference string) (bool, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Dependencies wires an OrderService. Queue, Cache, Audit, Gateway, Locks and Metrics may be nil.
type Dependencies struct {
	DB             DBLayer
	Tx             database.Transactor
	Customers      Customers
	Tickets        Tickets
	Settings       SettingsSource
	Queue          Queue
	Cache          CacheInvalidator
	Audit          AuditRecorder
	Gateway        payment.Gateway
	Locks          PaymentLocker
	PaymentTimeout time.Duration
	Currency       string
	CallbackURL    string
	Metrics        *metrics.Metrics
	Logger         *logger.Logger
}

type OrderService struct {
	DB        DBLayer
	tx        database.Transactor
	customers Customers
	tickets   Tickets
	settings  SettingsSource
	queue     Queue
	cache     CacheInvalidator
	audit     AuditRecorder
	gateway   payment.Gateway
	locks     PaymentLocker
	timeout   time.Duration
	currency  string
	callback  string
	metrics   *metrics.Metrics
	logger    *logger.Logger

	Now            func() time.Time
	NewOrderNumber func() (string, error)
	Retry          retry.Policy
}

func NewOrderService(deps Dependencies) *OrderService {
	timeout := deps.PaymentTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OrderService{
		DB:             deps.DB,
		tx:             deps.Tx,
		customers:      deps.Customers,
		tickets:        deps.Tickets,
		settings:       deps.Settings,
		queue:          deps.Queue,
		cache:          deps.Cache,
		audit:          deps.Audit,
		gateway:        deps.Gateway,
		locks:          deps.Locks,
		timeout:        timeout,
		currency:       deps.Currency,
		callback:       deps.CallbackURL,
		metrics:        deps.Metrics,
		logger:         deps.Logger,
		Now:            time.Now,
		NewOrderNumber: GenerateOrderNumber,
		Retry:          retry.DefaultPolicy(),
	}
}

type CreateOrderRequest struct {
	CustomerID   string          `json:"customerId"`
	Quantity     int             `json:"quantity"`
	Amount       decimal.Decimal `json:"amount"`
	SessionLabel string          `json:"sessionLabel,omitempty"`
}

type ListRequest struct {
	Status     string
	CustomerID string
	Limit      int
	Offset     int
}

type Page struct {
	Orders []models.Order `json:"orders"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// AllocateOrderNumber draws one candidate and checks it is unused. A taken number
// is a conflict so the surrounding retry draws again.
func (s *OrderService) AllocateOrderNumber(ctx context.Context) (string, error) {
	number, err := s.NewOrderNumber()
	if err != nil {
		return "", err
	}
	taken, err := s.DB.OrderNumberExists(ctx, number)
	if err != nil {
		return "", fmt.Errorf("check order number: %w", err)
	}
	if taken {
		return "", apperr.Conflict("order number collision", ErrOrderNumberTaken)
	}
	return number, nil
}

// CreateOrder writes the order and exactly Quantity PENDING tickets in one
// transaction, retrying the whole transaction on conflicts.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest, actor string) (*models.Order, error) {
	if req.Quantity < MinQuantity || req.Quantity > MaxQuantity {
		return nil, apperr.Validation(fmt.Sprintf("quantity must be between %d and %d", MinQuantity, MaxQuantity))
	}
	if req.Amount.IsNegative() {
		return nil, apperr.Validation("amount cannot be negative")
	}

	customer, err := s.customers.Get(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}

	settings := s.settings.Current()
	amount := req.Amount
	if amount.IsZero() {
		amount = settings.BasePrice.Mul(decimal.NewFromInt(int64(req.Quantity)))
	}

	var order *models.Order
	err = retry.Do(ctx, s.Retry, func(ctx context.Context) error {
		return s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			number, err := s.AllocateOrderNumber(ctx)
			if err != nil {
				return err
			}

			now := s.Now().UTC()
			o := &models.Order{
				ID:           uuid.NewString(),
				OrderNumber:  number,
				CustomerID:   customer.ID,
				Quantity:     req.Quantity,
				Amount:       amount,
				Status:       models.OrderPending,
				SessionLabel: req.SessionLabel,
				PurchasedAt:  now,
				UpdatedAt:    now,
			}
			if err := s.DB.CreateOrder(ctx, o); err != nil {
				return fmt.Errorf("insert order: %w", err)
			}

			tickets, err := s.tickets.CreateForOrder(ctx, o, settings)
			if err != nil {
				return err
			}
			o.Tickets = tickets
			order = o
			return nil
		})
	})
	if err != nil {
		s.logger.Error("ORDER", fmt.Sprintf("Failed to create order for customer %s: %v", customer.ID, err))
		return nil, err
	}

	s.logger.LogOrder("CREATED", order.OrderNumber, fmt.Sprintf("%d ticket(s), amount %s", order.Quantity, order.Amount.StringFixed(2)))
	s.metrics.OrderCreated()

	effects := s.effects()
	s.invalidateAnalytics(effects)
	s.enqueue(effects, models.EventOrderCreated, order, customer, order.Tickets)
	s.record(effects, audit.ActionOrderCreated, order, actor, map[string]any{
		"orderNumber": order.OrderNumber,
		"quantity":    order.Quantity,
		"amount":      order.Amount.StringFixed(2),
	})
	effects.Run(ctx)

	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	o, err := s.loadOrder(ctx, id, false)
	if err != nil {
		return nil, err
	}
	tickets, err := s.tickets.ListByOrder(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("load tickets for order: %w", err)
	}
	o.Tickets = tickets
	return o, nil
}

func (s *OrderService) ListOrders(ctx context.Context, req ListRequest) (*Page, error) {
	f := db.ListFilter{CustomerID: req.CustomerID, Limit: req.Limit, Offset: req.Offset}
	switch status := models.OrderStatus(req.Status); status {
	case "":
	case models.OrderPending, models.OrderCompleted, models.OrderCancelled:
		f.Status = status
	default:
		return nil, apperr.Validation(fmt.Sprintf("unknown order status %q", req.Status))
	}
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	orders, total, err := s.DB.ListOrders(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return &Page{Orders: orders, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// CancelOrder voids an unpaid order and its tickets.
func (s *OrderService) CancelOrder(ctx context.Context, id, actor string) (*models.Order, error) {
	var order *models.Order
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		o, err := s.loadOrder(ctx, id, true)
		if err != nil {
			return err
		}
		if o.Status != models.OrderPending {
			return apperr.ValidationWrap(fmt.Sprintf("order %s is %s", o.OrderNumber, o.Status), ErrOrderNotPending)
		}

		o.Status = models.OrderCancelled
		o.UpdatedAt = s.Now().UTC()
		if err := s.DB.UpdateOrder(ctx, o, "status"); err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}
		if _, err := s.tickets.CancelForOrder(ctx, o.ID); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogOrder("CANCELLED", order.OrderNumber, "cancelled by "+actor)
	effects := s.effects()
	s.invalidateAnalytics(effects)
	s.record(effects, audit.ActionOrderCancelled, order, actor, nil)
	effects.Run(ctx)
	return order, nil
}

// RefundOrder reverses a completed order: unused tickets are voided and the
// customer's aggregates are rolled back.
func (s *OrderService) RefundOrder(ctx context.Context, id, reason, actor string) (*models.Order, error) {
	var order *models.Order
	err := retry.Do(ctx, s.Retry, func(ctx context.Context) error {
		return s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			o, err := s.loadOrder(ctx, id, true)
			if err != nil {
				return err
			}
			if o.Status != models.OrderCompleted {
				return apperr.ValidationWrap(fmt.Sprintf("order %s is %s", o.OrderNumber, o.Status), ErrOrderNotCompleted)
			}

			now := s.Now().UTC()
			o.Status = models.OrderCancelled
			o.RefundedAt = &now
			o.RefundReason = reason
			o.UpdatedAt = now
			if err := s.DB.UpdateOrder(ctx, o, "status", "refunded_at", "refund_reason"); err != nil {
				return fmt.Errorf("refund order: %w", err)
			}
			if _, err := s.tickets.CancelForOrder(ctx, o.ID); err != nil {
				return err
			}
			if err := s.customers.ReversePurchase(ctx, o.CustomerID, o.Amount); err != nil {
				return err
			}
			order = o
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogOrder("REFUNDED", order.OrderNumber, fmt.Sprintf("refunded by %s: %s", actor, reason))
	effects := s.effects()
	s.invalidateAnalytics(effects)
	s.enqueue(effects, models.EventOrderRefunded, order, nil, nil)
	s.record(effects, audit.ActionOrderRefunded, order, actor, map[string]any{"reason": reason})
	effects.Run(ctx)
	return order, nil
}

func (s *OrderService) loadOrder(ctx context.Context, id string, forUpdate bool) (*models.Order, error) {
	o, err := s.DB.GetOrderByID(ctx, id, forUpdate)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperr.NotFound("order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	return o, nil
}

func (s *OrderService) effects() *aftercommit.Effects {
	return aftercommit.New(s.logger, s.metrics.SideEffectFailed)
}

func (s *OrderService) invalidateAnalytics(e *aftercommit.Effects) {
	if s.cache == nil {
		return
	}
	e.Add("cache", func(ctx context.Context) error {
		return s.cache.DeletePattern(ctx, analyticsCachePattern)
	})
}

// enqueue schedules the customer email. customer may be nil; it is then loaded
// when the effect runs.
func (s *OrderService) enqueue(e *aftercommit.Effects, event string, o *models.Order, customer *models.Customer, tickets []models.Ticket) {
	if s.queue == nil {
		return
	}
	e.Add("email", func(ctx context.Context) error {
		c := customer
		if c == nil {
			var err error
			if c, err = s.customers.Get(ctx, o.CustomerID); err != nil {
				return err
			}
		}
		return s.queue.Enqueue(ctx, event, o.ID, models.NewOrderNotification(o, c, tickets))
	})
}

func (s *OrderService) record(e *aftercommit.Effects, action string, o *models.Order, actor string, details map[string]any) {
	if s.audit == nil {
		return
	}
	e.Add("audit", func(ctx context.Context) error {
		return s.audit.Record(ctx, audit.Entry{
			Action:     action,
			EntityType: audit.EntityOrder,
			EntityID:   o.ID,
			ActorID:    actor,
			Details:    details,
		})
	})
}
