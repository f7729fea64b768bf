// Package customer keeps buyer records and their purchase aggregates.
package customer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"paintball-ticketing/internal/aftercommit"
	"paintball-ticketing/internal/apperr"
	"paintball-ticketing/internal/audit"
	"paintball-ticketing/internal/database"
	"paintball-ticketing/internal/logger"
	"paintball-ticketing/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrEmailTaken = errors.New("a customer with this email already exists")

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type DBLayer interface {
	CreateCustomer(ctx context.Context, c *models.Customer) error
	GetCustomerByID(ctx context.Context, id string) (*models.Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error)
	ListCustomers(ctx context.Context, search string, limit, offset int) ([]models.Customer, int, error)
	AdjustStats(ctx context.Context, id string, orders int, spent decimal.Decimal, lastPurchase *time.Time, at time.Time) error
}

type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry) error
}

type CreateRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type Page struct {
	Customers []models.Customer `json:"customers"`
	Total     int               `json:"total"`
	Limit     int               `json:"limit"`
	Offset    int               `json:"offset"`
}

type Service struct {
	DB    DBLayer
	audit AuditRecorder
	log   *logger.Logger
	now   func() time.Time
}

func NewService(db DBLayer, auditRecorder AuditRecorder, log *logger.Logger) *Service {
	return &Service{DB: db, audit: auditRecorder, log: log, now: time.Now}
}

func (s *Service) Create(ctx context.Context, req CreateRequest, actor string) (*models.Customer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		return nil, apperr.Validation("a valid email is required")
	}
	email := strings.ToLower(addr.Address)

	if _, err := s.DB.GetCustomerByEmail(ctx, email); err == nil {
		return nil, apperr.Conflict("a customer with this email already exists", ErrEmailTaken)
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("check customer email: %w", err)
	}

	now := s.now().UTC()
	c := &models.Customer{
		ID:         uuid.NewString(),
		Name:       name,
		Email:      email,
		Phone:      strings.TrimSpace(req.Phone),
		TotalSpent: decimal.Zero,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.DB.CreateCustomer(ctx, c); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperr.Conflict("a customer with this email already exists", ErrEmailTaken)
		}
		return nil, fmt.Errorf("create customer: %w", err)
	}

	s.log.Info("CUSTOMER", fmt.Sprintf("Customer %s created", c.ID))
	if s.audit != nil {
		effects := aftercommit.New(s.log, nil)
		effects.Add("audit", func(ctx context.Context) error {
			return s.audit.Record(ctx, audit.Entry{
				Action:     audit.ActionCustomerCreated,
				EntityType: audit.EntityCustomer,
				EntityID:   c.ID,
				ActorID:    actor,
			})
		})
		effects.Run(ctx)
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Customer, error) {
	c, err := s.DB.GetCustomerByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperr.NotFound("customer not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, search string, limit, offset int) (*Page, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	customers, total, err := s.DB.ListCustomers(ctx, strings.TrimSpace(search), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return &Page{Customers: customers, Total: total, Limit: limit, Offset: offset}, nil
}

// RecordPurchase adds one order and its amount to the customer's aggregates.
func (s *Service) RecordPurchase(ctx context.Context, id string, amount decimal.Decimal, at time.Time) error {
	if err := s.DB.AdjustStats(ctx, id, 1, amount, &at, s.now().UTC()); err != nil {
		return fmt.Errorf("increment customer stats: %w", err)
	}
	return nil
}

// ReversePurchase undoes RecordPurchase for a refunded order. lastPurchase is left as is.
func (s *Service) ReversePurchase(ctx context.Context, id string, amount decimal.Decimal) error {
	if err := s.DB.AdjustStats(ctx, id, -1, amount.Neg(), nil, s.now().UTC()); err != nil {
		return fmt.Errorf("decrement customer stats: %w", err)
	}
	return nil
}
