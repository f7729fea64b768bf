// Package analytics aggregates sales and gate activity for the back office.
// Results are cached for a few minutes; order mutations clear the cache.
package analytics

import (
	"context"
	"fmt"
	"time"

	"paintball-ticketing/internal/apperr"
	"paintball-ticketing/internal/logger"
	"paintball-ticketing/internal/models"

	"github.com/shopspring/decimal"
)

const (
	CacheTTL        = 5 * time.Minute
	dashboardKey    = "analytics:dashboard"
	salesKeyPattern = "analytics:sales:%d"

	DefaultSalesDays = 30
	MaxSalesDays     = 365
)

type DBLayer interface {
	OrdersByStatus(ctx context.Context) ([]StatusCount, error)
	TicketsByStatus(ctx context.Context) ([]StatusCount, error)
	ScansSince(ctx context.Context, since time.Time) (ScanCounts, error)
	PaidSince(ctx context.Context, since time.Time) ([]Sale, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any, ttl time.Duration)
}

type Dashboard struct {
	OrdersByStatus  map[string]int  `json:"ordersByStatus"`
	TotalOrders     int             `json:"totalOrders"`
	Revenue         decimal.Decimal `json:"revenue"`
	TicketsByStatus map[string]int  `json:"ticketsByStatus"`
	TotalTickets    int             `json:"totalTickets"`
	ScansToday      int             `json:"scansToday"`
	DeniedToday     int             `json:"deniedToday"`
	GeneratedAt     time.Time       `json:"generatedAt"`
}

type DailySales struct {
	Date        string          `json:"date"`
	Orders      int             `json:"orders"`
	TicketsSold int             `json:"ticketsSold"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type Service struct {
	db    DBLayer
	cache Cache
	log   *logger.Logger
	Now   func() time.Time
}

// NewService accepts a nil cache.
func NewService(db DBLayer, cache Cache, log *logger.Logger) *Service {
	return &Service{db: db, cache: cache, log: log, Now: time.Now}
}

func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	var cached Dashboard
	if s.cache != nil && s.cache.Get(ctx, dashboardKey, &cached) {
		return &cached, nil
	}

	orders, err := s.db.OrdersByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	tickets, err := s.db.TicketsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count tickets: %w", err)
	}
	now := s.Now().UTC()
	scans, err := s.db.ScansSince(ctx, startOfDay(now))
	if err != nil {
		return nil, fmt.Errorf("count scans: %w", err)
	}

	d := &Dashboard{
		OrdersByStatus:  map[string]int{},
		Revenue:         decimal.Zero,
		TicketsByStatus: map[string]int{},
		ScansToday:      scans.Total,
		DeniedToday:     scans.Denied,
		GeneratedAt:     now,
	}
	for _, row := range orders {
		d.OrdersByStatus[row.Status] = row.Count
		d.TotalOrders += row.Count
		if row.Status == string(models.OrderCompleted) {
			d.Revenue = row.Amount
		}
	}
	for _, row := range tickets {
		d.TicketsByStatus[row.Status] = row.Count
		d.TotalTickets += row.Count
	}

	if s.cache != nil {
		s.cache.Set(ctx, dashboardKey, d, CacheTTL)
	}
	return d, nil
}

// DailySales returns one bucket per UTC day for the last days days, oldest
// first, including days with no sales.
func (s *Service) DailySales(ctx context.Context, days int) ([]DailySales, error) {
	if days == 0 {
		days = DefaultSalesDays
	}
	if days < 1 || days > MaxSalesDays {
		return nil, apperr.Validation(fmt.Sprintf("days must be between 1 and %d", MaxSalesDays))
	}

	key := fmt.Sprintf(salesKeyPattern, days)
	var cached []DailySales
	if s.cache != nil && s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	first := startOfDay(s.Now().UTC()).AddDate(0, 0, -(days - 1))
	sales, err := s.db.PaidSince(ctx, first)
	if err != nil {
		return nil, fmt.Errorf("load sales: %w", err)
	}

	out := make([]DailySales, days)
	index := make(map[string]int, days)
	for i := range out {
		date := first.AddDate(0, 0, i).Format(time.DateOnly)
		out[i] = DailySales{Date: date, Revenue: decimal.Zero}
		index[date] = i
	}
	for _, sale := range sales {
		i, ok := index[sale.PaidAt.UTC().Format(time.DateOnly)]
		if !ok {
			continue
		}
		out[i].Orders++
		out[i].TicketsSold += sale.Quantity
		out[i].Revenue = out[i].Revenue.Add(sale.Amount)
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, out, CacheTTL)
	}
	return out, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
