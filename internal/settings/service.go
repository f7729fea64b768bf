// Package settings owns the venue-wide ticket policy. The row is loaded once at
// startup and served from memory; Update writes through and swaps the copy.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"paintball-ticketing/internal/aftercommit"
	"paintball-ticketing/internal/apperr"
	"paintball-ticketing/internal/audit"
	"paintball-ticketing/internal/database"
	"paintball-ticketing/internal/logger"
	"paintball-ticketing/internal/models"

	"github.com/shopspring/decimal"
)

const (
	DefaultMaxScanCount   = 2
	DefaultScanWindowDays = 14
	DefaultValidityDays   = 30
)

type DBLayer interface {
	GetSettings(ctx context.Context) (*models.TicketSettings, error)
	CreateSettings(ctx context.Context, s *models.TicketSettings) error
	UpdateSettings(ctx context.Context, s *models.TicketSettings) error
}

type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Patch carries the fields an admin wants to change; nil means unchanged.
type Patch struct {
	MaxScanCount   *int             `json:"maxScanCount,omitempty"`
	ScanWindowDays *int             `json:"scanWindowDays,omitempty"`
	ValidityDays   *int             `json:"validityDays,omitempty"`
	BasePrice      *decimal.Decimal `json:"basePrice,omitempty"`
}

type Service struct {
	db           DBLayer
	audit        AuditRecorder
	log          *logger.Logger
	defaultPrice decimal.Decimal
	now          func() time.Time

	mu      sync.RWMutex
	current models.TicketSettings
	loaded  bool
}

func NewService(db DBLayer, auditRecorder AuditRecorder, defaultPrice decimal.Decimal, log *logger.Logger) *Service {
	return &Service{
		db:           db,
		audit:        auditRecorder,
		log:          log,
		defaultPrice: defaultPrice,
		now:          time.Now,
	}
}

func (s *Service) Defaults() models.TicketSettings {
	return models.TicketSettings{
		ID:             models.TicketSettingsID,
		MaxScanCount:   DefaultMaxScanCount,
		ScanWindowDays: DefaultScanWindowDays,
		ValidityDays:   DefaultValidityDays,
		BasePrice:      s.defaultPrice,
		UpdatedAt:      s.now().UTC(),
		UpdatedBy:      "system",
	}
}

// Load reads the row, creating it with defaults when absent. Call once at startup.
func (s *Service) Load(ctx context.Context) error {
	row, err := s.db.GetSettings(ctx)
	if errors.Is(err, database.ErrNotFound) {
		defaults := s.Defaults()
		if err := s.db.CreateSettings(ctx, &defaults); err != nil {
			return fmt.Errorf("create default settings: %w", err)
		}
		s.log.Info("SETTINGS", "Ticket settings row created with defaults")
		row, err = s.db.GetSettings(ctx)
	}
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	s.mu.Lock()
	s.current = *row
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Reload re-reads the row, picking up changes made by another instance.
func (s *Service) Reload(ctx context.Context) error {
	return s.Load(ctx)
}

// Current returns a copy of the active settings. Before Load it returns the defaults.
func (s *Service) Current() models.TicketSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return s.Defaults()
	}
	return s.current
}

func (s *Service) Update(ctx context.Context, p Patch, actor string) (models.TicketSettings, error) {
	next := s.Current()
	if p.MaxScanCount != nil {
		next.MaxScanCount = *p.MaxScanCount
	}
	if p.ScanWindowDays != nil {
		next.ScanWindowDays = *p.ScanWindowDays
	}
	if p.ValidityDays != nil {
		next.ValidityDays = *p.ValidityDays
	}
	if p.BasePrice != nil {
		next.BasePrice = *p.BasePrice
	}
	if err := validate(next); err != nil {
		return models.TicketSettings{}, err
	}
	next.UpdatedAt = s.now().UTC()
	next.UpdatedBy = actor

	if err := s.db.UpdateSettings(ctx, &next); err != nil {
		return models.TicketSettings{}, apperr.Internal("failed to update settings", err)
	}

	s.mu.Lock()
	previous := s.current
	s.current = next
	s.loaded = true
	s.mu.Unlock()

	s.log.Info("SETTINGS", fmt.Sprintf("Ticket settings updated by %s: maxScans=%d window=%d validity=%d price=%s",
		actor, next.MaxScanCount, next.ScanWindowDays, next.ValidityDays, next.BasePrice.StringFixed(2)))

	if s.audit != nil {
		effects := aftercommit.New(s.log, nil)
		effects.Add("audit", func(ctx context.Context) error {
			return s.audit.Record(ctx, audit.Entry{
				Action:     audit.ActionSettingsUpdated,
				EntityType: audit.EntityTicketSettings,
				EntityID:   fmt.Sprint(models.TicketSettingsID),
				ActorID:    actor,
				Details: map[string]any{
					"before": settingsDetails(previous),
					"after":  settingsDetails(next),
				},
			})
		})
		effects.Run(ctx)
	}
	return next, nil
}

func validate(s models.TicketSettings) error {
	switch {
	case s.MaxScanCount < 1:
		return apperr.Validation("maxScanCount must be at least 1")
	case s.ScanWindowDays < 1:
		return apperr.Validation("scanWindowDays must be at least 1")
	case s.ValidityDays < 1:
		return apperr.Validation("validityDays must be at least 1")
	case !s.BasePrice.IsPositive():
		return apperr.Validation("basePrice must be greater than zero")
	}
	return nil
}

func settingsDetails(s models.TicketSettings) map[string]any {
	return map[string]any{
		"maxScanCount":   s.MaxScanCount,
		"scanWindowDays": s.ScanWindowDays,
		"validityDays":   s.ValidityDays,
		"basePrice":      s.BasePrice.StringFixed(2),
	}
}
