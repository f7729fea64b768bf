// Package tickets issues tickets for orders and runs the gate-side validate and
// scan state machine.
package tickets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"paintball-ticketing/internal/aftercommit"
	"paintball-ticketing/internal/apperr"
	"paintball-ticketing/internal/audit"
	"paintball-ticketing/internal/database"
	"paintball-ticketing/internal/logger"
	"paintball-ticketing/internal/metrics"
	"paintball-ticketing/internal/models"
	"paintball-ticketing/internal/retry"
	"paintball-ticketing/internal/storage"
	"paintball-ticketing/internal/tickets/qr"

	"github.com/google/uuid"
)

var (
	ErrCodeTaken      = errors.New("ticket code already taken")
	ErrNotCancellable = errors.New("only PENDING or ACTIVE tickets can be cancelled")
	ErrQRNotAvailable = errors.New("QR code is only available for ACTIVE tickets")
)

type DBLayer interface {
	CreateTickets(ctx context.Context, tickets []models.Ticket) error
	CodeExists(ctx context.Context, code string) (bool, error)
	GetTicketByCode(ctx context.Context, code string, forUpdate bool) (*models.Ticket, error)
	ListTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error)
	UpdateTicket(ctx context.Context, ticket *models.Ticket, columns ...string) error
	UpdateStatusByOrder(ctx context.Context, orderID string, from []models.TicketStatus, to models.TicketStatus, at time.Time) (int64, error)
	InsertScan(ctx context.Context, scan *models.TicketScan) error
	ListScans(ctx context.Context, code string, limit int) ([]models.TicketScan, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry) error
}

// ScanPublisher receives every recorded scan attempt after commit.
type ScanPublisher interface {
	Publish(scan models.TicketScan)
}

// Dependencies wires a TicketService. Audit, Feed and Metrics may be nil.
type Dependencies struct {
	DB      DBLayer
	Tx      database.Transactor
	QR      *qr.QRGenerator
	Store   storage.Store
	Audit   AuditRecorder
	Feed    ScanPublisher
	Metrics *metrics.Metrics
	Logger  *logger.Logger
}

type TicketService struct {
	DB      DBLayer
	tx      database.Transactor
	qr      *qr.QRGenerator
	store   storage.Store
	audit   AuditRecorder
	feed    ScanPublisher
	metrics *metrics.Metrics
	log     *logger.Logger

	// Now and NewCode are replaceable in tests.
	Now     func() time.Time
	NewCode func() (string, error)
	Retry   retry.Policy
}

func NewTicketService(deps Dependencies) *TicketService {
	return &TicketService{
		DB:      deps.DB,
		tx:      deps.Tx,
		qr:      deps.QR,
		store:   deps.Store,
		audit:   deps.Audit,
		feed:    deps.Feed,
		metrics: deps.Metrics,
		log:     deps.Logger,
		Now:     time.Now,
		NewCode: GenerateCode,
		Retry:   retry.DefaultPolicy(),
	}
}

// ScanRequest identifies who scanned which code and where.
type ScanRequest struct {
	Code      string `json:"code"`
	ScannerID string `json:"-"`
	Location  string `json:"location,omitempty"`
}

// ScanResult is the verdict plus the attempt row that was recorded for it.
type ScanResult struct {
	Verdict
	Scan *models.TicketScan `json:"scan"`
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NewTicketCode draws codes until one is unused, backing off between collisions.
func (s *TicketService) NewTicketCode(ctx context.Context) (string, error) {
	policy := s.Retry
	policy.Retryable = func(err error) bool { return errors.Is(err, ErrCodeTaken) }

	var code string
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		candidate, err := s.NewCode()
		if err != nil {
			return err
		}
		taken, err := s.DB.CodeExists(ctx, candidate)
		if err != nil {
			return fmt.Errorf("check ticket code: %w", err)
		}
		if taken {
			return ErrCodeTaken
		}
		code = candidate
		return nil
	})
	return code, err
}

// CreateForOrder writes order.Quantity PENDING tickets. It joins the caller's
// transaction when one is on ctx.
func (s *TicketService) CreateForOrder(ctx context.Context, order *models.Order, settings models.TicketSettings) ([]models.Ticket, error) {
	now := s.Now().UTC()
	validUntil := now.AddDate(0, 0, settings.ValidityDays)

	seen := make(map[string]struct{}, order.Quantity)
	tickets := make([]models.Ticket, 0, order.Quantity)
	for len(tickets) < order.Quantity {
		code, err := s.NewTicketCode(ctx)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}

		tickets = append(tickets, models.Ticket{
			ID:             uuid.NewString(),
			Code:           code,
			OrderID:        order.ID,
			SessionLabel:   order.SessionLabel,
			Status:         models.TicketPending,
			ValidUntil:     validUntil,
			MaxScans:       settings.MaxScanCount,
			ScanWindowDays: settings.ScanWindowDays,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	if err := s.DB.CreateTickets(ctx, tickets); err != nil {
		return nil, fmt.Errorf("insert tickets for order %s: %w", order.OrderNumber, err)
	}
	return tickets, nil
}

// ActivateForOrder turns every PENDING ticket of the order ACTIVE with a freshly
// sealed QR image. Any failure aborts the whole activation.
func (s *TicketService) ActivateForOrder(ctx context.Context, order *models.Order) ([]models.Ticket, error) {
	tickets, err := s.DB.ListTicketsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list tickets for order %s: %w", order.OrderNumber, err)
	}

	now := s.Now().UTC()
	for i := range tickets {
		t := &tickets[i]
		if t.Status != models.TicketPending {
			continue
		}

		png, err := s.qr.GenerateEncryptedQR(s.payload(t, now))
		if err != nil {
			return nil, apperr.Internal("failed to generate ticket QR code", fmt.Errorf("ticket %s: %w", t.Code, err))
		}
		path, err := s.store.Put(ctx, "tickets/"+t.Code+".png", png, "image/png")
		if err != nil {
			return nil, apperr.Internal("failed to store ticket QR code", fmt.Errorf("ticket %s: %w", t.Code, err))
		}

		t.QRCodePath = path
		t.Status = models.TicketActive
		t.UpdatedAt = now
		if err := s.DB.UpdateTicket(ctx, t, "status", "qr_code_path"); err != nil {
			return nil, fmt.Errorf("activate ticket %s: %w", t.Code, err)
		}
	}
	return tickets, nil
}

// CancelForOrder cancels every ticket of the order that has not been used.
func (s *TicketService) CancelForOrder(ctx context.Context, orderID string) (int64, error) {
	n, err := s.DB.UpdateStatusByOrder(ctx, orderID,
		[]models.TicketStatus{models.TicketPending, models.TicketActive},
		models.TicketCancelled, s.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cancel tickets for order %s: %w", orderID, err)
	}
	return n, nil
}

func (s *TicketService) payload(t *models.Ticket, issuedAt time.Time) qr.Payload {
	return qr.Payload{
		TicketCode: t.Code,
		OrderID:    t.OrderID,
		ValidUntil: t.ValidUntil,
		MaxScans:   t.MaxScans,
		Session:    t.SessionLabel,
		IssuedAt:   issuedAt,
	}
}

func (s *TicketService) GetTicket(ctx context.Context, code string) (*models.Ticket, error) {
	t, err := s.DB.GetTicketByCode(ctx, normalizeCode(code), false)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperr.NotFound(ReasonNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return t, nil
}

func (s *TicketService) ListByOrder(ctx context.Context, orderID string) ([]models.Ticket, error) {
	tickets, err := s.DB.ListTicketsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return tickets, nil
}

func (s *TicketService) ScanHistory(ctx context.Context, code string, limit int) ([]models.TicketScan, error) {
	scans, err := s.DB.ListScans(ctx, normalizeCode(code), limit)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	return scans, nil
}

// ValidateTicket reports whether the code would be admitted now without recording
// a scan. A ticket found past its validUntil is persisted as EXPIRED.
func (s *TicketService) ValidateTicket(ctx context.Context, code string) (Verdict, error) {
	code = normalizeCode(code)
	t, err := s.DB.GetTicketByCode(ctx, code, false)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return Verdict{}, fmt.Errorf("load ticket: %w", err)
	}

	now := s.Now().UTC()
	v, expire := decide(t, now)
	if expire {
		if err := s.markExpired(ctx, t, now); err != nil {
			s.log.Warn("TICKET", fmt.Sprintf("failed to mark %s expired: %v", code, err))
		}
	}
	return v, nil
}

func (s *TicketService) markExpired(ctx context.Context, t *models.Ticket, now time.Time) error {
	t.Status = models.TicketExpired
	t.UpdatedAt = now
	return s.DB.UpdateTicket(ctx, t, "status")
}

// ScanTicket records one gate attempt. The ticket row is locked for the duration so
// two scanners cannot both take the last slot; a TicketScan row is written whatever
// the verdict.
func (s *TicketService) ScanTicket(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	return s.scan(ctx, req, "")
}

// ScanQR opens a sealed QR payload and scans the ticket it names. An envelope that
// fails authentication is rejected without a scan row since the code is unknown.
func (s *TicketService) ScanQR(ctx context.Context, envelope, scannerID, location string) (*ScanResult, error) {
	p, err := s.qr.Open(envelope)
	if err != nil {
		s.log.LogSecurity("QR_REJECTED", fmt.Sprintf("scanner %s presented an invalid QR payload", scannerID))
		return nil, apperr.InvalidCode(err)
	}
	return s.scan(ctx, ScanRequest{Code: p.TicketCode, ScannerID: scannerID, Location: location}, p.OrderID)
}

func (s *TicketService) scan(ctx context.Context, req ScanRequest, expectOrderID string) (*ScanResult, error) {
	code := normalizeCode(req.Code)
	if code == "" {
		return nil, apperr.Validation("ticket code is required")
	}

	var result *ScanResult
	err := retry.Do(ctx, s.Retry, func(ctx context.Context) error {
		return s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			t, err := s.DB.GetTicketByCode(ctx, code, true)
			if err != nil && !errors.Is(err, database.ErrNotFound) {
				return fmt.Errorf("lock ticket: %w", err)
			}

			now := s.Now().UTC()
			v, expire := decide(t, now)
			if t != nil && expectOrderID != "" && t.OrderID != expectOrderID {
				v = Verdict{Reason: ReasonOrderMismatch, Ticket: t}
				expire = false
			}

			switch {
			case expire:
				if err := s.markExpired(ctx, t, now); err != nil {
					return fmt.Errorf("expire ticket: %w", err)
				}
			case v.Valid:
				t.ScanCount++
				t.LastScanAt = &now
				if t.FirstScanAt == nil {
					t.FirstScanAt = &now
				}
				if t.ScanCount >= t.MaxScans {
					t.Status = models.TicketScanned
				}
				t.UpdatedAt = now
				if err := s.DB.UpdateTicket(ctx, t, "scan_count", "first_scan_at", "last_scan_at", "status"); err != nil {
					return fmt.Errorf("record scan on ticket: %w", err)
				}
				v.RemainingScans = t.MaxScans - t.ScanCount
			}

			scanID, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("scan id: %w", err)
			}
			row := &models.TicketScan{
				ID:         scanID.String(),
				TicketCode: code,
				ScannedBy:  req.ScannerID,
				Location:   req.Location,
				Allowed:    v.Valid,
				Reason:     v.Reason,
				ScannedAt:  now,
			}
			if t != nil {
				row.TicketID = t.ID
			}
			if err := s.DB.InsertScan(ctx, row); err != nil {
				return fmt.Errorf("insert scan row: %w", err)
			}

			result = &ScanResult{Verdict: v, Scan: row}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Scan(result.Valid)
	s.log.LogScan(code, result.Valid, result.Reason)
	if s.feed != nil {
		s.feed.Publish(*result.Scan)
	}
	return result, nil
}

// CancelTicket voids a single unused ticket.
func (s *TicketService) CancelTicket(ctx context.Context, code, actor string) (*models.Ticket, error) {
	code = normalizeCode(code)

	var cancelled *models.Ticket
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		t, err := s.DB.GetTicketByCode(ctx, code, true)
		if errors.Is(err, database.ErrNotFound) {
			return apperr.NotFound(ReasonNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock ticket: %w", err)
		}
		if t.Status != models.TicketPending && t.Status != models.TicketActive {
			return apperr.ValidationWrap(fmt.Sprintf("ticket is %s", t.Status), ErrNotCancellable)
		}

		t.Status = models.TicketCancelled
		t.UpdatedAt = s.Now().UTC()
		if err := s.DB.UpdateTicket(ctx, t, "status"); err != nil {
			return fmt.Errorf("cancel ticket: %w", err)
		}
		cancelled = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("TICKET", fmt.Sprintf("Ticket %s cancelled by %s", code, actor))
	if s.audit != nil {
		effects := aftercommit.New(s.log, s.metrics.SideEffectFailed)
		effects.Add("audit", func(ctx context.Context) error {
			return s.audit.Record(ctx, audit.Entry{
				Action:     audit.ActionTicketCancelled,
				EntityType: audit.EntityTicket,
				EntityID:   cancelled.ID,
				ActorID:    actor,
				Details:    map[string]any{"code": cancelled.Code, "orderId": cancelled.OrderID},
			})
		})
		effects.Run(ctx)
	}
	return cancelled, nil
}

// RenderQR re-seals the ticket payload with a fresh IV and returns the PNG.
func (s *TicketService) RenderQR(ctx context.Context, code string) ([]byte, error) {
	t, err := s.GetTicket(ctx, code)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TicketActive {
		return nil, apperr.ValidationWrap(fmt.Sprintf("ticket is %s", t.Status), ErrQRNotAvailable)
	}
	png, err := s.qr.GenerateEncryptedQR(s.payload(t, s.Now().UTC()))
	if err != nil {
		return nil, apperr.Internal("failed to generate ticket QR code", err)
	}
	return png, nil
}
