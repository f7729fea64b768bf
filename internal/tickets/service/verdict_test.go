package tickets

import (
	"regexp"
	"testing"
	"time"

	"paintball-ticketing/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestDecideOrder(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	firstScan := now.AddDate(0, 0, -3)
	staleScan := now.AddDate(0, 0, -20)
	base := func() *models.Ticket {
		return &models.Ticket{
			Status:         models.TicketActive,
			ValidUntil:     now.AddDate(0, 0, 10),
			MaxScans:       2,
			ScanWindowDays: 14,
		}
	}

	tests := []struct {
		name   string
		mutate func(t *models.Ticket)
		valid  bool
		expire bool
		reason string
	}{
		{"first scan", func(t *models.Ticket) {}, true, false, ReasonFirstScan},
		{"cancelled beats everything", func(t *models.Ticket) {
			t.Status = models.TicketCancelled
			t.ValidUntil = now.AddDate(0, 0, -1)
		}, false, false, ReasonCancelled},
		{"already expired", func(t *models.Ticket) { t.Status = models.TicketExpired }, false, false, ReasonExpired},
		{"unpaid", func(t *models.Ticket) { t.Status = models.TicketPending }, false, false, ReasonUnpaid},
		{"unpaid past validity expires", func(t *models.Ticket) {
			t.Status = models.TicketPending
			t.ValidUntil = now.Add(-time.Minute)
		}, false, true, "Ticket expired on 2026-10-15"},
		{"past validity", func(t *models.Ticket) {
			t.ValidUntil = now.Add(-time.Minute)
			t.ScanCount = 2
		}, false, true, "Ticket expired on 2026-10-15"},
		{"max reached", func(t *models.Ticket) {
			t.Status = models.TicketScanned
			t.ScanCount = 2
			t.FirstScanAt = &staleScan
		}, false, false, "Ticket has reached maximum scan limit (2)"},
		{"window elapsed", func(t *models.Ticket) {
			t.ScanCount = 1
			t.FirstScanAt = &staleScan
		}, false, false, "Scan window of 14 days has elapsed since first scan"},
		{"within window", func(t *models.Ticket) {
			t.ScanCount = 1
			t.FirstScanAt = &firstScan
		}, true, false, "Valid ticket - 1 scan(s) and 11 day(s) remaining"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticket := base()
			tt.mutate(ticket)
			v, expire := decide(ticket, now)
			assert.Equal(t, tt.valid, v.Valid)
			assert.Equal(t, tt.expire, expire)
			assert.Equal(t, tt.reason, v.Reason)
		})
	}

	v, _ := decide(nil, now)
	assert.Equal(t, ReasonNotFound, v.Reason)
	assert.Nil(t, v.Ticket)
}

func TestWindowBoundaryIsInclusive(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	first := now.AddDate(0, 0, -14)
	v, _ := decide(&models.Ticket{
		Status: models.TicketActive, ValidUntil: now.Add(time.Hour),
		MaxScans: 3, ScanCount: 1, ScanWindowDays: 14, FirstScanAt: &first,
	}, now)
	assert.True(t, v.Valid)
	assert.Equal(t, 0, *v.RemainingDays)
}

func TestGenerateCodeShape(t *testing.T) {
	shape := regexp.MustCompile(`^PB-[2-9A-HJ-NP-Z]{4}-[2-9A-HJ-NP-Z]{4}$`)
	for i := 0; i < 200; i++ {
		code, err := GenerateCode()
		assert.NoError(t, err)
		assert.Regexp(t, shape, code)
	}
}
