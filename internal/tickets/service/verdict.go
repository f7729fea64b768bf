package tickets

import (
	"fmt"
	"time"

	"paintball-ticketing/internal/models"
)

const (
	ReasonNotFound      = "Ticket not found"
	ReasonCancelled     = "Ticket has been cancelled"
	ReasonExpired       = "Ticket has expired"
	ReasonUnpaid        = "Ticket payment has not been confirmed"
	ReasonOrderMismatch = "QR code does not belong to this ticket"
	ReasonFirstScan     = "Valid ticket - first scan"
)

// Verdict is the outcome of checking a ticket at the gate.
type Verdict struct {
	Valid          bool           `json:"valid"`
	Reason         string         `json:"reason"`
	Ticket         *models.Ticket `json:"ticket,omitempty"`
	RemainingScans int            `json:"remainingScans"`
	RemainingDays  *int           `json:"remainingDays,omitempty"`
}

// decide applies the gate rules in order; the first matching rule wins. expire is
// true when the ticket should be persisted as EXPIRED.
func decide(t *models.Ticket, now time.Time) (v Verdict, expire bool) {
	if t == nil {
		return Verdict{Reason: ReasonNotFound}, false
	}
	v.Ticket = t

	switch t.Status {
	case models.TicketCancelled:
		v.Reason = ReasonCancelled
		return v, false
	case models.TicketExpired:
		v.Reason = ReasonExpired
		return v, false
	}

	if now.After(t.ValidUntil) {
		v.Reason = fmt.Sprintf("Ticket expired on %s", t.ValidUntil.UTC().Format("2006-01-02"))
		return v, true
	}

	if t.Status == models.TicketPending {
		v.Reason = ReasonUnpaid
		return v, false
	}

	if t.ScanCount >= t.MaxScans {
		v.Reason = fmt.Sprintf("Ticket has reached maximum scan limit (%d)", t.MaxScans)
		return v, false
	}

	remainingScans := t.MaxScans - t.ScanCount
	if t.FirstScanAt != nil {
		elapsed := daysBetween(*t.FirstScanAt, now)
		if elapsed > t.ScanWindowDays {
			v.Reason = fmt.Sprintf("Scan window of %d days has elapsed since first scan", t.ScanWindowDays)
			return v, false
		}
		remainingDays := t.ScanWindowDays - elapsed
		v.Valid = true
		v.RemainingScans = remainingScans
		v.RemainingDays = &remainingDays
		v.Reason = fmt.Sprintf("Valid ticket - %d scan(s) and %d day(s) remaining", remainingScans, remainingDays)
		return v, false
	}

	v.Valid = true
	v.RemainingScans = remainingScans
	v.Reason = ReasonFirstScan
	return v, false
}

// daysBetween counts whole days elapsed from a to b.
func daysBetween(a, b time.Time) int {
	if b.Before(a) {
		return 0
	}
	return int(b.Sub(a) / (24 * time.Hour))
}
