package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketPending   TicketStatus = "PENDING"
	TicketActive    TicketStatus = "ACTIVE"
	TicketScanned   TicketStatus = "SCANNED"
	TicketExpired   TicketStatus = "EXPIRED"
	TicketCancelled TicketStatus = "CANCELLED"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets,alias:t"`

	ID             string       `bun:"id,pk,type:uuid" json:"id"`
	Code           string       `bun:"code,notnull,unique" json:"code"`
	OrderID        string       `bun:"order_id,type:uuid,notnull" json:"orderId"`
	SessionLabel   string       `bun:"session_label" json:"sessionLabel,omitempty"`
	Status         TicketStatus `bun:"status,notnull" json:"status"`
	ValidUntil     time.Time    `bun:"valid_until,notnull" json:"validUntil"`
	MaxScans       int          `bun:"max_scans,notnull" json:"maxScans"`
	ScanWindowDays int          `bun:"scan_window_days,notnull" json:"scanWindowDays"`
	ScanCount      int          `bun:"scan_count,notnull,default:0" json:"scanCount"`
	FirstScanAt    *time.Time   `bun:"first_scan_at" json:"firstScanAt,omitempty"`
	LastScanAt     *time.Time   `bun:"last_scan_at" json:"lastScanAt,omitempty"`
	QRCodePath     string       `bun:"qr_code_path,nullzero" json:"qrCodePath,omitempty"`
	CreatedAt      time.Time    `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt      time.Time    `bun:"updated_at,notnull" json:"updatedAt"`
}

// TicketScan is append-only: one row per scan attempt, allowed or not.
type TicketScan struct {
	bun.BaseModel `bun:"table:ticket_scans,alias:ts"`

	ID         string    `bun:"id,pk,type:uuid" json:"id"`
	TicketID   string    `bun:"ticket_id,type:uuid,nullzero" json:"ticketId,omitempty"`
	TicketCode string    `bun:"ticket_code,notnull" json:"ticketCode"`
	ScannedBy  string    `bun:"scanned_by" json:"scannedBy,omitempty"`
	Location   string    `bun:"location" json:"location,omitempty"`
	Allowed    bool      `bun:"allowed,notnull" json:"allowed"`
	Reason     string    `bun:"reason,notnull" json:"reason"`
	ScannedAt  time.Time `bun:"scanned_at,notnull" json:"scannedAt"`
}
