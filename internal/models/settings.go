package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// TicketSettingsID is the fixed primary key of the singleton settings row.
const TicketSettingsID = 1

type TicketSettings struct {
	bun.BaseModel `bun:"table:ticket_settings"`

	ID             int             `bun:"id,pk" json:"-"`
	MaxScanCount   int             `bun:"max_scan_count,notnull" json:"maxScanCount"`
	ScanWindowDays int             `bun:"scan_window_days,notnull" json:"scanWindowDays"`
	ValidityDays   int             `bun:"validity_days,notnull" json:"validityDays"`
	BasePrice      decimal.Decimal `bun:"base_price,type:numeric(12,2),notnull" json:"basePrice"`
	UpdatedAt      time.Time       `bun:"updated_at,notnull" json:"updatedAt"`
	UpdatedBy      string          `bun:"updated_by" json:"updatedBy,omitempty"`
}
