package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment lifecycle states. State only ever moves forward:
// NEW -> PENDING -> {ACCEPTED | REJECTED}; ACCEPTED may later be marked
// PROCESSED by the downstream consumer.
const (
	PaymentNew       = 1
	PaymentPending   = 2
	PaymentRejected  = 3
	PaymentAccepted  = 4
	PaymentProcessed = 5
)

// Recurrence period codes.
const (
	RecurAnnual   = "y"
	RecurBiannual = "b"
	RecurMonthly  = "m"
	RecurNone     = ""
)

// Payment is a single monetary transaction request. Rows are append only;
// renewals of recurring payments are new rows linked via Repeat, existing
// rows are never deleted.
type Payment struct {
	// UUID is the externally visible identifier. It is embedded in redirect
	// URLs, so it must not be guessable.
	UUID        string `gorm:"primaryKey;type:char(36)" json:"uuid"`
	Amount      int    `gorm:"not null" json:"amount"`
	Description string `gorm:"type:text" json:"description"`
	Recurring   string `gorm:"type:varchar(10);default:''" json:"recurring"`
	State       int    `gorm:"not null;default:1;index" json:"state"`
	// Backend is the name of the payment method used.
	Backend string `gorm:"type:varchar(100);default:''" json:"backend"`
	// Details holds the raw gateway response payload.
	Details JSONMap `gorm:"type:longtext" json:"details"`
	// Extra holds caller supplied metadata from the origin system.
	Extra       JSONMap   `gorm:"type:longtext" json:"extra"`
	CustomerID  uint      `gorm:"not null;index" json:"customer_id"`
	Customer    Customer  `gorm:"foreignKey:CustomerID" json:"customer"`
	Repeat      *string   `gorm:"type:char(36);index" json:"repeat,omitempty"`
	Invoice     string    `gorm:"type:varchar(20);default:''" json:"invoice"`
	AmountFixed bool      `gorm:"default:false" json:"amount_fixed"`
	Created     time.Time `gorm:"autoCreateTime;index" json:"created"`
}

// TableName specifies the table name for the Payment model
func (Payment) TableName() string {
	return "payments"
}

// BeforeCreate assigns the random payment token.
func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.UUID == "" {
		p.UUID = uuid.NewString()
	}
	if p.State == 0 {
		p.State = PaymentNew
	}
	if p.Details == nil {
		p.Details = JSONMap{}
	}
	if p.Extra == nil {
		p.Extra = JSONMap{}
	}
	return nil
}

// VATAmount returns the amount to charge, grossed up by the customer's VAT
// rate unless the amount is fixed (already VAT inclusive).
func (p *Payment) VATAmount() float64 {
	if p.Customer.NeedsVAT() && !p.AmountFixed {
		rate := decimal.NewFromInt(int64(100 + p.Customer.VATRateFor()))
		gross := rate.Mul(decimal.NewFromInt(int64(p.Amount))).Div(decimal.NewFromInt(100))
		f, _ := gross.Round(2).Float64()
		return f
	}
	return float64(p.Amount)
}

// AmountWithoutVAT degrosses a fixed amount when VAT applies.
func (p *Payment) AmountWithoutVAT() float64 {
	if p.Customer.NeedsVAT() && p.AmountFixed {
		rate := decimal.NewFromInt(int64(100 + p.Customer.VATRateFor()))
		net := decimal.NewFromInt(int64(p.Amount)).Mul(decimal.NewFromInt(100)).Div(rate)
		f, _ := net.Round(2).Float64()
		return f
	}
	return float64(p.Amount)
}

// InvoiceFilename returns the invoice PDF file name or "".
func (p *Payment) InvoiceFilename() string {
	if p.Invoice == "" {
		return ""
	}
	return p.Invoice + ".pdf"
}

// RejectReason returns the recorded gateway reject reason, if any.
func (p *Payment) RejectReason() string {
	if reason, ok := p.Details["reject_reason"].(string); ok {
		return reason
	}
	return ""
}

// StateName returns a human readable state label.
func (p *Payment) StateName() string {
	switch p.State {
	case PaymentNew:
		return "New"
	case PaymentPending:
		return "Pending"
	case PaymentRejected:
		return "Rejected"
	case PaymentAccepted:
		return "Accepted"
	case PaymentProcessed:
		return "Processed"
	}
	return fmt.Sprintf("Unknown (%d)", p.State)
}

// PeriodDelta returns the renewal interval of a recurrence period code.
func PeriodDelta(period string) (years int, months int, err error) {
	switch period {
	case RecurAnnual:
		return 1, 0, nil
	case RecurBiannual:
		return 0, 6, nil
	case RecurMonthly:
		return 0, 1, nil
	}
	return 0, 0, fmt.Errorf("invalid payment period: %q", period)
}
