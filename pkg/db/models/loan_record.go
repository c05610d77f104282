package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openshelf/circulation-backend/pkg/enums"
)

// LoanRecord is one checkout-to-return episode for one copy and one
// patron. Records are never deleted; a RETURNED loan stays as history.
type LoanRecord struct {
	ID         uuid.UUID        `gorm:"type:uuid;primaryKey"`
	CopyID     uuid.UUID        `gorm:"type:uuid;not null;index"`
	PatronID   uuid.UUID        `gorm:"type:uuid;not null;index"`
	CheckoutAt time.Time        `gorm:"not null"`
	DueAt      time.Time        `gorm:"not null"`
	ReturnAt   *time.Time
	LateFee    decimal.Decimal  `gorm:"type:numeric(12,2);not null;default:0"`
	Status     enums.LoanStatus `gorm:"type:text;not null;default:'ACTIVE';index"`
	FeeCadence enums.FeeCadence `gorm:"column:fee_cadence;type:text;not null"`
}

// IsOverdue reports whether the loan is ACTIVE and past its due date.
// There is no stored overdue status; it is always derived.
func (l *LoanRecord) IsOverdue(now time.Time) bool {
	return l.Status == enums.LoanStatusActive && now.After(l.DueAt)
}
