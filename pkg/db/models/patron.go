package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/openshelf/circulation-backend/pkg/enums"
)

// Patron is a registered borrower. The tier drives the loan cap and the
// fee cadence bound to each of the patron's loans.
type Patron struct {
	ID           uuid.UUID        `gorm:"type:uuid;primaryKey"`
	Name         string           `gorm:"type:text;not null"`
	Email        string           `gorm:"type:text;not null"`
	Tier         enums.PatronTier `gorm:"type:text;not null"`
	Active       bool             `gorm:"not null;default:true"`
	RegisteredAt time.Time        `gorm:"autoCreateTime"`
}
