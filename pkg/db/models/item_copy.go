package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/openshelf/circulation-backend/pkg/enums"
)

// ItemCopy is one physical unit of a work, the object actually lent.
// A copy is AVAILABLE exactly when no ACTIVE loan references it.
type ItemCopy struct {
	ID         uuid.UUID           `gorm:"type:uuid;primaryKey"`
	WorkID     uuid.UUID           `gorm:"type:uuid;not null;index"`
	Barcode    string              `gorm:"type:text;not null"`
	Location   string              `gorm:"type:text"`
	Status     enums.ItemStatus    `gorm:"type:text;not null;default:'AVAILABLE';index"`
	Condition  enums.ItemCondition `gorm:"type:text;not null;default:'GOOD'"`
	Notes      string              `gorm:"type:text"`
	AcquiredAt time.Time           `gorm:"autoCreateTime"`
}

// IsAvailable reports whether the copy can be checked out.
func (c *ItemCopy) IsAvailable() bool {
	return c.Status == enums.ItemStatusAvailable
}
