package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/openshelf/circulation-backend/pkg/enums"
)

// InventoryAudit records one copy status transition, written by the
// audit-trail watcher on the inventory change bus.
type InventoryAudit struct {
	ID         uuid.UUID        `gorm:"type:uuid;primaryKey"`
	CopyID     uuid.UUID        `gorm:"type:uuid;not null;index"`
	WorkID     uuid.UUID        `gorm:"type:uuid;not null;index"`
	Status     enums.ItemStatus `gorm:"type:text;not null"`
	RecordedAt time.Time        `gorm:"autoCreateTime"`
}
