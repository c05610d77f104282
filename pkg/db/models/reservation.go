package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/openshelf/circulation-backend/pkg/enums"
)

// Reservation is one patron's position in a work's waiting line. Among a
// work's PENDING reservations, queue positions always form the contiguous
// range 1..N ordered by ReservedAt; the queue manager re-packs positions
// after every cancellation or expiry.
type Reservation struct {
	ID            uuid.UUID               `gorm:"type:uuid;primaryKey"`
	WorkID        uuid.UUID               `gorm:"type:uuid;not null;index"`
	PatronID      uuid.UUID               `gorm:"type:uuid;not null;index"`
	ReservedAt    time.Time               `gorm:"not null"`
	ExpiresAt     time.Time               `gorm:"not null"`
	Status        enums.ReservationStatus `gorm:"type:text;not null;default:'PENDING';index"`
	QueuePosition int                     `gorm:"not null"`
}
