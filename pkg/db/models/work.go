package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/openshelf/circulation-backend/pkg/enums"
)

// Work is one catalog work (a title); physical units are ItemCopy rows.
type Work struct {
	ID              uuid.UUID           `gorm:"type:uuid;primaryKey"`
	Title           string              `gorm:"type:text;not null"`
	Author          string              `gorm:"type:text;not null"`
	ISBN            string              `gorm:"column:isbn;type:text;not null"`
	Publisher       string              `gorm:"type:text"`
	PublicationYear int                 `gorm:"column:publication_year"`
	Genres          string              `gorm:"type:text"`
	Condition       enums.ItemCondition `gorm:"type:text;not null;default:'GOOD'"`
	Active          bool                `gorm:"not null;default:true"`
	CreatedAt       time.Time           `gorm:"autoCreateTime"`
}
