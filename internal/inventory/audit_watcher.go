package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openshelf/circulation-backend/pkg/db/models"
	pkgerrors "github.com/openshelf/circulation-backend/pkg/errors"
)

// AuditWatcher appends one audit row per copy status transition.
type AuditWatcher struct {
	db *gorm.DB
}

func NewAuditWatcher(db *gorm.DB) (*AuditWatcher, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "db is required")
	}
	return &AuditWatcher{db: db}, nil
}

func (w *AuditWatcher) Name() string {
	return "audit-trail"
}

func (w *AuditWatcher) HandleInventoryChange(ctx context.Context, event Event) error {
	recordedAt := event.OccurredAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	row := models.InventoryAudit{
		ID:         uuid.New(),
		CopyID:     event.CopyID,
		WorkID:     event.WorkID,
		Status:     event.Status,
		RecordedAt: recordedAt,
	}
	if err := w.db.WithContext(ctx).Create(&row).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write inventory audit")
	}
	return nil
}
