package reservations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openshelf/circulation-backend/pkg/db/models"
	"github.com/openshelf/circulation-backend/pkg/enums"
)

// Repository encapsulates reservation persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a reservation repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository scoped to the given transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, reservation *models.Reservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	if err := r.db.WithContext(ctx).First(&reservation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

// FindPendingByWorkAndPatron returns the patron's PENDING reservation for
// a work, if any.
func (r *Repository) FindPendingByWorkAndPatron(ctx context.Context, workID, patronID uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.db.WithContext(ctx).
		Where("work_id = ? AND patron_id = ? AND status = ?", workID, patronID, enums.ReservationStatusPending).
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

// ListPendingByWork returns a work's PENDING reservations in queue order.
func (r *Repository) ListPendingByWork(ctx context.Context, workID uuid.UUID) ([]models.Reservation, error) {
	var rows []models.Reservation
	err := r.db.WithContext(ctx).
		Where("work_id = ? AND status = ?", workID, enums.ReservationStatusPending).
		Order("reserved_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) CountPendingByWork(ctx context.Context, workID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("work_id = ? AND status = ?", workID, enums.ReservationStatusPending).
		Count(&count).Error
	return count, err
}

// ListByPatron returns the patron's reservations, newest first.
func (r *Repository) ListByPatron(ctx context.Context, patronID uuid.UUID) ([]models.Reservation, error) {
	var rows []models.Reservation
	err := r.db.WithContext(ctx).
		Where("patron_id = ?", patronID).
		Order("reserved_at DESC").
		Find(&rows).Error
	return rows, err
}

// ListExpiredPending returns PENDING reservations whose expiry is in the
// past.
func (r *Repository) ListExpiredPending(ctx context.Context, now time.Time) ([]models.Reservation, error) {
	var rows []models.Reservation
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", enums.ReservationStatusPending, now).
		Order("expires_at ASC").
		Find(&rows).Error
	return rows, err
}

// TransitionStatus moves a reservation between statuses only when it
// still holds the expected one. Returns gorm.ErrRecordNotFound when the
// guard fails.
func (r *Repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.ReservationStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdatePosition rewrites a reservation's queue position.
func (r *Repository) UpdatePosition(ctx context.Context, id uuid.UUID, position int) error {
	return r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ?", id).
		Update("queue_position", position).
		Error
}
