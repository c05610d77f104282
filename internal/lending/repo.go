package lending

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/openshelf/circulation-backend/pkg/db/models"
	"github.com/openshelf/circulation-backend/pkg/enums"
)

// Repository encapsulates loan persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a loan repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository scoped to the given transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, loan *models.LoanRecord) error {
	return r.db.WithContext(ctx).Create(loan).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.LoanRecord, error) {
	var loan models.LoanRecord
	if err := r.db.WithContext(ctx).First(&loan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

// CloseLoan settles an ACTIVE loan: return timestamp, fee, RETURNED
// status, all in one guarded update. Returns gorm.ErrRecordNotFound when
// the loan is no longer ACTIVE.
func (r *Repository) CloseLoan(ctx context.Context, id uuid.UUID, returnAt time.Time, fee decimal.Decimal) error {
	result := r.db.WithContext(ctx).
		Model(&models.LoanRecord{}).
		Where("id = ? AND status = ?", id, enums.LoanStatusActive).
		Updates(map[string]any{
			"return_at": returnAt,
			"late_fee":  fee,
			"status":    enums.LoanStatusReturned,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateFee rewrites the accrued fee of a still-ACTIVE loan.
func (r *Repository) UpdateFee(ctx context.Context, id uuid.UUID, fee decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.LoanRecord{}).
		Where("id = ? AND status = ?", id, enums.LoanStatusActive).
		Update("late_fee", fee).
		Error
}

// ListActive returns every ACTIVE loan, oldest checkout first.
func (r *Repository) ListActive(ctx context.Context) ([]models.LoanRecord, error) {
	var rows []models.LoanRecord
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.LoanStatusActive).
		Order("checkout_at ASC").
		Find(&rows).Error
	return rows, err
}

// ListOverdue returns ACTIVE loans past their due date at now.
func (r *Repository) ListOverdue(ctx context.Context, now time.Time) ([]models.LoanRecord, error) {
	var rows []models.LoanRecord
	err := r.db.WithContext(ctx).
		Where("status = ? AND due_at < ?", enums.LoanStatusActive, now).
		Order("due_at ASC").
		Find(&rows).Error
	return rows, err
}

// ListActiveByPatron returns the patron's current loans.
func (r *Repository) ListActiveByPatron(ctx context.Context, patronID uuid.UUID) ([]models.LoanRecord, error) {
	var rows []models.LoanRecord
	err := r.db.WithContext(ctx).
		Where("patron_id = ? AND status = ?", patronID, enums.LoanStatusActive).
		Order("checkout_at ASC").
		Find(&rows).Error
	return rows, err
}

// ListByPatron returns the patron's full loan history, newest first.
func (r *Repository) ListByPatron(ctx context.Context, patronID uuid.UUID) ([]models.LoanRecord, error) {
	var rows []models.LoanRecord
	err := r.db.WithContext(ctx).
		Where("patron_id = ?", patronID).
		Order("checkout_at DESC").
		Find(&rows).Error
	return rows, err
}

// FindActiveByCopy returns the single ACTIVE loan on a copy, if any.
func (r *Repository) FindActiveByCopy(ctx context.Context, copyID uuid.UUID) (*models.LoanRecord, error) {
	var loan models.LoanRecord
	err := r.db.WithContext(ctx).
		Where("copy_id = ? AND status = ?", copyID, enums.LoanStatusActive).
		First(&loan).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}
