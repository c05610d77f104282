package patrons

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openshelf/circulation-backend/pkg/db/models"
	"github.com/openshelf/circulation-backend/pkg/enums"
)

// Repository encapsulates patron persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a patron repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository scoped to the given transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, patron *models.Patron) error {
	return r.db.WithContext(ctx).Create(patron).Error
}

func (r *Repository) Save(ctx context.Context, patron *models.Patron) error {
	return r.db.WithContext(ctx).Save(patron).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Patron, error) {
	var patron models.Patron
	if err := r.db.WithContext(ctx).First(&patron, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &patron, nil
}

// FindActiveByEmail matches case-insensitively among active patrons.
func (r *Repository) FindActiveByEmail(ctx context.Context, email string) (*models.Patron, error) {
	var patron models.Patron
	err := r.db.WithContext(ctx).
		Where("lower(email) = ? AND active", strings.ToLower(strings.TrimSpace(email))).
		First(&patron).Error
	if err != nil {
		return nil, err
	}
	return &patron, nil
}

// Search matches name, email or tier substrings, active patrons first.
func (r *Repository) Search(ctx context.Context, query string, limit int) ([]models.Patron, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	var rows []models.Patron
	err := r.db.WithContext(ctx).
		Where("lower(name) LIKE ? OR lower(email) LIKE ? OR lower(tier) LIKE ?", pattern, pattern, pattern).
		Order("active DESC").
		Order("name ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// CountActiveLoans returns how many ACTIVE loans the patron holds.
func (r *Repository) CountActiveLoans(ctx context.Context, patronID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LoanRecord{}).
		Where("patron_id = ? AND status = ?", patronID, enums.LoanStatusActive).
		Count(&count).Error
	return count, err
}
