package catalog

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openshelf/circulation-backend/pkg/db/models"
	"github.com/openshelf/circulation-backend/pkg/enums"
	"github.com/openshelf/circulation-backend/pkg/pagination"
)

// Repository encapsulates work and copy persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a catalog repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository scoped to the given transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) CreateWork(ctx context.Context, work *models.Work) error {
	return r.db.WithContext(ctx).Create(work).Error
}

func (r *Repository) SaveWork(ctx context.Context, work *models.Work) error {
	return r.db.WithContext(ctx).Save(work).Error
}

func (r *Repository) FindWorkByID(ctx context.Context, id uuid.UUID) (*models.Work, error) {
	var work models.Work
	if err := r.db.WithContext(ctx).First(&work, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &work, nil
}

func (r *Repository) FindActiveWorkByISBN(ctx context.Context, isbn string) (*models.Work, error) {
	var work models.Work
	err := r.db.WithContext(ctx).
		Where("isbn = ? AND active", strings.TrimSpace(isbn)).
		First(&work).Error
	if err != nil {
		return nil, err
	}
	return &work, nil
}

// SearchWorks matches title, author or ISBN substrings among active
// works, newest first, cursor-paginated.
func (r *Repository) SearchWorks(ctx context.Context, query, cursor string, limit int) ([]models.Work, string, error) {
	normalizedLimit := pagination.NormalizeLimit(limit)
	limitWithBuffer := pagination.LimitWithBuffer(limit)
	decodedCursor, err := pagination.Parse(cursor)
	if err != nil {
		return nil, "", err
	}

	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	dataQuery := r.db.WithContext(ctx).
		Model(&models.Work{}).
		Where("active").
		Where("lower(title) LIKE ? OR lower(author) LIKE ? OR lower(isbn) LIKE ?", pattern, pattern, pattern)

	if decodedCursor != nil {
		dataQuery = dataQuery.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			decodedCursor.CreatedAt, decodedCursor.CreatedAt, decodedCursor.ID)
	}

	var rows []models.Work
	err = dataQuery.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limitWithBuffer).
		Find(&rows).Error
	if err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(rows) > normalizedLimit {
		rows = rows[:normalizedLimit]
		last := rows[len(rows)-1]
		nextCursor = pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}
	return rows, nextCursor, nil
}

func (r *Repository) CreateCopy(ctx context.Context, copy *models.ItemCopy) error {
	return r.db.WithContext(ctx).Create(copy).Error
}

func (r *Repository) FindCopyByID(ctx context.Context, id uuid.UUID) (*models.ItemCopy, error) {
	var copy models.ItemCopy
	if err := r.db.WithContext(ctx).First(&copy, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &copy, nil
}

func (r *Repository) ListCopiesByWork(ctx context.Context, workID uuid.UUID) ([]models.ItemCopy, error) {
	var rows []models.ItemCopy
	err := r.db.WithContext(ctx).
		Where("work_id = ?", workID).
		Order("acquired_at ASC").
		Find(&rows).Error
	return rows, err
}

// UpdateCopyStatus transitions a copy only when it still holds the
// expected status. Returns gorm.ErrRecordNotFound when the guard fails,
// so a concurrent transition loses cleanly.
func (r *Repository) UpdateCopyStatus(ctx context.Context, copyID uuid.UUID, from, to enums.ItemStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.ItemCopy{}).
		Where("id = ? AND status = ?", copyID, from).
		Update("status", to)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountAvailableCopies returns how many of a work's copies are AVAILABLE.
func (r *Repository) CountAvailableCopies(ctx context.Context, workID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ItemCopy{}).
		Where("work_id = ? AND status = ?", workID, enums.ItemStatusAvailable).
		Count(&count).Error
	return count, err
}
