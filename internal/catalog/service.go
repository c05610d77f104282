package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openshelf/circulation-backend/pkg/db"
	"github.com/openshelf/circulation-backend/pkg/db/models"
	"github.com/openshelf/circulation-backend/pkg/enums"
	pkgerrors "github.com/openshelf/circulation-backend/pkg/errors"
	"github.com/openshelf/circulation-backend/pkg/validate"
)

// CreateWorkInput captures a new catalog work.
type CreateWorkInput struct {
	Title           string `json:"title" validate:"required,min=1,max=500"`
	Author          string `json:"author" validate:"required,min=1,max=300"`
	ISBN            string `json:"isbn" validate:"required,min=10,max=17"`
	Publisher       string `json:"publisher" validate:"max=300"`
	PublicationYear int    `json:"publication_year" validate:"omitempty,min=1400,max=2100"`
	Genres          string `json:"genres" validate:"max=500"`
	Condition       string `json:"condition"`
}

// UpdateWorkInput carries optional work changes. Nil fields are untouched.
type UpdateWorkInput struct {
	Title     *string `json:"title" validate:"omitempty,min=1,max=500"`
	Author    *string `json:"author" validate:"omitempty,min=1,max=300"`
	Publisher *string `json:"publisher" validate:"omitempty,max=300"`
	Genres    *string `json:"genres" validate:"omitempty,max=500"`
	Condition *string `json:"condition"`
}

// AddCopyInput registers a new physical copy of a work.
type AddCopyInput struct {
	WorkID   uuid.UUID `json:"work_id" validate:"required"`
	Barcode  string    `json:"barcode" validate:"required,min=1,max=100"`
	Location string    `json:"location" validate:"max=200"`
}

// WorksPage is one page of a cursor-paginated work search.
type WorksPage struct {
	Works      []models.Work `json:"works"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// ServiceParams groups dependencies for the catalog service.
type ServiceParams struct {
	CatalogRepo *Repository
}

// Service manages works and their physical copies. Copy transitions in
// and out of CHECKED_OUT belong to the lending ledger, not here.
type Service interface {
	CreateWork(ctx context.Context, input CreateWorkInput) (*models.Work, error)
	UpdateWork(ctx context.Context, id uuid.UUID, input UpdateWorkInput) (*models.Work, error)
	DeactivateWork(ctx context.Context, id uuid.UUID) error
	GetWork(ctx context.Context, id uuid.UUID) (*models.Work, error)
	SearchWorks(ctx context.Context, query, cursor string, limit int) (WorksPage, error)
	AddCopy(ctx context.Context, input AddCopyInput) (*models.ItemCopy, error)
	GetCopy(ctx context.Context, id uuid.UUID) (*models.ItemCopy, error)
	ListCopies(ctx context.Context, workID uuid.UUID) ([]models.ItemCopy, error)
	UpdateCopyStatus(ctx context.Context, copyID uuid.UUID, to enums.ItemStatus) (*models.ItemCopy, error)
	AvailableCopyCount(ctx context.Context, workID uuid.UUID) (int64, error)
}

type service struct {
	catalogRepo *Repository
	now         func() time.Time
}

// NewService builds the catalog service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.CatalogRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "catalog repo is required")
	}
	return &service{
		catalogRepo: params.CatalogRepo,
		now:         time.Now,
	}, nil
}

// CreateWork registers a work. ISBN is unique among active works.
func (s *service) CreateWork(ctx context.Context, input CreateWorkInput) (*models.Work, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	condition, err := parseCondition(input.Condition, enums.ItemConditionGood)
	if err != nil {
		return nil, err
	}

	work := &models.Work{
		ID:              uuid.New(),
		Title:           strings.TrimSpace(input.Title),
		Author:          strings.TrimSpace(input.Author),
		ISBN:            strings.TrimSpace(input.ISBN),
		Publisher:       strings.TrimSpace(input.Publisher),
		PublicationYear: input.PublicationYear,
		Genres:          strings.TrimSpace(input.Genres),
		Condition:       condition,
		Active:          true,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.catalogRepo.CreateWork(ctx, work); err != nil {
		if db.IsUniqueViolation(err, "works_isbn_active_key") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "isbn already in catalog")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create work")
	}
	return work, nil
}

// UpdateWork applies changes to an existing work.
func (s *service) UpdateWork(ctx context.Context, id uuid.UUID, input UpdateWorkInput) (*models.Work, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	work, err := s.loadWork(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		work.Title = strings.TrimSpace(*input.Title)
	}
	if input.Author != nil {
		work.Author = strings.TrimSpace(*input.Author)
	}
	if input.Publisher != nil {
		work.Publisher = strings.TrimSpace(*input.Publisher)
	}
	if input.Genres != nil {
		work.Genres = strings.TrimSpace(*input.Genres)
	}
	if input.Condition != nil {
		condition, err := parseCondition(*input.Condition, work.Condition)
		if err != nil {
			return nil, err
		}
		work.Condition = condition
	}

	if err := s.catalogRepo.SaveWork(ctx, work); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save work")
	}
	return work, nil
}

// DeactivateWork retires a work from the catalog. Existing copies and
// loan history stay untouched.
func (s *service) DeactivateWork(ctx context.Context, id uuid.UUID) error {
	work, err := s.loadWork(ctx, id)
	if err != nil {
		return err
	}
	if !work.Active {
		return nil
	}
	work.Active = false
	if err := s.catalogRepo.SaveWork(ctx, work); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save work")
	}
	return nil
}

func (s *service) GetWork(ctx context.Context, id uuid.UUID) (*models.Work, error) {
	return s.loadWork(ctx, id)
}

func (s *service) SearchWorks(ctx context.Context, query, cursor string, limit int) (WorksPage, error) {
	rows, nextCursor, err := s.catalogRepo.SearchWorks(ctx, query, cursor, limit)
	if err != nil {
		return WorksPage{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "search works")
	}
	return WorksPage{Works: rows, NextCursor: nextCursor}, nil
}

// AddCopy registers a physical copy, born AVAILABLE.
func (s *service) AddCopy(ctx context.Context, input AddCopyInput) (*models.ItemCopy, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	work, err := s.loadWork(ctx, input.WorkID)
	if err != nil {
		return nil, err
	}
	if !work.Active {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "cannot add copies to an inactive work")
	}

	copy := &models.ItemCopy{
		ID:         uuid.New(),
		WorkID:     work.ID,
		Barcode:    strings.TrimSpace(input.Barcode),
		Location:   strings.TrimSpace(input.Location),
		Status:     enums.ItemStatusAvailable,
		Condition:  work.Condition,
		AcquiredAt: s.now().UTC(),
	}
	if err := s.catalogRepo.CreateCopy(ctx, copy); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create copy")
	}
	return copy, nil
}

func (s *service) GetCopy(ctx context.Context, id uuid.UUID) (*models.ItemCopy, error) {
	return s.loadCopy(ctx, id)
}

func (s *service) ListCopies(ctx context.Context, workID uuid.UUID) ([]models.ItemCopy, error) {
	if _, err := s.loadWork(ctx, workID); err != nil {
		return nil, err
	}
	rows, err := s.catalogRepo.ListCopiesByWork(ctx, workID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list copies")
	}
	return rows, nil
}

// UpdateCopyStatus performs administrative transitions. A CHECKED_OUT
// copy can only move through the ledger's return path, and loan-driven
// states cannot be entered here.
func (s *service) UpdateCopyStatus(ctx context.Context, copyID uuid.UUID, to enums.ItemStatus) (*models.ItemCopy, error) {
	if !to.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown copy status: "+string(to))
	}
	if to == enums.ItemStatusCheckedOut {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checked-out transitions are owned by the lending ledger")
	}

	copy, err := s.loadCopy(ctx, copyID)
	if err != nil {
		return nil, err
	}
	if copy.Status == to {
		return copy, nil
	}
	if copy.Status == enums.ItemStatusCheckedOut {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "copy is checked out").
			WithDetails(map[string]any{"copy_id": copyID})
	}
	if copy.Status == enums.ItemStatusRemoved {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "copy has been removed from circulation")
	}

	if err := s.catalogRepo.UpdateCopyStatus(ctx, copyID, copy.Status, to); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "copy status changed concurrently")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update copy status")
	}
	copy.Status = to
	return copy, nil
}

func (s *service) AvailableCopyCount(ctx context.Context, workID uuid.UUID) (int64, error) {
	if _, err := s.loadWork(ctx, workID); err != nil {
		return 0, err
	}
	count, err := s.catalogRepo.CountAvailableCopies(ctx, workID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count available copies")
	}
	return count, nil
}

func (s *service) loadWork(ctx context.Context, id uuid.UUID) (*models.Work, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "work id is required")
	}
	work, err := s.catalogRepo.FindWorkByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "work not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load work")
	}
	return work, nil
}

func (s *service) loadCopy(ctx context.Context, id uuid.UUID) (*models.ItemCopy, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "copy id is required")
	}
	copy, err := s.catalogRepo.FindCopyByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "copy not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load copy")
	}
	return copy, nil
}

func parseCondition(value string, fallback enums.ItemCondition) (enums.ItemCondition, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(value))
	if trimmed == "" {
		return fallback, nil
	}
	condition := enums.ItemCondition(trimmed)
	if !condition.IsValid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unknown item condition: "+value)
	}
	return condition, nil
}
