package patrons

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

// RegisterInput captures a new patron registration.
type RegisterInput struct {
	Name  string `json:"name" validate:"required,min=2,max=200"`
	Email string `json:"email" validate:"required,email"`
	Tier  string `json:"tier" validate:"required"`
}

// UpdateInput carries optional profile changes. Nil fields are untouched.
type UpdateInput struct {
	Name  *string `json:"name" validate:"omitempty,min=2,max=200"`
	Email *string `json:"email" validate:"omitempty,email"`
	Tier  *string `json:"tier"`
}

// ServiceParams groups dependencies for the patron directory.
type ServiceParams struct {
	PatronRepo *Repository
}

// Service is the patron directory plus the borrowing eligibility gate.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*models.Patron, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Patron, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*models.Patron, error)
	Search(ctx context.Context, query string, limit int) ([]models.Patron, error)
	IsEligibleForBorrowing(ctx context.Context, id uuid.UUID) (bool, error)
}

type service struct {
	patronRepo *Repository
	now        func() time.Time
}

// NewService builds the patron directory with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.PatronRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "patron repo is required")
	}
	return &service{
		patronRepo: params.PatronRepo,
		now:        time.Now,
	}, nil
}

// Register creates an active patron. Email is unique among active patrons.
func (s *service) Register(ctx context.Context, input RegisterInput) (*models.Patron, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	tier := enums.PatronTier(strings.ToUpper(strings.TrimSpace(input.Tier)))
	if !tier.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown patron tier: "+input.Tier)
	}

	patron := &models.Patron{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(input.Name),
		Email:        strings.TrimSpace(input.Email),
		Tier:         tier,
		Active:       true,
		RegisteredAt: s.now().UTC(),
	}
	if err := s.patronRepo.Create(ctx, patron); err != nil {
		if db.IsUniqueViolation(err, "patrons_email_active_key") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "email already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create patron")
	}
	return patron, nil
}

// Update applies profile changes to an existing patron.
func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Patron, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	patron, err := s.loadPatron(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		patron.Name = strings.TrimSpace(*input.Name)
	}
	if input.Email != nil {
		patron.Email = strings.TrimSpace(*input.Email)
	}
	if input.Tier != nil {
		tier := enums.PatronTier(strings.ToUpper(strings.TrimSpace(*input.Tier)))
		if !tier.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown patron tier: "+*input.Tier)
		}
		patron.Tier = tier
	}

	if err := s.patronRepo.Save(ctx, patron); err != nil {
		if db.IsUniqueViolation(err, "patrons_email_active_key") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "email already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save patron")
	}
	return patron, nil
}

// Deactivate retires a patron. Patrons holding active loans stay active
// until every copy is back.
func (s *service) Deactivate(ctx context.Context, id uuid.UUID) error {
	patron, err := s.loadPatron(ctx, id)
	if err != nil {
		return err
	}
	if !patron.Active {
		return nil
	}

	activeLoans, err := s.patronRepo.CountActiveLoans(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count active loans")
	}
	if activeLoans > 0 {
		return pkgerrors.New(pkgerrors.CodeBusinessRule, "patron has active loans").
			WithDetails(map[string]any{"active_loans": activeLoans})
	}

	patron.Active = false
	if err := s.patronRepo.Save(ctx, patron); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save patron")
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Patron, error) {
	return s.loadPatron(ctx, id)
}

func (s *service) Search(ctx context.Context, query string, limit int) ([]models.Patron, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	rows, err := s.patronRepo.Search(ctx, query, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "search patrons")
	}
	return rows, nil
}

// IsEligibleForBorrowing reports whether the patron is active and under
// their tier's loan cap.
func (s *service) IsEligibleForBorrowing(ctx context.Context, id uuid.UUID) (bool, error) {
	patron, err := s.loadPatron(ctx, id)
	if err != nil {
		return false, err
	}
	if !patron.Active {
		return false, nil
	}
	activeLoans, err := s.patronRepo.CountActiveLoans(ctx, id)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count active loans")
	}
	return activeLoans < int64(patron.Tier.MaxLoans()), nil
}

func (s *service) loadPatron(ctx context.Context, id uuid.UUID) (*models.Patron, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "patron id is required")
	}
	patron, err := s.patronRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "patron not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load patron")
	}
	return patron, nil
}
