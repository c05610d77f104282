package lending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/openshelf/circulation-backend/internal/catalog"
	"github.com/openshelf/circulation-backend/internal/fees"
	"github.com/openshelf/circulation-backend/internal/inventory"
	"github.com/openshelf/circulation-backend/internal/reservations"
	"github.com/openshelf/circulation-backend/pkg/db"
	"github.com/openshelf/circulation-backend/pkg/db/models"
	"github.com/openshelf/circulation-backend/pkg/enums"
	pkgerrors "github.com/openshelf/circulation-backend/pkg/errors"
	"github.com/openshelf/circulation-backend/pkg/logger"
	"github.com/openshelf/circulation-backend/pkg/metrics"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Directory is the slice of the patron service the ledger consumes.
type Directory interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Patron, error)
	IsEligibleForBorrowing(ctx context.Context, id uuid.UUID) (bool, error)
}

// ChangeNotifier receives copy status transitions after they commit.
type ChangeNotifier interface {
	Notify(ctx context.Context, event inventory.Event)
}

// ServiceParams groups dependencies for the lending ledger.
type ServiceParams struct {
	DB              *db.Client
	LoanRepo        *Repository
	CatalogRepo     *catalog.Repository
	ReservationRepo *reservations.Repository
	Queue           *reservations.QueueManager
	Patrons         Directory
	Notifier        ChangeNotifier
	Metrics         *metrics.CirculationMetrics
	Logger          *logger.Logger
	ReservationTTL  time.Duration
}

// Service is the lending ledger: the only component that moves copies,
// loans and reservations through their lifecycles.
type Service interface {
	Checkout(ctx context.Context, patronID, copyID uuid.UUID, dueAt time.Time) (*models.LoanRecord, error)
	Return(ctx context.Context, loanID uuid.UUID) (*models.LoanRecord, error)
	Reserve(ctx context.Context, patronID, workID uuid.UUID) (*models.Reservation, error)
	CancelReservation(ctx context.Context, reservationID uuid.UUID) error
	ProcessExpiredReservations(ctx context.Context) (int, error)
	ProcessOverdueLoans(ctx context.Context) (int, error)

	ActiveLoans(ctx context.Context) ([]models.LoanRecord, error)
	OverdueLoans(ctx context.Context) ([]models.LoanRecord, error)
	PatronActiveLoans(ctx context.Context, patronID uuid.UUID) ([]models.LoanRecord, error)
	PatronHistory(ctx context.Context, patronID uuid.UUID) ([]models.LoanRecord, error)
	WorkReservations(ctx context.Context, workID uuid.UUID) ([]models.Reservation, error)
	PatronReservations(ctx context.Context, patronID uuid.UUID) ([]models.Reservation, error)
	CalculateLateFees(ctx context.Context, loanID uuid.UUID) (decimal.Decimal, error)
}

type service struct {
	client          *db.Client
	loanRepo        *Repository
	catalogRepo     *catalog.Repository
	reservationRepo *reservations.Repository
	queue           *reservations.QueueManager
	patrons         Directory
	notifier        ChangeNotifier
	metrics         *metrics.CirculationMetrics
	log             *logger.Logger
	reservationTTL  time.Duration
	keys            keyedMutex
	now             func() time.Time
}

// NewService builds the ledger with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "db client is required")
	}
	if params.LoanRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan repo is required")
	}
	if params.CatalogRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "catalog repo is required")
	}
	if params.ReservationRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation repo is required")
	}
	if params.Queue == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "queue manager is required")
	}
	if params.Patrons == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "patron directory is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	ttl := params.ReservationTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &service{
		client:          params.DB,
		loanRepo:        params.LoanRepo,
		catalogRepo:     params.CatalogRepo,
		reservationRepo: params.ReservationRepo,
		queue:           params.Queue,
		patrons:         params.Patrons,
		notifier:        params.Notifier,
		metrics:         params.Metrics,
		log:             params.Logger,
		reservationTTL:  ttl,
		now:             time.Now,
	}, nil
}

// Checkout lends a copy to a patron. The copy transition and the loan
// insert commit together; checkout does not notify inventory watchers.
func (s *service) Checkout(ctx context.Context, patronID, copyID uuid.UUID, dueAt time.Time) (*models.LoanRecord, error) {
	loan, err := s.checkout(ctx, patronID, copyID, dueAt)
	if err != nil {
		s.metrics.IncCheckout(outcomeFailure)
		return nil, err
	}
	s.metrics.IncCheckout(outcomeSuccess)

	ctx = s.log.WithLoanID(s.log.WithCopyID(s.log.WithPatronID(ctx, patronID.String()), copyID.String()), loan.ID.String())
	s.log.Info(ctx, "copy checked out")
	return loan, nil
}

func (s *service) checkout(ctx context.Context, patronID, copyID uuid.UUID, dueAt time.Time) (*models.LoanRecord, error) {
	if copyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "copy id is required")
	}
	now := s.now().UTC()
	if dueAt.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "due date is required")
	}

	patron, err := s.patrons.Get(ctx, patronID)
	if err != nil {
		return nil, err
	}
	eligible, err := s.patrons.IsEligibleForBorrowing(ctx, patronID)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "patron is not eligible for borrowing").
			WithDetails(map[string]any{"patron_id": patronID})
	}

	unlock := s.keys.lock("copy:" + copyID.String())
	defer unlock()

	var loan *models.LoanRecord
	err = s.client.WithTx(ctx, func(tx *gorm.DB) error {
		catalogTx := s.catalogRepo.WithTx(tx)

		copyRow, err := catalogTx.FindCopyByID(ctx, copyID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "copy not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load copy")
		}
		if !copyRow.IsAvailable() {
			return pkgerrors.New(pkgerrors.CodeBusinessRule, "copy is not available").
				WithDetails(map[string]any{"copy_id": copyID, "status": copyRow.Status})
		}

		if err := catalogTx.UpdateCopyStatus(ctx, copyID, enums.ItemStatusAvailable, enums.ItemStatusCheckedOut); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeBusinessRule, err, "copy was taken concurrently")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transition copy")
		}

		loan = &models.LoanRecord{
			ID:         uuid.New(),
			CopyID:     copyID,
			PatronID:   patron.ID,
			CheckoutAt: now,
			DueAt:      dueAt.UTC(),
			LateFee:    decimal.Zero,
			Status:     enums.LoanStatusActive,
			FeeCadence: fees.CadenceForTier(patron.Tier),
		}
		if err := s.loanRepo.WithTx(tx).Create(ctx, loan); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create loan")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// Return settles a loan: the fee is computed against the return
// timestamp while the loan is still ACTIVE, then the status flips and
// the copy goes back to AVAILABLE. Watchers hear about it only after
// the commit.
func (s *service) Return(ctx context.Context, loanID uuid.UUID) (*models.LoanRecord, error) {
	loan, event, err := s.processReturn(ctx, loanID)
	if err != nil {
		s.metrics.IncReturn(outcomeFailure)
		return nil, err
	}
	s.metrics.IncReturn(outcomeSuccess)

	if s.notifier != nil && event.Status == enums.ItemStatusAvailable {
		s.notifier.Notify(ctx, event)
	}

	ctx = s.log.WithLoanID(s.log.WithCopyID(ctx, loan.CopyID.String()), loan.ID.String())
	s.log.Info(ctx, "copy returned")
	return loan, nil
}

func (s *service) processReturn(ctx context.Context, loanID uuid.UUID) (*models.LoanRecord, inventory.Event, error) {
	if loanID == uuid.Nil {
		return nil, inventory.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "loan id is required")
	}

	loan, err := s.loanRepo.FindByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, inventory.Event{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "loan not found")
		}
		return nil, inventory.Event{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loan")
	}
	if loan.Status != enums.LoanStatusActive {
		return nil, inventory.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "loan is not active").
			WithDetails(map[string]any{"loan_id": loanID, "status": loan.Status})
	}

	unlock := s.keys.lock("copy:" + loan.CopyID.String())
	defer unlock()

	now := s.now().UTC()
	var event inventory.Event
	err = s.client.WithTx(ctx, func(tx *gorm.DB) error {
		loanTx := s.loanRepo.WithTx(tx)
		catalogTx := s.catalogRepo.WithTx(tx)

		copyRow, err := catalogTx.FindCopyByID(ctx, loan.CopyID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load copy")
		}

		fee := fees.Amount(loan.FeeCadence, loan.DueAt, now)
		if err := loanTx.CloseLoan(ctx, loan.ID, now, fee); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "loan was returned concurrently")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close loan")
		}

		copyStatus := enums.ItemStatusAvailable
		if err := catalogTx.UpdateCopyStatus(ctx, loan.CopyID, enums.ItemStatusCheckedOut, enums.ItemStatusAvailable); err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transition copy")
			}
			// Copy was moved administratively while on loan. The loan
			// still settles; the event keeps the copy's real status.
			copyStatus = copyRow.Status
		}

		loan.ReturnAt = &now
		loan.LateFee = fee
		loan.Status = enums.LoanStatusReturned
		event = inventory.Event{
			CopyID:     copyRow.ID,
			WorkID:     copyRow.WorkID,
			Status:     copyStatus,
			OccurredAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, inventory.Event{}, err
	}
	return loan, event, nil
}

// Reserve places a patron in a work's waiting line. Position assignment
// runs inside the work's critical section so concurrent reservations
// never collide.
func (s *service) Reserve(ctx context.Context, patronID, workID uuid.UUID) (*models.Reservation, error) {
	reservation, err := s.reserve(ctx, patronID, workID)
	if err != nil {
		s.metrics.IncReservation(outcomeFailure)
		return nil, err
	}
	s.metrics.IncReservation(outcomeSuccess)

	ctx = s.log.WithWorkID(s.log.WithPatronID(ctx, patronID.String()), workID.String())
	s.log.Info(ctx, "reservation created")
	return reservation, nil
}

func (s *service) reserve(ctx context.Context, patronID, workID uuid.UUID) (*models.Reservation, error) {
	if workID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "work id is required")
	}
	patron, err := s.patrons.Get(ctx, patronID)
	if err != nil {
		return nil, err
	}
	if _, err := s.catalogRepo.FindWorkByID(ctx, workID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "work not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load work")
	}

	unlock := s.keys.lock("work:" + workID.String())
	defer unlock()

	now := s.now().UTC()
	var reservation *models.Reservation
	err = s.client.WithTx(ctx, func(tx *gorm.DB) error {
		reservationTx := s.reservationRepo.WithTx(tx)

		if _, err := reservationTx.FindPendingByWorkAndPatron(ctx, workID, patron.ID); err == nil {
			return pkgerrors.New(pkgerrors.CodeBusinessRule, "patron already has a pending reservation for this work")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending reservation")
		}

		position, err := s.queue.WithTx(tx).NextPosition(ctx, workID)
		if err != nil {
			return err
		}

		reservation = &models.Reservation{
			ID:            uuid.New(),
			WorkID:        workID,
			PatronID:      patron.ID,
			ReservedAt:    now,
			ExpiresAt:     now.Add(s.reservationTTL),
			Status:        enums.ReservationStatusPending,
			QueuePosition: position,
		}
		if err := reservationTx.Create(ctx, reservation); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create reservation")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

// CancelReservation withdraws a PENDING reservation and re-packs the
// work's queue in the same transaction.
func (s *service) CancelReservation(ctx context.Context, reservationID uuid.UUID) error {
	if reservationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "reservation id is required")
	}

	reservation, err := s.reservationRepo.FindByID(ctx, reservationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "reservation not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
	}
	if reservation.Status != enums.ReservationStatusPending {
		return pkgerrors.New(pkgerrors.CodeValidation, "reservation is not pending").
			WithDetails(map[string]any{"reservation_id": reservationID, "status": reservation.Status})
	}

	return s.closeReservation(ctx, reservation, enums.ReservationStatusCancelled)
}

func (s *service) closeReservation(ctx context.Context, reservation *models.Reservation, to enums.ReservationStatus) error {
	unlock := s.keys.lock("work:" + reservation.WorkID.String())
	defer unlock()

	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		reservationTx := s.reservationRepo.WithTx(tx)
		if err := reservationTx.TransitionStatus(ctx, reservation.ID, enums.ReservationStatusPending, to); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "reservation changed concurrently")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transition reservation")
		}
		return s.queue.WithTx(tx).Repack(ctx, reservation.WorkID)
	})
}

// ProcessExpiredReservations expires every PENDING reservation past its
// expiry and re-packs each affected queue. One bad reservation never
// stops the sweep; failures come back aggregated.
func (s *service) ProcessExpiredReservations(ctx context.Context) (int, error) {
	expired, err := s.reservationRepo.ListExpiredPending(ctx, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired reservations")
	}

	var errs error
	processed := 0
	for i := range expired {
		reservation := expired[i]
		if err := s.closeReservation(ctx, &reservation, enums.ReservationStatusExpired); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reservation %s: %w", reservation.ID, err))
			continue
		}
		processed++
	}
	return processed, errs
}

// ProcessOverdueLoans refreshes the accrued fee on every overdue ACTIVE
// loan. Loan status never changes here; overdue-ness stays derived.
func (s *service) ProcessOverdueLoans(ctx context.Context) (int, error) {
	now := s.now().UTC()
	overdue, err := s.loanRepo.ListOverdue(ctx, now)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list overdue loans")
	}

	var errs error
	processed := 0
	for i := range overdue {
		loan := overdue[i]
		fee := fees.ForLoan(&loan, now)
		if err := s.loanRepo.UpdateFee(ctx, loan.ID, fee); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("loan %s: %w", loan.ID, err))
			continue
		}
		processed++
	}
	return processed, errs
}

func (s *service) ActiveLoans(ctx context.Context) ([]models.LoanRecord, error) {
	rows, err := s.loanRepo.ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active loans")
	}
	return rows, nil
}

func (s *service) OverdueLoans(ctx context.Context) ([]models.LoanRecord, error) {
	rows, err := s.loanRepo.ListOverdue(ctx, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list overdue loans")
	}
	return rows, nil
}

func (s *service) PatronActiveLoans(ctx context.Context, patronID uuid.UUID) ([]models.LoanRecord, error) {
	if _, err := s.patrons.Get(ctx, patronID); err != nil {
		return nil, err
	}
	rows, err := s.loanRepo.ListActiveByPatron(ctx, patronID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list patron loans")
	}
	return rows, nil
}

func (s *service) PatronHistory(ctx context.Context, patronID uuid.UUID) ([]models.LoanRecord, error) {
	if _, err := s.patrons.Get(ctx, patronID); err != nil {
		return nil, err
	}
	rows, err := s.loanRepo.ListByPatron(ctx, patronID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list patron history")
	}
	return rows, nil
}

func (s *service) WorkReservations(ctx context.Context, workID uuid.UUID) ([]models.Reservation, error) {
	if workID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "work id is required")
	}
	rows, err := s.reservationRepo.ListPendingByWork(ctx, workID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list work reservations")
	}
	return rows, nil
}

func (s *service) PatronReservations(ctx context.Context, patronID uuid.UUID) ([]models.Reservation, error) {
	if _, err := s.patrons.Get(ctx, patronID); err != nil {
		return nil, err
	}
	rows, err := s.reservationRepo.ListByPatron(ctx, patronID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list patron reservations")
	}
	return rows, nil
}

// CalculateLateFees evaluates the loan's bound cadence at the current
// time. Returned loans answer through the cadence's settled-loan rule.
func (s *service) CalculateLateFees(ctx context.Context, loanID uuid.UUID) (decimal.Decimal, error) {
	if loanID == uuid.Nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "loan id is required")
	}
	loan, err := s.loanRepo.FindByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "loan not found")
		}
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loan")
	}
	return fees.ForLoan(loan, s.now().UTC()), nil
}
