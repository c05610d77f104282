package lending

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/openshelf/circulation-backend/internal/catalog"
	"github.com/openshelf/circulation-backend/internal/inventory"
	"github.com/openshelf/circulation-backend/internal/patrons"
	"github.com/openshelf/circulation-backend/internal/reservations"
	"github.com/openshelf/circulation-backend/pkg/db"
	"github.com/openshelf/circulation-backend/pkg/db/models"
	"github.com/openshelf/circulation-backend/pkg/enums"
	pkgerrors "github.com/openshelf/circulation-backend/pkg/errors"
	"github.com/openshelf/circulation-backend/pkg/logger"
)

type fakeNotifier struct {
	events []inventory.Event
}

func (n *fakeNotifier) Notify(_ context.Context, event inventory.Event) {
	n.events = append(n.events, event)
}

type ledgerHarness struct {
	conn     *gorm.DB
	ledger   Service
	patrons  patrons.Service
	catalog  catalog.Service
	notifier *fakeNotifier
	clock    *time.Time
}

func newLedgerHarness(t *testing.T) *ledgerHarness {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file:lending_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.Work{},
		&models.ItemCopy{},
		&models.Patron{},
		&models.LoanRecord{},
		&models.Reservation{},
		&models.InventoryAudit{},
	); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}

	patronSvc, err := patrons.NewService(patrons.ServiceParams{PatronRepo: patrons.NewRepository(conn)})
	if err != nil {
		t.Fatalf("patron service: %v", err)
	}
	catalogSvc, err := catalog.NewService(catalog.ServiceParams{CatalogRepo: catalog.NewRepository(conn)})
	if err != nil {
		t.Fatalf("catalog service: %v", err)
	}
	reservationRepo := reservations.NewRepository(conn)
	queue, err := reservations.NewQueueManager(reservationRepo)
	if err != nil {
		t.Fatalf("queue manager: %v", err)
	}

	log := logger.New(logger.Options{
		ServiceName: "lending-test",
		Level:       zerolog.InfoLevel,
		Output:      &bytes.Buffer{},
	})

	notifier := &fakeNotifier{}
	ledger, err := NewService(ServiceParams{
		DB:              db.NewFromConn(conn),
		LoanRepo:        NewRepository(conn),
		CatalogRepo:     catalog.NewRepository(conn),
		ReservationRepo: reservationRepo,
		Queue:           queue,
		Patrons:         patronSvc,
		Notifier:        notifier,
		Logger:          log,
		ReservationTTL:  30 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}

	current := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	ledger.(*service).now = func() time.Time { return current }

	return &ledgerHarness{
		conn:     conn,
		ledger:   ledger,
		patrons:  patronSvc,
		catalog:  catalogSvc,
		notifier: notifier,
		clock:    &current,
	}
}

func (h *ledgerHarness) advance(d time.Duration) {
	*h.clock = h.clock.Add(d)
}

func (h *ledgerHarness) newPatron(t *testing.T, tier string) *models.Patron {
	t.Helper()
	patron, err := h.patrons.Register(context.Background(), patrons.RegisterInput{
		Name:  "Patron " + uuid.NewString()[:8],
		Email: uuid.NewString()[:8] + "@example.org",
		Tier:  tier,
	})
	if err != nil {
		t.Fatalf("register patron: %v", err)
	}
	return patron
}

func (h *ledgerHarness) newCopy(t *testing.T) *models.ItemCopy {
	t.Helper()
	work, err := h.catalog.CreateWork(context.Background(), catalog.CreateWorkInput{
		Title:  "Work " + uuid.NewString()[:8],
		Author: "Author",
		ISBN:   uuid.NewString()[:13],
	})
	if err != nil {
		t.Fatalf("create work: %v", err)
	}
	copyRow, err := h.catalog.AddCopy(context.Background(), catalog.AddCopyInput{
		WorkID:  work.ID,
		Barcode: uuid.NewString()[:8],
	})
	if err != nil {
		t.Fatalf("add copy: %v", err)
	}
	return copyRow
}

func (h *ledgerHarness) copyStatus(t *testing.T, copyID uuid.UUID) enums.ItemStatus {
	t.Helper()
	copyRow, err := h.catalog.GetCopy(context.Background(), copyID)
	if err != nil {
		t.Fatalf("get copy: %v", err)
	}
	return copyRow.Status
}

func TestCheckoutSuccess(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	patron := h.newPatron(t, "STUDENT")
	copyRow := h.newCopy(t)
	dueAt := h.clock.Add(14 * 24 * time.Hour)

	loan, err := h.ledger.Checkout(ctx, patron.ID, copyRow.ID, dueAt)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if loan.Status != enums.LoanStatusActive {
		t.Fatalf("expected ACTIVE loan, got %s", loan.Status)
	}
	if loan.FeeCadence != enums.FeeCadenceWeekly {
		t.Fatalf("student loans bind the weekly cadence, got %s", loan.FeeCadence)
	}
	if got := h.copyStatus(t, copyRow.ID); got != enums.ItemStatusCheckedOut {
		t.Fatalf("expected CHECKED_OUT copy, got %s", got)
	}
	if len(h.notifier.events) != 0 {
		t.Fatal("checkout must not notify inventory watchers")
	}
}

func TestCheckoutUnavailableCopy(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	first := h.newPatron(t, "FACULTY")
	second := h.newPatron(t, "FACULTY")
	copyRow := h.newCopy(t)
	dueAt := h.clock.Add(7 * 24 * time.Hour)

	if _, err := h.ledger.Checkout(ctx, first.ID, copyRow.ID, dueAt); err != nil {
		t.Fatalf("first checkout: %v", err)
	}
	_, err := h.ledger.Checkout(ctx, second.ID, copyRow.ID, dueAt)
	if !pkgerrors.HasCode(err, pkgerrors.CodeBusinessRule) {
		t.Fatalf("expected business rule violation, got %v", err)
	}
}

func TestCheckoutIneligiblePatron(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	// Standard tier caps at one loan.
	patron := h.newPatron(t, "STANDARD")
	dueAt := h.clock.Add(7 * 24 * time.Hour)

	if _, err := h.ledger.Checkout(ctx, patron.ID, h.newCopy(t).ID, dueAt); err != nil {
		t.Fatalf("first checkout: %v", err)
	}
	_, err := h.ledger.Checkout(ctx, patron.ID, h.newCopy(t).ID, dueAt)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

func TestCheckoutUnknownIDs(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	dueAt := h.clock.Add(7 * 24 * time.Hour)

	_, err := h.ledger.Checkout(ctx, uuid.New(), h.newCopy(t).ID, dueAt)
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for patron, got %v", err)
	}

	patron := h.newPatron(t, "STUDENT")
	_, err = h.ledger.Checkout(ctx, patron.ID, uuid.New(), dueAt)
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for copy, got %v", err)
	}
}

func TestReturnOnTime(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	patron := h.newPatron(t, "STANDARD")
	copyRow := h.newCopy(t)
	dueAt := h.clock.Add(14 * 24 * time.Hour)

	loan, err := h.ledger.Checkout(ctx, patron.ID, copyRow.ID, dueAt)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	returned, err := h.ledger.Return(ctx, loan.ID)
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if returned.Status != enums.LoanStatusReturned {
		t.Fatalf("expected RETURNED, got %s", returned.Status)
	}
	if !returned.LateFee.IsZero() {
		t.Fatalf("on-time return owes 0, got %s", returned.LateFee)
	}
	if got := h.copyStatus(t, copyRow.ID); got != enums.ItemStatusAvailable {
		t.Fatalf("expected AVAILABLE copy, got %s", got)
	}
	if len(h.notifier.events) != 1 || h.notifier.events[0].Status != enums.ItemStatusAvailable {
		t.Fatalf("expected one AVAILABLE event, got %+v", h.notifier.events)
	}

	history, err := h.ledger.PatronHistory(ctx, patron.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].ID != loan.ID {
		t.Fatalf("loan should appear in history: %+v", history)
	}
	active, err := h.ledger.PatronActiveLoans(ctx, patron.ID)
	if err != nil {
		t.Fatalf("active loans: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("no active loans expected, got %d", len(active))
	}
}

func TestReturnOverdueDailyFee(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	patron := h.newPatron(t, "STANDARD")
	copyRow := h.newCopy(t)
	// Due 14 days in the past at return time.
	dueAt := h.clock.Add(-14 * 24 * time.Hour)

	loan, err := h.ledger.Checkout(ctx, patron.ID, copyRow.ID, dueAt)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	returned, err := h.ledger.Return(ctx, loan.ID)
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if want := decimal.RequireFromString("21"); !returned.LateFee.Equal(want) {
		t.Fatalf("stored fee %s, want %s", returned.LateFee, want)
	}

	var persisted models.LoanRecord
	if err := h.conn.First(&persisted, "id = ?", loan.ID).Error; err != nil {
		t.Fatalf("reload loan: %v", err)
	}
	if !persisted.LateFee.Equal(decimal.RequireFromString("21")) {
		t.Fatalf("persisted fee %s, want 21", persisted.LateFee)
	}
}

func TestReturnAdministrativelyMovedCopyStaysQuiet(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	patron := h.newPatron(t, "STANDARD")
	copyRow := h.newCopy(t)
	loan, err := h.ledger.Checkout(ctx, patron.ID, copyRow.ID, h.clock.Add(14*24*time.Hour))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	// The copy got pulled from circulation while the loan was open.
	err = h.conn.Model(&models.ItemCopy{}).
		Where("id = ?", copyRow.ID).
		Update("status", enums.ItemStatusUnderMaintenance).Error
	if err != nil {
		t.Fatalf("move copy: %v", err)
	}

	returned, err := h.ledger.Return(ctx, loan.ID)
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if returned.Status != enums.LoanStatusReturned {
		t.Fatalf("loan status %s, want RETURNED", returned.Status)
	}
	if got := h.copyStatus(t, copyRow.ID); got != enums.ItemStatusUnderMaintenance {
		t.Fatalf("copy status %s, want UNDER_MAINTENANCE", got)
	}
	if len(h.notifier.events) != 0 {
		t.Fatalf("expected no availability events, got %d", len(h.notifier.events))
	}
}

func TestReturnNonActiveLoan(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	patron := h.newPatron(t, "STANDARD")
	loan, err := h.ledger.Checkout(ctx, patron.ID, h.newCopy(t).ID, h.clock.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if _, err := h.ledger.Return(ctx, loan.ID); err != nil {
		t.Fatalf("first return: %v", err)
	}

	_, err = h.ledger.Return(ctx, loan.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation failure, got %v", err)
	}

	_, err = h.ledger.Return(ctx, uuid.New())
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func reservationPositions(t *testing.T, h *ledgerHarness, workID uuid.UUID) []int {
	t.Helper()
	rows, err := h.ledger.WorkReservations(context.Background(), workID)
	if err != nil {
		t.Fatalf("work reservations: %v", err)
	}
	positions := make([]int, 0, len(rows))
	for _, row := range rows {
		positions = append(positions, row.QueuePosition)
	}
	return positions
}

func TestReserveAssignsSequentialPositions(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	copyRow := h.newCopy(t)
	workID := copyRow.WorkID

	a := h.newPatron(t, "STUDENT")
	b := h.newPatron(t, "STUDENT")
	c := h.newPatron(t, "STUDENT")

	var reservationB *models.Reservation
	for i, patron := range []*models.Patron{a, b, c} {
		h.advance(time.Minute)
		reservation, err := h.ledger.Reserve(ctx, patron.ID, workID)
		if err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
		if reservation.QueuePosition != i+1 {
			t.Fatalf("expected position %d, got %d", i+1, reservation.QueuePosition)
		}
		if patron.ID == b.ID {
			reservationB = reservation
		}
	}

	if err := h.ledger.CancelReservation(ctx, reservationB.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	positions := reservationPositions(t, h, workID)
	if len(positions) != 2 || positions[0] != 1 || positions[1] != 2 {
		t.Fatalf("expected positions [1 2], got %v", positions)
	}

	rows, err := h.ledger.WorkReservations(ctx, workID)
	if err != nil {
		t.Fatalf("work reservations: %v", err)
	}
	if rows[0].PatronID != a.ID || rows[1].PatronID != c.ID {
		t.Fatal("cancel of the middle entry must keep A first and move C to 2")
	}
}

func TestReserveDuplicatePending(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	workID := h.newCopy(t).WorkID
	patron := h.newPatron(t, "STUDENT")

	if _, err := h.ledger.Reserve(ctx, patron.ID, workID); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	_, err := h.ledger.Reserve(ctx, patron.ID, workID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeBusinessRule) {
		t.Fatalf("expected business rule violation, got %v", err)
	}
}

func TestReserveSetsExpiry(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	workID := h.newCopy(t).WorkID
	patron := h.newPatron(t, "SENIOR")

	reservation, err := h.ledger.Reserve(ctx, patron.ID, workID)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	want := h.clock.Add(30 * 24 * time.Hour)
	if !reservation.ExpiresAt.Equal(want) {
		t.Fatalf("expiry %s, want %s", reservation.ExpiresAt, want)
	}
}

func TestCancelReservationGuards(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	err := h.ledger.CancelReservation(ctx, uuid.New())
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	workID := h.newCopy(t).WorkID
	patron := h.newPatron(t, "STUDENT")
	reservation, err := h.ledger.Reserve(ctx, patron.ID, workID)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := h.ledger.CancelReservation(ctx, reservation.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	err = h.ledger.CancelReservation(ctx, reservation.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

func TestProcessExpiredReservations(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	workID := h.newCopy(t).WorkID
	a := h.newPatron(t, "STUDENT")
	b := h.newPatron(t, "STUDENT")

	if _, err := h.ledger.Reserve(ctx, a.ID, workID); err != nil {
		t.Fatalf("reserve a: %v", err)
	}
	h.advance(10 * 24 * time.Hour)
	reservationB, err := h.ledger.Reserve(ctx, b.ID, workID)
	if err != nil {
		t.Fatalf("reserve b: %v", err)
	}

	// Past A's 30-day expiry, before B's.
	h.advance(25 * 24 * time.Hour)

	processed, err := h.ledger.ProcessExpiredReservations(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected 1 expired, got %d", processed)
	}

	rows, err := h.ledger.WorkReservations(ctx, workID)
	if err != nil {
		t.Fatalf("work reservations: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != reservationB.ID || rows[0].QueuePosition != 1 {
		t.Fatalf("expected B repacked to position 1, got %+v", rows)
	}
}

func TestProcessOverdueLoansRefreshesFees(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	patron := h.newPatron(t, "STANDARD")
	loan, err := h.ledger.Checkout(ctx, patron.ID, h.newCopy(t).ID, h.clock.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	h.advance(5 * 24 * time.Hour)

	processed, err := h.ledger.ProcessOverdueLoans(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected 1 overdue loan, got %d", processed)
	}

	var persisted models.LoanRecord
	if err := h.conn.First(&persisted, "id = ?", loan.ID).Error; err != nil {
		t.Fatalf("reload loan: %v", err)
	}
	if persisted.Status != enums.LoanStatusActive {
		t.Fatalf("sweep must not change status, got %s", persisted.Status)
	}
	// Four whole days past due at 1.5 per day.
	if want := decimal.RequireFromString("6"); !persisted.LateFee.Equal(want) {
		t.Fatalf("fee %s, want %s", persisted.LateFee, want)
	}
}

func TestCalculateLateFees(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	_, err := h.ledger.CalculateLateFees(ctx, uuid.New())
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	patron := h.newPatron(t, "STANDARD")
	loan, err := h.ledger.Checkout(ctx, patron.ID, h.newCopy(t).ID, h.clock.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	h.advance(3 * 24 * time.Hour)
	fee, err := h.ledger.CalculateLateFees(ctx, loan.ID)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if want := decimal.RequireFromString("3"); !fee.Equal(want) {
		t.Fatalf("fee %s, want %s", fee, want)
	}

	// Once RETURNED, the daily cadence reads 0 even though a fee was
	// stored at return time.
	if _, err := h.ledger.Return(ctx, loan.ID); err != nil {
		t.Fatalf("return: %v", err)
	}
	fee, err = h.ledger.CalculateLateFees(ctx, loan.ID)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !fee.IsZero() {
		t.Fatalf("returned daily loan reads 0, got %s", fee)
	}
}

func TestActiveAndOverdueQueries(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	patron := h.newPatron(t, "FACULTY")
	onTime, err := h.ledger.Checkout(ctx, patron.ID, h.newCopy(t).ID, h.clock.Add(30*24*time.Hour))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	late, err := h.ledger.Checkout(ctx, patron.ID, h.newCopy(t).ID, h.clock.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	h.advance(2 * 24 * time.Hour)

	active, err := h.ledger.ActiveLoans(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active loans, got %d", len(active))
	}

	overdue, err := h.ledger.OverdueLoans(ctx)
	if err != nil {
		t.Fatalf("overdue: %v", err)
	}
	if len(overdue) != 1 || overdue[0].ID != late.ID {
		t.Fatalf("expected only the late loan, got %+v", overdue)
	}
	_ = onTime
}
