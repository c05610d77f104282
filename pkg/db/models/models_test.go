package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/openshelf/circulation-backend/pkg/enums"
)

func setupModelsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:models_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = conn.AutoMigrate(
		&Work{}, &ItemCopy{}, &Patron{},
		&LoanRecord{}, &Reservation{}, &InventoryAudit{},
	)
	if err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return conn
}

// Time columns must scan back as time.Time on sqlite, which the dev
// path and every db-backed test rely on.
func TestTimeColumnsRoundTripOnSqlite(t *testing.T) {
	conn := setupModelsTestDB(t)

	work := Work{
		ID:     uuid.New(),
		Title:  "Clean Code",
		Author: "Robert C. Martin",
		ISBN:   "0132350882",
		Active: true,
	}
	if err := conn.Create(&work).Error; err != nil {
		t.Fatalf("create work: %v", err)
	}

	var loadedWork Work
	if err := conn.First(&loadedWork, "id = ?", work.ID).Error; err != nil {
		t.Fatalf("load work: %v", err)
	}
	if loadedWork.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be populated")
	}

	checkoutAt := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	returnAt := checkoutAt.Add(48 * time.Hour)
	loan := LoanRecord{
		ID:         uuid.New(),
		CopyID:     uuid.New(),
		PatronID:   uuid.New(),
		CheckoutAt: checkoutAt,
		DueAt:      checkoutAt.Add(14 * 24 * time.Hour),
		ReturnAt:   &returnAt,
		LateFee:    decimal.Zero,
		Status:     enums.LoanStatusReturned,
		FeeCadence: enums.FeeCadenceDaily,
	}
	if err := conn.Create(&loan).Error; err != nil {
		t.Fatalf("create loan: %v", err)
	}

	var loadedLoan LoanRecord
	if err := conn.First(&loadedLoan, "id = ?", loan.ID).Error; err != nil {
		t.Fatalf("load loan: %v", err)
	}
	if !loadedLoan.CheckoutAt.Equal(checkoutAt) {
		t.Fatalf("checkout_at = %v, want %v", loadedLoan.CheckoutAt, checkoutAt)
	}
	if loadedLoan.ReturnAt == nil || !loadedLoan.ReturnAt.Equal(returnAt) {
		t.Fatalf("return_at = %v, want %v", loadedLoan.ReturnAt, returnAt)
	}

	reservation := Reservation{
		ID:            uuid.New(),
		WorkID:        work.ID,
		PatronID:      loan.PatronID,
		QueuePosition: 1,
		Status:        enums.ReservationStatusPending,
		ReservedAt:    checkoutAt,
		ExpiresAt:     checkoutAt.Add(30 * 24 * time.Hour),
	}
	if err := conn.Create(&reservation).Error; err != nil {
		t.Fatalf("create reservation: %v", err)
	}

	var loadedReservation Reservation
	if err := conn.First(&loadedReservation, "id = ?", reservation.ID).Error; err != nil {
		t.Fatalf("load reservation: %v", err)
	}
	if !loadedReservation.ExpiresAt.Equal(reservation.ExpiresAt) {
		t.Fatalf("expires_at = %v, want %v", loadedReservation.ExpiresAt, reservation.ExpiresAt)
	}
}
