package snapshot

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/openshelf/circulation-backend/pkg/db"
	"github.com/openshelf/circulation-backend/pkg/db/models"
	"github.com/openshelf/circulation-backend/pkg/enums"
)

func newTestClient(t *testing.T, name string) *db.Client {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
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
	return db.NewFromConn(conn)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	snap := &Snapshot{
		Version:    FormatVersion,
		ExportedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Works: []models.Work{{
			ID:     uuid.New(),
			Title:  "The Go Programming Language",
			Author: "Donovan & Kernighan",
			ISBN:   "978-0134190440",
		}},
	}

	var buf bytes.Buffer
	if err := Encode(&buf, snap); err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Version != FormatVersion {
		t.Fatalf("version mismatch: %d", got.Version)
	}
	if len(got.Works) != 1 || got.Works[0].Title != snap.Works[0].Title {
		t.Fatalf("works did not round-trip: %+v", got.Works)
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	r := strings.NewReader(`{"version": 99}`)
	if _, err := Decode(r); err == nil {
		t.Fatal("expected version error")
	}
}

func TestStoreExportImport(t *testing.T) {
	ctx := context.Background()
	src := newTestClient(t, "snapshot_src")

	work := models.Work{ID: uuid.New(), Title: "Dune", Author: "Frank Herbert", ISBN: "978-0441013593"}
	patron := models.Patron{ID: uuid.New(), Name: "Ada", Email: "ada@example.org", Tier: enums.PatronTierStudent, Active: true}
	copyRow := models.ItemCopy{ID: uuid.New(), WorkID: work.ID, Barcode: "C-001", Status: enums.ItemStatusAvailable, Condition: enums.ItemConditionGood}
	if err := src.DB().Create(&work).Error; err != nil {
		t.Fatalf("seed work: %v", err)
	}
	if err := src.DB().Create(&patron).Error; err != nil {
		t.Fatalf("seed patron: %v", err)
	}
	if err := src.DB().Create(&copyRow).Error; err != nil {
		t.Fatalf("seed copy: %v", err)
	}

	snap, err := NewStore(src).Export(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(snap.Works) != 1 || len(snap.Patrons) != 1 || len(snap.Copies) != 1 {
		t.Fatalf("unexpected export counts: %d works, %d patrons, %d copies",
			len(snap.Works), len(snap.Patrons), len(snap.Copies))
	}

	dst := newTestClient(t, "snapshot_dst")
	if err := NewStore(dst).Import(ctx, snap); err != nil {
		t.Fatalf("import: %v", err)
	}

	var count int64
	if err := dst.DB().Model(&models.Work{}).Count(&count).Error; err != nil {
		t.Fatalf("count works: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 imported work, got %d", count)
	}
}

func TestImportRejectsVersionMismatch(t *testing.T) {
	dst := newTestClient(t, "snapshot_ver")
	err := NewStore(dst).Import(context.Background(), &Snapshot{Version: 2})
	if err == nil {
		t.Fatal("expected version error")
	}
}
