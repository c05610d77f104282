package snapshot

import (
	"context"
	"fmt"
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gorm.io/gorm"

	"github.com/openshelf/circulation-backend/pkg/db"
	"github.com/openshelf/circulation-backend/pkg/db/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FormatVersion is bumped whenever the snapshot layout changes in a way
// older readers cannot handle.
const FormatVersion = 1

// Snapshot is a point-in-time export of the full circulation state.
type Snapshot struct {
	Version    int                     `json:"version"`
	ExportedAt time.Time               `json:"exported_at"`
	Works      []models.Work           `json:"works"`
	Copies     []models.ItemCopy       `json:"copies"`
	Patrons    []models.Patron         `json:"patrons"`
	Loans      []models.LoanRecord     `json:"loans"`
	Reserves   []models.Reservation    `json:"reservations"`
	Audits     []models.InventoryAudit `json:"inventory_audits"`
}

// Encode writes the snapshot as JSON.
func Encode(w io.Writer, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot is required")
	}
	return json.NewEncoder(w).Encode(snap)
}

// Decode reads a snapshot and rejects unknown format versions.
func Decode(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if snap.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d (want %d)", snap.Version, FormatVersion)
	}
	return &snap, nil
}

// Store exports and imports snapshots against the database.
type Store struct {
	client *db.Client
	now    func() time.Time
}

func NewStore(client *db.Client) *Store {
	return &Store{client: client, now: time.Now}
}

// Export collects every table into a single snapshot.
func (s *Store) Export(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		Version:    FormatVersion,
		ExportedAt: s.now().UTC(),
	}

	conn := s.client.DB().WithContext(ctx)
	collect := func(name string, dest any) error {
		if err := conn.Find(dest).Error; err != nil {
			return fmt.Errorf("exporting %s: %w", name, err)
		}
		return nil
	}

	if err := collect("works", &snap.Works); err != nil {
		return nil, err
	}
	if err := collect("copies", &snap.Copies); err != nil {
		return nil, err
	}
	if err := collect("patrons", &snap.Patrons); err != nil {
		return nil, err
	}
	if err := collect("loans", &snap.Loans); err != nil {
		return nil, err
	}
	if err := collect("reservations", &snap.Reserves); err != nil {
		return nil, err
	}
	if err := collect("inventory_audits", &snap.Audits); err != nil {
		return nil, err
	}
	return snap, nil
}

// Import loads a snapshot into an empty database. Runs in one
// transaction so a partial load never survives.
func (s *Store) Import(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot is required")
	}
	if snap.Version != FormatVersion {
		return fmt.Errorf("unsupported snapshot version %d (want %d)", snap.Version, FormatVersion)
	}

	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		insert := func(name string, rows any, count int) error {
			if count == 0 {
				return nil
			}
			if err := tx.Create(rows).Error; err != nil {
				return fmt.Errorf("importing %s: %w", name, err)
			}
			return nil
		}

		if err := insert("works", snap.Works, len(snap.Works)); err != nil {
			return err
		}
		if err := insert("patrons", snap.Patrons, len(snap.Patrons)); err != nil {
			return err
		}
		if err := insert("copies", snap.Copies, len(snap.Copies)); err != nil {
			return err
		}
		if err := insert("loans", snap.Loans, len(snap.Loans)); err != nil {
			return err
		}
		if err := insert("reservations", snap.Reserves, len(snap.Reserves)); err != nil {
			return err
		}
		return insert("inventory_audits", snap.Audits, len(snap.Audits))
	})
}
