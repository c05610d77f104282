package reservations

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/openshelf/circulation-backend/pkg/errors"
)

// QueueManager keeps each work's waiting line contiguous. It only
// renumbers; creating, cancelling and expiring reservations is the
// ledger's job.
type QueueManager struct {
	repo *Repository
}

// NewQueueManager builds a queue manager over the reservation repository.
func NewQueueManager(repo *Repository) (*QueueManager, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation repo is required")
	}
	return &QueueManager{repo: repo}, nil
}

// WithTx returns a manager scoped to the given transaction.
func (m *QueueManager) WithTx(tx *gorm.DB) *QueueManager {
	return &QueueManager{repo: m.repo.WithTx(tx)}
}

// NextPosition returns the position a new PENDING reservation for the
// work would take. Call inside the same atomic unit as the insert.
func (m *QueueManager) NextPosition(ctx context.Context, workID uuid.UUID) (int, error) {
	count, err := m.repo.CountPendingByWork(ctx, workID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count pending reservations")
	}
	return int(count) + 1, nil
}

// Repack reassigns positions 1..N over the work's remaining PENDING
// reservations, ordered by reservation time. Positions already correct
// are left untouched.
func (m *QueueManager) Repack(ctx context.Context, workID uuid.UUID) error {
	rows, err := m.repo.ListPendingByWork(ctx, workID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending reservations")
	}
	for i, reservation := range rows {
		want := i + 1
		if reservation.QueuePosition == want {
			continue
		}
		if err := m.repo.UpdatePosition(ctx, reservation.ID, want); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update queue position")
		}
	}
	return nil
}
