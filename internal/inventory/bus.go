package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openshelf/circulation-backend/pkg/enums"
	pkgerrors "github.com/openshelf/circulation-backend/pkg/errors"
	"github.com/openshelf/circulation-backend/pkg/logger"
)

// Event describes one copy status transition.
type Event struct {
	CopyID     uuid.UUID
	WorkID     uuid.UUID
	Status     enums.ItemStatus
	OccurredAt time.Time
}

// Watcher reacts to a copy status transition.
type Watcher interface {
	Name() string
	HandleInventoryChange(ctx context.Context, event Event) error
}

// Bus fans one copy status change out to its watchers. Dispatch is
// synchronous and follows subscription order; a failing watcher is
// logged and the remaining watchers still run. Callers notify only
// after their own state is committed.
type Bus struct {
	mu       sync.RWMutex
	watchers []Watcher
	log      *logger.Logger
}

// NewBus builds an empty bus.
func NewBus(log *logger.Logger) (*Bus, error) {
	if log == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	return &Bus{log: log}, nil
}

// Subscribe appends a watcher. Subscription order is dispatch order.
func (b *Bus) Subscribe(watcher Watcher) {
	if watcher == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watchers = append(b.watchers, watcher)
}

// Notify dispatches the event to every watcher in order.
func (b *Bus) Notify(ctx context.Context, event Event) {
	b.mu.RLock()
	watchers := make([]Watcher, len(b.watchers))
	copy(watchers, b.watchers)
	b.mu.RUnlock()

	for _, watcher := range watchers {
		if err := watcher.HandleInventoryChange(ctx, event); err != nil {
			fields := b.log.WithFields(ctx, map[string]any{
				"watcher": watcher.Name(),
				"copy_id": event.CopyID,
				"work_id": event.WorkID,
				"status":  event.Status,
			})
			b.log.Error(fields, "inventory watcher failed", err)
		}
	}
}
