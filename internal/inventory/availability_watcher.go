package inventory

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/openshelf/circulation-backend/internal/catalog"
	pkgerrors "github.com/openshelf/circulation-backend/pkg/errors"
	pkgredis "github.com/openshelf/circulation-backend/pkg/redis"
)

// No expiry; counts are recomputed on every transition.
const availabilityTTL = 0

// AvailabilityCache is the slice of the redis client the watcher needs.
type AvailabilityCache interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	AvailabilityKey(workID string) string
}

// AvailabilityWatcher keeps the per-work available-copy count cached,
// recomputed from the database on every copy transition.
type AvailabilityWatcher struct {
	catalogRepo *catalog.Repository
	cache       AvailabilityCache
}

func NewAvailabilityWatcher(catalogRepo *catalog.Repository, cache AvailabilityCache) (*AvailabilityWatcher, error) {
	if catalogRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "catalog repo is required")
	}
	if cache == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "availability cache is required")
	}
	return &AvailabilityWatcher{catalogRepo: catalogRepo, cache: cache}, nil
}

func (w *AvailabilityWatcher) Name() string {
	return "availability-cache"
}

func (w *AvailabilityWatcher) HandleInventoryChange(ctx context.Context, event Event) error {
	_, err := w.refresh(ctx, event.WorkID)
	return err
}

// Count reads the cached available-copy count for a work, refreshing
// the cache from the database on a miss.
func (w *AvailabilityWatcher) Count(ctx context.Context, workID uuid.UUID) (int64, error) {
	cached, err := w.cache.Get(ctx, w.cache.AvailabilityKey(workID.String()))
	if err == nil {
		if count, parseErr := strconv.ParseInt(cached, 10, 64); parseErr == nil {
			return count, nil
		}
	} else if !pkgredis.IsNil(err) {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read availability count")
	}
	return w.refresh(ctx, workID)
}

func (w *AvailabilityWatcher) refresh(ctx context.Context, workID uuid.UUID) (int64, error) {
	count, err := w.catalogRepo.CountAvailableCopies(ctx, workID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count available copies")
	}
	key := w.cache.AvailabilityKey(workID.String())
	if err := w.cache.Set(ctx, key, strconv.FormatInt(count, 10), availabilityTTL); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cache availability count")
	}
	return count, nil
}
