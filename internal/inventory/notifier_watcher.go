package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/openshelf/circulation-backend/internal/patrons"
	"github.com/openshelf/circulation-backend/internal/reservations"
	"github.com/openshelf/circulation-backend/pkg/enums"
	pkgerrors "github.com/openshelf/circulation-backend/pkg/errors"
	"github.com/openshelf/circulation-backend/pkg/mailer"
)

// AvailabilityCounter reports how many of a work's copies can be lent.
// The availability watcher satisfies it.
type AvailabilityCounter interface {
	Count(ctx context.Context, workID uuid.UUID) (int64, error)
}

// NotifierWatcher mails every patron waiting on a work when one of its
// copies turns AVAILABLE. Delivery is fire-and-forget; one bad recipient
// never blocks the rest.
type NotifierWatcher struct {
	reservationRepo *reservations.Repository
	patronRepo      *patrons.Repository
	mail            mailer.Mailer
	availability    AvailabilityCounter
}

// NewNotifierWatcher builds the waiting-patron notifier. availability
// may be nil; the mail then omits the on-shelf count.
func NewNotifierWatcher(reservationRepo *reservations.Repository, patronRepo *patrons.Repository, mail mailer.Mailer, availability AvailabilityCounter) (*NotifierWatcher, error) {
	if reservationRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation repo is required")
	}
	if patronRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "patron repo is required")
	}
	if mail == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mailer is required")
	}
	return &NotifierWatcher{
		reservationRepo: reservationRepo,
		patronRepo:      patronRepo,
		mail:            mail,
		availability:    availability,
	}, nil
}

func (w *NotifierWatcher) Name() string {
	return "waiting-patron-notifier"
}

func (w *NotifierWatcher) HandleInventoryChange(ctx context.Context, event Event) error {
	if event.Status != enums.ItemStatusAvailable {
		return nil
	}

	pending, err := w.reservationRepo.ListPendingByWork(ctx, event.WorkID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending reservations")
	}

	shelf := w.shelfNote(ctx, event.WorkID)

	var errs error
	for _, reservation := range pending {
		patron, err := w.patronRepo.FindByID(ctx, reservation.PatronID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("load patron %s: %w", reservation.PatronID, err))
			continue
		}
		body := fmt.Sprintf("A copy you reserved is now available%s. Your queue position is %d.", shelf, reservation.QueuePosition)
		if err := w.mail.Send(ctx, patron.Email, "Reserved work available", body); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("notify %s: %w", patron.Email, err))
		}
	}
	return errs
}

// shelfNote renders the cached on-shelf count. A missing counter or a
// failed read drops the note rather than blocking the mail.
func (w *NotifierWatcher) shelfNote(ctx context.Context, workID uuid.UUID) string {
	if w.availability == nil {
		return ""
	}
	count, err := w.availability.Count(ctx, workID)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(" (%d on the shelf)", count)
}
