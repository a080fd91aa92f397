package booking

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/apperror"
	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/events"
	"github.com/nekogravitycat/lesson-booking-backend/internal/product"
	"go.uber.org/zap"
)

var ErrPartialFailure = apperror.New(http.StatusConflict, apperror.KindPartialFailure,
	"original booking was cancelled and a credit issued, but the new booking could not be made")

// PartialFailureError reports a reschedule whose first half committed: the
// original booking is cancelled and CreditType holds one extra credit, but
// the replacement booking failed with Cause.
type PartialFailureError struct {
	OriginalBookingID string
	CreditType        string
	Cause             error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("reschedule of %s left a %s credit: %v", e.OriginalBookingID, e.CreditType, e.Cause)
}

// Unwrap exposes only ErrPartialFailure. Matching the cause through the chain
// would let callers read a committed cancellation as a plain conflict.
func (e *PartialFailureError) Unwrap() error {
	return ErrPartialFailure
}

// RequestReschedule cancels a confirmed individual lesson in exchange for a
// credit, then spends that credit on the new slot. The two halves commit
// separately; if the second fails the credit stays with the student.
func (s *service) RequestReschedule(ctx context.Context, actor Actor, req RescheduleRequest) (*Result, error) {
	if err := requireIdentity(actor); err != nil {
		return nil, err
	}

	orig, err := s.store.Bookings().GetByID(ctx, req.BookingID, false)
	if err != nil {
		return nil, err
	}
	if err := s.checkReschedulable(actor, orig); err != nil {
		return nil, err
	}

	creditType := orig.CreditType()
	target, err := s.resolveCredit(ctx, creditType)
	if err != nil {
		return nil, err
	}
	slot, err := s.slotAt(req.Date, req.Time, target.Duration())
	if err != nil {
		return nil, err
	}
	if !slot.Start.After(s.now()) {
		return nil, ErrStartTimePast
	}

	// Probe before giving anything up. The original booking is about to
	// release its slot, so it does not count against the new one.
	if err := s.checkCalendar(ctx, s.store, *slot, "", orig.ID); err != nil {
		return nil, err
	}

	cancelled, err := s.releaseForReschedule(ctx, actor, orig.ID, creditType)
	if err != nil {
		return nil, err
	}

	res, err := s.CreateBookingWithCredit(ctx, actor, CreditBookingRequest{
		CreditType: creditType,
		Date:       req.Date,
		Time:       req.Time,
	})
	if err != nil {
		s.logger.Warn("reschedule left an unspent credit",
			zap.String("booking_id", cancelled.ID),
			zap.String("credit_type", creditType),
			zap.Error(err),
		)
		return nil, &PartialFailureError{
			OriginalBookingID: cancelled.ID,
			CreditType:        creditType,
			Cause:             err,
		}
	}

	e := events.New(events.TypeBookingRescheduled, res.Booking.ID)
	e.StudentID = res.Booking.StudentID
	e.ProductID = res.Booking.ProductID
	e.Status = string(res.Booking.Status)
	e.RelatedID = cancelled.ID
	e.Actor = actor.Label()
	s.flush(ctx, &committed{events: []events.Event{e}})

	return res, nil
}

func (s *service) checkReschedulable(actor Actor, b *Booking) error {
	if !b.OwnedBy(actor.UserID) {
		return ErrAuthMismatch
	}
	if b.ProductType != product.TypeIndividual || b.Slot == nil || b.Status != StatusConfirmed {
		return ErrNotReschedulable
	}
	return s.checkLead(b)
}

// releaseForReschedule cancels the original booking and returns its credit
// in one transaction.
func (s *service) releaseForReschedule(ctx context.Context, actor Actor, id, creditType string) (*Booking, error) {
	release, err := s.inflight.Begin(id, "reschedule")
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		b    *Booking
		from Status
	)
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		b, from, err = s.applyTransition(ctx, tx, id, transition{
			to:     StatusCancelled,
			role:   RoleStudent,
			actor:  actor.Label(),
			reason: "rescheduled",
			guard: func(b *Booking) error {
				return s.checkReschedulable(actor, b)
			},
		})
		if err != nil {
			return err
		}
		return s.grantInTx(ctx, tx, b.StudentID, creditType, 1, b.ParentPackageID)
	})
	if err != nil {
		return nil, updateErr(err)
	}

	s.logger.Info("booking released for reschedule",
		zap.String("booking_id", b.ID),
		zap.String("credit_type", creditType),
	)

	var fx committed
	fx.touch(s.cfg.Location, b.Slot)
	fx.emit(statusEvent(b, from, actor.Label()))
	s.flush(ctx, &fx)

	return b, nil
}
