package booking

import (
	"context"
	"time"

	"github.com/nekogravitycat/lesson-booking-backend/internal/groupsession"
	"github.com/nekogravitycat/lesson-booking-backend/internal/product"
	"go.uber.org/zap"
)

// transition is one requested status change.
type transition struct {
	to     Status
	role   Role
	actor  string
	reason string
	// guard runs against the locked booking before the edge is checked.
	guard func(b *Booking) error
	// restore targets the status held before the pending cancellation
	// request instead of to.
	restore bool
}

// applyTransition moves the locked booking along one edge of the status
// machine together with every ledger and session change the edge implies.
func (s *service) applyTransition(ctx context.Context, tx Tx, id string, t transition) (*Booking, Status, error) {
	b, err := tx.Bookings().GetByID(ctx, id, true)
	if err != nil {
		return nil, "", err
	}
	from := b.Status

	if t.guard != nil {
		if err := t.guard(b); err != nil {
			return nil, "", err
		}
	}
	if t.restore {
		if from != StatusCancellationRequested {
			return nil, "", ErrInvalidStateTransition
		}
		t.to, _ = b.statusBeforeRequest()
	}
	// A declined request returns to where it came from, never further.
	if from == StatusCancellationRequested && t.to.Blocking() {
		if prev, ok := b.statusBeforeRequest(); !ok || prev != t.to {
			return nil, "", ErrInvalidStateTransition
		}
	}
	if err := CanTransition(from, t.to, t.role); err != nil {
		return nil, "", err
	}

	// The slot is held again: it must still be free.
	if !from.Blocking() && t.to.Blocking() && b.Slot != nil {
		sessionID := ""
		if b.GroupSessionID != nil {
			sessionID = *b.GroupSessionID
		}
		if err := s.checkCalendar(ctx, tx, *b.Slot, sessionID); err != nil {
			return nil, "", err
		}
	}

	if t.to == StatusConfirmed && b.GroupSessionID != nil {
		if err := s.takeSeat(ctx, tx, b); err != nil {
			return nil, "", err
		}
	}

	switch t.to {
	case StatusCreditIssued:
		// Packages are refunded, not converted. Whether a credit can be
		// spent is checked when it is redeemed.
		if b.StudentID == "" || b.ProductType == product.TypePackage {
			return nil, "", ErrInvalidCreditMapping
		}
		if err := s.grantInTx(ctx, tx, b.StudentID, b.CreditType(), 1, b.ParentPackageID); err != nil {
			return nil, "", err
		}
	case StatusCancelledByAdmin, StatusRefunded:
		if b.ProductType == product.TypePackage && b.StudentID != "" {
			if err := s.revokePackage(ctx, tx, b); err != nil {
				return nil, "", err
			}
		}
	}

	if err := tx.Bookings().UpdateStatus(ctx, b.ID, t.to); err != nil {
		return nil, "", err
	}
	entry := HistoryEntry{Status: t.to, ChangedAt: s.now(), Actor: t.actor, Reason: t.reason}
	if err := tx.Bookings().AppendHistory(ctx, b.ID, entry); err != nil {
		return nil, "", err
	}
	b.Status = t.to
	b.History = append(b.History, entry)
	b.UpdatedAt = entry.ChangedAt

	return b, from, nil
}

// takeSeat adds the booking's student to its session once the seat is paid for.
func (s *service) takeSeat(ctx context.Context, tx Tx, b *Booking) error {
	gs, err := tx.Sessions().GetByID(ctx, *b.GroupSessionID, true)
	if err != nil {
		return err
	}
	if gs.Status == groupsession.StatusCancelled {
		return ErrRegistrationClosed
	}
	added, err := gs.AddParticipant(groupsession.ParticipantKey(b.StudentID, b.StudentEmail))
	if err != nil || !added {
		return err
	}
	return tx.Sessions().UpdateParticipants(ctx, gs)
}

// revokePackage takes back the unused credits a cancelled package granted.
func (s *service) revokePackage(ctx context.Context, tx Tx, b *Booking) error {
	p, err := s.products.GetByID(ctx, b.ProductID)
	if err != nil {
		return err
	}
	n, err := s.revokeInTx(ctx, tx, b.StudentID, b.ProductID, p.LessonCount)
	if err != nil {
		return err
	}
	if n < p.LessonCount {
		s.logger.Info("package partially redeemed before revocation",
			zap.String("booking_id", b.ID),
			zap.Int("revoked", n),
			zap.Int("granted", p.LessonCount),
		)
	}
	return nil
}

// changeStatus runs one transition in its own transaction, guarded against a
// concurrent action on the same booking, then flushes side effects.
func (s *service) changeStatus(ctx context.Context, id string, t transition) (*Booking, error) {
	action := string(t.to)
	if t.restore {
		action = "decline-cancellation"
	}
	release, err := s.inflight.Begin(id, action)
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
		b, from, err = s.applyTransition(ctx, tx, id, t)
		return err
	})
	if err != nil {
		return nil, updateErr(err)
	}

	s.logger.Info("booking status changed",
		zap.String("booking_id", b.ID),
		zap.String("from", string(from)),
		zap.String("to", string(b.Status)),
		zap.String("actor", t.actor),
	)

	var fx committed
	if from.Blocking() != b.Status.Blocking() {
		fx.touch(s.cfg.Location, b.Slot)
	}
	fx.emit(statusEvent(b, from, t.actor))
	s.flush(ctx, &fx)

	return b, nil
}

func (s *service) UpdateBookingStatus(ctx context.Context, actor Actor, id string, to Status, reason string) (*Booking, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !to.Valid() {
		return nil, ErrInvalidStateTransition
	}
	return s.changeStatus(ctx, id, transition{
		to:     to,
		role:   RoleAdmin,
		actor:  actor.Label(),
		reason: reason,
	})
}

// ownerGuard rejects callers other than the booking's student or an admin.
func ownerGuard(actor Actor) func(b *Booking) error {
	return func(b *Booking) error {
		if !b.OwnedBy(actor.UserID) && !actor.IsAdmin {
			return ErrAuthMismatch
		}
		return nil
	}
}

// cancelLead is how long before the start a student may still cancel.
func (s *service) cancelLead(b *Booking) (lead time.Duration, ok bool) {
	switch b.ProductType {
	case product.TypeIndividual:
		return s.cfg.CancelLeadIndividual, true
	case product.TypeGroup, product.TypePrivateGroup:
		return s.cfg.CancelLeadGroup, true
	}
	return 0, false
}

func (s *service) checkLead(b *Booking) error {
	lead, ok := s.cancelLead(b)
	if !ok || b.Slot == nil {
		return nil
	}
	if b.Slot.Start.Sub(s.now()) < lead {
		return ErrCancellationTooLate
	}
	return nil
}

func (s *service) RequestCancellation(ctx context.Context, actor Actor, id string, reason string) (*Booking, error) {
	if err := requireIdentity(actor); err != nil {
		return nil, err
	}
	owner := ownerGuard(actor)
	return s.changeStatus(ctx, id, transition{
		to:     StatusCancellationRequested,
		role:   RoleStudent,
		actor:  actor.Label(),
		reason: reason,
		guard: func(b *Booking) error {
			if err := owner(b); err != nil {
				return err
			}
			return s.checkLead(b)
		},
	})
}

// DeclineCancellation returns a booking with a pending cancellation request
// to the status it held before the request.
func (s *service) DeclineCancellation(ctx context.Context, actor Actor, id string, reason string) (*Booking, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "cancellation declined"
	}
	return s.changeStatus(ctx, id, transition{
		role:    RoleAdmin,
		actor:   actor.Label(),
		reason:  reason,
		restore: true,
	})
}

func (s *service) ConfirmPaymentSubmitted(ctx context.Context, actor Actor, id string) (*Booking, error) {
	if err := requireIdentity(actor); err != nil {
		return nil, err
	}
	return s.changeStatus(ctx, id, transition{
		to:     StatusPaymentPendingConfirmation,
		role:   RoleStudent,
		actor:  actor.Label(),
		reason: "payment submitted",
		guard:  ownerGuard(actor),
	})
}

func (s *service) GetBooking(ctx context.Context, actor Actor, id string) (*Booking, error) {
	if err := requireIdentity(actor); err != nil {
		return nil, err
	}
	b, err := s.store.Bookings().GetByID(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if err := ownerGuard(actor)(b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *service) ListBookings(ctx context.Context, actor Actor, filter Filter) ([]*Booking, int, error) {
	if err := requireIdentity(actor); err != nil {
		return nil, 0, err
	}
	if !actor.IsAdmin {
		filter.StudentID = actor.UserID
	}
	return s.store.Bookings().List(ctx, filter)
}

func (s *service) DeleteBooking(ctx context.Context, actor Actor, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}

	var b *Booking
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		b, err = tx.Bookings().GetByID(ctx, id, true)
		if err != nil {
			return err
		}
		return tx.Bookings().Delete(ctx, id)
	})
	if err != nil {
		return updateErr(err)
	}

	s.logger.Info("booking deleted", zap.String("booking_id", id), zap.String("actor", actor.Label()))

	var fx committed
	if b.Status.Blocking() {
		fx.touch(s.cfg.Location, b.Slot)
	}
	s.flush(ctx, &fx)
	return nil
}
