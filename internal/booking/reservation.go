package booking

import (
	"context"
	"errors"

	"github.com/nekogravitycat/lesson-booking-backend/internal/groupsession"
	"github.com/nekogravitycat/lesson-booking-backend/internal/product"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// seat identifies who a booking is for. ID is empty for invited members
// without an account.
type seat struct {
	ID    string
	Name  string
	Email string
}

func seatOf(actor Actor) seat {
	name := actor.Name
	if name == "" {
		name = actor.Email
	}
	return seat{ID: actor.UserID, Name: name, Email: actor.Email}
}

// reservation is the payload of one slot reservation.
type reservation struct {
	product         *product.Product
	student         seat
	slot            *Slot
	sessionID       string
	joinNow         bool // take the session seat now instead of on confirmation
	price           decimal.Decimal
	creditType      *string
	parentPackageID *string
	actor           string
}

// reserve is the slot reservation transaction body. It must run inside tx;
// every read that decides the outcome is made through tx so that concurrent
// reservations of the same slot conflict in the store.
func (s *service) reserve(ctx context.Context, tx Tx, r reservation) (*Booking, error) {
	now := s.now()

	b := &Booking{
		StudentID:             r.student.ID,
		StudentName:           r.student.Name,
		StudentEmail:          r.student.Email,
		TutorID:               s.cfg.TutorID,
		Slot:                  r.slot,
		ProductID:             r.product.ID,
		ProductType:           r.product.Type,
		Price:                 r.price,
		CreditTypeUsed:        r.creditType,
		WasRedeemedWithCredit: r.creditType != nil,
		ParentPackageID:       r.parentPackageID,
	}
	if r.sessionID != "" {
		id := r.sessionID
		b.GroupSessionID = &id
	}
	if err := b.checkShape(); err != nil {
		return nil, err
	}

	// 1-2. Conflicting bookings and time-off, re-read inside the transaction.
	if b.Slot != nil {
		if err := s.checkCalendar(ctx, tx, *b.Slot, r.sessionID); err != nil {
			return nil, err
		}
	}

	b.Status = StatusPaymentPendingConfirmation
	if b.Price.IsZero() {
		b.Status = StatusConfirmed
	}

	// 3. Session capacity.
	if r.sessionID != "" {
		gs, err := tx.Sessions().GetByID(ctx, r.sessionID, true)
		if err != nil {
			return nil, err
		}
		if err := gs.CheckOpen(now); err != nil {
			return nil, err
		}

		key := groupsession.ParticipantKey(b.StudentID, b.StudentEmail)
		if gs.HasParticipant(key) {
			return nil, groupsession.ErrAlreadyJoined
		}
		if r.joinNow || b.Status == StatusConfirmed {
			if _, err := gs.AddParticipant(key); err != nil {
				return nil, err
			}
			if err := tx.Sessions().UpdateParticipants(ctx, gs); err != nil {
				return nil, err
			}
		}
	}

	// 4. The booking and its first history entry.
	if err := tx.Bookings().Create(ctx, b); err != nil {
		return nil, err
	}
	entry := HistoryEntry{Status: b.Status, ChangedAt: now, Actor: r.actor, Reason: "created"}
	if err := tx.Bookings().AppendHistory(ctx, b.ID, entry); err != nil {
		return nil, err
	}
	b.History = []HistoryEntry{entry}

	// 5. Package purchases fund the ledger in the same transaction.
	if b.ProductType == product.TypePackage {
		if err := s.grantInTx(ctx, tx, b.StudentID, b.ProductID, r.product.LessonCount, &b.ID); err != nil {
			return nil, err
		}
	}

	return b, nil
}

func (s *service) CreateBooking(ctx context.Context, actor Actor, req CreateRequest) (*Result, error) {
	if err := requireIdentity(actor); err != nil {
		return nil, err
	}

	p, err := s.lookupProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	r := reservation{
		product: p,
		student: seatOf(actor),
		price:   p.Price,
		actor:   actor.Label(),
	}

	switch p.Type {
	case product.TypeGroup:
		if req.GroupSessionID == "" {
			return nil, ErrInvalidProduct
		}
		return s.joinSession(ctx, actor, p, req.GroupSessionID)
	case product.TypePrivateGroup:
		// Private groups are created together with all their member seats.
		return nil, ErrInvalidProduct
	case product.TypePackage:
		if req.GroupSessionID != "" {
			return nil, ErrInvalidProduct
		}
	case product.TypeIndividual:
		if req.GroupSessionID != "" {
			return nil, ErrInvalidProduct
		}
		r.slot, err = s.slotAt(req.Date, req.Time, p.Duration())
		if err != nil {
			return nil, err
		}
		if !r.slot.Start.After(s.now()) {
			return nil, ErrStartTimePast
		}
	default:
		return nil, ErrInvalidProduct
	}

	return s.commitReservation(ctx, r)
}

func (s *service) commitReservation(ctx context.Context, r reservation) (*Result, error) {
	var b *Booking
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		b, err = s.reserve(ctx, tx, r)
		return err
	})
	if err != nil {
		return nil, reservationErr(err)
	}

	s.logger.Info("booking created",
		zap.String("booking_id", b.ID),
		zap.String("student_id", b.StudentID),
		zap.String("product_id", b.ProductID),
		zap.String("status", string(b.Status)),
	)

	var fx committed
	fx.touch(s.cfg.Location, b.Slot)
	fx.emit(createdEvent(b))
	s.flush(ctx, &fx)

	return &Result{Booking: b, RedirectHint: b.RedirectHint()}, nil
}

// resolveCredit returns the lesson product a credit of creditType books.
func (s *service) resolveCredit(ctx context.Context, creditType string) (*product.Product, error) {
	if creditType == "" {
		return nil, ErrInvalidCreditMapping
	}

	src, err := s.products.GetByID(ctx, creditType)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, ErrInvalidCreditMapping
		}
		return nil, err
	}

	targetID, ok := src.CreditTarget()
	if !ok {
		return nil, ErrInvalidCreditMapping
	}

	target := src
	if targetID != src.ID {
		target, err = s.products.GetByID(ctx, targetID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				return nil, ErrInvalidCreditMapping
			}
			return nil, err
		}
	}

	if !target.IsActive || (target.Type != product.TypeIndividual && target.Type != product.TypeGroup) {
		return nil, ErrInvalidCreditMapping
	}
	return target, nil
}

// creditSeat places a credit redemption: a calendar slot for lessons, a seat
// in a public session for group credits.
func (s *service) creditSeat(ctx context.Context, target *product.Product, req CreditBookingRequest) (*Slot, string, error) {
	if target.Type == product.TypeGroup {
		if req.GroupSessionID == "" {
			return nil, "", ErrInvalidCreditMapping
		}
		gs, err := s.store.Sessions().GetByID(ctx, req.GroupSessionID, false)
		if err != nil {
			return nil, "", err
		}
		if gs.Type != groupsession.TypePublic || gs.ProductID != target.ID {
			return nil, "", ErrInvalidCreditMapping
		}
		return &Slot{Start: gs.Start, End: gs.End}, gs.ID, nil
	}

	if req.GroupSessionID != "" {
		return nil, "", ErrInvalidCreditMapping
	}
	slot, err := s.slotAt(req.Date, req.Time, target.Duration())
	if err != nil {
		return nil, "", err
	}
	if !slot.Start.After(s.now()) {
		return nil, "", ErrStartTimePast
	}
	return slot, "", nil
}

func (s *service) CreateBookingWithCredit(ctx context.Context, actor Actor, req CreditBookingRequest) (*Result, error) {
	if err := requireIdentity(actor); err != nil {
		return nil, err
	}

	target, err := s.resolveCredit(ctx, req.CreditType)
	if err != nil {
		return nil, err
	}

	slot, sessionID, err := s.creditSeat(ctx, target, req)
	if err != nil {
		return nil, err
	}

	creditType := req.CreditType
	var b *Booking
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		ledger, err := tx.Credits().Load(ctx, actor.UserID, true)
		if err != nil {
			return err
		}
		spent, err := ledger.Spend(creditType)
		if err != nil {
			return err
		}
		if err := tx.Credits().Save(ctx, ledger); err != nil {
			return err
		}

		b, err = s.reserve(ctx, tx, reservation{
			product:         target,
			student:         seatOf(actor),
			slot:            slot,
			sessionID:       sessionID,
			joinNow:         sessionID != "",
			price:           decimal.Zero,
			creditType:      &creditType,
			parentPackageID: spent.PackageBookingID,
			actor:           actor.Label(),
		})
		return err
	})
	if err != nil {
		return nil, reservationErr(err)
	}

	s.logger.Info("booking created with credit",
		zap.String("booking_id", b.ID),
		zap.String("student_id", b.StudentID),
		zap.String("credit_type", creditType),
	)

	var fx committed
	fx.touch(s.cfg.Location, b.Slot)
	fx.emit(createdEvent(b))
	s.flush(ctx, &fx)

	return &Result{Booking: b, RedirectHint: b.RedirectHint()}, nil
}
