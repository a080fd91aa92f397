package booking

import (
	"context"
	"errors"

	"github.com/nekogravitycat/lesson-booking-backend/internal/groupsession"
	"github.com/nekogravitycat/lesson-booking-backend/internal/product"
	"github.com/nekogravitycat/lesson-booking-backend/internal/user"
	"go.uber.org/zap"
)

func (s *service) CreateGroupSession(ctx context.Context, actor Actor, req GroupSessionRequest) (*groupsession.Session, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	p, err := s.lookupProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if p.Type != product.TypeGroup {
		return nil, ErrInvalidProduct
	}
	if req.MaxStudents <= 0 {
		return nil, groupsession.ErrInvalidCapacity
	}

	slot, err := s.slotAt(req.Date, req.Time, p.Duration())
	if err != nil {
		return nil, err
	}
	if !slot.Start.After(s.now()) {
		return nil, ErrStartTimePast
	}

	title := req.Title
	if title == "" {
		title = p.Name
	}
	gs := &groupsession.Session{
		TutorID:         s.cfg.TutorID,
		ProductID:       p.ID,
		Title:           title,
		Type:            groupsession.TypePublic,
		Status:          groupsession.StatusScheduled,
		Start:           slot.Start,
		End:             slot.End,
		DurationMinutes: p.DurationMinutes,
		MaxStudents:     req.MaxStudents,
		ParticipantIDs:  []string{},
		CreatedBy:       actor.Label(),
	}

	err = s.store.WithinTx(ctx, func(tx Tx) error {
		if err := s.checkCalendar(ctx, tx, *slot, ""); err != nil {
			return err
		}
		return tx.Sessions().Create(ctx, gs)
	})
	if err != nil {
		return nil, reservationErr(err)
	}

	s.logger.Info("group session created",
		zap.String("session_id", gs.ID),
		zap.String("product_id", gs.ProductID),
		zap.Int("max_students", gs.MaxStudents),
	)

	var fx committed
	fx.touch(s.cfg.Location, slot)
	s.flush(ctx, &fx)

	return gs, nil
}

func (s *service) JoinGroupSession(ctx context.Context, actor Actor, sessionID string) (*Result, error) {
	if err := requireIdentity(actor); err != nil {
		return nil, err
	}

	gs, err := s.store.Sessions().GetByID(ctx, sessionID, false)
	if err != nil {
		return nil, err
	}
	p, err := s.lookupProduct(ctx, gs.ProductID)
	if err != nil {
		return nil, err
	}
	return s.joinSession(ctx, actor, p, sessionID)
}

// joinSession books a seat in a public session. The seat counts against
// capacity immediately, whether or not payment is still pending.
func (s *service) joinSession(ctx context.Context, actor Actor, p *product.Product, sessionID string) (*Result, error) {
	gs, err := s.store.Sessions().GetByID(ctx, sessionID, false)
	if err != nil {
		return nil, err
	}
	if gs.Type != groupsession.TypePublic || gs.ProductID != p.ID || p.Type != product.TypeGroup {
		return nil, ErrInvalidProduct
	}

	return s.commitReservation(ctx, reservation{
		product:   p,
		student:   seatOf(actor),
		slot:      &Slot{Start: gs.Start, End: gs.End},
		sessionID: gs.ID,
		joinNow:   true,
		price:     p.Price,
		actor:     actor.Label(),
	})
}

func (s *service) CancelGroupSession(ctx context.Context, actor Actor, sessionID, reason string) (*groupsession.Session, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "session cancelled"
	}

	var (
		gs *groupsession.Session
		fx committed
	)
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		gs, err = tx.Sessions().GetByID(ctx, sessionID, true)
		if err != nil {
			return err
		}
		if gs.Status == groupsession.StatusCancelled {
			return ErrInvalidStateTransition
		}
		if err := tx.Sessions().UpdateStatus(ctx, gs.ID, groupsession.StatusCancelled); err != nil {
			return err
		}
		gs.Status = groupsession.StatusCancelled

		seats, err := tx.Bookings().ListBySession(ctx, gs.ID)
		if err != nil {
			return err
		}
		for _, sb := range seats {
			if sb.Status.Terminal() {
				continue
			}
			b, from, err := s.applyTransition(ctx, tx, sb.ID, transition{
				to:     StatusCancelledByAdmin,
				role:   RoleAdmin,
				actor:  actor.Label(),
				reason: reason,
			})
			if err != nil {
				return err
			}
			fx.emit(statusEvent(b, from, actor.Label()))
		}
		return nil
	})
	if err != nil {
		return nil, updateErr(err)
	}

	s.logger.Info("group session cancelled",
		zap.String("session_id", gs.ID),
		zap.Int("seats_cancelled", len(fx.events)),
	)

	fx.touch(s.cfg.Location, &Slot{Start: gs.Start, End: gs.End})
	s.flush(ctx, &fx)

	return gs, nil
}

// inviteList normalizes and de-duplicates member emails, dropping the leader's own.
func inviteList(emails []string, leaderEmail string) []string {
	leader := user.NormalizeEmail(leaderEmail)
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		e = user.NormalizeEmail(e)
		if e == "" || e == leader {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// resolveMembers maps invited emails to seats. Unknown emails get a seat
// without an account.
func (s *service) resolveMembers(ctx context.Context, leaderID string, emails []string) ([]seat, error) {
	seats := make([]seat, 0, len(emails))
	for _, email := range emails {
		u, err := s.users.GetByEmail(ctx, email)
		switch {
		case errors.Is(err, user.ErrNotFound):
			seats = append(seats, seat{Name: email, Email: email})
		case err != nil:
			return nil, err
		case u.ID == leaderID:
			continue
		default:
			seats = append(seats, seat{ID: u.ID, Name: u.Name(), Email: u.Email})
		}
	}
	return seats, nil
}

func (s *service) CreatePrivateGroup(ctx context.Context, actor Actor, req PrivateGroupRequest) (*PrivateGroupResult, error) {
	if err := requireIdentity(actor); err != nil {
		return nil, err
	}
	if req.LeaderID != "" && req.LeaderID != actor.UserID {
		return nil, ErrAuthMismatch
	}

	p, err := s.lookupProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if p.Type != product.TypePrivateGroup {
		return nil, ErrInvalidProduct
	}

	emails := inviteList(req.MemberEmails, actor.Email)
	if len(emails) == 0 {
		return nil, ErrMembersRequired
	}
	if len(emails) > s.cfg.PrivateGroupMaxMembers-1 {
		return nil, ErrTooManyMembers
	}

	slot, err := s.slotAt(req.Date, req.Time, p.Duration())
	if err != nil {
		return nil, err
	}
	if !slot.Start.After(s.now()) {
		return nil, ErrStartTimePast
	}

	members, err := s.resolveMembers(ctx, actor.UserID, emails)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, ErrMembersRequired
	}

	leaderID := actor.UserID
	gs := &groupsession.Session{
		TutorID:         s.cfg.TutorID,
		ProductID:       p.ID,
		Title:           p.Name,
		Type:            groupsession.TypePrivate,
		Status:          groupsession.StatusScheduled,
		Start:           slot.Start,
		End:             slot.End,
		DurationMinutes: p.DurationMinutes,
		MaxStudents:     len(members) + 1,
		ParticipantIDs:  []string{},
		LeaderID:        &leaderID,
		CreatedBy:       actor.Label(),
	}

	var bookings []*Booking
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		if err := s.checkCalendar(ctx, tx, *slot, ""); err != nil {
			return err
		}
		if err := tx.Sessions().Create(ctx, gs); err != nil {
			return err
		}

		leader, err := s.reserve(ctx, tx, reservation{
			product:   p,
			student:   seatOf(actor),
			slot:      slot,
			sessionID: gs.ID,
			joinNow:   true,
			price:     p.Price,
			actor:     actor.Label(),
		})
		if err != nil {
			return err
		}
		bookings = append(bookings, leader)

		for _, m := range members {
			b, err := s.reserve(ctx, tx, reservation{
				product:   p,
				student:   m,
				slot:      slot,
				sessionID: gs.ID,
				price:     p.Price,
				actor:     actor.Label(),
			})
			if err != nil {
				return err
			}
			bookings = append(bookings, b)
		}

		gs, err = tx.Sessions().GetByID(ctx, gs.ID, false)
		return err
	})
	if err != nil {
		return nil, reservationErr(err)
	}

	s.logger.Info("private group created",
		zap.String("session_id", gs.ID),
		zap.String("leader_id", leaderID),
		zap.Int("members", len(members)),
	)

	var fx committed
	fx.touch(s.cfg.Location, slot)
	for _, b := range bookings {
		fx.emit(createdEvent(b))
	}
	s.flush(ctx, &fx)

	return &PrivateGroupResult{Session: gs, Bookings: bookings}, nil
}
