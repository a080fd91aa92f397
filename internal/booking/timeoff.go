package booking

import (
	"context"
	"time"

	"github.com/nekogravitycat/lesson-booking-backend/internal/timeoff"
	"go.uber.org/zap"
)

func (s *service) BlockTime(ctx context.Context, actor Actor, req BlockRequest) (*timeoff.Block, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !req.Start.Before(req.End) {
		return nil, timeoff.ErrInvalidRange
	}

	block := &timeoff.Block{
		TutorID:   s.cfg.TutorID,
		Start:     req.Start.UTC(),
		End:       req.End.UTC(),
		Note:      req.Note,
		CreatedBy: actor.Label(),
	}

	err := s.store.WithinTx(ctx, func(tx Tx) error {
		// Time off never silently overrides a held slot.
		bookings, err := tx.Bookings().ListBlockingOverlaps(ctx, s.cfg.TutorID, block.Start, block.End)
		if err != nil {
			return err
		}
		if len(bookings) > 0 {
			return ErrSlotAlreadyBooked
		}
		sessions, err := tx.Sessions().ListOverlapping(ctx, s.cfg.TutorID, block.Start, block.End)
		if err != nil {
			return err
		}
		if len(sessions) > 0 {
			return ErrSlotAlreadyBooked
		}
		return tx.TimeOff().Create(ctx, block)
	})
	if err != nil {
		return nil, reservationErr(err)
	}

	s.logger.Info("time blocked",
		zap.String("block_id", block.ID),
		zap.Time("start", block.Start),
		zap.Time("end", block.End),
	)

	var fx committed
	fx.touch(s.cfg.Location, &Slot{Start: block.Start, End: block.End})
	s.flush(ctx, &fx)

	return block, nil
}

func (s *service) UnblockTime(ctx context.Context, actor Actor, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}

	var block *timeoff.Block
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		block, err = tx.TimeOff().GetByID(ctx, id)
		if err != nil {
			return err
		}
		return tx.TimeOff().Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("time unblocked", zap.String("block_id", id))

	var fx committed
	fx.touch(s.cfg.Location, &Slot{Start: block.Start, End: block.End})
	s.flush(ctx, &fx)
	return nil
}

func (s *service) ListTimeOff(ctx context.Context, from, to time.Time) ([]*timeoff.Block, error) {
	if !from.Before(to) {
		return nil, ErrInvalidTimeRange
	}
	return s.store.TimeOff().ListOverlapping(ctx, s.cfg.TutorID, from, to)
}
