package booking

import (
	"context"

	"github.com/nekogravitycat/lesson-booking-backend/internal/credit"
	"go.uber.org/zap"
)

// grantInTx adds count credits of lessonType to the student's ledger.
func (s *service) grantInTx(ctx context.Context, tx Tx, studentID, lessonType string, count int, source *string) error {
	ledger, err := tx.Credits().Load(ctx, studentID, true)
	if err != nil {
		return err
	}
	if err := ledger.Grant(lessonType, count, source, s.now()); err != nil {
		return err
	}
	return tx.Credits().Save(ctx, ledger)
}

// revokeInTx removes up to count credits of lessonType and reports how many
// were actually removed.
func (s *service) revokeInTx(ctx context.Context, tx Tx, studentID, lessonType string, count int) (int, error) {
	ledger, err := tx.Credits().Load(ctx, studentID, true)
	if err != nil {
		return 0, err
	}
	n := ledger.Revoke(lessonType, count)
	if n == 0 {
		return 0, nil
	}
	return n, tx.Credits().Save(ctx, ledger)
}

func (s *service) ListCredits(ctx context.Context, actor Actor, studentID string) (*credit.Ledger, error) {
	if err := requireIdentity(actor); err != nil {
		return nil, err
	}
	if studentID == "" {
		studentID = actor.UserID
	}
	if studentID != actor.UserID && !actor.IsAdmin {
		return nil, ErrAuthMismatch
	}
	return s.store.Credits().Load(ctx, studentID, false)
}

func (s *service) GrantCredits(ctx context.Context, actor Actor, studentID, lessonType string, count int) (*credit.Ledger, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if _, err := s.resolveCredit(ctx, lessonType); err != nil {
		return nil, err
	}

	var ledger *credit.Ledger
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		if err := s.grantInTx(ctx, tx, studentID, lessonType, count, nil); err != nil {
			return err
		}
		var err error
		ledger, err = tx.Credits().Load(ctx, studentID, false)
		return err
	})
	if err != nil {
		return nil, updateErr(err)
	}

	s.logger.Info("credits granted",
		zap.String("student_id", studentID),
		zap.String("lesson_type", lessonType),
		zap.Int("count", count),
		zap.String("actor", actor.Label()),
	)
	return ledger, nil
}
