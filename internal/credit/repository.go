package credit

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/nekogravitycat/lesson-booking-backend/internal/db"
)

// Repository persists student ledgers. Load with forUpdate inside the
// transaction that will Save the ledger.
type Repository interface {
	Load(ctx context.Context, studentID string, forUpdate bool) (*Ledger, error)
	Save(ctx context.Context, l *Ledger) error
}

type pgxRepository struct {
	q db.Querier
}

func NewPgxRepository(q db.Querier) Repository {
	return &pgxRepository{q: q}
}

func (r *pgxRepository) Load(ctx context.Context, studentID string, forUpdate bool) (*Ledger, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	builder := psql.Select("lesson_type", "count", "purchased_at", "package_booking_id").
		From("public.student_credits").
		Where(squirrel.Eq{"student_id": studentID}).
		OrderBy("purchased_at ASC", "lesson_type ASC")
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build load ledger query failed: %w", err)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load ledger failed: %w", db.Classify(err))
	}
	defer rows.Close()

	l := &Ledger{StudentID: studentID}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.LessonType, &e.Count, &e.PurchasedAt, &e.PackageBookingID); err != nil {
			return nil, fmt.Errorf("scan ledger entry failed: %w", err)
		}
		l.Entries = append(l.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load ledger failed: %w", db.Classify(err))
	}
	return l, nil
}

// Save replaces the stored ledger with l. Zero-count entries are not written.
func (r *pgxRepository) Save(ctx context.Context, l *Ledger) error {
	if _, err := r.q.Exec(ctx, "DELETE FROM public.student_credits WHERE student_id = $1", l.StudentID); err != nil {
		return fmt.Errorf("clear ledger failed: %w", db.Classify(err))
	}

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	insert := psql.Insert("public.student_credits").
		Columns("student_id", "lesson_type", "count", "purchased_at", "package_booking_id")

	n := 0
	for _, e := range l.Entries {
		if e.Count <= 0 {
			continue
		}
		insert = insert.Values(l.StudentID, e.LessonType, e.Count, e.PurchasedAt, e.PackageBookingID)
		n++
	}
	if n == 0 {
		return nil
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("build save ledger query failed: %w", err)
	}
	if _, err := r.q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("save ledger failed: %w", db.Classify(err))
	}
	return nil
}
