package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/nekogravitycat/lesson-booking-backend/internal/db"
)

type Repository interface {
	Create(ctx context.Context, b *Booking) error
	// GetByID loads a booking with its status history; forUpdate locks the row.
	GetByID(ctx context.Context, id string, forUpdate bool) (*Booking, error)
	List(ctx context.Context, filter Filter) ([]*Booking, int, error)
	// ListBlockingOverlaps returns bookings of tutorID in a blocking status
	// whose interval intersects [start, end).
	ListBlockingOverlaps(ctx context.Context, tutorID string, start, end time.Time) ([]*Booking, error)
	ListBySession(ctx context.Context, sessionID string) ([]*Booking, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	AppendHistory(ctx context.Context, bookingID string, e HistoryEntry) error
	Delete(ctx context.Context, id string) error
}

type pgxRepository struct {
	q db.Querier
}

func NewPgxRepository(q db.Querier) Repository {
	return &pgxRepository{q: q}
}

var bookingColumns = []string{
	"id", "student_id", "student_name", "student_email", "tutor_id", "start_time", "end_time",
	"product_id", "product_type", "price", "status", "group_session_id", "parent_package_id",
	"credit_type_used", "was_redeemed_with_credit", "created_at", "updated_at",
}

func scanBooking(row pgx.Row, extra ...any) (*Booking, error) {
	var (
		b         Booking
		studentID *string
		start     *time.Time
		end       *time.Time
	)
	dest := []any{
		&b.ID, &studentID, &b.StudentName, &b.StudentEmail, &b.TutorID, &start, &end,
		&b.ProductID, &b.ProductType, &b.Price, &b.Status, &b.GroupSessionID, &b.ParentPackageID,
		&b.CreditTypeUsed, &b.WasRedeemedWithCredit, &b.CreatedAt, &b.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	if studentID != nil {
		b.StudentID = *studentID
	}
	if start != nil && end != nil {
		b.Slot = &Slot{Start: *start, End: *end}
	}
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]*Booking, error) {
	defer rows.Close()

	var bookings []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking failed: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	return bookings, nil
}

func (r *pgxRepository) Create(ctx context.Context, b *Booking) error {
	var studentID *string
	if b.StudentID != "" {
		studentID = &b.StudentID
	}
	var start, end *time.Time
	if b.Slot != nil {
		start, end = &b.Slot.Start, &b.Slot.End
	}

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.bookings").
		Columns(
			"student_id", "student_name", "student_email", "tutor_id", "start_time", "end_time",
			"product_id", "product_type", "price", "status", "group_session_id", "parent_package_id",
			"credit_type_used", "was_redeemed_with_credit",
		).
		Values(
			studentID, b.StudentName, b.StudentEmail, b.TutorID, start, end,
			b.ProductID, b.ProductType, b.Price, b.Status, b.GroupSessionID, b.ParentPackageID,
			b.CreditTypeUsed, b.WasRedeemedWithCredit,
		).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create booking query failed: %w", err)
	}

	if err := r.q.QueryRow(ctx, query, args...).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return fmt.Errorf("create booking failed: %w", db.Classify(err))
	}
	return nil
}

func (r *pgxRepository) GetByID(ctx context.Context, id string, forUpdate bool) (*Booking, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	builder := psql.Select(bookingColumns...).
		From("public.bookings").
		Where(squirrel.Eq{"id": id})
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get booking query failed: %w", err)
	}

	b, err := scanBooking(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking failed: %w", db.Classify(err))
	}

	b.History, err = r.history(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *pgxRepository) history(ctx context.Context, bookingID string) ([]HistoryEntry, error) {
	const query = `
		SELECT status, changed_at, actor, reason
		FROM public.booking_status_history
		WHERE booking_id = $1
		ORDER BY id ASC
	`

	rows, err := r.q.Query(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("load status history failed: %w", db.Classify(err))
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.Status, &e.ChangedAt, &e.Actor, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan status history failed: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Booking, int, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query := psql.Select(append(bookingColumns, "count(*) OVER() as total_count")...).
		From("public.bookings")

	if filter.StudentID != "" {
		query = query.Where(squirrel.Eq{"student_id": filter.StudentID})
	}
	if filter.Status != "" {
		query = query.Where(squirrel.Eq{"status": filter.Status})
	}
	if filter.ProductID != "" {
		query = query.Where(squirrel.Eq{"product_id": filter.ProductID})
	}
	if filter.GroupSessionID != "" {
		query = query.Where(squirrel.Eq{"group_session_id": filter.GroupSessionID})
	}
	// Date range filtering (intersection logic)
	if filter.From != nil {
		query = query.Where(squirrel.GtOrEq{"end_time": *filter.From})
	}
	if filter.To != nil {
		query = query.Where(squirrel.LtOrEq{"start_time": *filter.To})
	}

	orderBy := "created_at"
	switch filter.SortBy {
	case "start_time", "created_at", "status":
		orderBy = filter.SortBy
	}
	orderDir := "DESC"
	if filter.SortOrder == "ASC" {
		orderDir = "ASC"
	}
	query = query.OrderBy(orderBy + " " + orderDir + " NULLS LAST")

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	offset := (filter.Page - 1) * filter.PageSize

	sql, args, err := query.Limit(uint64(filter.PageSize)).Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list bookings query failed: %w", err)
	}

	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list bookings failed: %w", db.Classify(err))
	}
	defer rows.Close()

	var bookings []*Booking
	var total int
	for rows.Next() {
		b, err := scanBooking(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan booking failed: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, total, rows.Err()
}

func (r *pgxRepository) ListBlockingOverlaps(ctx context.Context, tutorID string, start, end time.Time) ([]*Booking, error) {
	// Half-open intervals: (ExistingStart < NewEnd) AND (ExistingEnd > NewStart)
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(bookingColumns...).
		From("public.bookings").
		Where(squirrel.Eq{"tutor_id": tutorID, "status": BlockingStatuses}).
		Where(squirrel.Lt{"start_time": end}).
		Where(squirrel.Gt{"end_time": start}).
		OrderBy("start_time ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build overlap query failed: %w", err)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list overlapping bookings failed: %w", db.Classify(err))
	}
	return collectBookings(rows)
}

func (r *pgxRepository) ListBySession(ctx context.Context, sessionID string) ([]*Booking, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(bookingColumns...).
		From("public.bookings").
		Where(squirrel.Eq{"group_session_id": sessionID}).
		OrderBy("created_at ASC").
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build session bookings query failed: %w", err)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list session bookings failed: %w", db.Classify(err))
	}
	return collectBookings(rows)
}

func (r *pgxRepository) UpdateStatus(ctx context.Context, id string, status Status) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.bookings").
		Set("status", status).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update booking status query failed: %w", err)
	}

	ct, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update booking status failed: %w", db.Classify(err))
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgxRepository) AppendHistory(ctx context.Context, bookingID string, e HistoryEntry) error {
	const query = `
		INSERT INTO public.booking_status_history (booking_id, status, changed_at, actor, reason)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := r.q.Exec(ctx, query, bookingID, e.Status, e.ChangedAt, e.Actor, e.Reason); err != nil {
		return fmt.Errorf("append status history failed: %w", db.Classify(err))
	}
	return nil
}

func (r *pgxRepository) Delete(ctx context.Context, id string) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Delete("public.bookings").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete booking query failed: %w", err)
	}

	ct, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete booking failed: %w", db.Classify(err))
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
