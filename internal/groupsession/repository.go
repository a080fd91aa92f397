package groupsession

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
	Create(ctx context.Context, s *Session) error
	// GetByID loads a session; forUpdate locks the row for the surrounding transaction.
	GetByID(ctx context.Context, id string, forUpdate bool) (*Session, error)
	List(ctx context.Context, filter Filter) ([]*Session, int, error)
	// ListOverlapping returns scheduled sessions of tutorID intersecting [start, end).
	ListOverlapping(ctx context.Context, tutorID string, start, end time.Time) ([]*Session, error)
	UpdateParticipants(ctx context.Context, s *Session) error
	UpdateStatus(ctx context.Context, id string, status Status) error
}

type pgxRepository struct {
	q db.Querier
}

func NewPgxRepository(q db.Querier) Repository {
	return &pgxRepository{q: q}
}

var sessionColumns = []string{
	"id", "tutor_id", "product_id", "title", "type", "status", "start_time", "end_time",
	"duration_minutes", "max_students", "participant_count", "participant_ids",
	"leader_id", "created_by", "created_at",
}

func scanSession(row pgx.Row, extra ...any) (*Session, error) {
	var s Session
	dest := []any{
		&s.ID, &s.TutorID, &s.ProductID, &s.Title, &s.Type, &s.Status, &s.Start, &s.End,
		&s.DurationMinutes, &s.MaxStudents, &s.ParticipantCount, &s.ParticipantIDs,
		&s.LeaderID, &s.CreatedBy, &s.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *pgxRepository) Create(ctx context.Context, s *Session) error {
	if s.ParticipantIDs == nil {
		s.ParticipantIDs = []string{}
	}

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.group_sessions").
		Columns(
			"tutor_id", "product_id", "title", "type", "status", "start_time", "end_time",
			"duration_minutes", "max_students", "participant_count", "participant_ids",
			"leader_id", "created_by",
		).
		Values(
			s.TutorID, s.ProductID, s.Title, s.Type, s.Status, s.Start, s.End,
			s.DurationMinutes, s.MaxStudents, s.ParticipantCount, s.ParticipantIDs,
			s.LeaderID, s.CreatedBy,
		).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create group session query failed: %w", err)
	}

	if err := r.q.QueryRow(ctx, query, args...).Scan(&s.ID, &s.CreatedAt); err != nil {
		return fmt.Errorf("create group session failed: %w", db.Classify(err))
	}
	return nil
}

func (r *pgxRepository) GetByID(ctx context.Context, id string, forUpdate bool) (*Session, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	builder := psql.Select(sessionColumns...).
		From("public.group_sessions").
		Where(squirrel.Eq{"id": id})
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get group session query failed: %w", err)
	}

	s, err := scanSession(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get group session failed: %w", db.Classify(err))
	}
	return s, nil
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Session, int, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	queryBuilder := psql.Select(append(sessionColumns, "count(*) OVER() as total_count")...).
		From("public.group_sessions")

	if filter.Type != "" {
		queryBuilder = queryBuilder.Where(squirrel.Eq{"type": filter.Type})
	}
	if filter.Status != "" {
		queryBuilder = queryBuilder.Where(squirrel.Eq{"status": filter.Status})
	}
	if filter.From != nil {
		queryBuilder = queryBuilder.Where(squirrel.GtOrEq{"end_time": *filter.From})
	}
	if filter.To != nil {
		queryBuilder = queryBuilder.Where(squirrel.LtOrEq{"start_time": *filter.To})
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	offset := (filter.Page - 1) * filter.PageSize

	query, args, err := queryBuilder.
		OrderBy("start_time ASC").
		Limit(uint64(filter.PageSize)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list group sessions query failed: %w", err)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list group sessions failed: %w", db.Classify(err))
	}
	defer rows.Close()

	var sessions []*Session
	var total int
	for rows.Next() {
		s, err := scanSession(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan group session failed: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, total, rows.Err()
}

func (r *pgxRepository) ListOverlapping(ctx context.Context, tutorID string, start, end time.Time) ([]*Session, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(sessionColumns...).
		From("public.group_sessions").
		Where(squirrel.Eq{"tutor_id": tutorID, "status": StatusScheduled}).
		Where(squirrel.Lt{"start_time": end}).
		Where(squirrel.Gt{"end_time": start}).
		OrderBy("start_time ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build overlapping group sessions query failed: %w", err)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list overlapping group sessions failed: %w", db.Classify(err))
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group session failed: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *pgxRepository) UpdateParticipants(ctx context.Context, s *Session) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.group_sessions").
		Set("participant_ids", s.ParticipantIDs).
		Set("participant_count", s.ParticipantCount).
		Where(squirrel.Eq{"id": s.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update participants query failed: %w", err)
	}

	ct, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update participants failed: %w", db.Classify(err))
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgxRepository) UpdateStatus(ctx context.Context, id string, status Status) error {
	ct, err := r.q.Exec(ctx, "UPDATE public.group_sessions SET status = $1 WHERE id = $2", status, id)
	if err != nil {
		return fmt.Errorf("update group session status failed: %w", db.Classify(err))
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
