package timeoff

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
	Create(ctx context.Context, b *Block) error
	GetByID(ctx context.Context, id string) (*Block, error)
	Delete(ctx context.Context, id string) error
	// ListOverlapping returns blocks of tutorID intersecting [start, end).
	ListOverlapping(ctx context.Context, tutorID string, start, end time.Time) ([]*Block, error)
}

type pgxRepository struct {
	q db.Querier
}

func NewPgxRepository(q db.Querier) Repository {
	return &pgxRepository{q: q}
}

var blockColumns = []string{"id", "tutor_id", "start_time", "end_time", "note", "created_by", "created_at"}

func scanBlock(row pgx.Row) (*Block, error) {
	var b Block
	if err := row.Scan(&b.ID, &b.TutorID, &b.Start, &b.End, &b.Note, &b.CreatedBy, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *pgxRepository) Create(ctx context.Context, b *Block) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.time_off_blocks").
		Columns("tutor_id", "start_time", "end_time", "note", "created_by").
		Values(b.TutorID, b.Start, b.End, b.Note, b.CreatedBy).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create time-off query failed: %w", err)
	}

	if err := r.q.QueryRow(ctx, query, args...).Scan(&b.ID, &b.CreatedAt); err != nil {
		return fmt.Errorf("create time-off failed: %w", db.Classify(err))
	}
	return nil
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Block, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(blockColumns...).
		From("public.time_off_blocks").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get time-off query failed: %w", err)
	}

	b, err := scanBlock(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get time-off failed: %w", db.Classify(err))
	}
	return b, nil
}

func (r *pgxRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.q.Exec(ctx, "DELETE FROM public.time_off_blocks WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete time-off failed: %w", db.Classify(err))
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgxRepository) ListOverlapping(ctx context.Context, tutorID string, start, end time.Time) ([]*Block, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(blockColumns...).
		From("public.time_off_blocks").
		Where(squirrel.Eq{"tutor_id": tutorID}).
		Where(squirrel.Lt{"start_time": end}).
		Where(squirrel.Gt{"end_time": start}).
		OrderBy("start_time ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list time-off query failed: %w", err)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list time-off failed: %w", db.Classify(err))
	}
	defer rows.Close()

	var blocks []*Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan time-off failed: %w", err)
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list time-off failed: %w", db.Classify(err))
	}
	return blocks, nil
}
