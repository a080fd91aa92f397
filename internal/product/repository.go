package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/nekogravitycat/lesson-booking-backend/internal/db"
)

type Repository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context, filter Filter) ([]*Product, int, error)
	Update(ctx context.Context, p *Product) error
	Upsert(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
}

type pgxRepository struct {
	q db.Querier
}

func NewPgxRepository(q db.Querier) Repository {
	return &pgxRepository{q: q}
}

var productColumns = []string{
	"id", "name", "description", "type", "price", "duration_minutes",
	"lesson_count", "redeems_for", "is_active", "created_at", "updated_at",
}

func scanProduct(row pgx.Row, extra ...any) (*Product, error) {
	var p Product
	dest := []any{
		&p.ID, &p.Name, &p.Description, &p.Type, &p.Price, &p.DurationMinutes,
		&p.LessonCount, &p.RedeemsFor, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *pgxRepository) Create(ctx context.Context, p *Product) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.products").
		Columns("id", "name", "description", "type", "price", "duration_minutes", "lesson_count", "redeems_for", "is_active").
		Values(p.ID, p.Name, p.Description, p.Type, p.Price, p.DurationMinutes, p.LessonCount, p.RedeemsFor, p.IsActive).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create product query failed: %w", err)
	}

	if err := r.q.QueryRow(ctx, query, args...).Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		err = db.Classify(err)
		if errors.Is(err, db.ErrDuplicate) {
			return ErrDuplicateID
		}
		return fmt.Errorf("create product failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Product, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(productColumns...).
		From("public.products").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get product query failed: %w", err)
	}

	p, err := scanProduct(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get product failed: %w", db.Classify(err))
	}
	return p, nil
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Product, int, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	queryBuilder := psql.Select(append(productColumns, "count(*) OVER() as total_count")...).
		From("public.products")

	if filter.Type != "" {
		queryBuilder = queryBuilder.Where(squirrel.Eq{"type": filter.Type})
	}
	if filter.ActiveOnly {
		queryBuilder = queryBuilder.Where(squirrel.Eq{"is_active": true})
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	offset := (filter.Page - 1) * filter.PageSize

	query, args, err := queryBuilder.
		OrderBy("type ASC", "price ASC", "id ASC").
		Limit(uint64(filter.PageSize)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list products query failed: %w", err)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products failed: %w", db.Classify(err))
	}
	defer rows.Close()

	var products []*Product
	var total int
	for rows.Next() {
		p, err := scanProduct(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product failed: %w", err)
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *pgxRepository) Update(ctx context.Context, p *Product) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.products").
		Set("name", p.Name).
		Set("description", p.Description).
		Set("price", p.Price).
		Set("duration_minutes", p.DurationMinutes).
		Set("lesson_count", p.LessonCount).
		Set("redeems_for", p.RedeemsFor).
		Set("is_active", p.IsActive).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": p.ID}).
		Suffix("RETURNING updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build update product query failed: %w", err)
	}

	if err := r.q.QueryRow(ctx, query, args...).Scan(&p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update product failed: %w", db.Classify(err))
	}
	return nil
}

// Upsert inserts the product or overwrites the catalog fields of an existing one.
func (r *pgxRepository) Upsert(ctx context.Context, p *Product) error {
	const query = `
		INSERT INTO public.products (id, name, description, type, price, duration_minutes, lesson_count, redeems_for, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			type = EXCLUDED.type,
			price = EXCLUDED.price,
			duration_minutes = EXCLUDED.duration_minutes,
			lesson_count = EXCLUDED.lesson_count,
			redeems_for = EXCLUDED.redeems_for,
			is_active = EXCLUDED.is_active,
			updated_at = now()
		RETURNING created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		p.ID, p.Name, p.Description, p.Type, p.Price, p.DurationMinutes, p.LessonCount, p.RedeemsFor, p.IsActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert product %s failed: %w", p.ID, db.Classify(err))
	}
	return nil
}

func (r *pgxRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.q.Exec(ctx, "DELETE FROM public.products WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete product failed: %w", db.Classify(err))
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
