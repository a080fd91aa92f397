package product

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

type CreateRequest struct {
	ID              string
	Name            string
	Description     string
	Type            Type
	Price           decimal.Decimal
	DurationMinutes int
	LessonCount     int
	RedeemsFor      *string
}

type UpdateRequest struct {
	Name            *string
	Description     *string
	Price           *decimal.Decimal
	DurationMinutes *int
	LessonCount     *int
	RedeemsFor      *string
	IsActive        *bool
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context, filter Filter) ([]*Product, int, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Product, error)
	Delete(ctx context.Context, id string) error
	Seed(ctx context.Context, products []*Product) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*Product, error) {
	p := &Product{
		ID:              strings.TrimSpace(req.ID),
		Name:            strings.TrimSpace(req.Name),
		Description:     req.Description,
		Type:            req.Type,
		Price:           req.Price,
		DurationMinutes: req.DurationMinutes,
		LessonCount:     req.LessonCount,
		RedeemsFor:      req.RedeemsFor,
		IsActive:        true,
	}
	if err := s.validateRedemption(ctx, p); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*Product, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, filter Filter) ([]*Product, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) Update(ctx context.Context, id string, req UpdateRequest) (*Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Price != nil {
		p.Price = *req.Price
	}
	if req.DurationMinutes != nil {
		p.DurationMinutes = *req.DurationMinutes
	}
	if req.LessonCount != nil {
		p.LessonCount = *req.LessonCount
	}
	if req.RedeemsFor != nil {
		p.RedeemsFor = req.RedeemsFor
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}

	if err := s.validateRedemption(ctx, p); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Seed upserts the given catalog. Lesson products are written before packages
// so that every redemption target exists when its package is checked.
func (s *service) Seed(ctx context.Context, products []*Product) error {
	ordered := make([]*Product, 0, len(products))
	for _, p := range products {
		if p.Type != TypePackage {
			ordered = append(ordered, p)
		}
	}
	for _, p := range products {
		if p.Type == TypePackage {
			ordered = append(ordered, p)
		}
	}

	for _, p := range ordered {
		if err := s.validateRedemption(ctx, p); err != nil {
			return err
		}
		if err := s.repo.Upsert(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// validateRedemption runs the shape checks and, for packages, requires the
// redemption target to be an existing individual lesson product.
func (s *service) validateRedemption(ctx context.Context, p *Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Type != TypePackage {
		return nil
	}

	target, err := s.repo.GetByID(ctx, *p.RedeemsFor)
	if err != nil {
		if err == ErrNotFound {
			return ErrRedeemsForRequired
		}
		return err
	}
	if target.Type != TypeIndividual {
		return ErrRedeemsForRequired
	}
	return nil
}
