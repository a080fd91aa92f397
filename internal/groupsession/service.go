package groupsession

import (
	"context"
)

// Service exposes read access to group sessions. Seat-taking and
// cancellation go through the booking engine so they share its transaction.
type Service interface {
	GetByID(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context, filter Filter) ([]*Session, int, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) GetByID(ctx context.Context, id string) (*Session, error) {
	return s.repo.GetByID(ctx, id, false)
}

func (s *service) List(ctx context.Context, filter Filter) ([]*Session, int, error) {
	return s.repo.List(ctx, filter)
}
