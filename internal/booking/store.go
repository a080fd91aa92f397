package booking

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nekogravitycat/lesson-booking-backend/internal/credit"
	"github.com/nekogravitycat/lesson-booking-backend/internal/db"
	"github.com/nekogravitycat/lesson-booking-backend/internal/groupsession"
	"github.com/nekogravitycat/lesson-booking-backend/internal/timeoff"
)

// Tx gives access to every repository the engine touches, all bound to the
// same unit of work.
type Tx interface {
	Bookings() Repository
	TimeOff() timeoff.Repository
	Sessions() groupsession.Repository
	Credits() credit.Repository
}

// Store is the engine's transactional store. Its own repositories run
// outside any transaction and serve display reads; WithinTx runs fn in a
// single serializable transaction that commits only if fn returns nil.
type Store interface {
	Tx
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

type repos struct {
	bookings Repository
	timeOff  timeoff.Repository
	sessions groupsession.Repository
	credits  credit.Repository
}

func newRepos(q db.Querier) repos {
	return repos{
		bookings: NewPgxRepository(q),
		timeOff:  timeoff.NewPgxRepository(q),
		sessions: groupsession.NewPgxRepository(q),
		credits:  credit.NewPgxRepository(q),
	}
}

func (r repos) Bookings() Repository              { return r.bookings }
func (r repos) TimeOff() timeoff.Repository       { return r.timeOff }
func (r repos) Sessions() groupsession.Repository { return r.sessions }
func (r repos) Credits() credit.Repository        { return r.credits }

type pgxStore struct {
	repos
	pool *pgxpool.Pool
}

// NewPgxStore builds a Store on a Postgres pool.
func NewPgxStore(pool *pgxpool.Pool) Store {
	return &pgxStore{repos: newRepos(pool), pool: pool}
}

func (s *pgxStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	return db.WithinTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(newRepos(tx))
	})
}
