package user

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nekogravitycat/lesson-booking-backend/internal/auth"
)

type memRepo struct {
	byID map[string]*User
}

func newMemRepo() *memRepo {
	return &memRepo{byID: make(map[string]*User)}
}

func (r *memRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range r.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRepo) GetByID(_ context.Context, id string) (*User, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memRepo) Create(_ context.Context, u *User) error {
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now().UTC()
	cp := *u
	r.byID[u.ID] = &cp
	return nil
}

func (r *memRepo) UpdateLastLogin(_ context.Context, id string, t time.Time) error {
	if u, ok := r.byID[id]; ok {
		u.LastLoginAt = &t
	}
	return nil
}

func (r *memRepo) List(_ context.Context, _ UserFilter) ([]*User, int, error) {
	out := make([]*User, 0, len(r.byID))
	for _, u := range r.byID {
		out = append(out, u)
	}
	return out, len(out), nil
}

func (r *memRepo) Update(_ context.Context, u *User) error {
	if _, ok := r.byID[u.ID]; !ok {
		return ErrNotFound
	}
	cp := *u
	r.byID[u.ID] = &cp
	return nil
}

func newTestService() (Service, *memRepo) {
	repo := newMemRepo()
	return NewService(repo, auth.NewBcryptPasswordHasherWithCost(4), zap.NewNop()), repo
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	u, err := svc.Register(ctx, "  Ann@Example.com ", "password123", " Ann ")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", u.Email)
	assert.Equal(t, "Ann", u.Name())
	assert.True(t, u.IsActive)
	assert.False(t, u.IsAdmin)

	t.Run("Duplicate Email", func(t *testing.T) {
		_, err := svc.Register(ctx, "ANN@example.com", "password123", "")
		assert.ErrorIs(t, err, ErrEmailAlreadyUsed)
	})

	t.Run("Short Password", func(t *testing.T) {
		_, err := svc.Register(ctx, "ben@example.com", "short", "")
		assert.ErrorIs(t, err, ErrPasswordTooShort)
	})

	t.Run("Missing Email", func(t *testing.T) {
		_, err := svc.Register(ctx, "   ", "password123", "")
		assert.ErrorIs(t, err, ErrEmailRequired)
	})

	t.Run("Login", func(t *testing.T) {
		got, err := svc.Login(ctx, "ann@example.com", "password123")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.NotNil(t, got.LastLoginAt)
	})

	t.Run("Wrong Password", func(t *testing.T) {
		_, err := svc.Login(ctx, "ann@example.com", "password124")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("Unknown Email", func(t *testing.T) {
		_, err := svc.Login(ctx, "nobody@example.com", "password123")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestIsAdmin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	u, err := svc.Register(ctx, "tutor@example.com", "password123", "Tutor")
	require.NoError(t, err)

	ok, err := svc.IsAdmin(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	yes := true
	_, err = svc.Update(ctx, u.ID, UpdateUserRequest{IsAdmin: &yes})
	require.NoError(t, err)

	ok, err = svc.IsAdmin(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("Inactive Admin", func(t *testing.T) {
		no := false
		_, err := svc.Update(ctx, u.ID, UpdateUserRequest{IsActive: &no})
		require.NoError(t, err)

		ok, err := svc.IsAdmin(ctx, u.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = svc.Login(ctx, "tutor@example.com", "password123")
		assert.ErrorIs(t, err, ErrInactiveUser)
	})

	t.Run("Unknown User", func(t *testing.T) {
		_, err := svc.IsAdmin(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
