package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/cache"
	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/events"
	"github.com/nekogravitycat/lesson-booking-backend/internal/product"
	"github.com/nekogravitycat/lesson-booking-backend/internal/user"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	testNow = time.Date(2030, 1, 7, 8, 0, 0, 0, time.UTC)

	ann   = Actor{UserID: "a0000000-0000-4000-8000-000000000001", Email: "ann@example.com", Name: "Ann"}
	ben   = Actor{UserID: "a0000000-0000-4000-8000-000000000002", Email: "ben@example.com", Name: "Ben"}
	cara  = Actor{UserID: "a0000000-0000-4000-8000-000000000003", Email: "cara@example.com", Name: "Cara"}
	tutor = Actor{UserID: "a0000000-0000-4000-8000-000000000099", Email: "tutor@example.com", Name: "Tutor", IsAdmin: true}
)

func strPtr(s string) *string { return &s }

func testProducts() map[string]*product.Product {
	list := []*product.Product{
		{ID: "lesson-60", Name: "Lesson 60", Type: product.TypeIndividual, Price: decimal.NewFromInt(50), DurationMinutes: 60, IsActive: true},
		{ID: "trial-30", Name: "Trial", Type: product.TypeIndividual, Price: decimal.Zero, DurationMinutes: 30, IsActive: true},
		{ID: "retired", Name: "Retired", Type: product.TypeIndividual, Price: decimal.NewFromInt(40), DurationMinutes: 45, IsActive: false},
		{ID: "pack-5", Name: "Five Lessons", Type: product.TypePackage, Price: decimal.NewFromInt(200), LessonCount: 5, RedeemsFor: strPtr("lesson-60"), IsActive: true},
		{ID: "pack-bad", Name: "Broken Pack", Type: product.TypePackage, Price: decimal.NewFromInt(90), LessonCount: 3, RedeemsFor: strPtr("group-90"), IsActive: true},
		{ID: "group-90", Name: "Group", Type: product.TypeGroup, Price: decimal.NewFromInt(20), DurationMinutes: 90, IsActive: true},
		{ID: "private-60", Name: "Private Group", Type: product.TypePrivateGroup, Price: decimal.NewFromInt(30), DurationMinutes: 60, IsActive: true},
	}
	m := make(map[string]*product.Product, len(list))
	for _, p := range list {
		m[p.ID] = p
	}
	return m
}

type catalog map[string]*product.Product

func (c catalog) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := c[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

type directory map[string]*user.User

func (d directory) GetByEmail(_ context.Context, email string) (*user.User, error) {
	u, ok := d[user.NormalizeEmail(email)]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func testDirectory() directory {
	d := directory{}
	for _, a := range []Actor{ann, ben, cara, tutor} {
		name := a.Name
		d[a.Email] = &user.User{ID: a.UserID, Email: a.Email, DisplayName: &name, IsActive: true, IsAdmin: a.IsAdmin}
	}
	return d
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) Publish(_ context.Context, e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) Close() error { return nil }

func (l *eventLog) ofType(t string) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type engine struct {
	*service
	store  *memStore
	events *eventLog
	cache  *cache.Memory
}

func newEngine(t *testing.T) *engine {
	t.Helper()

	store := newMemStore()
	log := &eventLog{}
	mem := cache.NewMemory(time.Minute)

	svc := NewService(store, catalog(testProducts()), testDirectory(), mem, log, Config{
		TutorID:                "tutor",
		Location:               time.UTC,
		WorkingHoursStart:      "09:00",
		WorkingHoursEnd:        "21:00",
		CancelLeadIndividual:   12 * time.Hour,
		CancelLeadGroup:        3 * time.Hour,
		PrivateGroupMaxMembers: 4,
		AvailabilityCacheTTL:   time.Minute,
		Now:                    func() time.Time { return testNow },
	}, zap.NewNop())

	return &engine{service: svc.(*service), store: store, events: log, cache: mem}
}

func (e *engine) book(t *testing.T, actor Actor, productID, date, clock string) *Booking {
	t.Helper()
	res, err := e.CreateBooking(context.Background(), actor, CreateRequest{ProductID: productID, Date: date, Time: clock})
	require.NoError(t, err)
	return res.Booking
}

// confirmed books a paid lesson and has the tutor confirm the payment.
func (e *engine) confirmed(t *testing.T, actor Actor, date, clock string) *Booking {
	t.Helper()
	b := e.book(t, actor, "lesson-60", date, clock)
	b, err := e.UpdateBookingStatus(context.Background(), tutor, b.ID, StatusConfirmed, "paid")
	require.NoError(t, err)
	return b
}

func (e *engine) balance(t *testing.T, actor Actor, lessonType string) int {
	t.Helper()
	l, err := e.ListCredits(context.Background(), actor, actor.UserID)
	require.NoError(t, err)
	return l.Balance(lessonType)
}
