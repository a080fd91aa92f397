package booking

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/nekogravitycat/lesson-booking-backend/internal/credit"
	"github.com/nekogravitycat/lesson-booking-backend/internal/db"
	"github.com/nekogravitycat/lesson-booking-backend/internal/groupsession"
	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/apperror"
	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/cache"
	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/events"
	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/inflight"
	"github.com/nekogravitycat/lesson-booking-backend/internal/product"
	"github.com/nekogravitycat/lesson-booking-backend/internal/timeoff"
	"github.com/nekogravitycat/lesson-booking-backend/internal/user"
	"go.uber.org/zap"
)

// Config holds the calendar rules of the single tutor.
type Config struct {
	TutorID                string
	Location               *time.Location
	WorkingHoursStart      string // HH:MM
	WorkingHoursEnd        string // HH:MM
	CancelLeadIndividual   time.Duration
	CancelLeadGroup        time.Duration
	PrivateGroupMaxMembers int // including the leader
	AvailabilityCacheTTL   time.Duration

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// ProductCatalog resolves products by id.
type ProductCatalog interface {
	GetByID(ctx context.Context, id string) (*product.Product, error)
}

// UserDirectory resolves invited members to accounts.
type UserDirectory interface {
	GetByEmail(ctx context.Context, email string) (*user.User, error)
}

type CreateRequest struct {
	ProductID      string
	Date           string // YYYY-MM-DD in the tutor's time zone
	Time           string // HH:MM
	GroupSessionID string
}

// CreditBookingRequest redeems one credit. Group credits name the public
// session to join instead of a date and time.
type CreditBookingRequest struct {
	CreditType     string
	Date           string
	Time           string
	GroupSessionID string
}

type RescheduleRequest struct {
	BookingID string
	Date      string
	Time      string
}

type BlockRequest struct {
	Start time.Time
	End   time.Time
	Note  string
}

type GroupSessionRequest struct {
	ProductID   string
	Title       string
	Date        string
	Time        string
	MaxStudents int
}

type PrivateGroupRequest struct {
	LeaderID     string
	ProductID    string
	Date         string
	Time         string
	MemberEmails []string
}

// Result is the outcome of a successful reservation.
type Result struct {
	Booking      *Booking
	RedirectHint string
}

type PrivateGroupResult struct {
	Session  *groupsession.Session
	Bookings []*Booking
}

type Service interface {
	GetAvailability(ctx context.Context, date string) (*Availability, error)

	CreateBooking(ctx context.Context, actor Actor, req CreateRequest) (*Result, error)
	CreateBookingWithCredit(ctx context.Context, actor Actor, req CreditBookingRequest) (*Result, error)
	RequestReschedule(ctx context.Context, actor Actor, req RescheduleRequest) (*Result, error)

	GetBooking(ctx context.Context, actor Actor, id string) (*Booking, error)
	ListBookings(ctx context.Context, actor Actor, filter Filter) ([]*Booking, int, error)
	DeleteBooking(ctx context.Context, actor Actor, id string) error
	UpdateBookingStatus(ctx context.Context, actor Actor, id string, to Status, reason string) (*Booking, error)
	RequestCancellation(ctx context.Context, actor Actor, id string, reason string) (*Booking, error)
	DeclineCancellation(ctx context.Context, actor Actor, id string, reason string) (*Booking, error)
	ConfirmPaymentSubmitted(ctx context.Context, actor Actor, id string) (*Booking, error)

	BlockTime(ctx context.Context, actor Actor, req BlockRequest) (*timeoff.Block, error)
	UnblockTime(ctx context.Context, actor Actor, id string) error
	ListTimeOff(ctx context.Context, from, to time.Time) ([]*timeoff.Block, error)

	ListCredits(ctx context.Context, actor Actor, studentID string) (*credit.Ledger, error)
	GrantCredits(ctx context.Context, actor Actor, studentID, lessonType string, count int) (*credit.Ledger, error)

	CreateGroupSession(ctx context.Context, actor Actor, req GroupSessionRequest) (*groupsession.Session, error)
	JoinGroupSession(ctx context.Context, actor Actor, sessionID string) (*Result, error)
	CancelGroupSession(ctx context.Context, actor Actor, sessionID, reason string) (*groupsession.Session, error)
	CreatePrivateGroup(ctx context.Context, actor Actor, req PrivateGroupRequest) (*PrivateGroupResult, error)
}

type service struct {
	store     Store
	products  ProductCatalog
	users     UserDirectory
	cache     cache.Cache
	publisher events.Publisher
	inflight  *inflight.Tracker
	cfg       Config
	logger    *zap.Logger

	// cacheGen counts availability invalidations made by this process.
	cacheGen atomic.Uint64
}

// NewService builds the booking engine.
func NewService(
	store Store,
	products ProductCatalog,
	users UserDirectory,
	availabilityCache cache.Cache,
	publisher events.Publisher,
	cfg Config,
	logger *zap.Logger,
) Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.PrivateGroupMaxMembers < 2 {
		cfg.PrivateGroupMaxMembers = 6
	}
	if publisher == nil {
		publisher = events.Noop{}
	}

	return &service{
		store:     store,
		products:  products,
		users:     users,
		cache:     availabilityCache,
		publisher: publisher,
		inflight:  inflight.NewTracker(),
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *service) now() time.Time {
	return s.cfg.Now().UTC()
}

func requireIdentity(actor Actor) error {
	if actor.UserID == "" {
		return ErrUnauthenticated
	}
	return nil
}

func requireAdmin(actor Actor) error {
	if err := requireIdentity(actor); err != nil {
		return err
	}
	if !actor.IsAdmin {
		return ErrAuthMismatch
	}
	return nil
}

// reservationErr maps store conflicts of a reservation attempt to the
// user-facing SlotAlreadyBooked. The losing request is never retried.
func reservationErr(err error) error {
	if errors.Is(err, db.ErrTxConflict) || errors.Is(err, db.ErrOverlap) {
		return apperror.Wrap(err, ErrSlotAlreadyBooked)
	}
	return err
}

// updateErr maps store conflicts of a status change.
func updateErr(err error) error {
	switch {
	case errors.Is(err, db.ErrOverlap):
		return apperror.Wrap(err, ErrSlotAlreadyBooked)
	case errors.Is(err, db.ErrTxConflict):
		return apperror.Wrap(err, ErrConcurrentUpdate)
	}
	return err
}

// lookupProduct resolves an active product or fails with ErrInvalidProduct.
func (s *service) lookupProduct(ctx context.Context, id string) (*product.Product, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, ErrInvalidProduct
		}
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrInvalidProduct
	}
	return p, nil
}

// slotAt builds the lesson interval starting at date/clock in the tutor's zone.
func (s *service) slotAt(date, clock string, length time.Duration) (*Slot, error) {
	if date == "" || clock == "" {
		return nil, ErrScheduleRequired
	}
	start, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, s.cfg.Location)
	if err != nil {
		return nil, ErrInvalidDateTime
	}
	if length <= 0 {
		return nil, ErrInvalidProduct
	}
	return &Slot{Start: start.UTC(), End: start.Add(length).UTC()}, nil
}

// committed collects the side effects that may only run after a transaction
// commits: cache invalidation and event publishing.
type committed struct {
	dates  map[string]struct{}
	events []events.Event
}

func (c *committed) touch(loc *time.Location, slot *Slot) {
	if slot == nil {
		return
	}
	if c.dates == nil {
		c.dates = make(map[string]struct{})
	}
	// Every local date the interval touches.
	day := startOfDay(slot.Start.In(loc))
	for day.Before(slot.End) {
		c.dates[day.Format("2006-01-02")] = struct{}{}
		day = day.AddDate(0, 0, 1)
	}
}

func (c *committed) emit(e events.Event) {
	c.events = append(c.events, e)
}

// flush runs the post-commit side effects. Failures are logged, never returned.
func (s *service) flush(ctx context.Context, c *committed) {
	if len(c.dates) > 0 && s.cache != nil {
		s.cacheGen.Add(1)
		keys := make([]string, 0, len(c.dates))
		for d := range c.dates {
			keys = append(keys, availabilityKey(s.cfg.TutorID, d))
		}
		if err := s.cache.Delete(ctx, keys...); err != nil {
			s.logger.Warn("availability cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
		}
	}

	for _, e := range c.events {
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.logger.Warn("publish booking event failed",
				zap.String("event_type", e.Type),
				zap.String("booking_id", e.BookingID),
				zap.Error(err),
			)
		}
	}
}

func createdEvent(b *Booking) events.Event {
	e := events.New(events.TypeBookingCreated, b.ID)
	e.StudentID = b.StudentID
	e.ProductID = b.ProductID
	e.Status = string(b.Status)
	if b.Slot != nil {
		start := b.Slot.Start.Format(time.RFC3339)
		e.StartTime = &start
	}
	return e
}

func statusEvent(b *Booking, from Status, actor string) events.Event {
	e := events.New(events.TypeBookingStatusChanged, b.ID)
	e.StudentID = b.StudentID
	e.ProductID = b.ProductID
	e.Status = string(b.Status)
	e.PreviousStatus = string(from)
	e.Actor = actor
	return e
}
