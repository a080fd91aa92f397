package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/nekogravitycat/lesson-booking-backend/internal/groupsession"
	"github.com/nekogravitycat/lesson-booking-backend/internal/timeoff"
	"go.uber.org/zap"
)

// Availability is the free/busy view of one local calendar day.
type Availability struct {
	TutorID       string                  `json:"tutor_id"`
	Date          string                  `json:"date"`
	Bookings      []*Booking              `json:"bookings"`
	TimeOff       []*timeoff.Block        `json:"time_off"`
	GroupSessions []*groupsession.Session `json:"group_sessions"`
	FreeSlots     []Slot                  `json:"free_slots"`
}

func availabilityKey(tutorID, date string) string {
	return fmt.Sprintf("availability:%s:%s", tutorID, date)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// dayBounds returns local midnight of date and of the following day.
func dayBounds(date string, loc *time.Location) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidDateTime
	}
	return day, day.AddDate(0, 0, 1), nil
}

// clockOn places an HH:MM wall clock on the given local day.
func clockOn(day time.Time, clock string) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock %q: %w", clock, err)
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

// freeSlots subtracts busy intervals from [open, shut). The result is sorted
// and contains no empty intervals.
func freeSlots(open, shut time.Time, busy []Slot) []Slot {
	sorted := make([]Slot, len(busy))
	copy(sorted, busy)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	free := []Slot{}
	cursor := open
	for _, b := range sorted {
		if !b.End.After(cursor) {
			continue
		}
		if !b.Start.Before(shut) {
			break
		}
		if b.Start.After(cursor) {
			free = append(free, Slot{Start: cursor, End: b.Start})
		}
		cursor = b.End
	}
	if cursor.Before(shut) {
		free = append(free, Slot{Start: cursor, End: shut})
	}
	return free
}

// readDay collects everything intersecting [dayStart, dayEnd) through tx.
// Entries ending exactly at dayStart are excluded.
func (s *service) readDay(ctx context.Context, tx Tx, dayStart, dayEnd time.Time) (*Availability, error) {
	bookings, err := tx.Bookings().ListBlockingOverlaps(ctx, s.cfg.TutorID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	blocks, err := tx.TimeOff().ListOverlapping(ctx, s.cfg.TutorID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	sessions, err := tx.Sessions().ListOverlapping(ctx, s.cfg.TutorID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}

	a := &Availability{
		TutorID:       s.cfg.TutorID,
		Date:          dayStart.Format("2006-01-02"),
		Bookings:      bookings,
		TimeOff:       blocks,
		GroupSessions: sessions,
	}
	if a.Bookings == nil {
		a.Bookings = []*Booking{}
	}
	if a.TimeOff == nil {
		a.TimeOff = []*timeoff.Block{}
	}
	if a.GroupSessions == nil {
		a.GroupSessions = []*groupsession.Session{}
	}

	open, err := clockOn(dayStart, s.cfg.WorkingHoursStart)
	if err != nil {
		return nil, err
	}
	shut, err := clockOn(dayStart, s.cfg.WorkingHoursEnd)
	if err != nil {
		return nil, err
	}

	var busy []Slot
	for _, b := range bookings {
		if b.Slot != nil {
			busy = append(busy, *b.Slot)
		}
	}
	for _, blk := range blocks {
		busy = append(busy, Slot{Start: blk.Start, End: blk.End})
	}
	for _, gs := range sessions {
		busy = append(busy, Slot{Start: gs.Start, End: gs.End})
	}
	a.FreeSlots = freeSlots(open.UTC(), shut.UTC(), busy)

	return a, nil
}

// GetAvailability returns the free/busy view of date for display. It reads
// outside any transaction and may be served from the cache.
func (s *service) GetAvailability(ctx context.Context, date string) (*Availability, error) {
	dayStart, dayEnd, err := dayBounds(date, s.cfg.Location)
	if err != nil {
		return nil, err
	}
	key := availabilityKey(s.cfg.TutorID, date)

	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("availability cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			var cached Availability
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	gen := s.cacheGen.Load()
	a, err := s.readDay(ctx, s.store, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}

	// A commit that invalidated while the day was read may not be in a. Do
	// not cache it. Other processes sharing the cache are bounded by the TTL.
	if s.cache != nil && s.cacheGen.Load() == gen {
		if raw, err := json.Marshal(a); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.cfg.AvailabilityCacheTTL); err != nil {
				s.logger.Warn("availability cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return a, nil
}

// checkCalendar re-reads conflicting data inside tx and fails if slot cannot
// be taken. Bookings and sessions belonging to sessionID are ignored, as are
// the bookings listed in ignore.
func (s *service) checkCalendar(ctx context.Context, tx Tx, slot Slot, sessionID string, ignore ...string) error {
	bookings, err := tx.Bookings().ListBlockingOverlaps(ctx, s.cfg.TutorID, slot.Start, slot.End)
	if err != nil {
		return err
	}
	for _, b := range bookings {
		if sessionID != "" && b.GroupSessionID != nil && *b.GroupSessionID == sessionID {
			continue
		}
		if slices.Contains(ignore, b.ID) {
			continue
		}
		return ErrSlotAlreadyBooked
	}

	blocks, err := tx.TimeOff().ListOverlapping(ctx, s.cfg.TutorID, slot.Start, slot.End)
	if err != nil {
		return err
	}
	if len(blocks) > 0 {
		return ErrTutorUnavailable
	}

	sessions, err := tx.Sessions().ListOverlapping(ctx, s.cfg.TutorID, slot.Start, slot.End)
	if err != nil {
		return err
	}
	for _, gs := range sessions {
		if gs.ID != sessionID {
			return ErrSlotAlreadyBooked
		}
	}
	return nil
}
