package booking

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nekogravitycat/lesson-booking-backend/internal/credit"
	"github.com/nekogravitycat/lesson-booking-backend/internal/groupsession"
	"github.com/nekogravitycat/lesson-booking-backend/internal/timeoff"
)

// memState is the whole calendar as held by memStore.
type memState struct {
	bookings map[string]*Booking
	order    []string
	blocks   map[string]*timeoff.Block
	sessions map[string]*groupsession.Session
	ledgers  map[string][]credit.Entry
}

func newMemState() *memState {
	return &memState{
		bookings: map[string]*Booking{},
		blocks:   map[string]*timeoff.Block{},
		sessions: map[string]*groupsession.Session{},
		ledgers:  map[string][]credit.Entry{},
	}
}

func copyBooking(b *Booking) *Booking {
	c := *b
	c.History = slices.Clone(b.History)
	if b.Slot != nil {
		slot := *b.Slot
		c.Slot = &slot
	}
	return &c
}

func copySession(s *groupsession.Session) *groupsession.Session {
	c := *s
	c.ParticipantIDs = slices.Clone(s.ParticipantIDs)
	return &c
}

func (st *memState) clone() *memState {
	c := newMemState()
	c.order = slices.Clone(st.order)
	for k, v := range st.bookings {
		c.bookings[k] = copyBooking(v)
	}
	for k, v := range st.blocks {
		b := *v
		c.blocks[k] = &b
	}
	for k, v := range st.sessions {
		c.sessions[k] = copySession(v)
	}
	for k, v := range st.ledgers {
		c.ledgers[k] = slices.Clone(v)
	}
	return c
}

// memStore is a Store whose transactions run one at a time. A failed
// transaction restores the state it started from.
type memStore struct {
	mu    sync.Mutex
	state *memState

	// afterCommit, when set, runs after every successful commit outside the lock.
	afterCommit func()
	// midRead, when set, runs once after a non-transactional session overlap
	// read, between the time-off and session reads of a day view.
	midRead func()
}

func newMemStore() *memStore {
	return &memStore{state: newMemState()}
}

func (s *memStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	snapshot := s.state.clone()
	if err := fn(memTx{s: s, inTx: true}); err != nil {
		s.state = snapshot
		s.mu.Unlock()
		return err
	}
	hook := s.afterCommit
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

// put stores b as if another request had committed it.
func (s *memStore) put(b *Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	s.state.bookings[b.ID] = copyBooking(b)
	s.state.order = append(s.state.order, b.ID)
}

func (s *memStore) Bookings() Repository              { return memTx{s: s}.Bookings() }
func (s *memStore) TimeOff() timeoff.Repository       { return memTx{s: s}.TimeOff() }
func (s *memStore) Sessions() groupsession.Repository { return memTx{s: s}.Sessions() }
func (s *memStore) Credits() credit.Repository        { return memTx{s: s}.Credits() }

// memTx reads and writes the store state. Outside a transaction every call
// takes the store lock itself.
type memTx struct {
	s    *memStore
	inTx bool
}

func (t memTx) with(fn func(st *memState)) {
	if !t.inTx {
		t.s.mu.Lock()
		defer t.s.mu.Unlock()
	}
	fn(t.s.state)
}

func (t memTx) Bookings() Repository              { return memBookings{t} }
func (t memTx) TimeOff() timeoff.Repository       { return memBlocks{t} }
func (t memTx) Sessions() groupsession.Repository { return memSessions{t} }
func (t memTx) Credits() credit.Repository        { return memCredits{t} }

type memBookings struct{ memTx }

func (r memBookings) Create(_ context.Context, b *Booking) error {
	r.with(func(st *memState) {
		b.ID = uuid.NewString()
		b.CreatedAt = time.Now().UTC()
		b.UpdatedAt = b.CreatedAt
		st.bookings[b.ID] = copyBooking(b)
		st.order = append(st.order, b.ID)
	})
	return nil
}

func (r memBookings) GetByID(_ context.Context, id string, _ bool) (*Booking, error) {
	var out *Booking
	r.with(func(st *memState) {
		if b, ok := st.bookings[id]; ok {
			out = copyBooking(b)
		}
	})
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

func (r memBookings) List(_ context.Context, f Filter) ([]*Booking, int, error) {
	var out []*Booking
	r.with(func(st *memState) {
		for _, id := range st.order {
			b, ok := st.bookings[id]
			if !ok {
				continue
			}
			if f.StudentID != "" && b.StudentID != f.StudentID {
				continue
			}
			if f.Status != "" && b.Status != f.Status {
				continue
			}
			if f.ProductID != "" && b.ProductID != f.ProductID {
				continue
			}
			if f.GroupSessionID != "" && (b.GroupSessionID == nil || *b.GroupSessionID != f.GroupSessionID) {
				continue
			}
			out = append(out, copyBooking(b))
		}
	})
	return out, len(out), nil
}

func (r memBookings) ListBlockingOverlaps(_ context.Context, tutorID string, start, end time.Time) ([]*Booking, error) {
	var out []*Booking
	want := Slot{Start: start, End: end}
	r.with(func(st *memState) {
		for _, id := range st.order {
			b, ok := st.bookings[id]
			if !ok || b.TutorID != tutorID || b.Slot == nil || !b.Status.Blocking() {
				continue
			}
			if b.Slot.Overlaps(want) {
				out = append(out, copyBooking(b))
			}
		}
	})
	return out, nil
}

func (r memBookings) ListBySession(_ context.Context, sessionID string) ([]*Booking, error) {
	var out []*Booking
	r.with(func(st *memState) {
		for _, id := range st.order {
			b, ok := st.bookings[id]
			if ok && b.GroupSessionID != nil && *b.GroupSessionID == sessionID {
				out = append(out, copyBooking(b))
			}
		}
	})
	return out, nil
}

func (r memBookings) UpdateStatus(_ context.Context, id string, status Status) error {
	var err error
	r.with(func(st *memState) {
		b, ok := st.bookings[id]
		if !ok {
			err = ErrNotFound
			return
		}
		b.Status = status
		b.UpdatedAt = time.Now().UTC()
	})
	return err
}

func (r memBookings) AppendHistory(_ context.Context, bookingID string, e HistoryEntry) error {
	var err error
	r.with(func(st *memState) {
		b, ok := st.bookings[bookingID]
		if !ok {
			err = ErrNotFound
			return
		}
		b.History = append(b.History, e)
	})
	return err
}

func (r memBookings) Delete(_ context.Context, id string) error {
	var err error
	r.with(func(st *memState) {
		if _, ok := st.bookings[id]; !ok {
			err = ErrNotFound
			return
		}
		delete(st.bookings, id)
	})
	return err
}

type memBlocks struct{ memTx }

func (r memBlocks) Create(_ context.Context, b *timeoff.Block) error {
	r.with(func(st *memState) {
		b.ID = uuid.NewString()
		b.CreatedAt = time.Now().UTC()
		c := *b
		st.blocks[b.ID] = &c
	})
	return nil
}

func (r memBlocks) GetByID(_ context.Context, id string) (*timeoff.Block, error) {
	var out *timeoff.Block
	r.with(func(st *memState) {
		if b, ok := st.blocks[id]; ok {
			c := *b
			out = &c
		}
	})
	if out == nil {
		return nil, timeoff.ErrNotFound
	}
	return out, nil
}

func (r memBlocks) Delete(_ context.Context, id string) error {
	var err error
	r.with(func(st *memState) {
		if _, ok := st.blocks[id]; !ok {
			err = timeoff.ErrNotFound
			return
		}
		delete(st.blocks, id)
	})
	return err
}

func (r memBlocks) ListOverlapping(_ context.Context, tutorID string, start, end time.Time) ([]*timeoff.Block, error) {
	var out []*timeoff.Block
	r.with(func(st *memState) {
		for _, b := range st.blocks {
			if b.TutorID == tutorID && b.Overlaps(start, end) {
				c := *b
				out = append(out, &c)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

type memSessions struct{ memTx }

func (r memSessions) Create(_ context.Context, s *groupsession.Session) error {
	r.with(func(st *memState) {
		s.ID = uuid.NewString()
		s.CreatedAt = time.Now().UTC()
		st.sessions[s.ID] = copySession(s)
	})
	return nil
}

func (r memSessions) GetByID(_ context.Context, id string, _ bool) (*groupsession.Session, error) {
	var out *groupsession.Session
	r.with(func(st *memState) {
		if s, ok := st.sessions[id]; ok {
			out = copySession(s)
		}
	})
	if out == nil {
		return nil, groupsession.ErrNotFound
	}
	return out, nil
}

func (r memSessions) List(_ context.Context, f groupsession.Filter) ([]*groupsession.Session, int, error) {
	var out []*groupsession.Session
	r.with(func(st *memState) {
		for _, s := range st.sessions {
			if f.Type != "" && s.Type != f.Type {
				continue
			}
			if f.Status != "" && s.Status != f.Status {
				continue
			}
			out = append(out, copySession(s))
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, len(out), nil
}

func (r memSessions) ListOverlapping(_ context.Context, tutorID string, start, end time.Time) ([]*groupsession.Session, error) {
	var (
		out  []*groupsession.Session
		hook func()
	)
	r.with(func(st *memState) {
		for _, s := range st.sessions {
			if s.TutorID == tutorID && s.Status == groupsession.StatusScheduled && s.Overlaps(start, end) {
				out = append(out, copySession(s))
			}
		}
		if !r.inTx {
			hook, r.s.midRead = r.s.midRead, nil
		}
	})
	if hook != nil {
		hook()
	}
	return out, nil
}

func (r memSessions) UpdateParticipants(_ context.Context, s *groupsession.Session) error {
	var err error
	r.with(func(st *memState) {
		cur, ok := st.sessions[s.ID]
		if !ok {
			err = groupsession.ErrNotFound
			return
		}
		cur.ParticipantIDs = slices.Clone(s.ParticipantIDs)
		cur.ParticipantCount = len(cur.ParticipantIDs)
	})
	return err
}

func (r memSessions) UpdateStatus(_ context.Context, id string, status groupsession.Status) error {
	var err error
	r.with(func(st *memState) {
		cur, ok := st.sessions[id]
		if !ok {
			err = groupsession.ErrNotFound
			return
		}
		cur.Status = status
	})
	return err
}

type memCredits struct{ memTx }

func (r memCredits) Load(_ context.Context, studentID string, _ bool) (*credit.Ledger, error) {
	l := &credit.Ledger{StudentID: studentID}
	r.with(func(st *memState) {
		l.Entries = slices.Clone(st.ledgers[studentID])
	})
	return l, nil
}

func (r memCredits) Save(_ context.Context, l *credit.Ledger) error {
	r.with(func(st *memState) {
		var kept []credit.Entry
		for _, e := range l.Entries {
			if e.Count > 0 {
				kept = append(kept, e)
			}
		}
		st.ledgers[l.StudentID] = kept
	})
	return nil
}
