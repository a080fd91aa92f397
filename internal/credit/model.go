package credit

import (
	"net/http"
	"time"

	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/apperror"
)

var (
	ErrInsufficientCredits = apperror.New(http.StatusConflict, apperror.KindResourceState, "insufficient credits")
	ErrInvalidCount        = apperror.New(http.StatusBadRequest, apperror.KindValidation, "credit count must be positive")
	ErrLessonTypeRequired  = apperror.New(http.StatusBadRequest, apperror.KindValidation, "lesson type is required")
)

// Entry is one line of a student's credit ledger.
type Entry struct {
	LessonType       string // product id the credit was issued as
	Count            int
	PurchasedAt      time.Time
	PackageBookingID *string // weak reference to the originating booking
}

// Ledger is the full credit balance of one student.
// Entries never hold a zero count once the ledger has been written.
type Ledger struct {
	StudentID string
	Entries   []Entry
}

func (l *Ledger) find(lessonType string) int {
	for i := range l.Entries {
		if l.Entries[i].LessonType == lessonType {
			return i
		}
	}
	return -1
}

// Balance returns the number of credits held for lessonType.
func (l *Ledger) Balance(lessonType string) int {
	if i := l.find(lessonType); i >= 0 {
		return l.Entries[i].Count
	}
	return 0
}

// Grant merges count credits of lessonType into the ledger.
func (l *Ledger) Grant(lessonType string, count int, source *string, at time.Time) error {
	if lessonType == "" {
		return ErrLessonTypeRequired
	}
	if count <= 0 {
		return ErrInvalidCount
	}

	if i := l.find(lessonType); i >= 0 {
		l.Entries[i].Count += count
		l.Entries[i].PurchasedAt = at
		if source != nil {
			l.Entries[i].PackageBookingID = source
		}
		return nil
	}

	l.Entries = append(l.Entries, Entry{
		LessonType:       lessonType,
		Count:            count,
		PurchasedAt:      at,
		PackageBookingID: source,
	})
	return nil
}

// Spend consumes one credit of lessonType and returns the entry as it was
// before the decrement.
func (l *Ledger) Spend(lessonType string) (Entry, error) {
	i := l.find(lessonType)
	if i < 0 || l.Entries[i].Count <= 0 {
		return Entry{}, ErrInsufficientCredits
	}

	spent := l.Entries[i]
	l.Entries[i].Count--
	l.prune()
	return spent, nil
}

// Revoke removes up to max credits of lessonType and returns how many were
// removed. The balance never drops below zero.
func (l *Ledger) Revoke(lessonType string, max int) int {
	i := l.find(lessonType)
	if i < 0 || max <= 0 {
		return 0
	}

	n := min(l.Entries[i].Count, max)
	l.Entries[i].Count -= n
	l.prune()
	return n
}

func (l *Ledger) prune() {
	kept := l.Entries[:0]
	for _, e := range l.Entries {
		if e.Count > 0 {
			kept = append(kept, e)
		}
	}
	l.Entries = kept
}
