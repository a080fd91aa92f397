package booking

import (
	"net/http"
	"time"

	"github.com/nekogravitycat/lesson-booking-backend/internal/credit"
	"github.com/nekogravitycat/lesson-booking-backend/internal/groupsession"
	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/apperror"
	"github.com/nekogravitycat/lesson-booking-backend/internal/product"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound               = apperror.New(http.StatusNotFound, apperror.KindResourceState, "booking not found")
	ErrSlotAlreadyBooked      = apperror.New(http.StatusConflict, apperror.KindConflict, "time slot already booked")
	ErrTutorUnavailable       = apperror.New(http.StatusConflict, apperror.KindConflict, "tutor is unavailable at this time")
	ErrInvalidProduct         = apperror.New(http.StatusBadRequest, apperror.KindValidation, "invalid product for this booking")
	ErrInvalidCreditMapping   = apperror.New(http.StatusBadRequest, apperror.KindResourceState, "credit type cannot be redeemed for a lesson")
	ErrInvalidStateTransition = apperror.New(http.StatusConflict, apperror.KindResourceState, "booking status transition not allowed")
	ErrAuthMismatch           = apperror.New(http.StatusForbidden, apperror.KindAuthMismatch, "booking does not belong to the caller")
	ErrUnauthenticated        = apperror.New(http.StatusUnauthorized, apperror.KindUnauthenticated, "authentication required")
	ErrInvalidTimeRange       = apperror.New(http.StatusBadRequest, apperror.KindValidation, "start time must be before end time")
	ErrInvalidDateTime        = apperror.New(http.StatusBadRequest, apperror.KindValidation, "date must be YYYY-MM-DD and time HH:MM")
	ErrScheduleRequired       = apperror.New(http.StatusBadRequest, apperror.KindValidation, "date and time are required for this product")
	ErrStartTimePast          = apperror.New(http.StatusBadRequest, apperror.KindValidation, "cannot book a slot in the past")
	ErrCancellationTooLate    = apperror.New(http.StatusConflict, apperror.KindResourceState, "too close to the lesson start to cancel or reschedule")
	ErrNotReschedulable       = apperror.New(http.StatusConflict, apperror.KindResourceState, "only confirmed individual lessons can be rescheduled")
	ErrTooManyMembers         = apperror.New(http.StatusBadRequest, apperror.KindValidation, "too many members for a private group")
	ErrMembersRequired        = apperror.New(http.StatusBadRequest, apperror.KindValidation, "a private group needs at least one invited member")
	ErrConcurrentUpdate       = apperror.New(http.StatusConflict, apperror.KindConflict, "booking was changed concurrently, please retry")

	// Re-exported so callers can match every engine failure from this package.
	ErrSessionFull         = groupsession.ErrSessionFull
	ErrRegistrationClosed  = groupsession.ErrRegistrationClosed
	ErrInsufficientCredits = credit.ErrInsufficientCredits
)

// Slot is a half-open interval [Start, End).
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether two half-open intervals intersect. Touching
// intervals do not overlap.
func (s Slot) Overlaps(o Slot) bool {
	return s.Start.Before(o.End) && o.Start.Before(s.End)
}

// HistoryEntry is one append-only record of a status change.
type HistoryEntry struct {
	Status    Status    `json:"status"`
	ChangedAt time.Time `json:"changed_at"`
	Actor     string    `json:"actor"`
	Reason    string    `json:"reason,omitempty"`
}

// Booking is a single reservation. ProductType decides which optional fields
// are present: packages carry no Slot; group and private-group seats carry
// both a Slot and a GroupSessionID; individual lessons carry only a Slot.
type Booking struct {
	ID                    string
	StudentID             string // empty for invited members without an account
	StudentName           string
	StudentEmail          string
	TutorID               string
	Slot                  *Slot // nil for packages
	ProductID             string
	ProductType           product.Type
	Price                 decimal.Decimal
	Status                Status
	History               []HistoryEntry
	GroupSessionID        *string // weak reference
	ParentPackageID       *string // weak reference
	CreditTypeUsed        *string
	WasRedeemedWithCredit bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// CreditType is the ledger lesson type a refund of this booking is issued as.
func (b *Booking) CreditType() string {
	if b.CreditTypeUsed != nil && *b.CreditTypeUsed != "" {
		return *b.CreditTypeUsed
	}
	return b.ProductID
}

// statusBeforeRequest returns the status the booking held when its latest
// cancellation request was made.
func (b *Booking) statusBeforeRequest() (Status, bool) {
	for i := len(b.History) - 1; i > 0; i-- {
		if b.History[i].Status == StatusCancellationRequested {
			return b.History[i-1].Status, true
		}
	}
	return "", false
}

// OwnedBy reports whether the booking belongs to the given user.
func (b *Booking) OwnedBy(userID string) bool {
	return userID != "" && b.StudentID == userID
}

// checkShape enforces the per-variant required fields.
func (b *Booking) checkShape() error {
	switch b.ProductType {
	case product.TypePackage:
		if b.Slot != nil || b.GroupSessionID != nil {
			return ErrInvalidProduct
		}
	case product.TypeIndividual:
		if b.Slot == nil {
			return ErrScheduleRequired
		}
		if b.GroupSessionID != nil {
			return ErrInvalidProduct
		}
	case product.TypeGroup, product.TypePrivateGroup:
		if b.Slot == nil || b.GroupSessionID == nil {
			return ErrInvalidProduct
		}
	default:
		return ErrInvalidProduct
	}
	if b.Slot != nil && !b.Slot.Start.Before(b.Slot.End) {
		return ErrInvalidTimeRange
	}
	return nil
}

// RedirectHint tells the caller where to send the student next.
func (b *Booking) RedirectHint() string {
	if b.Status == StatusPaymentPendingConfirmation || b.Status == StatusAwaitingPayment {
		return "payment"
	}
	return "confirmation"
}

// Actor is the verified caller of an engine operation.
type Actor struct {
	UserID  string
	Email   string
	Name    string
	IsAdmin bool
}

// Label is the actor string written into status history.
func (a Actor) Label() string {
	if a.IsAdmin {
		return "admin:" + a.UserID
	}
	return "student:" + a.UserID
}

// Filter defines parameters for listing bookings.
type Filter struct {
	StudentID      string
	Status         Status
	ProductID      string
	GroupSessionID string
	From           *time.Time // bookings ending at or after
	To             *time.Time // bookings starting at or before
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
