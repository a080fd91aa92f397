package http

import (
	"time"

	"github.com/nekogravitycat/lesson-booking-backend/internal/booking"
	"github.com/nekogravitycat/lesson-booking-backend/internal/credit"
	gsHttp "github.com/nekogravitycat/lesson-booking-backend/internal/groupsession/http"
	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/request"
	"github.com/nekogravitycat/lesson-booking-backend/internal/timeoff"
)

// ListBookingsRequest defines query parameters for listing bookings.
type ListBookingsRequest struct {
	request.ListParams
	Status         string     `form:"status" binding:"omitempty,oneof=awaiting-payment payment-pending-confirmation confirmed in-progress completed no-show cancellation-requested cancelled cancelled-by-admin refunded credit-issued rescheduled"`
	StudentID      string     `form:"student_id" binding:"omitempty,uuid"`
	ProductID      string     `form:"product_id"`
	GroupSessionID string     `form:"group_session_id" binding:"omitempty,uuid"`
	From           *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To             *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	SortBy         string     `form:"sort_by" binding:"omitempty,oneof=start_time created_at status"`
}

// Validate performs custom validation for ListBookingsRequest.
func (r *ListBookingsRequest) Validate() error {
	if r.From != nil && r.To != nil && r.From.After(*r.To) {
		return booking.ErrInvalidTimeRange
	}
	return nil
}

type HistoryResponse struct {
	Status    string    `json:"status"`
	ChangedAt time.Time `json:"changed_at"`
	Actor     string    `json:"actor"`
	Reason    string    `json:"reason,omitempty"`
}

type BookingResponse struct {
	ID                    string            `json:"id"`
	StudentID             string            `json:"student_id,omitempty"`
	StudentName           string            `json:"student_name"`
	StudentEmail          string            `json:"student_email"`
	TutorID               string            `json:"tutor_id"`
	StartTime             *time.Time        `json:"start_time,omitempty"`
	EndTime               *time.Time        `json:"end_time,omitempty"`
	ProductID             string            `json:"product_id"`
	ProductType           string            `json:"product_type"`
	Price                 string            `json:"price"`
	Status                string            `json:"status"`
	StatusHistory         []HistoryResponse `json:"status_history"`
	GroupSessionID        *string           `json:"group_session_id,omitempty"`
	ParentPackageID       *string           `json:"parent_package_id,omitempty"`
	CreditTypeUsed        *string           `json:"credit_type_used,omitempty"`
	WasRedeemedWithCredit bool              `json:"was_redeemed_with_credit"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

func NewBookingResponse(b *booking.Booking) BookingResponse {
	resp := BookingResponse{
		ID:                    b.ID,
		StudentID:             b.StudentID,
		StudentName:           b.StudentName,
		StudentEmail:          b.StudentEmail,
		TutorID:               b.TutorID,
		ProductID:             b.ProductID,
		ProductType:           string(b.ProductType),
		Price:                 b.Price.StringFixed(2),
		Status:                string(b.Status),
		StatusHistory:         make([]HistoryResponse, len(b.History)),
		GroupSessionID:        b.GroupSessionID,
		ParentPackageID:       b.ParentPackageID,
		CreditTypeUsed:        b.CreditTypeUsed,
		WasRedeemedWithCredit: b.WasRedeemedWithCredit,
		CreatedAt:             b.CreatedAt,
		UpdatedAt:             b.UpdatedAt,
	}
	if b.Slot != nil {
		start, end := b.Slot.Start, b.Slot.End
		resp.StartTime = &start
		resp.EndTime = &end
	}
	for i, h := range b.History {
		resp.StatusHistory[i] = HistoryResponse{
			Status:    string(h.Status),
			ChangedAt: h.ChangedAt,
			Actor:     h.Actor,
			Reason:    h.Reason,
		}
	}
	return resp
}

// ReservationResponse is returned by every endpoint that creates a booking.
type ReservationResponse struct {
	Booking      BookingResponse `json:"booking"`
	RedirectHint string          `json:"redirect_hint"`
}

func NewReservationResponse(r *booking.Result) ReservationResponse {
	return ReservationResponse{Booking: NewBookingResponse(r.Booking), RedirectHint: r.RedirectHint}
}

type CreateBookingRequest struct {
	ProductID      string `json:"product_id" binding:"required"`
	Date           string `json:"date" binding:"omitempty,datetime=2006-01-02"`
	Time           string `json:"time" binding:"omitempty,datetime=15:04"`
	GroupSessionID string `json:"group_session_id" binding:"omitempty,uuid"`
}

type CreditBookingRequest struct {
	CreditType     string `json:"credit_type" binding:"required"`
	Date           string `json:"date" binding:"omitempty,datetime=2006-01-02"`
	Time           string `json:"time" binding:"omitempty,datetime=15:04"`
	GroupSessionID string `json:"group_session_id" binding:"omitempty,uuid"`
}

type RescheduleRequest struct {
	Date string `json:"date" binding:"required,datetime=2006-01-02"`
	Time string `json:"time" binding:"required,datetime=15:04"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason" binding:"max=500"`
}

// Validate performs custom validation for UpdateStatusRequest.
func (r *UpdateStatusRequest) Validate() error {
	if !booking.Status(r.Status).Valid() {
		return booking.ErrInvalidStateTransition
	}
	return nil
}

type CancellationRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// PartialFailureResponse tells the student the original lesson is gone and
// which credit they can spend instead.
type PartialFailureResponse struct {
	Error             string `json:"error"`
	Kind              string `json:"kind"`
	Cause             string `json:"cause"`
	OriginalBookingID string `json:"original_booking_id"`
	CreditType        string `json:"credit_type"`
}

type AvailabilityRequest struct {
	Date string `form:"date" binding:"required,datetime=2006-01-02"`
}

type SlotResponse struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// BusyResponse is the public view of a held interval. Student details are
// not exposed.
type BusyResponse struct {
	Kind      string    `json:"kind"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type AvailabilityResponse struct {
	TutorID       string                        `json:"tutor_id"`
	Date          string                        `json:"date"`
	Busy          []BusyResponse                `json:"busy"`
	GroupSessions []gsHttp.GroupSessionResponse `json:"group_sessions"`
	FreeSlots     []SlotResponse                `json:"free_slots"`
}

func NewAvailabilityResponse(a *booking.Availability) AvailabilityResponse {
	resp := AvailabilityResponse{
		TutorID:       a.TutorID,
		Date:          a.Date,
		Busy:          []BusyResponse{},
		GroupSessions: make([]gsHttp.GroupSessionResponse, len(a.GroupSessions)),
		FreeSlots:     make([]SlotResponse, len(a.FreeSlots)),
	}
	for _, b := range a.Bookings {
		if b.Slot == nil || b.GroupSessionID != nil {
			continue
		}
		resp.Busy = append(resp.Busy, BusyResponse{Kind: "booking", StartTime: b.Slot.Start, EndTime: b.Slot.End})
	}
	for _, blk := range a.TimeOff {
		resp.Busy = append(resp.Busy, BusyResponse{Kind: "time-off", StartTime: blk.Start, EndTime: blk.End})
	}
	for i, gs := range a.GroupSessions {
		resp.GroupSessions[i] = gsHttp.NewResponse(gs)
	}
	for i, s := range a.FreeSlots {
		resp.FreeSlots[i] = SlotResponse{StartTime: s.Start, EndTime: s.End}
	}
	return resp
}

type ListTimeOffRequest struct {
	From time.Time `form:"from" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
	To   time.Time `form:"to" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
}

type BlockTimeRequest struct {
	StartTime time.Time `json:"start_time" binding:"required"`
	EndTime   time.Time `json:"end_time" binding:"required"`
	Note      string    `json:"note" binding:"max=500"`
}

// Validate performs custom validation for BlockTimeRequest.
func (r *BlockTimeRequest) Validate() error {
	if !r.StartTime.Before(r.EndTime) {
		return timeoff.ErrInvalidRange
	}
	return nil
}

type TimeOffResponse struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Note      string    `json:"note,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

func NewTimeOffResponse(b *timeoff.Block) TimeOffResponse {
	return TimeOffResponse{
		ID:        b.ID,
		StartTime: b.Start,
		EndTime:   b.End,
		Note:      b.Note,
		CreatedBy: b.CreatedBy,
		CreatedAt: b.CreatedAt,
	}
}

type CreditEntryResponse struct {
	LessonType       string    `json:"lesson_type"`
	Count            int       `json:"count"`
	PurchasedAt      time.Time `json:"purchased_at"`
	PackageBookingID *string   `json:"package_booking_id,omitempty"`
}

type LedgerResponse struct {
	StudentID string                `json:"student_id"`
	Credits   []CreditEntryResponse `json:"credits"`
}

func NewLedgerResponse(l *credit.Ledger) LedgerResponse {
	resp := LedgerResponse{StudentID: l.StudentID, Credits: make([]CreditEntryResponse, 0, len(l.Entries))}
	for _, e := range l.Entries {
		if e.Count <= 0 {
			continue
		}
		resp.Credits = append(resp.Credits, CreditEntryResponse{
			LessonType:       e.LessonType,
			Count:            e.Count,
			PurchasedAt:      e.PurchasedAt,
			PackageBookingID: e.PackageBookingID,
		})
	}
	return resp
}

type GrantCreditsRequest struct {
	StudentID  string `json:"student_id" binding:"required,uuid"`
	LessonType string `json:"lesson_type" binding:"required"`
	Count      int    `json:"count" binding:"required,min=1,max=100"`
}

type CreateGroupSessionRequest struct {
	ProductID   string `json:"product_id" binding:"required"`
	Title       string `json:"title" binding:"max=200"`
	Date        string `json:"date" binding:"required,datetime=2006-01-02"`
	Time        string `json:"time" binding:"required,datetime=15:04"`
	MaxStudents int    `json:"max_students" binding:"required,min=1,max=100"`
}

type CancelGroupSessionRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type CreatePrivateGroupRequest struct {
	ProductID    string   `json:"product_id" binding:"required"`
	Date         string   `json:"date" binding:"required,datetime=2006-01-02"`
	Time         string   `json:"time" binding:"required,datetime=15:04"`
	MemberEmails []string `json:"member_emails" binding:"required,min=1,dive,email"`
}

type PrivateGroupResponse struct {
	Session  gsHttp.GroupSessionResponse `json:"session"`
	Bookings []BookingResponse           `json:"bookings"`
}

func NewPrivateGroupResponse(r *booking.PrivateGroupResult) PrivateGroupResponse {
	resp := PrivateGroupResponse{
		Session:  gsHttp.NewResponse(r.Session),
		Bookings: make([]BookingResponse, len(r.Bookings)),
	}
	for i, b := range r.Bookings {
		resp.Bookings[i] = NewBookingResponse(b)
	}
	return resp
}
