package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nekogravitycat/lesson-booking-backend/internal/auth"
	"github.com/nekogravitycat/lesson-booking-backend/internal/booking"
	gsHttp "github.com/nekogravitycat/lesson-booking-backend/internal/groupsession/http"
	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/apperror"
	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/request"
	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/response"
	"github.com/nekogravitycat/lesson-booking-backend/internal/user"
)

// AdminChecker reports whether a user holds the admin role.
type AdminChecker interface {
	IsAdmin(ctx context.Context, id string) (bool, error)
}

type Handler struct {
	service booking.Service
	roles   AdminChecker
}

func NewHandler(service booking.Service, roles AdminChecker) *Handler {
	return &Handler{
		service: service,
		roles:   roles,
	}
}

const ctxIsAdmin = "bookingIsAdmin"

// ResolveRole looks up the caller's admin flag once per request. It runs after
// the auth middleware. An unknown user is a plain student; a failed lookup
// ends the request with the store error.
func (h *Handler) ResolveRole(c *gin.Context) {
	id := auth.GetUserID(c)
	if id == "" {
		c.Next()
		return
	}

	isAdmin, err := h.roles.IsAdmin(c.Request.Context(), id)
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		response.Error(c, err)
		c.Abort()
		return
	}
	c.Set(ctxIsAdmin, isAdmin)
	c.Next()
}

// actor builds the engine caller from the verified token and the role
// resolved by ResolveRole.
func (h *Handler) actor(c *gin.Context) booking.Actor {
	id := auth.GetIdentity(c)
	return booking.Actor{
		UserID:  id.UserID,
		Email:   id.Email,
		Name:    id.DisplayName,
		IsAdmin: c.GetBool(ctxIsAdmin),
	}
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
}

// writeError renders engine errors. A partially applied reschedule carries
// the credit the student was left with.
func writeError(c *gin.Context, err error) {
	var pf *booking.PartialFailureError
	if errors.As(err, &pf) {
		c.JSON(booking.ErrPartialFailure.Code, PartialFailureResponse{
			Error:             booking.ErrPartialFailure.Message,
			Kind:              string(apperror.KindPartialFailure),
			Cause:             causeMessage(pf.Cause),
			OriginalBookingID: pf.OriginalBookingID,
			CreditType:        pf.CreditType,
		})
		return
	}
	response.Error(c, err)
}

func causeMessage(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}

func (h *Handler) Availability(c *gin.Context) {
	var req AvailabilityRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, err)
		return
	}

	a, err := h.service.GetAvailability(c.Request.Context(), req.Date)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, NewAvailabilityResponse(a))
}

func (h *Handler) List(c *gin.Context) {
	var req ListBookingsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters", "details": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeError(c, err)
		return
	}

	filter := booking.Filter{
		StudentID:      req.StudentID,
		Status:         booking.Status(req.Status),
		ProductID:      req.ProductID,
		GroupSessionID: req.GroupSessionID,
		From:           req.From,
		To:             req.To,
		Page:           req.Page,
		PageSize:       req.PageSize,
		SortBy:         req.SortBy,
		SortOrder:      req.SortOrder,
	}

	bookings, total, err := h.service.ListBookings(c.Request.Context(), h.actor(c), filter)
	if err != nil {
		writeError(c, err)
		return
	}

	items := make([]BookingResponse, len(bookings))
	for i, b := range bookings {
		items[i] = NewBookingResponse(b)
	}

	c.JSON(http.StatusOK, response.NewPageResponse(items, req.Page, req.PageSize, total))
}

func (h *Handler) Get(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err)
		return
	}

	b, err := h.service.GetBooking(c.Request.Context(), h.actor(c), uri.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.service.CreateBooking(c.Request.Context(), h.actor(c), booking.CreateRequest{
		ProductID:      req.ProductID,
		Date:           req.Date,
		Time:           req.Time,
		GroupSessionID: req.GroupSessionID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewReservationResponse(res))
}

func (h *Handler) CreateWithCredit(c *gin.Context) {
	var req CreditBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.service.CreateBookingWithCredit(c.Request.Context(), h.actor(c), booking.CreditBookingRequest{
		CreditType:     req.CreditType,
		Date:           req.Date,
		Time:           req.Time,
		GroupSessionID: req.GroupSessionID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewReservationResponse(res))
}

func (h *Handler) Reschedule(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err)
		return
	}
	var req RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.service.RequestReschedule(c.Request.Context(), h.actor(c), booking.RescheduleRequest{
		BookingID: uri.ID,
		Date:      req.Date,
		Time:      req.Time,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewReservationResponse(res))
}

// UpdateStatus moves a booking along the admin edges of the status machine.
func (h *Handler) UpdateStatus(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err)
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(c, err)
		return
	}

	b, err := h.service.UpdateBookingStatus(c.Request.Context(), h.actor(c), uri.ID, booking.Status(req.Status), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}

func (h *Handler) RequestCancellation(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err)
		return
	}
	var req CancellationRequest
	// The body is optional.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	b, err := h.service.RequestCancellation(c.Request.Context(), h.actor(c), uri.ID, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}

func (h *Handler) DeclineCancellation(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err)
		return
	}
	var req CancellationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	b, err := h.service.DeclineCancellation(c.Request.Context(), h.actor(c), uri.ID, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}

func (h *Handler) PaymentSubmitted(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err)
		return
	}

	b, err := h.service.ConfirmPaymentSubmitted(c.Request.Context(), h.actor(c), uri.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}

func (h *Handler) Delete(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err)
		return
	}

	if err := h.service.DeleteBooking(c.Request.Context(), h.actor(c), uri.ID); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) ListTimeOff(c *gin.Context) {
	var req ListTimeOffRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters", "details": err.Error()})
		return
	}

	blocks, err := h.service.ListTimeOff(c.Request.Context(), req.From, req.To)
	if err != nil {
		writeError(c, err)
		return
	}

	items := make([]TimeOffResponse, len(blocks))
	for i, b := range blocks {
		items[i] = NewTimeOffResponse(b)
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) BlockTime(c *gin.Context) {
	var req BlockTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(c, err)
		return
	}

	block, err := h.service.BlockTime(c.Request.Context(), h.actor(c), booking.BlockRequest{
		Start: req.StartTime,
		End:   req.EndTime,
		Note:  req.Note,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewTimeOffResponse(block))
}

func (h *Handler) UnblockTime(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err)
		return
	}

	if err := h.service.UnblockTime(c.Request.Context(), h.actor(c), uri.ID); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// MyCredits lists the caller's own credit ledger.
func (h *Handler) MyCredits(c *gin.Context) {
	a := h.actor(c)
	ledger, err := h.service.ListCredits(c.Request.Context(), a, a.UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, NewLedgerResponse(ledger))
}

func (h *Handler) StudentCredits(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err)
		return
	}

	ledger, err := h.service.ListCredits(c.Request.Context(), h.actor(c), uri.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, NewLedgerResponse(ledger))
}

func (h *Handler) GrantCredits(c *gin.Context) {
	var req GrantCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ledger, err := h.service.GrantCredits(c.Request.Context(), h.actor(c), req.StudentID, req.LessonType, req.Count)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, NewLedgerResponse(ledger))
}

func (h *Handler) CreateGroupSession(c *gin.Context) {
	var req CreateGroupSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	gs, err := h.service.CreateGroupSession(c.Request.Context(), h.actor(c), booking.GroupSessionRequest{
		ProductID:   req.ProductID,
		Title:       req.Title,
		Date:        req.Date,
		Time:        req.Time,
		MaxStudents: req.MaxStudents,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gsHttp.NewResponse(gs))
}

func (h *Handler) JoinGroupSession(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.service.JoinGroupSession(c.Request.Context(), h.actor(c), uri.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewReservationResponse(res))
}

func (h *Handler) CancelGroupSession(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err)
		return
	}
	var req CancelGroupSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	gs, err := h.service.CancelGroupSession(c.Request.Context(), h.actor(c), uri.ID, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gsHttp.NewResponse(gs))
}

func (h *Handler) CreatePrivateGroup(c *gin.Context) {
	var req CreatePrivateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	a := h.actor(c)
	res, err := h.service.CreatePrivateGroup(c.Request.Context(), a, booking.PrivateGroupRequest{
		LeaderID:     a.UserID,
		ProductID:    req.ProductID,
		Date:         req.Date,
		Time:         req.Time,
		MemberEmails: req.MemberEmails,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewPrivateGroupResponse(res))
}
