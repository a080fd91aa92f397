package booking

import (
	"context"
	"testing"
	"time"

	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/events"
	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/inflight"
	"github.com/nekogravitycat/lesson-booking-backend/internal/product"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateBookingStatus(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	b := e.book(t, ann, "lesson-60", "2030-01-10", "10:00")

	_, err := e.UpdateBookingStatus(ctx, ann, b.ID, StatusConfirmed, "")
	assert.ErrorIs(t, err, ErrAuthMismatch)

	b, err = e.UpdateBookingStatus(ctx, tutor, b.ID, StatusConfirmed, "bank transfer received")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, b.Status)
	require.Len(t, b.History, 2)
	assert.Equal(t, "admin:"+tutor.UserID, b.History[1].Actor)
	assert.Equal(t, "bank transfer received", b.History[1].Reason)

	changed := e.events.ofType(events.TypeBookingStatusChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, string(StatusPaymentPendingConfirmation), changed[0].PreviousStatus)
	assert.Equal(t, string(StatusConfirmed), changed[0].Status)

	_, err = e.UpdateBookingStatus(ctx, tutor, b.ID, StatusCompleted, "")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	_, err = e.UpdateBookingStatus(ctx, tutor, b.ID, Status("bogus"), "")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	_, err = e.UpdateBookingStatus(ctx, tutor, b.ID, StatusInProgress, "")
	require.NoError(t, err)
	b, err = e.UpdateBookingStatus(ctx, tutor, b.ID, StatusCompleted, "")
	require.NoError(t, err)
	assert.Len(t, b.History, 4)

	// Terminal.
	_, err = e.UpdateBookingStatus(ctx, tutor, b.ID, StatusNoShow, "")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	_, err = e.UpdateBookingStatus(ctx, tutor, "missing", StatusConfirmed, "")
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := e.GetBooking(ctx, ann, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
	assert.Len(t, stored.History, 4)
}

func TestUpdateBookingStatus_InFlight(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	b := e.book(t, ann, "lesson-60", "2030-01-10", "10:00")

	release, err := e.inflight.Begin(b.ID, string(StatusRefunded))
	require.NoError(t, err)

	_, err = e.UpdateBookingStatus(ctx, tutor, b.ID, StatusConfirmed, "")
	assert.ErrorIs(t, err, inflight.ErrInFlight)
	assert.Contains(t, err.Error(), string(StatusRefunded))

	release()
	_, err = e.UpdateBookingStatus(ctx, tutor, b.ID, StatusConfirmed, "")
	assert.NoError(t, err)
}

func TestUpdateBookingStatus_ReconfirmRechecksSlot(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	b := e.confirmed(t, ann, "2030-01-10", "10:00")
	_, err := e.RequestCancellation(ctx, ann, b.ID, "sick")
	require.NoError(t, err)

	// A pending cancellation does not hold the slot.
	e.book(t, ben, "lesson-60", "2030-01-10", "10:00")

	_, err = e.UpdateBookingStatus(ctx, tutor, b.ID, StatusConfirmed, "cancellation declined")
	assert.ErrorIs(t, err, ErrSlotAlreadyBooked)

	stored, err := e.GetBooking(ctx, tutor, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancellationRequested, stored.Status)
}

func TestDeclineCancellation(t *testing.T) {
	ctx := context.Background()

	t.Run("Returns To Awaiting Payment", func(t *testing.T) {
		e := newEngine(t)
		start := time.Date(2030, 1, 10, 10, 0, 0, 0, time.UTC)
		b := &Booking{
			StudentID:    ann.UserID,
			StudentEmail: ann.Email,
			TutorID:      "tutor",
			Slot:         &Slot{Start: start, End: start.Add(time.Hour)},
			ProductID:    "lesson-60",
			ProductType:  product.TypeIndividual,
			Price:        decimal.NewFromInt(50),
			Status:       StatusAwaitingPayment,
			History:      []HistoryEntry{{Status: StatusAwaitingPayment, ChangedAt: testNow, Actor: "student:" + ann.UserID}},
		}
		e.store.put(b)

		_, err := e.RequestCancellation(ctx, ann, b.ID, "")
		require.NoError(t, err)

		// Confirming would skip the unpaid balance.
		_, err = e.UpdateBookingStatus(ctx, tutor, b.ID, StatusConfirmed, "")
		assert.ErrorIs(t, err, ErrInvalidStateTransition)

		_, err = e.DeclineCancellation(ctx, ann, b.ID, "")
		assert.ErrorIs(t, err, ErrAuthMismatch)

		got, err := e.DeclineCancellation(ctx, tutor, b.ID, "")
		require.NoError(t, err)
		assert.Equal(t, StatusAwaitingPayment, got.Status)
		require.Len(t, got.History, 3)
		assert.Equal(t, "cancellation declined", got.History[2].Reason)
	})

	t.Run("Returns To Confirmed", func(t *testing.T) {
		e := newEngine(t)
		b := e.confirmed(t, ann, "2030-01-10", "10:00")
		_, err := e.RequestCancellation(ctx, ann, b.ID, "")
		require.NoError(t, err)

		_, err = e.UpdateBookingStatus(ctx, tutor, b.ID, StatusAwaitingPayment, "")
		assert.ErrorIs(t, err, ErrInvalidStateTransition)

		got, err := e.DeclineCancellation(ctx, tutor, b.ID, "still on")
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, got.Status)

		_, err = e.DeclineCancellation(ctx, tutor, b.ID, "")
		assert.ErrorIs(t, err, ErrInvalidStateTransition, "nothing pending")
	})
}

func TestRequestCancellation(t *testing.T) {
	ctx := context.Background()

	t.Run("Credit Issued", func(t *testing.T) {
		e := newEngine(t)
		b := e.confirmed(t, ann, "2030-01-10", "10:00")

		_, err := e.RequestCancellation(ctx, ben, b.ID, "")
		assert.ErrorIs(t, err, ErrAuthMismatch)

		b, err = e.RequestCancellation(ctx, ann, b.ID, "travelling")
		require.NoError(t, err)
		assert.Equal(t, StatusCancellationRequested, b.Status)

		b, err = e.UpdateBookingStatus(ctx, tutor, b.ID, StatusCreditIssued, "")
		require.NoError(t, err)
		assert.Equal(t, StatusCreditIssued, b.Status)
		assert.Equal(t, 1, e.balance(t, ann, "lesson-60"))

		_, err = e.CreateBookingWithCredit(ctx, ann, CreditBookingRequest{CreditType: "lesson-60", Date: "2030-01-12", Time: "10:00"})
		require.NoError(t, err)
		assert.Equal(t, 0, e.balance(t, ann, "lesson-60"))
	})

	t.Run("Too Late For An Individual Lesson", func(t *testing.T) {
		e := newEngine(t)
		b := e.confirmed(t, ann, "2030-01-07", "18:00")

		_, err := e.RequestCancellation(ctx, ann, b.ID, "")
		assert.ErrorIs(t, err, ErrCancellationTooLate)
	})

	t.Run("Group Seats Use The Shorter Lead", func(t *testing.T) {
		e := newEngine(t)
		gs, err := e.CreateGroupSession(ctx, tutor, GroupSessionRequest{ProductID: "group-90", Date: "2030-01-07", Time: "12:00", MaxStudents: 4})
		require.NoError(t, err)

		res, err := e.JoinGroupSession(ctx, ann, gs.ID)
		require.NoError(t, err)
		_, err = e.UpdateBookingStatus(ctx, tutor, res.Booking.ID, StatusConfirmed, "")
		require.NoError(t, err)

		b, err := e.RequestCancellation(ctx, ann, res.Booking.ID, "")
		require.NoError(t, err)
		assert.Equal(t, StatusCancellationRequested, b.Status)
	})

	t.Run("Group Seat Credit Joins Another Session", func(t *testing.T) {
		e := newEngine(t)
		first, err := e.CreateGroupSession(ctx, tutor, GroupSessionRequest{ProductID: "group-90", Date: "2030-01-10", Time: "17:00", MaxStudents: 4})
		require.NoError(t, err)
		second, err := e.CreateGroupSession(ctx, tutor, GroupSessionRequest{ProductID: "group-90", Date: "2030-01-12", Time: "17:00", MaxStudents: 4})
		require.NoError(t, err)

		res, err := e.JoinGroupSession(ctx, ann, first.ID)
		require.NoError(t, err)
		_, err = e.UpdateBookingStatus(ctx, tutor, res.Booking.ID, StatusConfirmed, "")
		require.NoError(t, err)
		_, err = e.RequestCancellation(ctx, ann, res.Booking.ID, "")
		require.NoError(t, err)

		b, err := e.UpdateBookingStatus(ctx, tutor, res.Booking.ID, StatusCreditIssued, "")
		require.NoError(t, err)
		assert.Equal(t, StatusCreditIssued, b.Status)
		assert.Equal(t, 1, e.balance(t, ann, "group-90"))

		_, err = e.CreateBookingWithCredit(ctx, ann, CreditBookingRequest{CreditType: "group-90", Date: "2030-01-12", Time: "17:00"})
		assert.ErrorIs(t, err, ErrInvalidCreditMapping, "group credits need a session")

		seat, err := e.CreateBookingWithCredit(ctx, ann, CreditBookingRequest{CreditType: "group-90", GroupSessionID: second.ID})
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, seat.Booking.Status)
		require.NotNil(t, seat.Booking.GroupSessionID)
		assert.Equal(t, second.ID, *seat.Booking.GroupSessionID)
		assert.True(t, seat.Booking.Price.IsZero())
		assert.Equal(t, 0, e.balance(t, ann, "group-90"))

		gs, err := e.store.Sessions().GetByID(ctx, second.ID, false)
		require.NoError(t, err)
		assert.Equal(t, 1, gs.ParticipantCount)
	})

	t.Run("Pending Payment Cannot Request Cancellation", func(t *testing.T) {
		e := newEngine(t)
		b := e.book(t, ann, "lesson-60", "2030-01-10", "10:00")

		_, err := e.RequestCancellation(ctx, ann, b.ID, "")
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})
}

func TestPackageCancellation(t *testing.T) {
	ctx := context.Background()

	t.Run("Credit Issue Is Rejected For Packages", func(t *testing.T) {
		e := newEngine(t)
		pack := e.book(t, ann, "pack-5", "", "")
		_, err := e.UpdateBookingStatus(ctx, tutor, pack.ID, StatusConfirmed, "")
		require.NoError(t, err)
		_, err = e.RequestCancellation(ctx, ann, pack.ID, "changed my mind")
		require.NoError(t, err)

		_, err = e.UpdateBookingStatus(ctx, tutor, pack.ID, StatusCreditIssued, "")
		assert.ErrorIs(t, err, ErrInvalidCreditMapping)
		assert.Equal(t, 5, e.balance(t, ann, "pack-5"))

		_, err = e.UpdateBookingStatus(ctx, tutor, pack.ID, StatusRefunded, "")
		require.NoError(t, err)
		assert.Equal(t, 0, e.balance(t, ann, "pack-5"))
	})

	t.Run("Admin Cancel Revokes Unused Credits", func(t *testing.T) {
		e := newEngine(t)
		pack := e.book(t, ann, "pack-5", "", "")

		lesson, err := e.CreateBookingWithCredit(ctx, ann, CreditBookingRequest{CreditType: "pack-5", Date: "2030-01-10", Time: "10:00"})
		require.NoError(t, err)
		assert.Equal(t, 4, e.balance(t, ann, "pack-5"))

		_, err = e.UpdateBookingStatus(ctx, tutor, pack.ID, StatusCancelledByAdmin, "payment never arrived")
		require.NoError(t, err)
		assert.Equal(t, 0, e.balance(t, ann, "pack-5"))

		stored, err := e.GetBooking(ctx, ann, lesson.Booking.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, stored.Status)
	})
}

func TestConfirmPaymentSubmitted(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	start := time.Date(2030, 1, 10, 10, 0, 0, 0, time.UTC)
	b := &Booking{
		StudentID:    ann.UserID,
		StudentEmail: ann.Email,
		TutorID:      "tutor",
		Slot:         &Slot{Start: start, End: start.Add(time.Hour)},
		ProductID:    "lesson-60",
		ProductType:  product.TypeIndividual,
		Price:        decimal.NewFromInt(50),
		Status:       StatusAwaitingPayment,
	}
	e.store.put(b)

	_, err := e.ConfirmPaymentSubmitted(ctx, ben, b.ID)
	assert.ErrorIs(t, err, ErrAuthMismatch)

	got, err := e.ConfirmPaymentSubmitted(ctx, ann, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaymentPendingConfirmation, got.Status)

	_, err = e.ConfirmPaymentSubmitted(ctx, ann, b.ID)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestBookingAccess(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	mine := e.book(t, ann, "lesson-60", "2030-01-10", "10:00")
	e.book(t, ben, "lesson-60", "2030-01-10", "12:00")

	_, err := e.GetBooking(ctx, ben, mine.ID)
	assert.ErrorIs(t, err, ErrAuthMismatch)

	// Students only ever see their own bookings.
	list, total, err := e.ListBookings(ctx, ann, Filter{StudentID: ben.UserID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, mine.ID, list[0].ID)

	_, total, err = e.ListBookings(ctx, tutor, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	assert.ErrorIs(t, e.DeleteBooking(ctx, ann, mine.ID), ErrAuthMismatch)
	require.NoError(t, e.DeleteBooking(ctx, tutor, mine.ID))
	_, err = e.GetBooking(ctx, tutor, mine.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	e.book(t, cara, "lesson-60", "2030-01-10", "10:00")
}
