package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/events"
	"github.com/nekogravitycat/lesson-booking-backend/internal/product"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestReschedule(t *testing.T) {
	ctx := context.Background()

	t.Run("Moves A Paid Lesson", func(t *testing.T) {
		e := newEngine(t)
		orig := e.confirmed(t, ann, "2030-01-10", "10:00")

		res, err := e.RequestReschedule(ctx, ann, RescheduleRequest{BookingID: orig.ID, Date: "2030-01-11", Time: "15:00"})
		require.NoError(t, err)

		b := res.Booking
		assert.Equal(t, StatusConfirmed, b.Status)
		assert.Equal(t, time.Date(2030, 1, 11, 15, 0, 0, 0, time.UTC), b.Slot.Start)
		require.NotNil(t, b.CreditTypeUsed)
		assert.Equal(t, "lesson-60", *b.CreditTypeUsed)
		assert.True(t, b.WasRedeemedWithCredit)
		assert.Equal(t, 0, e.balance(t, ann, "lesson-60"))

		old, err := e.GetBooking(ctx, ann, orig.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, old.Status)
		assert.Equal(t, "rescheduled", old.History[len(old.History)-1].Reason)

		moved := e.events.ofType(events.TypeBookingRescheduled)
		require.Len(t, moved, 1)
		assert.Equal(t, b.ID, moved[0].BookingID)
		assert.Equal(t, orig.ID, moved[0].RelatedID)
	})

	t.Run("Package Lesson Keeps Its Parent", func(t *testing.T) {
		e := newEngine(t)
		pack := e.book(t, ann, "pack-5", "", "")
		first, err := e.CreateBookingWithCredit(ctx, ann, CreditBookingRequest{CreditType: "pack-5", Date: "2030-01-10", Time: "10:00"})
		require.NoError(t, err)

		// Overlapping its own old slot is fine.
		res, err := e.RequestReschedule(ctx, ann, RescheduleRequest{BookingID: first.Booking.ID, Date: "2030-01-10", Time: "10:30"})
		require.NoError(t, err)
		require.NotNil(t, res.Booking.ParentPackageID)
		assert.Equal(t, pack.ID, *res.Booking.ParentPackageID)
		assert.Equal(t, "pack-5", *res.Booking.CreditTypeUsed)
		assert.Equal(t, 4, e.balance(t, ann, "pack-5"))
	})

	t.Run("Unavailable Target Leaves The Original", func(t *testing.T) {
		e := newEngine(t)
		orig := e.confirmed(t, ann, "2030-01-10", "10:00")
		e.book(t, ben, "lesson-60", "2030-01-11", "15:00")

		_, err := e.RequestReschedule(ctx, ann, RescheduleRequest{BookingID: orig.ID, Date: "2030-01-11", Time: "15:00"})
		assert.ErrorIs(t, err, ErrSlotAlreadyBooked)

		var pf *PartialFailureError
		assert.False(t, errors.As(err, &pf))

		stored, err := e.GetBooking(ctx, ann, orig.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, stored.Status)
		assert.Equal(t, 0, e.balance(t, ann, "lesson-60"))
	})

	t.Run("Rejected Originals", func(t *testing.T) {
		e := newEngine(t)
		pending := e.book(t, ann, "lesson-60", "2030-01-10", "10:00")
		late := e.confirmed(t, ann, "2030-01-07", "18:00")
		pack := e.book(t, ann, "pack-5", "", "")

		_, err := e.RequestReschedule(ctx, ann, RescheduleRequest{BookingID: pending.ID, Date: "2030-01-11", Time: "10:00"})
		assert.ErrorIs(t, err, ErrNotReschedulable)

		_, err = e.RequestReschedule(ctx, ann, RescheduleRequest{BookingID: pack.ID, Date: "2030-01-11", Time: "10:00"})
		assert.ErrorIs(t, err, ErrNotReschedulable)

		_, err = e.RequestReschedule(ctx, ann, RescheduleRequest{BookingID: late.ID, Date: "2030-01-11", Time: "10:00"})
		assert.ErrorIs(t, err, ErrCancellationTooLate)

		_, err = e.RequestReschedule(ctx, ben, RescheduleRequest{BookingID: late.ID, Date: "2030-01-11", Time: "10:00"})
		assert.ErrorIs(t, err, ErrAuthMismatch)
	})

	t.Run("Group Seats Cannot Be Rescheduled", func(t *testing.T) {
		e := newEngine(t)
		gs, err := e.CreateGroupSession(ctx, tutor, GroupSessionRequest{ProductID: "group-90", Date: "2030-01-10", Time: "17:00", MaxStudents: 3})
		require.NoError(t, err)
		seat, err := e.JoinGroupSession(ctx, ann, gs.ID)
		require.NoError(t, err)
		assert.Equal(t, product.TypeGroup, seat.Booking.ProductType)

		_, err = e.RequestReschedule(ctx, ann, RescheduleRequest{BookingID: seat.Booking.ID, Date: "2030-01-11", Time: "10:00"})
		assert.ErrorIs(t, err, ErrNotReschedulable)
	})
}

// The second half fails after the first committed: another request takes
// the target slot in between.
func TestRequestReschedule_PartialFailure(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	orig := e.confirmed(t, ann, "2030-01-10", "10:00")

	target := time.Date(2030, 1, 11, 15, 0, 0, 0, time.UTC)
	var once sync.Once
	e.store.afterCommit = func() {
		once.Do(func() {
			e.store.put(&Booking{
				StudentID:    ben.UserID,
				StudentEmail: ben.Email,
				TutorID:      "tutor",
				Slot:         &Slot{Start: target, End: target.Add(time.Hour)},
				ProductID:    "lesson-60",
				ProductType:  product.TypeIndividual,
				Status:       StatusConfirmed,
			})
		})
	}

	_, err := e.RequestReschedule(ctx, ann, RescheduleRequest{BookingID: orig.ID, Date: "2030-01-11", Time: "15:00"})
	require.Error(t, err)

	var pf *PartialFailureError
	require.True(t, errors.As(err, &pf))
	assert.Equal(t, orig.ID, pf.OriginalBookingID)
	assert.Equal(t, "lesson-60", pf.CreditType)
	assert.ErrorIs(t, err, ErrPartialFailure)
	assert.NotErrorIs(t, err, ErrSlotAlreadyBooked, "the cause is only reachable through the field")
	assert.ErrorIs(t, pf.Cause, ErrSlotAlreadyBooked)

	old, err := e.GetBooking(ctx, ann, orig.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, old.Status)
	assert.Equal(t, 1, e.balance(t, ann, "lesson-60"))

	list, _, err := e.ListBookings(ctx, ann, Filter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Empty(t, e.events.ofType(events.TypeBookingRescheduled))
}
