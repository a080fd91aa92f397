package booking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/events"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBooking_Individual(t *testing.T) {
	ctx := context.Background()

	t.Run("Paid Lesson Awaits Payment Confirmation", func(t *testing.T) {
		e := newEngine(t)

		res, err := e.CreateBooking(ctx, ann, CreateRequest{ProductID: "lesson-60", Date: "2030-01-10", Time: "10:00"})
		require.NoError(t, err)

		b := res.Booking
		assert.NotEmpty(t, b.ID)
		assert.Equal(t, StatusPaymentPendingConfirmation, b.Status)
		assert.Equal(t, "payment", res.RedirectHint)
		assert.Equal(t, ann.UserID, b.StudentID)
		assert.Equal(t, "Ann", b.StudentName)
		assert.Equal(t, "tutor", b.TutorID)
		require.NotNil(t, b.Slot)
		assert.Equal(t, time.Date(2030, 1, 10, 10, 0, 0, 0, time.UTC), b.Slot.Start)
		assert.Equal(t, time.Date(2030, 1, 10, 11, 0, 0, 0, time.UTC), b.Slot.End)
		assert.True(t, b.Price.Equal(decimal.NewFromInt(50)))
		assert.False(t, b.WasRedeemedWithCredit)

		require.Len(t, b.History, 1)
		assert.Equal(t, StatusPaymentPendingConfirmation, b.History[0].Status)
		assert.Equal(t, "student:"+ann.UserID, b.History[0].Actor)

		created := e.events.ofType(events.TypeBookingCreated)
		require.Len(t, created, 1)
		assert.Equal(t, b.ID, created[0].BookingID)
	})

	t.Run("Free Lesson Is Confirmed", func(t *testing.T) {
		e := newEngine(t)

		res, err := e.CreateBooking(ctx, ann, CreateRequest{ProductID: "trial-30", Date: "2030-01-10", Time: "10:00"})
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, res.Booking.Status)
		assert.Equal(t, "confirmation", res.RedirectHint)
		assert.Equal(t, 30*time.Minute, res.Booking.Slot.End.Sub(res.Booking.Slot.Start))
	})
}

func TestCreateBooking_Validation(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	tests := []struct {
		name  string
		actor Actor
		req   CreateRequest
		want  error
	}{
		{"Anonymous", Actor{}, CreateRequest{ProductID: "lesson-60", Date: "2030-01-10", Time: "10:00"}, ErrUnauthenticated},
		{"Unknown Product", ann, CreateRequest{ProductID: "nope", Date: "2030-01-10", Time: "10:00"}, ErrInvalidProduct},
		{"Inactive Product", ann, CreateRequest{ProductID: "retired", Date: "2030-01-10", Time: "10:00"}, ErrInvalidProduct},
		{"Missing Schedule", ann, CreateRequest{ProductID: "lesson-60"}, ErrScheduleRequired},
		{"Bad Date", ann, CreateRequest{ProductID: "lesson-60", Date: "10/01/2030", Time: "10:00"}, ErrInvalidDateTime},
		{"Past Slot", ann, CreateRequest{ProductID: "lesson-60", Date: "2030-01-06", Time: "10:00"}, ErrStartTimePast},
		{"Private Group Needs Invites", ann, CreateRequest{ProductID: "private-60", Date: "2030-01-10", Time: "10:00"}, ErrInvalidProduct},
		{"Group Needs Session", ann, CreateRequest{ProductID: "group-90", Date: "2030-01-10", Time: "10:00"}, ErrInvalidProduct},
		{"Lesson With Session", ann, CreateRequest{ProductID: "lesson-60", Date: "2030-01-10", Time: "10:00", GroupSessionID: "x"}, ErrInvalidProduct},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.CreateBooking(ctx, tt.actor, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	list, _, err := e.store.Bookings().List(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateBooking_Conflicts(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	first := e.book(t, ann, "lesson-60", "2030-01-10", "10:00")

	_, err := e.CreateBooking(ctx, ben, CreateRequest{ProductID: "lesson-60", Date: "2030-01-10", Time: "10:30"})
	assert.ErrorIs(t, err, ErrSlotAlreadyBooked)

	// Touching intervals do not overlap.
	e.book(t, ben, "lesson-60", "2030-01-10", "11:00")
	e.book(t, cara, "lesson-60", "2030-01-10", "09:00")

	// A cancelled booking releases its slot.
	_, err = e.UpdateBookingStatus(ctx, tutor, first.ID, StatusCancelledByAdmin, "")
	require.NoError(t, err)
	e.book(t, ben, "lesson-60", "2030-01-10", "10:00")
}

func TestCreateBooking_ConcurrentSameSlot(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	const n = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		failures []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := Actor{UserID: fmt.Sprintf("b0000000-0000-4000-8000-%012d", i), Email: fmt.Sprintf("s%d@example.com", i)}
			_, err := e.CreateBooking(ctx, actor, CreateRequest{ProductID: "lesson-60", Date: "2030-01-10", Time: "10:00"})

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else {
				failures = append(failures, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	require.Len(t, failures, n-1)
	for _, err := range failures {
		assert.ErrorIs(t, err, ErrSlotAlreadyBooked)
	}

	held, err := e.store.Bookings().ListBlockingOverlaps(ctx, "tutor",
		time.Date(2030, 1, 10, 10, 0, 0, 0, time.UTC), time.Date(2030, 1, 10, 11, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, held, 1)
}

func TestCreateBooking_TimeOff(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	block, err := e.BlockTime(ctx, tutor, BlockRequest{
		Start: time.Date(2030, 1, 10, 12, 0, 0, 0, time.UTC),
		End:   time.Date(2030, 1, 10, 14, 0, 0, 0, time.UTC),
		Note:  "dentist",
	})
	require.NoError(t, err)

	_, err = e.CreateBooking(ctx, ann, CreateRequest{ProductID: "lesson-60", Date: "2030-01-10", Time: "13:00"})
	assert.ErrorIs(t, err, ErrTutorUnavailable)

	e.book(t, ann, "lesson-60", "2030-01-10", "14:00")

	t.Run("Students Cannot Block Time", func(t *testing.T) {
		_, err := e.BlockTime(ctx, ann, BlockRequest{
			Start: time.Date(2030, 1, 11, 12, 0, 0, 0, time.UTC),
			End:   time.Date(2030, 1, 11, 13, 0, 0, 0, time.UTC),
		})
		assert.ErrorIs(t, err, ErrAuthMismatch)
	})

	t.Run("Block Over A Booking Is Rejected", func(t *testing.T) {
		_, err := e.BlockTime(ctx, tutor, BlockRequest{
			Start: time.Date(2030, 1, 10, 14, 30, 0, 0, time.UTC),
			End:   time.Date(2030, 1, 10, 16, 0, 0, 0, time.UTC),
		})
		assert.ErrorIs(t, err, ErrSlotAlreadyBooked)
	})

	t.Run("Inverted Range", func(t *testing.T) {
		_, err := e.BlockTime(ctx, tutor, BlockRequest{
			Start: time.Date(2030, 1, 11, 13, 0, 0, 0, time.UTC),
			End:   time.Date(2030, 1, 11, 12, 0, 0, 0, time.UTC),
		})
		assert.Error(t, err)
	})

	blocks, err := e.ListTimeOff(ctx, time.Date(2030, 1, 10, 0, 0, 0, 0, time.UTC), time.Date(2030, 1, 11, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "dentist", blocks[0].Note)

	require.NoError(t, e.UnblockTime(ctx, tutor, block.ID))
	e.book(t, ben, "lesson-60", "2030-01-10", "12:30")
}

func TestCreateBooking_Package(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	res, err := e.CreateBooking(ctx, ann, CreateRequest{ProductID: "pack-5"})
	require.NoError(t, err)

	pack := res.Booking
	assert.Nil(t, pack.Slot)
	assert.Equal(t, StatusPaymentPendingConfirmation, pack.Status)

	ledger, err := e.ListCredits(ctx, ann, "")
	require.NoError(t, err)
	assert.Equal(t, 5, ledger.Balance("pack-5"))
	require.Len(t, ledger.Entries, 1)
	require.NotNil(t, ledger.Entries[0].PackageBookingID)
	assert.Equal(t, pack.ID, *ledger.Entries[0].PackageBookingID)

	t.Run("Other Students Cannot Read The Ledger", func(t *testing.T) {
		_, err := e.ListCredits(ctx, ben, ann.UserID)
		assert.ErrorIs(t, err, ErrAuthMismatch)

		_, err = e.ListCredits(ctx, tutor, ann.UserID)
		assert.NoError(t, err)
	})
}

func TestCreateBookingWithCredit(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	pack := e.book(t, ann, "pack-5", "", "")

	res, err := e.CreateBookingWithCredit(ctx, ann, CreditBookingRequest{CreditType: "pack-5", Date: "2030-01-10", Time: "10:00"})
	require.NoError(t, err)

	b := res.Booking
	assert.Equal(t, StatusConfirmed, b.Status)
	assert.Equal(t, "confirmation", res.RedirectHint)
	assert.Equal(t, "lesson-60", b.ProductID)
	assert.True(t, b.Price.IsZero())
	assert.True(t, b.WasRedeemedWithCredit)
	require.NotNil(t, b.CreditTypeUsed)
	assert.Equal(t, "pack-5", *b.CreditTypeUsed)
	require.NotNil(t, b.ParentPackageID)
	assert.Equal(t, pack.ID, *b.ParentPackageID)
	assert.Equal(t, time.Hour, b.Slot.End.Sub(b.Slot.Start))
	assert.Equal(t, 4, e.balance(t, ann, "pack-5"))

	t.Run("Failed Reservation Keeps The Credit", func(t *testing.T) {
		e.book(t, ben, "lesson-60", "2030-01-10", "12:00")

		_, err := e.CreateBookingWithCredit(ctx, ann, CreditBookingRequest{CreditType: "pack-5", Date: "2030-01-10", Time: "12:00"})
		assert.ErrorIs(t, err, ErrSlotAlreadyBooked)
		assert.Equal(t, 4, e.balance(t, ann, "pack-5"))
	})

	t.Run("No Credits", func(t *testing.T) {
		_, err := e.CreateBookingWithCredit(ctx, ben, CreditBookingRequest{CreditType: "pack-5", Date: "2030-01-11", Time: "10:00"})
		assert.ErrorIs(t, err, ErrInsufficientCredits)
	})

	t.Run("Invalid Mapping", func(t *testing.T) {
		for _, ct := range []string{"", "nope", "group-90", "pack-bad", "private-60"} {
			_, err := e.CreateBookingWithCredit(ctx, ann, CreditBookingRequest{CreditType: ct, Date: "2030-01-11", Time: "10:00"})
			assert.ErrorIs(t, err, ErrInvalidCreditMapping, ct)
		}
	})

	t.Run("Granted Lesson Credits", func(t *testing.T) {
		_, err := e.GrantCredits(ctx, ann, ben.UserID, "lesson-60", 1)
		assert.ErrorIs(t, err, ErrAuthMismatch)

		ledger, err := e.GrantCredits(ctx, tutor, ben.UserID, "lesson-60", 2)
		require.NoError(t, err)
		assert.Equal(t, 2, ledger.Balance("lesson-60"))

		res, err := e.CreateBookingWithCredit(ctx, ben, CreditBookingRequest{CreditType: "lesson-60", Date: "2030-01-11", Time: "15:00"})
		require.NoError(t, err)
		assert.Nil(t, res.Booking.ParentPackageID)
		assert.Equal(t, 1, e.balance(t, ben, "lesson-60"))
	})
}
