//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medqueue/opd-booking/internal/models"
	"github.com/medqueue/opd-booking/internal/service"
)

func bookAndPay(t *testing.T, svc service.BookingService, slot *models.Slot) *models.Booking {
	t.Helper()
	booking, err := svc.CreateBooking(context.Background(), uuid.New(), slot.ID, slot.DoctorID, "checkup")
	require.NoError(t, err)
	paid, err := svc.ConfirmPayment(context.Background(), booking.ID)
	require.NoError(t, err)
	return paid
}

// Positions follow creation order and stay distinct, whether bookings pay
// interleaved or all at the end.
func TestQueuePositionAssignment(t *testing.T) {
	cleanTables()
	doctor := createTestDoctor(t)
	slot := createTestSlot(t, doctor.ID, 10)
	svc := newBookingService()

	var bookings []*models.Booking
	for i := 0; i < 4; i++ {
		b, err := svc.CreateBooking(context.Background(), uuid.New(), slot.ID, doctor.ID, "checkup")
		require.NoError(t, err)
		bookings = append(bookings, b)
	}
	for i, b := range bookings {
		assert.Equal(t, i+1, b.QueuePosition, "position reflects creation order")
	}

	// Pay out of order: positions do not move.
	for i := len(bookings) - 1; i >= 0; i-- {
		_, err := svc.ConfirmPayment(context.Background(), bookings[i].ID)
		require.NoError(t, err)
	}
	for i, b := range bookings {
		assert.Equal(t, i+1, reloadBooking(t, b.ID).QueuePosition)
	}
}

func TestConcurrentCreate_DistinctPositions(t *testing.T) {
	cleanTables()
	doctor := createTestDoctor(t)
	slot := createTestSlot(t, doctor.ID, 20)
	svc := newBookingService()

	total := 15
	var wg sync.WaitGroup
	results := make(chan *models.Booking, total)

	wg.Add(total)
	for i := 0; i < total; i++ {
		go func() {
			defer wg.Done()
			b, err := svc.CreateBooking(context.Background(), uuid.New(), slot.ID, doctor.ID, "checkup")
			if err == nil {
				results <- b
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := map[int]bool{}
	count := 0
	for b := range results {
		assert.False(t, seen[b.QueuePosition], "duplicate position %d", b.QueuePosition)
		seen[b.QueuePosition] = true
		count++
	}
	assert.Equal(t, total, count)
}

// Scenario A: capacity 1, two patients race create+pay. Exactly one payment
// succeeds; the loser's booking ends failed/cancelled.
func TestConcurrentPayment_LastSeat(t *testing.T) {
	cleanTables()
	doctor := createTestDoctor(t)
	slot := createTestSlot(t, doctor.ID, 1)
	svc := newBookingService()

	b1, err := svc.CreateBooking(context.Background(), uuid.New(), slot.ID, doctor.ID, "fever")
	require.NoError(t, err)
	b2, err := svc.CreateBooking(context.Background(), uuid.New(), slot.ID, doctor.ID, "cough")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.ConfirmPayment(context.Background(), b1.ID)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = svc.ConfirmPayment(context.Background(), b2.ID)
	}()
	wg.Wait()

	succeeded, failed := 0, 0
	for i, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, service.ErrSlotBecameFull, "unexpected error for booking %d", i)
		failed++
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, failed)

	s := reloadSlot(t, slot.ID)
	assert.Equal(t, 1, s.CurrentBookings, "capacity never overshoots")
	assert.True(t, s.IsLocked)

	// The loser's booking was force-cancelled and that write committed.
	var loser *models.Booking
	for _, b := range []*models.Booking{b1, b2} {
		r := reloadBooking(t, b.ID)
		if r.PaymentStatus == models.PaymentFailed {
			loser = r
		}
	}
	require.NotNil(t, loser)
	assert.Equal(t, models.StatusCancelled, loser.BookingStatus)
}

// Scenario B: three paid bookings at 1,2,3; emergency insertion yields
// emergency=1 and 2,3,4 for the others.
func TestEmergencyInsertion_Renumbering(t *testing.T) {
	cleanTables()
	doctor := createTestDoctor(t)
	slot := createTestSlot(t, doctor.ID, 3)
	svc := newBookingService()

	var paid []*models.Booking
	for i := 0; i < 3; i++ {
		paid = append(paid, bookAndPay(t, svc, slot))
	}
	for i, b := range paid {
		require.Equal(t, i+1, b.QueuePosition)
	}

	emergency, err := svc.InsertEmergency(context.Background(), slot.ID, doctor.ID, "John Walk-in", "chest pain")
	require.NoError(t, err)

	assert.Equal(t, 1, emergency.QueuePosition)
	assert.True(t, emergency.IsEmergency)
	assert.Nil(t, emergency.UserID)
	assert.Equal(t, "John Walk-in", emergency.PatientName)
	assert.Equal(t, models.StatusEmergency, emergency.BookingStatus)
	assert.Equal(t, models.PaymentCompleted, emergency.PaymentStatus)
	assert.NotNil(t, emergency.PaymentCompletedAt)

	for i, b := range paid {
		assert.Equal(t, i+2, reloadBooking(t, b.ID).QueuePosition, "booking %d shifted back", i)
	}

	// Emergencies bypass the capacity gate.
	s := reloadSlot(t, slot.ID)
	assert.Equal(t, 4, s.CurrentBookings)
	assert.Greater(t, s.CurrentBookings, s.MaxCapacity)

	// Projector reflects the renumbering immediately.
	proj, err := svc.GetQueuePosition(context.Background(), paid[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, proj.QueuePosition)
	assert.Equal(t, 1, proj.PatientsAhead)

	projEmergency, err := svc.GetQueuePosition(context.Background(), emergency.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, projEmergency.QueuePosition)
	assert.Equal(t, 0, projEmergency.PatientsAhead)
}

// Finished and cancelled bookings are not shifted by an emergency insert.
func TestEmergencyInsertion_SkipsInactive(t *testing.T) {
	cleanTables()
	doctor := createTestDoctor(t)
	slot := createTestSlot(t, doctor.ID, 5)
	svc := newBookingService()

	done := bookAndPay(t, svc, slot)
	waiting := bookAndPay(t, svc, slot)
	pending, err := svc.CreateBooking(context.Background(), uuid.New(), slot.ID, doctor.ID, "rash")
	require.NoError(t, err)

	_, err = svc.UpdateBookingStatus(context.Background(), done.ID, models.StatusCompleted)
	require.NoError(t, err)

	_, err = svc.InsertEmergency(context.Background(), slot.ID, doctor.ID, "Jane Walk-in", "fracture")
	require.NoError(t, err)

	assert.Equal(t, 1, reloadBooking(t, done.ID).QueuePosition, "completed booking keeps its position")
	assert.Equal(t, 3, reloadBooking(t, waiting.ID).QueuePosition, "active paid booking shifted")
	assert.Equal(t, 3, reloadBooking(t, pending.ID).QueuePosition, "unpaid booking not shifted")
}

// Scenario C: cancelling a pending booking leaves the counter alone.
func TestCancelPending_CounterUntouched(t *testing.T) {
	cleanTables()
	doctor := createTestDoctor(t)
	slot := createTestSlot(t, doctor.ID, 2)
	svc := newBookingService()

	booking, err := svc.CreateBooking(context.Background(), uuid.New(), slot.ID, doctor.ID, "fever")
	require.NoError(t, err)

	cancelled, err := svc.CancelBooking(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.BookingStatus)

	s := reloadSlot(t, slot.ID)
	assert.Equal(t, 0, s.CurrentBookings)
	assert.False(t, s.IsLocked)
}

// Scenario D: cancelling a paid booking in a full, locked slot frees the seat
// and unlocks.
func TestCancelPaid_AtCapacity_Unlocks(t *testing.T) {
	cleanTables()
	doctor := createTestDoctor(t)
	slot := createTestSlot(t, doctor.ID, 2)
	svc := newBookingService()

	first := bookAndPay(t, svc, slot)
	bookAndPay(t, svc, slot)

	s := reloadSlot(t, slot.ID)
	require.Equal(t, 2, s.CurrentBookings)
	require.True(t, s.IsLocked)

	_, err := svc.CancelBooking(context.Background(), first.ID)
	require.NoError(t, err)

	s = reloadSlot(t, slot.ID)
	assert.Equal(t, 1, s.CurrentBookings)
	assert.False(t, s.IsLocked)
}

// Cancelling twice succeeds once; the second call fails without touching the
// counter again.
func TestCancelBooking_Idempotence(t *testing.T) {
	cleanTables()
	doctor := createTestDoctor(t)
	slot := createTestSlot(t, doctor.ID, 2)
	svc := newBookingService()

	booking := bookAndPay(t, svc, slot)
	require.Equal(t, 1, reloadSlot(t, slot.ID).CurrentBookings)

	_, err := svc.CancelBooking(context.Background(), booking.ID)
	require.NoError(t, err)
	require.Equal(t, 0, reloadSlot(t, slot.ID).CurrentBookings)

	_, err = svc.CancelBooking(context.Background(), booking.ID)
	assert.ErrorIs(t, err, service.ErrInvalidState)
	assert.Equal(t, 0, reloadSlot(t, slot.ID).CurrentBookings, "no double decrement")
}

func TestCreateBooking_Gates(t *testing.T) {
	cleanTables()
	doctor := createTestDoctor(t)
	slot := createTestSlot(t, doctor.ID, 1)
	svc := newBookingService()

	bookAndPay(t, svc, slot) // fills and locks the slot

	_, err := svc.CreateBooking(context.Background(), uuid.New(), slot.ID, doctor.ID, "fever")
	assert.ErrorIs(t, err, service.ErrSlotUnavailable, "locked slot refuses creation")

	// Unlock but keep it full: the capacity gate still rejects.
	require.NoError(t, testDB.Model(&models.Slot{}).Where("id = ?", slot.ID).Update("is_locked", false).Error)
	_, err = svc.CreateBooking(context.Background(), uuid.New(), slot.ID, doctor.ID, "fever")
	assert.ErrorIs(t, err, service.ErrSlotFull)

	_, err = svc.CreateBooking(context.Background(), uuid.New(), uuid.New(), doctor.ID, "fever")
	assert.ErrorIs(t, err, service.ErrSlotNotFound)
}

func TestUpdateBookingStatus_Flow(t *testing.T) {
	cleanTables()
	doctor := createTestDoctor(t)
	slot := createTestSlot(t, doctor.ID, 2)
	svc := newBookingService()

	booking := bookAndPay(t, svc, slot)

	inConsult, err := svc.UpdateBookingStatus(context.Background(), booking.ID, models.StatusInConsultation)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInConsultation, inConsult.BookingStatus)

	completed, err := svc.UpdateBookingStatus(context.Background(), booking.ID, models.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, completed.BookingStatus)

	_, err = svc.UpdateBookingStatus(context.Background(), booking.ID, models.StatusInConsultation)
	assert.ErrorIs(t, err, service.ErrInvalidTransition, "completed is terminal")

	_, err = svc.CancelBooking(context.Background(), booking.ID)
	assert.ErrorIs(t, err, service.ErrInvalidState, "completed bookings cannot be cancelled")
}

func TestConfirmPayment_AlreadyPaid(t *testing.T) {
	cleanTables()
	doctor := createTestDoctor(t)
	slot := createTestSlot(t, doctor.ID, 2)
	svc := newBookingService()

	booking := bookAndPay(t, svc, slot)

	_, err := svc.ConfirmPayment(context.Background(), booking.ID)
	assert.ErrorIs(t, err, service.ErrInvalidState)
	assert.Equal(t, 1, reloadSlot(t, slot.ID).CurrentBookings, "no double increment")
}
