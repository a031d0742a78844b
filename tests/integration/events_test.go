//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medqueue/opd-booking/internal/notifier"
	"github.com/medqueue/opd-booking/internal/repository"
	"github.com/medqueue/opd-booking/internal/service"
)

func collect(ch <-chan notifier.Event, n int, timeout time.Duration) []notifier.Event {
	var events []notifier.Event
	deadline := time.After(timeout)
	for len(events) < n {
		select {
		case ev := <-ch:
			events = append(events, ev)
		case <-deadline:
			return events
		}
	}
	return events
}

// Every lifecycle mutation emits exactly one event after commit, and an
// emergency insert additionally notifies every shifted booking.
func TestHub_LifecycleEvents(t *testing.T) {
	cleanTables()
	doctor := createTestDoctor(t)
	slot := createTestSlot(t, doctor.ID, 3)

	hub := notifier.NewHub(nil, zerolog.Nop())
	slotRepo := repository.NewSlotRepository(testDB)
	bookingRepo := repository.NewBookingRepository(testDB)
	svc := service.NewBookingService(bookingRepo, slotRepo, hub)

	userID := uuid.New()
	patientCh, cancelPatient := hub.SubscribePatient(userID)
	defer cancelPatient()

	booking, err := svc.CreateBooking(context.Background(), userID, slot.ID, doctor.ID, "fever")
	require.NoError(t, err)

	bookingCh, cancelBooking := hub.SubscribeBooking(booking.ID)
	defer cancelBooking()

	_, err = svc.ConfirmPayment(context.Background(), booking.ID)
	require.NoError(t, err)

	created := collect(patientCh, 2, time.Second)
	require.Len(t, created, 2)
	assert.Equal(t, notifier.BookingCreated, created[0].Type)
	assert.Equal(t, notifier.BookingPaid, created[1].Type)

	paid := collect(bookingCh, 1, time.Second)
	require.Len(t, paid, 1)
	assert.Equal(t, notifier.BookingPaid, paid[0].Type)

	// Emergency insert shifts our booking and tells us about it.
	_, err = svc.InsertEmergency(context.Background(), slot.ID, doctor.ID, "Walk-in", "trauma")
	require.NoError(t, err)

	shifted := collect(bookingCh, 1, time.Second)
	require.Len(t, shifted, 1)
	assert.Equal(t, notifier.PositionChanged, shifted[0].Type)
	assert.Equal(t, booking.QueuePosition+1, shifted[0].QueuePosition)
}
