package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medqueue/opd-booking/internal/models"
	"github.com/medqueue/opd-booking/internal/notifier"
	"github.com/medqueue/opd-booking/internal/repository"
)

var (
	ErrSlotNotFound      = errors.New("slot not found")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrDoctorMismatch    = errors.New("slot does not belong to the given doctor")
	ErrSlotUnavailable   = errors.New("slot is locked and no longer available")
	ErrSlotFull          = errors.New("slot is fully booked")
	ErrSlotBecameFull    = errors.New("slot became fully booked, payment rejected and booking cancelled")
	ErrInvalidState      = errors.New("operation not valid for current booking state")
	ErrInvalidTransition = errors.New("invalid booking status transition")
)

// QueueProjection is the live "where am I in the queue" view for one booking.
type QueueProjection struct {
	QueuePosition int                  `json:"queue_position"`
	PatientsAhead int                  `json:"patients_ahead"`
	BookingStatus models.BookingStatus `json:"booking_status"`
	Slot          *models.Slot         `json:"slot"`
}

type BookingService interface {
	CreateBooking(ctx context.Context, userID, slotID, doctorID uuid.UUID, problem string) (*models.Booking, error)
	ConfirmPayment(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
	UpdateBookingStatus(ctx context.Context, bookingID uuid.UUID, status models.BookingStatus) (*models.Booking, error)
	InsertEmergency(ctx context.Context, slotID, doctorID uuid.UUID, patientName, problem string) (*models.Booking, error)
	GetQueuePosition(ctx context.Context, bookingID uuid.UUID) (*QueueProjection, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	ListSlotBookings(ctx context.Context, slotID uuid.UUID) ([]models.Booking, error)
	ListUserBookings(ctx context.Context, userID uuid.UUID) ([]models.Booking, error)
}

type bookingService struct {
	bookingRepo repository.BookingRepository
	slotRepo    repository.SlotRepository
	hub         *notifier.Hub
}

// NewBookingService wires the lifecycle controller. hub may be nil, in which
// case no change events are emitted.
func NewBookingService(bookingRepo repository.BookingRepository, slotRepo repository.SlotRepository, hub *notifier.Hub) BookingService {
	return &bookingService{
		bookingRepo: bookingRepo,
		slotRepo:    slotRepo,
		hub:         hub,
	}
}

// CreateBooking places a pending booking in the slot's queue. The slot row
// lock serializes per-slot creation, so position allocation cannot hand out
// duplicates. Capacity is NOT consumed here: the gate only rejects slots that
// are already locked or full, and the real enforcement happens at payment
// time.
func (s *bookingService) CreateBooking(ctx context.Context, userID, slotID, doctorID uuid.UUID, problem string) (*models.Booking, error) {
	var result *models.Booking

	err := s.bookingRepo.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slot, err := s.slotRepo.FindByIDForUpdate(ctx, tx, slotID)
		if err != nil {
			return ErrSlotNotFound
		}
		if slot.DoctorID != doctorID {
			return ErrDoctorMismatch
		}
		if slot.IsLocked {
			return ErrSlotUnavailable
		}
		if !slot.HasCapacity() {
			return ErrSlotFull
		}

		// Positions follow creation order, not payment order: the rank
		// is allocated here and kept through payment.
		position, err := s.bookingRepo.NextQueuePosition(ctx, tx, slotID)
		if err != nil {
			return err
		}

		booking := &models.Booking{
			UserID:             &userID,
			SlotID:             slotID,
			DoctorID:           doctorID,
			ProblemDescription: problem,
			PaymentStatus:      models.PaymentPending,
			BookingStatus:      models.StatusConfirmed,
			QueuePosition:      position,
		}
		if err := s.bookingRepo.Create(ctx, tx, booking); err != nil {
			return err
		}
		result = booking
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(notifier.BookingCreated, result)
	return result, nil
}

// ConfirmPayment is the capacity enforcement point. If the slot filled up
// between creation and payment, the booking is force-moved to
// failed/cancelled — that write must survive, so it is committed before
// ErrSlotBecameFull is surfaced to the caller.
func (s *bookingService) ConfirmPayment(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	var result *models.Booking
	var becameFull bool

	err := s.bookingRepo.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		booking, err := s.bookingRepo.FindByID(ctx, bookingID)
		if err != nil {
			return ErrBookingNotFound
		}

		// Slot first, booking second: every transaction takes locks in
		// this order.
		slot, err := s.slotRepo.FindByIDForUpdate(ctx, tx, booking.SlotID)
		if err != nil {
			return err
		}
		booking, err = s.bookingRepo.FindByIDForUpdate(ctx, tx, bookingID)
		if err != nil {
			return ErrBookingNotFound
		}
		if booking.PaymentStatus == models.PaymentCompleted || booking.BookingStatus == models.StatusCancelled {
			return ErrInvalidState
		}

		if !slot.HasCapacity() {
			if err := s.bookingRepo.UpdateFields(ctx, tx, bookingID, map[string]any{
				"payment_status": models.PaymentFailed,
				"booking_status": models.StatusCancelled,
			}); err != nil {
				return err
			}
			booking.PaymentStatus = models.PaymentFailed
			booking.BookingStatus = models.StatusCancelled
			result = booking
			becameFull = true
			return nil
		}

		now := time.Now()
		if err := s.bookingRepo.UpdateFields(ctx, tx, bookingID, map[string]any{
			"payment_status":       models.PaymentCompleted,
			"payment_completed_at": now,
		}); err != nil {
			return err
		}

		ok, err := s.slotRepo.IncrementBookingCount(ctx, tx, booking.SlotID)
		if err != nil {
			return err
		}
		if !ok {
			// Cannot happen while we hold the slot lock and the
			// capacity check above passed.
			return ErrSlotFull
		}
		if slot.CurrentBookings+1 >= slot.MaxCapacity {
			if err := s.slotRepo.SetLocked(ctx, tx, booking.SlotID, true); err != nil {
				return err
			}
		}

		booking.PaymentStatus = models.PaymentCompleted
		booking.PaymentCompletedAt = &now
		result = booking
		return nil
	})
	if err != nil {
		return nil, err
	}

	if becameFull {
		s.publish(notifier.BookingCancelled, result)
		return result, ErrSlotBecameFull
	}
	s.publish(notifier.BookingPaid, result)
	return result, nil
}

// CancelBooking marks the booking cancelled. A paid booking releases its seat
// and force-unlocks the slot; a pending one never consumed capacity, so the
// counter is untouched. Other bookings keep their queue positions.
func (s *bookingService) CancelBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	var result *models.Booking

	err := s.bookingRepo.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		booking, err := s.bookingRepo.FindByID(ctx, bookingID)
		if err != nil {
			return ErrBookingNotFound
		}

		if _, err := s.slotRepo.FindByIDForUpdate(ctx, tx, booking.SlotID); err != nil {
			return err
		}
		booking, err = s.bookingRepo.FindByIDForUpdate(ctx, tx, bookingID)
		if err != nil {
			return ErrBookingNotFound
		}
		if !booking.Active() {
			return ErrInvalidState
		}

		if err := s.bookingRepo.UpdateFields(ctx, tx, bookingID, map[string]any{
			"booking_status": models.StatusCancelled,
		}); err != nil {
			return err
		}

		if booking.PaymentStatus == models.PaymentCompleted {
			if err := s.slotRepo.DecrementBookingCount(ctx, tx, booking.SlotID); err != nil {
				return err
			}
			// Cancellation always reopens the slot, even if other
			// bookings still leave it at capacity.
			if err := s.slotRepo.SetLocked(ctx, tx, booking.SlotID, false); err != nil {
				return err
			}
		}

		booking.BookingStatus = models.StatusCancelled
		result = booking
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(notifier.BookingCancelled, result)
	return result, nil
}

// UpdateBookingStatus applies the staff-driven consultation transitions.
func (s *bookingService) UpdateBookingStatus(ctx context.Context, bookingID uuid.UUID, status models.BookingStatus) (*models.Booking, error) {
	if status != models.StatusInConsultation && status != models.StatusCompleted {
		return nil, ErrInvalidTransition
	}

	var result *models.Booking

	err := s.bookingRepo.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		booking, err := s.bookingRepo.FindByIDForUpdate(ctx, tx, bookingID)
		if err != nil {
			return ErrBookingNotFound
		}
		if !validTransition(booking.BookingStatus, status) {
			return ErrInvalidTransition
		}

		if err := s.bookingRepo.UpdateFields(ctx, tx, bookingID, map[string]any{
			"booking_status": status,
		}); err != nil {
			return err
		}
		booking.BookingStatus = status
		result = booking
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(notifier.StatusChanged, result)
	return result, nil
}

// validTransition encodes the monotonic consultation flow:
// confirmed → in_consultation → completed, with emergency cases entering the
// same flow. Terminal states never transition.
func validTransition(from, to models.BookingStatus) bool {
	switch to {
	case models.StatusInConsultation:
		return from == models.StatusConfirmed || from == models.StatusEmergency
	case models.StatusCompleted:
		return from == models.StatusConfirmed || from == models.StatusInConsultation || from == models.StatusEmergency
	default:
		return false
	}
}

// InsertEmergency grants a walk-in case immediate top-of-queue priority:
// every paid, still-waiting booking in the slot moves back one position and
// the new case enters at position 1, already paid. The shift and the insert
// commit together or not at all. Emergencies bypass the capacity gate and may
// push the slot past max_capacity.
func (s *bookingService) InsertEmergency(ctx context.Context, slotID, doctorID uuid.UUID, patientName, problem string) (*models.Booking, error) {
	var result *models.Booking
	var shifted []models.Booking

	err := s.bookingRepo.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slot, err := s.slotRepo.FindByIDForUpdate(ctx, tx, slotID)
		if err != nil {
			return ErrSlotNotFound
		}
		if slot.DoctorID != doctorID {
			return ErrDoctorMismatch
		}

		shifted, err = s.bookingRepo.FindPaidActiveOrdered(ctx, tx, slotID)
		if err != nil {
			return err
		}
		if err := s.bookingRepo.ShiftQueuePositions(ctx, tx, slotID); err != nil {
			return err
		}

		now := time.Now()
		booking := &models.Booking{
			UserID:             nil, // walk-in, no patient account
			PatientName:        patientName,
			SlotID:             slotID,
			DoctorID:           doctorID,
			ProblemDescription: problem,
			PaymentStatus:      models.PaymentCompleted,
			BookingStatus:      models.StatusEmergency,
			QueuePosition:      1,
			IsEmergency:        true,
			PaymentCompletedAt: &now,
		}
		if err := s.bookingRepo.Create(ctx, tx, booking); err != nil {
			return err
		}

		if err := s.slotRepo.ForceIncrementBookingCount(ctx, tx, slotID); err != nil {
			return err
		}
		result = booking
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(notifier.EmergencyInserted, result)
	for i := range shifted {
		shifted[i].QueuePosition++
		s.publish(notifier.PositionChanged, &shifted[i])
	}
	return result, nil
}

// GetQueuePosition projects the booking's live rank. patients_ahead counts
// paid bookings in the same slot with a lower position that have not finished
// or cancelled; it reflects emergency renumbering as soon as the insertion
// commits.
func (s *bookingService) GetQueuePosition(ctx context.Context, bookingID uuid.UUID) (*QueueProjection, error) {
	booking, err := s.bookingRepo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, ErrBookingNotFound
	}

	ahead, err := s.bookingRepo.CountAhead(ctx, booking.SlotID, booking.QueuePosition)
	if err != nil {
		return nil, err
	}

	return &QueueProjection{
		QueuePosition: booking.QueuePosition,
		PatientsAhead: int(ahead),
		BookingStatus: booking.BookingStatus,
		Slot:          booking.Slot,
	}, nil
}

func (s *bookingService) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookingRepo.FindByID(ctx, id)
	if err != nil {
		return nil, ErrBookingNotFound
	}
	return booking, nil
}

func (s *bookingService) ListSlotBookings(ctx context.Context, slotID uuid.UUID) ([]models.Booking, error) {
	return s.bookingRepo.FindBySlotID(ctx, slotID)
}

func (s *bookingService) ListUserBookings(ctx context.Context, userID uuid.UUID) ([]models.Booking, error) {
	return s.bookingRepo.FindByUserID(ctx, userID)
}

func (s *bookingService) publish(t notifier.EventType, b *models.Booking) {
	if s.hub == nil || b == nil {
		return
	}
	s.hub.Publish(notifier.Event{
		Type:          t,
		BookingID:     b.ID,
		UserID:        b.UserID,
		SlotID:        b.SlotID,
		QueuePosition: b.QueuePosition,
		BookingStatus: b.BookingStatus,
		PaymentStatus: b.PaymentStatus,
	})
}
