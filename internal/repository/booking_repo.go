package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/medqueue/opd-booking/internal/models"
)

type BookingRepository interface {
	Create(ctx context.Context, tx *gorm.DB, booking *models.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Booking, error)
	FindBySlotID(ctx context.Context, slotID uuid.UUID) ([]models.Booking, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) ([]models.Booking, error)
	NextQueuePosition(ctx context.Context, tx *gorm.DB, slotID uuid.UUID) (int, error)
	CountAhead(ctx context.Context, slotID uuid.UUID, queuePosition int) (int64, error)
	FindPaidActiveOrdered(ctx context.Context, tx *gorm.DB, slotID uuid.UUID) ([]models.Booking, error)
	ShiftQueuePositions(ctx context.Context, tx *gorm.DB, slotID uuid.UUID) error
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) error
	GetDB() *gorm.DB
}

type bookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) BookingRepository {
	return &bookingRepository{db: db}
}

func (r *bookingRepository) GetDB() *gorm.DB {
	return r.db
}

func (r *bookingRepository) Create(ctx context.Context, tx *gorm.DB, booking *models.Booking) error {
	return tx.WithContext(ctx).Create(booking).Error
}

func (r *bookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.WithContext(ctx).
		Preload("Slot").
		Preload("Doctor").
		First(&booking, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindByIDForUpdate locks the booking row. Callers that also touch the slot
// must lock the slot first so every transaction takes locks in the same order.
func (r *bookingRepository) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&booking, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *bookingRepository) FindBySlotID(ctx context.Context, slotID uuid.UUID) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Preload("Slot").
		Preload("Doctor").
		Where("slot_id = ?", slotID).
		Order("queue_position ASC, created_at ASC").
		Find(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *bookingRepository) FindByUserID(ctx context.Context, userID uuid.UUID) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Preload("Slot").
		Preload("Doctor").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// NextQueuePosition allocates the next rank in the slot: one past the highest
// position held by any non-cancelled booking. Monotonic per slot as long as
// the caller holds the slot row lock.
func (r *bookingRepository) NextQueuePosition(ctx context.Context, tx *gorm.DB, slotID uuid.UUID) (int, error) {
	var max int64
	err := tx.WithContext(ctx).
		Model(&models.Booking{}).
		Where("slot_id = ? AND booking_status <> ?", slotID, models.StatusCancelled).
		Select("COALESCE(MAX(queue_position), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return int(max) + 1, nil
}

// CountAhead counts paid bookings still waiting in the same slot with a
// strictly lower queue position.
func (r *bookingRepository) CountAhead(ctx context.Context, slotID uuid.UUID, queuePosition int) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("slot_id = ? AND payment_status = ? AND queue_position < ? AND booking_status NOT IN ?",
			slotID, models.PaymentCompleted, queuePosition,
			[]models.BookingStatus{models.StatusCompleted, models.StatusCancelled}).
		Count(&count).Error
	return count, err
}

func (r *bookingRepository) FindPaidActiveOrdered(ctx context.Context, tx *gorm.DB, slotID uuid.UUID) ([]models.Booking, error) {
	var bookings []models.Booking
	err := tx.WithContext(ctx).
		Where("slot_id = ? AND payment_status = ? AND booking_status NOT IN ?",
			slotID, models.PaymentCompleted,
			[]models.BookingStatus{models.StatusCompleted, models.StatusCancelled}).
		Order("queue_position ASC").
		Find(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// ShiftQueuePositions pushes every paid, still-waiting booking in the slot
// back by one position in a single statement.
func (r *bookingRepository) ShiftQueuePositions(ctx context.Context, tx *gorm.DB, slotID uuid.UUID) error {
	return tx.WithContext(ctx).
		Model(&models.Booking{}).
		Where("slot_id = ? AND payment_status = ? AND booking_status NOT IN ?",
			slotID, models.PaymentCompleted,
			[]models.BookingStatus{models.StatusCompleted, models.StatusCancelled}).
		Update("queue_position", gorm.Expr("queue_position + 1")).Error
}

func (r *bookingRepository) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) error {
	return tx.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ?", id).
		Updates(updates).Error
}
