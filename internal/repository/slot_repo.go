package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/medqueue/opd-booking/internal/models"
)

type SlotRepository interface {
	Create(ctx context.Context, slot *models.Slot) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Slot, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Slot, error)
	FindAll(ctx context.Context, doctorID *uuid.UUID, date *time.Time) ([]models.Slot, error)
	FindAvailable(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]models.Slot, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) (*models.Slot, error)
	IncrementBookingCount(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error)
	ForceIncrementBookingCount(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	DecrementBookingCount(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	SetLocked(ctx context.Context, tx *gorm.DB, id uuid.UUID, locked bool) error
	GetDB() *gorm.DB
}

type slotRepository struct {
	db *gorm.DB
}

func NewSlotRepository(db *gorm.DB) SlotRepository {
	return &slotRepository{db: db}
}

func (r *slotRepository) GetDB() *gorm.DB {
	return r.db
}

func (r *slotRepository) Create(ctx context.Context, slot *models.Slot) error {
	return r.db.WithContext(ctx).Create(slot).Error
}

func (r *slotRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Slot, error) {
	var slot models.Slot
	if err := r.db.WithContext(ctx).Preload("Doctor").First(&slot, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &slot, nil
}

// FindByIDForUpdate acquires a row-level lock on the slot within the given
// transaction. Every mutating booking operation takes this lock first, which
// serializes all per-slot read-modify-write sequences.
func (r *slotRepository) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Slot, error) {
	var slot models.Slot
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&slot, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &slot, nil
}

func (r *slotRepository) FindAll(ctx context.Context, doctorID *uuid.UUID, date *time.Time) ([]models.Slot, error) {
	var slots []models.Slot
	q := r.db.WithContext(ctx).Preload("Doctor").Order("date ASC, start_time ASC")
	if doctorID != nil {
		q = q.Where("doctor_id = ?", *doctorID)
	}
	if date != nil {
		q = q.Where("date = ?", date.Format("2006-01-02"))
	}
	if err := q.Find(&slots).Error; err != nil {
		return nil, err
	}
	return slots, nil
}

func (r *slotRepository) FindAvailable(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]models.Slot, error) {
	var slots []models.Slot
	err := r.db.WithContext(ctx).
		Preload("Doctor").
		Where("doctor_id = ? AND date = ? AND is_locked = false AND current_bookings < max_capacity",
			doctorID, date.Format("2006-01-02")).
		Order("start_time ASC").
		Find(&slots).Error
	if err != nil {
		return nil, err
	}
	return slots, nil
}

func (r *slotRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) (*models.Slot, error) {
	if err := r.db.WithContext(ctx).
		Model(&models.Slot{}).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

// IncrementBookingCount adds one seat conditionally: it refuses to push
// current_bookings past max_capacity. Returns false when the slot was already
// full and the counter was left untouched.
func (r *slotRepository) IncrementBookingCount(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error) {
	res := tx.WithContext(ctx).
		Model(&models.Slot{}).
		Where("id = ? AND current_bookings < max_capacity", id).
		Update("current_bookings", gorm.Expr("current_bookings + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ForceIncrementBookingCount adds one seat with no capacity gate. Emergency
// insertions always fit, even past max_capacity.
func (r *slotRepository) ForceIncrementBookingCount(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return tx.WithContext(ctx).
		Model(&models.Slot{}).
		Where("id = ?", id).
		Update("current_bookings", gorm.Expr("current_bookings + 1")).Error
}

// DecrementBookingCount releases one seat, flooring at zero.
func (r *slotRepository) DecrementBookingCount(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return tx.WithContext(ctx).
		Model(&models.Slot{}).
		Where("id = ?", id).
		Update("current_bookings", gorm.Expr("GREATEST(current_bookings - 1, 0)")).Error
}

func (r *slotRepository) SetLocked(ctx context.Context, tx *gorm.DB, id uuid.UUID, locked bool) error {
	return tx.WithContext(ctx).
		Model(&models.Slot{}).
		Where("id = ?", id).
		Update("is_locked", locked).Error
}
