package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

type BookingStatus string

const (
	StatusConfirmed      BookingStatus = "confirmed"
	StatusInConsultation BookingStatus = "in_consultation"
	StatusCompleted      BookingStatus = "completed"
	StatusCancelled      BookingStatus = "cancelled"
	StatusEmergency      BookingStatus = "emergency"
)

// Booking ties a patient to a slot. UserID is nil for staff-inserted walk-in
// emergency cases, which have no user account; PatientName carries their name.
type Booking struct {
	ID                 uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID             *uuid.UUID    `gorm:"type:uuid;index" json:"user_id"`
	PatientName        string        `json:"patient_name,omitempty"`
	SlotID             uuid.UUID     `gorm:"type:uuid;not null;index" json:"slot_id"`
	DoctorID           uuid.UUID     `gorm:"type:uuid;not null" json:"doctor_id"`
	ProblemDescription string        `json:"problem_description"`
	PaymentStatus      PaymentStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"payment_status"`
	BookingStatus      BookingStatus `gorm:"type:varchar(20);not null;default:'confirmed'" json:"booking_status"`
	QueuePosition      int           `gorm:"not null" json:"queue_position"`
	IsEmergency        bool          `gorm:"not null;default:false" json:"is_emergency"`
	PaymentCompletedAt *time.Time    `json:"payment_completed_at"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`

	Slot   *Slot   `gorm:"foreignKey:SlotID" json:"slot,omitempty"`
	Doctor *Doctor `gorm:"foreignKey:DoctorID" json:"doctor,omitempty"`
}

func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Active reports whether the booking still occupies a place in the queue.
func (b *Booking) Active() bool {
	return b.BookingStatus != StatusCompleted && b.BookingStatus != StatusCancelled
}
