package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Slot is a bounded-capacity appointment window for one doctor.
//
// IsLocked means "refuse new confirmed bookings". It is set when a payment
// increment fills the slot and force-cleared by any cancellation of a paid
// booking, so IsLocked=false does not by itself guarantee free capacity —
// CurrentBookings < MaxCapacity must still hold.
type Slot struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DoctorID        uuid.UUID `gorm:"type:uuid;not null;index" json:"doctor_id"`
	Date            time.Time `gorm:"type:date;not null" json:"date"`
	StartTime       string    `gorm:"type:varchar(8);not null" json:"start_time"`
	EndTime         string    `gorm:"type:varchar(8);not null" json:"end_time"`
	MaxCapacity     int       `gorm:"not null" json:"max_capacity"`
	CurrentBookings int       `gorm:"not null;default:0" json:"current_bookings"`
	IsLocked        bool      `gorm:"not null;default:false" json:"is_locked"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	Doctor *Doctor `gorm:"foreignKey:DoctorID" json:"doctor,omitempty"`
}

func (s *Slot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// HasCapacity reports whether a regular (non-emergency) booking may still
// consume a seat.
func (s *Slot) HasCapacity() bool {
	return s.CurrentBookings < s.MaxCapacity
}
