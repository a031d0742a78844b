package dto

import "github.com/medqueue/opd-booking/internal/models"

type CreateBookingRequest struct {
	SlotID             string `json:"slot_id"`
	DoctorID           string `json:"doctor_id"`
	ProblemDescription string `json:"problem_description"`
}

type UpdateBookingStatusRequest struct {
	Status models.BookingStatus `json:"status"`
}

type InsertEmergencyRequest struct {
	DoctorID           string `json:"doctor_id"`
	PatientName        string `json:"patient_name"`
	ProblemDescription string `json:"problem_description"`
}

type CreateDoctorRequest struct {
	Name           string  `json:"name"`
	Specialization string  `json:"specialization"`
	Description    *string `json:"description"`
	IsActive       *bool   `json:"is_active"`
}

type UpdateDoctorRequest struct {
	Name           *string `json:"name"`
	Specialization *string `json:"specialization"`
	Description    *string `json:"description"`
	IsActive       *bool   `json:"is_active"`
}

type CreateSlotRequest struct {
	DoctorID    string `json:"doctor_id"`
	Date        string `json:"date"` // YYYY-MM-DD
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	MaxCapacity int    `json:"max_capacity"`
}

type UpdateSlotRequest struct {
	Date        *string `json:"date"`
	StartTime   *string `json:"start_time"`
	EndTime     *string `json:"end_time"`
	MaxCapacity *int    `json:"max_capacity"`
	IsLocked    *bool   `json:"is_locked"`
}

type UpsertProfileRequest struct {
	Name  string  `json:"name"`
	Phone *string `json:"phone"`
}
