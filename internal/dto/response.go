package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/medqueue/opd-booking/internal/models"
	"github.com/medqueue/opd-booking/internal/service"
)

type BookingResponse struct {
	ID                 uuid.UUID            `json:"id"`
	UserID             *uuid.UUID           `json:"user_id"`
	PatientName        string               `json:"patient_name,omitempty"`
	SlotID             uuid.UUID            `json:"slot_id"`
	DoctorID           uuid.UUID            `json:"doctor_id"`
	ProblemDescription string               `json:"problem_description"`
	PaymentStatus      models.PaymentStatus `json:"payment_status"`
	BookingStatus      models.BookingStatus `json:"booking_status"`
	QueuePosition      int                  `json:"queue_position"`
	IsEmergency        bool                 `json:"is_emergency"`
	PaymentCompletedAt *time.Time           `json:"payment_completed_at"`
	CreatedAt          time.Time            `json:"created_at"`
	Slot               *models.Slot         `json:"slot,omitempty"`
	Doctor             *models.Doctor       `json:"doctor,omitempty"`
}

type QueuePositionResponse struct {
	QueuePosition int                  `json:"queue_position"`
	PatientsAhead int                  `json:"patients_ahead"`
	BookingStatus models.BookingStatus `json:"booking_status"`
	Slot          *models.Slot         `json:"slot"`
}

func ToBookingResponse(b *models.Booking) BookingResponse {
	return BookingResponse{
		ID:                 b.ID,
		UserID:             b.UserID,
		PatientName:        b.PatientName,
		SlotID:             b.SlotID,
		DoctorID:           b.DoctorID,
		ProblemDescription: b.ProblemDescription,
		PaymentStatus:      b.PaymentStatus,
		BookingStatus:      b.BookingStatus,
		QueuePosition:      b.QueuePosition,
		IsEmergency:        b.IsEmergency,
		PaymentCompletedAt: b.PaymentCompletedAt,
		CreatedAt:          b.CreatedAt,
		Slot:               b.Slot,
		Doctor:             b.Doctor,
	}
}

func ToBookingResponses(bookings []models.Booking) []BookingResponse {
	resp := make([]BookingResponse, len(bookings))
	for i := range bookings {
		resp[i] = ToBookingResponse(&bookings[i])
	}
	return resp
}

func ToQueuePositionResponse(p *service.QueueProjection) QueuePositionResponse {
	return QueuePositionResponse{
		QueuePosition: p.QueuePosition,
		PatientsAhead: p.PatientsAhead,
		BookingStatus: p.BookingStatus,
		Slot:          p.Slot,
	}
}
