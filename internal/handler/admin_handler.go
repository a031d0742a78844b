package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medqueue/opd-booking/internal/dto"
	"github.com/medqueue/opd-booking/internal/models"
	"github.com/medqueue/opd-booking/internal/repository"
	"github.com/medqueue/opd-booking/internal/service"
)

// AdminHandler exposes the staff surface: doctor and slot administration,
// the per-slot queue board, consultation status transitions, and emergency
// insertion.
type AdminHandler struct {
	svc        service.BookingService
	doctorRepo repository.DoctorRepository
	slotRepo   repository.SlotRepository
}

func NewAdminHandler(svc service.BookingService, doctorRepo repository.DoctorRepository, slotRepo repository.SlotRepository) *AdminHandler {
	return &AdminHandler{svc: svc, doctorRepo: doctorRepo, slotRepo: slotRepo}
}

// RegisterRoutes mounts the staff surface on an admin-gated group.
func (h *AdminHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/doctors", h.CreateDoctor)
	g.PATCH("/doctors/:id", h.UpdateDoctor)
	g.GET("/doctors", h.ListDoctors)

	g.GET("/slots", h.ListSlots)
	g.POST("/slots", h.CreateSlot)
	g.PATCH("/slots/:id", h.UpdateSlot)
	g.GET("/slots/:id/bookings", h.ListSlotBookings)
	g.POST("/slots/:id/emergency", h.InsertEmergency)

	g.PATCH("/bookings/:id/status", h.UpdateBookingStatus)
}

func (h *AdminHandler) CreateDoctor(c echo.Context) error {
	var req dto.CreateDoctorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" || req.Specialization == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and specialization are required")
	}

	doctor := &models.Doctor{
		Name:           req.Name,
		Specialization: req.Specialization,
		Description:    req.Description,
		IsActive:       true,
	}
	if req.IsActive != nil {
		doctor.IsActive = *req.IsActive
	}
	if err := h.doctorRepo.Create(c.Request().Context(), doctor); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, doctor)
}

func (h *AdminHandler) UpdateDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}

	var req dto.UpdateDoctorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Specialization != nil {
		updates["specialization"] = *req.Specialization
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no fields to update")
	}

	doctor, err := h.doctorRepo.Update(c.Request().Context(), id, updates)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "doctor not found")
	}
	return c.JSON(http.StatusOK, doctor)
}

func (h *AdminHandler) ListDoctors(c echo.Context) error {
	doctors, err := h.doctorRepo.FindAll(c.Request().Context(), false)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, doctors)
}

func (h *AdminHandler) ListSlots(c echo.Context) error {
	var doctorID *uuid.UUID
	if s := c.QueryParam("doctor_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
		doctorID = &id
	}
	var date *time.Time
	if s := c.QueryParam("date"); s != "" {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date (YYYY-MM-DD)")
		}
		date = &d
	}

	slots, err := h.slotRepo.FindAll(c.Request().Context(), doctorID, date)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, slots)
}

func (h *AdminHandler) CreateSlot(c echo.Context) error {
	var req dto.CreateSlotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date (YYYY-MM-DD)")
	}
	if req.StartTime == "" || req.EndTime == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "start_time and end_time are required")
	}
	if req.MaxCapacity < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "max_capacity must be positive")
	}
	if _, err := h.doctorRepo.FindByID(c.Request().Context(), doctorID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "doctor not found")
	}

	slot := &models.Slot{
		DoctorID:    doctorID,
		Date:        date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		MaxCapacity: req.MaxCapacity,
	}
	if err := h.slotRepo.Create(c.Request().Context(), slot); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, slot)
}

func (h *AdminHandler) UpdateSlot(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid slot id")
	}

	var req dto.UpdateSlotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	updates := map[string]any{}
	if req.Date != nil {
		d, err := time.Parse("2006-01-02", *req.Date)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date (YYYY-MM-DD)")
		}
		updates["date"] = d
	}
	if req.StartTime != nil {
		updates["start_time"] = *req.StartTime
	}
	if req.EndTime != nil {
		updates["end_time"] = *req.EndTime
	}
	if req.MaxCapacity != nil {
		if *req.MaxCapacity < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "max_capacity must be positive")
		}
		updates["max_capacity"] = *req.MaxCapacity
	}
	if req.IsLocked != nil {
		updates["is_locked"] = *req.IsLocked
	}
	if len(updates) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no fields to update")
	}

	slot, err := h.slotRepo.Update(c.Request().Context(), id, updates)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "slot not found")
	}
	return c.JSON(http.StatusOK, slot)
}

// ListSlotBookings returns the slot's queue board ordered by position.
func (h *AdminHandler) ListSlotBookings(c echo.Context) error {
	slotID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid slot id")
	}
	bookings, err := h.svc.ListSlotBookings(c.Request().Context(), slotID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, dto.ToBookingResponses(bookings))
}

func (h *AdminHandler) UpdateBookingStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid booking id")
	}

	var req dto.UpdateBookingStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	booking, err := h.svc.UpdateBookingStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, dto.ToBookingResponse(booking))
}

func (h *AdminHandler) InsertEmergency(c echo.Context) error {
	slotID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid slot id")
	}

	var req dto.InsertEmergencyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
	}
	if req.PatientName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_name is required")
	}

	booking, err := h.svc.InsertEmergency(c.Request().Context(), slotID, doctorID, req.PatientName, req.ProblemDescription)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusCreated, dto.ToBookingResponse(booking))
}
