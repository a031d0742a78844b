package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medqueue/opd-booking/internal/dto"
	"github.com/medqueue/opd-booking/internal/middleware"
	"github.com/medqueue/opd-booking/internal/models"
	"github.com/medqueue/opd-booking/internal/notifier"
	"github.com/medqueue/opd-booking/internal/repository"
	"github.com/medqueue/opd-booking/internal/service"
)

type BookingHandler struct {
	svc         service.BookingService
	doctorRepo  repository.DoctorRepository
	slotRepo    repository.SlotRepository
	profileRepo repository.ProfileRepository
	hub         *notifier.Hub
}

func NewBookingHandler(
	svc service.BookingService,
	doctorRepo repository.DoctorRepository,
	slotRepo repository.SlotRepository,
	profileRepo repository.ProfileRepository,
	hub *notifier.Hub,
) *BookingHandler {
	return &BookingHandler{
		svc:         svc,
		doctorRepo:  doctorRepo,
		slotRepo:    slotRepo,
		profileRepo: profileRepo,
		hub:         hub,
	}
}

// RegisterRoutes mounts the patient-facing surface on an authenticated group.
func (h *BookingHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/doctors", h.ListDoctors)
	g.GET("/doctors/:id/slots", h.ListAvailableSlots)

	g.POST("/bookings", h.CreateBooking)
	g.GET("/bookings/:id", h.GetBooking)
	g.POST("/bookings/:id/payment", h.ConfirmPayment)
	g.DELETE("/bookings/:id", h.CancelBooking)
	g.GET("/bookings/:id/queue", h.GetQueuePosition)
	g.GET("/bookings/:id/events", h.StreamBookingEvents)

	g.GET("/me/bookings", h.ListMyBookings)
	g.GET("/me/profile", h.GetMyProfile)
	g.PUT("/me/profile", h.UpsertMyProfile)
}

func (h *BookingHandler) ListDoctors(c echo.Context) error {
	doctors, err := h.doctorRepo.FindAll(c.Request().Context(), true)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, doctors)
}

func (h *BookingHandler) ListAvailableSlots(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	date, err := time.Parse("2006-01-02", c.QueryParam("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "date is required (YYYY-MM-DD)")
	}

	slots, err := h.slotRepo.FindAvailable(c.Request().Context(), doctorID, date)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, slots)
}

func (h *BookingHandler) CreateBooking(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var req dto.CreateBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	slotID, err := uuid.Parse(req.SlotID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid slot_id")
	}
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
	}
	if req.ProblemDescription == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "problem_description is required")
	}

	booking, err := h.svc.CreateBooking(c.Request().Context(), userID, slotID, doctorID, req.ProblemDescription)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusCreated, dto.ToBookingResponse(booking))
}

func (h *BookingHandler) GetBooking(c echo.Context) error {
	booking, err := h.ownBooking(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dto.ToBookingResponse(booking))
}

func (h *BookingHandler) ConfirmPayment(c echo.Context) error {
	if _, err := h.ownBooking(c); err != nil {
		return err
	}
	id, _ := uuid.Parse(c.Param("id"))

	booking, err := h.svc.ConfirmPayment(c.Request().Context(), id)
	if errors.Is(err, service.ErrSlotBecameFull) {
		// The force-cancel has already committed; surface both.
		return c.JSON(http.StatusConflict, map[string]any{
			"message": err.Error(),
			"booking": dto.ToBookingResponse(booking),
		})
	}
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, dto.ToBookingResponse(booking))
}

func (h *BookingHandler) CancelBooking(c echo.Context) error {
	if _, err := h.ownBooking(c); err != nil {
		return err
	}
	id, _ := uuid.Parse(c.Param("id"))

	booking, err := h.svc.CancelBooking(c.Request().Context(), id)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, dto.ToBookingResponse(booking))
}

func (h *BookingHandler) GetQueuePosition(c echo.Context) error {
	if _, err := h.ownBooking(c); err != nil {
		return err
	}
	id, _ := uuid.Parse(c.Param("id"))

	projection, err := h.svc.GetQueuePosition(c.Request().Context(), id)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, dto.ToQueuePositionResponse(projection))
}

// StreamBookingEvents pushes hub events for one booking over SSE. The client
// is expected to re-read the queue projection on every event.
func (h *BookingHandler) StreamBookingEvents(c echo.Context) error {
	if h.hub == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "event stream not available")
	}
	if _, err := h.ownBooking(c); err != nil {
		return err
	}
	id, _ := uuid.Parse(c.Param("id"))

	events, cancel := h.hub.SubscribeBooking(id)
	defer cancel()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", ev.Type, payload)
			resp.Flush()
		}
	}
}

func (h *BookingHandler) ListMyBookings(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	bookings, err := h.svc.ListUserBookings(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, dto.ToBookingResponses(bookings))
}

func (h *BookingHandler) GetMyProfile(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	profile, err := h.profileRepo.FindByUserID(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "profile not found")
	}
	return c.JSON(http.StatusOK, profile)
}

func (h *BookingHandler) UpsertMyProfile(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var req dto.UpsertProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}

	profile := &models.Profile{UserID: userID, Name: req.Name, Phone: req.Phone}
	if err := h.profileRepo.Upsert(c.Request().Context(), profile); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, profile)
}

// ownBooking loads the booking from the :id param and enforces that the
// caller owns it or is staff.
func (h *BookingHandler) ownBooking(c echo.Context) (*models.Booking, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid booking id")
	}

	booking, err := h.svc.GetBooking(c.Request().Context(), id)
	if err != nil {
		return nil, serviceError(err)
	}

	if middleware.IsAdmin(c) {
		return booking, nil
	}
	userID, ok := middleware.UserID(c)
	if !ok || booking.UserID == nil || *booking.UserID != userID {
		return nil, echo.NewHTTPError(http.StatusForbidden, "not your booking")
	}
	return booking, nil
}

// serviceError maps service sentinels onto HTTP status codes.
func serviceError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, service.ErrSlotNotFound),
		errors.Is(err, service.ErrBookingNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrSlotUnavailable),
		errors.Is(err, service.ErrSlotFull),
		errors.Is(err, service.ErrSlotBecameFull),
		errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrDoctorMismatch):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
