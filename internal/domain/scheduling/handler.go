package scheduling

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthassist/healthassist/internal/platform/auth"
	"github.com/healthassist/healthassist/internal/platform/httpx"
	"github.com/healthassist/healthassist/pkg/apperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/appointment")
	g.POST("/available-slots", h.AvailableSlots)
	g.POST("/book", h.Book)
	g.POST("/cancel", h.Cancel)
	g.PATCH("/:id/cancel", h.CancelByPath)
	g.POST("/my-appointments", h.MyAppointments)

	d := e.Group("/doctors")
	d.GET("", h.ListDoctors)
	d.GET("/:id/availability", h.Availability)
}

type availableSlotsRequest struct {
	Date             string `json:"date" validate:"required,datetime=2006-01-02"`
	DoctorID         string `json:"doctorId"`
	SpecializationID string `json:"specializationId"`
	HospitalID       string `json:"hospitalId"`
}

type bookRequest struct {
	DoctorID        string    `json:"doctorId" validate:"required"`
	AppointmentTime time.Time `json:"appointmentTime" validate:"required"`
	Notes           string    `json:"notes" validate:"max=1000"`
}

type cancelRequest struct {
	AppointmentID string `json:"appointmentId" validate:"required"`
}

type myAppointmentsRequest struct {
	Status string     `json:"status" validate:"omitempty,oneof=SCHEDULED COMPLETED CANCELLED"`
	From   *time.Time `json:"from"`
	To     *time.Time `json:"to"`
	Limit  int        `json:"limit" validate:"min=0"`
	Offset int        `json:"offset" validate:"min=0"`
}

func (h *Handler) AvailableSlots(c echo.Context) error {
	var req availableSlotsRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	var f DoctorFilter
	var err error
	if f.DoctorID, err = optionalID("doctorId", req.DoctorID); err != nil {
		return err
	}
	if f.SpecializationID, err = optionalID("specializationId", req.SpecializationID); err != nil {
		return err
	}
	if f.HospitalID, err = optionalID("hospitalId", req.HospitalID); err != nil {
		return err
	}
	doctors, err := h.svc.GetAvailableSlots(c.Request().Context(), req.Date, f)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, "Available slots fetched successfully", doctors)
}

func (h *Handler) Book(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req bookRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	doctorID, err := parseID("doctorId", req.DoctorID)
	if err != nil {
		return err
	}
	appt, err := h.svc.BookAppointment(c.Request().Context(), userID, doctorID, req.AppointmentTime, req.Notes)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusCreated, "Appointment booked successfully", appt)
}

func (h *Handler) Cancel(c echo.Context) error {
	var req cancelRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	return h.cancel(c, req.AppointmentID)
}

func (h *Handler) CancelByPath(c echo.Context) error {
	return h.cancel(c, c.Param("id"))
}

func (h *Handler) cancel(c echo.Context, rawID string) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := parseID("appointmentId", rawID)
	if err != nil {
		return err
	}
	appt, err := h.svc.CancelAppointment(c.Request().Context(), userID, id)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, "Appointment cancelled successfully", appt)
}

func (h *Handler) MyAppointments(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req myAppointmentsRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	page, err := h.svc.GetUserAppointments(c.Request().Context(), userID, AppointmentFilter{
		Status: AppointmentStatus(req.Status),
		From:   req.From,
		To:     req.To,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, "Appointments fetched successfully", page)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	f := DoctorFilter{}
	var err error
	if f.SpecializationID, err = queryID(c, "specializationId"); err != nil {
		return err
	}
	if f.HospitalID, err = queryID(c, "hospitalId"); err != nil {
		return err
	}
	doctors, err := h.svc.ListDoctors(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, "Doctors fetched successfully", doctors)
}

func (h *Handler) Availability(c echo.Context) error {
	id, err := parseID("doctor id", c.Param("id"))
	if err != nil {
		return err
	}
	date := c.QueryParam("date")
	if date == "" {
		return apperr.BadRequest("A valid date in YYYY-MM-DD format is required.")
	}
	slots, err := h.svc.DoctorAvailability(c.Request().Context(), id, date)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, "Availability fetched successfully", map[string]any{"availableSlots": slots})
}

func currentUser(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, apperr.Unauthorized("authentication required")
	}
	return id, nil
}

// parseID accepts any UUID spelling uuid.Parse does, including upper case.
func parseID(name, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.BadRequest(name + " must be a valid UUID")
	}
	return id, nil
}

// optionalID is parseID for ids that may be left out.
func optionalID(name, raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := parseID(name, raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func queryID(c echo.Context, name string) (*uuid.UUID, error) {
	return optionalID(name, c.QueryParam(name))
}
