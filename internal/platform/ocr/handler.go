package ocr

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthassist/healthassist/internal/platform/auth"
	"github.com/healthassist/healthassist/internal/platform/httpx"
	"github.com/healthassist/healthassist/pkg/apperr"
)

type Handler struct {
	relay *Relay
}

// ScanPath is the route of the scan endpoint.
const ScanPath = "/prescriptions/scan"

func NewHandler(relay *Relay) *Handler {
	return &Handler{relay: relay}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST(ScanPath, h.Scan)
}

type scanRequest struct {
	Key string `json:"key" validate:"required,max=512"`
}

func (h *Handler) Scan(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return apperr.Unauthorized("authentication required")
	}
	var req scanRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	result, err := h.relay.Scan(ctx, userID, req.Key)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, "Prescription scanned successfully", result)
}
