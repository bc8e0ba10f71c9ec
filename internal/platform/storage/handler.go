package storage

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthassist/healthassist/internal/platform/auth"
	"github.com/healthassist/healthassist/internal/platform/httpx"
	"github.com/healthassist/healthassist/pkg/apperr"
)

// UploadPath is the route the body limit middleware lets through with the
// larger upload allowance.
const UploadPath = "/files"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST(UploadPath, h.Upload)
}

type uploadResponse struct {
	ID  uuid.UUID `json:"id"`
	URL string    `json:"url"`
	Key string    `json:"key"`
}

func (h *Handler) Upload(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return apperr.Unauthorized("authentication required")
	}

	fh, err := c.FormFile("file")
	if errors.Is(err, httpx.ErrBodyTooLarge) {
		return apperr.Wrap(err, apperr.KindTooLarge, "file is too large")
	}
	if err != nil {
		return apperr.Wrap(err, apperr.KindBadRequest, "file is required")
	}
	if fh.Size > h.svc.MaxSize() {
		return apperr.New(apperr.KindTooLarge, "file is too large")
	}
	src, err := fh.Open()
	if err != nil {
		return apperr.Internal(err)
	}
	defer src.Close()

	f, err := h.svc.Upload(ctx, userID, fh.Filename, fh.Size, src)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusCreated, "File uploaded successfully", uploadResponse{ID: f.ID, URL: f.URL, Key: f.Key})
}
