package identity

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/healthassist/healthassist/internal/platform/auth"
	"github.com/healthassist/healthassist/internal/platform/httpx"
)

const RefreshCookieName = "refreshToken"

type Handler struct {
	svc          *Service
	refreshTTL   time.Duration
	cookieSecure bool
}

func NewHandler(svc *Service, refreshTTL time.Duration, cookieSecure bool) *Handler {
	return &Handler{svc: svc, refreshTTL: refreshTTL, cookieSecure: cookieSecure}
}

// RegisterRoutes mounts the auth endpoints. limit is applied to login and
// registration only.
func (h *Handler) RegisterRoutes(e *echo.Echo, limit echo.MiddlewareFunc) {
	g := e.Group("/auth")
	g.POST("/register", h.Register, limit)
	g.POST("/login", h.Login, limit)
	g.POST("/refresh", h.Refresh)
	g.POST("/logout", h.Logout)

	e.GET("/users/me", h.Me)
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=320"`
	Username string `json:"username" validate:"omitempty,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
}

func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	if _, err := h.svc.Register(c.Request().Context(), req.Email, req.Username, req.Password); err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusCreated, "Registered successfully", nil)
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	sess, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	c.SetCookie(h.refreshCookie(sess.RefreshToken, int(h.refreshTTL.Seconds())))
	return httpx.Respond(c, http.StatusOK, "Logged in successfully", tokenResponse{AccessToken: sess.AccessToken})
}

func (h *Handler) Refresh(c echo.Context) error {
	access, _ := auth.BearerToken(c)
	var refresh string
	if ck, err := c.Cookie(RefreshCookieName); err == nil {
		refresh = ck.Value
	}

	token, err := h.svc.Refresh(c.Request().Context(), access, refresh)
	if err != nil {
		c.SetCookie(h.refreshCookie("", -1))
		return err
	}
	return httpx.Respond(c, http.StatusCreated, "Access token generated", tokenResponse{AccessToken: token})
}

func (h *Handler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.svc.Logout(ctx, auth.UserIDFromContext(ctx), auth.ClaimsFromContext(ctx)); err != nil {
		return err
	}
	c.SetCookie(h.refreshCookie("", -1))
	return httpx.Respond(c, http.StatusOK, "Logged out successfully", nil)
}

func (h *Handler) Me(c echo.Context) error {
	ctx := c.Request().Context()
	u, err := h.svc.GetUser(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, "User fetched successfully", u)
}

// refreshCookie builds the refresh token cookie. A negative maxAge deletes it.
func (h *Handler) refreshCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
}
