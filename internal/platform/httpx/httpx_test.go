package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthassist/healthassist/pkg/apperr"
)

func newTestEcho() *echo.Echo {
	e := echo.New()
	Configure(e, zerolog.Nop())
	return e
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	return env
}

func TestErrorHandler_MapsKinds(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"bad request", apperr.BadRequest("date is required"), http.StatusBadRequest, "date is required"},
		{"unauthorized", apperr.Unauthorized("invalid or expired token"), http.StatusUnauthorized, "invalid or expired token"},
		{"forbidden", apperr.Forbidden("not yours"), http.StatusForbidden, "not yours"},
		{"not found", apperr.NotFound("appointment not found"), http.StatusNotFound, "appointment not found"},
		{"conflict", apperr.Conflict("slot taken"), http.StatusConflict, "slot taken"},
		{"internal hides cause", apperr.Internal(errors.New("pq: relation does not exist")), http.StatusInternalServerError, "internal server error"},
		{"unclassified", errors.New("driver exploded"), http.StatusInternalServerError, "internal server error"},
		{"echo 404", echo.ErrNotFound, http.StatusNotFound, "Not Found"},
		{"echo 429", echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded"), http.StatusTooManyRequests, "rate limit exceeded"},
	}

	e := newTestEcho()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			e.HTTPErrorHandler(tt.err, c)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			env := decodeEnvelope(t, rec)
			if env.OK {
				t.Error("expected ok=false")
			}
			if env.Message != tt.wantMsg {
				t.Errorf("expected message %q, got %q", tt.wantMsg, env.Message)
			}
			if env.Data != nil {
				t.Errorf("expected null data, got %v", env.Data)
			}
		})
	}
}

func TestErrorHandler_NullDataInBody(t *testing.T) {
	e := newTestEcho()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	e.HTTPErrorHandler(apperr.NotFound("x"), e.NewContext(req, rec))

	if !strings.Contains(rec.Body.String(), `"data":null`) {
		t.Errorf("expected explicit null data, got %s", rec.Body.String())
	}
}

type registerInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func TestBind_ValidatesWithJSONNames(t *testing.T) {
	e := newTestEcho()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"not-an-email","password":"x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	var in registerInput
	err := Bind(c, &in)
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError in chain, got %T", err)
	}
	if _, ok := verr.Errors["email"]; !ok {
		t.Errorf("expected email error, got %v", verr.Errors)
	}
	if _, ok := verr.Errors["password"]; !ok {
		t.Errorf("expected password error, got %v", verr.Errors)
	}
}

func TestBind_MalformedJSON(t *testing.T) {
	e := newTestEcho()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	var in registerInput
	if err := Bind(c, &in); !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestBind_Valid(t *testing.T) {
	e := newTestEcho()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.test","password":"longenough"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	var in registerInput
	if err := Bind(c, &in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Email != "a@b.test" {
		t.Errorf("unexpected email %q", in.Email)
	}
}

func TestRespond(t *testing.T) {
	e := newTestEcho()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	if err := Respond(c, http.StatusCreated, "created", map[string]string{"id": "1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if !env.OK || env.Message != "created" {
		t.Errorf("unexpected envelope %+v", env)
	}
}

type failingBody struct{ err error }

func (f failingBody) Read([]byte) (int, error) { return 0, f.err }

func TestBind_BodyLimitIsTooLarge(t *testing.T) {
	e := newTestEcho()
	req := httptest.NewRequest(http.MethodPost, "/appointment/book", failingBody{err: ErrBodyTooLarge})
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.ContentLength = -1
	c := e.NewContext(req, httptest.NewRecorder())

	var dst struct {
		Notes string `json:"notes"`
	}
	err := Bind(c, &dst)
	if !apperr.Is(err, apperr.KindTooLarge) {
		t.Fatalf("expected TooLarge, got %v", err)
	}
	if status, _ := Classify(err); status != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", status)
	}
}
