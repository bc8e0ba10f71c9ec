package ocr

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthassist/healthassist/internal/platform/auth"
	"github.com/healthassist/healthassist/internal/platform/httpx"
	"github.com/healthassist/healthassist/internal/platform/storage"
	"github.com/healthassist/healthassist/pkg/apperr"
)

const testSecret = "ocr-shared-secret"

type staticFiles struct {
	owner uuid.UUID
	file  storage.File
}

func (s staticFiles) OwnedFile(_ context.Context, userID uuid.UUID, key string) (*storage.File, error) {
	if key != s.file.Key || userID != s.owner {
		return nil, apperr.NotFound("file not found")
	}
	f := s.file
	return &f, nil
}

func newFiles() staticFiles {
	owner := uuid.New()
	return staticFiles{owner: owner, file: storage.File{
		ID: uuid.New(), UserID: owner, Key: "prescriptions/abc.pdf", Bucket: "rx",
	}}
}

func TestSignPayload(t *testing.T) {
	payload := []byte(`{"key":"k"}`)
	sig := SignPayload(payload, "s")
	if len(sig) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(sig))
	}
	if sig != SignPayload(payload, "s") {
		t.Error("signature is not deterministic")
	}
	if sig == SignPayload(payload, "other") || sig == SignPayload([]byte(`{}`), "s") {
		t.Error("signature ignores secret or payload")
	}
}

func TestRelay_Scan(t *testing.T) {
	files := newFiles()
	var got scanPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Header.Get(SignatureHeader) != "sha256="+SignPayload(body, testSecret) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get(TimestampHeader) == "" {
			t.Error("missing timestamp header")
		}
		json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"medications":[{"name":"Metformin","dose":"500mg"}]}`))
	}))
	defer srv.Close()

	relay := NewRelay(Config{WebhookURL: srv.URL, Secret: testSecret}, files, zerolog.Nop())
	out, err := relay.Scan(context.Background(), files.owner, files.file.Key)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if string(out) != `{"medications":[{"name":"Metformin","dose":"500mg"}]}` {
		t.Errorf("body not passed through: %s", out)
	}
	if got.Key != files.file.Key || got.Bucket != "rx" || got.UserID != files.owner.String() {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestRelay_Scan_Errors(t *testing.T) {
	files := newFiles()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model offline", http.StatusBadGateway)
	}))
	defer failing.Close()
	notJSON := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer notJSON.Close()
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	tests := []struct {
		name string
		cfg  Config
		user uuid.UUID
		kind apperr.Kind
	}{
		{"not configured", Config{}, files.owner, apperr.KindUnavailable},
		{"not owner", Config{WebhookURL: failing.URL}, uuid.New(), apperr.KindNotFound},
		{"non-2xx", Config{WebhookURL: failing.URL}, files.owner, apperr.KindInternal},
		{"invalid json", Config{WebhookURL: notJSON.URL}, files.owner, apperr.KindInternal},
		{"timeout", Config{WebhookURL: slow.URL, Timeout: 50 * time.Millisecond}, files.owner, apperr.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relay := NewRelay(tt.cfg, files, zerolog.Nop())
			_, err := relay.Scan(context.Background(), tt.user, files.file.Key)
			if err == nil || apperr.KindOf(err) != tt.kind {
				t.Errorf("got %v, want kind %v", err, tt.kind)
			}
		})
	}
}

func TestHandler_Scan(t *testing.T) {
	files := newFiles()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text":"Rx"}`))
	}))
	defer srv.Close()

	e := echo.New()
	httpx.Configure(e, zerolog.Nop())
	h := NewHandler(NewRelay(Config{WebhookURL: srv.URL}, files, zerolog.Nop()))

	req := httptest.NewRequest(http.MethodPost, "/prescriptions/scan", strings.NewReader(`{"key":"prescriptions/abc.pdf"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithUserID(req.Context(), files.owner.String()))
	rec := httptest.NewRecorder()
	if err := h.Scan(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body struct {
		OK   bool            `json:"ok"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.OK || string(body.Data) != `{"text":"Rx"}` {
		t.Errorf("unexpected response: %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/prescriptions/scan", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithUserID(req.Context(), files.owner.String()))
	if err := h.Scan(e.NewContext(req, httptest.NewRecorder())); !apperr.Is(err, apperr.KindBadRequest) {
		t.Errorf("missing key: expected BadRequest, got %v", err)
	}
}
