// Package ocr forwards prescription scan requests to an external OCR
// webhook and hands its answer back to the client untouched.
package ocr

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthassist/healthassist/internal/platform/storage"
	"github.com/healthassist/healthassist/pkg/apperr"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	TimestampHeader = "X-Webhook-Timestamp"

	maxResponseBytes = 1 << 20
)

// SignPayload returns the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// FileOwner resolves a storage key to a file the user owns.
type FileOwner interface {
	OwnedFile(ctx context.Context, userID uuid.UUID, key string) (*storage.File, error)
}

type Config struct {
	WebhookURL string
	Secret     string
	Timeout    time.Duration
}

type Option func(*Relay)

func WithHTTPClient(c *http.Client) Option {
	return func(r *Relay) { r.client = c }
}

type Relay struct {
	cfg    Config
	files  FileOwner
	client *http.Client
	logger zerolog.Logger
	now    func() time.Time
}

func NewRelay(cfg Config, files FileOwner, logger zerolog.Logger, opts ...Option) *Relay {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	r := &Relay{
		cfg:    cfg,
		files:  files,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		now:    time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

type scanPayload struct {
	Key    string `json:"key"`
	Bucket string `json:"bucket"`
	UserID string `json:"userId"`
}

// Scan sends the file's location to the OCR webhook and returns the raw
// JSON it answered with.
func (r *Relay) Scan(ctx context.Context, userID uuid.UUID, key string) (json.RawMessage, error) {
	if r.cfg.WebhookURL == "" {
		return nil, apperr.New(apperr.KindUnavailable, "scanning unavailable")
	}
	f, err := r.files.OwnedFile(ctx, userID, key)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(scanPayload{Key: f.Key, Bucket: f.Bucket, UserID: userID.String()})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("ocr: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TimestampHeader, r.now().UTC().Format(time.RFC3339))
	if r.cfg.Secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+SignPayload(payload, r.cfg.Secret))
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Error().Err(err).Str("key", key).Msg("ocr webhook request failed")
		return nil, apperr.Internal(fmt.Errorf("ocr: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("ocr: read response: %w", err))
	}
	log := r.logger.With().Str("key", key).Int("status", resp.StatusCode).Dur("latency", time.Since(start)).Logger()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().Bytes("body", truncate(body, 512)).Msg("ocr webhook returned an error")
		return nil, apperr.Internal(fmt.Errorf("ocr: non-2xx response: %d", resp.StatusCode))
	}
	if !json.Valid(body) {
		log.Error().Msg("ocr webhook returned invalid JSON")
		return nil, apperr.Internal(fmt.Errorf("ocr: invalid JSON response"))
	}
	log.Info().Msg("prescription scanned")
	return json.RawMessage(body), nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
