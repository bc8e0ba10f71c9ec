package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/healthassist/healthassist/pkg/apperr"
)

// refreshTokenBytes is the entropy of a raw refresh token before hex encoding.
const refreshTokenBytes = 32

var (
	ErrNotFound     = errors.New("auth token not found")
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")
	ErrUnknownUser  = errors.New("unknown user")
)

// Claims carried by an access token: sub is the user id, jti identifies the
// token for revocation.
type Claims struct {
	jwt.RegisteredClaims
}

// AuthToken is the persisted half of a refresh token. Only the SHA-256 digest
// of the raw token is stored.
type AuthToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresOn time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TokenStore persists at most one AuthToken per user.
type TokenStore interface {
	// Upsert replaces the user's token, if any.
	Upsert(ctx context.Context, userID, tokenHash string, expiresOn time.Time) error
	// Get returns ErrNotFound when the user has no token.
	Get(ctx context.Context, userID string) (*AuthToken, error)
	Delete(ctx context.Context, userID string) error
}

// UserLookup lets the token service confirm a subject still exists.
type UserLookup interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

type TokenConfig struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenService issues and validates access and refresh tokens.
type TokenService struct {
	store   TokenStore
	users   UserLookup
	cfg     TokenConfig
	revoked *TokenRevocationStore
	now     func() time.Time
}

type TokenOption func(*TokenService)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// WithRevocationStore enables access-token revocation on logout.
func WithRevocationStore(r *TokenRevocationStore) TokenOption {
	return func(s *TokenService) { s.revoked = r }
}

func NewTokenService(store TokenStore, users UserLookup, cfg TokenConfig, opts ...TokenOption) *TokenService {
	s := &TokenService{store: store, users: users, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RefreshTTL is used by the HTTP layer for the cookie lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.cfg.RefreshTTL }

// IssueRefreshToken creates a new refresh token for userID, replacing any
// previous one, and returns the raw token. The raw value is never stored.
func (s *TokenService) IssueRefreshToken(ctx context.Context, userID string) (string, error) {
	if err := s.checkUser(ctx, userID); err != nil {
		return "", err
	}

	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", apperr.Internal(fmt.Errorf("generate refresh token: %w", err))
	}
	raw := hex.EncodeToString(buf)

	expires := s.now().UTC().Add(s.cfg.RefreshTTL)
	if err := s.store.Upsert(ctx, userID, hashToken(raw), expires); err != nil {
		return "", apperr.Internal(fmt.Errorf("store refresh token: %w", err))
	}
	return raw, nil
}

// IssueAccessToken signs a new access token for userID after re-validating
// the caller's refresh token against the stored digest.
func (s *TokenService) IssueAccessToken(ctx context.Context, userID, rawRefresh string) (string, error) {
	if err := s.checkUser(ctx, userID); err != nil {
		return "", err
	}
	if err := s.validateRefresh(ctx, userID, rawRefresh); err != nil {
		return "", err
	}
	return s.sign(userID)
}

// VerifyAccessToken checks signature, algorithm, expiry and revocation.
// Expiry is reported as ErrTokenExpired in the error chain so the HTTP layer
// can tell clients a refresh is worth attempting.
func (s *TokenService) VerifyAccessToken(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, unauthorized(ErrTokenExpired)
	case err != nil:
		return nil, unauthorized(fmt.Errorf("%w: %v", ErrTokenInvalid, err))
	case claims.Subject == "":
		return nil, unauthorized(ErrTokenInvalid)
	}
	if s.revoked != nil && claims.ID != "" && s.revoked.IsRevoked(claims.ID) {
		return nil, unauthorized(ErrTokenRevoked)
	}
	return claims, nil
}

// VerifyRefreshToken recovers the user from an access token whose signature
// is valid but which may have expired, then validates rawRefresh for that
// user. It returns the user id.
func (s *TokenService) VerifyRefreshToken(ctx context.Context, accessToken, rawRefresh string) (string, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(accessToken, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || claims.Subject == "" {
		return "", unauthorized(ErrTokenInvalid)
	}
	if err := s.validateRefresh(ctx, claims.Subject, rawRefresh); err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Refresh exchanges an expired access token plus a valid refresh token for a
// new access token. The refresh token itself is not rotated.
func (s *TokenService) Refresh(ctx context.Context, accessToken, rawRefresh string) (string, error) {
	userID, err := s.VerifyRefreshToken(ctx, accessToken, rawRefresh)
	if err != nil {
		return "", err
	}
	return s.IssueAccessToken(ctx, userID, rawRefresh)
}

// Revoke deletes the user's refresh token.
func (s *TokenService) Revoke(ctx context.Context, userID string) error {
	if err := s.store.Delete(ctx, userID); err != nil {
		return apperr.Internal(fmt.Errorf("delete refresh token: %w", err))
	}
	return nil
}

// RevokeAccess blocks an access token until its natural expiry.
func (s *TokenService) RevokeAccess(claims *Claims) {
	if s.revoked == nil || claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return
	}
	s.revoked.Revoke(claims.ID, claims.ExpiresAt.Time)
}

func (s *TokenService) validateRefresh(ctx context.Context, userID, raw string) error {
	if raw == "" {
		return unauthorized(ErrTokenInvalid)
	}
	stored, err := s.store.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return unauthorized(ErrNotFound)
	}
	if err != nil {
		return apperr.Internal(fmt.Errorf("load refresh token: %w", err))
	}
	// Equality is expired.
	if !s.now().Before(stored.ExpiresOn) {
		return unauthorized(ErrTokenExpired)
	}
	if subtle.ConstantTimeCompare([]byte(hashToken(raw)), []byte(stored.TokenHash)) != 1 {
		return unauthorized(ErrTokenInvalid)
	}
	return nil
}

func (s *TokenService) checkUser(ctx context.Context, userID string) error {
	if userID == "" {
		return unauthorized(ErrUnknownUser)
	}
	if s.users == nil {
		return nil
	}
	ok, err := s.users.UserExists(ctx, userID)
	if err != nil {
		return apperr.Internal(fmt.Errorf("look up user: %w", err))
	}
	if !ok {
		return unauthorized(ErrUnknownUser)
	}
	return nil
}

func (s *TokenService) sign(userID string) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", apperr.Internal(fmt.Errorf("sign access token: %w", err))
	}
	return token, nil
}

func (s *TokenService) keyFunc(t *jwt.Token) (interface{}, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
	return s.cfg.Secret, nil
}

func unauthorized(err error) error {
	return apperr.Wrap(err, apperr.KindUnauthorized, "invalid or expired token")
}

// hashToken returns the hex-encoded SHA-256 digest of a raw refresh token.
func hashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
