package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthassist/healthassist/internal/platform/auth"
	"github.com/healthassist/healthassist/pkg/apperr"
)

// Tokens is the part of the token service the identity flows drive.
type Tokens interface {
	IssueRefreshToken(ctx context.Context, userID string) (string, error)
	IssueAccessToken(ctx context.Context, userID, rawRefresh string) (string, error)
	Refresh(ctx context.Context, accessToken, rawRefresh string) (string, error)
	Revoke(ctx context.Context, userID string) error
	RevokeAccess(claims *auth.Claims)
}

const (
	msgBadCredentials = "invalid email or password"
	usernameAttempts  = 5
)

type Service struct {
	users  UserRepository
	tokens Tokens
	logger zerolog.Logger
}

func NewService(users UserRepository, tokens Tokens, logger zerolog.Logger) *Service {
	return &Service{users: users, tokens: tokens, logger: logger}
}

// Register creates an account. Username defaults to the local part of the
// email.
func (s *Service) Register(ctx context.Context, email, username, password string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.BadRequest("email and password are required")
	}
	derived := username == ""
	if derived {
		username = defaultUsername(email, 0)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindBadRequest, "password cannot be used")
	}

	u := &User{Email: email, Username: username, PasswordHash: hash}
	err = s.users.Create(ctx, u)
	// A derived name may belong to someone with the same local part at
	// another domain; only an explicit username is a caller conflict.
	for attempt := 1; derived && errors.Is(err, ErrDuplicateUsername) && attempt < usernameAttempts; attempt++ {
		u.Username = defaultUsername(email, attempt)
		err = s.users.Create(ctx, u)
	}
	switch {
	case errors.Is(err, ErrDuplicateEmail):
		return nil, apperr.Wrap(err, apperr.KindConflict, "email already exists")
	case errors.Is(err, ErrDuplicateUsername):
		return nil, apperr.Wrap(err, apperr.KindConflict, "username already exists")
	case err != nil:
		return nil, apperr.Internal(fmt.Errorf("register: %w", err))
	}

	s.logger.Info().Str("user_id", u.ID.String()).Msg("user registered")
	return u, nil
}

// Authenticate checks credentials. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.Unauthorized(msgBadCredentials)
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("authenticate: %w", err))
	}

	ok, err := auth.CheckPassword(u.PasswordHash, password)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("authenticate: %w", err))
	}
	if !ok {
		return nil, apperr.Unauthorized(msgBadCredentials)
	}
	return u, nil
}

// Login authenticates and issues a fresh refresh/access token pair. Any
// previous refresh token of the user stops working.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	uid := u.ID.String()

	refresh, err := s.tokens.IssueRefreshToken(ctx, uid)
	if err != nil {
		return nil, err
	}
	access, err := s.tokens.IssueAccessToken(ctx, uid, refresh)
	if err != nil {
		return nil, err
	}
	return &Session{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh trades a possibly expired access token and the refresh token for
// a new access token.
func (s *Service) Refresh(ctx context.Context, accessToken, refreshToken string) (string, error) {
	if accessToken == "" {
		return "", apperr.Unauthorized("no access token found")
	}
	if refreshToken == "" {
		return "", apperr.Unauthorized("no refresh token found")
	}
	return s.tokens.Refresh(ctx, accessToken, refreshToken)
}

// Logout deletes the user's refresh token and revokes the access token the
// request was made with.
func (s *Service) Logout(ctx context.Context, userID string, claims *auth.Claims) error {
	if err := s.tokens.Revoke(ctx, userID); err != nil {
		return err
	}
	s.tokens.RevokeAccess(claims)
	return nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, apperr.NotFound("user not found")
	}
	u, err := s.users.GetByID(ctx, uid)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("get user: %w", err))
	}
	return u, nil
}

// UserLookup adapts a UserRepository to auth.UserLookup.
type UserLookup struct {
	Users UserRepository
}

func (l UserLookup) UserExists(ctx context.Context, id string) (bool, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return false, nil
	}
	return l.Users.Exists(ctx, uid)
}

// EmailFor implements notification.RecipientResolver.
func (l UserLookup) EmailFor(ctx context.Context, userID string) (string, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return "", ErrNotFound
	}
	u, err := l.Users.GetByID(ctx, uid)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}
