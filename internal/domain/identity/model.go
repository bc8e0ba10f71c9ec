package identity

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("user not found")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrDuplicateUsername = errors.New("username already taken")
)

// User is an account holder. The password hash never leaves the service.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Session is what a successful login hands back: a short-lived access token
// and the raw refresh token destined for the cookie.
type Session struct {
	AccessToken  string
	RefreshToken string
}

// normalizeEmail lower-cases and trims an address so lookups are exact.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// usernameBaseLen leaves room for a suffix within the 64 character column.
const usernameBaseLen = 56

// defaultUsername derives a username from the local part of an email. A
// non-zero attempt appends a random four digit suffix, used when the plain
// local part is already taken by another address.
func defaultUsername(email string, attempt int) string {
	local, _, _ := strings.Cut(email, "@")
	if len(local) > usernameBaseLen {
		local = local[:usernameBaseLen]
	}
	if attempt == 0 {
		return local
	}
	return fmt.Sprintf("%s%04d", local, rand.Intn(10000))
}
