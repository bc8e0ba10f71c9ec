package identity

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	// Create returns ErrDuplicateEmail or ErrDuplicateUsername on a unique
	// constraint violation.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}
