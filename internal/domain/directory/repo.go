package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a department or user does not exist.
var ErrNotFound = errors.New("not found")

// DepartmentRepository defines the persistence interface for
// departments.
type DepartmentRepository interface {
	Create(ctx context.Context, d *Department) error
	GetByID(ctx context.Context, id uuid.UUID) (*Department, error)
	Update(ctx context.Context, d *Department) error
	List(ctx context.Context, limit, offset int) ([]*Department, int, error)
}

// UserRepository defines the persistence interface for directory users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Update(ctx context.Context, u *User) error
	ListByDepartment(ctx context.Context, deptID uuid.UUID) ([]*User, error)
	List(ctx context.Context, limit, offset int) ([]*User, int, error)
}
