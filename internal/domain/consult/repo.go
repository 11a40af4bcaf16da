package consult

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter restricts consult listing. Zero values mean "any".
type ListFilter struct {
	TargetDeptID     uuid.UUID
	RequestingDeptID uuid.UUID
	PatientID        uuid.UUID
	AssignedTo       uuid.UUID
	Status           Status
}

// ConsultRepository is the persistence interface for consult requests.
// Update is the optimistic write: it must apply the new record only if
// the stored version still equals expectedVersion, returning
// ErrConflict otherwise, and bump the version by one on success.
type ConsultRepository interface {
	Create(ctx context.Context, c *ConsultRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*ConsultRequest, error)
	Update(ctx context.Context, c *ConsultRequest, expectedVersion int) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*ConsultRequest, int, error)
	ListOpen(ctx context.Context) ([]*ConsultRequest, error)
}

// NoteRepository is the persistence interface for consult notes. Notes
// are append-only; there is no update or delete.
type NoteRepository interface {
	Append(ctx context.Context, n *ConsultNote) error
	ListByConsult(ctx context.Context, consultID uuid.UUID, limit, offset int) ([]*ConsultNote, int, error)
}
