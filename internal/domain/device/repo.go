package device

import (
	"context"

	"github.com/google/uuid"
)

// RegistrationRepository defines the persistence interface for device
// registrations. Upsert is keyed by (user_id, device_id) and overwrites
// a stale token rather than duplicating it.
type RegistrationRepository interface {
	Upsert(ctx context.Context, r *Registration) error
	DeleteByDeviceID(ctx context.Context, deviceID string) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Registration, error)
	ListByUsers(ctx context.Context, userIDs []uuid.UUID) ([]*Registration, error)
}
