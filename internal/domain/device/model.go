// Package device is the push-device registry: it maps a user to zero or
// more push-capable device tokens and serves only as a delivery target
// list for the notification dispatcher. Registration is owned by the
// device itself and overwritten on each call; it never blocks the flow
// that triggered it.
package device

import (
	"time"

	"github.com/google/uuid"
)

// Registration maps to the device_registration table. At most one
// active token exists per (user, device); a re-registration supersedes
// the stored token.
type Registration struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	DeviceID  string    `db:"device_id" json:"device_id"`
	Token     string    `db:"token" json:"token"`
	Platform  string    `db:"platform" json:"platform"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
