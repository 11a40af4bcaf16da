package device

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/dispatch"
)

// Service manages push registrations and acts as the dispatcher's
// device target source.
type Service struct {
	repo   RegistrationRepository
	logger zerolog.Logger
}

func NewService(repo RegistrationRepository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("component", "device").Logger()}
}

// Register upserts the (user, device) registration. Idempotent: calling
// it again with a fresh token overwrites the stale one.
func (s *Service) Register(ctx context.Context, userID uuid.UUID, deviceID, token, platform string) (*Registration, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}
	if platform != "ios" && platform != "android" {
		return nil, fmt.Errorf("platform must be ios or android")
	}

	r := &Registration{
		UserID:   userID,
		DeviceID: deviceID,
		Token:    token,
		Platform: platform,
	}
	if err := s.repo.Upsert(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Unregister removes the device's registration. Best-effort: a failure
// is logged and swallowed, degrading to "no push for this device" while
// live delivery continues to work.
func (s *Service) Unregister(ctx context.Context, deviceID string) {
	if err := s.repo.DeleteByDeviceID(ctx, deviceID); err != nil {
		s.logger.Warn().Err(err).Str("device_id", deviceID).Msg("unregister failed")
	}
}

// ListForUser returns the user's registered devices.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]*Registration, error) {
	return s.repo.ListByUser(ctx, userID)
}

// TokensForUsers implements dispatch.DeviceSource.
func (s *Service) TokensForUsers(ctx context.Context, userIDs []uuid.UUID) ([]dispatch.DeviceToken, error) {
	regs, err := s.repo.ListByUsers(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	tokens := make([]dispatch.DeviceToken, 0, len(regs))
	for _, r := range regs {
		tokens = append(tokens, dispatch.DeviceToken{
			UserID:   r.UserID,
			DeviceID: r.DeviceID,
			Token:    r.Token,
			Platform: r.Platform,
		})
	}
	return tokens, nil
}
