package device

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type registrationRepoPG struct {
	pool *pgxpool.Pool
}

func NewRegistrationRepo(pool *pgxpool.Pool) RegistrationRepository {
	return &registrationRepoPG{pool: pool}
}

func (r *registrationRepoPG) Upsert(ctx context.Context, reg *Registration) error {
	reg.ID = uuid.New()
	return r.pool.QueryRow(ctx, `
		INSERT INTO device_registration (id, user_id, device_id, token, platform)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, device_id) DO UPDATE
			SET token = EXCLUDED.token,
			    platform = EXCLUDED.platform,
			    updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		reg.ID, reg.UserID, reg.DeviceID, reg.Token, reg.Platform,
	).Scan(&reg.ID, &reg.CreatedAt, &reg.UpdatedAt)
}

func (r *registrationRepoPG) DeleteByDeviceID(ctx context.Context, deviceID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM device_registration WHERE device_id = $1`, deviceID)
	return err
}

func (r *registrationRepoPG) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Registration, error) {
	return r.list(ctx, `
		SELECT id, user_id, device_id, token, platform, created_at, updated_at
		FROM device_registration WHERE user_id = $1`, userID)
}

func (r *registrationRepoPG) ListByUsers(ctx context.Context, userIDs []uuid.UUID) ([]*Registration, error) {
	return r.list(ctx, `
		SELECT id, user_id, device_id, token, platform, created_at, updated_at
		FROM device_registration WHERE user_id = ANY($1)`, userIDs)
}

func (r *registrationRepoPG) list(ctx context.Context, query string, arg interface{}) ([]*Registration, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []*Registration
	for rows.Next() {
		var reg Registration
		if err := rows.Scan(&reg.ID, &reg.UserID, &reg.DeviceID, &reg.Token,
			&reg.Platform, &reg.CreatedAt, &reg.UpdatedAt); err != nil {
			return nil, err
		}
		regs = append(regs, &reg)
	}
	return regs, rows.Err()
}
