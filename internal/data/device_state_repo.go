package data

import (
	"context"
	"database/sql"
	"errors"

	apperrors "github.com/target/opsconsole/internal/errors"
	"github.com/target/opsconsole/internal/ports"
)

var _ ports.DeviceStore = (*DeviceStateRepo)(nil)

// DeviceStateRepo is a ports.DeviceStore over the device_state table.
// Rows are scoped by device ID so several consoles can share one database.
type DeviceStateRepo struct {
	DB       *sql.DB
	deviceID string
}

// NewDeviceStateRepo creates a repo for deviceID.
func NewDeviceStateRepo(db *sql.DB, deviceID string) *DeviceStateRepo {
	return &DeviceStateRepo{DB: db, deviceID: deviceID}
}

func (r *DeviceStateRepo) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.DB.QueryRowContext(ctx,
		`SELECT value FROM device_state WHERE device_id = $1 AND key = $2`,
		r.deviceID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("key %q not found", key)
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return value, nil
}

func (r *DeviceStateRepo) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return apperrors.ValidationField("key", "key cannot be empty")
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO device_state (device_id, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (device_id, key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		r.deviceID, key, value,
	)
	return apperrors.MapDBError(err)
}

func (r *DeviceStateRepo) Delete(ctx context.Context, key string) error {
	_, err := r.DB.ExecContext(ctx,
		`DELETE FROM device_state WHERE device_id = $1 AND key = $2`,
		r.deviceID, key,
	)
	return apperrors.MapDBError(err)
}
