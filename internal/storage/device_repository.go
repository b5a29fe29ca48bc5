package storage

import (
	"context"
	"fmt"

	"github.com/carbon-registry/internal/models"
)

// DeviceRepository handles durable persistence of registered devices.
// The in-memory ledger is authoritative at runtime; this repository is
// the write-through mirror used to rehydrate the ledger on startup.
type DeviceRepository struct {
	db *PostgresDB
}

// NewDeviceRepository creates a new device repository
func NewDeviceRepository(db *PostgresDB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Create inserts a newly registered device
func (r *DeviceRepository) Create(ctx context.Context, device *models.IoTDevice) error {
	query := `
		INSERT INTO devices (device_id, owner, device_type, is_active, last_data_timestamp, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		device.DeviceID,
		device.Owner,
		device.DeviceType,
		device.IsActive,
		device.LastDataTimestamp,
		device.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}

	return nil
}

// SetActive updates a device's active flag
func (r *DeviceRepository) SetActive(ctx context.Context, deviceID string, active bool) error {
	query := `UPDATE devices SET is_active = $2 WHERE device_id = $1`

	_, err := r.db.Pool().Exec(ctx, query, deviceID, active)
	if err != nil {
		return fmt.Errorf("failed to update device active flag: %w", err)
	}

	return nil
}

// TouchLastData updates a device's last data timestamp
func (r *DeviceRepository) TouchLastData(ctx context.Context, device *models.IoTDevice) error {
	query := `UPDATE devices SET last_data_timestamp = $2 WHERE device_id = $1`

	_, err := r.db.Pool().Exec(ctx, query, device.DeviceID, device.LastDataTimestamp)
	if err != nil {
		return fmt.Errorf("failed to update device last data timestamp: %w", err)
	}

	return nil
}

// ListAll returns every registered device, for ledger rehydration
func (r *DeviceRepository) ListAll(ctx context.Context) ([]*models.IoTDevice, error) {
	query := `
		SELECT device_id, owner, device_type, is_active, last_data_timestamp, registered_at
		FROM devices
		ORDER BY registered_at
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []*models.IoTDevice
	for rows.Next() {
		var device models.IoTDevice
		err := rows.Scan(
			&device.DeviceID,
			&device.Owner,
			&device.DeviceType,
			&device.IsActive,
			&device.LastDataTimestamp,
			&device.RegisteredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, &device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}

	return devices, nil
}
