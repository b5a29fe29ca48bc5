package models

import (
	"time"
)

// IoTDevice represents a registered monitoring device.
// The owner is set at registration and never changes; a device id can
// never be registered twice, even by its original owner.
type IoTDevice struct {
	DeviceID          string    `json:"deviceId" db:"device_id"`
	Owner             string    `json:"owner" db:"owner"`
	DeviceType        string    `json:"deviceType" db:"device_type"`
	IsActive          bool      `json:"isActive" db:"is_active"`
	LastDataTimestamp time.Time `json:"lastDataTimestamp" db:"last_data_timestamp"`
	RegisteredAt      time.Time `json:"registeredAt" db:"registered_at"`
}

// Clone returns a copy so callers can't mutate ledger-held state.
func (d *IoTDevice) Clone() *IoTDevice {
	dup := *d
	return &dup
}
