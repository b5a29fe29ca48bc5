package service

import (
	"context"

	"github.com/carbon-registry/internal/models"
)

// Persistence interfaces for dependency injection and testing.
// Implemented by the storage package repositories.

// DeviceStore persists registered devices
type DeviceStore interface {
	Create(ctx context.Context, device *models.IoTDevice) error
	SetActive(ctx context.Context, deviceID string, active bool) error
	TouchLastData(ctx context.Context, device *models.IoTDevice) error
	ListAll(ctx context.Context) ([]*models.IoTDevice, error)
}

// CreditStore persists minted credits and their listing state
type CreditStore interface {
	Create(ctx context.Context, credit *models.CarbonCredit) error
	UpdateListing(ctx context.Context, credit *models.CarbonCredit) error
	ListAll(ctx context.Context) ([]*models.CarbonCredit, error)
}

// AccountStore persists producer flags and proceeds balances
type AccountStore interface {
	MarkVerified(ctx context.Context, address string) error
	AddProceeds(ctx context.Context, address string, amount int64) error
	ListVerified(ctx context.Context) ([]string, error)
	ListBalances(ctx context.Context) (map[string]int64, error)
}

// EventArchive serves read queries over the append-only event history
type EventArchive interface {
	RecentByDevice(ctx context.Context, deviceID string, limit int) ([]models.LedgerEvent, error)
	RecentByType(ctx context.Context, eventType string, limit int) ([]models.LedgerEvent, error)
}

// RecordCache caches credit and device reads
type RecordCache interface {
	GetCredit(ctx context.Context, tokenID uint64) (*models.CarbonCredit, bool, error)
	SetCredit(ctx context.Context, credit *models.CarbonCredit) error
	InvalidateCredit(ctx context.Context, tokenID uint64) error
	GetDevice(ctx context.Context, deviceID string) (*models.IoTDevice, bool, error)
	SetDevice(ctx context.Context, device *models.IoTDevice) error
	InvalidateDevice(ctx context.Context, deviceID string) error
}
