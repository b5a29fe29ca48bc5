package models

import (
	"time"

	"github.com/carbon-registry/internal/types"
)

// LedgerEvent records a successful mutating ledger operation.
// Events are emitted synchronously by the ledger and archived
// asynchronously to ClickHouse by the event archiver.
type LedgerEvent struct {
	ID        string          `json:"id" db:"id"`
	Type      types.EventType `json:"type" db:"type"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`

	// Populated per event type; zero values are omitted from JSON.
	TokenID       *uint64 `json:"tokenId,omitempty" db:"token_id"`
	DeviceID      string  `json:"deviceId,omitempty" db:"device_id"`
	Address       string  `json:"address,omitempty" db:"address"`
	CarbonReduced int64   `json:"carbonReduced,omitempty" db:"carbon_reduced"`
	Price         int64   `json:"price,omitempty" db:"price"`
}
