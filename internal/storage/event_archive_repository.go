package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/carbon-registry/internal/models"
	"github.com/carbon-registry/internal/types"
)

// EventArchiveRepository appends ledger events to ClickHouse for
// analytics. Writes are batched by the event archiver worker.
type EventArchiveRepository struct {
	db *ClickHouseDB
}

// NewEventArchiveRepository creates a new event archive repository
func NewEventArchiveRepository(db *ClickHouseDB) *EventArchiveRepository {
	return &EventArchiveRepository{db: db}
}

// InsertBatch appends a batch of ledger events
func (r *EventArchiveRepository) InsertBatch(ctx context.Context, events []models.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO ledger_events (id, type, timestamp, token_id, device_id, address, carbon_reduced, price)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare event batch: %w", err)
	}

	for _, event := range events {
		// ClickHouse has no NULL token id in this schema; absent ids are
		// stored as the max value, outside any assignable token range.
		tokenID := uint64(1<<64 - 1)
		if event.TokenID != nil {
			tokenID = *event.TokenID
		}

		err := batch.Append(
			event.ID,
			string(event.Type),
			event.Timestamp,
			tokenID,
			event.DeviceID,
			event.Address,
			event.CarbonReduced,
			event.Price,
		)
		if err != nil {
			return fmt.Errorf("failed to append event to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send event batch: %w", err)
	}

	return nil
}

// RecentByDevice returns the most recent archived events for a device
func (r *EventArchiveRepository) RecentByDevice(ctx context.Context, deviceID string, limit int) ([]models.LedgerEvent, error) {
	query := `
		SELECT id, type, timestamp, token_id, device_id, address, carbon_reduced, price
		FROM ledger_events
		WHERE device_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	return r.query(ctx, query, deviceID, limit)
}

// RecentByType returns the most recent archived events of a given type
func (r *EventArchiveRepository) RecentByType(ctx context.Context, eventType string, limit int) ([]models.LedgerEvent, error) {
	query := `
		SELECT id, type, timestamp, token_id, device_id, address, carbon_reduced, price
		FROM ledger_events
		WHERE type = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	return r.query(ctx, query, eventType, limit)
}

func (r *EventArchiveRepository) query(ctx context.Context, query string, args ...interface{}) ([]models.LedgerEvent, error) {
	rows, err := r.db.Conn().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.LedgerEvent
	for rows.Next() {
		var (
			event     models.LedgerEvent
			eventType string
			tokenID   uint64
			timestamp time.Time
		)
		err := rows.Scan(
			&event.ID,
			&eventType,
			&timestamp,
			&tokenID,
			&event.DeviceID,
			&event.Address,
			&event.CarbonReduced,
			&event.Price,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event.Type = types.EventType(eventType)
		event.Timestamp = timestamp
		if tokenID != uint64(1<<64-1) {
			id := tokenID
			event.TokenID = &id
		}
		events = append(events, event)
	}

	return events, nil
}
