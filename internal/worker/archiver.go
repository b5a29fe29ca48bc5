// Package worker contains background workers. The event archiver
// drains the ledger's event sink into ClickHouse in batches.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carbon-registry/internal/logging"
	"github.com/carbon-registry/internal/models"
	"github.com/carbon-registry/internal/retry"
)

// EventWriter persists batches of ledger events. Implemented by
// storage.EventArchiveRepository.
type EventWriter interface {
	InsertBatch(ctx context.Context, events []models.LedgerEvent) error
}

// EventArchiver consumes ledger events and writes them to the archive
// in batches, flushing on size or on a timer.
type EventArchiver struct {
	events        <-chan models.LedgerEvent
	writer        EventWriter
	batchSize     int
	flushInterval time.Duration
	retryCfg      *retry.Config
	logger        *logging.Logger

	running bool
	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}

	archived int64
	failed   int64
}

// EventArchiverConfig holds configuration for the event archiver
type EventArchiverConfig struct {
	Events        <-chan models.LedgerEvent
	Writer        EventWriter
	BatchSize     int           // events per flush (default: 100)
	FlushInterval time.Duration // max time events wait in the batch (default: 5s)
	RetryConfig   *retry.Config
	Logger        *logging.Logger
}

// NewEventArchiver creates a new event archiver
func NewEventArchiver(cfg *EventArchiverConfig) (*EventArchiver, error) {
	if cfg.Events == nil {
		return nil, fmt.Errorf("event channel cannot be nil")
	}
	if cfg.Writer == nil {
		return nil, fmt.Errorf("event writer cannot be nil")
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	retryCfg := cfg.RetryConfig
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &EventArchiver{
		events:        cfg.Events,
		writer:        cfg.Writer,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		retryCfg:      retryCfg,
		logger:        logger,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}, nil
}

// Start begins draining the event channel
func (a *EventArchiver) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("event archiver is already running")
	}
	a.running = true
	a.mu.Unlock()

	a.logger.WithFields(map[string]interface{}{
		"batchSize":     a.batchSize,
		"flushInterval": a.flushInterval.String(),
	}).Info("Starting event archiver")

	go a.drainLoop(ctx)

	return nil
}

// Stop flushes any pending batch and waits for the drain loop to exit
func (a *EventArchiver) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.mu.Unlock()

	close(a.stopCh)
	<-a.doneCh

	a.logger.WithFields(map[string]interface{}{
		"archived": a.Archived(),
		"failed":   a.Failed(),
	}).Info("Event archiver stopped")
}

// Archived returns the number of events successfully written
func (a *EventArchiver) Archived() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.archived
}

// Failed returns the number of events dropped after retries
func (a *EventArchiver) Failed() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failed
}

func (a *EventArchiver) drainLoop(ctx context.Context) {
	defer close(a.doneCh)

	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	batch := make([]models.LedgerEvent, 0, a.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		a.flush(ctx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case event, ok := <-a.events:
			if !ok {
				flush()
				return
			}
			batch = append(batch, event)
			if len(batch) >= a.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-a.stopCh:
			// Drain whatever is already buffered, then flush once.
			for {
				select {
				case event, ok := <-a.events:
					if !ok {
						flush()
						return
					}
					batch = append(batch, event)
					if len(batch) >= a.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		case <-ctx.Done():
			flush()
			return
		}
	}
}

func (a *EventArchiver) flush(ctx context.Context, batch []models.LedgerEvent) {
	// Detach from the request context so shutdown flushes still run.
	flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := retry.WithExponentialBackoff(flushCtx, a.retryCfg, func(ctx context.Context, attempt int) error {
		if err := a.writer.InsertBatch(ctx, batch); err != nil {
			a.logger.WithError(err).WithFields(map[string]interface{}{
				"attempt": attempt,
				"events":  len(batch),
			}).Warn("Event archive flush failed")
			return err
		}
		return nil
	})

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.failed += int64(len(batch))
		a.logger.WithError(err).WithField("events", len(batch)).Error("Dropping event batch after retries")
		return
	}
	a.archived += int64(len(batch))
}
