package ledger

import (
	"sync/atomic"

	"github.com/carbon-registry/internal/logging"
	"github.com/carbon-registry/internal/models"
)

// EventSink receives ledger events emitted by successful mutating
// operations. Publish must not block, and must be safe for concurrent
// use: the ledger calls it while holding its lock, but the contract
// makes no serialization promise to other publishers.
type EventSink interface {
	Publish(event models.LedgerEvent)
}

// ChannelSink buffers events on a channel for asynchronous consumers
// (the ClickHouse archiver). When the buffer is full the event is
// dropped and counted rather than stalling the ledger.
type ChannelSink struct {
	ch      chan models.LedgerEvent
	dropped atomic.Int64
	logger  *logging.Logger
}

// NewChannelSink creates a channel sink with the given buffer size
func NewChannelSink(bufferSize int, logger *logging.Logger) *ChannelSink {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &ChannelSink{
		ch:     make(chan models.LedgerEvent, bufferSize),
		logger: logger,
	}
}

// Publish enqueues an event without blocking. Safe for concurrent use.
func (s *ChannelSink) Publish(event models.LedgerEvent) {
	select {
	case s.ch <- event:
	default:
		dropped := s.dropped.Add(1)
		s.logger.WithFields(map[string]interface{}{
			"eventType": event.Type,
			"dropped":   dropped,
		}).Warn("Event buffer full, dropping ledger event")
	}
}

// Events returns the receive side of the sink
func (s *ChannelSink) Events() <-chan models.LedgerEvent {
	return s.ch
}

// Dropped returns the number of events discarded because the buffer
// was full
func (s *ChannelSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close closes the underlying channel. Only call after the ledger has
// stopped mutating.
func (s *ChannelSink) Close() {
	close(s.ch)
}

// NopSink discards all events. Used in tests and by the migrate CLI.
type NopSink struct{}

// Publish discards the event
func (NopSink) Publish(models.LedgerEvent) {}
