package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbon-registry/internal/logging"
	"github.com/carbon-registry/internal/models"
	"github.com/carbon-registry/internal/retry"
	"github.com/carbon-registry/internal/types"
)

type recordingWriter struct {
	mu       sync.Mutex
	batches  [][]models.LedgerEvent
	failures int // fail this many calls before succeeding
}

func (w *recordingWriter) InsertBatch(ctx context.Context, events []models.LedgerEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failures > 0 {
		w.failures--
		return errors.New("clickhouse unavailable")
	}
	batch := make([]models.LedgerEvent, len(events))
	copy(batch, events)
	w.batches = append(w.batches, batch)
	return nil
}

func (w *recordingWriter) total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

func (w *recordingWriter) batchCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.batches)
}

func makeEvent(id string) models.LedgerEvent {
	return models.LedgerEvent{
		ID:        id,
		Type:      types.EventCreditMinted,
		Timestamp: time.Now().UTC(),
	}
}

func fastRetry() *retry.Config {
	return &retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func newTestArchiver(t *testing.T, events <-chan models.LedgerEvent, writer EventWriter, batchSize int, flushInterval time.Duration) *EventArchiver {
	t.Helper()
	archiver, err := NewEventArchiver(&EventArchiverConfig{
		Events:        events,
		Writer:        writer,
		BatchSize:     batchSize,
		FlushInterval: flushInterval,
		RetryConfig:   fastRetry(),
		Logger:        logging.NewLogger(logging.LevelError, logging.FormatText),
	})
	require.NoError(t, err)
	return archiver
}

func TestNewEventArchiver(t *testing.T) {
	t.Run("requires event channel", func(t *testing.T) {
		_, err := NewEventArchiver(&EventArchiverConfig{Writer: &recordingWriter{}})
		assert.Error(t, err)
	})

	t.Run("requires writer", func(t *testing.T) {
		ch := make(chan models.LedgerEvent)
		_, err := NewEventArchiver(&EventArchiverConfig{Events: ch})
		assert.Error(t, err)
	})
}

func TestEventArchiverFlushOnBatchSize(t *testing.T) {
	ch := make(chan models.LedgerEvent, 16)
	writer := &recordingWriter{}
	archiver := newTestArchiver(t, ch, writer, 3, time.Hour)

	require.NoError(t, archiver.Start(context.Background()))

	for i := 0; i < 3; i++ {
		ch <- makeEvent("e" + string(rune('0'+i)))
	}

	require.Eventually(t, func() bool {
		return writer.total() == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, writer.batchCount())

	archiver.Stop()
	assert.Equal(t, int64(3), archiver.Archived())
}

func TestEventArchiverFlushOnInterval(t *testing.T) {
	ch := make(chan models.LedgerEvent, 16)
	writer := &recordingWriter{}
	archiver := newTestArchiver(t, ch, writer, 100, 20*time.Millisecond)

	require.NoError(t, archiver.Start(context.Background()))

	ch <- makeEvent("e1")

	require.Eventually(t, func() bool {
		return writer.total() == 1
	}, 2*time.Second, 10*time.Millisecond)

	archiver.Stop()
}

func TestEventArchiverStopFlushesPending(t *testing.T) {
	ch := make(chan models.LedgerEvent, 16)
	writer := &recordingWriter{}
	archiver := newTestArchiver(t, ch, writer, 100, time.Hour)

	require.NoError(t, archiver.Start(context.Background()))

	ch <- makeEvent("e1")
	ch <- makeEvent("e2")

	archiver.Stop()

	assert.Equal(t, 2, writer.total())
	assert.Equal(t, int64(2), archiver.Archived())
}

func TestEventArchiverRetriesFailedFlush(t *testing.T) {
	ch := make(chan models.LedgerEvent, 16)
	writer := &recordingWriter{failures: 2}
	archiver := newTestArchiver(t, ch, writer, 1, time.Hour)

	require.NoError(t, archiver.Start(context.Background()))

	ch <- makeEvent("e1")

	require.Eventually(t, func() bool {
		return writer.total() == 1
	}, 2*time.Second, 10*time.Millisecond)

	archiver.Stop()
	assert.Equal(t, int64(1), archiver.Archived())
	assert.Equal(t, int64(0), archiver.Failed())
}

func TestEventArchiverCountsDroppedBatches(t *testing.T) {
	ch := make(chan models.LedgerEvent, 16)
	writer := &recordingWriter{failures: 100}
	archiver := newTestArchiver(t, ch, writer, 1, time.Hour)

	require.NoError(t, archiver.Start(context.Background()))

	ch <- makeEvent("e1")

	require.Eventually(t, func() bool {
		return archiver.Failed() == 1
	}, 2*time.Second, 10*time.Millisecond)

	archiver.Stop()
	assert.Equal(t, int64(0), archiver.Archived())
}

func TestEventArchiverStartTwice(t *testing.T) {
	ch := make(chan models.LedgerEvent, 16)
	archiver := newTestArchiver(t, ch, &recordingWriter{}, 10, time.Hour)

	require.NoError(t, archiver.Start(context.Background()))
	assert.Error(t, archiver.Start(context.Background()))

	archiver.Stop()
}
