package ledger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbon-registry/internal/logging"
	"github.com/carbon-registry/internal/models"
	"github.com/carbon-registry/internal/types"
)

func quietLogger() *logging.Logger {
	return logging.NewLogger(logging.LevelFatal, logging.FormatText)
}

func TestChannelSinkBuffersAndDelivers(t *testing.T) {
	sink := NewChannelSink(4, quietLogger())

	sink.Publish(models.LedgerEvent{ID: "a", Type: types.EventCreditMinted})
	sink.Publish(models.LedgerEvent{ID: "b", Type: types.EventCreditSold})

	assert.Equal(t, int64(0), sink.Dropped())

	got := <-sink.Events()
	assert.Equal(t, "a", got.ID)
	got = <-sink.Events()
	assert.Equal(t, "b", got.ID)
}

func TestChannelSinkDropsWhenFull(t *testing.T) {
	sink := NewChannelSink(1, quietLogger())

	sink.Publish(models.LedgerEvent{ID: "kept"})
	sink.Publish(models.LedgerEvent{ID: "dropped-1"})
	sink.Publish(models.LedgerEvent{ID: "dropped-2"})

	assert.Equal(t, int64(2), sink.Dropped())

	got := <-sink.Events()
	assert.Equal(t, "kept", got.ID)
}

func TestChannelSinkConcurrentPublish(t *testing.T) {
	const publishers = 8
	const perPublisher = 50

	sink := NewChannelSink(16, quietLogger())

	// Drain concurrently so some events get through while others drop.
	received := make(chan int, 1)
	go func() {
		n := 0
		for range sink.Events() {
			n++
		}
		received <- n
	}()

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				sink.Publish(models.LedgerEvent{Type: types.EventCreditMinted})
			}
		}()
	}
	wg.Wait()
	sink.Close()

	delivered := <-received
	require.Equal(t, int64(publishers*perPublisher), int64(delivered)+sink.Dropped())
}
