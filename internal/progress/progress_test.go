package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"s3bfg/internal/metrics"
)

func TestSlotRateRowsFiltersAndSorts(t *testing.T) {
	receiver := metrics.NewReceiver()
	sink := metrics.NewSink(receiver)

	sink.Scoped("slot-2").RecordValue(metrics.SlotRateBytesPerSec, 200)
	sink.Scoped("slot-0").RecordValue(metrics.SlotRateBytesPerSec, 100)
	sink.Scoped("slot-1").RecordValue(metrics.SlotRateBytesPerSec, 150)
	sink.IncrCounter(metrics.OverallTransferredBytes, 500) // not a rate histogram

	rows := slotRateRows(receiver.Observe())
	require.Len(t, rows, 3)
	assert.Equal(t, "slot-0-slot_rate_bytes_per_sec", rows[0].Name)
	assert.Equal(t, "slot-1-slot_rate_bytes_per_sec", rows[1].Name)
	assert.Equal(t, "slot-2-slot_rate_bytes_per_sec", rows[2].Name)
}

func TestSlotRateRowsSortsNumericallyPastDoubleDigits(t *testing.T) {
	receiver := metrics.NewReceiver()
	sink := metrics.NewSink(receiver)

	// Alphabetical order would place slot-10 and slot-2 right after
	// slot-1, ahead of slot-9. Numeric order must not.
	sink.Scoped("slot-10").RecordValue(metrics.SlotRateBytesPerSec, 1000)
	sink.Scoped("slot-2").RecordValue(metrics.SlotRateBytesPerSec, 200)
	sink.Scoped("slot-9").RecordValue(metrics.SlotRateBytesPerSec, 900)
	sink.Scoped("slot-1").RecordValue(metrics.SlotRateBytesPerSec, 100)

	rows := slotRateRows(receiver.Observe())
	require.Len(t, rows, 4)
	assert.Equal(t, "slot-1-slot_rate_bytes_per_sec", rows[0].Name)
	assert.Equal(t, "slot-2-slot_rate_bytes_per_sec", rows[1].Name)
	assert.Equal(t, "slot-9-slot_rate_bytes_per_sec", rows[2].Name)
	assert.Equal(t, "slot-10-slot_rate_bytes_per_sec", rows[3].Name)
}

func TestSlotRateRowsEmptyWhenNoSlotsRecorded(t *testing.T) {
	receiver := metrics.NewReceiver()
	assert.Empty(t, slotRateRows(receiver.Observe()))
}

func TestFinalSummaryIncludesCountersAndRate(t *testing.T) {
	receiver := metrics.NewReceiver()
	sink := metrics.NewSink(receiver)
	sink.IncrCounter(metrics.BlocksProcessed, 4)

	summary := FinalSummary(receiver.Observe(), 1<<20, 2*time.Second)

	assert.Contains(t, summary, "transferred:")
	assert.Contains(t, summary, "elapsed:")
	assert.Contains(t, summary, "rate:")
	assert.Contains(t, summary, "blocks_processed: 4")
}
