package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkScopedPrefixesNames(t *testing.T) {
	r := NewReceiver()
	root := NewSink(r)

	slot := root.Scoped("slot-3")
	slot.IncrCounter("blocks_processed", 1)

	assert.Equal(t, uint64(1), r.Counter("slot-3-blocks_processed"))
	assert.Equal(t, uint64(0), r.Counter("blocks_processed"))
}

func TestIncrCounterAccumulates(t *testing.T) {
	r := NewReceiver()
	s := NewSink(r)

	s.IncrCounter("overall_transferred_bytes", 100)
	s.IncrCounter("overall_transferred_bytes", 250)

	assert.Equal(t, uint64(350), r.Counter("overall_transferred_bytes"))
}

func TestSetGaugeLastWriterWins(t *testing.T) {
	r := NewReceiver()
	s := NewSink(r)

	s.SetGauge("pending_blocks", 10)
	s.SetGauge("pending_blocks", 4)

	snap := r.Observe()
	require.Len(t, snap.Gauges, 1)
	assert.Equal(t, int64(4), snap.Gauges[0].Value)
}

func TestRecordTimingIgnoresNegativeDuration(t *testing.T) {
	r := NewReceiver()
	s := NewSink(r)

	s.RecordTiming("tcp_setup", 100, 50) // t1 < t0, should be dropped

	snap := r.Observe()
	assert.Len(t, snap.Histograms, 0)
}

func TestRecordValueComputesMean(t *testing.T) {
	r := NewReceiver()
	s := NewSink(r)

	s.RecordValue("network_read_size", 100)
	s.RecordValue("network_read_size", 200)
	s.RecordValue("network_read_size", 300)

	snap := r.Observe()
	require.Len(t, snap.Histograms, 1)
	h := snap.Histograms[0]
	assert.Equal(t, "network_read_size", h.Name)
	assert.InDelta(t, 200, h.Mean, 5)
	assert.Equal(t, int64(3), h.Count)
}

func TestSnapshotIsSortedByName(t *testing.T) {
	r := NewReceiver()
	s := NewSink(r)

	s.IncrCounter("zzz", 1)
	s.IncrCounter("aaa", 1)
	s.IncrCounter("mmm", 1)

	snap := r.Observe()
	require.Len(t, snap.Counters, 3)
	assert.Equal(t, []string{"aaa", "mmm", "zzz"}, []string{
		snap.Counters[0].Name, snap.Counters[1].Name, snap.Counters[2].Name,
	})
}
