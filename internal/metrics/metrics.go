// Package metrics implements the metric sink and receiver described by the
// downloader's instrumentation layer: counters, gauges, and HDR-style value
// histograms, scoped by a cheap string-prefix "Sink" that workers can clone
// and pass across goroutines. Every record call takes the Receiver's single
// mutex, so concurrent recorders contend on that one lock.
package metrics

import (
	"sort"
	"sync"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
)

// histogramWindow, in nanoseconds, is the highest value a histogram tracks;
// larger samples are clamped to it. Samples are kept for the life of the
// Receiver, not dropped after this long.
const histogramWindow = 2 * time.Hour

// histogramSigFigs is the number of significant decimal digits HdrHistogram
// keeps per bucket. 3 is the precision the reference observer used.
const histogramSigFigs = 3

// Receiver is the process-wide aggregation point. All Sinks derived from it
// (directly or via Scoped) record into the same underlying maps.
type Receiver struct {
	mu         sync.Mutex
	counters   map[string]uint64
	gauges     map[string]int64
	histograms map[string]*hdrhistogram.Histogram
}

// NewReceiver returns an empty receiver ready to back one or more Sinks.
func NewReceiver() *Receiver {
	return &Receiver{
		counters:   make(map[string]uint64),
		gauges:     make(map[string]int64),
		histograms: make(map[string]*hdrhistogram.Histogram),
	}
}

// Sink is a cheap, cloneable handle into a Receiver. All names recorded
// through a Sink are prefixed by its scope (empty for the root sink).
type Sink struct {
	prefix   string
	receiver *Receiver
}

// NewSink returns the root sink for a receiver, with no name prefix.
func NewSink(r *Receiver) Sink {
	return Sink{receiver: r}
}

// Now returns a nanosecond timestamp suitable for passing to RecordTiming.
func (Sink) Now() int64 {
	return time.Now().UnixNano()
}

func (s Sink) name(n string) string {
	if s.prefix == "" {
		return n
	}
	return s.prefix + "-" + n
}

// Scoped returns a new Sink whose names are additionally prefixed, e.g.
// sink.Scoped("slot-3").IncrCounter("blocks_processed", 1) records under
// "slot-3-blocks_processed". Scoping is additive string concatenation, not a
// tree: a sink scoped twice just grows its prefix.
func (s Sink) Scoped(prefix string) Sink {
	return Sink{prefix: s.name(prefix), receiver: s.receiver}
}

// IncrCounter adds delta to the named monotonic counter.
func (s Sink) IncrCounter(name string, delta uint64) {
	r := s.receiver
	full := s.name(name)
	r.mu.Lock()
	r.counters[full] += delta
	r.mu.Unlock()
}

// SetGauge overwrites the named gauge with value (last writer wins).
func (s Sink) SetGauge(name string, value int64) {
	r := s.receiver
	full := s.name(name)
	r.mu.Lock()
	r.gauges[full] = value
	r.mu.Unlock()
}

// RecordValue adds a single sample to the named histogram.
func (s Sink) RecordValue(name string, value uint64) {
	r := s.receiver
	full := s.name(name)
	r.mu.Lock()
	h := r.histograms[full]
	if h == nil {
		h = hdrhistogram.New(1, int64(histogramWindow.Nanoseconds()), histogramSigFigs)
		r.histograms[full] = h
	}
	// HdrHistogram rejects values above its configured max; clamp rather
	// than drop the sample so a single oversized read/write doesn't vanish
	// from the mean.
	if v := int64(value); v > h.HighestTrackableValue() {
		_ = h.RecordValue(h.HighestTrackableValue())
	} else {
		_ = h.RecordValue(v)
	}
	r.mu.Unlock()
}

// RecordTiming records t1-t0 nanoseconds under name.
func (s Sink) RecordTiming(name string, t0, t1 int64) {
	if t1 < t0 {
		return
	}
	s.RecordValue(name, uint64(t1-t0))
}

// CounterSnapshot is one (name, value) counter observation.
type CounterSnapshot struct {
	Name  string
	Value uint64
}

// GaugeSnapshot is one (name, value) gauge observation.
type GaugeSnapshot struct {
	Name  string
	Value int64
}

// HistogramSnapshot summarizes one named histogram at observation time.
type HistogramSnapshot struct {
	Name  string
	Mean  float64
	Min   int64
	Max   int64
	Count int64
}

// Snapshot is a point-in-time, sorted-by-name view of every metric a
// Receiver has ever recorded. Taking a Snapshot takes the receiver lock;
// callers should do this from a cold path (progress tick, final summary),
// never per-byte.
type Snapshot struct {
	Counters   []CounterSnapshot
	Gauges     []GaugeSnapshot
	Histograms []HistogramSnapshot
}

// Observe takes a snapshot of every metric currently held by the receiver.
func (r *Receiver) Observe() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		Counters:   make([]CounterSnapshot, 0, len(r.counters)),
		Gauges:     make([]GaugeSnapshot, 0, len(r.gauges)),
		Histograms: make([]HistogramSnapshot, 0, len(r.histograms)),
	}
	for name, v := range r.counters {
		snap.Counters = append(snap.Counters, CounterSnapshot{Name: name, Value: v})
	}
	for name, v := range r.gauges {
		snap.Gauges = append(snap.Gauges, GaugeSnapshot{Name: name, Value: v})
	}
	for name, h := range r.histograms {
		snap.Histograms = append(snap.Histograms, HistogramSnapshot{
			Name:  name,
			Mean:  h.Mean(),
			Min:   h.Min(),
			Max:   h.Max(),
			Count: h.TotalCount(),
		})
	}

	sort.Slice(snap.Counters, func(i, j int) bool { return snap.Counters[i].Name < snap.Counters[j].Name })
	sort.Slice(snap.Gauges, func(i, j int) bool { return snap.Gauges[i].Name < snap.Gauges[j].Name })
	sort.Slice(snap.Histograms, func(i, j int) bool { return snap.Histograms[i].Name < snap.Histograms[j].Name })

	return snap
}

// Counter returns the current value of a named counter, or 0 if unset.
func (r *Receiver) Counter(name string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name]
}
