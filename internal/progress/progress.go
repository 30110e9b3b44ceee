// Package progress implements the Progress Renderer (spec §4.9, C8): a
// goroutine that repaints an aggregate transfer bar plus a per-slot rate
// table every tick, reading nothing but the metric sink — it never talks
// to the scheduler or fetch workers directly. This generalizes the
// teacher's startProgressReporter (single \r-overwritten line) to a
// multi-line repaint, backed by cheggaaa/pb/v3 for the bar itself.
package progress

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"s3bfg/internal/metrics"
)

// DefaultInterval is 1s, looser than the teacher's 200ms repaint cadence,
// since this renderer also prints a per-slot table, which is noisier at
// sub-second cadence.
const DefaultInterval = time.Second

var slotRateLabel = color.New(color.FgCyan).SprintFunc()

// Renderer repaints an aggregate bar and a sorted per-slot rate table from
// a metrics.Receiver until Stop is called.
type Renderer struct {
	receiver    *metrics.Receiver
	totalBytes  uint64
	interval    time.Duration
	bar         *pb.ProgressBar
	linesDrawn int // how many per-slot lines we printed last tick, for cursor-up repaint
	stop       chan struct{}
	stopped    chan struct{}
}

// New returns a Renderer for a transfer of totalBytes, ticking every
// interval (DefaultInterval if zero).
func New(receiver *metrics.Receiver, totalBytes uint64, interval time.Duration) *Renderer {
	if interval <= 0 {
		interval = DefaultInterval
	}

	bar := pb.New64(int64(totalBytes))
	bar.Set(pb.Bytes, true)
	bar.SetTemplateString(`{{counters . }} {{bar . }} {{percent . }} {{speed . }}`)

	return &Renderer{
		receiver:   receiver,
		totalBytes: totalBytes,
		interval:   interval,
		bar:        bar,
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Start begins repainting in a background goroutine. Call Stop when the
// transfer finishes to clean up the terminal.
func (r *Renderer) Start() {
	r.bar.Start()

	go func() {
		defer close(r.stopped)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.stop:
				r.tick()
				r.bar.Finish()
				return
			case <-ticker.C:
				r.tick()
			}
		}
	}()
}

// Stop halts the repaint goroutine and blocks until it has finished its
// last paint, matching the teacher's done/stopped handshake in
// startProgressReporter.
func (r *Renderer) Stop() {
	close(r.stop)
	<-r.stopped
}

func (r *Renderer) tick() {
	snap := r.receiver.Observe()

	var transferred uint64
	for _, c := range snap.Counters {
		if c.Name == metrics.OverallTransferredBytes {
			transferred = c.Value
			break
		}
	}
	r.bar.SetCurrent(int64(transferred))

	r.printSlotRates(snap)
}

// printSlotRates prints one line per slot-rate histogram, sorted by slot
// index so the table doesn't visually jitter between ticks. Each repaint
// moves the cursor back up over the previous table before redrawing it,
// generalizing the teacher's single-line "\r%-80s" idiom to multiple
// lines.
func (r *Renderer) printSlotRates(snap metrics.Snapshot) {
	rates := slotRateRows(snap)

	if r.linesDrawn > 0 {
		fmt.Printf("\x1b[%dA", r.linesDrawn) // cursor up
	}

	for _, h := range rates {
		label := strings.TrimSuffix(h.Name, "-"+metrics.SlotRateBytesPerSec)
		fmt.Printf("\r\x1b[2K  %s  %s/s\n", slotRateLabel(label), humanize.Bytes(uint64(h.Mean)))
	}
	r.linesDrawn = len(rates)
}

var slotIndexRegexp = regexp.MustCompile(`^slot-(\d+)-`)

// slotIndex extracts the numeric slot index from a scoped metric name like
// "slot-10-slot_rate_bytes_per_sec", returning -1 if the name doesn't match
// the expected "slot-N-..." shape.
func slotIndex(name string) int {
	m := slotIndexRegexp.FindStringSubmatch(name)
	if m == nil {
		return -1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return -1
	}
	return n
}

// slotRateRows extracts and sorts every per-slot rate histogram out of a
// snapshot, ignoring every other metric. Sorting by numeric slot index (not
// name) keeps the table from visually jittering between ticks and from
// reordering alphabetically once indices reach double digits (slot-10
// belongs after slot-9, not between slot-1 and slot-2).
func slotRateRows(snap metrics.Snapshot) []metrics.HistogramSnapshot {
	var rates []metrics.HistogramSnapshot
	for _, h := range snap.Histograms {
		if strings.HasSuffix(h.Name, "-"+metrics.SlotRateBytesPerSec) {
			rates = append(rates, h)
		}
	}
	sort.Slice(rates, func(i, j int) bool {
		ii, ij := slotIndex(rates[i].Name), slotIndex(rates[j].Name)
		if ii != ij {
			return ii < ij
		}
		return rates[i].Name < rates[j].Name
	})
	return rates
}

// FinalSummary renders a one-shot, non-colorized text summary suitable for
// piping to a log file — the closing banner spec §6 calls for once the
// transfer completes.
func FinalSummary(snap metrics.Snapshot, totalBytes uint64, elapsed time.Duration) string {
	var b strings.Builder
	rate := float64(totalBytes) / elapsed.Seconds()

	fmt.Fprintf(&b, "transferred: %s\n", humanize.Bytes(totalBytes))
	fmt.Fprintf(&b, "elapsed:     %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "rate:        %s/s\n", humanize.Bytes(uint64(rate)))

	for _, c := range snap.Counters {
		fmt.Fprintf(&b, "%s: %d\n", c.Name, c.Value)
	}
	return b.String()
}
