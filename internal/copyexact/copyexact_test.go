package copyexact

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"s3bfg/internal/metrics"
)

func newSink() metrics.Sink {
	return metrics.NewSink(metrics.NewReceiver())
}

// flushableBuffer wraps bytes.Buffer with a no-op Flush so Copy's flush
// path is exercised.
type flushableBuffer struct {
	bytes.Buffer
	flushed bool
}

func (f *flushableBuffer) Flush() error {
	f.flushed = true
	return nil
}

func TestCopyExactTransfersPreciseByteCount(t *testing.T) {
	data := bytes.Repeat([]byte("x"), BufferSize*2+137)
	src := bytes.NewReader(data)
	dst := &flushableBuffer{}

	n, err := Copy(newSink(), src, dst, uint64(len(data)))
	require.NoError(t, err)
	assert.EqualValues(t, len(data), n)
	assert.Equal(t, data, dst.Bytes())
	assert.True(t, dst.flushed)
}

func TestCopyExactFailsOnShortRead(t *testing.T) {
	src := bytes.NewReader([]byte("too short"))
	dst := &flushableBuffer{}

	_, err := Copy(newSink(), src, dst, 1000)
	assert.ErrorIs(t, err, ErrShortRead)
}

// errorReader returns n bytes then a permanent error (distinct from EOF).
type errorReader struct {
	data []byte
	err  error
	sent bool
}

func (r *errorReader) Read(p []byte) (int, error) {
	if r.sent {
		return 0, r.err
	}
	r.sent = true
	n := copy(p, r.data)
	return n, nil
}

func TestCopyExactPropagatesReadErrorsOtherThanShortRead(t *testing.T) {
	src := &errorReader{data: []byte("partial-"), err: errors.New("connection reset")}
	dst := &flushableBuffer{}

	_, err := Copy(newSink(), src, dst, 100)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrShortRead)
}

type zeroByteWriter struct{}

func (zeroByteWriter) Write(p []byte) (int, error) { return 0, nil }

func TestCopyExactFailsOnZeroByteWrite(t *testing.T) {
	src := bytes.NewReader([]byte("hello"))
	_, err := Copy(newSink(), src, zeroByteWriter{}, 5)
	assert.ErrorIs(t, err, ErrWriteZero)
}

func TestCopyExactRecordsMetrics(t *testing.T) {
	r := metrics.NewReceiver()
	sink := metrics.NewSink(r)

	data := bytes.Repeat([]byte("y"), 10)
	_, err := Copy(sink, bytes.NewReader(data), &flushableBuffer{}, uint64(len(data)))
	require.NoError(t, err)

	assert.Equal(t, uint64(10), r.Counter(metrics.OverallTransferredBytes))
	snap := r.Observe()
	names := map[string]bool{}
	for _, h := range snap.Histograms {
		names[h.Name] = true
	}
	assert.True(t, names[metrics.NetworkReadSize])
	assert.True(t, names[metrics.DiskWriteSize])
}

var _ io.Writer = (*flushableBuffer)(nil)
