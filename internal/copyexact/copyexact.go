// Package copyexact implements the bounded read-write pump described by
// spec §4.8 (C9): transfer exactly N bytes from a reader to a writer, or
// fail. Unlike io.CopyN, a short read here is always an error — the caller
// already knows precisely how many bytes the response body should contain.
package copyexact

import (
	"errors"
	"fmt"
	"io"

	"s3bfg/internal/metrics"
)

// BufferSize is the fixed intermediate buffer size recommended by spec §4.8.
const BufferSize = 64 * 1024

// ErrShortRead is returned when src returns EOF (or 0 bytes with a nil
// error) before Expected bytes have been transferred.
var ErrShortRead = errors.New("copyexact: short read before expected byte count reached")

// ErrWriteZero is returned when a write call reports 0 bytes written
// without an error.
var ErrWriteZero = errors.New("copyexact: write returned 0 bytes written")

// Sink is the subset of metrics.Sink the primitive needs. Kept as an
// interface so callers can pass a metrics.Sink by value without an import
// cycle concern, and so tests can use a no-op stand-in.
type Sink interface {
	RecordValue(name string, value uint64)
	IncrCounter(name string, delta uint64)
}

// Copy transfers exactly `expected` bytes from src to dst using a fixed
// BufferSize intermediate buffer, flushing dst (if it implements Flusher)
// on completion. Every read and write emits a size sample to
// metrics.NetworkReadSize / metrics.DiskWriteSize, and the cumulative byte
// count is added to metrics.OverallTransferredBytes, via sink.
//
// Copy never transfers more or fewer than `expected` bytes on success
// (spec §8, invariant 6).
func Copy(sink Sink, src io.Reader, dst io.Writer, expected uint64) (uint64, error) {
	buf := make([]byte, BufferSize)
	var transferred uint64

	for transferred < expected {
		want := expected - transferred
		if want > uint64(len(buf)) {
			want = uint64(len(buf))
		}

		n, err := src.Read(buf[:want])
		if n > 0 {
			sink.RecordValue(metrics.NetworkReadSize, uint64(n))
		}
		if n == 0 {
			if err != nil && err != io.EOF {
				return transferred, fmt.Errorf("copyexact: read error after %d of %d bytes: %w", transferred, expected, err)
			}
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return transferred, fmt.Errorf("%w: got %d of %d bytes (%v)", ErrShortRead, transferred, expected, err)
		}

		if werr := writeAll(sink, dst, buf[:n]); werr != nil {
			return transferred, werr
		}

		transferred += uint64(n)
		sink.IncrCounter(metrics.OverallTransferredBytes, uint64(n))

		if err != nil && err != io.EOF {
			return transferred, fmt.Errorf("copyexact: read error after %d of %d bytes: %w", transferred, expected, err)
		}
	}

	if f, ok := dst.(Flusher); ok {
		if err := f.Flush(); err != nil {
			return transferred, fmt.Errorf("copyexact: flush failed after %d bytes: %w", transferred, err)
		}
	}

	return transferred, nil
}

// Flusher is implemented by buffered writers (e.g. *bufio.Writer) that need
// an explicit flush once the expected byte count has been written.
type Flusher interface {
	Flush() error
}

// writeAll writes the whole chunk to dst, retrying on short writes within
// the chunk; a 0-byte write with no error is a fatal ErrWriteZero.
func writeAll(sink Sink, dst io.Writer, chunk []byte) error {
	written := 0
	for written < len(chunk) {
		n, err := dst.Write(chunk[written:])
		if n > 0 {
			sink.RecordValue(metrics.DiskWriteSize, uint64(n))
			written += n
		}
		if err != nil {
			return fmt.Errorf("copyexact: write failed after %d of %d bytes: %w", written, len(chunk), err)
		}
		if n == 0 {
			return ErrWriteZero
		}
	}
	return nil
}
