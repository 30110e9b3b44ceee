// Package fetchworker implements the Fetch Worker (spec §4.6, C6): a
// one-shot coroutine that performs TCP connect, TLS handshake, writes a
// pre-signed HTTP/1.1 GET, parses the response with a hand-rolled
// status-line-and-headers reader (deliberately not a full HTTP client —
// spec §9's "hand-rolled parser" design note explains why), and streams
// the body to either a file at the block's offset or a memory-only sink.
package fetchworker

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"regexp"
	"strconv"

	"s3bfg/internal/blockplanner"
	"s3bfg/internal/copyexact"
	"s3bfg/internal/metrics"
	"s3bfg/internal/reqsign"
)

// headerReaderCapacity matches the original source's observation that most
// reads on Linux land in the ~20KiB range, so a 256KiB buffer is plenty.
const headerReaderCapacity = 256 * 1024

// maxHeaderLines bounds adversarial input: an S3-compatible endpoint that
// never terminates its header block would otherwise hang the worker
// forever reading lines.
const maxHeaderLines = 100

var statusLineRegexp = regexp.MustCompile(`^HTTP/1\.1 (\d{3}) `)

// Kind is the error taxonomy spec §7 defines for per-block failures.
type Kind int

const (
	KindTransport Kind = iota
	KindProtocolError
	KindShortRead
	KindConnectionClosedEarly
	KindHTTPStatus
	KindIo
)

// Retryable reports whether the scheduler may retry a block that failed
// with this kind, per spec §7: Transport, ProtocolError, ShortRead, and
// ConnectionClosedEarly are retried (up to a small bound, with a different
// slot/IP); Io is fatal.
func (k Kind) Retryable() bool {
	switch k {
	case KindTransport, KindProtocolError, KindShortRead, KindConnectionClosedEarly:
		return true
	default:
		return false
	}
}

// FetchError tags a worker failure with its Kind and (for KindHTTPStatus)
// the HTTP status code that caused it.
type FetchError struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetchworker: unexpected HTTP status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetchworker: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func fail(kind Kind, err error) error {
	return &FetchError{Kind: kind, Err: err}
}

// Destination is where a fetched block's bytes are written. WriteAt lets
// the worker seek-then-write at an absolute offset without a shared file
// cursor, per spec §5's positional-write requirement.
type Destination interface {
	io.WriterAt
}

// Request describes one block fetch: which IP/port to dial, the canonical
// signing host for SNI, the credentials and S3 coordinates to sign with,
// and the block itself.
type Request struct {
	SlotIndex int
	IP        netip.Addr
	Port      int
	Host      string
	Region    string
	Bucket    string
	Key       string
	Block     blockplanner.Block

	// MemoryOnly discards the body instead of writing it to Dest.
	MemoryOnly bool
	Dest       Destination
}

// Fetch runs the full Idle -> ... -> Done state machine for one block and
// returns the slot index on success so the caller (Slot Scheduler) can
// reassign it (spec §4.6).
func Fetch(ctx context.Context, overallSink metrics.Sink, creds reqsign.Credentials, req Request) (int, error) {
	if !req.MemoryOnly && req.Dest == nil {
		return 0, fail(KindIo, fmt.Errorf("fetchworker: MemoryOnly is false but no Dest was provided"))
	}

	slotSink := overallSink.Scoped(fmt.Sprintf("slot-%d", req.SlotIndex))
	stateStart := slotSink.Now()

	// -- BuildReq --
	reqStart := overallSink.Now()
	raw, err := buildRequest(ctx, creds, req)
	if err != nil {
		return req.SlotIndex, fail(KindTransport, err)
	}
	overallSink.RecordTiming(metrics.SlotStateSetup, reqStart, overallSink.Now())

	// -- TcpConnect --
	tcpStart := overallSink.Now()
	addr := net.JoinHostPort(req.IP.String(), strconv.Itoa(req.Port))
	dialer := net.Dialer{}
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return req.SlotIndex, fail(KindTransport, fmt.Errorf("tcp connect to %s: %w", addr, err))
	}
	if tcpConn, ok := rawConn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true) // disable Nagle, per spec §4.6
	}
	overallSink.RecordTiming(metrics.SlotTCPSetup, tcpStart, overallSink.Now())

	// -- TlsHandshake --
	sslStart := overallSink.Now()
	tlsConn := tls.Client(rawConn, &tls.Config{
		ServerName: req.Host, // SNI keyed to the signing host, never the IP
		MinVersion: tls.VersionTLS12,
	})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = rawConn.Close()
		return req.SlotIndex, fail(KindTransport, fmt.Errorf("tls handshake: %w", err))
	}
	defer tlsConn.Close()
	overallSink.RecordTiming(metrics.SlotSSLSetup, sslStart, overallSink.Now())

	// -- SendReq --
	sendStart := slotSink.Now()
	if _, err := tlsConn.Write(raw); err != nil {
		return req.SlotIndex, fail(KindTransport, fmt.Errorf("writing request: %w", err))
	}
	slotSink.RecordTiming(metrics.SlotRequest, sendStart, slotSink.Now())

	// -- ReadStatus / ReadHeaders --
	responseStart := overallSink.Now()
	reader := bufio.NewReaderSize(tlsConn, headerReaderCapacity)
	if err := readStatusLine(reader); err != nil {
		return req.SlotIndex, err
	}
	if err := readHeaders(reader); err != nil {
		return req.SlotIndex, err
	}
	overallSink.RecordTiming(metrics.SlotResponse, responseStart, overallSink.Now())

	// -- ReadBody / Flush --
	var dst io.Writer
	if req.MemoryOnly {
		dst = io.Discard
	} else {
		dst = &offsetWriter{dest: req.Dest, offset: int64(req.Block.Offset)}
	}

	copied, err := copyexact.Copy(slotSink, reader, dst, req.Block.Length)
	if err != nil {
		if errors.Is(err, copyexact.ErrShortRead) {
			return req.SlotIndex, fail(KindShortRead, err)
		}
		return req.SlotIndex, fail(KindIo, err)
	}
	if copied != req.Block.Length {
		return req.SlotIndex, fail(KindShortRead, fmt.Errorf("copied %d bytes, wanted %d", copied, req.Block.Length))
	}

	elapsed := float64(slotSink.Now()-stateStart) / 1e9
	if elapsed > 0 {
		slotSink.RecordValue(metrics.SlotRateBytesPerSec, uint64(float64(copied)/elapsed))
	}

	return req.SlotIndex, nil
}

func buildRequest(ctx context.Context, creds reqsign.Credentials, req Request) ([]byte, error) {
	target := reqsign.Target{Region: req.Region, Bucket: req.Bucket, Key: req.Key, Host: req.Host}
	if req.Block.PartNumber > 0 {
		return reqsign.BuildPartNumberGET(ctx, creds, target, req.Block.PartNumber)
	}
	return reqsign.BuildByteRangeGET(ctx, creds, target, req.Block.Offset, req.Block.Length)
}

func readStatusLine(r *bufio.Reader) error {
	line, err := r.ReadString('\n')
	if err != nil {
		return fail(KindConnectionClosedEarly, fmt.Errorf("reading status line: %w", err))
	}

	m := statusLineRegexp.FindStringSubmatch(line)
	if m == nil {
		return fail(KindProtocolError, fmt.Errorf("unparseable HTTP status line: %q", line))
	}

	code, _ := strconv.Atoi(m[1])
	switch code {
	case 200, 206:
		return nil
	case 403, 404:
		// Auth and NotFound are fatal: retrying won't change the answer.
		return &FetchError{Kind: KindHTTPStatus, StatusCode: code, Err: fmt.Errorf("status line: %q", line)}
	default:
		// Everything else — including the 429/500/503 SlowDown responses
		// that fanning out across many connections is exactly likely to
		// provoke — gets the same retry rule as Transport (spec §7).
		return &FetchError{Kind: KindProtocolError, StatusCode: code, Err: fmt.Errorf("unexpected status line: %q", line)}
	}
}

func readHeaders(r *bufio.Reader) error {
	for count := 0; ; count++ {
		if count > maxHeaderLines {
			return fail(KindProtocolError, fmt.Errorf("more than %d header lines returned", maxHeaderLines))
		}

		line, err := r.ReadString('\n')
		if len(line) == 0 {
			return fail(KindConnectionClosedEarly, fmt.Errorf("connection closed before headers finished: %w", err))
		}
		if line == "\r\n" {
			return nil
		}
		if err != nil {
			return fail(KindConnectionClosedEarly, fmt.Errorf("reading header line: %w", err))
		}
	}
}

// offsetWriter adapts a WriterAt destination to io.Writer by tracking the
// absolute offset a sequential stream of Write calls should land at. Each
// Write is a single positional write — no shared file cursor is ever
// touched, satisfying spec §5's requirement that concurrent workers never
// rely on append order.
type offsetWriter struct {
	dest   Destination
	offset int64
}

func (w *offsetWriter) Write(p []byte) (int, error) {
	n, err := w.dest.WriteAt(p, w.offset)
	w.offset += int64(n)
	return n, err
}

var _ io.Writer = (*offsetWriter)(nil)
