package fetchworker

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadStatusLineAcceptsOkAndPartialContent(t *testing.T) {
	for _, code := range []string{"200", "206"} {
		r := bufio.NewReader(strings.NewReader("HTTP/1.1 " + code + " OK\r\n"))
		assert.NoError(t, readStatusLine(r))
	}
}

func TestReadStatusLineRetriesSlowDownAndServerErrors(t *testing.T) {
	for _, code := range []string{"429", "500", "503"} {
		r := bufio.NewReader(strings.NewReader("HTTP/1.1 " + code + " Slow Down\r\n"))
		err := readStatusLine(r)
		require.Error(t, err)

		var fe *FetchError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, KindProtocolError, fe.Kind)
		assert.True(t, fe.Kind.Retryable())
	}
}

func TestReadStatusLineRejectsAuthAndNotFoundAsFatal(t *testing.T) {
	for _, code := range []string{"403", "404"} {
		r := bufio.NewReader(strings.NewReader("HTTP/1.1 " + code + " Nope\r\n"))
		err := readStatusLine(r)
		require.Error(t, err)

		var fe *FetchError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, KindHTTPStatus, fe.Kind)
		assert.False(t, fe.Kind.Retryable())
	}
}

func TestReadStatusLineRejectsGarbage(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("not an http response\r\n"))
	err := readStatusLine(r)
	require.Error(t, err)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindProtocolError, fe.Kind)
}

func TestReadStatusLineOnClosedConnection(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(""))
	err := readStatusLine(r)
	require.Error(t, err)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindConnectionClosedEarly, fe.Kind)
}

func TestReadHeadersStopsAtBlankLine(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("Content-Length: 100\r\nETag: \"abc\"\r\n\r\ntrailing body bytes"))
	require.NoError(t, readHeaders(r))

	rest, _ := r.ReadString(0) // drains to EOF since delim 0 never appears
	assert.Equal(t, "trailing body bytes", rest)
}

func TestReadHeadersFailsWhenTooManyLines(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < maxHeaderLines+5; i++ {
		sb.WriteString("X-Pad: 1\r\n")
	}
	sb.WriteString("\r\n")

	r := bufio.NewReader(strings.NewReader(sb.String()))
	err := readHeaders(r)
	require.Error(t, err)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindProtocolError, fe.Kind)
}

func TestReadHeadersFailsOnConnectionClosedMidHeaders(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("Content-Length: 100\r\n"))
	err := readHeaders(r)
	require.Error(t, err)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindConnectionClosedEarly, fe.Kind)
}

type recordingWriterAt struct {
	writes []struct {
		offset int64
		data   string
	}
}

func (w *recordingWriterAt) WriteAt(p []byte, off int64) (int, error) {
	w.writes = append(w.writes, struct {
		offset int64
		data   string
	}{offset: off, data: string(p)})
	return len(p), nil
}

func TestOffsetWriterAdvancesSequentially(t *testing.T) {
	dest := &recordingWriterAt{}
	w := &offsetWriter{dest: dest, offset: 1000}

	n, err := w.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = w.Write([]byte("de"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, dest.writes, 2)
	assert.Equal(t, int64(1000), dest.writes[0].offset)
	assert.Equal(t, "abc", dest.writes[0].data)
	assert.Equal(t, int64(1003), dest.writes[1].offset)
	assert.Equal(t, "de", dest.writes[1].data)
}

func TestKindRetryable(t *testing.T) {
	retryable := []Kind{KindTransport, KindProtocolError, KindShortRead, KindConnectionClosedEarly}
	for _, k := range retryable {
		assert.True(t, k.Retryable())
	}

	notRetryable := []Kind{KindHTTPStatus, KindIo}
	for _, k := range notRetryable {
		assert.False(t, k.Retryable())
	}
}
