package middleware

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Flusher and Hijacker delegation tests ---

// mockFlusherWriter implements both http.ResponseWriter and http.Flusher.
type mockFlusherWriter struct {
	http.ResponseWriter
	flushed bool
}

func (m *mockFlusherWriter) Flush() {
	m.flushed = true
}

func TestStatusRecorder_Flush_DelegatesToUnderlying(t *testing.T) {
	mock := &mockFlusherWriter{ResponseWriter: httptest.NewRecorder()}
	rw := newStatusRecorder(mock)

	rw.Flush()
	assert.True(t, mock.flushed, "Flush should delegate to underlying ResponseWriter")
}

func TestStatusRecorder_Flush_NoOpWhenNotSupported(t *testing.T) {
	// Plain httptest.Recorder does not implement Flusher in all cases.
	// Use a minimal ResponseWriter that definitely doesn't implement Flusher.
	rw := newStatusRecorder(&minimalResponseWriter{})

	// Should not panic.
	rw.Flush()
}

// mockHijackerWriter implements both http.ResponseWriter and http.Hijacker.
type mockHijackerWriter struct {
	http.ResponseWriter
	hijacked bool
}

func (m *mockHijackerWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	m.hijacked = true
	// Return nil conn for test purposes.
	return nil, nil, nil
}

func TestStatusRecorder_Hijack_DelegatesToUnderlying(t *testing.T) {
	mock := &mockHijackerWriter{ResponseWriter: httptest.NewRecorder()}
	rw := newStatusRecorder(mock)

	_, _, err := rw.Hijack()
	assert.NoError(t, err)
	assert.True(t, mock.hijacked, "Hijack should delegate to underlying ResponseWriter")
}

func TestStatusRecorder_Hijack_ErrorWhenNotSupported(t *testing.T) {
	rw := newStatusRecorder(&minimalResponseWriter{})

	_, _, err := rw.Hijack()
	assert.ErrorIs(t, err, http.ErrNotSupported)
}

// minimalResponseWriter is a bare http.ResponseWriter without Flusher/Hijacker.
type minimalResponseWriter struct {
	header http.Header
}

func (m *minimalResponseWriter) Header() http.Header {
	if m.header == nil {
		m.header = make(http.Header)
	}
	return m.header
}

func (m *minimalResponseWriter) Write(b []byte) (int, error) {
	return len(b), nil
}

func (m *minimalResponseWriter) WriteHeader(int) {}

func TestStatusRecorder_ImplementsFlusher(t *testing.T) {
	rw := newStatusRecorder(httptest.NewRecorder())
	_, ok := interface{}(rw).(http.Flusher)
	assert.True(t, ok, "statusRecorder should implement http.Flusher")
}

func TestStatusRecorder_ImplementsHijacker(t *testing.T) {
	rw := newStatusRecorder(httptest.NewRecorder())
	_, ok := interface{}(rw).(http.Hijacker)
	assert.True(t, ok, "statusRecorder should implement http.Hijacker")
}

func TestStatusRecorder_FirstStatusWins(t *testing.T) {
	rw := newStatusRecorder(httptest.NewRecorder())
	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusAccepted, rw.statusCode)
}

func TestStatusRecorder_CountsBytesAndUnwraps(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newStatusRecorder(rec)
	_, err := rw.Write([]byte("data: {}\n\n"))
	require.NoError(t, err)
	assert.Equal(t, 10, rw.bytes)
	assert.Same(t, rec, rw.Unwrap())
}
