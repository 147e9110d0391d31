package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := New(DefaultConfig())
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWaitingDialer_RetriesUntilOnline(t *testing.T) {
	var calls atomic.Int32
	dial := func(context.Context, string, string) (net.Conn, error) {
		if calls.Add(1) < 3 {
			return nil, &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}
		}
		c, _ := net.Pipe()
		return c, nil
	}

	conn, err := waitingDialer(dial, time.Millisecond)(context.Background(), "tcp", "example:80")
	require.NoError(t, err)
	_ = conn.Close()
	assert.Equal(t, int32(3), calls.Load())
}

func TestWaitingDialer_StopsAtDeadline(t *testing.T) {
	dial := func(context.Context, string, string) (net.Conn, error) {
		return nil, &net.OpError{Op: "dial", Err: syscall.ENETUNREACH}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := waitingDialer(dial, time.Millisecond)(ctx, "tcp", "example:80")
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.ENETUNREACH)
}

func TestWaitingDialer_HardErrorsFailFast(t *testing.T) {
	var calls atomic.Int32
	dial := func(context.Context, string, string) (net.Conn, error) {
		calls.Add(1)
		return nil, errors.New("tls: bad certificate")
	}

	_, err := waitingDialer(dial, time.Millisecond)(context.Background(), "tcp", "example:80")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
