package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff(attempts int) Backoff {
	return Backoff{Attempts: attempts, Initial: time.Millisecond, Max: 5 * time.Millisecond}
}

func TestRetry_SuccessFirstTry(t *testing.T) {
	var calls int
	got, err := Retry(context.Background(), fastBackoff(3), "fetch", func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
}

func TestRetry_SuccessAfterTransient(t *testing.T) {
	var calls int
	got, err := Retry(context.Background(), fastBackoff(3), "fetch", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, &HTTPError{Method: "GET", URL: "/api/map", Status: 503}
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestRetry_Exhausted(t *testing.T) {
	var calls int
	_, err := Retry(context.Background(), fastBackoff(3), "fetch map", func(context.Context) (int, error) {
		calls++
		return 0, &HTTPError{Method: "GET", URL: "/api/map", Status: 502}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "fetch map failed after 3 attempts")

	var he *HTTPError
	assert.True(t, errors.As(err, &he))
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	var calls int
	_, err := Retry(context.Background(), fastBackoff(5), "fetch", func(context.Context) (int, error) {
		calls++
		return 0, &HTTPError{Method: "GET", URL: "/api/map", Status: 400}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	b := Backoff{Attempts: 5, Initial: time.Hour}
	done := make(chan error, 1)
	go func() {
		_, err := Retry(ctx, b, "fetch", func(context.Context) (int, error) {
			calls++
			return 0, &HTTPError{Status: 503}
		})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("retry did not stop on cancellation")
	}
}

func TestRetry_CustomRetryable(t *testing.T) {
	var calls int
	b := fastBackoff(3)
	b.Retryable = func(error) bool { return true }
	_, err := Retry(context.Background(), b, "fetch", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("anything")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ZeroAttemptsRunsOnce(t *testing.T) {
	var calls int
	_, _ = Retry(context.Background(), Backoff{}, "fetch", func(context.Context) (int, error) {
		calls++
		return 0, &HTTPError{Status: 503}
	})
	assert.Equal(t, 1, calls)
}

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: 300 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, b.Delay(0))
	assert.Equal(t, 200*time.Millisecond, b.Delay(1))
	assert.Equal(t, 300*time.Millisecond, b.Delay(2))
	assert.Equal(t, 300*time.Millisecond, b.Delay(10))

	b.Jitter = 0.5
	for i := 0; i < 100; i++ {
		d := b.Delay(0)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestBackoff_WithAttempts(t *testing.T) {
	assert.Equal(t, 7, DefaultBackoff().WithAttempts(7).Attempts)
	assert.Equal(t, 3, DefaultBackoff().WithAttempts(0).Attempts)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("bad json"), false},
		{"429", &HTTPError{Status: 429}, true},
		{"503 wrapped", fmt.Errorf("fetch: %w", &HTTPError{Status: 503}), true},
		{"404", &HTTPError{Status: 404}, false},
		{"timeout", timeoutErr{}, true},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"truncated", fmt.Errorf("decode: %w", io.ErrUnexpectedEOF), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestHTTPError_Error(t *testing.T) {
	assert.Equal(t, "GET http://x/api/map: status 500", (&HTTPError{Method: "GET", URL: "http://x/api/map", Status: 500}).Error())
	assert.Equal(t, "GET /a: status 400: bad", (&HTTPError{Method: "GET", URL: "/a", Status: 400, Body: "bad"}).Error())
}
