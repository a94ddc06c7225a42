package resilience

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// HTTPError is a non-2xx response from an upstream service.
type HTTPError struct {
	Method string
	URL    string
	Status int
	// Body holds at most the first few hundred bytes of the response.
	Body string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Status)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Status, e.Body)
}

// Temporary reports whether the status is worth retrying.
func (e *HTTPError) Temporary() bool {
	return RetryableStatus(e.Status)
}

// RetryableStatus reports whether an HTTP status indicates a transient
// upstream condition.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// IsTransient reports whether err is worth retrying: retryable HTTP
// statuses, network timeouts, refused or reset connections and truncated
// bodies.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var he *HTTPError
	if errors.As(err, &he) {
		return he.Temporary()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
