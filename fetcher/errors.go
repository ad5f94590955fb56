package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// ErrInvalidURL is the cause of a FetchError raised before any attempt.
var ErrInvalidURL = errors.New("invalid url")

// ErrClosed is returned by Fetch after Close.
var ErrClosed = errors.New("fetcher closed")

// FetchError is the terminal failure of one Fetch call. It covers both an
// exhausted retry budget and an immediate non-retryable response; Attempts
// tells them apart.
type FetchError struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d after %d attempt(s): %v", e.URL, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s: after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Kind returns the classification label of the last observed failure.
func (e *FetchError) Kind() string {
	return errorTypeLabel(e.Err)
}

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the target rate-limited the request (HTTP 429).
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string {
	return fmt.Errorf("rate_limited: %w", e.Err).Error()
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

// ErrServer indicates a 5xx response.
type ErrServer struct {
	Err error
}

func (e ErrServer) Error() string {
	return fmt.Errorf("server: %w", e.Err).Error()
}

func (e ErrServer) Unwrap() error {
	return e.Err
}

// ErrForbidden indicates a forbidden response (HTTP 403).
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string {
	return fmt.Errorf("forbidden: %w", e.Err).Error()
}

func (e ErrForbidden) Unwrap() error {
	return e.Err
}

// ErrNotFound indicates a missing resource (HTTP 404).
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string {
	return fmt.Errorf("not_found: %w", e.Err).Error()
}

func (e ErrNotFound) Unwrap() error {
	return e.Err
}

// ErrStatus is any other unexpected HTTP status.
type ErrStatus struct {
	Err error
}

func (e ErrStatus) Error() string {
	return fmt.Errorf("status: %w", e.Err).Error()
}

func (e ErrStatus) Unwrap() error {
	return e.Err
}

// classifyError maps a transport error or a non-2xx status to one of the
// typed causes above. It returns nil for a 2xx response without error.
func classifyError(err error, statusCode int) error {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout{Err: err}
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrTimeout{Err: err}
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return ErrConnection{Err: err}
		}
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return ErrConnection{Err: err}
		}
		// peer hung up before or while replying
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) {
			return ErrConnection{Err: err}
		}
		return err
	}

	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	wrapped := fmt.Errorf("http status %d", statusCode)
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrRateLimited{Err: wrapped}
	case statusCode >= 500:
		return ErrServer{Err: wrapped}
	case statusCode == http.StatusForbidden:
		return ErrForbidden{Err: wrapped}
	case statusCode == http.StatusNotFound:
		return ErrNotFound{Err: wrapped}
	default:
		return ErrStatus{Err: wrapped}
	}
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var server ErrServer
	if errors.As(err, &server) {
		return "server"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var status ErrStatus
	if errors.As(err, &status) {
		return "status"
	}
	if errors.Is(err, ErrInvalidURL) {
		return "invalid_url"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "other"
}
