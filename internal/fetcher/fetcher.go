// Package fetcher retrieves chapter and directory pages over HTTP.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

var (
	// ErrNetwork wraps transport level failures.
	ErrNetwork = errors.New("network error")
	// ErrTimeout wraps fetches that exceeded their deadline.
	ErrTimeout = errors.New("request timed out")
	// ErrBlocked is returned when robots.txt disallows the page.
	ErrBlocked = errors.New("disallowed by robots.txt")
	// ErrInvalidURL is returned for relative or non-http(s) targets.
	ErrInvalidURL = errors.New("invalid url")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Code)
}

// Page is a fetched document decoded to UTF-8.
type Page struct {
	URL         string
	FinalURL    string
	Status      int
	ContentType string
	HTML        string
	// Bytes counts the bytes read off the wire after content decoding.
	Bytes int64
}

type Fetcher interface {
	Fetch(ctx context.Context, target string) (*Page, error)
}

// Func adapts a function to Fetcher.
type Func func(ctx context.Context, target string) (*Page, error)

func (f Func) Fetch(ctx context.Context, target string) (*Page, error) { return f(ctx, target) }

// Retryable reports whether a failed fetch is worth another attempt.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout) {
		return true
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}

	return false
}

// Reason is the short human readable cause used in placeholders and logs.
func Reason(err error) string {
	var se *StatusError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		return se.Error()
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrBlocked):
		return "blocked by robots.txt"
	case errors.Is(err, ErrNetwork):
		return "network error"
	default:
		return err.Error()
	}
}

// classify maps a transport error onto the package sentinels. Cancellation
// passes through untouched so callers can tell a stop from a failure.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %w", ErrNetwork, err)
}

func parseTarget(target string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidURL, target, err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, target)
	}
	return u, nil
}
