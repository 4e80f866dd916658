package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<html><head><meta charset="utf-8"><title>Ch 1</title></head><body><p>第一章 hello</p></body></html>`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)
	})
	mux.HandleFunc("/gzip", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, _ = gz.Write([]byte(page))
		_ = gz.Close()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	})
	mux.HandleFunc("/br", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		_, _ = bw.Write([]byte(page))
		_ = bw.Close()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Encoding", "br")
		_, _ = w.Write(buf.Bytes())
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 4096))
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/plain", http.StatusFound)
	})
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
	})
	mux.HandleFunc("/private/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPFetcher_Encodings(t *testing.T) {
	srv := newServer(t)
	f := NewHTTPFetcher(Options{})

	for _, path := range []string{"/plain", "/gzip", "/br"} {
		t.Run(path, func(t *testing.T) {
			p, err := f.Fetch(context.Background(), srv.URL+path)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, p.Status)
			assert.Equal(t, page, p.HTML)
			assert.Equal(t, int64(len(page)), p.Bytes)
		})
	}
}

func TestHTTPFetcher_FollowsRedirect(t *testing.T) {
	srv := newServer(t)
	p, err := NewHTTPFetcher(Options{}).Fetch(context.Background(), srv.URL+"/redirect")

	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/plain", p.FinalURL)
	assert.Equal(t, srv.URL+"/redirect", p.URL)
}

func TestHTTPFetcher_StatusError(t *testing.T) {
	srv := newServer(t)
	_, err := NewHTTPFetcher(Options{}).Fetch(context.Background(), srv.URL+"/missing")

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.False(t, Retryable(err))
	assert.Equal(t, "HTTP 404", Reason(err))
}

func TestHTTPFetcher_Timeout(t *testing.T) {
	srv := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPFetcher(Options{}).Fetch(ctx, srv.URL+"/slow")

	require.ErrorIs(t, err, ErrTimeout)
	assert.True(t, Retryable(err))
	assert.Equal(t, "timeout", Reason(err))
}

func TestHTTPFetcher_CanceledPassesThrough(t *testing.T) {
	srv := newServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := NewHTTPFetcher(Options{}).Fetch(ctx, srv.URL+"/slow")

	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrNetwork))
	assert.False(t, Retryable(err))
}

func TestHTTPFetcher_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewHTTPFetcher(Options{}).Fetch(context.Background(), addr+"/x")

	require.ErrorIs(t, err, ErrNetwork)
	assert.True(t, Retryable(err))
}

func TestHTTPFetcher_BodyLimit(t *testing.T) {
	srv := newServer(t)
	_, err := NewHTTPFetcher(Options{MaxBodyBytes: 1024}).Fetch(context.Background(), srv.URL+"/big")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds limit")
}

func TestHTTPFetcher_OnBytes(t *testing.T) {
	srv := newServer(t)
	var total atomic.Int64
	f := NewHTTPFetcher(Options{OnBytes: func(n int64) { total.Add(n) }})

	_, err := f.Fetch(context.Background(), srv.URL+"/big")
	require.NoError(t, err)
	assert.Equal(t, int64(4096), total.Load())
}

func TestHTTPFetcher_InvalidURL(t *testing.T) {
	f := NewHTTPFetcher(Options{})

	for _, target := range []string{"", "/relative", "ftp://example.com/a", "javascript:void(0)"} {
		_, err := f.Fetch(context.Background(), target)
		assert.ErrorIs(t, err, ErrInvalidURL, target)
	}
}

func TestHTTPFetcher_Robots(t *testing.T) {
	srv := newServer(t)
	robots := NewRobotsAgent(srv.Client(), "noveld", time.Minute)
	f := NewHTTPFetcher(Options{Robots: robots})

	_, err := f.Fetch(context.Background(), srv.URL+"/private/1")
	require.ErrorIs(t, err, ErrBlocked)

	_, err = f.Fetch(context.Background(), srv.URL+"/plain")
	require.NoError(t, err)
}

func TestHostLimiter(t *testing.T) {
	assert.Nil(t, NewHostLimiter(0))
	var disabled *HostLimiter
	require.NoError(t, disabled.Wait(context.Background(), "example.com"))

	l := NewHostLimiter(20)
	start := time.Now()
	for i := 0; i < 25; i++ {
		require.NoError(t, l.Wait(context.Background(), "example.com"))
	}
	// burst of 20, then 5 more at 50ms each
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)

	// other hosts have their own bucket
	start = time.Now()
	require.NoError(t, l.Wait(context.Background(), "other.example"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.True(t, Retryable(&StatusError{Code: 503}))
	assert.True(t, Retryable(&StatusError{Code: 429}))
	assert.False(t, Retryable(&StatusError{Code: 403}))
	assert.False(t, Retryable(fmt.Errorf("%w: x", ErrBlocked)))
}
