package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"
)

const defaultMaxBodyBytes = 8 << 20

type Logger interface {
	Debugf(format string, args ...any)
}

type Options struct {
	// Client should not decompress transparently; Content-Encoding is
	// handled here.
	Client       *http.Client
	UserAgent    string
	MaxBodyBytes int64
	// MaxRPS caps requests per host; zero disables the cap.
	MaxRPS float64
	// Robots, when set, is consulted before every fetch.
	Robots *RobotsAgent
	// OnBytes receives the size of every decoded chunk as it is read.
	OnBytes func(n int64)
	Logger  Logger
}

// HTTPFetcher implements Fetcher on top of net/http.
type HTTPFetcher struct {
	client  *http.Client
	ua      string
	maxBody int64
	limiter *HostLimiter
	robots  *RobotsAgent
	onBytes func(int64)
	log     Logger
}

func NewHTTPFetcher(opts Options) *HTTPFetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	return &HTTPFetcher{
		client:  client,
		ua:      opts.UserAgent,
		maxBody: maxBody,
		limiter: NewHostLimiter(opts.MaxRPS),
		robots:  opts.Robots,
		onBytes: opts.OnBytes,
		log:     opts.Logger,
	}
}

// Client exposes the underlying HTTP client, e.g. for robots.txt lookups.
func (f *HTTPFetcher) Client() *http.Client { return f.client }

func (f *HTTPFetcher) Fetch(ctx context.Context, target string) (*Page, error) {
	u, err := parseTarget(target)
	if err != nil {
		return nil, err
	}

	if f.robots != nil && !f.robots.Allowed(ctx, u) {
		return nil, fmt.Errorf("%w: %s", ErrBlocked, u)
	}

	if err := f.limiter.Wait(ctx, u.Hostname()); err != nil {
		return nil, classify(ctx, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.ua != "" {
		req.Header.Set("User-Agent", f.ua)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8,zh-CN;q=0.6")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	if f.log != nil {
		f.log.Debugf("GET %s\n", u)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	finalURL := u.String()
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{Code: resp.StatusCode, URL: finalURL}
	}

	raw, err := f.readBody(resp)
	if err != nil {
		return nil, classify(ctx, err)
	}

	contentType := resp.Header.Get("Content-Type")
	html, err := toUTF8(raw, contentType)
	if err != nil {
		return nil, fmt.Errorf("decode charset: %w", err)
	}

	return &Page{
		URL:         u.String(),
		FinalURL:    finalURL,
		Status:      resp.StatusCode,
		ContentType: contentType,
		HTML:        html,
		Bytes:       int64(len(raw)),
	}, nil
}

func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		defer func() {
			_ = gz.Close()
		}()
		reader = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer func() {
			_ = fl.Close()
		}()
		reader = fl
	case "br":
		reader = brotli.NewReader(resp.Body)
	}

	var buf bytes.Buffer
	var last int64
	n, err := copyWithProgress(&buf, io.LimitReader(reader, f.maxBody+1), func(done int64) {
		if f.onBytes != nil {
			f.onBytes(done - last)
		}
		last = done
	})
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if n > f.maxBody {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes", f.maxBody)
	}

	return buf.Bytes(), nil
}

// toUTF8 converts legacy encodings (GBK, Big5, Shift_JIS, ...) declared in
// the header or a meta tag.
func toUTF8(raw []byte, contentType string) (string, error) {
	r, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		// unknown charset label: keep the bytes as they are
		return string(raw), nil
	}

	out, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func copyWithProgress(dst io.Writer, src io.Reader, progress func(done int64)) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		nr, er := src.Read(buf)

		if nr > 0 {
			nw, ew := dst.Write(buf[0:nr])

			if nw > 0 {
				total += int64(nw)
				if progress != nil {
					progress(total)
				}
			}

			if ew != nil {
				return total, ew
			}

			if nr != nw {
				return total, io.ErrShortWrite
			}
		}

		if er != nil {
			if errors.Is(er, io.EOF) {
				break
			}
			return total, er
		}
	}

	return total, nil
}
