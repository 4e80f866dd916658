package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsAgent evaluates robots.txt rules with a per-host cache.
type RobotsAgent struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration

	mu    sync.RWMutex
	cache map[string]robotsEntry
}

type robotsEntry struct {
	fetched time.Time
	rules   *robotstxt.RobotsData
}

func NewRobotsAgent(client *http.Client, userAgent string, ttl time.Duration) *RobotsAgent {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	return &RobotsAgent{
		client:    client,
		userAgent: userAgent,
		ttl:       ttl,
		cache:     make(map[string]robotsEntry),
	}
}

// Allowed reports whether target may be fetched. Lookup failures allow the
// request.
func (a *RobotsAgent) Allowed(ctx context.Context, target *url.URL) bool {
	if target == nil || !target.IsAbs() {
		return false
	}

	rules, err := a.rules(ctx, target)
	if err != nil {
		return true
	}

	return rules.TestAgent(target.EscapedPath(), a.agentName())
}

func (a *RobotsAgent) agentName() string {
	if a.userAgent == "" {
		return "*"
	}
	return a.userAgent
}

func (a *RobotsAgent) rules(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	host := strings.ToLower(target.Host)

	a.mu.RLock()
	entry, ok := a.cache[host]
	a.mu.RUnlock()
	if ok && time.Since(entry.fetched) < a.ttl {
		return entry.rules, nil
	}

	robotsURL := target.Scheme + "://" + target.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// FromResponse maps 4xx to allow-all and 5xx to disallow-all.
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	a.mu.Lock()
	a.cache[host] = robotsEntry{fetched: time.Now(), rules: data}
	a.mu.Unlock()

	return data, nil
}
