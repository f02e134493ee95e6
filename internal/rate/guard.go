// Package rate keeps outbound vendor calls inside a per-minute budget.
package rate

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimitError is returned when calls are blocked.
type RateLimitError struct {
	Provider string
	Reason   string
	RetryAt  time.Time
}

func (e RateLimitError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("%s rate limited: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s rate limited: %s (retry at %s)", e.Provider, e.Reason, e.RetryAt.UTC().Format(time.RFC3339))
}

// Policy declares the budget for one provider.
type Policy struct {
	Provider  string
	PerMinute int
	// StaleFor serves the last successful GET response while blocked.
	StaleFor time.Duration
}

type Decision struct {
	Allowed bool
	Reason  string
	RetryAt time.Time
}

type cacheEntry struct {
	status  int
	header  http.Header
	body    []byte
	expires time.Time
}

// Guard is a token bucket plus a Retry-After cooldown.
type Guard struct {
	policy Policy
	now    func() time.Time

	mu       sync.Mutex
	tokens   float64
	last     time.Time
	cooldown time.Time
	cache    map[string]cacheEntry
}

func NewGuard(policy Policy) *Guard {
	return &Guard{
		policy: policy,
		now:    time.Now,
		tokens: float64(policy.PerMinute),
		cache:  make(map[string]cacheEntry),
	}
}

// WrapHTTP wraps an http.Client with rate-limit enforcement.
func WrapHTTP(policy Policy, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	client := *base
	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client.Transport = &roundTripper{base: transport, guard: NewGuard(policy)}
	return &client
}

type roundTripper struct {
	base  http.RoundTripper
	guard *Guard
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	decision := rt.guard.ShouldCall()
	if !decision.Allowed {
		blockedTotal.WithLabelValues(rt.guard.policy.Provider, decision.Reason).Inc()
		if cached := rt.guard.cachedResponse(req); cached != nil {
			return cached, nil
		}
		return nil, RateLimitError{
			Provider: rt.guard.policy.Provider,
			Reason:   decision.Reason,
			RetryAt:  decision.RetryAt,
		}
	}

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	rt.guard.RecordResponse(resp.StatusCode, resp.Header)
	return rt.guard.maybeCacheResponse(req, resp)
}

// ShouldCall consumes a token when the call may proceed.
func (g *Guard) ShouldCall() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if g.policy.PerMinute <= 0 {
		return Decision{Allowed: true}
	}
	if !g.cooldown.IsZero() && now.Before(g.cooldown) {
		return Decision{Allowed: false, Reason: "cooldown", RetryAt: g.cooldown}
	}

	capacity := float64(g.policy.PerMinute)
	if !g.last.IsZero() {
		elapsed := now.Sub(g.last).Seconds()
		g.tokens += elapsed * capacity / time.Minute.Seconds()
		if g.tokens > capacity {
			g.tokens = capacity
		}
	}
	g.last = now
	remainingGauge.WithLabelValues(g.policy.Provider).Set(g.tokens)

	if g.tokens < 1 {
		retryAt := now.Add(time.Duration((1 - g.tokens) * float64(time.Minute) / capacity))
		return Decision{Allowed: false, Reason: "budget", RetryAt: retryAt}
	}
	g.tokens--
	return Decision{Allowed: true}
}

// RecordResponse starts a cooldown when the server sends Retry-After.
func (g *Guard) RecordResponse(status int, headers http.Header) {
	g.mu.Lock()
	defer g.mu.Unlock()

	lastStatusGauge.WithLabelValues(g.policy.Provider).Set(float64(status))

	seconds, err := strconv.Atoi(headers.Get("Retry-After"))
	if err != nil || seconds <= 0 {
		return
	}
	g.cooldown = g.now().Add(time.Duration(seconds) * time.Second)
	retryAfterGauge.WithLabelValues(g.policy.Provider).Set(float64(seconds))
}

func (g *Guard) cachedResponse(req *http.Request) *http.Response {
	if g.policy.StaleFor <= 0 || req.Method != http.MethodGet {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.cache[req.URL.String()]
	if !ok || g.now().After(entry.expires) {
		return nil
	}
	return cloneResponse(req, entry.status, entry.header, entry.body)
}

func (g *Guard) maybeCacheResponse(req *http.Request, resp *http.Response) (*http.Response, error) {
	if g.policy.StaleFor <= 0 || req.Method != http.MethodGet || resp.StatusCode != http.StatusOK {
		return resp, nil
	}
	buf, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	clone := cloneResponse(req, resp.StatusCode, resp.Header, buf)

	g.mu.Lock()
	g.cache[req.URL.String()] = cacheEntry{
		status:  resp.StatusCode,
		header:  clone.Header.Clone(),
		body:    buf,
		expires: g.now().Add(g.policy.StaleFor),
	}
	g.mu.Unlock()

	return clone, nil
}

func cloneResponse(req *http.Request, status int, header http.Header, body []byte) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     header.Clone(),
		Body:       io.NopCloser(bytes.NewReader(body)),
		Request:    req,
	}
}
