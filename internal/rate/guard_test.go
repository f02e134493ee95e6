package rate

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestGuardBudget(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g := NewGuard(Policy{Provider: "shark", PerMinute: 2})
	g.now = func() time.Time { return now }

	if !g.ShouldCall().Allowed || !g.ShouldCall().Allowed {
		t.Fatalf("expected first two calls allowed")
	}
	decision := g.ShouldCall()
	if decision.Allowed || decision.Reason != "budget" {
		t.Fatalf("expected budget block, got %+v", decision)
	}

	now = now.Add(30 * time.Second)
	if !g.ShouldCall().Allowed {
		t.Fatalf("expected refill after 30s")
	}
}

func TestGuardRetryAfterCooldown(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g := NewGuard(Policy{Provider: "shark", PerMinute: 100})
	g.now = func() time.Time { return now }

	g.RecordResponse(http.StatusTooManyRequests, http.Header{"Retry-After": []string{"10"}})
	decision := g.ShouldCall()
	if decision.Allowed || decision.Reason != "cooldown" {
		t.Fatalf("expected cooldown, got %+v", decision)
	}
	now = now.Add(11 * time.Second)
	if !g.ShouldCall().Allowed {
		t.Fatalf("expected call after cooldown")
	}
}

func TestGuardUnlimited(t *testing.T) {
	g := NewGuard(Policy{Provider: "shark"})
	for i := 0; i < 1000; i++ {
		if !g.ShouldCall().Allowed {
			t.Fatalf("expected unlimited policy to allow call %d", i)
		}
	}
}

func TestWrapHTTPServesStaleWhileBlocked(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := WrapHTTP(Policy{Provider: "shark", PerMinute: 1, StaleFor: time.Minute}, server.Client())

	for i := 0; i < 2; i++ {
		resp, err := client.Get(server.URL + "/v1/devices")
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(body) != "ok" {
			t.Fatalf("unexpected body %q", body)
		}
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected one upstream hit, got %d", hits)
	}

	_, err := client.Post(server.URL+"/v1/devices", "application/json", nil)
	var rle RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rle.Provider != "shark" {
		t.Fatalf("unexpected provider: %s", rle.Provider)
	}
}
