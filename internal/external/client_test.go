package external

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"roadrisk/internal/types"

	"github.com/sony/gobreaker/v2"
)

// noopSleep is a sleep function that does nothing, for fast tests.
func noopSleep(time.Duration) {}

// newTestClient creates a BaseClient with sensible test defaults: fast
// retries, no real sleep.
func newTestClient(t *testing.T, policy RetryPolicy) *BaseClient {
	t.Helper()
	return NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-breaker",
		policy,
		"roadrisk-test/1.0",
		WithSleepFunc(noopSleep),
	)
}

func TestDo_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := newTestClient(t, DefaultRetryPolicy())

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"status":"ok"}` {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestDo_InjectsTraceIDAndUserAgent(t *testing.T) {
	var traceID, userAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = r.Header.Get("X-B3-TraceId")
		userAgent = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, DefaultRetryPolicy())

	ctx := types.WithRequestID(context.Background(), "req-abc-123")
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	resp.Body.Close()

	if traceID != "req-abc-123" {
		t.Errorf("trace id = %q, want req-abc-123", traceID)
	}
	if userAgent != "roadrisk-test/1.0" {
		t.Errorf("user agent = %q", userAgent)
	}
}

func TestDo_RetriesOn5xxThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, RetryPolicy{MaxRetries: 3, MinWait: time.Millisecond, MaxWait: 10 * time.Millisecond})

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("expected success after retries, got: %v", err)
	}
	resp.Body.Close()

	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d calls, want 3", got)
	}
}

func TestDo_NoRetryPolicyFailsFast(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(t, NoRetryPolicy())

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	_, err := client.Do(req)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d calls, want exactly 1", got)
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error is %T, want *types.AppError", err)
	}
	if appErr.Code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("code = %q, want %q", appErr.Code, types.ErrCodeUpstreamUnavailable)
	}
}

func TestDo_Returns4xxWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, DefaultRetryPolicy())

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("4xx should be returned as-is, got error: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d calls, want 1", got)
	}
}

func TestDo_MapsExhausted429ToRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(t, RetryPolicy{MaxRetries: 1, MinWait: time.Millisecond, MaxWait: time.Millisecond})

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	_, err := client.Do(req)

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error is %T, want *types.AppError", err)
	}
	if appErr.Code != types.ErrCodeUpstreamRateLimited {
		t.Errorf("code = %q, want %q", appErr.Code, types.ErrCodeUpstreamRateLimited)
	}
}

func TestDo_ReplaysBodyOnRetry(t *testing.T) {
	var bodies []string
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, RetryPolicy{MaxRetries: 2, MinWait: time.Millisecond, MaxWait: time.Millisecond})

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, server.URL,
		strings.NewReader(`{"payload":1}`))
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("expected success, got: %v", err)
	}
	resp.Body.Close()

	if len(bodies) != 2 {
		t.Fatalf("server saw %d bodies, want 2", len(bodies))
	}
	for i, b := range bodies {
		if b != `{"payload":1}` {
			t.Errorf("attempt %d body = %q", i, b)
		}
	}
}

func TestDo_OpenBreakerShortCircuits(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	// A breaker that trips after a single failure.
	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "trippy",
		MaxRequests: 1,
		Timeout:     time.Hour,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
	})
	client := NewBaseClientWithBreaker(
		&http.Client{Timeout: 5 * time.Second},
		breaker,
		NoRetryPolicy(),
		"roadrisk-test/1.0",
		WithSleepFunc(noopSleep),
	)

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	if _, err := client.Do(req); err == nil {
		t.Fatal("first call should fail")
	}

	req2, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	_, err := client.Do(req2)

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error is %T, want *types.AppError", err)
	}
	if appErr.Code != types.ErrCodeUpstreamRateLimited {
		t.Errorf("code = %q, want %q (breaker open)", appErr.Code, types.ErrCodeUpstreamRateLimited)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d calls, want 1 (second call short-circuited)", got)
	}
}

func TestComputeBackoff_RespectsRetryAfterSeconds(t *testing.T) {
	client := newTestClient(t, RetryPolicy{MaxRetries: 1, MinWait: time.Millisecond, MaxWait: 30 * time.Second})

	resp := &http.Response{Header: http.Header{"Retry-After": []string{"2"}}}
	if got := client.computeBackoff(0, resp); got != 2*time.Second {
		t.Errorf("backoff = %v, want 2s", got)
	}
}

func TestComputeBackoff_ClampsToMaxWait(t *testing.T) {
	client := newTestClient(t, RetryPolicy{MaxRetries: 1, MinWait: time.Second, MaxWait: 3 * time.Second})

	resp := &http.Response{Header: http.Header{"Retry-After": []string{"600"}}}
	if got := client.computeBackoff(0, resp); got != 3*time.Second {
		t.Errorf("backoff = %v, want 3s (MaxWait)", got)
	}
}
