package noderpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"walletflow/internal/breaker"
	"walletflow/internal/cache"
	"walletflow/internal/retry"
)

const testAddr = "0xabc123def456"

func newTestCache(t *testing.T) *cache.TieredCache {
	t.Helper()
	local, err := cache.NewMemoryTier(256, 0)
	if err != nil {
		t.Fatalf("NewMemoryTier: %v", err)
	}
	return cache.NewTiered(local, cache.Options{}, zerolog.Nop())
}

func newTestClient(t *testing.T, baseURL string, cfg Config) (*Client, *cache.TieredCache) {
	t.Helper()
	cfg.BaseURL = baseURL
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond}
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 1000
	}
	tc := newTestCache(t)
	return NewClient(cfg, tc, nil, zerolog.Nop()), tc
}

func eventsPayload() string {
	return fmt.Sprintf(`{"events":[
		{"kind":"deposit","amount":"150000000","tokenType":"BTC","timestamp":%d,"txRef":"tx1","counterparty":"0xfeed"},
		{"kind":"deposit","amount":"50000000","tokenType":"BTC","timestamp":%d,"txRef":"tx2","counterparty":"0xbeef"}
	]}`, time.Now().Add(-48*time.Hour).Unix(), time.Now().Add(-24*time.Hour).Unix())
}

func TestClient_EventsReadThroughCache(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		fmt.Fprint(w, eventsPayload())
	}))
	defer srv.Close()

	c, tc := newTestClient(t, srv.URL, Config{})
	ctx := context.Background()

	first, err := c.Events(ctx, testAddr, "BTC", EventDeposit, 100)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(first))
	}

	second, err := c.Events(ctx, testAddr, "BTC", EventDeposit, 100)
	if err != nil {
		t.Fatalf("Events (cached): %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("len(cached events) = %d, want 2", len(second))
	}

	if n := atomic.LoadInt64(&hits); n != 1 {
		t.Errorf("server hits = %d, want 1", n)
	}
	if stats := tc.Stats(); stats.Hits != 1 {
		t.Errorf("cache hits = %d, want 1", stats.Hits)
	}
}

func TestClient_RateLimitedNotRetried(t *testing.T) {
	reset := time.Now().Add(30 * time.Second).Unix()
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset))
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, Config{Retry: retry.Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}})

	_, err := c.AccountInfo(context.Background(), testAddr)
	resetAt, ok := IsRateLimited(err)
	if !ok {
		t.Fatalf("err = %v, want *RateLimitedError", err)
	}
	if resetAt.Unix() != reset {
		t.Errorf("resetAt = %d, want %d", resetAt.Unix(), reset)
	}
	if n := atomic.LoadInt64(&hits); n != 1 {
		t.Errorf("server hits = %d, want 1 (429 must not be retried)", n)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, `{"address":%q,"balance":"1000","sequence":7,"updatedAt":%d}`, testAddr, time.Now().Unix())
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, Config{Retry: retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}})

	info, err := c.AccountInfo(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("AccountInfo: %v", err)
	}
	if info.Balance != "1000" {
		t.Errorf("balance = %s, want 1000", info.Balance)
	}
	if n := atomic.LoadInt64(&hits); n != 3 {
		t.Errorf("server hits = %d, want 3", n)
	}
}

func TestClient_DecodeErrorOnBadAmount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"events":[{"kind":"deposit","amount":"not-a-number","tokenType":"BTC","timestamp":%d}]}`, time.Now().Unix())
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, Config{})

	_, err := c.Events(context.Background(), testAddr, "BTC", EventDeposit, 10)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *DecodeError", err)
	}
	if de.Field != "amount" {
		t.Errorf("field = %s, want amount", de.Field)
	}
}

func TestClient_CircuitOpensAndFailsFast(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, Config{
		BreakerThreshold: 2,
		BreakerCooldown:  time.Minute,
	})
	ctx := context.Background()

	// Two terminal failures trip the breaker.
	for i := 0; i < 2; i++ {
		if _, err := c.AccountInfo(ctx, testAddr); err == nil {
			t.Fatalf("call %d should fail", i+1)
		}
	}
	if c.BreakerState() != breaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", c.BreakerState())
	}

	before := atomic.LoadInt64(&hits)
	_, err := c.AccountInfo(ctx, testAddr)
	var oe *breaker.OpenError
	if !errors.As(err, &oe) {
		t.Fatalf("err = %v, want *breaker.OpenError", err)
	}
	if after := atomic.LoadInt64(&hits); after != before {
		t.Errorf("server hits moved %d -> %d while circuit open", before, after)
	}
}

func TestClient_ValidationBeforeNetwork(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, Config{})
	ctx := context.Background()

	var ve *ValidationError
	if _, err := c.AccountInfo(ctx, "bad addr!"); !errors.As(err, &ve) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if _, err := c.Transactions(ctx, testAddr, time.Now(), time.Now().Add(-time.Hour)); !errors.As(err, &ve) {
		t.Fatalf("inverted range err = %v, want *ValidationError", err)
	}
	if _, err := c.Events(ctx, testAddr, "BTC", EventKind("sideways"), 10); !errors.As(err, &ve) {
		t.Fatalf("bad direction err = %v, want *ValidationError", err)
	}
	if n := atomic.LoadInt64(&hits); n != 0 {
		t.Errorf("server hits = %d, want 0", n)
	}
}

func TestClient_AccountInfoBatchPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/accounts/0xdeadbeef00" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"address":"ok","balance":"5","sequence":1,"updatedAt":%d}`, time.Now().Unix())
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, Config{})
	addrs := []string{"0xaaaa1111", "0xdeadbeef00", "0xbbbb2222"}

	results := c.AccountInfoBatch(context.Background(), addrs)
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("healthy addresses failed: %v, %v", results[0].Err, results[2].Err)
	}
	if results[1].Err == nil {
		t.Error("missing account should fail")
	}
}

func TestClient_TransactionCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Path; got != "/v1/accounts/"+testAddr+"/transactions/count" {
			t.Errorf("path = %s", got)
		}
		fmt.Fprint(w, `{"count":17}`)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, Config{})
	n, err := c.TransactionCount(context.Background(), testAddr, time.Now().Add(-24*time.Hour), time.Now())
	if err != nil {
		t.Fatalf("TransactionCount: %v", err)
	}
	if n != 17 {
		t.Errorf("count = %d, want 17", n)
	}
}
