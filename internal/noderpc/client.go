// Package noderpc is the resilient client for the external node's
// JSON-over-HTTP API. Every outbound call passes, in order, through a
// circuit breaker gate, a rate limiter gate, and a retry loop with
// exponential backoff; responses are cached read-through so repeat
// calls inside the TTL never reach the network or move the breaker
// and limiter bookkeeping.
package noderpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"walletflow/internal/batch"
	"walletflow/internal/breaker"
	"walletflow/internal/cache"
	"walletflow/internal/metrics"
	"walletflow/internal/ratelimit"
	"walletflow/internal/retry"
)

// Config holds the client's tunables. All values have safe defaults
// for unauthenticated, low-volume public use.
type Config struct {
	BaseURL          string
	Timeout          time.Duration
	Retry            retry.Policy
	DefaultTTL       time.Duration
	RateLimit        int
	RateWindow       time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
	BatchConcurrency int
}

// Client wraps all node access with failure isolation. The breaker,
// limiter and cache are shared by every concurrent caller of this
// instance; the composition root is expected to construct exactly one
// Client per process.
type Client struct {
	baseURL          string
	http             *http.Client
	cache            *cache.TieredCache
	breaker          *breaker.Breaker
	limiter          *ratelimit.Limiter
	retry            retry.Policy
	ttl              time.Duration
	batchConcurrency int
	proc             *batch.Processor
	metrics          *metrics.Metrics
	logger           zerolog.Logger
}

// NewClient creates a Client over the given tiered cache. The metrics
// sink may be nil.
func NewClient(cfg Config, tc *cache.TieredCache, m *metrics.Metrics, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Second
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 5
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultPolicy
	}
	return &Client{
		baseURL:          cfg.BaseURL,
		http:             &http.Client{Timeout: cfg.Timeout},
		cache:            tc,
		breaker:          breaker.New(breaker.Config{FailureThreshold: cfg.BreakerThreshold, Cooldown: cfg.BreakerCooldown}),
		limiter:          ratelimit.New(cfg.RateLimit, cfg.RateWindow),
		retry:            cfg.Retry,
		ttl:              cfg.DefaultTTL,
		batchConcurrency: cfg.BatchConcurrency,
		proc:             batch.NewProcessor(logger),
		metrics:          m,
		logger:           logger,
	}
}

// AccountInfo fetches the node's view of a single account.
func (c *Client) AccountInfo(ctx context.Context, address string) (AccountInfo, error) {
	if err := validateAddress(address); err != nil {
		return AccountInfo{}, err
	}

	path := "/v1/accounts/" + address
	key := cache.Key(cache.NSAccount, address)
	data, cached, err := c.fetch(ctx, "accountInfo", key, path, nil)
	if err != nil {
		return AccountInfo{}, err
	}

	var w wireAccount
	if err := json.Unmarshal(data, &w); err != nil {
		return AccountInfo{}, &DecodeError{Endpoint: path, Field: "body", Reason: err.Error()}
	}
	if w.Address == "" {
		return AccountInfo{}, &DecodeError{Endpoint: path, Field: "address", Reason: "empty"}
	}
	if !isIntegerString(w.Balance) {
		return AccountInfo{}, &DecodeError{Endpoint: path, Field: "balance", Reason: "not an integer string: " + w.Balance}
	}

	if !cached {
		c.cache.Set(ctx, key, data, c.ttl)
	}
	return AccountInfo{
		Address:   w.Address,
		Balance:   w.Balance,
		Sequence:  w.Sequence,
		UpdatedAt: time.Unix(w.UpdatedAt, 0).UTC(),
	}, nil
}

// Events fetches ledger events for an account, filtered by token type
// and direction.
func (c *Client) Events(ctx context.Context, address, tokenType string, direction EventKind, limit int) ([]CoinEvent, error) {
	if err := validateAddress(address); err != nil {
		return nil, err
	}
	if direction != EventDeposit && direction != EventWithdraw {
		return nil, &ValidationError{Field: "direction", Reason: "must be deposit or withdraw"}
	}
	if limit <= 0 {
		limit = 100
	}

	path := "/v1/accounts/" + address + "/events"
	query := url.Values{}
	query.Set("token", tokenType)
	query.Set("direction", string(direction))
	query.Set("limit", strconv.Itoa(limit))

	key := cache.ArgsKey(cache.NSEvents, address, tokenType, string(direction), limit)
	data, cached, err := c.fetch(ctx, "events", key, path, query)
	if err != nil {
		return nil, err
	}

	var w wireEventsResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &DecodeError{Endpoint: path, Field: "body", Reason: err.Error()}
	}
	events := make([]CoinEvent, 0, len(w.Events))
	for _, we := range w.Events {
		ev, err := decodeEvent(path, we)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	if !cached {
		c.cache.Set(ctx, key, data, c.ttl)
	}
	return events, nil
}

// Transactions fetches an account's transaction history within the
// given time range.
func (c *Client) Transactions(ctx context.Context, address string, from, to time.Time) ([]Transaction, error) {
	if err := validateAddress(address); err != nil {
		return nil, err
	}
	if err := validateRange(from, to); err != nil {
		return nil, err
	}

	path := "/v1/accounts/" + address + "/transactions"
	query := rangeQuery(from, to)

	key := cache.ArgsKey(cache.NSTxCount, address, "history", from.Unix(), to.Unix())
	data, cached, err := c.fetch(ctx, "transactions", key, path, query)
	if err != nil {
		return nil, err
	}

	var w wireTransactionsResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &DecodeError{Endpoint: path, Field: "body", Reason: err.Error()}
	}
	txs := make([]Transaction, 0, len(w.Transactions))
	for _, wt := range w.Transactions {
		txs = append(txs, decodeTransaction(wt))
	}

	if !cached {
		c.cache.Set(ctx, key, data, c.ttl)
	}
	return txs, nil
}

// TransactionCount fetches the number of transactions for an account
// within the given time range.
func (c *Client) TransactionCount(ctx context.Context, address string, from, to time.Time) (int, error) {
	if err := validateAddress(address); err != nil {
		return 0, err
	}
	if err := validateRange(from, to); err != nil {
		return 0, err
	}

	path := "/v1/accounts/" + address + "/transactions/count"
	query := rangeQuery(from, to)

	key := cache.ArgsKey(cache.NSTxCount, address, "count", from.Unix(), to.Unix())
	data, cached, err := c.fetch(ctx, "transactionCount", key, path, query)
	if err != nil {
		return 0, err
	}

	var w wireCountResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return 0, &DecodeError{Endpoint: path, Field: "body", Reason: err.Error()}
	}
	if w.Count < 0 {
		return 0, &DecodeError{Endpoint: path, Field: "count", Reason: "negative"}
	}

	if !cached {
		c.cache.Set(ctx, key, data, c.ttl)
	}
	return w.Count, nil
}

// TokenPrice fetches the USD spot price for a token type.
func (c *Client) TokenPrice(ctx context.Context, tokenType string) (decimal.Decimal, error) {
	if tokenType == "" {
		return decimal.Zero, &ValidationError{Field: "tokenType", Reason: "empty"}
	}

	path := "/v1/prices/" + tokenType
	key := cache.Key(cache.NSPrice, tokenType)
	data, cached, err := c.fetch(ctx, "tokenPrice", key, path, nil)
	if err != nil {
		return decimal.Zero, err
	}

	var w wirePriceResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return decimal.Zero, &DecodeError{Endpoint: path, Field: "body", Reason: err.Error()}
	}
	price, err := decimal.NewFromString(w.USD)
	if err != nil {
		return decimal.Zero, &DecodeError{Endpoint: path, Field: "usd", Reason: err.Error()}
	}

	if !cached {
		c.cache.Set(ctx, key, data, c.ttl)
	}
	return price, nil
}

// AccountInfoBatch fans AccountInfo out over many addresses with
// bounded concurrency and collects per-address outcomes.
func (c *Client) AccountInfoBatch(ctx context.Context, addresses []string) []batch.Result[string, AccountInfo] {
	return batch.Process(ctx, c.proc, addresses, func(ctx context.Context, addr string) (AccountInfo, error) {
		return c.AccountInfo(ctx, addr)
	}, batch.Options[string]{
		Concurrency: c.batchConcurrency,
		Retry:       retry.Policy{MaxAttempts: 1},
		Label:       func(addr string) string { return addr },
	})
}

// EventsBatch fans Events out over many addresses with bounded
// concurrency and collects per-address outcomes.
func (c *Client) EventsBatch(ctx context.Context, addresses []string, tokenType string, direction EventKind, limit int) []batch.Result[string, []CoinEvent] {
	return batch.Process(ctx, c.proc, addresses, func(ctx context.Context, addr string) ([]CoinEvent, error) {
		return c.Events(ctx, addr, tokenType, direction, limit)
	}, batch.Options[string]{
		Concurrency: c.batchConcurrency,
		Retry:       retry.Policy{MaxAttempts: 1},
		Label:       func(addr string) string { return addr },
	})
}

// BreakerState exposes the circuit state for observability.
func (c *Client) BreakerState() breaker.State {
	return c.breaker.State()
}

// fetch runs the protected call sequence for one logical request and
// returns the raw response body. The bool reports whether the body was
// served from cache; callers write freshly fetched, successfully
// decoded bodies back through the cache themselves.
func (c *Client) fetch(ctx context.Context, op, cacheKey, path string, query url.Values) ([]byte, bool, error) {
	if data, ok := c.cache.Get(ctx, cacheKey); ok {
		c.metrics.ObserveCache(true)
		return data, true, nil
	}
	c.metrics.ObserveCache(false)

	if err := c.breaker.Allow(); err != nil {
		c.logger.Debug().Str("op", op).Msg("circuit open, failing fast")
		return nil, false, err
	}

	started := time.Now()
	data, err := retry.Do(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, retry.Permanent(err)
		}
		return c.request(ctx, path, query)
	})
	elapsed := time.Since(started)

	if err != nil {
		c.breaker.RecordFailure()
		c.metrics.ObserveRPC(op, "error", elapsed.Seconds())
		c.logger.Warn().Err(err).Str("op", op).Str("path", path).Msg("node request failed")
		return nil, false, err
	}

	c.breaker.RecordSuccess()
	c.metrics.ObserveRPC(op, "success", elapsed.Seconds())
	return data, false, nil
}

// request performs one HTTP round trip and classifies the outcome.
// 5xx and transport failures are retryable; 429 and other 4xx are
// surfaced as permanent so the retry loop stops immediately.
func (c *Client) request(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, retry.Permanent(&RequestError{Endpoint: path, Err: err})
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RequestError{Endpoint: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Endpoint: path, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, retry.Permanent(&RateLimitedError{Endpoint: path, ResetAt: parseResetTime(resp)})
	case resp.StatusCode >= 500:
		return nil, &RequestError{Endpoint: path, Status: resp.StatusCode}
	default:
		return nil, retry.Permanent(&RequestError{Endpoint: path, Status: resp.StatusCode})
	}
}

// parseResetTime extracts the rate-limit reset from response headers,
// falling back to one second out when the node sends none.
func parseResetTime(resp *http.Response) time.Time {
	if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(unix, 0).UTC()
		}
	}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Now().Add(time.Duration(secs) * time.Second)
		}
	}
	return time.Now().Add(time.Second)
}

func validateAddress(address string) error {
	if address == "" {
		return &ValidationError{Field: "address", Reason: "empty"}
	}
	if len(address) < 8 || len(address) > 128 {
		return &ValidationError{Field: "address", Reason: fmt.Sprintf("length %d outside [8, 128]", len(address))}
	}
	for _, r := range address {
		ok := r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '_' || r == '-'
		if !ok {
			return &ValidationError{Field: "address", Reason: "contains invalid character"}
		}
	}
	return nil
}

func validateRange(from, to time.Time) error {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return &ValidationError{Field: "dateRange", Reason: "end before start"}
	}
	return nil
}

func rangeQuery(from, to time.Time) url.Values {
	query := url.Values{}
	if !from.IsZero() {
		query.Set("from", strconv.FormatInt(from.Unix(), 10))
	}
	if !to.IsZero() {
		query.Set("to", strconv.FormatInt(to.Unix(), 10))
	}
	return query
}
