// Package wallet folds raw ledger events into per-account financial
// metrics and assembles multi-account summaries. It is the downstream
// surface consumed by report generation: AnalyzeWallet, AnalyzeWallets
// and the cache-management operations around them.
package wallet

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"walletflow/internal/batch"
	"walletflow/internal/cache"
	"walletflow/internal/noderpc"
	"walletflow/internal/retry"
)

// Config holds the aggregator's tunables.
type Config struct {
	// ActivityTTL is the cache lifetime of computed wallet activity.
	// Activity changes frequently, so this is much shorter than the
	// client's TTL for static node data.
	ActivityTTL time.Duration
	// EventLimit caps events fetched per direction per token.
	EventLimit int
	// Concurrency bounds in-flight wallets during multi-wallet runs.
	Concurrency int
	// ItemRetry is the per-wallet retry schedule for batch runs.
	ItemRetry retry.Policy
	// BatchTimeout, if positive, bounds a whole multi-wallet run.
	BatchTimeout time.Duration
	// RebateRate is the fixed volume rebate rate.
	RebateRate decimal.Decimal
}

// Aggregator derives wallet activity through the resilient node
// client, the tiered cache and the batch processor.
type Aggregator struct {
	client *noderpc.Client
	cache  *cache.TieredCache
	proc   *batch.Processor
	cfg    Config
	logger zerolog.Logger
}

// New creates an Aggregator. All collaborators are injected by the
// composition root; the aggregator owns no hidden globals.
func New(client *noderpc.Client, tc *cache.TieredCache, proc *batch.Processor, cfg Config, logger zerolog.Logger) *Aggregator {
	if cfg.ActivityTTL <= 0 {
		cfg.ActivityTTL = 5 * time.Minute
	}
	if cfg.EventLimit <= 0 {
		cfg.EventLimit = 200
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.ItemRetry.MaxAttempts <= 0 {
		cfg.ItemRetry = retry.Policy{MaxAttempts: 2, BaseDelay: 250 * time.Millisecond, JitterFraction: 0.1}
	}
	if cfg.RebateRate.IsZero() {
		cfg.RebateRate = decimal.RequireFromString("0.0005")
	}
	return &Aggregator{
		client: client,
		cache:  tc,
		proc:   proc,
		cfg:    cfg,
		logger: logger,
	}
}

// AnalyzeWallet derives activity for a single address and token type.
// Repeat calls inside the activity TTL are served from cache.
func (a *Aggregator) AnalyzeWallet(ctx context.Context, address, tokenType string, r DateRange) (*WalletActivity, error) {
	return a.analyze(ctx, address, []string{tokenType}, r)
}

// AnalyzeWallets analyzes a set of addresses through the batch
// processor. The report always carries one wallet entry per input
// address, in input order; a failed address contributes a zero-valued
// placeholder with its error attached.
func (a *Aggregator) AnalyzeWallets(ctx context.Context, addresses, tokenTypes []string, r DateRange) (*MultiWalletReport, error) {
	if len(addresses) == 0 {
		return nil, &noderpc.ValidationError{Field: "addresses", Reason: "empty batch"}
	}

	started := time.Now()
	results := batch.Process(ctx, a.proc, addresses, func(ctx context.Context, addr string) (*WalletActivity, error) {
		return a.analyze(ctx, addr, tokenTypes, r)
	}, batch.Options[string]{
		Concurrency: a.cfg.Concurrency,
		Retry:       a.cfg.ItemRetry,
		Timeout:     a.cfg.BatchTimeout,
		Label:       func(addr string) string { return addr },
		OnProgress: func(done, total int, label string) {
			a.logger.Debug().Int("done", done).Int("total", total).Str("address", label).Msg("wallet analyzed")
		},
	})

	wallets := make([]WalletActivity, len(results))
	for i, res := range results {
		if res.Err != nil {
			a.logger.Warn().Err(res.Err).Str("address", res.Item).Msg("wallet analysis failed, emitting placeholder")
			wallets[i] = zeroActivity(res.Item, tokenTypes, r, res.Err)
			continue
		}
		wallets[i] = *res.Value
	}

	report := &MultiWalletReport{
		Wallets: wallets,
		Summary: summarize(wallets),
		Metadata: Metadata{
			ProcessingTime: time.Since(started),
			CacheHitRate:   a.cache.Stats().HitRate,
			ProcessedAt:    time.Now().UTC(),
		},
	}
	return report, nil
}

// InvalidateWallet removes every cached entry touching the address,
// across all namespaces and both tiers, forcing the next analysis to
// refetch. Returns the number of keys removed.
func (a *Aggregator) InvalidateWallet(ctx context.Context, address string) int {
	n := a.cache.DeletePattern(ctx, address)
	a.logger.Debug().Str("address", address).Int("removed", n).Msg("wallet cache invalidated")
	return n
}

// WarmWallets prefetches account info and events for the given
// addresses so subsequent analyses hit the cache. Failures are logged
// and skipped; the return value is the number of addresses whose
// account info was warmed.
func (a *Aggregator) WarmWallets(ctx context.Context, addresses, tokenTypes []string) int {
	warmed := 0
	for _, res := range a.client.AccountInfoBatch(ctx, addresses) {
		if res.Err != nil {
			a.logger.Debug().Err(res.Err).Str("address", res.Item).Msg("warm fetch failed")
			continue
		}
		warmed++
	}
	for _, token := range tokenTypes {
		a.client.EventsBatch(ctx, addresses, token, noderpc.EventDeposit, a.cfg.EventLimit)
		a.client.EventsBatch(ctx, addresses, token, noderpc.EventWithdraw, a.cfg.EventLimit)
	}
	return warmed
}

// GetPerformanceMetrics snapshots cache, batch and breaker state for
// monitoring.
func (a *Aggregator) GetPerformanceMetrics() PerformanceMetrics {
	return PerformanceMetrics{
		Cache:   a.cache.Stats(),
		Batch:   a.proc.Totals(),
		Breaker: a.client.BreakerState().String(),
	}
}

// analyze is the single-wallet path shared by AnalyzeWallet and batch
// jobs: cache check, three concurrent fetches, metric derivation,
// cache write.
func (a *Aggregator) analyze(ctx context.Context, address string, tokenTypes []string, r DateRange) (*WalletActivity, error) {
	if len(tokenTypes) == 0 {
		return nil, &noderpc.ValidationError{Field: "tokenTypes", Reason: "empty"}
	}

	args := make([]any, 0, len(tokenTypes)+1)
	for _, t := range tokenTypes {
		args = append(args, t)
	}
	args = append(args, r.key())
	key := cache.ArgsKey(cache.NSWallet, address, args...)

	if data, ok := a.cache.Get(ctx, key); ok {
		var cached WalletActivity
		if err := json.Unmarshal(data, &cached); err == nil {
			return &cached, nil
		}
		// Unreadable cached value: fall through to a fresh build.
		a.cache.Delete(ctx, key)
	}

	var (
		deposits    []noderpc.CoinEvent
		withdrawals []noderpc.CoinEvent
		txs         []noderpc.Transaction
		errs        [3]error
		wg          sync.WaitGroup
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		deposits, errs[0] = a.fetchEvents(ctx, address, tokenTypes, noderpc.EventDeposit, r)
	}()
	go func() {
		defer wg.Done()
		withdrawals, errs[1] = a.fetchEvents(ctx, address, tokenTypes, noderpc.EventWithdraw, r)
	}()
	go func() {
		defer wg.Done()
		txs, errs[2] = a.client.Transactions(ctx, address, r.From, r.To)
	}()
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	netFlow, totalVolume, byToken, err := deriveFlow(deposits, withdrawals)
	if err != nil {
		return nil, err
	}

	allEvents := make([]noderpc.CoinEvent, 0, len(deposits)+len(withdrawals))
	allEvents = append(allEvents, deposits...)
	allEvents = append(allEvents, withdrawals...)
	trading, err := deriveTrading(allEvents)
	if err != nil {
		return nil, err
	}

	usd, usdOK := a.volumeUSD(ctx, byToken)

	activity := &WalletActivity{
		Address:          address,
		TokenTypes:       tokenTypes,
		Range:            r,
		Deposits:         deposits,
		Withdrawals:      withdrawals,
		NetFlow:          netFlow,
		TotalVolume:      totalVolume,
		TotalVolumeUSD:   usd,
		USDAvailable:     usdOK,
		TransactionCount: len(txs),
		Gas:              deriveGas(txs),
		Trading:          trading,
		RebateAmount:     totalVolume.Mul(a.cfg.RebateRate),
		LastUpdatedAt:    time.Now().UTC(),
	}

	if data, err := json.Marshal(activity); err == nil {
		a.cache.Set(ctx, key, data, a.cfg.ActivityTTL)
	}
	return activity, nil
}

// fetchEvents pulls one direction of events across all requested token
// types and filters them to the analysis range.
func (a *Aggregator) fetchEvents(ctx context.Context, address string, tokenTypes []string, direction noderpc.EventKind, r DateRange) ([]noderpc.CoinEvent, error) {
	var out []noderpc.CoinEvent
	for _, token := range tokenTypes {
		events, err := a.client.Events(ctx, address, token, direction, a.cfg.EventLimit)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			if r.contains(ev.Timestamp) {
				out = append(out, ev)
			}
		}
	}
	return out, nil
}

// volumeUSD converts per-token volumes to USD using node spot prices.
// Metrics are computed from fetched data only: if any price is
// unavailable the conversion is reported as unavailable rather than
// guessed.
func (a *Aggregator) volumeUSD(ctx context.Context, byToken map[string]decimal.Decimal) (decimal.Decimal, bool) {
	total := decimal.Zero
	for token, volume := range byToken {
		price, err := a.client.TokenPrice(ctx, token)
		if err != nil {
			a.logger.Debug().Err(err).Str("token", token).Msg("price unavailable, skipping USD conversion")
			return decimal.Zero, false
		}
		total = total.Add(volume.Mul(price))
	}
	return total, true
}

// zeroActivity is the placeholder emitted for a failed batch item so
// summary averages stay well-defined.
func zeroActivity(address string, tokenTypes []string, r DateRange, err error) WalletActivity {
	return WalletActivity{
		Address:        address,
		TokenTypes:     tokenTypes,
		Range:          r,
		NetFlow:        decimal.Zero,
		TotalVolume:    decimal.Zero,
		TotalVolumeUSD: decimal.Zero,
		RebateAmount:   decimal.Zero,
		Trading:        TradingStats{AverageTradeSize: decimal.Zero, LargestTrade: decimal.Zero, SmallestTrade: decimal.Zero, VolumeByDay: map[string]decimal.Decimal{}},
		Gas:            GasMetrics{TotalGasCost: decimal.Zero, AverageGasCost: decimal.Zero, EstimatedSavings: decimal.Zero},
		FetchError:     err.Error(),
		LastUpdatedAt:  time.Now().UTC(),
	}
}

// summarize folds per-wallet results into aggregate totals.
func summarize(wallets []WalletActivity) Summary {
	s := Summary{
		WalletCount:    len(wallets),
		TotalVolume:    decimal.Zero,
		TotalVolumeUSD: decimal.Zero,
		TotalRebates:   decimal.Zero,
		AverageNetFlow: decimal.Zero,
	}

	netFlowSum := decimal.Zero
	for _, w := range wallets {
		if w.FetchError != "" {
			s.FailedCount++
		}
		s.TotalVolume = s.TotalVolume.Add(w.TotalVolume)
		s.TotalVolumeUSD = s.TotalVolumeUSD.Add(w.TotalVolumeUSD)
		s.TotalTransactions += w.TransactionCount
		s.TotalGasUsed += w.Gas.TotalGasUsed
		s.TotalRebates = s.TotalRebates.Add(w.RebateAmount)
		netFlowSum = netFlowSum.Add(w.NetFlow)
	}
	if len(wallets) > 0 {
		s.AverageNetFlow = netFlowSum.Div(decimal.NewFromInt(int64(len(wallets))))
	}
	return s
}
