package wallet

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"walletflow/internal/batch"
	"walletflow/internal/cache"
	"walletflow/internal/noderpc"
)

// DateRange bounds an analysis window. Zero values mean unbounded on
// that side.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// key renders the range for cache keys.
func (r DateRange) key() string {
	return strconv.FormatInt(r.From.Unix(), 10) + "-" + strconv.FormatInt(r.To.Unix(), 10)
}

// contains reports whether ts falls inside the range.
func (r DateRange) contains(ts time.Time) bool {
	if !r.From.IsZero() && ts.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && ts.After(r.To) {
		return false
	}
	return true
}

// GasMetrics summarizes gas usage over successful transactions with
// usable gas data. Failed or unparseable transactions are excluded,
// not zero-filled.
type GasMetrics struct {
	MeasuredTxCount  int             `json:"measuredTxCount"`
	TotalGasUsed     uint64          `json:"totalGasUsed"`
	AverageGasUsed   float64         `json:"averageGasUsed"`
	TotalGasCost     decimal.Decimal `json:"totalGasCost"`
	AverageGasCost   decimal.Decimal `json:"averageGasCost"`
	GasEfficiency    float64         `json:"gasEfficiency"`
	EstimatedSavings decimal.Decimal `json:"estimatedSavings"`
}

// TradingStats summarizes trade sizing and cadence over a wallet's
// events.
type TradingStats struct {
	TradeCount       int                        `json:"tradeCount"`
	AverageTradeSize decimal.Decimal            `json:"averageTradeSize"`
	LargestTrade     decimal.Decimal            `json:"largestTrade"`
	SmallestTrade    decimal.Decimal            `json:"smallestTrade"`
	TradeFrequency   float64                    `json:"tradeFrequency"`
	VolumeByDay      map[string]decimal.Decimal `json:"volumeByDay"`
}

// WalletActivity is the aggregate result for one address. It is built
// fresh per analysis (or served from cache) and never mutated after
// construction.
type WalletActivity struct {
	Address          string             `json:"address"`
	TokenTypes       []string           `json:"tokenTypes"`
	Range            DateRange          `json:"range"`
	Deposits         []noderpc.CoinEvent `json:"deposits"`
	Withdrawals      []noderpc.CoinEvent `json:"withdrawals"`
	NetFlow          decimal.Decimal    `json:"netFlow"`
	TotalVolume      decimal.Decimal    `json:"totalVolume"`
	TotalVolumeUSD   decimal.Decimal    `json:"totalVolumeUsd"`
	USDAvailable     bool               `json:"usdAvailable"`
	TransactionCount int                `json:"transactionCount"`
	Gas              GasMetrics         `json:"gas"`
	Trading          TradingStats       `json:"trading"`
	RebateAmount     decimal.Decimal    `json:"rebateAmount"`
	FetchError       string             `json:"fetchError,omitempty"`
	LastUpdatedAt    time.Time          `json:"lastUpdatedAt"`
}

// Summary holds aggregate totals across a multi-wallet analysis.
type Summary struct {
	WalletCount       int             `json:"walletCount"`
	FailedCount       int             `json:"failedCount"`
	TotalVolume       decimal.Decimal `json:"totalVolume"`
	TotalVolumeUSD    decimal.Decimal `json:"totalVolumeUsd"`
	TotalTransactions int             `json:"totalTransactions"`
	TotalGasUsed      uint64          `json:"totalGasUsed"`
	TotalRebates      decimal.Decimal `json:"totalRebates"`
	AverageNetFlow    decimal.Decimal `json:"averageNetFlow"`
}

// Metadata carries processing and cache statistics for a multi-wallet
// analysis.
type Metadata struct {
	ProcessingTime time.Duration `json:"processingTime"`
	CacheHitRate   float64       `json:"cacheHitRate"`
	ProcessedAt    time.Time     `json:"processedAt"`
}

// MultiWalletReport is the result of analyzing a set of addresses.
// Wallets is index-aligned to the input address list; failed addresses
// contribute zero-valued placeholders so every input has an output.
type MultiWalletReport struct {
	Wallets  []WalletActivity `json:"wallets"`
	Summary  Summary          `json:"summary"`
	Metadata Metadata         `json:"metadata"`
}

// PerformanceMetrics is the observability snapshot exposed to
// monitoring.
type PerformanceMetrics struct {
	Cache   cache.Stats  `json:"cache"`
	Batch   batch.Totals `json:"batch"`
	Breaker string       `json:"breaker"`
}
