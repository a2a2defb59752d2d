package wallet

import (
	"time"

	"github.com/shopspring/decimal"

	"walletflow/internal/noderpc"
)

// Gas cost reference for the savings estimate: the average cost of a
// comparable transfer on the reference chain, in native gas tokens.
var referenceChainTxCost = decimal.RequireFromString("0.0150")

// nativeGasDecimals is the scale of raw gas cost values.
const nativeGasDecimals int32 = 9

// deriveFlow computes net flow and total volume over normalized event
// amounts, plus the per-token volume split needed for USD conversion.
// The empty event set yields zero flow and volume.
func deriveFlow(deposits, withdrawals []noderpc.CoinEvent) (netFlow, totalVolume decimal.Decimal, byToken map[string]decimal.Decimal, err error) {
	byToken = make(map[string]decimal.Decimal)

	var totalIn, totalOut decimal.Decimal
	for _, ev := range deposits {
		amt, nerr := Normalize(ev.Amount, ev.TokenType)
		if nerr != nil {
			return decimal.Zero, decimal.Zero, nil, nerr
		}
		totalIn = totalIn.Add(amt)
		byToken[ev.TokenType] = byToken[ev.TokenType].Add(amt)
	}
	for _, ev := range withdrawals {
		amt, nerr := Normalize(ev.Amount, ev.TokenType)
		if nerr != nil {
			return decimal.Zero, decimal.Zero, nil, nerr
		}
		totalOut = totalOut.Add(amt)
		byToken[ev.TokenType] = byToken[ev.TokenType].Add(amt)
	}

	return totalIn.Sub(totalOut), totalIn.Add(totalOut), byToken, nil
}

// deriveGas computes gas metrics over successful transactions with
// usable gas data only.
func deriveGas(txs []noderpc.Transaction) GasMetrics {
	gm := GasMetrics{
		TotalGasCost:     decimal.Zero,
		AverageGasCost:   decimal.Zero,
		EstimatedSavings: decimal.Zero,
	}

	for _, tx := range txs {
		if !tx.Success || !tx.GasOK {
			continue
		}
		cost, err := decimal.NewFromString(tx.GasCost)
		if err != nil {
			continue
		}
		gm.MeasuredTxCount++
		gm.TotalGasUsed += tx.GasUsed
		gm.TotalGasCost = gm.TotalGasCost.Add(cost.Shift(-nativeGasDecimals))
	}

	if gm.MeasuredTxCount == 0 {
		return gm
	}

	n := decimal.NewFromInt(int64(gm.MeasuredTxCount))
	gm.AverageGasUsed = float64(gm.TotalGasUsed) / float64(gm.MeasuredTxCount)
	gm.AverageGasCost = gm.TotalGasCost.Div(n)

	if gm.AverageGasCost.IsPositive() {
		gm.GasEfficiency, _ = referenceChainTxCost.Div(gm.AverageGasCost).Float64()
	}
	if saved := referenceChainTxCost.Sub(gm.AverageGasCost); saved.IsPositive() {
		gm.EstimatedSavings = saved.Mul(n)
	}
	return gm
}

// deriveTrading computes trade statistics over the union of deposit
// and withdrawal events. A single-event set has a frequency of one
// trade per day: the observed day span is floored at one to keep the
// frequency finite.
func deriveTrading(events []noderpc.CoinEvent) (TradingStats, error) {
	ts := TradingStats{
		AverageTradeSize: decimal.Zero,
		LargestTrade:     decimal.Zero,
		SmallestTrade:    decimal.Zero,
		VolumeByDay:      make(map[string]decimal.Decimal),
	}
	if len(events) == 0 {
		return ts, nil
	}

	var total decimal.Decimal
	var minTime, maxTime time.Time
	for i, ev := range events {
		amt, err := Normalize(ev.Amount, ev.TokenType)
		if err != nil {
			return TradingStats{}, err
		}

		ts.TradeCount++
		total = total.Add(amt)
		if i == 0 || amt.GreaterThan(ts.LargestTrade) {
			ts.LargestTrade = amt
		}
		if i == 0 || amt.LessThan(ts.SmallestTrade) {
			ts.SmallestTrade = amt
		}

		day := ev.Timestamp.UTC().Format("2006-01-02")
		ts.VolumeByDay[day] = ts.VolumeByDay[day].Add(amt)

		if i == 0 || ev.Timestamp.Before(minTime) {
			minTime = ev.Timestamp
		}
		if i == 0 || ev.Timestamp.After(maxTime) {
			maxTime = ev.Timestamp
		}
	}

	ts.AverageTradeSize = total.Div(decimal.NewFromInt(int64(ts.TradeCount)))

	daySpan := maxTime.Sub(minTime).Hours() / 24
	if daySpan < 1 {
		daySpan = 1
	}
	ts.TradeFrequency = float64(ts.TradeCount) / daySpan

	return ts, nil
}
