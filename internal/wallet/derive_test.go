package wallet

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"walletflow/internal/noderpc"
)

func depositEvent(amount string, ts time.Time) noderpc.CoinEvent {
	return noderpc.CoinEvent{Kind: noderpc.EventDeposit, Amount: amount, TokenType: "BTC", Timestamp: ts}
}

func withdrawEvent(amount string, ts time.Time) noderpc.CoinEvent {
	return noderpc.CoinEvent{Kind: noderpc.EventWithdraw, Amount: amount, TokenType: "BTC", Timestamp: ts}
}

func TestDeriveFlow(t *testing.T) {
	now := time.Now()
	deposits := []noderpc.CoinEvent{
		depositEvent("150000000", now), // 1.5 BTC
		depositEvent("50000000", now),  // 0.5 BTC
	}
	withdrawals := []noderpc.CoinEvent{
		withdrawEvent("75000000", now), // 0.75 BTC
	}

	netFlow, totalVolume, byToken, err := deriveFlow(deposits, withdrawals)
	if err != nil {
		t.Fatalf("deriveFlow: %v", err)
	}
	if want := decimal.RequireFromString("1.25"); !netFlow.Equal(want) {
		t.Errorf("netFlow = %s, want %s", netFlow, want)
	}
	if want := decimal.RequireFromString("2.75"); !totalVolume.Equal(want) {
		t.Errorf("totalVolume = %s, want %s", totalVolume, want)
	}
	if want := decimal.RequireFromString("2.75"); !byToken["BTC"].Equal(want) {
		t.Errorf("byToken[BTC] = %s, want %s", byToken["BTC"], want)
	}
}

func TestDeriveFlow_EmptySet(t *testing.T) {
	netFlow, totalVolume, _, err := deriveFlow(nil, nil)
	if err != nil {
		t.Fatalf("deriveFlow: %v", err)
	}
	if !netFlow.IsZero() {
		t.Errorf("netFlow = %s, want 0", netFlow)
	}
	if !totalVolume.IsZero() {
		t.Errorf("totalVolume = %s, want 0", totalVolume)
	}
}

func TestDeriveFlow_NetFlowMatchesComponents(t *testing.T) {
	now := time.Now()
	deposits := []noderpc.CoinEvent{depositEvent("100000000", now)}
	withdrawals := []noderpc.CoinEvent{withdrawEvent("300000000", now)}

	netFlow, _, _, err := deriveFlow(deposits, withdrawals)
	if err != nil {
		t.Fatalf("deriveFlow: %v", err)
	}
	if want := decimal.RequireFromString("-2"); !netFlow.Equal(want) {
		t.Errorf("netFlow = %s, want %s", netFlow, want)
	}
}

func TestDeriveGas_ExcludesFailedAndUnparseable(t *testing.T) {
	txs := []noderpc.Transaction{
		{TxRef: "t1", Success: true, GasOK: true, GasUsed: 1000, GasCost: "5000000"},
		{TxRef: "t2", Success: true, GasOK: true, GasUsed: 3000, GasCost: "15000000"},
		{TxRef: "t3", Success: false, GasOK: true, GasUsed: 9999, GasCost: "99999999"},
		{TxRef: "t4", Success: true, GasOK: false},
	}

	gm := deriveGas(txs)
	if gm.MeasuredTxCount != 2 {
		t.Fatalf("MeasuredTxCount = %d, want 2", gm.MeasuredTxCount)
	}
	if gm.TotalGasUsed != 4000 {
		t.Errorf("TotalGasUsed = %d, want 4000", gm.TotalGasUsed)
	}
	if want := decimal.RequireFromString("0.02"); !gm.TotalGasCost.Equal(want) {
		t.Errorf("TotalGasCost = %s, want %s", gm.TotalGasCost, want)
	}
	if want := decimal.RequireFromString("0.01"); !gm.AverageGasCost.Equal(want) {
		t.Errorf("AverageGasCost = %s, want %s", gm.AverageGasCost, want)
	}
	if gm.GasEfficiency <= 0 {
		t.Errorf("GasEfficiency = %f, want > 0", gm.GasEfficiency)
	}
	// Reference 0.015 vs average 0.01 over 2 txs: 0.01 saved.
	if want := decimal.RequireFromString("0.01"); !gm.EstimatedSavings.Equal(want) {
		t.Errorf("EstimatedSavings = %s, want %s", gm.EstimatedSavings, want)
	}
}

func TestDeriveGas_NoUsableTransactions(t *testing.T) {
	gm := deriveGas([]noderpc.Transaction{{TxRef: "t1", Success: false}})
	if gm.MeasuredTxCount != 0 {
		t.Errorf("MeasuredTxCount = %d, want 0", gm.MeasuredTxCount)
	}
	if gm.GasEfficiency != 0 {
		t.Errorf("GasEfficiency = %f, want 0", gm.GasEfficiency)
	}
}

func TestDeriveTrading_SingleEventFrequencyFinite(t *testing.T) {
	events := []noderpc.CoinEvent{depositEvent("100000000", time.Now())}

	ts, err := deriveTrading(events)
	if err != nil {
		t.Fatalf("deriveTrading: %v", err)
	}
	if ts.TradeCount != 1 {
		t.Errorf("TradeCount = %d, want 1", ts.TradeCount)
	}
	if ts.TradeFrequency != 1 {
		t.Errorf("TradeFrequency = %f, want 1 (zero day span floored)", ts.TradeFrequency)
	}
}

func TestDeriveTrading_SizesAndHistogram(t *testing.T) {
	day1 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	day3 := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)
	events := []noderpc.CoinEvent{
		depositEvent("100000000", day1), // 1 BTC
		withdrawEvent("50000000", day1), // 0.5 BTC
		depositEvent("400000000", day3), // 4 BTC
	}

	ts, err := deriveTrading(events)
	if err != nil {
		t.Fatalf("deriveTrading: %v", err)
	}
	if want := decimal.RequireFromString("4"); !ts.LargestTrade.Equal(want) {
		t.Errorf("LargestTrade = %s, want %s", ts.LargestTrade, want)
	}
	if want := decimal.RequireFromString("0.5"); !ts.SmallestTrade.Equal(want) {
		t.Errorf("SmallestTrade = %s, want %s", ts.SmallestTrade, want)
	}
	if ts.TradeFrequency <= 0 {
		t.Errorf("TradeFrequency = %f, want > 0", ts.TradeFrequency)
	}
	if want := decimal.RequireFromString("1.5"); !ts.VolumeByDay["2025-06-01"].Equal(want) {
		t.Errorf("VolumeByDay[2025-06-01] = %s, want %s", ts.VolumeByDay["2025-06-01"], want)
	}
	if want := decimal.RequireFromString("4"); !ts.VolumeByDay["2025-06-03"].Equal(want) {
		t.Errorf("VolumeByDay[2025-06-03] = %s, want %s", ts.VolumeByDay["2025-06-03"], want)
	}
}

func TestNormalize_UnknownTokenDefaultsToEightDecimals(t *testing.T) {
	got, err := Normalize("100000000", "UNKNOWNTOKEN")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if want := decimal.RequireFromString("1"); !got.Equal(want) {
		t.Errorf("Normalize = %s, want %s", got, want)
	}
}

func TestNormalize_KnownToken(t *testing.T) {
	got, err := Normalize("1500000", "USDC")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if want := decimal.RequireFromString("1.5"); !got.Equal(want) {
		t.Errorf("Normalize = %s, want %s", got, want)
	}
}
