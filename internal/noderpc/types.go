package noderpc

import (
	"strings"
	"time"
)

// EventKind distinguishes inbound from outbound transfers. It doubles
// as the direction filter for event queries.
type EventKind string

const (
	EventDeposit  EventKind = "deposit"
	EventWithdraw EventKind = "withdraw"
)

// CoinEvent is one normalized ledger event. Amount is the raw integer
// amount in the token's smallest unit, kept as a string to avoid
// precision loss. Immutable once decoded.
type CoinEvent struct {
	Kind         EventKind `json:"kind"`
	Amount       string    `json:"amount"`
	TokenType    string    `json:"tokenType"`
	Timestamp    time.Time `json:"timestamp"`
	TxRef        string    `json:"txRef"`
	Counterparty string    `json:"counterparty"`
}

// Transaction is one entry of an account's transaction history.
// GasOK is false when the node returned no usable gas data for the
// entry; such entries are excluded from gas metrics rather than
// counted as zero.
type Transaction struct {
	TxRef     string    `json:"txRef"`
	GasUsed   uint64    `json:"gasUsed"`
	GasCost   string    `json:"gasCost"`
	Success   bool      `json:"success"`
	GasOK     bool      `json:"gasOk"`
	Timestamp time.Time `json:"timestamp"`
}

// AccountInfo is the node's static view of an account.
type AccountInfo struct {
	Address   string    `json:"address"`
	Balance   string    `json:"balance"`
	Sequence  uint64    `json:"sequence"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// wire shapes as returned by the node. Timestamps are unix seconds.

type wireAccount struct {
	Address   string `json:"address"`
	Balance   string `json:"balance"`
	Sequence  uint64 `json:"sequence"`
	UpdatedAt int64  `json:"updatedAt"`
}

type wireEvent struct {
	Kind         string `json:"kind"`
	Amount       string `json:"amount"`
	TokenType    string `json:"tokenType"`
	Timestamp    int64  `json:"timestamp"`
	TxRef        string `json:"txRef"`
	Counterparty string `json:"counterparty"`
}

type wireEventsResponse struct {
	Events []wireEvent `json:"events"`
}

type wireTransaction struct {
	TxRef     string `json:"txRef"`
	GasUsed   uint64 `json:"gasUsed"`
	GasCost   string `json:"gasCost"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

type wireTransactionsResponse struct {
	Transactions []wireTransaction `json:"transactions"`
}

type wireCountResponse struct {
	Count int `json:"count"`
}

type wirePriceResponse struct {
	Token string `json:"token"`
	USD   string `json:"usd"`
}

// decodeEvent converts a wire event, failing explicitly on malformed
// required fields.
func decodeEvent(endpoint string, w wireEvent) (CoinEvent, error) {
	var kind EventKind
	switch w.Kind {
	case string(EventDeposit):
		kind = EventDeposit
	case string(EventWithdraw):
		kind = EventWithdraw
	default:
		return CoinEvent{}, &DecodeError{Endpoint: endpoint, Field: "kind", Reason: "unknown kind " + w.Kind}
	}
	if !isIntegerString(w.Amount) {
		return CoinEvent{}, &DecodeError{Endpoint: endpoint, Field: "amount", Reason: "not an integer string: " + w.Amount}
	}
	if w.TokenType == "" {
		return CoinEvent{}, &DecodeError{Endpoint: endpoint, Field: "tokenType", Reason: "empty"}
	}
	if w.Timestamp <= 0 {
		return CoinEvent{}, &DecodeError{Endpoint: endpoint, Field: "timestamp", Reason: "missing"}
	}
	return CoinEvent{
		Kind:         kind,
		Amount:       w.Amount,
		TokenType:    w.TokenType,
		Timestamp:    time.Unix(w.Timestamp, 0).UTC(),
		TxRef:        w.TxRef,
		Counterparty: w.Counterparty,
	}, nil
}

// decodeTransaction converts a wire transaction. Gas fields that do
// not parse mark the entry GasOK=false instead of failing the fetch.
func decodeTransaction(w wireTransaction) Transaction {
	tx := Transaction{
		TxRef:   w.TxRef,
		Success: w.Status == "success",
	}
	if w.Timestamp > 0 {
		tx.Timestamp = time.Unix(w.Timestamp, 0).UTC()
	}
	if w.GasUsed > 0 && isIntegerString(w.GasCost) {
		tx.GasUsed = w.GasUsed
		tx.GasCost = w.GasCost
		tx.GasOK = true
	}
	return tx
}

// isIntegerString reports whether s is a non-empty decimal integer,
// optionally negative.
func isIntegerString(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
