package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Sentinel values for RFQ.OutAmount. The UI reference amount is a caller
// supplied sanity baseline; these two values mean the baseline is absent and
// the plausibility collar must be skipped.
const (
	OutAmountNone = "0"  // UI sent no reference quote
	OutAmountRace = "-1" // reference lost a race upstream, treat as absent
)

// RFQ is the canonical swap request: sell InAmount of InToken for OutToken
// on behalf of User. Amounts are base-unit integers carried as strings.
type RFQ struct {
	User      string  `json:"user"`
	InToken   string  `json:"inToken"`
	OutToken  string  `json:"outToken"`
	InAmount  string  `json:"inAmount"`
	OutAmount string  `json:"outAmount,omitempty"`
	SessionID string  `json:"sessionId,omitempty"`
	Slippage  float64 `json:"slippage,omitempty"`
}

// HasUIReference reports whether the RFQ carries a trustworthy UI baseline.
func (r RFQ) HasUIReference() bool {
	return r.OutAmount != "" && r.OutAmount != OutAmountNone && r.OutAmount != OutAmountRace
}

// Quote is one solver's answer to an RFQ, success or typed failure. A quote
// with a non-empty Error never aborts the batch; it simply loses the round.
type Quote struct {
	User      string `json:"user"`
	InToken   string `json:"inToken"`
	OutToken  string `json:"outToken"`
	InAmount  string `json:"inAmount"`
	SessionID string `json:"sessionId"`

	Exchange           string          `json:"exchange"`
	OutAmount          string          `json:"outAmount"`
	MinAmountOut       string          `json:"minAmountOut"`
	GasCostOutputToken string          `json:"gasCostOutputToken"`
	GasUnits           decimal.Decimal `json:"gasUnits"`
	Elapsed            time.Duration   `json:"elapsed"`
	Score              float64         `json:"score"`
	Error              string          `json:"error,omitempty"`
	Raw                json.RawMessage `json:"raw,omitempty"`
	SerializedOrder    string          `json:"serializedOrder"`
	PermitData         json.RawMessage `json:"permitData,omitempty"`
	SimulateAmountOut  string          `json:"simulateAmountOut"`
	OutTokenPrice      float64         `json:"outTokenPrice"`

	// Execution call data, present only on swap-phase quotes.
	To       string `json:"to,omitempty"`
	Data     string `json:"data,omitempty"`
	SolverID string `json:"solverId,omitempty"`
}

// AuctionEntry is a per-quote audit record computed for telemetry after a
// round settles.
type AuctionEntry struct {
	Exchange          string  `json:"exchange"`
	AmountOut         string  `json:"amountOut"`
	AmountOutF        string  `json:"amountOutF"`
	GasCost           string  `json:"gasCost"`
	GasCostF          string  `json:"gasCostF"`
	GasUnits          string  `json:"gasUnits"`
	Elapsed           float64 `json:"elapsed"`
	SimulateAmountOut string  `json:"simulateAmountOut"`
}

// AuctionResult is the ranked winning quote merged with the aggregate view of
// the round. It is returned to the caller and never persisted by the core.
type AuctionResult struct {
	Quote

	Quotes            []Quote           `json:"quotes"`
	UpdatedErrorTypes map[string]string `json:"updatedErrorTypes,omitempty"`
	AuctionData       []AuctionEntry    `json:"auctionData,omitempty"`
	InTokenUsd        float64           `json:"inTokenUsd,omitempty"`
	OutTokenUsd       float64           `json:"outTokenUsd,omitempty"`
}

// TokenInfo is resolved ERC-20 metadata.
type TokenInfo struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}

// TokenPrice is one oracle observation for a token.
type TokenPrice struct {
	PriceUsd    float64   `json:"priceUsd"`
	PriceNative float64   `json:"priceNative"`
	Timestamp   time.Time `json:"timestamp"`
}
