package model

import "fmt"

// Policy rejection codes, returned synchronously before any solver dispatch.
const (
	ErrMaxSlippageExceeded    = "maxSlippageExceeded"
	ErrNativeInNotSupported   = "nativeInNotSupported"
	ErrTokenBlocked           = "tokenBlocked"
	ErrGovernanceTokenBlocked = "governanceTokenBlocked"
	ErrPayNotSupported        = "payNotSupported"
	ErrBelowDollarThreshold   = "belowDollarThreshold"
)

// Per-solver quote error codes. Each one is scoped to a single Quote.
const (
	ErrTimeout                = "timeout"
	ErrFetchFailed            = "fetchFailed"
	ErrGeneralError           = "generalError"
	ErrNoRoute                = "noResults"
	ErrGasCostOutputTokenZero = "gasCostOutputTokenZero"
	ErrGasCostTooHigh         = "gasCostToHigh"
)

// Aggregate failure codes. "NoResults" means no solver produced any non-error
// result at all; "AuctionFailed" means results existed but every one was
// filtered or errored.
const (
	ErrQuoteNoResults     = "quoteNoResults"
	ErrNoResults          = "noResults"
	ErrQuoteAuctionFailed = "quoteAuctionFailed"
	ErrSwapAuctionFailed  = "swapAuctionFailed"
)

// AuctionError is the structured failure returned instead of an
// AuctionResult. Code is stable and machine readable; ErrorData carries the
// per-solver error map (or policy details) for diagnostics.
type AuctionError struct {
	Code      string            `json:"error"`
	SessionID string            `json:"sessionId"`
	ErrorData map[string]string `json:"errorData,omitempty"`
}

func (e *AuctionError) Error() string {
	return fmt.Sprintf("auction failed [%s]: %s", e.SessionID, e.Code)
}

// NewAuctionError builds an AuctionError with optional key/value detail pairs.
func NewAuctionError(code, sessionID string, kv ...string) *AuctionError {
	e := &AuctionError{Code: code, SessionID: sessionID}
	if len(kv) > 0 {
		e.ErrorData = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			e.ErrorData[kv[i]] = kv[i+1]
		}
	}
	return e
}
